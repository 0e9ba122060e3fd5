package provider

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Output formats understood by CLI backends.
const (
	OutputText          = "text"
	OutputClaudeJSON    = "claude-json"
	OutputGeminiJSON    = "gemini-json"
	OutputCodexJSONL    = "codex-jsonl"
	OutputOpencodeJSONL = "opencode-jsonl"
	OutputQwenJSON      = "qwen-json"
)

// Usage is the token accounting some CLIs report next to the reply.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

var outputParsers = map[string]func(data string) (string, *Usage, bool){
	OutputClaudeJSON:    parseClaudeOutput,
	OutputGeminiJSON:    parseGeminiOutput,
	OutputCodexJSONL:    parseCodexOutput,
	OutputOpencodeJSONL: parseOpencodeOutput,
	OutputQwenJSON:      parseQwenOutput,
}

// ValidOutputFormat reports whether format is a known CLI output format.
// Empty means OutputText.
func ValidOutputFormat(format string) bool {
	if format == "" || format == OutputText {
		return true
	}
	_, ok := outputParsers[format]
	return ok
}

// ParseCLIOutput extracts the reply text from a CLI's stdout. Output that
// does not match the expected structure is returned unchanged.
func ParseCLIOutput(format, data string) (string, *Usage, error) {
	if format == "" || format == OutputText {
		return data, nil, nil
	}
	parse, ok := outputParsers[format]
	if !ok {
		return "", nil, fmt.Errorf("unknown output format: %s", format)
	}

	content, usage, ok := parse(data)
	if !ok || strings.TrimSpace(content) == "" {
		slog.Debug("CLI output did not match format, using raw output", "format", format)
		return data, nil, nil
	}
	return content, usage, nil
}

func parseClaudeOutput(data string) (string, *Usage, bool) {
	var raw struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Result string `json:"result"`
		Usage  *struct {
			InputTokens              int `json:"input_tokens"`
			OutputTokens             int `json:"output_tokens"`
			CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
			CacheReadInputTokens     int `json:"cache_read_input_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return "", nil, false
	}

	var sb strings.Builder
	for _, c := range raw.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	content := sb.String()
	if content == "" {
		content = raw.Result
	}

	var usage *Usage
	if raw.Usage != nil {
		usage = &Usage{
			InputTokens:  raw.Usage.InputTokens + raw.Usage.CacheCreationInputTokens + raw.Usage.CacheReadInputTokens,
			OutputTokens: raw.Usage.OutputTokens,
		}
	}
	return content, usage, true
}

func parseGeminiOutput(data string) (string, *Usage, bool) {
	var raw struct {
		Response string `json:"response"`
		Text     string `json:"text"`
		Stats    *struct {
			Models map[string]struct {
				Tokens *struct {
					Prompt     int `json:"prompt"`
					Candidates int `json:"candidates"`
				} `json:"tokens"`
			} `json:"models"`
		} `json:"stats"`
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return "", nil, false
	}

	content := raw.Response
	if content == "" {
		content = raw.Text
	}
	if content == "" && len(raw.Candidates) > 0 {
		var sb strings.Builder
		for _, part := range raw.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
		content = sb.String()
	}

	var usage *Usage
	if raw.Stats != nil && len(raw.Stats.Models) > 0 {
		usage = &Usage{}
		for _, m := range raw.Stats.Models {
			if m.Tokens != nil {
				usage.InputTokens += m.Tokens.Prompt
				usage.OutputTokens += m.Tokens.Candidates
			}
		}
	}
	return content, usage, true
}

// parseCodexOutput reads newline-delimited events, falling back to a single
// chat-completion shaped object.
func parseCodexOutput(data string) (string, *Usage, bool) {
	var sb strings.Builder
	var usage *Usage
	found := false

	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var event struct {
			Message *struct {
				Content string `json:"content"`
			} `json:"message"`
			Text  string `json:"text"`
			Usage *struct {
				PromptTokens     int `json:"prompt_tokens"`
				CompletionTokens int `json:"completion_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		found = true
		if event.Message != nil {
			sb.WriteString(event.Message.Content)
		}
		sb.WriteString(event.Text)
		if event.Usage != nil {
			usage = &Usage{InputTokens: event.Usage.PromptTokens, OutputTokens: event.Usage.CompletionTokens}
		}
	}
	if found && sb.Len() > 0 {
		return sb.String(), usage, true
	}

	var raw struct {
		Response string `json:"response"`
		Content  string `json:"content"`
		Choices  []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return "", nil, false
	}
	switch {
	case raw.Response != "":
		return raw.Response, usage, true
	case len(raw.Choices) > 0:
		return raw.Choices[0].Message.Content, usage, true
	default:
		return raw.Content, usage, true
	}
}

func parseOpencodeOutput(data string) (string, *Usage, bool) {
	var sb strings.Builder
	var usage *Usage

	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var event struct {
			Type string `json:"type"`
			Part *struct {
				Text   string `json:"text"`
				Tokens *struct {
					Input  int `json:"input"`
					Output int `json:"output"`
				} `json:"tokens"`
			} `json:"part"`
		}
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		if event.Part == nil {
			continue
		}
		switch event.Type {
		case "text":
			sb.WriteString(event.Part.Text)
		case "step_finish":
			if event.Part.Tokens != nil {
				usage = &Usage{InputTokens: event.Part.Tokens.Input, OutputTokens: event.Part.Tokens.Output}
			}
		}
	}
	return sb.String(), usage, sb.Len() > 0
}

// parseQwenOutput accepts the event array format and the older single object.
func parseQwenOutput(data string) (string, *Usage, bool) {
	type tokens struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	}

	var events []struct {
		Type    string `json:"type"`
		Result  string `json:"result"`
		Message *struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"message"`
		Usage *tokens `json:"usage"`
	}
	if err := json.Unmarshal([]byte(data), &events); err == nil && len(events) > 0 {
		var result, assistant strings.Builder
		var usage *Usage
		for _, e := range events {
			switch {
			case e.Type == "result" && e.Result != "":
				result.Reset()
				result.WriteString(e.Result)
			case e.Type == "assistant" && e.Message != nil:
				for _, c := range e.Message.Content {
					if c.Type == "text" {
						assistant.WriteString(c.Text)
					}
				}
			}
			if e.Usage != nil && (usage == nil || e.Type == "result") {
				usage = &Usage{InputTokens: e.Usage.InputTokens, OutputTokens: e.Usage.OutputTokens}
			}
		}
		if result.Len() > 0 {
			return result.String(), usage, true
		}
		return assistant.String(), usage, true
	}

	var raw struct {
		Output struct {
			Text string `json:"text"`
		} `json:"output"`
		Text  string  `json:"text"`
		Usage *tokens `json:"usage"`
	}
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return "", nil, false
	}
	content := raw.Output.Text
	if content == "" {
		content = raw.Text
	}
	var usage *Usage
	if raw.Usage != nil {
		usage = &Usage{InputTokens: raw.Usage.InputTokens, OutputTokens: raw.Usage.OutputTokens}
	}
	return content, usage, true
}
