package provider

import (
	"regexp"
	"strings"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

var thinkingBlock = regexp.MustCompile(`(?s)<thinking>.*?</thinking>`)

// StripThinking removes <thinking>...</thinking> blocks and trims the result.
func StripThinking(s string) string {
	return strings.TrimSpace(thinkingBlock.ReplaceAllString(s, ""))
}

// MergeConsecutive joins adjacent messages with the same role. A failed round
// leaves two user prompts in a row, which strict-alternation APIs reject.
func MergeConsecutive(history []core.Message) []core.Message {
	merged := make([]core.Message, 0, len(history))
	for _, m := range history {
		if n := len(merged); n > 0 && merged[n-1].Role == m.Role {
			merged[n-1].Content += "\n\n" + m.Content
			continue
		}
		merged = append(merged, m)
	}
	return merged
}

// RenderTranscript flattens a conversation into one prompt for backends that
// only accept a single text input. A single user message is returned as is.
func RenderTranscript(history []core.Message) string {
	if len(history) == 1 && history[0].Role == core.RoleUser {
		return history[0].Content
	}

	var sb strings.Builder
	for i, m := range history {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		switch m.Role {
		case core.RoleAssistant:
			sb.WriteString("[ASSISTANT]\n")
		default:
			sb.WriteString("[USER]\n")
		}
		sb.WriteString(m.Content)
	}
	return sb.String()
}
