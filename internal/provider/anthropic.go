package provider

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicGenerator talks to the Anthropic Messages API.
type AnthropicGenerator struct {
	name      string
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicGenerator creates a Claude backend.
func NewAnthropicGenerator(name, apiKey, model string, maxTokens int) *AnthropicGenerator {
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicGenerator{
		name:      name,
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Name returns the backend name.
func (g *AnthropicGenerator) Name() string { return g.name }

// Generate sends the conversation as alternating user/assistant messages.
func (g *AnthropicGenerator) Generate(ctx context.Context, history []core.Message, opts Options) (string, error) {
	if len(history) == 0 {
		return "", ErrEmptyHistory
	}

	model, maxTokens := g.model, g.maxTokens
	if opts.Model != "" {
		model = opts.Model
	}
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	merged := MergeConsecutive(history)
	messages := make([]anthropic.MessageParam, 0, len(merged))
	for _, m := range merged {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == core.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	})
	if err != nil {
		return "", &BackendError{Backend: g.name, Message: "messages request failed", Err: err}
	}

	var sb strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return sb.String(), nil
}
