package provider

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

const defaultOpenAIMaxTokens = 4096

// OpenAIGenerator talks to the OpenAI Responses API.
type OpenAIGenerator struct {
	name      string
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAIGenerator creates a GPT backend. An empty baseURL uses the public API.
func NewOpenAIGenerator(name, apiKey, baseURL, model string, maxTokens int) *OpenAIGenerator {
	if maxTokens <= 0 {
		maxTokens = defaultOpenAIMaxTokens
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIGenerator{
		name:      name,
		client:    openai.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Name returns the backend name.
func (g *OpenAIGenerator) Name() string { return g.name }

// Generate flattens the conversation into a single input and returns the output text.
func (g *OpenAIGenerator) Generate(ctx context.Context, history []core.Message, opts Options) (string, error) {
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

	resp, err := g.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:           model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(RenderTranscript(history))},
	})
	if err != nil {
		return "", &BackendError{Backend: g.name, Message: "responses request failed", Err: err}
	}
	return resp.OutputText(), nil
}
