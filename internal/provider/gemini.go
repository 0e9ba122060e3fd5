package provider

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

const defaultGeminiMaxTokens = 8192

// GeminiGenerator talks to the Gemini API.
type GeminiGenerator struct {
	name      string
	apiKey    string
	model     string
	maxTokens int

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiGenerator creates a Gemini backend. The client is created on first use.
func NewGeminiGenerator(name, apiKey, model string, maxTokens int) *GeminiGenerator {
	if maxTokens <= 0 {
		maxTokens = defaultGeminiMaxTokens
	}
	return &GeminiGenerator{
		name:      name,
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
	}
}

// Name returns the backend name.
func (g *GeminiGenerator) Name() string { return g.name }

func (g *GeminiGenerator) getClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	g.client = client
	return client, nil
}

// Generate sends the conversation; assistant turns use the "model" role.
func (g *GeminiGenerator) Generate(ctx context.Context, history []core.Message, opts Options) (string, error) {
	if len(history) == 0 {
		return "", ErrEmptyHistory
	}

	client, err := g.getClient(ctx)
	if err != nil {
		return "", &BackendError{Backend: g.name, Message: "client unavailable", Err: err}
	}

	model, maxTokens := g.model, g.maxTokens
	if opts.Model != "" {
		model = opts.Model
	}
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	merged := MergeConsecutive(history)
	contents := make([]*genai.Content, 0, len(merged))
	for _, m := range merged {
		role := "user"
		if m.Role == core.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	result, err := client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	})
	if err != nil {
		return "", &BackendError{Backend: g.name, Message: "generate content failed", Err: err}
	}
	if result == nil {
		return "", nil
	}
	return result.Text(), nil
}
