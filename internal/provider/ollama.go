package provider

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

const defaultOllamaHost = "http://localhost:11434"

// OllamaGenerator talks to a local Ollama server.
type OllamaGenerator struct {
	name      string
	client    *api.Client
	model     string
	maxTokens int
}

// NewOllamaGenerator creates an Ollama backend. An invalid host falls back to localhost.
func NewOllamaGenerator(name, host, model string, maxTokens int) *OllamaGenerator {
	if host == "" {
		host = defaultOllamaHost
	}
	parsed, err := url.Parse(host)
	if err != nil {
		parsed, _ = url.Parse(defaultOllamaHost)
	}
	return &OllamaGenerator{
		name:      name,
		client:    api.NewClient(parsed, http.DefaultClient),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Name returns the backend name.
func (g *OllamaGenerator) Name() string { return g.name }

// Generate runs a non-streaming chat request.
func (g *OllamaGenerator) Generate(ctx context.Context, history []core.Message, opts Options) (string, error) {
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

	messages := make([]api.Message, len(history))
	for i, m := range history {
		messages[i] = api.Message{Role: string(m.Role), Content: m.Content}
	}

	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
	}
	if maxTokens > 0 {
		req.Options = map[string]any{"num_predict": maxTokens}
	}

	var response api.ChatResponse
	err := g.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return "", &BackendError{Backend: g.name, Message: "chat request failed", Err: err}
	}
	return response.Message.Content, nil
}
