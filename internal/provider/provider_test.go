package provider

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/thiagofdso/adapta-chat/internal/config"
	"github.com/thiagofdso/adapta-chat/internal/core"
	"github.com/thiagofdso/adapta-chat/internal/metrics"
)

// stubGenerator is a test backend with scripted results.
type stubGenerator struct {
	name    string
	results []stubResult
	calls   atomic.Int32
	seen    [][]core.Message
}

type stubResult struct {
	out string
	err error
}

func (s *stubGenerator) Name() string { return s.name }

func (s *stubGenerator) Generate(ctx context.Context, history []core.Message, opts Options) (string, error) {
	i := int(s.calls.Add(1)) - 1
	s.seen = append(s.seen, history)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.results) == 0 {
		return "ok", nil
	}
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i].out, s.results[i].err
}

func userHistory(text string) []core.Message {
	return []core.Message{{Role: core.RoleUser, Content: text}}
}

func TestRegistry(t *testing.T) {
	t.Run("RegisterAndGet", func(t *testing.T) {
		r := NewRegistry()
		r.Register(&stubGenerator{name: "GPT"})

		got, err := r.Get("GPT")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Name() != "GPT" {
			t.Errorf("Name() = %q, want GPT", got.Name())
		}
		if !r.Has("GPT") {
			t.Error("Has(GPT) = false")
		}
	})

	t.Run("GetNonexistent", func(t *testing.T) {
		r := NewRegistry()
		if _, err := r.Get("nonexistent"); err == nil {
			t.Error("expected error for unknown backend")
		}
		if r.Has("nonexistent") {
			t.Error("Has(nonexistent) = true")
		}
	})

	t.Run("KeepsRegistrationOrder", func(t *testing.T) {
		r := NewRegistry()
		for _, name := range []string{"GPT", "Gemini", "Claude"} {
			r.Register(&stubGenerator{name: name})
		}
		r.Register(&stubGenerator{name: "Gemini"}) // replaced in place

		if want := []string{"GPT", "Gemini", "Claude"}; !slices.Equal(r.Names(), want) {
			t.Errorf("Names() = %v, want %v", r.Names(), want)
		}
		if r.Len() != 3 {
			t.Errorf("Len() = %d, want 3", r.Len())
		}

		list := r.List()
		if len(list) != 3 {
			t.Fatalf("List() length = %d, want 3", len(list))
		}
		if list[2].Name() != "Claude" {
			t.Errorf("List()[2] = %q, want Claude", list[2].Name())
		}
	})
}

func TestBackendError(t *testing.T) {
	err := &BackendError{Backend: "GPT", Message: "test error"}
	if got := err.Error(); got != "GPT backend error: test error" {
		t.Errorf("Error() = %q", got)
	}

	inner := errors.New("dial tcp: connection refused")
	wrapped := &BackendError{Backend: "GPT", Message: "request failed", Err: inner}
	if !errors.Is(wrapped, inner) {
		t.Error("BackendError should unwrap to its cause")
	}
	if !IsRetriable(wrapped) {
		t.Error("connection refused should be retriable")
	}
}

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{errors.New("503 Service Unavailable"), true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("invalid api key"), false},
		{&BackendError{Backend: "Codex", Message: "prompt exceeds the 128 KiB argument limit; use prompt_via: stdin"}, false},
	}
	for _, tt := range tests {
		if got := IsRetriable(tt.err); got != tt.want {
			t.Errorf("IsRetriable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(tag string) Middleware {
		return func(next Generator) Generator {
			return wrap(next, func(ctx context.Context, h []core.Message, o Options) (string, error) {
				order = append(order, tag)
				return next.Generate(ctx, h, o)
			})
		}
	}

	g := Chain(&stubGenerator{name: "GPT"}, mark("outer"), nil, mark("inner"))
	if _, err := g.Generate(context.Background(), userHistory("hi"), Options{}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if want := []string{"outer", "inner"}; !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if g.Name() != "GPT" {
		t.Errorf("Name() = %q, want GPT", g.Name())
	}
}

func TestRetryBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
	}
	for _, tt := range tests {
		if got := retryBackoff(tt.attempt, time.Second); got != tt.want {
			t.Errorf("retryBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("RetriesTransientFailures", func(t *testing.T) {
		stub := &stubGenerator{name: "GPT", results: []stubResult{
			{err: errors.New("connection reset")},
			{out: "recovered"},
		}}
		g := Chain(stub, WithRetry(2, time.Millisecond))

		out, err := g.Generate(context.Background(), userHistory("hi"), Options{})
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if out != "recovered" {
			t.Errorf("Generate() = %q, want recovered", out)
		}
		if n := stub.calls.Load(); n != 2 {
			t.Errorf("calls = %d, want 2", n)
		}
	})

	t.Run("StopsOnPermanentFailure", func(t *testing.T) {
		stub := &stubGenerator{name: "GPT", results: []stubResult{{err: errors.New("invalid api key")}}}
		g := Chain(stub, WithRetry(3, time.Millisecond))

		if _, err := g.Generate(context.Background(), userHistory("hi"), Options{}); err == nil {
			t.Error("expected error")
		}
		if n := stub.calls.Load(); n != 1 {
			t.Errorf("calls = %d, want 1", n)
		}
	})

	t.Run("GivesUpAfterMaxRetries", func(t *testing.T) {
		stub := &stubGenerator{name: "GPT", results: []stubResult{{err: errors.New("network timeout")}}}
		g := Chain(stub, WithRetry(2, time.Millisecond))

		_, err := g.Generate(context.Background(), userHistory("hi"), Options{})
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "failed after 3 attempts") {
			t.Errorf("unexpected error: %v", err)
		}
		if n := stub.calls.Load(); n != 3 {
			t.Errorf("calls = %d, want 3", n)
		}
	})
}

func TestWithTimeout(t *testing.T) {
	slow := NewGeneratorFunc("slow", func(ctx context.Context, h []core.Message, o Options) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	g := Chain(slow, WithTimeout(10*time.Millisecond))

	_, err := g.Generate(context.Background(), userHistory("hi"), Options{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestWithThinkingStripped(t *testing.T) {
	stub := &stubGenerator{name: "Gemini", results: []stubResult{{out: "<thinking>\nplan\n</thinking>\n  Answer  "}}}
	g := Chain(stub, WithThinkingStripped())

	out, err := g.Generate(context.Background(), userHistory("hi"), Options{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "Answer" {
		t.Errorf("Generate() = %q, want Answer", out)
	}
}

func TestWithCircuitBreaker(t *testing.T) {
	rec := metrics.NewRecorder(prometheus.NewRegistry())
	stub := &stubGenerator{name: "GPT", results: []stubResult{{err: errors.New("boom")}}}
	g := Chain(stub, WithCircuitBreaker(2, time.Hour, rec))

	for i := 0; i < 2; i++ {
		if _, err := g.Generate(context.Background(), userHistory("hi"), Options{}); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	_, err := g.Generate(context.Background(), userHistory("hi"), Options{})
	if err == nil || !strings.Contains(err.Error(), "circuit breaker open") {
		t.Fatalf("error = %v, want circuit breaker open", err)
	}
	if n := stub.calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2: open breaker must not reach the backend", n)
	}
}

func TestWithRateLimit(t *testing.T) {
	stub := &stubGenerator{name: "GPT"}
	g := Chain(stub, WithRateLimit(60, 1, nil))

	if _, err := g.Generate(context.Background(), userHistory("hi"), Options{}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	// the second call would wait a full second for a token
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := g.Generate(ctx, userHistory("hi"), Options{}); err == nil {
		t.Error("expected rate limit wait to fail")
	}
	if n := stub.calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestWithMetrics(t *testing.T) {
	rec := metrics.NewRecorder(prometheus.NewRegistry())
	g := Chain(&stubGenerator{name: "GPT"}, WithMetrics(rec), WithTracing())

	out, err := g.Generate(context.Background(), userHistory("hi"), Options{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "ok" {
		t.Errorf("Generate() = %q, want ok", out)
	}
}

func TestMergeConsecutive(t *testing.T) {
	history := []core.Message{
		{Role: core.RoleUser, Content: "round 1"},
		{Role: core.RoleUser, Content: "round 2"},
		{Role: core.RoleAssistant, Content: "answer 2"},
		{Role: core.RoleUser, Content: "round 3"},
	}

	merged := MergeConsecutive(history)
	if len(merged) != 3 {
		t.Fatalf("merged length = %d, want 3", len(merged))
	}
	if merged[0].Content != "round 1\n\nround 2" {
		t.Errorf("merged[0] = %q", merged[0].Content)
	}
	if merged[1].Role != core.RoleAssistant {
		t.Errorf("merged[1].Role = %q", merged[1].Role)
	}
	if history[0].Content != "round 1" {
		t.Error("input must not be modified")
	}
}

func TestRenderTranscript(t *testing.T) {
	if got := RenderTranscript(userHistory("only")); got != "only" {
		t.Errorf("single message = %q, want only", got)
	}

	out := RenderTranscript([]core.Message{
		{Role: core.RoleUser, Content: "q1"},
		{Role: core.RoleAssistant, Content: "a1"},
		{Role: core.RoleUser, Content: "q2"},
	})
	if want := "[USER]\nq1\n\n[ASSISTANT]\na1\n\n[USER]\nq2"; out != want {
		t.Errorf("RenderTranscript() = %q, want %q", out, want)
	}
}

func TestStripThinking(t *testing.T) {
	if got := StripThinking("<thinking>a</thinking>Hello <thinking>\nb\n</thinking>world"); got != "Hello world" {
		t.Errorf("StripThinking() = %q", got)
	}
	if got := StripThinking("  plain \n"); got != "plain" {
		t.Errorf("StripThinking() = %q", got)
	}
}

func TestMockGenerator(t *testing.T) {
	g := NewMockGenerator("Claude", 0)

	out, err := g.Generate(context.Background(), userHistory("What is the answer?"), Options{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.HasPrefix(out, "Claude response #1 to: What is the answer?") {
		t.Errorf("Generate() = %q", out)
	}
	if g.Calls() != 1 {
		t.Errorf("Calls() = %d, want 1", g.Calls())
	}

	if _, err := g.Generate(context.Background(), nil, Options{}); !errors.Is(err, ErrEmptyHistory) {
		t.Errorf("error = %v, want ErrEmptyHistory", err)
	}
}

// longHistory builds a transcript well past the 128 KiB single-argument limit.
func longHistory() []core.Message {
	var history []core.Message
	chunk := strings.Repeat("x", 16*1024)
	for i := 0; i < 6; i++ {
		history = append(history,
			core.Message{Role: core.RoleUser, Content: chunk},
			core.Message{Role: core.RoleAssistant, Content: chunk},
		)
	}
	return history
}

func TestCLIGenerator(t *testing.T) {
	t.Run("PromptOnStdin", func(t *testing.T) {
		g := NewCLIGenerator("Cat", "cat", nil, "", "")
		out, err := g.Generate(context.Background(), userHistory("hello from cli"), Options{})
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if out != "hello from cli" {
			t.Errorf("Generate() = %q, want %q", out, "hello from cli")
		}
	})

	t.Run("PromptAsArgument", func(t *testing.T) {
		g := NewCLIGenerator("Echo", "echo", []string{"-n"}, "", "").WithPromptVia(PromptViaArg)
		out, err := g.Generate(context.Background(), userHistory("hello from cli"), Options{})
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if out != "hello from cli" {
			t.Errorf("Generate() = %q, want %q", out, "hello from cli")
		}
	})

	t.Run("LongHistoryOnStdin", func(t *testing.T) {
		history := longHistory()
		want := RenderTranscript(history)
		if len(want) <= 128*1024 {
			t.Fatalf("transcript is only %d bytes", len(want))
		}

		g := NewCLIGenerator("Cat", "cat", nil, "", "").WithPromptVia(PromptViaStdin)
		out, err := g.Generate(context.Background(), history, Options{})
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if out != want {
			t.Errorf("Generate() returned %d bytes, want %d", len(out), len(want))
		}
	})

	t.Run("LongHistoryAsArgumentRejected", func(t *testing.T) {
		g := NewCLIGenerator("Echo", "echo", []string{"-n"}, "", "").WithPromptVia(PromptViaArg)
		_, err := g.Generate(context.Background(), longHistory(), Options{})

		var backendErr *BackendError
		if !errors.As(err, &backendErr) {
			t.Fatalf("error = %v, want *BackendError", err)
		}
		if !strings.Contains(backendErr.Message, "argument limit") {
			t.Errorf("Message = %q", backendErr.Message)
		}
		if IsRetriable(err) {
			t.Error("an oversized argument should not be retried")
		}
	})

	t.Run("MissingExecutable", func(t *testing.T) {
		missing := NewCLIGenerator("Missing", "definitely-not-a-real-binary-xyz", nil, "", "")
		if missing.Available() {
			t.Error("Available() = true for a missing binary")
		}
		_, err := missing.Generate(context.Background(), userHistory("hi"), Options{})
		var backendErr *BackendError
		if !errors.As(err, &backendErr) {
			t.Fatalf("error = %v, want *BackendError", err)
		}
		if backendErr.Backend != "Missing" {
			t.Errorf("Backend = %q, want Missing", backendErr.Backend)
		}
	})
}

func TestLimitedWriter(t *testing.T) {
	var sb strings.Builder
	w := newLimitedWriter(&sb, 5)

	n, err := w.Write([]byte("abcdefgh"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 8 {
		t.Errorf("Write() = %d, want 8", n)
	}
	if sb.String() != "abcde" {
		t.Errorf("written = %q, want abcde", sb.String())
	}
	if !w.limited {
		t.Error("limited should be set")
	}
}

func TestHealthCheck(t *testing.T) {
	good := &stubGenerator{name: "GPT", results: []stubResult{{out: "2"}}}
	status := HealthCheck(context.Background(), good, time.Second)
	if !status.Available || status.Backend != "GPT" {
		t.Errorf("unexpected status: %+v", status)
	}

	bad := &stubGenerator{name: "Gemini", results: []stubResult{{err: errors.New("boom")}}}
	status = HealthCheck(context.Background(), bad, time.Second)
	if status.Available {
		t.Error("failing backend reported available")
	}
	if !strings.Contains(status.Error, "boom") {
		t.Errorf("Error = %q", status.Error)
	}
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Backends = append(cfg.Backends,
		config.BackendConfig{Name: "Local", Kind: "ollama", Model: "llama3.1"},
		config.BackendConfig{Name: "Off", Kind: "mock", Disabled: true},
	)
	for _, b := range cfg.Backends {
		if b.APIKeyEnv != "" {
			t.Setenv(b.APIKeyEnv, "")
		}
	}

	tests := []struct {
		name   string
		openai string
		mock   bool
		want   []string
	}{
		{"SkipsBackendsWithoutKeys", "", false, []string{"Local"}},
		{"MockModeKeepsNamesAndOrder", "", true, []string{"GPT", "Gemini", "Claude", "Local"}},
		{"RegistersKeyedBackends", "sk-test", false, []string{"GPT", "Local"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", tt.openai)
			r, err := NewRegistryFromConfig(cfg, nil, tt.mock)
			if err != nil {
				t.Fatalf("NewRegistryFromConfig() error = %v", err)
			}
			if !slices.Equal(r.Names(), tt.want) {
				t.Errorf("Names() = %v, want %v", r.Names(), tt.want)
			}
		})
	}
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := New(config.BackendConfig{Name: "X", Kind: "telepathy"}, ""); err == nil {
		t.Error("expected error for unknown kind")
	}
}
