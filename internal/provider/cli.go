package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

// MaxOutputSize is the maximum size of CLI output (10MB).
const MaxOutputSize = 10 * 1024 * 1024

// How the rendered conversation reaches a CLI backend.
const (
	PromptViaStdin = "stdin"
	PromptViaArg   = "arg"
)

// maxArgSize is the Linux limit for a single exec argument (MAX_ARG_STRLEN).
const maxArgSize = 128*1024 - 1

// CLIGenerator runs a command-line model tool. The rendered conversation is
// written to stdin, or passed as the last argument in PromptViaArg mode, and
// stdout is the reply.
type CLIGenerator struct {
	name      string
	command   string
	args      []string
	modelFlag string
	model     string
	format    string
	promptArg bool
}

// NewCLIGenerator creates a CLI backend. modelFlag (e.g. "--model") is only
// passed when a model is set.
func NewCLIGenerator(name, command string, args []string, modelFlag, model string) *CLIGenerator {
	return &CLIGenerator{
		name:      name,
		command:   command,
		args:      args,
		modelFlag: modelFlag,
		model:     model,
	}
}

// WithOutputFormat sets how stdout is parsed. See ParseCLIOutput.
func (g *CLIGenerator) WithOutputFormat(format string) *CLIGenerator {
	g.format = format
	return g
}

// WithPromptVia selects PromptViaStdin (the default) or PromptViaArg. The
// transcript grows every round, so argument mode fails once it passes the
// kernel's per-argument limit.
func (g *CLIGenerator) WithPromptVia(mode string) *CLIGenerator {
	g.promptArg = mode == PromptViaArg
	return g
}

// Name returns the backend name.
func (g *CLIGenerator) Name() string { return g.name }

// Available checks if the CLI tool is installed.
func (g *CLIGenerator) Available() bool {
	_, err := exec.LookPath(g.command)
	return err == nil
}

// limitedWriter wraps an io.Writer and limits total bytes written.
type limitedWriter struct {
	w       io.Writer
	n       int64
	limit   int64
	limited bool
}

func newLimitedWriter(w io.Writer, limit int64) *limitedWriter {
	return &limitedWriter{w: w, limit: limit}
}

func (l *limitedWriter) Write(p []byte) (n int, err error) {
	if l.n >= l.limit {
		l.limited = true
		return len(p), nil // Discard, but don't error
	}

	remaining := l.limit - l.n
	written := len(p)
	if int64(len(p)) > remaining {
		p = p[:remaining]
		l.limited = true
	}

	n, err = l.w.Write(p)
	l.n += int64(n)
	if err != nil {
		return n, err
	}
	return written, nil
}

// Generate executes the command once. Retries and timeouts come from middleware.
func (g *CLIGenerator) Generate(ctx context.Context, history []core.Message, opts Options) (string, error) {
	if len(history) == 0 {
		return "", ErrEmptyHistory
	}
	if _, err := exec.LookPath(g.command); err != nil {
		return "", &BackendError{
			Backend: g.name,
			Message: fmt.Sprintf("executable '%s' not found in PATH", g.command),
			Err:     err,
		}
	}

	model := g.model
	if opts.Model != "" {
		model = opts.Model
	}

	args := append([]string{}, g.args...)
	if model != "" && g.modelFlag != "" {
		args = append(args, g.modelFlag, model)
	}
	prompt := RenderTranscript(history)
	if g.promptArg {
		if len(prompt) > maxArgSize {
			slog.Warn("CLI prompt too large for an argument", "backend", g.name, "prompt_bytes", len(prompt))
			return "", &BackendError{
				Backend: g.name,
				Message: "prompt exceeds the 128 KiB argument limit; use prompt_via: stdin",
			}
		}
		args = append(args, prompt)
	}

	slog.Debug("Executing CLI backend",
		"backend", g.name,
		"command", g.command,
		"messages", len(history),
		"prompt_bytes", len(prompt),
		"prompt_arg", g.promptArg,
	)

	cmd := exec.CommandContext(ctx, g.command, args...)
	if !g.promptArg {
		cmd.Stdin = strings.NewReader(prompt)
	}

	var stdout, stderr bytes.Buffer
	stdoutLimited := newLimitedWriter(&stdout, MaxOutputSize)
	stderrLimited := newLimitedWriter(&stderr, MaxOutputSize)
	cmd.Stdout = stdoutLimited
	cmd.Stderr = stderrLimited

	if err := cmd.Run(); err != nil {
		slog.Error("CLI backend failed",
			"backend", g.name,
			"error", err,
			"stderr", stderr.String(),
		)
		if ctx.Err() != nil {
			return "", &BackendError{Backend: g.name, Message: "command timed out", Err: ctx.Err()}
		}
		if stderr.Len() > 0 {
			msg := stderr.String()
			if stderrLimited.limited {
				msg += "\n... (output truncated)"
			}
			return "", &BackendError{Backend: g.name, Message: msg, Err: err}
		}
		return "", &BackendError{Backend: g.name, Message: "command failed", Err: err}
	}

	result, usage, err := ParseCLIOutput(g.format, strings.TrimSpace(stdout.String()))
	if err != nil {
		return "", &BackendError{Backend: g.name, Message: "unreadable output", Err: err}
	}
	if usage != nil {
		slog.Debug("CLI backend usage",
			"backend", g.name,
			"input_tokens", usage.InputTokens,
			"output_tokens", usage.OutputTokens,
		)
	}
	result = strings.TrimSpace(result)
	if stdoutLimited.limited {
		result += "\n... (output truncated at 10MB)"
	}
	return result, nil
}
