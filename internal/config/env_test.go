package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnv(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	content := `
# Comment
KEY1=value1
KEY2="value 2"
KEY3='value 3'
KEY4=value 4 # inline comment
export KEY5=exported
EMPTY=
`
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create env file: %v", err)
	}

	env, err := LoadEnv(envFile)
	if err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}

	tests := []struct {
		key      string
		expected string
	}{
		{"KEY1", "value1"},
		{"KEY2", "value 2"},
		{"KEY3", "value 3"},
		{"KEY4", "value 4"},
		{"KEY5", "exported"},
		{"EMPTY", ""},
	}

	for _, tt := range tests {
		if got, ok := env[tt.key]; !ok || got != tt.expected {
			t.Errorf("expected %s=%q, got %q (exists=%v)", tt.key, tt.expected, got, ok)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	env := map[string]string{
		"ADAPTA_DEFAULT_AGENTS":  "4",
		"ADAPTA_DEFAULT_ROUNDS":  "5",
		"ADAPTA_MANAGER":         "Claude",
		"ADAPTA_FINAL_ROUND":     "contextual",
		"BACKEND_GPT_ENABLED":    "false",
		"BACKEND_GEMINI_MODEL":   "gemini-2.5-pro",
		"BACKEND_TIMEOUT":        "60",
		"SERVER_PORT":            "9090",
		"ADAPTA_DB_PATH":         "/tmp/adapta-test.db",
		"LOG_LEVEL":              "debug",
		"BACKEND_UNKNOWN_MODEL":  "ignored",
		"BACKEND_CLAUDE_ENABLED": "not-a-bool",
	}

	ApplyEnvOverrides(cfg, env)

	if cfg.Defaults.Agents != 4 || cfg.Defaults.Rounds != 5 {
		t.Errorf("expected 4 agents / 5 rounds, got %d / %d", cfg.Defaults.Agents, cfg.Defaults.Rounds)
	}
	if cfg.Defaults.Manager != "Claude" {
		t.Errorf("expected manager Claude, got %s", cfg.Defaults.Manager)
	}
	if cfg.Defaults.FinalRound != "contextual" {
		t.Errorf("expected contextual final round, got %s", cfg.Defaults.FinalRound)
	}

	gpt, _ := cfg.GetBackend("GPT")
	if !gpt.Disabled {
		t.Errorf("expected GPT disabled")
	}
	claude, _ := cfg.GetBackend("Claude")
	if claude.Disabled {
		t.Errorf("expected Claude to stay enabled on an invalid bool")
	}
	gemini, _ := cfg.GetBackend("Gemini")
	if gemini.Model != "gemini-2.5-pro" {
		t.Errorf("expected gemini model override, got %s", gemini.Model)
	}
	if gemini.Timeout != 60*time.Second {
		t.Errorf("expected timeout 60s, got %v", gemini.Timeout)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Path != "/tmp/adapta-test.db" {
		t.Errorf("expected db path override, got %s", cfg.Storage.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"GPT":       "GPT",
		"Local LLM": "LOCAL_LLM",
		"gpt-4.1":   "GPT_4_1",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseEnvLine(t *testing.T) {
	tests := []struct {
		line  string
		key   string
		value string
		ok    bool
	}{
		{line: `A=1`, key: "A", value: "1", ok: true},
		{line: `  export B = "x = y"  `, key: "B", value: "x = y", ok: true},
		{line: `C='mixed"`, key: "C", value: `'mixed"`, ok: true},
		{line: `# D=1`},
		{line: `no equals sign`},
		{line: `=orphan`},
	}
	for _, tt := range tests {
		key, value, ok := parseEnvLine(tt.line)
		if ok != tt.ok || key != tt.key || value != tt.value {
			t.Errorf("parseEnvLine(%q) = (%q, %q, %v), want (%q, %q, %v)", tt.line, key, value, ok, tt.key, tt.value, tt.ok)
		}
	}
}
