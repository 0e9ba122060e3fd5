// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Defaults DefaultsConfig  `yaml:"defaults"`
	Backends []BackendConfig `yaml:"backends"`
	Storage  StorageConfig   `yaml:"storage,omitempty"`
	Server   ServerConfig    `yaml:"server,omitempty"`
	Logging  LoggingConfig   `yaml:"logging,omitempty"`
	Tracing  TracingConfig   `yaml:"tracing,omitempty"`

	env map[string]string
}

// DefaultsConfig holds default debate settings.
type DefaultsConfig struct {
	Agents     int    `yaml:"agents"`
	Rounds     int    `yaml:"rounds"`
	Manager    string `yaml:"manager"`
	FinalRound string `yaml:"final_round"` // fixed | contextual
	Output     string `yaml:"output"`
	Format     string `yaml:"format"`
}

// BackendConfig describes one model backend. The list order in the file is
// the round-robin order used for agents without an explicit binding.
type BackendConfig struct {
	Name          string        `yaml:"name"`
	Kind          string        `yaml:"kind"` // openai | anthropic | gemini | ollama | cli | mock
	Model         string        `yaml:"model,omitempty"`
	APIKeyEnv     string        `yaml:"api_key_env,omitempty"`
	BaseURL       string        `yaml:"base_url,omitempty"`
	Command       string        `yaml:"command,omitempty"`
	Args          []string      `yaml:"args,omitempty"`
	ModelFlag     string        `yaml:"model_flag,omitempty"`
	OutputFormat  string        `yaml:"output_format,omitempty"` // cli only: text | claude-json | gemini-json | codex-jsonl | opencode-jsonl | qwen-json
	PromptVia     string        `yaml:"prompt_via,omitempty"`    // cli only: stdin (default) | arg
	MaxTokens     int           `yaml:"max_tokens,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty"`
	MaxRetries    int           `yaml:"max_retries,omitempty"`
	StripThinking bool          `yaml:"strip_thinking,omitempty"`
	Disabled      bool          `yaml:"disabled,omitempty"`

	RateLimit      RateLimitConfig      `yaml:"rate_limit,omitempty"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker,omitempty"`
}

// RateLimitConfig limits calls to one backend. Zero means unlimited.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute,omitempty"`
	Burst             int     `yaml:"burst,omitempty"`
}

// CircuitBreakerConfig opens the breaker after consecutive failures. Zero disables it.
type CircuitBreakerConfig struct {
	MaxFailures int           `yaml:"max_failures,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// StorageConfig holds database settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout | noop
}

// DefaultBackends returns the stock GPT, Gemini, Claude backends in that order.
func DefaultBackends() []BackendConfig {
	breaker := CircuitBreakerConfig{MaxFailures: 5, Timeout: time.Minute}
	return []BackendConfig{
		{
			Name:           "GPT",
			Kind:           "openai",
			Model:          "gpt-4o",
			APIKeyEnv:      "OPENAI_API_KEY",
			Timeout:        5 * time.Minute,
			MaxRetries:     2,
			CircuitBreaker: breaker,
		},
		{
			Name:           "Gemini",
			Kind:           "gemini",
			Model:          "gemini-2.5-flash",
			APIKeyEnv:      "GEMINI_API_KEY",
			Timeout:        5 * time.Minute,
			MaxRetries:     2,
			StripThinking:  true,
			CircuitBreaker: breaker,
		},
		{
			Name:           "Claude",
			Kind:           "anthropic",
			Model:          "claude-sonnet-4-5",
			APIKeyEnv:      "ANTHROPIC_API_KEY",
			Timeout:        5 * time.Minute,
			MaxRetries:     2,
			CircuitBreaker: breaker,
		},
	}
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			Agents:     3,
			Rounds:     3,
			Manager:    "Gemini",
			FinalRound: "fixed",
			Output:     "debate.md",
			Format:     "markdown",
		},
		Backends: DefaultBackends(),
		Storage: StorageConfig{
			Path: DefaultDBPath(),
		},
		Server: ServerConfig{
			Port: 8182,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Exporter: "stdout",
		},
		env: map[string]string{},
	}
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom loads configuration from a specific path. A missing file yields
// the defaults; .env overrides from the working directory are applied last.
func LoadFrom(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	if env, err := LoadEnv(".env"); err == nil {
		cfg.env = env
		ApplyEnvOverrides(cfg, env)
	}

	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file, proceed with defaults
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.mergeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeDefaults fills zero values left by a partial config file.
func (c *Config) mergeDefaults() {
	d := Default()

	if len(c.Backends) == 0 {
		c.Backends = d.Backends
	}
	if c.Defaults.Agents == 0 {
		c.Defaults.Agents = d.Defaults.Agents
	}
	if c.Defaults.Rounds == 0 {
		c.Defaults.Rounds = d.Defaults.Rounds
	}
	if c.Defaults.Manager == "" {
		c.Defaults.Manager = d.Defaults.Manager
	}
	if c.Defaults.FinalRound == "" {
		c.Defaults.FinalRound = d.Defaults.FinalRound
	}
	if c.Defaults.Output == "" {
		c.Defaults.Output = d.Defaults.Output
	}
	if c.Defaults.Format == "" {
		c.Defaults.Format = d.Defaults.Format
	}
	if c.Storage.Path == "" {
		c.Storage.Path = d.Storage.Path
	}
	c.Storage.Path = ExpandPath(c.Storage.Path)
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = d.Tracing.Exporter
	}
	if c.env == nil {
		c.env = map[string]string{}
	}
}

// Validate checks backend entries for missing or duplicate names.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("backend #%d has no name", i+1)
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate backend name: %s", b.Name)
		}
		seen[b.Name] = true

		switch b.Kind {
		case "openai", "anthropic", "gemini", "ollama", "mock":
		case "cli":
			if b.Command == "" {
				return fmt.Errorf("backend %s: cli backends need a command", b.Name)
			}
			switch b.OutputFormat {
			case "", "text", "claude-json", "gemini-json", "codex-jsonl", "opencode-jsonl", "qwen-json":
			default:
				return fmt.Errorf("backend %s: unknown output_format %q", b.Name, b.OutputFormat)
			}
			switch b.PromptVia {
			case "", "stdin", "arg":
			default:
				return fmt.Errorf("backend %s: prompt_via must be stdin or arg, got %q", b.Name, b.PromptVia)
			}
		default:
			return fmt.Errorf("backend %s: unknown kind %q", b.Name, b.Kind)
		}
	}
	return nil
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigPath())
}

// SaveTo saves the configuration to a specific path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetBackend returns the configuration for a backend.
func (c *Config) GetBackend(name string) (BackendConfig, bool) {
	for _, b := range c.Backends {
		if b.Name == name {
			return b, true
		}
	}
	return BackendConfig{}, false
}

// Summary returns a one-line description of a backend for listings.
func (b BackendConfig) Summary() string {
	target := b.Model
	if b.Kind == "cli" {
		target = b.Command
	}
	if target == "" {
		return b.Kind
	}
	return fmt.Sprintf("%s/%s", b.Kind, target)
}

// Lookup resolves an environment value, preferring the .env file over the process environment.
func (c *Config) Lookup(key string) string {
	if v, ok := c.env[key]; ok && v != "" {
		return v
	}
	return os.Getenv(key)
}

// APIKey returns the backend's API key, or an empty string when none is configured.
func (c *Config) APIKey(b BackendConfig) string {
	if b.APIKeyEnv == "" {
		return ""
	}
	return c.Lookup(b.APIKeyEnv)
}

// ExpandPath replaces a leading "~/" with the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "adapta.yaml"
	}
	return filepath.Join(home, ".adapta", "config.yaml")
}

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "adapta.db"
	}
	return filepath.Join(home, ".adapta", "adapta.db")
}

// GenerateExample generates an example configuration file.
func GenerateExample() string {
	example := `# adapta configuration file
# Place this file at ~/.adapta/config.yaml

defaults:
  agents: 3                 # Agents per debate (2-10)
  rounds: 3                 # Rounds per debate (1-10)
  manager: Gemini           # Backend that writes the final conclusion
  final_round: fixed        # fixed | contextual (repeat topic and peers in the last round)
  output: debate.md         # Transcript path
  format: markdown          # markdown | json | pdf

# Agents without an explicit binding are assigned round-robin in this order.
backends:
  - name: GPT
    kind: openai
    model: gpt-4o
    api_key_env: OPENAI_API_KEY
    timeout: 5m
    max_retries: 2          # Retry transient failures (total 3 attempts)
    circuit_breaker:
      max_failures: 5
      timeout: 1m

  - name: Gemini
    kind: gemini
    model: gemini-2.5-flash
    api_key_env: GEMINI_API_KEY
    strip_thinking: true    # Drop <thinking>...</thinking> blocks
    timeout: 5m
    max_retries: 2

  - name: Claude
    kind: anthropic
    model: claude-sonnet-4-5
    api_key_env: ANTHROPIC_API_KEY
    timeout: 5m
    max_retries: 2
    rate_limit:
      requests_per_minute: 50
      burst: 5

  # - name: Local
  #   kind: ollama
  #   base_url: http://localhost:11434
  #   model: llama3.1

  # - name: Codex
  #   kind: cli
  #   command: codex
  #   args: ["exec", "--json"]
  #   model_flag: --model
  #   output_format: codex-jsonl

  # - name: ClaudeCLI
  #   kind: cli
  #   command: claude
  #   args: ["-p", "--output-format", "json"]
  #   output_format: claude-json
  #   prompt_via: stdin     # or arg: prompt as last argument (128 KiB max)

storage:
  path: ~/.adapta/adapta.db

server:
  port: 8182

logging:
  level: info               # debug | info | warn | error
  format: text              # text | json

tracing:
  enabled: false
  exporter: stdout
`
	return example
}
