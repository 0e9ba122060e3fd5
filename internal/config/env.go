package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadEnv reads KEY=value pairs from a dotenv file. Blank lines, comments,
// an optional "export " prefix, trailing " #" comments and matching quotes
// are handled.
func LoadEnv(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	env := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if key, value, ok := parseEnvLine(sc.Text()); ok {
			env[key] = value
		}
	}
	return env, sc.Err()
}

func parseEnvLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return "", "", false
	}
	key, value, ok = strings.Cut(strings.TrimPrefix(line, "export "), "=")
	if !ok {
		return "", "", false
	}
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if key == "" {
		return "", "", false
	}

	if i := strings.Index(value, " #"); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	if n := len(value); n >= 2 && (value[0] == '"' || value[0] == '\'') && value[n-1] == value[0] {
		value = value[1 : n-1]
	}
	return key, value, true
}

// envKey turns a backend name into its variable prefix, e.g. "Local LLM" -> "LOCAL_LLM".
func envKey(name string) string {
	return strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(name))
}

// envSource wraps the parsed variables. Empty and malformed values leave the
// target untouched.
type envSource map[string]string

func (e envSource) setString(key string, dst *string) {
	if v := e[key]; v != "" {
		*dst = v
	}
}

func (e envSource) setInt(key string, dst *int) {
	if n, err := strconv.Atoi(e[key]); err == nil {
		*dst = n
	}
}

func (e envSource) setBool(key string, dst *bool) {
	if b, err := strconv.ParseBool(e[key]); err == nil {
		*dst = b
	}
}

// setDuration accepts plain seconds ("60") or a Go duration ("1m30s").
func (e envSource) setDuration(key string, dst *time.Duration) {
	v := e[key]
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
	} else if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

// ApplyEnvOverrides updates the configuration from dotenv variables.
// Per-backend keys use the BACKEND_<NAME>_ prefix, see envKey.
func ApplyEnvOverrides(cfg *Config, env map[string]string) {
	e := envSource(env)

	e.setInt("SERVER_PORT", &cfg.Server.Port)
	e.setInt("ADAPTA_DEFAULT_AGENTS", &cfg.Defaults.Agents)
	e.setInt("ADAPTA_DEFAULT_ROUNDS", &cfg.Defaults.Rounds)
	e.setString("ADAPTA_MANAGER", &cfg.Defaults.Manager)
	e.setString("ADAPTA_FINAL_ROUND", &cfg.Defaults.FinalRound)
	e.setString("LOG_LEVEL", &cfg.Logging.Level)
	if v := env["ADAPTA_DB_PATH"]; v != "" {
		cfg.Storage.Path = ExpandPath(v)
	}

	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		prefix := "BACKEND_" + envKey(b.Name)

		enabled := !b.Disabled
		e.setBool(prefix+"_ENABLED", &enabled)
		b.Disabled = !enabled

		e.setString(prefix+"_MODEL", &b.Model)
		e.setDuration("BACKEND_TIMEOUT", &b.Timeout)
	}
}
