package handlers

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/thiagofdso/adapta-chat/internal/provider"
)

const (
	healthCacheFile    = "adapta-backend-health.json"
	healthCacheTTL     = 30 * time.Minute
	healthCacheVersion = 1
)

// healthCacheDoc is the on-disk layout. Only passing checks are stored.
type healthCacheDoc struct {
	Version  int                              `json:"version"`
	Backends map[string]provider.HealthStatus `json:"backends"`
}

// backendHealthCache remembers passing health checks so repeated page loads
// do not spend a model call per backend.
type backendHealthCache struct {
	path string
	ttl  time.Duration

	once sync.Once
	mu   sync.Mutex
	ok   map[string]provider.HealthStatus
}

func newBackendHealthCache(path string, ttl time.Duration) *backendHealthCache {
	if ttl <= 0 {
		ttl = healthCacheTTL
	}
	return &backendHealthCache{path: path, ttl: ttl, ok: map[string]provider.HealthStatus{}}
}

func defaultBackendHealthCachePath() string {
	return filepath.Join(os.TempDir(), healthCacheFile)
}

// Lookup returns the last passing check for backend if it is younger than
// the TTL.
func (c *backendHealthCache) Lookup(backend string) (provider.HealthStatus, bool) {
	c.once.Do(c.load)
	c.mu.Lock()
	defer c.mu.Unlock()

	status, found := c.ok[backend]
	if !found || time.Since(status.CheckedAt) > c.ttl {
		return provider.HealthStatus{}, false
	}
	return status, true
}

// Record stores a passing check or forgets the backend after a failing one.
func (c *backendHealthCache) Record(status provider.HealthStatus) {
	c.once.Do(c.load)
	c.mu.Lock()
	defer c.mu.Unlock()

	if status.Available && !status.CheckedAt.IsZero() {
		c.ok[status.Backend] = status
	} else if _, found := c.ok[status.Backend]; found {
		delete(c.ok, status.Backend)
	} else {
		return
	}
	c.save()
}

func (c *backendHealthCache) load() {
	raw, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		slog.Warn("Ignoring unreadable backend health cache", "path", c.path, "error", err)
		return
	}

	var doc healthCacheDoc
	if err := json.Unmarshal(raw, &doc); err != nil || doc.Version != healthCacheVersion {
		slog.Debug("Discarding stale backend health cache", "path", c.path, "error", err)
		return
	}
	c.mu.Lock()
	for name, status := range doc.Backends {
		if status.Available {
			c.ok[name] = status
		}
	}
	c.mu.Unlock()
}

// save writes through a temp file so a concurrent reader never sees a
// partial document. Callers hold c.mu.
func (c *backendHealthCache) save() {
	raw, err := json.MarshalIndent(healthCacheDoc{Version: healthCacheVersion, Backends: c.ok}, "", "  ")
	if err != nil {
		slog.Warn("Failed to encode backend health cache", "error", err)
		return
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("Failed to create backend health cache directory", "path", dir, "error", err)
		return
	}
	tmp, err := os.CreateTemp(dir, ".backend-health-*")
	if err != nil {
		slog.Warn("Failed to write backend health cache", "path", c.path, "error", err)
		return
	}
	_, werr := tmp.Write(raw)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmp.Name(), c.path)
	}
	if werr != nil {
		os.Remove(tmp.Name())
		slog.Warn("Failed to write backend health cache", "path", c.path, "error", werr)
	}
}
