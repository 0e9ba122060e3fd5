package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thiagofdso/adapta-chat/internal/core"
	"github.com/thiagofdso/adapta-chat/internal/provider"
)

func countingBackend(name, answer string, calls *int32) provider.Generator {
	return provider.NewGeneratorFunc(name, func(ctx context.Context, h []core.Message, o provider.Options) (string, error) {
		atomic.AddInt32(calls, 1)
		return answer, nil
	})
}

func TestHandleBackendHealth_UsesCache(t *testing.T) {
	s := setupTestHandler(t)

	cachePath := filepath.Join(t.TempDir(), "backend-health.json")
	s.handler.healthCache = newBackendHealthCache(cachePath, 30*time.Minute)

	var calls int32
	s.handler.registry.Register(countingBackend("counting", "2", &calls))

	for i := 0; i < 2; i++ {
		w := s.do(t, "GET", "/api/backends/counting/health", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}

		var status provider.HealthStatus
		if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if status.Backend != "counting" || !status.Available {
			t.Fatalf("unexpected status: %+v", status)
		}
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 health check call, got %d", got)
	}

	if _, err := os.Stat(cachePath); err != nil {
		t.Fatalf("expected cache file to be created, got error: %v", err)
	}
}

func TestHandleBackendHealth_DoesNotCacheFailures(t *testing.T) {
	s := setupTestHandler(t)

	var calls int32
	s.handler.registry.Register(countingBackend("chatty", "Let me think about arithmetic for a while.", &calls))

	for i := 0; i < 2; i++ {
		w := s.do(t, "GET", "/api/backends/chatty/health", nil)
		var status provider.HealthStatus
		json.Unmarshal(w.Body.Bytes(), &status)
		if status.Available {
			t.Fatalf("expected unhealthy status, got %+v", status)
		}
	}

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 health check calls, got %d", got)
	}
}

func TestHandleBackendHealth_Unknown(t *testing.T) {
	s := setupTestHandler(t)

	w := s.do(t, "GET", "/api/backends/nope/health", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestBackendHealthCache_ReloadAndEvict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "health.json")

	c := newBackendHealthCache(path, time.Minute)
	c.Record(provider.HealthStatus{Backend: "GPT", Available: true, CheckedAt: time.Now()})

	reloaded := newBackendHealthCache(path, time.Minute)
	if _, ok := reloaded.Lookup("GPT"); !ok {
		t.Fatal("expected passing check to survive reload")
	}

	reloaded.Record(provider.HealthStatus{Backend: "GPT", Error: "timeout", CheckedAt: time.Now()})
	if _, ok := newBackendHealthCache(path, time.Minute).Lookup("GPT"); ok {
		t.Fatal("expected failed check to evict the backend")
	}
}

func TestBackendHealthCache_IgnoresExpiredAndOldVersions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "health.json")

	c := newBackendHealthCache(path, time.Minute)
	c.Record(provider.HealthStatus{Backend: "Claude", Available: true, CheckedAt: time.Now().Add(-2 * time.Minute)})
	if _, ok := c.Lookup("Claude"); ok {
		t.Fatal("expected expired entry to be ignored")
	}

	old := `{"version": 0, "backends": {"Claude": {"backend": "Claude", "available": true}}}`
	if err := os.WriteFile(path, []byte(old), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := newBackendHealthCache(path, time.Hour).Lookup("Claude"); ok {
		t.Fatal("expected old cache version to be discarded")
	}
}
