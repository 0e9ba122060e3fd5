// Package handlers provides the HTTP control surface for debate sessions.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thiagofdso/adapta-chat/internal/core"
	"github.com/thiagofdso/adapta-chat/internal/engine"
	"github.com/thiagofdso/adapta-chat/internal/export"
	"github.com/thiagofdso/adapta-chat/internal/persona"
	"github.com/thiagofdso/adapta-chat/internal/provider"
	"github.com/thiagofdso/adapta-chat/internal/storage"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine        *engine.Engine
	registry      *provider.Registry
	storage       storage.Storage
	gatherer      prometheus.Gatherer
	healthCache   *backendHealthCache
	healthTimeout time.Duration
	pollInterval  time.Duration
}

// New creates a new Handler. gatherer may be nil to disable /metrics.
func New(eng *engine.Engine, registry *provider.Registry, store storage.Storage, gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		engine:        eng,
		registry:      registry,
		storage:       store,
		gatherer:      gatherer,
		healthCache:   newBackendHealthCache(defaultBackendHealthCachePath(), healthCacheTTL),
		healthTimeout: 30 * time.Second,
		pollInterval:  time.Second,
	}
}

// Routes returns the router with all HTTP routes registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.handleSnapshot)
			r.Post("/", h.handleStart)
			r.Delete("/", h.handleReset)
			r.Post("/round", h.handleRunRound)
			r.Post("/advance", h.handleAdvance)
			r.Post("/conclude", h.handleConclude)
			r.Get("/stream", h.handleSessionStream)
			r.Get("/export/{format}", h.handleExportSession)
		})

		r.Get("/backends", h.handleBackends)
		r.Get("/backends/health", h.handleBackendsHealth)
		r.Get("/backends/{name}/health", h.handleBackendHealth)

		r.Get("/agents/instructions", h.handleGetInstructions)
		r.Put("/agents/instructions", h.handlePutInstructions)
		r.Get("/agents/bindings", h.handleGetBindings)
		r.Put("/agents/bindings", h.handlePutBindings)
		r.Get("/personas", h.handlePersonas)

		r.Get("/debates", h.handleListDebates)
		r.Get("/debates/{id}", h.handleGetDebate)
		r.Delete("/debates/{id}", h.handleDeleteDebate)
		r.Get("/debates/{id}/export/{format}", h.handleExportDebate)
	})

	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Session handlers

// StartRequest is the body of POST /api/session.
type StartRequest struct {
	Topic        string            `json:"topic"`
	NumAgents    int               `json:"num_agents"`
	NumRounds    int               `json:"num_rounds"`
	Bindings     map[string]string `json:"bindings,omitempty"`
	Instructions map[string]string `json:"instructions,omitempty"`
	Manager      string            `json:"manager,omitempty"`
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	h.json(w, h.engine.Snapshot())
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	bindings, err := normalizeKeys(req.Bindings)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	instructions, err := normalizeKeys(req.Instructions)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := h.engine.Start(r.Context(), core.StartConfig{
		Topic:        req.Topic,
		NumAgents:    req.NumAgents,
		NumRounds:    req.NumRounds,
		Bindings:     bindings,
		Instructions: instructions,
		Manager:      req.Manager,
	})
	if err != nil {
		h.engineError(w, err)
		return
	}

	h.jsonStatus(w, http.StatusCreated, snap)
}

// detached keeps a round running when the client disconnects; Reset still cancels it.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (h *Handler) handleRunRound(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.RunCurrentRound(detached(r))
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.json(w, snap)
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Advance()
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.json(w, snap)
}

// ConcludeResponse is returned by POST /api/session/conclude.
type ConcludeResponse struct {
	Session      *core.Session `json:"session"`
	Path         string        `json:"path,omitempty"`
	PersistError string        `json:"persist_error,omitempty"`
}

func (h *Handler) handleConclude(w http.ResponseWriter, r *http.Request) {
	snap, path, err := h.engine.SynthesizeAndPersist(detached(r))

	var perr *core.PersistenceError
	if err != nil && !errors.As(err, &perr) {
		h.engineError(w, err)
		return
	}

	resp := ConcludeResponse{Session: snap, Path: path}
	if err != nil {
		resp.PersistError = err.Error()
	}
	h.json(w, resp)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.json(w, h.engine.Reset())
}

func (h *Handler) handleExportSession(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	if snap.ID == "" {
		h.jsonError(w, core.ErrNoSession.Error(), http.StatusNotFound)
		return
	}
	h.export(w, snap, chi.URLParam(r, "format"))
}

// Backend handlers

// BackendInfo describes one registered backend.
type BackendInfo struct {
	Name    string `json:"name"`
	Manager bool   `json:"manager"`
}

func (h *Handler) handleBackends(w http.ResponseWriter, r *http.Request) {
	manager := h.engine.DefaultManager()
	names := h.registry.Names()

	result := make([]BackendInfo, 0, len(names))
	for _, name := range names {
		result = append(result, BackendInfo{Name: name, Manager: name == manager})
	}
	h.json(w, result)
}

func (h *Handler) handlePersonas(w http.ResponseWriter, r *http.Request) {
	h.json(w, persona.DefaultPersonas())
}

func (h *Handler) handleBackendsHealth(w http.ResponseWriter, r *http.Request) {
	result := make(map[string]provider.HealthStatus)
	for _, g := range h.registry.List() {
		result[g.Name()] = h.checkHealth(r.Context(), g)
	}

	h.json(w, map[string]interface{}{
		"backends": result,
	})
}

func (h *Handler) handleBackendHealth(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	g, err := h.registry.Get(name)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	h.json(w, h.checkHealth(r.Context(), g))
}

func (h *Handler) checkHealth(ctx context.Context, g provider.Generator) provider.HealthStatus {
	if status, ok := h.healthCache.Lookup(g.Name()); ok {
		return status
	}
	status := provider.HealthCheck(ctx, g, h.healthTimeout)
	h.healthCache.Record(status)
	return status
}

// Agent configuration handlers

func (h *Handler) handleGetInstructions(w http.ResponseWriter, r *http.Request) {
	instructions, err := h.storage.LoadCustomInstructions()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.json(w, instructions)
}

func (h *Handler) handlePutInstructions(w http.ResponseWriter, r *http.Request) {
	instructions, ok := h.decodeAgentMap(w, r)
	if !ok {
		return
	}
	for agentID, text := range instructions {
		if _, err := persona.Expand(text); err != nil {
			h.jsonError(w, fmt.Sprintf("%s: %v", agentID, err), http.StatusBadRequest)
			return
		}
	}
	if err := h.storage.SaveCustomInstructions(instructions); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.handleGetInstructions(w, r)
}

func (h *Handler) handleGetBindings(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.storage.LoadModelBindings()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.json(w, bindings)
}

func (h *Handler) handlePutBindings(w http.ResponseWriter, r *http.Request) {
	bindings, ok := h.decodeAgentMap(w, r)
	if !ok {
		return
	}
	for agentID, backend := range bindings {
		if backend != "" && !h.registry.Has(backend) {
			h.jsonError(w, fmt.Sprintf("%s is bound to unknown backend %q", agentID, backend), http.StatusBadRequest)
			return
		}
	}
	if err := h.storage.SaveModelBindings(bindings); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.handleGetBindings(w, r)
}

func (h *Handler) decodeAgentMap(w http.ResponseWriter, r *http.Request) (map[string]string, bool) {
	var raw map[string]string
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return nil, false
	}
	m, err := normalizeKeys(raw)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, true
}

// normalizeKeys rewrites "2" or "agent2" keys to "Agent 2". A nil map stays nil.
func normalizeKeys(m map[string]string) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		id, err := core.NormalizeAgentID(k)
		if err != nil {
			return nil, err
		}
		out[id] = strings.TrimSpace(v)
	}
	return out, nil
}

// Archive handlers

func (h *Handler) handleListDebates(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	if limit <= 0 {
		limit = 20
	}

	debates, err := h.storage.ListDebates(limit, offset)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if debates == nil {
		debates = []*core.DebateSummary{}
	}

	h.json(w, debates)
}

func (h *Handler) getDebate(w http.ResponseWriter, r *http.Request) (*core.Session, bool) {
	id := chi.URLParam(r, "id")
	debate, err := h.storage.GetDebate(id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if debate == nil {
		h.jsonError(w, "debate not found", http.StatusNotFound)
		return nil, false
	}
	return debate, true
}

func (h *Handler) handleGetDebate(w http.ResponseWriter, r *http.Request) {
	if debate, ok := h.getDebate(w, r); ok {
		h.json(w, debate)
	}
}

func (h *Handler) handleDeleteDebate(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.getDebate(w, r); !ok {
		return
	}
	if err := h.storage.DeleteDebate(chi.URLParam(r, "id")); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleExportDebate(w http.ResponseWriter, r *http.Request) {
	if debate, ok := h.getDebate(w, r); ok {
		h.export(w, debate, chi.URLParam(r, "format"))
	}
}

func (h *Handler) export(w http.ResponseWriter, session *core.Session, format string) {
	f, err := export.ParseFormat(format)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	exporter, err := export.GetExporter(f)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	filename := export.GenerateFilename(session, exporter.FileExtension())
	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))

	if err := exporter.Export(session, w); err != nil {
		slog.Error("Export failed", "debate_id", session.ID, "format", format, "error", err)
		http.Error(w, "Export failed", http.StatusInternalServerError)
	}
}

// Helper methods

func (h *Handler) json(w http.ResponseWriter, data interface{}) {
	h.jsonStatus(w, http.StatusOK, data)
}

func (h *Handler) jsonStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	h.jsonStatus(w, code, map[string]string{"error": message})
}

// engineError maps engine failures to HTTP status codes.
func (h *Handler) engineError(w http.ResponseWriter, err error) {
	var cfgErr *core.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		h.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, core.ErrNoSession):
		h.jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, core.ErrRoundInFlight),
		errors.Is(err, core.ErrSessionReset):
		h.jsonError(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("Engine error", "error", err)
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}
