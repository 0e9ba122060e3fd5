package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

// handleSessionStream streams session snapshots using Server-Sent Events.
// It emits "session" on every change and closes after "session_concluded"
// or "session_reset".
func (h *Handler) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	slog.Debug("New session stream connection", "remote_addr", r.RemoteAddr)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.jsonError(w, "streaming not supported by this connection", http.StatusInternalServerError)
		return
	}

	snap := h.engine.Snapshot()
	if snap.ID == "" {
		h.sendSSEError(w, flusher, core.ErrNoSession.Error())
		return
	}

	h.sendSSEEvent(w, flusher, "session", snap)
	if snap.IsConcluded() {
		h.sendSSEEvent(w, flusher, "session_concluded", snap)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	id, lastUpdate, lastStatus := snap.ID, snap.UpdatedAt, snap.Status

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Stream context done", "id", id)
			return
		case <-ticker.C:
			updated := h.engine.Snapshot()

			if updated.ID != id {
				slog.Debug("Session reset during stream", "id", id)
				h.sendSSEEvent(w, flusher, "session_reset", updated)
				return
			}

			if updated.UpdatedAt.Equal(lastUpdate) && updated.Status == lastStatus {
				continue
			}
			lastUpdate, lastStatus = updated.UpdatedAt, updated.Status
			h.sendSSEEvent(w, flusher, "session", updated)

			if updated.IsConcluded() {
				h.sendSSEEvent(w, flusher, "session_concluded", updated)
				return
			}
		}
	}
}

// sendSSEEvent writes one event frame. Write errors mean the client went
// away, so they are only logged at debug level.
func (h *Handler) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to encode stream event", "event", event, "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, body); err != nil {
		slog.Debug("Stream client gone", "event", event, "error", err)
		return
	}
	flusher.Flush()
}

func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, message string) {
	h.sendSSEEvent(w, flusher, "error", map[string]string{"message": message})
}
