// Package httpapi provides the management HTTP surface described in
// spec.md §6.3: identity, health, and a thin per-session graph/feedback
// admin API. It sits alongside the websocket upgrade endpoint the
// [pipeline.Router] serves, on the same *http.ServeMux.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/speechgraph/core/internal/graph"
	"github.com/speechgraph/core/internal/session"
	"github.com/speechgraph/core/pkg/warehouse"
)

// checkTimeout is the timeout of the context health derives from the
// request. health only reads the cache's degraded flag and makes no call
// that waits on the cache or uses that context.
const checkTimeout = 5 * time.Second

// degradedChecker reports whether the graph store backing a [graph.Manager]
// is currently unreachable. [cache.Guard] satisfies this.
type degradedChecker interface {
	IsDegraded() bool
}

// Handler serves the management routes. A nil Warehouse or empty
// FeedbackTable makes the analytics endpoint respond 501; a nil
// DegradedChecker makes /health always report healthy.
type Handler struct {
	Sessions        *session.Registry
	Graph           *graph.Manager
	DegradedChecker degradedChecker
	Warehouse       warehouse.Writer
	FeedbackTable   string
}

// Register adds the management routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.identity)
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /api/graph/{session}", h.getGraph)
	mux.HandleFunc("DELETE /api/graph/{session}", h.deleteGraph)
	mux.HandleFunc("GET /api/feedback/analytics", h.feedbackAnalytics)
}

type identityResponse struct {
	Service string `json:"service"`
}

func (h *Handler) identity(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, identityResponse{Service: "speechgraph"})
}

type healthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"activeSessions"`
}

// health reports degraded (but still 200, per spec.md §6.3's "degraded if
// cache unreachable" rather than a hard failure) when the graph store's
// most recent operation failed.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	_, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	status := "ok"
	if h.DegradedChecker != nil && h.DegradedChecker.IsDegraded() {
		status = "degraded"
	}
	resp := healthResponse{Status: status}
	if h.Sessions != nil {
		resp.ActiveSessions = h.Sessions.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

// getGraph serves the current [graph.SessionGraph] for the path's session
// id. A session with no extraction history yet still returns an empty
// graph at version 0, matching [graph.Manager.State]'s own contract.
func (h *Handler) getGraph(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	g := h.Graph.State(r.Context(), sessionID)
	writeJSON(w, http.StatusOK, g)
}

// deleteGraph resets the session's graph to empty, both in memory and in
// the durable store.
func (h *Handler) deleteGraph(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	if err := h.Graph.Reset(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// feedbackAnalytics aggregates the feedback table's rows via the
// [warehouse.Analyzer] capability, when the configured Warehouse supports
// it. Not every warehouse backend can serve reads back out of an
// append-only sink, so this responds 501 rather than erroring when it
// can't.
func (h *Handler) feedbackAnalytics(w http.ResponseWriter, r *http.Request) {
	if h.Warehouse == nil || h.FeedbackTable == "" {
		writeError(w, http.StatusNotImplemented, "feedback analytics not configured")
		return
	}
	analyzer, ok := h.Warehouse.(warehouse.Analyzer)
	if !ok {
		writeError(w, http.StatusNotImplemented, "configured warehouse does not support analytics queries")
		return
	}
	result, err := analyzer.FeedbackAnalytics(r.Context(), h.FeedbackTable)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
