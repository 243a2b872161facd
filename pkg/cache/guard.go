// Package cache defines the durable backing store for session knowledge
// graphs and a fail-soft wrapper around it.
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/speechgraph/core/internal/graph"
)

// Guard wraps a [graph.Store] and makes its operations non-fatal. If the
// underlying store fails, writes are swallowed and reads fall back to an
// empty graph — letting the server keep serving a session in memory while
// the cache backend is unavailable. IsDegraded reports whether the most
// recent operation failed.
//
// All methods are safe for concurrent use.
type Guard struct {
	store    graph.Store
	degraded atomic.Bool
}

// NewGuard creates a [Guard] wrapping store.
func NewGuard(store graph.Store) *Guard {
	return &Guard{store: store}
}

var _ graph.Store = (*Guard)(nil)

// LoadGraph attempts to load a session's graph. On failure it logs a
// warning and returns (nil, nil) so the caller starts from an empty graph.
func (g *Guard) LoadGraph(ctx context.Context, sessionID string) (*graph.SessionGraph, error) {
	sg, err := g.store.LoadGraph(ctx, sessionID)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("cache guard: LoadGraph failed, starting empty", "session_id", sessionID, "err", err)
		return nil, nil
	}
	g.degraded.Store(false)
	return sg, nil
}

// SaveGraph attempts to persist a session's graph. On failure the error is
// logged and swallowed.
func (g *Guard) SaveGraph(ctx context.Context, sessionID string, sg *graph.SessionGraph) error {
	if err := g.store.SaveGraph(ctx, sessionID, sg); err != nil {
		g.degraded.Store(true)
		slog.Warn("cache guard: SaveGraph failed, swallowing error", "session_id", sessionID, "err", err)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// SaveSnapshot attempts to persist a full snapshot. On failure the error is
// logged and swallowed.
func (g *Guard) SaveSnapshot(ctx context.Context, sessionID string, sg *graph.SessionGraph) error {
	if err := g.store.SaveSnapshot(ctx, sessionID, sg); err != nil {
		g.degraded.Store(true)
		slog.Warn("cache guard: SaveSnapshot failed, swallowing error", "session_id", sessionID, "err", err)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// DeleteGraph attempts to delete a session's persisted graph. On failure
// the error is logged and swallowed.
func (g *Guard) DeleteGraph(ctx context.Context, sessionID string) error {
	if err := g.store.DeleteGraph(ctx, sessionID); err != nil {
		g.degraded.Store(true)
		slog.Warn("cache guard: DeleteGraph failed, swallowing error", "session_id", sessionID, "err", err)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// IsDegraded reports whether the most recent operation on the underlying
// store failed.
func (g *Guard) IsDegraded() bool {
	return g.degraded.Load()
}
