package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the durable backing for session graphs. Implementations persist
// full graph snapshots and are consulted on first access and on every
// successful extraction.
type Store interface {
	LoadGraph(ctx context.Context, sessionID string) (*SessionGraph, error)
	SaveGraph(ctx context.Context, sessionID string, g *SessionGraph) error
	SaveSnapshot(ctx context.Context, sessionID string, g *SessionGraph) error
	DeleteGraph(ctx context.Context, sessionID string) error
}

// snapshotEvery controls how often (in graph versions) a full snapshot is
// written in addition to the incremental save, per spec.md §4.8 step 5.
const snapshotEvery = 10

// sessionLock pairs a graph with the mutex guarding it.
type sessionLock struct {
	mu    sync.Mutex
	graph *SessionGraph
}

// Manager owns every in-memory SessionGraph for the server and is the sole
// writer to the durable cache copy. All methods are safe for concurrent use
// across sessions; a per-session lock serializes access within one session.
type Manager struct {
	store Store

	mu       sync.Mutex
	sessions map[string]*sessionLock
}

// NewManager returns a [Manager] backed by store.
func NewManager(store Store) *Manager {
	return &Manager{
		store:    store,
		sessions: make(map[string]*sessionLock),
	}
}

// lockFor returns (creating if necessary) the sessionLock for id. It does
// not load the graph; [Manager.ensureLoaded] does that under sl.mu.
func (m *Manager) lockFor(ctx context.Context, sessionID string) *sessionLock {
	m.mu.Lock()
	sl, ok := m.sessions[sessionID]
	if !ok {
		sl = &sessionLock{}
		m.sessions[sessionID] = sl
	}
	m.mu.Unlock()
	return sl
}

// ensureLoaded lazily loads a session's graph from the store. Called with
// sl.mu held.
func (m *Manager) ensureLoaded(ctx context.Context, sessionID string, sl *sessionLock) {
	if sl.graph != nil {
		return
	}
	g, err := m.store.LoadGraph(ctx, sessionID)
	if err != nil {
		slog.Warn("graph: load from cache failed, starting empty", "session_id", sessionID, "err", err)
		g = nil
	}
	if g == nil {
		g = NewSessionGraph(sessionID)
	}
	sl.graph = g
}

// ApplyExtraction reconciles an [ExtractionResult] against the session's
// graph and returns the resulting [Delta] plus the accumulated
// temp-id-to-persistent-id map, following the procedure in spec.md §4.8.
func (m *Manager) ApplyExtraction(ctx context.Context, sessionID string, result ExtractionResult, priorIDMap map[string]string) (Delta, map[string]string) {
	sl := m.lockFor(ctx, sessionID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	m.ensureLoaded(ctx, sessionID, sl)
	g := sl.graph

	idMap := make(map[string]string, len(priorIDMap)+len(result.Entities))
	for k, v := range priorIDMap {
		idMap[k] = v
	}

	delta := Delta{SessionID: sessionID, FromVersion: g.Version}
	changed := false
	now := time.Now()

	for _, ex := range result.Entities {
		match := matchEntity(g.Entities, ex.Label, ex.Type)
		if match != nil {
			idMap[ex.TempID] = match.ID
			if match.Supersedes(ex.Label) {
				match.Label = ex.Label
				match.UpdatedAt = now
				delta.UpdatedEntities = append(delta.UpdatedEntities, match)
				changed = true
			}
			continue
		}

		newID := uuid.NewString()
		entity := &Entity{
			ID:        newID,
			Label:     ex.Label,
			Type:      ex.Type,
			CreatedAt: now,
			UpdatedAt: now,
		}
		g.Entities[newID] = entity
		idMap[ex.TempID] = newID
		delta.AddedEntities = append(delta.AddedEntities, entity)
		changed = true
	}

	for _, ex := range result.Relations {
		sourceID, ok := resolveEndpoint(ex.Source, idMap, g.Entities)
		if !ok {
			slog.Warn("graph: relation source unresolved, skipping", "session_id", sessionID, "source", ex.Source)
			continue
		}
		targetID, ok := resolveEndpoint(ex.Target, idMap, g.Entities)
		if !ok {
			slog.Warn("graph: relation target unresolved, skipping", "session_id", sessionID, "target", ex.Target)
			continue
		}

		if relationDuplicate(g.Relations, sourceID, targetID, ex.Phrase) {
			continue
		}

		rel := &Relation{
			ID:        uuid.NewString(),
			SourceID:  sourceID,
			TargetID:  targetID,
			Phrase:    ex.Phrase,
			CreatedAt: now,
		}
		g.Relations[rel.ID] = rel
		delta.AddedRelations = append(delta.AddedRelations, rel)
		changed = true
	}

	if changed {
		g.Version++
		g.LastUpdated = now
		if err := m.store.SaveGraph(ctx, sessionID, g); err != nil {
			slog.Warn("graph: save failed", "session_id", sessionID, "err", err)
		}
		if g.Version%snapshotEvery == 0 {
			if err := m.store.SaveSnapshot(ctx, sessionID, g); err != nil {
				slog.Warn("graph: snapshot save failed", "session_id", sessionID, "err", err)
			}
		}
	}
	delta.ToVersion = g.Version

	return delta, idMap
}

// resolveEndpoint resolves a relation endpoint reference (a temp id or a
// label) to a persistent entity id, first via idMap and then via
// normalized-label match against the graph.
func resolveEndpoint(ref string, idMap map[string]string, entities map[string]*Entity) (string, bool) {
	if id, ok := idMap[ref]; ok {
		return id, true
	}
	if _, ok := entities[ref]; ok {
		return ref, true
	}
	normRef := normalizeLabel(ref)
	for _, e := range entities {
		if normalizeLabel(e.Label) == normRef {
			return e.ID, true
		}
	}
	return "", false
}

// State returns a defensive snapshot of a session's current graph.
func (m *Manager) State(ctx context.Context, sessionID string) *SessionGraph {
	sl := m.lockFor(ctx, sessionID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	m.ensureLoaded(ctx, sessionID, sl)
	return cloneGraph(sl.graph)
}

// Reset replaces a session's graph with an empty graph at version 0 and
// persists the reset.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	sl := m.lockFor(ctx, sessionID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.graph = NewSessionGraph(sessionID)
	if err := m.store.SaveGraph(ctx, sessionID, sl.graph); err != nil {
		return fmt.Errorf("graph: reset save: %w", err)
	}
	return nil
}

// Forget removes a session's in-memory graph lock and deletes its durable
// copy, used when a session's purge-on-close flag is set.
func (m *Manager) Forget(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if err := m.store.DeleteGraph(ctx, sessionID); err != nil {
		return fmt.Errorf("graph: forget: %w", err)
	}
	return nil
}

// cloneGraph returns a shallow defensive copy of g safe to hand to callers
// outside the manager's lock.
func cloneGraph(g *SessionGraph) *SessionGraph {
	clone := &SessionGraph{
		SessionID:   g.SessionID,
		Version:     g.Version,
		LastUpdated: g.LastUpdated,
		Entities:    make(map[string]*Entity, len(g.Entities)),
		Relations:   make(map[string]*Relation, len(g.Relations)),
	}
	for id, e := range g.Entities {
		cp := *e
		clone.Entities[id] = &cp
	}
	for id, r := range g.Relations {
		cp := *r
		clone.Relations[id] = &cp
	}
	return clone
}
