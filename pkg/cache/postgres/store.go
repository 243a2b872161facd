// Package postgres implements [graph.Store] on top of PostgreSQL using
// pgx. When embedding dimensions are configured, migration adds a pgvector
// embedding column to the entity table; no code in this package reads or
// writes that column.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/speechgraph/core/internal/graph"
)

// Store persists session graphs to PostgreSQL. Entities, relations, and
// graph metadata each live in their own table keyed by session id.
type Store struct {
	pool                *pgxpool.Pool
	embeddingDimensions int
}

// New opens a connection pool to dsn, registers pgvector types on every new
// connection, runs the schema migration, and returns a ready-to-use [Store].
// embeddingDimensions configures the width of the optional entity embedding
// column; pass 0 to disable it.
func New(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("cache/postgres: parse dsn: %w", err)
	}
	if embeddingDimensions > 0 {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("cache/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cache/postgres: ping: %w", err)
	}

	s := &Store{pool: pool, embeddingDimensions: embeddingDimensions}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cache/postgres: migrate: %w", err)
	}
	return s, nil
}

var _ graph.Store = (*Store)(nil)

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS session_graphs (
			session_id TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS graph_entities (
			session_id TEXT NOT NULL,
			id TEXT NOT NULL,
			label TEXT NOT NULL,
			type TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS graph_relations (
			session_id TEXT NOT NULL,
			id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			phrase TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS graph_snapshots (
			session_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			taken_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, version)
		)`,
	}
	if s.embeddingDimensions > 0 {
		stmts = append(stmts, fmt.Sprintf(
			`ALTER TABLE graph_entities ADD COLUMN IF NOT EXISTS embedding vector(%d)`,
			s.embeddingDimensions,
		))
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

// LoadGraph reads a session's full graph from PostgreSQL. Returns (nil, nil)
// if no graph is stored for sessionID.
func (s *Store) LoadGraph(ctx context.Context, sessionID string) (*graph.SessionGraph, error) {
	var version int
	var lastUpdated time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT version, last_updated FROM session_graphs WHERE session_id = $1`,
		sessionID,
	).Scan(&version, &lastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load graph metadata: %w", err)
	}

	g := graph.NewSessionGraph(sessionID)
	g.Version = version
	g.LastUpdated = lastUpdated

	rows, err := s.pool.Query(ctx,
		`SELECT id, label, type, created_at, updated_at FROM graph_entities WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	for rows.Next() {
		var e graph.Entity
		var entityType string
		if err := rows.Scan(&e.ID, &e.Label, &entityType, &e.CreatedAt, &e.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.Type = graph.NormalizeEntityType(entityType)
		cp := e
		g.Entities[cp.ID] = &cp
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}

	relRows, err := s.pool.Query(ctx,
		`SELECT id, source_id, target_id, phrase, created_at FROM graph_relations WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load relations: %w", err)
	}
	for relRows.Next() {
		var r graph.Relation
		if err := relRows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Phrase, &r.CreatedAt); err != nil {
			relRows.Close()
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		cp := r
		g.Relations[cp.ID] = &cp
	}
	relRows.Close()
	if err := relRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relations: %w", err)
	}

	return g, nil
}

// SaveGraph upserts a session's full graph. Entities and relations are
// upserted individually so a partial save never loses prior rows.
func (s *Store) SaveGraph(ctx context.Context, sessionID string, g *graph.SessionGraph) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO session_graphs (session_id, version, last_updated)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE SET version = $2, last_updated = $3`,
		sessionID, g.Version, g.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert graph metadata: %w", err)
	}

	for _, e := range g.Entities {
		_, err = tx.Exec(ctx,
			`INSERT INTO graph_entities (session_id, id, label, type, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (session_id, id) DO UPDATE
			 SET label = $3, type = $4, updated_at = $6`,
			sessionID, e.ID, e.Label, string(e.Type), e.CreatedAt, e.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert entity %s: %w", e.ID, err)
		}
	}

	for _, r := range g.Relations {
		_, err = tx.Exec(ctx,
			`INSERT INTO graph_relations (session_id, id, source_id, target_id, phrase, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (session_id, id) DO NOTHING`,
			sessionID, r.ID, r.SourceID, r.TargetID, r.Phrase, r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert relation %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// SaveSnapshot records that a full snapshot exists at g.Version. The
// underlying rows are already durable via SaveGraph; this only marks the
// snapshot boundary for later point-in-time inspection.
func (s *Store) SaveSnapshot(ctx context.Context, sessionID string, g *graph.SessionGraph) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO graph_snapshots (session_id, version, taken_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (session_id, version) DO NOTHING`,
		sessionID, g.Version,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// DeleteGraph removes all persisted rows for sessionID.
func (s *Store) DeleteGraph(ctx context.Context, sessionID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"graph_entities", "graph_relations", "graph_snapshots", "session_graphs"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1`, table), sessionID); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
