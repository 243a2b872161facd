// Package postgres implements [warehouse.Writer] on top of PostgreSQL,
// reusing the same pgx connection pool idiom as pkg/cache/postgres.
package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/speechgraph/core/pkg/warehouse"
)

// Writer appends rows to warehouse tables via a pgx connection pool.
type Writer struct {
	pool *pgxpool.Pool
}

// New opens a connection pool to dsn.
func New(ctx context.Context, dsn string) (*Writer, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("warehouse/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("warehouse/postgres: ping: %w", err)
	}
	return &Writer{pool: pool}, nil
}

var _ warehouse.Writer = (*Writer)(nil)

// Close releases the underlying connection pool.
func (w *Writer) Close() {
	w.pool.Close()
}

// WriteRow inserts row into table. Column order is sorted for determinism;
// table is never user-supplied in practice (it comes from [config.FeedbackConfig]),
// but is still validated to contain only identifier-safe characters.
func (w *Writer) WriteRow(ctx context.Context, table string, row map[string]any) error {
	if !isValidIdentifier(table) {
		return fmt.Errorf("warehouse/postgres: invalid table name %q", table)
	}

	cols := make([]string, 0, len(row))
	for col := range row {
		if !isValidIdentifier(col) {
			return fmt.Errorf("warehouse/postgres: invalid column name %q", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	args := make([]any, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	for _, col := range cols {
		args = append(args, row[col])
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)
	if _, err := w.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("warehouse/postgres: insert into %s: %w", table, err)
	}
	return nil
}

var _ warehouse.Analyzer = (*Writer)(nil)

// FeedbackAnalytics aggregates the row count and average rating for table.
func (w *Writer) FeedbackAnalytics(ctx context.Context, table string) (warehouse.FeedbackAnalytics, error) {
	if !isValidIdentifier(table) {
		return warehouse.FeedbackAnalytics{}, fmt.Errorf("warehouse/postgres: invalid table name %q", table)
	}

	var a warehouse.FeedbackAnalytics
	query := fmt.Sprintf("SELECT COUNT(*), COALESCE(AVG(rating), 0) FROM %s", table)
	if err := w.pool.QueryRow(ctx, query).Scan(&a.Count, &a.AverageRating); err != nil {
		return warehouse.FeedbackAnalytics{}, fmt.Errorf("warehouse/postgres: aggregate %s: %w", table, err)
	}
	return a, nil
}

func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
