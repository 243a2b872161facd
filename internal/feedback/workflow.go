// Package feedback implements the end-of-session feedback workflow: upload
// the session's accumulated audio and current graph snapshot to the object
// store, append a row to the analytics warehouse, and report the result.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/speechgraph/core/internal/graph"
	"github.com/speechgraph/core/pkg/objectstore"
	"github.com/speechgraph/core/pkg/warehouse"
)

// Submission is a client-reported feedback frame.
type Submission struct {
	Rating  int // 1..5
	Comment string
}

// Result reports where the uploaded artifacts landed, returned to the
// client in a FEEDBACK_RESULT frame.
type Result struct {
	AudioURI string
	GraphURI string
}

// Workflow executes the feedback upload-and-record pipeline described in
// spec.md §4.1's feedback frame handling. The server builds a Workflow only
// when feedback is enabled, and the router treats a nil *Workflow as
// feedback disabled. Submit always requires both ObjectStore and Warehouse
// to be set, matching the config validation rule that feedback.enabled
// requires both providers.
type Workflow struct {
	ObjectStore objectstore.Store
	Warehouse   warehouse.Writer
	Table       string
}

// New creates a feedback [Workflow] backed by the given object store and
// warehouse writer, appending rows to table.
func New(store objectstore.Store, wh warehouse.Writer, table string) *Workflow {
	return &Workflow{ObjectStore: store, Warehouse: wh, Table: table}
}

// Submit uploads the session's audio and current graph snapshot, then
// records a warehouse row. audioCodec is used only to pick a file
// extension for the uploaded object key.
func (w *Workflow) Submit(ctx context.Context, sessionID string, audio []byte, audioCodec string, g *graph.SessionGraph, sub Submission) (Result, error) {
	now := time.Now().UTC()

	var res Result

	if len(audio) > 0 {
		audioKey := fmt.Sprintf("audio/%04d/%02d/%02d/%02d/%s_%d.%s",
			now.Year(), now.Month(), now.Day(), now.Hour(), sessionID, now.UnixNano(), audioCodec)
		uri, err := w.ObjectStore.Put(ctx, audioKey, audio)
		if err != nil {
			return Result{}, fmt.Errorf("feedback: upload audio: %w", err)
		}
		res.AudioURI = uri
	}

	if g != nil {
		graphJSON, err := json.Marshal(g)
		if err != nil {
			return Result{}, fmt.Errorf("feedback: marshal graph snapshot: %w", err)
		}
		graphKey := fmt.Sprintf("graphs/%04d/%02d/%02d/%s_v%d.json",
			now.Year(), now.Month(), now.Day(), sessionID, g.Version)
		uri, err := w.ObjectStore.Put(ctx, graphKey, graphJSON)
		if err != nil {
			return Result{}, fmt.Errorf("feedback: upload graph snapshot: %w", err)
		}
		res.GraphURI = uri
	}

	var graphVersion, entityCount, relationCount int
	if g != nil {
		graphVersion = g.Version
		entityCount = len(g.Entities)
		relationCount = len(g.Relations)
	}

	row := map[string]any{
		"session_id":     sessionID,
		"rating":         sub.Rating,
		"comment":        sub.Comment,
		"audio_uri":      res.AudioURI,
		"graph_uri":      res.GraphURI,
		"graph_version":  graphVersion,
		"entity_count":   entityCount,
		"relation_count": relationCount,
		"created_at":     now,
	}
	if err := w.Warehouse.WriteRow(ctx, w.Table, row); err != nil {
		return Result{}, fmt.Errorf("feedback: write warehouse row: %w", err)
	}

	return res, nil
}
