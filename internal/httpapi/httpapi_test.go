package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/speechgraph/core/internal/graph"
	"github.com/speechgraph/core/internal/session"
)

type memStore struct {
	mu     sync.Mutex
	graphs map[string]*graph.SessionGraph
}

func newMemStore() *memStore { return &memStore{graphs: make(map[string]*graph.SessionGraph)} }

func (s *memStore) LoadGraph(_ context.Context, sessionID string) (*graph.SessionGraph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graphs[sessionID], nil
}

func (s *memStore) SaveGraph(_ context.Context, sessionID string, g *graph.SessionGraph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphs[sessionID] = g
	return nil
}

func (s *memStore) SaveSnapshot(ctx context.Context, sessionID string, g *graph.SessionGraph) error {
	return s.SaveGraph(ctx, sessionID, g)
}

func (s *memStore) DeleteGraph(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.graphs, sessionID)
	return nil
}

type fakeDegradedChecker struct{ degraded bool }

func (f fakeDegradedChecker) IsDegraded() bool { return f.degraded }

func newTestHandler() (*Handler, *httptest.Server) {
	h := &Handler{
		Sessions: session.NewRegistry(),
		Graph:    graph.NewManager(newMemStore()),
	}
	mux := http.NewServeMux()
	h.Register(mux)
	return h, httptest.NewServer(mux)
}

func TestIdentity_ReturnsServiceName(t *testing.T) {
	_, srv := newTestHandler()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHealth_ReportsOKWhenNoCheckerConfigured(t *testing.T) {
	_, srv := newTestHandler()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHealth_ReportsDegradedWhenCheckerFails(t *testing.T) {
	h, srv := newTestHandler()
	h.DegradedChecker = fakeDegradedChecker{degraded: true}
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestGetGraph_ReturnsEmptyGraphForUnknownSession(t *testing.T) {
	_, srv := newTestHandler()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/graph/sess-1")
	if err != nil {
		t.Fatalf("GET /api/graph/sess-1: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestDeleteGraph_ResetsSession(t *testing.T) {
	h, srv := newTestHandler()
	defer srv.Close()

	h.Graph.State(context.Background(), "sess-1")

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/graph/sess-1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /api/graph/sess-1: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}

func TestFeedbackAnalytics_NotImplementedWhenUnconfigured(t *testing.T) {
	_, srv := newTestHandler()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/feedback/analytics")
	if err != nil {
		t.Fatalf("GET /api/feedback/analytics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", resp.StatusCode)
	}
}
