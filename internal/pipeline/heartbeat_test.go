package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/speechgraph/core/internal/config"
	"github.com/speechgraph/core/internal/transport"
)

func TestHeartbeat_SendsPingOnTick(t *testing.T) {
	server, client, cleanup := newServerConn(t)
	defer cleanup()

	st := newTestSession()
	cfg := config.HeartbeatConfig{Tick: 20 * time.Millisecond, InactiveTimeout: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { runHeartbeat(ctx, server, st, cfg, nil); close(done) }()

	_, data, err := client.Read(context.Background())
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	var env transport.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != transport.KindPing {
		t.Errorf("type = %q, want PING", env.Type)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("heartbeat did not shut down promptly")
	}
}

func TestHeartbeat_DeactivatesSessionAfterInactiveTimeout(t *testing.T) {
	server, _, cleanup := newServerConn(t)
	defer cleanup()

	st := newTestSession()
	st.Touch()
	cfg := config.HeartbeatConfig{Tick: 10 * time.Millisecond, InactiveTimeout: 5 * time.Millisecond}

	done := make(chan struct{})
	go func() { runHeartbeat(context.Background(), server, st, cfg, nil); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("heartbeat did not return after the inactive timeout elapsed")
	}
	if st.IsActive() {
		t.Error("expected the session to be deactivated after the inactive timeout")
	}
}
