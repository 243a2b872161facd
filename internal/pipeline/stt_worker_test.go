package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/speechgraph/core/internal/config"
	"github.com/speechgraph/core/internal/session"
	"github.com/speechgraph/core/pkg/provider/stt"
	sttmock "github.com/speechgraph/core/pkg/provider/stt/mock"
)

func newTestQueues() *Queues {
	cfg := config.DefaultQueues()
	cfg.AudioWriteTimeout = 50 * time.Millisecond
	cfg.TextWriteTimeout = 50 * time.Millisecond
	cfg.OutboundWriteTimeout = 50 * time.Millisecond
	return NewQueues(cfg)
}

func newTestSession() *session.State {
	return session.New("sess-1", session.AudioFormat{Codec: "pcm16"}, nil, 1<<20, time.Minute)
}

func TestSTTWorker_EmitsPartialAndTextOnRecognition(t *testing.T) {
	provider := &sttmock.Provider{Results: []*stt.Result{
		{Text: "hello there", Confidence: 0.95, LanguageCode: "en"},
	}}
	q := newTestQueues()
	st := newTestSession()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { runSTTWorker(ctx, q, st, provider, nil); close(done) }()

	q.Audio <- AudioItem{Data: []byte("pcm"), Codec: "pcm16", SegmentID: "seg-1"}

	select {
	case item := <-q.Outbound:
		if item.Kind != "STT_PARTIAL" {
			t.Fatalf("outbound kind = %q, want STT_PARTIAL", item.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound STT_PARTIAL")
	}

	select {
	case text := <-q.Text:
		if text.Text != "hello there" || text.LanguageCode != "en" {
			t.Fatalf("unexpected text item: %+v", text)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for text queue item")
	}

	st.Deactivate()
	cancel()
	<-done
}

func TestSTTWorker_EmptyResultProducesNoOutput(t *testing.T) {
	provider := &sttmock.Provider{Results: []*stt.Result{nil}}
	q := newTestQueues()
	st := newTestSession()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { runSTTWorker(ctx, q, st, provider, nil); close(done) }()

	q.Audio <- AudioItem{Data: []byte("pcm"), SegmentID: "seg-1"}

	select {
	case item := <-q.Outbound:
		t.Fatalf("expected no outbound item, got %+v", item)
	case <-time.After(150 * time.Millisecond):
	}

	st.Deactivate()
	cancel()
	<-done
}

func TestSTTWorker_BacksOffAfterConsecutiveErrors(t *testing.T) {
	provider := &sttmock.Provider{Err: errors.New("provider down")}
	q := newTestQueues()
	st := newTestSession()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { runSTTWorker(ctx, q, st, provider, nil); close(done) }()

	go func() {
		for i := 0; i < maxConsecutiveSTTErrors; i++ {
			q.Audio <- AudioItem{Data: []byte("pcm"), SegmentID: "seg-1"}
		}
	}()

	// Give the worker time to exhaust its error budget and enter the 5 s
	// backoff sleep; cancelling ctx during that sleep should still return
	// promptly rather than waiting out the full backoff.
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit promptly when cancelled mid-backoff")
	}
}

func TestSTTWorker_StopsWhenSessionInactive(t *testing.T) {
	provider := &sttmock.Provider{}
	q := newTestQueues()
	st := newTestSession()
	st.Deactivate()

	done := make(chan struct{})
	go func() { runSTTWorker(context.Background(), q, st, provider, nil); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not return promptly for an inactive session")
	}
}
