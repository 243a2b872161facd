// Package pipeline implements the per-connection worker pipeline: the
// session router, the four bounded queues connecting its stages, and the
// STT/NLP/extraction/heartbeat/outbound workers described in spec.md §4.
package pipeline

import (
	"context"
	"time"

	"github.com/speechgraph/core/internal/config"
)

// Queues holds the four typed, single-producer/single-consumer channels
// wired between one connection's workers, sized and timed per spec.md §4.2.
type Queues struct {
	cfg config.QueuesConfig

	Audio    chan AudioItem
	Text     chan TextItem
	Sentence chan SentenceItem
	Outbound chan OutboundItem
}

// AudioItem is one audio frame handed from the router to the STT worker.
type AudioItem struct {
	Data          []byte
	Codec         string
	SampleRate    int
	Channels      int
	SegmentID     string
	LanguageCodes []string
	Duration      time.Duration
}

// TextItem is one recognized transcript handed from the STT worker to the
// NLP worker.
type TextItem struct {
	Text         string
	LanguageCode string
}

// SentenceItem is one finalized sentence handed from the NLP worker to the
// extraction worker.
type SentenceItem struct {
	Text         string
	LanguageCode string
}

// OutboundItem is one message queued for delivery to the client.
type OutboundItem struct {
	Kind    string
	Payload any
}

// NewQueues allocates the four queues at the capacities named in cfg.
func NewQueues(cfg config.QueuesConfig) *Queues {
	return &Queues{
		cfg:      cfg,
		Audio:    make(chan AudioItem, cfg.AudioCapacity),
		Text:     make(chan TextItem, cfg.TextCapacity),
		Sentence: make(chan SentenceItem, cfg.SentenceCapacity),
		Outbound: make(chan OutboundItem, cfg.OutboundCapacity),
	}
}

// PushAudio attempts to enqueue item, waiting up to the configured audio
// write timeout. Reports false (dropped) on timeout, matching spec.md
// §4.2's "500 ms producer wait, then drop" policy.
func (q *Queues) PushAudio(ctx context.Context, item AudioItem) bool {
	return push(ctx, q.Audio, item, q.cfg.AudioWriteTimeout)
}

// PushText attempts to enqueue item, waiting up to the configured text
// write timeout ("1 s producer wait, then drop").
func (q *Queues) PushText(ctx context.Context, item TextItem) bool {
	return push(ctx, q.Text, item, q.cfg.TextWriteTimeout)
}

// PushSentence enqueues item, waiting indefinitely — the sentence queue has
// no drop policy because its producer (the NLP worker) is itself bounded by
// the upstream text queue.
func (q *Queues) PushSentence(ctx context.Context, item SentenceItem) bool {
	select {
	case q.Sentence <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

// PushOutbound attempts to enqueue item, waiting up to the configured
// outbound write timeout ("1 s producer wait, then drop non-urgent").
func (q *Queues) PushOutbound(ctx context.Context, item OutboundItem) bool {
	return push(ctx, q.Outbound, item, q.cfg.OutboundWriteTimeout)
}

// push enqueues v on ch, waiting up to timeout (or until ctx is done)
// before reporting false.
func push[T any](ctx context.Context, ch chan T, v T, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- v:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
