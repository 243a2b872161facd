package pipeline

import (
	"context"
	"time"

	"github.com/speechgraph/core/internal/observe"
	"github.com/speechgraph/core/internal/session"
	"github.com/speechgraph/core/internal/transport"
	"github.com/speechgraph/core/pkg/provider/stt"
)

const (
	recognizeTimeout        = 30 * time.Second
	maxConsecutiveSTTErrors = 10
	sttErrorBackoff         = 5 * time.Second
)

// runSTTWorker drains the audio queue, calling provider.Recognize for each
// item with a 30 s timeout. Transient failures never reach the client: a
// single timeout or error increments a consecutive-error counter; after
// ten consecutive failures the worker sleeps 5 s and resets the counter,
// per spec.md §4.4. The error return always carries nil; it
// exists only so the session router can run every worker under a single
// golang.org/x/sync/errgroup.Group.
func runSTTWorker(ctx context.Context, q *Queues, st *session.State, provider stt.Provider, metrics *observe.Metrics) error {
	consecutiveErrs := 0

	for {
		if !st.IsActive() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case item, ok := <-q.Audio:
			if !ok {
				return nil
			}
			if !st.IsActive() {
				return nil
			}

			result, err := recognize(ctx, provider, item, metrics)
			if err != nil {
				consecutiveErrs++
				if consecutiveErrs >= maxConsecutiveSTTErrors {
					consecutiveErrs = 0
					select {
					case <-time.After(sttErrorBackoff):
					case <-ctx.Done():
						return nil
					}
				}
				continue
			}
			consecutiveErrs = 0
			if result == nil || result.Text == "" {
				continue
			}

			if !q.PushOutbound(ctx, OutboundItem{Kind: string(transport.KindSTTPartial), Payload: transport.STTPartialPayload{
				Text:         result.Text,
				Confidence:   result.Confidence,
				SegmentID:    item.SegmentID,
				LanguageCode: result.LanguageCode,
			}}) {
				if metrics != nil {
					metrics.RecordMessageDropped(ctx, "outbound")
				}
			}

			if !q.PushText(ctx, TextItem{Text: result.Text, LanguageCode: result.LanguageCode}) {
				if metrics != nil {
					metrics.RecordMessageDropped(ctx, "text")
				}
			}
		}
	}
}

func recognize(ctx context.Context, provider stt.Provider, item AudioItem, metrics *observe.Metrics) (*stt.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, recognizeTimeout)
	defer cancel()

	start := time.Now()
	result, err := provider.Recognize(callCtx, stt.Segment{
		Data:          item.Data,
		Format:        stt.AudioFormat{Codec: item.Codec, SampleRate: item.SampleRate, Channels: item.Channels},
		SegmentID:     item.SegmentID,
		LanguageCodes: item.LanguageCodes,
		Duration:      item.Duration,
	})
	if metrics != nil {
		metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
			metrics.RecordProviderError(ctx, "stt", "recognize")
		}
		metrics.RecordProviderRequest(ctx, "stt", "recognize", status)
	}
	return result, err
}
