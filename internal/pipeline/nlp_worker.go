package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/speechgraph/core/internal/observe"
	"github.com/speechgraph/core/internal/session"
	"github.com/speechgraph/core/internal/transport"
)

// forceFlushPollInterval is how often the NLP worker checks the buffer for
// an idle force-flush while no new transcript has arrived.
const forceFlushPollInterval = 250 * time.Millisecond

// runNLPWorker maintains a rolling [SentenceBuffer], carving off complete
// sentences as transcripts arrive and force-flushing an idle buffer, per
// spec.md §4.5. Every finalized sentence is sent to the client as a
// final-transcript frame and enqueued to the sentence queue. The error
// return always carries nil; it exists only so the session router can run
// every worker under a single golang.org/x/sync/errgroup.Group.
func runNLPWorker(ctx context.Context, q *Queues, st *session.State, metrics *observe.Metrics) error {
	buf := NewSentenceBuffer()
	ticker := time.NewTicker(forceFlushPollInterval)
	defer ticker.Stop()

	var sentenceSeq uint64

	emit := func(s Sentence, lang string) {
		sentenceSeq++
		segmentID := fmt.Sprintf("%s#%d", st.ID(), sentenceSeq)

		start := time.Now()
		defer func() {
			if metrics != nil {
				metrics.SentenceDetectionDuration.Record(ctx, time.Since(start).Seconds())
			}
		}()

		if !q.PushOutbound(ctx, OutboundItem{Kind: string(transport.KindSTTFinal), Payload: transport.STTFinalPayload{
			Text:       s.Text,
			Confidence: s.Confidence,
			SegmentID:  segmentID,
			IsComplete: true,
		}}) {
			if metrics != nil {
				metrics.RecordMessageDropped(ctx, "outbound")
			}
		}
		if !q.PushSentence(ctx, SentenceItem{Text: s.Text, LanguageCode: lang}) {
			if metrics != nil {
				metrics.RecordMessageDropped(ctx, "sentence")
			}
		}
	}

	for {
		if !st.IsActive() {
			flushRemaining(buf, emit)
			return nil
		}
		select {
		case <-ctx.Done():
			flushRemaining(buf, emit)
			return nil
		case item, ok := <-q.Text:
			if !ok {
				flushRemaining(buf, emit)
				return nil
			}
			st.NoteLanguage(item.LanguageCode)
			lang := buf.DominantLanguage()
			for _, s := range buf.Append(item.Text, item.LanguageCode) {
				emit(s, lang)
			}
		case <-ticker.C:
			if buf.ShouldForceFlush(time.Now()) {
				lang := buf.DominantLanguage()
				if s := buf.Flush(); s != nil {
					emit(*s, lang)
				}
			}
		}
	}
}

func flushRemaining(buf *SentenceBuffer, emit func(Sentence, string)) {
	lang := buf.DominantLanguage()
	if s := buf.Flush(); s != nil {
		emit(*s, lang)
	}
}
