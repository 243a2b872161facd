package resilience

import (
	"context"

	"github.com/speechgraph/core/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across
// multiple recognizer backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional recognizer as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Recognize sends the segment to the first healthy provider. If the primary
// fails or its breaker is open, subsequent fallbacks are tried in order.
func (f *STTFallback) Recognize(ctx context.Context, seg stt.Segment) (*stt.Result, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (*stt.Result, error) {
		return p.Recognize(ctx, seg)
	})
}
