// Package mock provides a test double for the stt.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/speechgraph/core/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results is consumed in order, one per Recognize call; once exhausted
	// Recognize returns (nil, nil). Err, if non-nil, is returned instead
	// and does not consume a Results entry.
	Results []*stt.Result
	Err     error

	Calls []stt.Segment
}

var _ stt.Provider = (*Provider)(nil)

// Recognize implements stt.Provider.
func (p *Provider) Recognize(ctx context.Context, seg stt.Segment) (*stt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, seg)
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Results) == 0 {
		return nil, nil
	}
	r := p.Results[0]
	p.Results = p.Results[1:]
	return r, nil
}
