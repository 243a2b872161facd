package pipeline

import (
	"context"
	"time"

	"github.com/speechgraph/core/internal/observe"
	"github.com/speechgraph/core/internal/session"
	"github.com/speechgraph/core/internal/transport"
)

const (
	outboundFirstWait    = 500 * time.Millisecond
	outboundMaxBatch     = 10
	outboundInterSend    = 10 * time.Millisecond
	outboundBatchPause   = 50 * time.Millisecond
	outboundSendTimeout  = 5 * time.Second
)

// runOutboundSender drains the outbound queue in batches and writes each
// message to the client, per spec.md §4.9: take one message (blocking up
// to 500 ms), then opportunistically take up to 9 more without blocking;
// send sequentially with >=10 ms between sends; pause 50 ms between
// batches. On stop, drain the queue best-effort.
//
// Unlike the other four workers, the outbound sender does not stop when
// the session goes inactive: a client may still submit feedback or request
// a translation in the frames right after END_SESSION, and the outbound
// queue is the only path those replies can take. It only stops when ctx is
// cancelled, i.e. when the router is actually tearing down the connection.
func runOutboundSender(ctx context.Context, q *Queues, conn *transport.Conn, st *session.State, metrics *observe.Metrics) error {
	for {
		if ctx.Err() != nil {
			drainOutboundBestEffort(q, conn)
			return nil
		}

		first, ok := waitFirst(ctx, q.Outbound, outboundFirstWait)
		if !ok {
			continue
		}

		batch := []OutboundItem{first}
		batch = append(batch, drainNonBlocking(q.Outbound, outboundMaxBatch-1)...)

		for i, item := range batch {
			sendOne(ctx, conn, item, metrics)
			if i < len(batch)-1 {
				time.Sleep(outboundInterSend)
			}
		}
		time.Sleep(outboundBatchPause)
	}
}

// waitFirst blocks up to timeout for one item from ch. ok is false on
// timeout, ctx cancellation, or a closed channel.
func waitFirst(ctx context.Context, ch <-chan OutboundItem, timeout time.Duration) (OutboundItem, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case item, ok := <-ch:
		return item, ok
	case <-timer.C:
		return OutboundItem{}, false
	case <-ctx.Done():
		return OutboundItem{}, false
	}
}

// drainNonBlocking takes up to max additional items from ch without
// blocking.
func drainNonBlocking(ch <-chan OutboundItem, max int) []OutboundItem {
	var out []OutboundItem
	for len(out) < max {
		select {
		case item, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, item)
		default:
			return out
		}
	}
	return out
}

func sendOne(ctx context.Context, conn *transport.Conn, item OutboundItem, metrics *observe.Metrics) {
	sendCtx, cancel := context.WithTimeout(ctx, outboundSendTimeout)
	defer cancel()

	if err := conn.Send(sendCtx, transport.Kind(item.Kind), item.Payload); err != nil {
		if metrics != nil {
			metrics.RecordMessageDropped(ctx, "outbound")
		}
	}
}

// drainOutboundBestEffort flushes whatever remains in the outbound queue
// without blocking, used when the pipeline is stopping. It uses a detached
// context so a cancelled parent ctx doesn't prevent the final flush.
func drainOutboundBestEffort(q *Queues, conn *transport.Conn) {
	for {
		select {
		case item := <-q.Outbound:
			sendCtx, cancel := context.WithTimeout(context.Background(), outboundSendTimeout)
			_ = conn.Send(sendCtx, transport.Kind(item.Kind), item.Payload)
			cancel()
		default:
			return
		}
	}
}
