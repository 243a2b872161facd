package pipeline

import (
	"context"
	"time"

	"github.com/speechgraph/core/internal/config"
	"github.com/speechgraph/core/internal/observe"
	"github.com/speechgraph/core/internal/session"
	"github.com/speechgraph/core/internal/transport"
)

// runHeartbeat ticks every cfg.Tick; if the session has been idle longer
// than cfg.InactiveTimeout it deactivates the session (the cooperative
// cancellation signal the STT, NLP and extraction workers also check) and
// returns without closing the connection,
// otherwise it sends a ping directly, bypassing the outbound queue, per
// spec.md §4.2's urgent-message rule and §4.3's heartbeat monitor. The
// error return always carries nil; it exists only so the session router
// can run every worker under a single [golang.org/x/sync/errgroup.Group].
func runHeartbeat(ctx context.Context, conn *transport.Conn, st *session.State, cfg config.HeartbeatConfig, metrics *observe.Metrics) error {
	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !st.IsActive() {
				return nil
			}
			if time.Since(st.LastActivity()) > cfg.InactiveTimeout {
				st.Deactivate()
				return nil
			}
			if err := conn.SendDirect(ctx, transport.KindPing, struct{}{}); err != nil {
				st.Deactivate()
				return nil
			}
			if metrics != nil {
				metrics.HeartbeatsSent.Add(ctx, 1)
			}
		}
	}
}
