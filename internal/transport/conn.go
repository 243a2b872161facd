package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// ErrClosed is returned by Send and Recv once the connection has closed.
var ErrClosed = errors.New("transport: connection closed")

// Conn is a full-duplex, message-oriented channel to one client, accepted
// over a websocket. Reads and writes are each serialized by one loop
// goroutine; Send/Recv are safe to call from any goroutine.
type Conn struct {
	ws *websocket.Conn

	inbound  chan Envelope
	outbound chan outboundMsg

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	writeErrs int // accessed only from writeLoop's goroutine
}

type outboundMsg struct {
	data   []byte
	result chan error
}

// AcceptOptions controls Accept's origin checking, mirroring
// [websocket.AcceptOptions] for the one field this server actually needs.
type AcceptOptions struct {
	// InsecureSkipVerify disables the same-origin check, for local
	// development only.
	InsecureSkipVerify bool
}

// Accept upgrades an incoming HTTP request to a websocket and returns a
// [Conn] ready for Send/Recv. The caller owns the lifetime of ctx: when it
// is cancelled, both loops exit and the connection closes.
func Accept(ctx context.Context, w http.ResponseWriter, r *http.Request, opts AcceptOptions) (*Conn, error) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: opts.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}

	c := &Conn{
		ws:       ws,
		inbound:  make(chan Envelope, 32),
		outbound: make(chan outboundMsg, 32),
		done:     make(chan struct{}),
	}

	c.wg.Add(2)
	go c.readLoop(ctx)
	go c.writeLoop(ctx)

	return c, nil
}

// Recv returns the channel of inbound envelopes. It is closed once the read
// loop exits (peer closed, protocol error, or ctx cancellation).
func (c *Conn) Recv() <-chan Envelope {
	return c.inbound
}

// Send marshals kind/payload into a stamped envelope and queues it for the
// write loop. It blocks until the write completes or ctx is cancelled.
// Urgent kinds (ping/pong) should instead use [Conn.SendDirect] to bypass
// any upstream queueing delay — Send itself queues only on the write loop's
// 32-entry channel.
func (c *Conn) Send(ctx context.Context, kind Kind, payload any) error {
	data, err := encode(kind, payload, uuid.NewString(), time.Now())
	if err != nil {
		return fmt.Errorf("transport: encode %s: %w", kind, err)
	}
	return c.sendRaw(ctx, data)
}

// SendDirect writes kind/payload to the socket immediately, bypassing the
// write loop's queue. Used by the heartbeat worker for ping/pong per
// spec.md §4.2's "urgent message kinds bypass the outbound queue" rule.
func (c *Conn) SendDirect(ctx context.Context, kind Kind, payload any) error {
	data, err := encode(kind, payload, uuid.NewString(), time.Now())
	if err != nil {
		return fmt.Errorf("transport: encode %s: %w", kind, err)
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("transport: direct write: %w", err)
	}
	return nil
}

func (c *Conn) sendRaw(ctx context.Context, data []byte) error {
	result := make(chan error, 1)
	select {
	case c.outbound <- outboundMsg{data: data, result: result}:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close terminates the connection, stopping both loops and closing the
// underlying websocket with a normal-closure status.
func (c *Conn) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close(websocket.StatusNormalClosure, "session closed")
		c.wg.Wait()
	})
	return nil
}

// readLoop receives text frames from the client, decodes them into
// [Envelope] values, and dispatches them on inbound. It exits on any read
// error (peer close, protocol violation, or ctx cancellation).
func (c *Conn) readLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.inbound)

	for {
		_, msg, err := c.ws.Read(ctx)
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}

		select {
		case c.inbound <- env:
		case <-c.done:
			return
		}
	}
}

// writeLoop drains the outbound queue and writes each message in order. On
// done, any still-queued sends are failed with [ErrClosed] rather than
// silently dropped, so callers blocked in Send observe the close.
func (c *Conn) writeLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case m, ok := <-c.outbound:
			if !ok {
				return
			}
			err := c.ws.Write(ctx, websocket.MessageText, m.data)
			if err != nil {
				c.writeErrs++
			}
			m.result <- err
		case <-c.done:
			c.drainOutbound()
			return
		}
	}
}

func (c *Conn) drainOutbound() {
	for {
		select {
		case m := <-c.outbound:
			m.result <- ErrClosed
		default:
			return
		}
	}
}
