package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/frame"
	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
)

const (
	heartbeatInterval = 30 * time.Second
	heartbeatTimeout  = 90 * time.Second
	sendQueueDepth    = 1024
)

// Connection is one authenticated client's live transport, wherever it
// terminates (WebSocket or QUIC). It does not own the session's
// lifecycle in Online — that's recorded separately and survives a
// reconnect to a different gateway pod; Connection only owns the local
// socket and its send queue.
type Connection struct {
	SessionID string
	UserID    string
	DeviceID  string
	Platform  string

	wire   wireConn
	send   chan *frame.Frame
	server *Server

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newConnection(parent context.Context, s *Server, wire wireConn, sess ports.Session) *Connection {
	ctx, cancel := context.WithCancel(parent)
	return &Connection{
		SessionID: sess.SessionID,
		UserID:    sess.UserID,
		DeviceID:  sess.DeviceID,
		Platform:  sess.Platform,
		wire:      wire,
		send:      make(chan *frame.Frame, sendQueueDepth),
		server:    s,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Push enqueues a frame for delivery to this connection's socket. It
// never blocks: a full queue means the client is not draining fast
// enough and the frame is dropped, matching the writePump's own
// best-effort sends elsewhere in the pipeline.
func (c *Connection) Push(f *frame.Frame) bool {
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

func (c *Connection) run() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.readPump() }()
	go func() { defer wg.Done(); c.writePump() }()
	wg.Wait()
	c.close()
}

func (c *Connection) readPump() {
	defer c.cancel()
	c.wire.SetReadDeadline(time.Now().Add(heartbeatTimeout))

	for {
		if c.ctx.Err() != nil {
			return
		}
		f, err := c.wire.ReadFrame(c.ctx)
		if err != nil {
			return
		}
		c.wire.SetReadDeadline(time.Now().Add(heartbeatTimeout))
		c.server.dispatch(c, f)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case f, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.wire.WriteFrame(c.ctx, f); err != nil {
				return
			}
		case <-ticker.C:
			hb := &frame.Frame{Kind: frame.CommandSystem, System: &frame.SystemCommand{Type: "heartbeat"}}
			if err := c.wire.WriteFrame(c.ctx, hb); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.server.unregister(c)
		if err := c.server.online.Logout(context.Background(), c.UserID, c.DeviceID); err != nil {
			logger.L().WarnContext(context.Background(), "logout on disconnect failed", "user_id", c.UserID, "error", err)
		}
		close(c.send)
		c.wire.Close()
	})
}
