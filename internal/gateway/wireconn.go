package gateway

import (
	"context"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/frame"
)

// wireConn abstracts the one difference between our two client
// transports: WebSocket already frames each message, QUIC is a raw
// byte stream that needs the length-prefixed frame.Codec. Everything
// above this (auth, heartbeat enforcement, dispatch) is transport-blind.
type wireConn interface {
	ReadFrame(ctx context.Context) (*frame.Frame, error)
	WriteFrame(ctx context.Context, f *frame.Frame) error
	SetReadDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}
