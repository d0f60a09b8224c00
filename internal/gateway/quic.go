// QUIC transport: a raw byte stream per connection, framed with the
// length-prefixed frame.JSONCodec instead of relying on message
// boundaries a transport protocol provides for free.
package gateway

import (
	"context"
	"crypto/tls"
	"io"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/frame"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/quic-go/quic-go"
)

// QUICListener accepts client connections and yields each peer's first
// stream as a wireConn.
type QUICListener struct {
	ln    *quic.Listener
	codec *frame.JSONCodec
}

// ListenQUIC opens a QUIC listener on addr using tlsConf (QUIC requires
// TLS 1.3; a self-signed cert is fine for internal gateway traffic).
func ListenQUIC(addr string, tlsConf *tls.Config, maxFrameSize int) (*QUICListener, error) {
	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{MaxIdleTimeout: 90 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "failed to start quic listener")
	}
	return &QUICListener{ln: ln, codec: frame.NewJSONCodec(maxFrameSize)}, nil
}

// Accept blocks for the next peer connection and its primary stream.
func (l *QUICListener) Accept(ctx context.Context) (wireConn, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return &quicConn{conn: conn, stream: stream, codec: l.codec}, nil
}

func (l *QUICListener) Close() error {
	return l.ln.Close()
}

type quicConn struct {
	conn   *quic.Conn
	stream *quic.Stream
	codec  *frame.JSONCodec
}

func (c *quicConn) ReadFrame(ctx context.Context) (*frame.Frame, error) {
	prefix := make([]byte, 4)
	if _, err := io.ReadFull(c.stream, prefix); err != nil {
		return nil, err
	}
	length, err := frame.ReadLengthPrefix(prefix)
	if err != nil {
		return nil, err
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(c.stream, body); err != nil {
		return nil, err
	}
	return c.codec.Decode(body)
}

func (c *quicConn) WriteFrame(ctx context.Context, f *frame.Frame) error {
	c.stream.SetWriteDeadline(time.Now().Add(10 * time.Second))
	out, err := c.codec.Encode(f)
	if err != nil {
		return err
	}
	_, err = c.stream.Write(out)
	return err
}

func (c *quicConn) SetReadDeadline(t time.Time) error {
	return c.stream.SetReadDeadline(t)
}

func (c *quicConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *quicConn) Close() error {
	c.stream.Close()
	return c.conn.CloseWithError(0, "closed")
}
