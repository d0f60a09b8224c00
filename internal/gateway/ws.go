// WebSocket transport: upgrades an HTTP request and frames JSON Frame
// values one-per-message, the way gorilla/websocket already delimits
// messages at the protocol level.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/frame"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsConn struct {
	conn *websocket.Conn
}

func upgradeWebSocket(w http.ResponseWriter, r *http.Request) (wireConn, error) {
	c, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upgrade websocket connection")
	}
	return &wsConn{conn: c}, nil
}

func (c *wsConn) ReadFrame(ctx context.Context) (*frame.Frame, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var f frame.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.InvalidArgument("malformed frame", err)
	}
	return &f, nil
}

func (c *wsConn) WriteFrame(ctx context.Context, f *frame.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "failed to encode frame")
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
