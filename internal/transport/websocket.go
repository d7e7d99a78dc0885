package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConn carries the frame stream inside binary WebSocket messages. Incoming
// messages are concatenated into one byte stream, so a frame may span
// messages; every outgoing frame is one message.
type WSConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	cur          io.Reader
	closeOnce    sync.Once
}

// NewWebSocket wraps an upgraded or dialed WebSocket connection.
func NewWebSocket(conn *websocket.Conn, writeTimeout time.Duration) *WSConn {
	return &WSConn{conn: conn, writeTimeout: writeTimeout}
}

// DialWebSocket connects to a ws:// or wss:// URL.
func DialWebSocket(ctx context.Context, url string, timeout, writeTimeout time.Duration) (*WSConn, error) {
	d := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocket(conn, writeTimeout), nil
}

func (c *WSConn) Read(p []byte) (int, error) {
	for {
		if c.cur == nil {
			mt, r, err := c.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			c.cur = r
		}

		n, err := c.cur.Read(p)
		if err == io.EOF {
			c.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *WSConn) WriteFrame(frame []byte) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Close sends a normal-closure control message and closes the socket.
// Calls after the first are no-ops.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

func (c *WSConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func isWebSocketClosed(err error) bool {
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr)
}
