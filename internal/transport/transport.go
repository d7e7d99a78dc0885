// Package transport adapts stream connections to the frame-oriented view the
// chat read loops and write pumps need: a byte stream to read headers and
// bodies from, and a call that writes one complete frame.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"
)

// Conn is a single chat connection. Read may be called from one goroutine
// and WriteFrame from another; Close is safe from any goroutine.
type Conn interface {
	io.Reader

	// WriteFrame writes one fully encoded frame.
	WriteFrame(frame []byte) error

	Close() error

	// RemoteAddr returns the peer address in "IP:port" form.
	RemoteAddr() string
}

// TCPConn carries frames over a raw TCP stream.
type TCPConn struct {
	conn         net.Conn
	writeTimeout time.Duration
}

// NewTCP wraps an established net.Conn. A zero writeTimeout disables write
// deadlines.
func NewTCP(conn net.Conn, writeTimeout time.Duration) *TCPConn {
	return &TCPConn{conn: conn, writeTimeout: writeTimeout}
}

// DialTCP connects to addr.
func DialTCP(ctx context.Context, addr string, timeout, writeTimeout time.Duration) (*TCPConn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewTCP(conn, writeTimeout), nil
}

func (c *TCPConn) Read(p []byte) (int, error) {
	return c.conn.Read(p)
}

func (c *TCPConn) WriteFrame(frame []byte) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := c.conn.Write(frame)
	return err
}

func (c *TCPConn) Close() error {
	return c.conn.Close()
}

func (c *TCPConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// IsConnectionLost reports whether err means the peer is gone: a clean or
// abrupt end of stream, a reset, a broken pipe, a timeout, or a closed
// socket. These are transient for the process and fatal for the connection.
func IsConnectionLost(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, os.ErrDeadlineExceeded):
		return true
	}
	return isWebSocketClosed(err)
}
