package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/transport"
)

// Session is one accepted connection. Frames queued with Send are written by
// a single write pump, so at most one write is in flight per socket and
// frames leave in the order they were queued.
type Session struct {
	id          string
	conn        transport.Conn
	remoteAddr  string
	ctx         context.Context
	cancel      context.CancelFunc
	sendCh      chan []byte
	mu          sync.RWMutex
	closed      bool
	rateLimiter *rate.Limiter // Rate limiter for incoming frames
	logger      *slog.Logger
}

// newSession wraps conn and starts its write pump. The session closes itself
// when parent is cancelled.
func newSession(parent context.Context, conn transport.Conn, cfg *ServerConfig) *Session {
	ctx, cancel := context.WithCancel(parent)

	id := uuid.New().String()
	s := &Session{
		id:          id,
		conn:        conn,
		remoteAddr:  conn.RemoteAddr(),
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan []byte, cfg.SendQueueSize),
		rateLimiter: cfg.RateLimitConfig.newLimiter(),
		logger:      cfg.Logger.With("session", id, "remote_addr", conn.RemoteAddr()),
	}

	go s.writePump()

	return s
}

// ID returns the session's unique identifier
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr returns the peer's network address
func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Send queues an encoded frame. It never blocks: a full queue means the peer
// is not reading and the frame is refused.
func (s *Session) Send(frame []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return kephaschat.ErrConnectionClosed
	}

	// Keep the lock while sending to prevent race with Close()
	select {
	case s.sendCh <- frame:
		return nil
	default:
		return kephaschat.ErrSendQueueFull
	}
}

// Close shuts the socket. Queued frames that were not written yet are
// dropped. Calls after the first are no-ops.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.cancel()
	close(s.sendCh)
	return s.conn.Close()
}

// IsAlive returns true until the session is closed
func (s *Session) IsAlive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// allow reports whether an inbound frame fits the rate limit.
func (s *Session) allow() bool {
	if s.rateLimiter == nil {
		// Rate limiting disabled
		return true
	}
	return s.rateLimiter.Allow()
}

// writePump drains the send queue onto the connection. A write error closes
// the session, which in turn fails the pending read and ends the reader.
func (s *Session) writePump() {
	defer s.Close()

	for {
		select {
		case frame, ok := <-s.sendCh:
			if !ok {
				// Channel closed
				return
			}

			if err := s.conn.WriteFrame(frame); err != nil {
				if !transport.IsConnectionLost(err) {
					s.logger.Warn("write failed", "error", err)
				} else {
					s.logger.Debug("write failed, peer gone", "error", err)
				}
				return
			}

		case <-s.ctx.Done():
			return
		}
	}
}
