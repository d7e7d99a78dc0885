package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/protocol"
	"github.com/luciancaetano/kephaschat/internal/transport"
)

const (
	headerFailureText = "Could not deserialize header message."
	bodyFailureText   = "Something went wrong during deserialization."
	oversizeText      = "Skipped a message larger than the size limit."
)

// outbound is a queued frame. done, when set, receives the write result.
type outbound struct {
	frame []byte
	done  chan error
}

// link is one live connection to the server. It dies on the first read or
// write failure and is never reused; the client dials a fresh one.
type link struct {
	conn   transport.Conn
	ctx    context.Context
	cancel context.CancelFunc
	sendCh chan outbound
	logger *slog.Logger

	errMu sync.Mutex
	err   error
	wg    sync.WaitGroup
}

func newLink(parent context.Context, conn transport.Conn, queueSize int, logger *slog.Logger) *link {
	ctx, cancel := context.WithCancel(parent)
	return &link{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		sendCh: make(chan outbound, queueSize),
		logger: logger.With("remote_addr", conn.RemoteAddr()),
	}
}

// start runs the reader, writer and heartbeat goroutines.
func (l *link) start(cfg *Config, inbox *Inbox) {
	l.wg.Add(3)
	go func() {
		defer l.wg.Done()
		l.readLoop(cfg.MaxBodySize, inbox)
	}()
	go func() {
		defer l.wg.Done()
		l.writeLoop()
	}()
	go func() {
		defer l.wg.Done()
		l.heartbeatLoop(cfg.HeartbeatInterval)
	}()
}

// fail records the first error and tears the link down.
func (l *link) fail(err error) {
	l.errMu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.errMu.Unlock()
	l.cancel()
}

// cause returns the error that took the link down, if any.
func (l *link) cause() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.err
}

// wait blocks until the link is down and its goroutines have exited.
func (l *link) wait() error {
	<-l.ctx.Done()
	l.conn.Close()
	l.wg.Wait()
	return l.cause()
}

// enqueue queues a frame without waiting for it to be written.
func (l *link) enqueue(frame []byte) error {
	select {
	case <-l.ctx.Done():
		return kephaschat.ErrNotConnected
	default:
	}

	select {
	case l.sendCh <- outbound{frame: frame}:
		return nil
	default:
		return kephaschat.ErrSendQueueFull
	}
}

// write queues a frame and waits for the writer to report the result. ctx
// bounds only the wait for queue space.
func (l *link) write(ctx context.Context, frame []byte) error {
	done := make(chan error, 1)

	select {
	case l.sendCh <- outbound{frame: frame, done: done}:
	case <-l.ctx.Done():
		return kephaschat.ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once queued, only the writer or the link going down decides the result.
	select {
	case err := <-done:
		return err
	case <-l.ctx.Done():
		select {
		case err := <-done:
			return err
		default:
		}
		if err := l.cause(); err != nil {
			return err
		}
		return kephaschat.ErrNotConnected
	}
}

// alive reports whether the link has not failed or been closed.
func (l *link) alive() bool {
	return l.ctx.Err() == nil
}

func (l *link) writeLoop() {
	for {
		select {
		case out := <-l.sendCh:
			err := l.conn.WriteFrame(out.frame)
			if err != nil {
				if transport.IsConnectionLost(err) {
					l.logger.Info("server connection lost on write", "error", err)
				} else {
					l.logger.Warn("write failed", "error", err)
				}
				// The link is down before the caller sees the error.
				l.fail(err)
			}
			if out.done != nil {
				out.done <- err
			}
			if err != nil {
				return
			}

		case <-l.ctx.Done():
			return
		}
	}
}

// heartbeatLoop probes the server so a dead connection is noticed even when
// nothing else is being sent.
func (l *link) heartbeatLoop(interval time.Duration) {
	frame, err := protocol.Encode(protocol.Heartbeat{})
	if err != nil {
		l.logger.Error("failed to encode heartbeat", "error", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := l.enqueue(frame); err != nil && !errors.Is(err, kephaschat.ErrNotConnected) {
				l.logger.Debug("heartbeat skipped", "error", err)
			}
		case <-l.ctx.Done():
			return
		}
	}
}

// readLoop pushes every decoded message except heartbeats to the inbox.
// Frames that cannot be decoded become notices from InternalClientNick.
func (l *link) readLoop(maxBodySize uint32, inbox *Inbox) {
	for {
		header, err := protocol.ReadHeader(l.conn)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownType) {
				l.logger.Warn("unknown frame type from server", "error", err)
				inbox.Push(internalNotice(headerFailureText))
				if err := protocol.SkipBody(l.conn, header); err != nil {
					l.readFailed(err)
					return
				}
				continue
			}
			l.readFailed(err)
			return
		}

		body, err := protocol.ReadBody(l.conn, header, maxBodySize)
		if err != nil {
			if errors.Is(err, protocol.ErrTooLarge) {
				l.logger.Warn("oversized frame from server", "error", err)
				inbox.Push(internalNotice(oversizeText))
				continue
			}
			l.readFailed(err)
			return
		}

		msg, err := protocol.DecodeBody(header, body)
		if err != nil {
			l.logger.Warn("failed to decode frame", "type", header.Type, "error", err)
			inbox.Push(internalNotice(bodyFailureText))
			continue
		}

		if _, ok := msg.(protocol.Heartbeat); ok {
			continue
		}
		inbox.Push(msg)
	}
}

func (l *link) readFailed(err error) {
	if l.ctx.Err() == nil {
		l.logger.Info("server connection lost on read", "error", err)
	}
	l.fail(err)
}

func internalNotice(text string) protocol.Text {
	return protocol.Text{From: kephaschat.InternalClientNick, Message: text}
}
