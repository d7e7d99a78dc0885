// Package client implements the chat client connection: a background loop
// that keeps a transport to the server alive, re-joins after reconnects,
// probes liveness with heartbeats and queues received messages for the UI.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/protocol"
	"github.com/luciancaetano/kephaschat/internal/transport"
)

// Client implements the kephaschat.Client interface
type Client struct {
	cfg    *Config
	logger *slog.Logger
	inbox  *Inbox

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	state   kephaschat.State
	nick    string
	link    *link
	started bool
	closed  bool

	// cbMu serializes status callbacks with Close.
	cbMu sync.Mutex
}

var _ kephaschat.Client = (*Client)(nil)

// New creates a client. Nothing is dialed until Start.
func New(cfg *Config) *Client {
	cfg.sanitize()
	ctx, cancel := context.WithCancel(context.Background())

	target := cfg.Addr
	if cfg.URL != "" {
		target = cfg.URL
	}

	return &Client{
		cfg:    cfg,
		logger: cfg.Logger.With("server", target),
		inbox:  NewInbox(cfg.InboxLimit),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the connection loop. Calls after the first, or after
// Close, do nothing.
func (c *Client) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started || c.closed {
		return
	}
	c.started = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run()
	}()
}

// run keeps one link alive at a time until the client is closed.
func (c *Client) run() {
	for {
		conn, ok := c.connect()
		if !ok {
			return
		}

		l := newLink(c.ctx, conn, c.cfg.SendQueueSize, c.logger)
		l.start(c.cfg, c.inbox)
		c.online(l)

		err := l.wait()
		c.offline(l, err)

		if !c.sleep(c.cfg.RetryInterval) {
			return
		}
	}
}

// connect dials until it succeeds, waiting RetryInterval between attempts.
// It returns false once the client is closed.
func (c *Client) connect() (transport.Conn, bool) {
	for {
		conn, err := c.dial()
		if err == nil {
			return conn, true
		}
		if c.ctx.Err() != nil {
			return nil, false
		}

		c.logger.Debug("connect failed, retrying", "error", err, "retry_in", c.cfg.RetryInterval)
		if !c.sleep(c.cfg.RetryInterval) {
			return nil, false
		}
	}
}

func (c *Client) dial() (transport.Conn, error) {
	if c.cfg.URL != "" {
		return transport.DialWebSocket(c.ctx, c.cfg.URL, c.cfg.DialTimeout, c.cfg.WriteTimeout)
	}
	return transport.DialTCP(c.ctx, c.cfg.Addr, c.cfg.DialTimeout, c.cfg.WriteTimeout)
}

// sleep waits d, returning false if the client is closed first.
func (c *Client) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// online publishes l and, when the client was in the chat before the
// connection dropped, re-joins with the same nickname.
func (c *Client) online(l *link) {
	c.mu.Lock()
	c.link = l
	rejoin := c.state == kephaschat.StateConnected
	nick := c.nick
	c.mu.Unlock()

	c.logger.Info("server online")

	if rejoin {
		frame, err := protocol.Encode(protocol.Connect{Nick: nick})
		if err == nil {
			err = l.enqueue(frame)
		}
		if err != nil {
			c.logger.Warn("failed to rejoin", "nick", nick, "error", err)
		} else {
			c.logger.Info("rejoining chat", "nick", nick)
		}
	}

	c.notify()
}

func (c *Client) offline(l *link, cause error) {
	c.mu.Lock()
	if c.link == l {
		c.link = nil
	}
	c.mu.Unlock()

	if c.ctx.Err() != nil {
		return
	}
	c.logger.Info("server offline", "cause", cause)
	c.notify()
}

func (c *Client) currentLink() (*link, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, kephaschat.ErrClientClosed
	}
	if c.link == nil || !c.link.alive() {
		return nil, kephaschat.ErrNotConnected
	}
	return c.link, nil
}

// Join sends Connect{nick} and waits until it is written. The client is in
// the chat only once the write succeeded. ctx bounds the wait for queue
// space; a queued Connect is always waited out, so the state never disagrees
// with what the server saw.
func (c *Client) Join(ctx context.Context, nick string) error {
	frame, err := protocol.Encode(protocol.Connect{Nick: nick})
	if err != nil {
		return fmt.Errorf("%w: %v", kephaschat.ErrFailedToEncode, err)
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return kephaschat.ErrClientClosed
	case c.state != kephaschat.StateDisconnected:
		c.mu.Unlock()
		return kephaschat.ErrAlreadyJoined
	case c.link == nil || !c.link.alive():
		c.mu.Unlock()
		return kephaschat.ErrNotConnected
	}
	l := c.link
	c.state = kephaschat.StateConnecting
	c.mu.Unlock()

	err = l.write(ctx, frame)

	c.mu.Lock()
	if err == nil {
		c.state = kephaschat.StateConnected
		c.nick = nick
	} else {
		c.state = kephaschat.StateDisconnected
	}
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("join as %q: %w", nick, err)
	}

	c.logger.Info("joined chat", "nick", nick)
	c.notify()
	return nil
}

// Leave sends Disconnect with the current nickname and, once it is written,
// drops the nickname.
func (c *Client) Leave(ctx context.Context) error {
	c.mu.RLock()
	nick := c.nick
	joined := c.state == kephaschat.StateConnected
	c.mu.RUnlock()

	if !joined {
		return kephaschat.ErrNotJoined
	}

	l, err := c.currentLink()
	if err != nil {
		return err
	}

	frame, err := protocol.Encode(protocol.Disconnect{Nick: nick})
	if err != nil {
		return fmt.Errorf("%w: %v", kephaschat.ErrFailedToEncode, err)
	}

	if err := l.write(ctx, frame); err != nil {
		return fmt.Errorf("leave as %q: %w", nick, err)
	}

	c.mu.Lock()
	if c.nick == nick {
		c.state = kephaschat.StateDisconnected
		c.nick = ""
	}
	c.mu.Unlock()

	c.logger.Info("left chat", "nick", nick)
	c.notify()
	return nil
}

// Send queues msg for the writer and returns without waiting. A failed write
// only takes the server offline; the message is not retried.
func (c *Client) Send(msg protocol.Message) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", kephaschat.ErrFailedToEncode, err)
	}

	l, err := c.currentLink()
	if err != nil {
		return err
	}
	return l.enqueue(frame)
}

// RequestUsers asks the server for the roster.
func (c *Client) RequestUsers() error {
	return c.Send(protocol.ChatUsers{})
}

func (c *Client) IsConnected() bool {
	return c.State() == kephaschat.StateConnected
}

func (c *Client) IsServerOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.link != nil && c.link.alive()
}

func (c *Client) CurrentNick() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != kephaschat.StateConnected {
		return "", false
	}
	return c.nick, true
}

func (c *Client) State() kephaschat.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) Inbox() kephaschat.Inbox {
	return c.inbox
}

// Close stops the connection loop, closes the socket and waits for every
// client goroutine. Messages already in the inbox stay readable.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	// Wait out a callback already in flight.
	c.cbMu.Lock()
	c.cbMu.Unlock()

	c.inbox.close()
	c.logger.Debug("client closed")
	return nil
}

func (c *Client) status() (kephaschat.Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return kephaschat.Status{
		ServerOnline: c.link != nil && c.link.alive(),
		State:        c.state,
		Nick:         c.nick,
	}, c.closed
}

func (c *Client) notify() {
	if c.cfg.OnStatus == nil {
		return
	}

	c.cbMu.Lock()
	defer c.cbMu.Unlock()

	st, closed := c.status()
	if closed {
		return
	}
	c.cfg.OnStatus(st)
}
