package server

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/protocol"
	"github.com/luciancaetano/kephaschat/internal/registry"
)

const hubQueueSize = 1024

// hub serializes every registry access onto one goroutine. Readers post
// closures and the loop runs them in arrival order, so frames from one
// session are handled in the order they were read.
type hub struct {
	events   chan func()
	done     chan struct{}
	registry *registry.Registry
	logger   *slog.Logger

	onConnect    OnConnectFn
	onDisconnect OnDisconnectFn
}

func newHub(cfg *ServerConfig) *hub {
	return &hub{
		events:       make(chan func(), hubQueueSize),
		done:         make(chan struct{}),
		registry:     registry.New(cfg.Logger),
		logger:       cfg.Logger,
		onConnect:    cfg.OnConnect,
		onDisconnect: cfg.OnDisconnect,
	}
}

// run processes events until ctx is cancelled, then closes every registered
// session.
func (h *hub) run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case fn := <-h.events:
			// Sessions dropped by shutdown post their departure after ctx is
			// cancelled; none of it may reach the other peers.
			if ctx.Err() != nil {
				h.stop()
				return nil
			}
			fn()
		case <-ctx.Done():
			h.stop()
			return nil
		}
	}
}

func (h *hub) stop() {
	n := h.registry.CloseAll()
	h.logger.Info("hub stopped", "closed_sessions", n)
}

// post queues fn for the hub goroutine. It returns false once the hub has
// stopped.
func (h *hub) post(fn func()) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.events <- fn:
		return true
	case <-h.done:
		return false
	}
}

// call runs fn on the hub goroutine and waits for it.
func (h *hub) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !h.post(func() {
		defer close(finished)
		fn()
	}) {
		return kephaschat.ErrServerNotRunning
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return kephaschat.ErrServerNotRunning
	}
}

func (h *hub) register(s *Session) {
	h.registry.Register(s)
	s.logger.Info("session opened")

	if h.onConnect != nil {
		h.onConnect(s)
	}
}

// sessionGone handles the end of a session's inbound stream. A session that
// had joined is announced as gone before its entry is dropped.
func (h *hub) sessionGone(s *Session, cause error) {
	if nick, ok := h.registry.UnsetNick(s); ok {
		h.broadcast(protocol.Disconnect{Nick: nick}, s)
	}

	if !h.registry.Unregister(s) {
		// Already removed by shutdown.
		return
	}

	voluntary := errors.Is(cause, io.EOF)
	s.logger.Info("session closed", "voluntary", voluntary, "cause", cause)

	if h.onDisconnect != nil {
		h.onDisconnect(s, voluntary)
	}
}

// dispatch applies one decoded message from s.
func (h *hub) dispatch(s *Session, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Connect:
		h.handleConnect(s, m)
	case protocol.Disconnect:
		h.handleDisconnect(s, m)
	case protocol.Text:
		h.handleText(s, m)
	case protocol.Private:
		h.handlePrivate(s, m)
	case protocol.ChatUsers:
		h.sendRoster(s, nil)
	case protocol.Heartbeat:
		// Liveness only.
	default:
		s.logger.Warn("unhandled message type", "type", msg.Type())
	}
}

func (h *hub) handleConnect(s *Session, m protocol.Connect) {
	if prev, ok := h.registry.Nick(s); ok {
		s.logger.Info("nickname changed", "from", prev, "to", m.Nick)
	} else {
		s.logger.Info("user joined", "nick", m.Nick)
	}

	h.registry.SetNick(s, m.Nick)
	h.broadcast(m, s)
	h.sendRoster(s, s)
}

// handleDisconnect relays the nick carried by the message, which is not
// checked against the sender's registered nick.
func (h *hub) handleDisconnect(s *Session, m protocol.Disconnect) {
	h.registry.UnsetNick(s)
	s.logger.Info("user left", "nick", m.Nick)
	h.broadcast(m, s)
}

func (h *hub) handleText(s *Session, m protocol.Text) {
	if _, ok := h.registry.Nick(s); !ok {
		s.logger.Debug("text from session without nickname dropped")
		return
	}
	h.broadcast(m, s)
}

func (h *hub) handlePrivate(s *Session, m protocol.Private) {
	target, ok := h.registry.FindByNick(m.To)
	if !ok {
		s.logger.Warn("private message recipient not found", "from", m.From, "to", m.To)
		return
	}

	frame, err := protocol.Encode(m)
	if err != nil {
		s.logger.Error("failed to encode private message", "error", err)
		return
	}
	if err := target.Send(frame); err != nil {
		s.logger.Warn("failed to deliver private message", "to", m.To, "error", err)
	}
}

// sendRoster sends s the nicknames in the chat, leaving out exclude's.
func (h *hub) sendRoster(s *Session, exclude registry.Session) {
	frame, err := protocol.Encode(protocol.ChatUsers{Users: h.registry.Nicknames(exclude)})
	if err != nil {
		s.logger.Error("failed to encode roster", "error", err)
		return
	}
	if err := s.Send(frame); err != nil {
		s.logger.Warn("failed to send roster", "error", err)
	}
}

func (h *hub) broadcast(msg protocol.Message, exclude registry.Session) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		h.logger.Error("failed to encode broadcast", "type", msg.Type(), "error", err)
		return
	}
	h.registry.Broadcast(frame, exclude)
}
