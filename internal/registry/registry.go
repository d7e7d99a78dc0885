// Package registry keeps the server's table of live sessions and the
// nicknames bound to them, and routes frames to them.
//
// A Registry is not safe for concurrent use. The server's hub goroutine owns
// it and is the only caller, which makes every handler a critical section
// without any locking here.
package registry

import (
	"log/slog"
)

// Session is the registry's view of a live connection.
type Session interface {
	ID() string
	// Send queues a fully encoded frame for delivery.
	Send(frame []byte) error
	Close() error
}

type entry struct {
	session Session
	nick    string
	hasNick bool
}

// Registry maps sessions to optional nicknames. Nicknames are not required
// to be unique: two sessions may hold the same one, and FindByNick returns
// the earliest registered match.
type Registry struct {
	entries []*entry
	byID    map[string]*entry
	logger  *slog.Logger
}

// New creates an empty registry. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byID:   make(map[string]*entry),
		logger: logger,
	}
}

// Register adds a session without a nickname. It returns false if the
// session is already registered.
func (r *Registry) Register(s Session) bool {
	if _, ok := r.byID[s.ID()]; ok {
		return false
	}
	e := &entry{session: s}
	r.entries = append(r.entries, e)
	r.byID[s.ID()] = e
	return true
}

// Unregister closes the session and removes it. It returns false if the
// session was not registered.
func (r *Registry) Unregister(s Session) bool {
	e, ok := r.byID[s.ID()]
	if !ok {
		return false
	}

	delete(r.byID, s.ID())
	for i, other := range r.entries {
		if other == e {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			break
		}
	}

	if err := e.session.Close(); err != nil {
		r.logger.Debug("close on unregister", "session", s.ID(), "error", err)
	}
	return true
}

// SetNick binds nick to the session, replacing any previous one.
func (r *Registry) SetNick(s Session, nick string) bool {
	e, ok := r.byID[s.ID()]
	if !ok {
		return false
	}
	e.nick = nick
	e.hasNick = true
	return true
}

// UnsetNick clears the session's nickname and returns the one it held.
// The entry stays registered.
func (r *Registry) UnsetNick(s Session) (string, bool) {
	e, ok := r.byID[s.ID()]
	if !ok || !e.hasNick {
		return "", false
	}
	nick := e.nick
	e.nick = ""
	e.hasNick = false
	return nick, true
}

// Nick returns the session's nickname, if any.
func (r *Registry) Nick(s Session) (string, bool) {
	e, ok := r.byID[s.ID()]
	if !ok || !e.hasNick {
		return "", false
	}
	return e.nick, true
}

// FindByNick scans for a session holding nick.
func (r *Registry) FindByNick(nick string) (Session, bool) {
	for _, e := range r.entries {
		if e.hasNick && e.nick == nick {
			return e.session, true
		}
	}
	return nil, false
}

// Broadcast sends frame to every session with a nickname except exclude,
// which may be nil. It returns the number of sessions that accepted it.
func (r *Registry) Broadcast(frame []byte, exclude Session) int {
	sent := 0
	for _, e := range r.entries {
		if !e.hasNick || isSame(e.session, exclude) {
			continue
		}
		if err := e.session.Send(frame); err != nil {
			r.logger.Warn("broadcast delivery failed",
				"session", e.session.ID(), "nick", e.nick, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Nicknames lists the nicknames in registration order, skipping exclude.
func (r *Registry) Nicknames(exclude Session) []string {
	nicks := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		if e.hasNick && !isSame(e.session, exclude) {
			nicks = append(nicks, e.nick)
		}
	}
	return nicks
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	return len(r.entries)
}

// CloseAll closes and removes every session without telling anyone about the
// departures. It returns how many sessions were closed.
func (r *Registry) CloseAll() int {
	n := len(r.entries)
	for _, e := range r.entries {
		if err := e.session.Close(); err != nil {
			r.logger.Debug("close on shutdown", "session", e.session.ID(), "error", err)
		}
	}
	r.entries = nil
	r.byID = make(map[string]*entry)
	return n
}

func isSame(s, exclude Session) bool {
	return exclude != nil && s.ID() == exclude.ID()
}
