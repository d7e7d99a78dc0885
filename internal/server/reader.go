package server

import (
	"errors"

	"github.com/luciancaetano/kephaschat/internal/protocol"
	"github.com/luciancaetano/kephaschat/internal/transport"
)

// readLoop reads frames from s until its stream ends, posting each decoded
// message to the hub. A malformed, unknown, oversized or rate limited frame
// is logged and skipped; only the end of the stream ends the loop.
func (srv *Server) readLoop(h *hub, s *Session) {
	var cause error
	defer func() {
		if !h.post(func() { h.sessionGone(s, cause) }) {
			s.Close()
		}
	}()

	for {
		header, err := protocol.ReadHeader(s.conn)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownType) {
				s.logger.Warn("skipping frame with unknown type", "error", err, "body_size", header.BodySize)
				if err := protocol.SkipBody(s.conn, header); err != nil {
					cause = err
					return
				}
				continue
			}
			cause = err
			srv.logReadEnd(s, err)
			return
		}

		body, err := protocol.ReadBody(s.conn, header, srv.cfg.MaxBodySize)
		if err != nil {
			if errors.Is(err, protocol.ErrTooLarge) {
				s.logger.Warn("skipping oversized frame", "type", header.Type, "error", err)
				continue
			}
			cause = err
			srv.logReadEnd(s, err)
			return
		}

		if !s.allow() {
			s.logger.Warn("rate limit exceeded, frame dropped", "type", header.Type)
			continue
		}

		msg, err := protocol.DecodeBody(header, body)
		if err != nil {
			s.logger.Warn("failed to decode frame", "type", header.Type, "error", err)
			continue
		}

		if !h.post(func() { h.dispatch(s, msg) }) {
			cause = errServerStopping
			return
		}
	}
}

func (srv *Server) logReadEnd(s *Session, err error) {
	if transport.IsConnectionLost(err) || !s.IsAlive() {
		s.logger.Debug("read ended", "error", err)
		return
	}
	s.logger.Warn("read failed", "error", err)
}
