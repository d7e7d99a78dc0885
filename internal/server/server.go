// Package server implements the chat server: an accept loop per transport,
// one reader goroutine and one writer goroutine per session, and a hub
// goroutine that owns the session registry and runs every message handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/transport"
)

const httpShutdownTimeout = 5 * time.Second

var errServerStopping = errors.New("server stopping")

// Server implements the kephaschat.Server interface
type Server struct {
	cfg      *ServerConfig
	upgrader websocket.Upgrader

	mu           sync.RWMutex
	running      bool
	cancel       context.CancelFunc
	stopped      chan struct{}
	listener     net.Listener
	httpListener net.Listener

	// sessMu guards the state sessions are opened against, so no reader is
	// started after Start began waiting for readers to finish.
	sessMu    sync.Mutex
	accepting bool
	runCtx    context.Context
	hub       *hub
	readers   sync.WaitGroup
}

var _ kephaschat.Server = (*Server)(nil)

// New creates a chat server. Unset config fields take their defaults.
func New(cfg *ServerConfig) *Server {
	cfg.sanitize()
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

// Start binds the listeners and serves until ctx is cancelled or Shutdown is
// called. A bind failure is returned immediately.
func (srv *Server) Start(ctx context.Context) error {
	srv.mu.Lock()
	if srv.running {
		srv.mu.Unlock()
		return kephaschat.ErrServerAlreadyRunning
	}

	ln, err := net.Listen("tcp", srv.cfg.Addr)
	if err != nil {
		srv.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", srv.cfg.Addr, err)
	}

	var httpLn net.Listener
	if srv.cfg.HTTPAddr != "" {
		httpLn, err = net.Listen("tcp", srv.cfg.HTTPAddr)
		if err != nil {
			ln.Close()
			srv.mu.Unlock()
			return fmt.Errorf("listen on %s: %w", srv.cfg.HTTPAddr, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	h := newHub(srv.cfg)

	srv.running = true
	srv.cancel = cancel
	srv.stopped = make(chan struct{})
	srv.listener = ln
	srv.httpListener = httpLn
	stopped := srv.stopped
	srv.mu.Unlock()

	srv.sessMu.Lock()
	srv.accepting = true
	srv.runCtx = gctx
	srv.hub = h
	srv.sessMu.Unlock()

	srv.cfg.Logger.Info("chat server listening", "addr", ln.Addr().String())

	g.Go(func() error {
		return h.run(gctx)
	})

	g.Go(func() error {
		return srv.acceptLoop(gctx, ln)
	})

	g.Go(func() error {
		<-gctx.Done()
		ln.Close()
		return nil
	})

	if httpLn != nil {
		httpServer := &http.Server{
			Handler:           srv.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		srv.cfg.Logger.Info("websocket gateway listening", "addr", httpLn.Addr().String())

		g.Go(func() error {
			if err := httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	cancel()

	srv.sessMu.Lock()
	srv.accepting = false
	srv.sessMu.Unlock()
	srv.readers.Wait()

	srv.mu.Lock()
	srv.running = false
	srv.cancel = nil
	srv.listener = nil
	srv.httpListener = nil
	srv.mu.Unlock()
	close(stopped)

	srv.cfg.Logger.Info("chat server stopped")
	return err
}

// Shutdown stops accepting connections, closes every session and waits for
// Start to return or ctx to expire.
func (srv *Server) Shutdown(ctx context.Context) error {
	srv.mu.Lock()
	if !srv.running {
		srv.mu.Unlock()
		return nil
	}
	cancel := srv.cancel
	stopped := srv.stopped
	srv.mu.Unlock()

	cancel()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the bound TCP address, or nil when not running.
func (srv *Server) Addr() net.Addr {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

// HTTPAddr returns the bound address of the WebSocket gateway, or nil when
// the gateway is disabled or the server is not running.
func (srv *Server) HTTPAddr() net.Addr {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	if srv.httpListener == nil {
		return nil
	}
	return srv.httpListener.Addr()
}

// Nicknames returns the nicknames currently in the chat, in join order.
func (srv *Server) Nicknames(ctx context.Context) ([]string, error) {
	srv.sessMu.Lock()
	h := srv.hub
	accepting := srv.accepting
	srv.sessMu.Unlock()

	if !accepting || h == nil {
		return nil, kephaschat.ErrServerNotRunning
	}

	var nicks []string
	if err := h.call(ctx, func() {
		nicks = h.registry.Nicknames(nil)
	}); err != nil {
		return nil, err
	}
	return nicks, nil
}

func (srv *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			srv.cfg.Logger.Error("accept failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		srv.openSession(transport.NewTCP(conn, srv.cfg.WriteTimeout))
	}
}

// openSession registers conn with the hub and starts its reader. A
// connection that arrives while the server is stopping is closed.
func (srv *Server) openSession(conn transport.Conn) {
	srv.sessMu.Lock()
	defer srv.sessMu.Unlock()

	if !srv.accepting {
		conn.Close()
		return
	}

	h := srv.hub
	s := newSession(srv.runCtx, conn, srv.cfg)
	if !h.post(func() { h.register(s) }) {
		s.Close()
		return
	}

	srv.readers.Add(1)
	go func() {
		defer srv.readers.Done()
		srv.readLoop(h, s)
	}()
}
