package server

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxBodySize   = 10 * 1024 * 1024 // 10MB max body size
	defaultSendQueueSize = 256
	defaultWriteTimeout  = 10 * time.Second
)

// CheckOriginFn validates the origin of a WebSocket upgrade request.
type CheckOriginFn = func(r *http.Request) bool

// SessionInfo is what connection callbacks can learn about a session.
type SessionInfo interface {
	ID() string
	RemoteAddr() string
}

// OnConnectFn is called on the hub goroutine once a session is registered,
// before any of its frames are dispatched.
type OnConnectFn = func(session SessionInfo)

// OnDisconnectFn is called on the hub goroutine when a session's stream
// ends. voluntary is true when the peer closed the stream cleanly, false for
// resets and other read errors. It is not called for sessions closed by
// Shutdown.
type OnDisconnectFn = func(session SessionInfo, voluntary bool)

// ServerConfig configures a chat server.
type ServerConfig struct {
	// Addr is the TCP listen address, e.g. "0.0.0.0:9999" or ":0".
	Addr string
	// HTTPAddr enables the WebSocket gateway and the /healthz and /users
	// endpoints when non-empty.
	HTTPAddr string

	RateLimitConfig *RateLimitConfig
	// MaxBodySize caps a frame body; larger frames are skipped.
	MaxBodySize uint32
	// SendQueueSize is the outbound queue length per session.
	SendQueueSize int
	WriteTimeout  time.Duration

	CheckOrigin  CheckOriginFn
	OnConnect    OnConnectFn
	OnDisconnect OnDisconnectFn

	Logger *slog.Logger
}

// RateLimitConfig defines inbound rate limiting per session
type RateLimitConfig struct {
	// MessagesPerSecond defines how many frames a session can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration
// Allows 100 messages per second with burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// AllOrigins accepts WebSocket upgrades from any origin.
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// sanitize fills unset fields with defaults.
func (c *ServerConfig) sanitize() {
	if c.RateLimitConfig == nil {
		c.RateLimitConfig = DefaultRateLimitConfig()
	}
	if c.MaxBodySize == 0 {
		c.MaxBodySize = defaultMaxBodySize
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = defaultSendQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *RateLimitConfig) newLimiter() *rate.Limiter {
	if c == nil || !c.Enabled {
		return nil
	}
	return rate.NewLimiter(c.MessagesPerSecond, c.Burst)
}
