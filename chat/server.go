// Package chat is the public entry point for building chat servers and
// clients on top of the kephaschat interfaces.
package chat

import (
	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/server"
)

type RateLimitConfig = server.RateLimitConfig
type CheckOriginFn = server.CheckOriginFn
type SessionInfo = server.SessionInfo
type OnConnectFn = server.OnConnectFn
type OnDisconnectFn = server.OnDisconnectFn
type ServerConfig = *server.ServerConfig

// NewServer creates a chat server. Start it with Start(ctx), which blocks
// until Shutdown is called or ctx is cancelled.
//
// Example:
//
//	cfg := chat.NewServerConfig("0.0.0.0:9999", chat.DefaultRateLimitConfig())
//	cfg.HTTPAddr = "0.0.0.0:8080" // optional WebSocket gateway
//	server := chat.NewServer(cfg)
//	log.Fatal(server.Start(ctx))
func NewServer(cfg ServerConfig) kephaschat.Server {
	return server.New(cfg)
}

// NewServerConfig returns a configuration listening for TCP clients on addr.
// The remaining fields default when left unset.
func NewServerConfig(addr string, rateLimitConfig *RateLimitConfig) ServerConfig {
	return &server.ServerConfig{
		Addr:            addr,
		RateLimitConfig: rateLimitConfig,
	}
}

// ServerConfigFromEnv reads the server configuration from CHAT_*
// environment variables.
func ServerConfigFromEnv() ServerConfig {
	return server.NewConfigFromEnv()
}

// AllOrigins returns a checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return server.AllOrigins()
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return server.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return server.NoRateLimit()
}
