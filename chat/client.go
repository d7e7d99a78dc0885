package chat

import (
	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/client"
)

type ClientConfig = *client.Config
type OnStatusFn = client.OnStatusFn

// NewClient creates a client. Call Start to begin connecting.
func NewClient(cfg ClientConfig) kephaschat.Client {
	return client.New(cfg)
}

// NewClientConfig returns a configuration for a TCP server at addr.
func NewClientConfig(addr string) ClientConfig {
	return client.DefaultConfig(addr)
}

// NewWebSocketClientConfig returns a configuration for a server's WebSocket
// gateway, e.g. "ws://localhost:8080/ws".
func NewWebSocketClientConfig(url string) ClientConfig {
	cfg := client.DefaultConfig("")
	cfg.URL = url
	return cfg
}
