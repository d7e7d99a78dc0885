package client

import (
	"log/slog"
	"time"

	"github.com/luciancaetano/kephaschat"
)

const (
	defaultRetryInterval     = time.Second
	defaultHeartbeatInterval = 5 * time.Second
	defaultDialTimeout       = 5 * time.Second
	defaultWriteTimeout      = 10 * time.Second
	defaultMaxBodySize       = 10 * 1024 * 1024
	defaultSendQueueSize     = 256
)

// OnStatusFn receives a snapshot whenever the server goes online or offline
// or the nickname is set or cleared. It runs on a client goroutine and must
// not call Close.
type OnStatusFn = func(status kephaschat.Status)

// Config configures a chat client. Either Addr (TCP) or URL (WebSocket,
// "ws://host:port/ws") must be set; URL wins when both are.
type Config struct {
	Addr string
	URL  string

	// RetryInterval is the fixed wait between connection attempts.
	RetryInterval     time.Duration
	HeartbeatInterval time.Duration
	DialTimeout       time.Duration
	WriteTimeout      time.Duration

	// MaxBodySize caps an inbound frame body; larger frames are skipped.
	MaxBodySize   uint32
	SendQueueSize int
	// InboxLimit bounds the inbox; the oldest messages are dropped past it.
	// Zero means unbounded.
	InboxLimit int

	OnStatus OnStatusFn
	Logger   *slog.Logger
}

// DefaultConfig returns a TCP client configuration for addr.
func DefaultConfig(addr string) *Config {
	return &Config{
		Addr:              addr,
		RetryInterval:     defaultRetryInterval,
		HeartbeatInterval: defaultHeartbeatInterval,
		DialTimeout:       defaultDialTimeout,
		WriteTimeout:      defaultWriteTimeout,
		MaxBodySize:       defaultMaxBodySize,
		SendQueueSize:     defaultSendQueueSize,
	}
}

func (c *Config) sanitize() {
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.MaxBodySize == 0 {
		c.MaxBodySize = defaultMaxBodySize
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = defaultSendQueueSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
