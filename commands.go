package kephaschat

import "errors"

// InternalClientNick is the sender of messages the client library generates
// locally, such as decode failure notices.
const InternalClientNick = "Internal Client"

// Standard errors
var (
	// Connection errors
	ErrConnectionClosed = errors.New("connection is closed")
	ErrSendQueueFull    = errors.New("send queue is full")
	ErrNotConnected     = errors.New("not connected to server")
	ErrFailedToEncode   = errors.New("failed to encode message")

	// Chat state errors
	ErrNotJoined     = errors.New("not joined to the chat")
	ErrAlreadyJoined = errors.New("already joined to the chat")
	ErrClientClosed  = errors.New("client is closed")

	// Server lifecycle errors
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrServerNotRunning     = errors.New("server not running")
)
