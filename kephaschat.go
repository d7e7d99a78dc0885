package kephaschat

import (
	"context"
	"net"

	"github.com/luciancaetano/kephaschat/internal/protocol"
)

// Server is a chat server speaking the binary frame protocol over TCP, and
// optionally over WebSocket.
//
// Example usage:
//
//	import "github.com/luciancaetano/kephaschat/chat"
//
//	server := chat.NewServer(chat.NewServerConfig("0.0.0.0:9999", chat.DefaultRateLimitConfig()))
//	go func() {
//	    <-ctx.Done()
//	    server.Shutdown(context.Background())
//	}()
//	if err := server.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
type Server interface {
	// Start binds the listeners and runs the server until Shutdown is called
	// or ctx is cancelled. It blocks for the server's whole lifetime.
	//
	// Returns an error if the server is already running or if there's a
	// problem binding to the network address.
	Start(ctx context.Context) error

	// Shutdown stops accepting connections and forcibly closes every live
	// session. Peers are not told about each other's departure.
	Shutdown(ctx context.Context) error

	// Addr returns the bound TCP address, or nil before Start has bound it.
	Addr() net.Addr

	// Nicknames returns the nicknames currently in the chat.
	Nicknames(ctx context.Context) ([]string, error)
}

// Client is one participant's connection to a chat server. It keeps
// reconnecting in the background and resumes its chat session after a
// reconnect without caller involvement.
//
// Example usage:
//
//	client := chat.NewClient(chat.NewClientConfig("127.0.0.1:9999"))
//	client.Start()
//	defer client.Close()
//
//	if err := client.Join(ctx, "alice"); err != nil {
//	    log.Printf("join: %v", err)
//	}
//	client.Send(chat.Text{From: "alice", Message: "hello"})
//
//	for range client.Inbox().Ready() {
//	    for _, msg := range client.Inbox().Drain() {
//	        render(msg)
//	    }
//	}
type Client interface {
	// Start begins connecting to the server. Failed attempts are retried
	// at a fixed interval until one succeeds or Close is called.
	Start()

	// Join enters the chat as nick and waits until the Connect message is
	// written.
	Join(ctx context.Context, nick string) error

	// Leave announces the departure and drops the nickname.
	Leave(ctx context.Context) error

	// Send queues a message for delivery without waiting for the write.
	Send(msg protocol.Message) error

	// RequestUsers asks the server for the current roster. The reply
	// arrives on the inbox as a ChatUsers message.
	RequestUsers() error

	// IsConnected reports whether the client has joined the chat.
	IsConnected() bool

	// IsServerOnline reports whether the transport to the server is up.
	IsServerOnline() bool

	// CurrentNick returns the nickname the client joined with.
	CurrentNick() (string, bool)

	// State returns the client's chat membership state.
	State() State

	// Inbox returns the queue of messages received from the server.
	Inbox() Inbox

	// Close tears the client down. No callback fires after it returns.
	Close() error
}

// Inbox is the thread-safe queue of delivered messages. It is the only
// structure a UI goroutine shares with the client's network goroutines.
type Inbox interface {
	// Pop removes and returns the oldest message.
	Pop() (protocol.Message, bool)

	// Drain removes and returns every queued message, oldest first.
	Drain() []protocol.Message

	// Len returns the number of queued messages.
	Len() int

	// Ready receives a value whenever messages were added since the last
	// receive. It is closed when the client is closed.
	Ready() <-chan struct{}
}

// State is a client's chat membership, tracked independently of whether the
// server is reachable.
type State int

const (
	// StateDisconnected means no nickname is held.
	StateDisconnected State = iota
	// StateConnecting means a Join is waiting for its Connect to be written.
	// Dialing the server is not a State; it shows as IsServerOnline false.
	StateConnecting
	// StateConnected means the client joined and holds a nickname.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Status is the snapshot handed to a client's status callback.
type Status struct {
	ServerOnline bool
	State        State
	Nick         string
}
