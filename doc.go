// Package kephaschat provides a small real-time chat service: a server that fans
// messages out to connected clients, and a client that keeps itself connected.
//
// Clients join with a nickname, exchange broadcast and private text messages,
// and leave. The server keeps a registry of live sessions and the nicknames
// bound to them and routes every message through it.
//
// # Architecture
//
// The server runs one reader goroutine and one writer goroutine per session.
// Readers decode frames and post them to a single hub goroutine, which owns the
// session registry and runs every handler to completion. Registry changes are
// therefore never concurrent, and a nickname is set before anyone sees the
// Connect that announces it.
//
// Every session has a bounded outbound queue drained by its writer, so at most
// one write is in flight per socket. A peer that stops reading loses frames
// once its queue is full; it never stalls the hub.
//
// The client runs a background connection loop. It dials, retries at a fixed
// interval on failure, and after a reconnect re-joins with the nickname it had.
// A heartbeat goroutine probes the server so a dead connection is noticed even
// when the user is idle.
//
// # Quick Start
//
//	import "github.com/luciancaetano/kephaschat/chat"
//
//	// Server
//	server := chat.NewServer(chat.NewServerConfig("0.0.0.0:9999", chat.DefaultRateLimitConfig()))
//	go server.Start(ctx)
//
//	// Client
//	client := chat.NewClient(chat.NewClientConfig("127.0.0.1:9999"))
//	client.Start()
//	defer client.Close()
//
//	client.Join(ctx, "alice")
//	client.Send(chat.Text{From: "alice", Message: "hello"})
//	client.Send(chat.Private{From: "alice", To: "bob", Message: "psst"})
//
// # Protocol Format
//
// Every message is a 5-byte header followed by a body:
//
//	[1 byte: type][4 bytes: body size (uint32, big-endian)][body]
//
// Types are Connect=0, Disconnect=1, Text=2, Private=3, ChatUsers=4 and
// Heartbeat=5. Each string field in a body is a 4-byte big-endian length
// followed by the raw bytes, in declaration order. ChatUsers carries a 4-byte
// count followed by that many strings. Heartbeat has an empty body.
//
// A frame that cannot be decoded is skipped and the stream continues at the
// next header; one bad frame never closes a connection. Frame bodies above
// the configured maximum (10MB by default) are discarded the same way.
//
// # WebSocket Gateway
//
// When ServerConfig.HTTPAddr is set the server also serves:
//
//	GET /ws       the same frame stream over binary WebSocket messages
//	GET /healthz  liveness
//	GET /users    current nicknames as a JSON array
//
// Incoming WebSocket messages are concatenated into one byte stream, so a frame
// may span messages. Each outgoing frame is sent as one message. TCP and
// WebSocket sessions share the same registry and see each other's messages.
//
// # Rate Limiting
//
// Each session has an independent token bucket for inbound frames:
//
//	// Default: 100 messages/second, burst 200
//	rateLimitConfig := chat.DefaultRateLimitConfig()
//
//	// Custom configuration
//	rateLimitConfig := &chat.RateLimitConfig{
//	    MessagesPerSecond: 50,
//	    Burst:             100,
//	    Enabled:           true,
//	}
//
//	// Disable rate limiting
//	rateLimitConfig := chat.NoRateLimit()
//
// Frames over the limit are dropped and logged. The connection stays open.
//
// # Thread Safety
//
// Server and Client methods are safe for concurrent use. A client's Inbox is
// the only structure a UI goroutine needs to share with the network side; wait
// on Inbox().Ready() and Drain() it, or poll it on a timer.
package kephaschat
