package client

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/protocol"
	"github.com/luciancaetano/kephaschat/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitTimeout = 2 * time.Second

// fakeServer accepts raw connections so tests can play the server side.
type fakeServer struct {
	ln    net.Listener
	conns chan net.Conn
	done  chan struct{}
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeServer{ln: ln, conns: make(chan net.Conn, 8), done: make(chan struct{})}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			select {
			case f.conns <- conn:
			case <-f.done:
				conn.Close()
				return
			}
		}
	}()

	t.Cleanup(func() {
		close(f.done)
		ln.Close()
	})
	return f
}

func (f *fakeServer) addr() string {
	return f.ln.Addr().String()
}

func (f *fakeServer) accept(t *testing.T) net.Conn {
	t.Helper()

	select {
	case conn := <-f.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(waitTimeout):
		t.Fatal("client did not connect")
		return nil
	}
}

type statusLog struct {
	mu  sync.Mutex
	all []kephaschat.Status
}

func (s *statusLog) record(st kephaschat.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, st)
}

func (s *statusLog) seen(match func(kephaschat.Status) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.all {
		if match(st) {
			return true
		}
	}
	return false
}

func testClientConfig(addr string) *Config {
	cfg := DefaultConfig(addr)
	cfg.RetryInterval = 20 * time.Millisecond
	cfg.HeartbeatInterval = time.Hour
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func startClient(t *testing.T, cfg *Config) *Client {
	t.Helper()

	c := New(cfg)
	c.Start()
	t.Cleanup(func() { c.Close() })
	return c
}

func waitOnline(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, c.IsServerOnline, waitTimeout, 5*time.Millisecond, "client never came online")
}

func readMsg(t *testing.T, conn net.Conn) protocol.Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitTimeout)))
	defer conn.SetReadDeadline(time.Time{})

	header, err := protocol.ReadHeader(conn)
	require.NoError(t, err)
	body, err := protocol.ReadBody(conn, header, 0)
	require.NoError(t, err)
	msg, err := protocol.DecodeBody(header, body)
	require.NoError(t, err)
	return msg
}

func writeMsg(t *testing.T, conn net.Conn, msg protocol.Message) {
	t.Helper()

	frame, err := protocol.Encode(msg)
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)
}

// nextMessage waits for the inbox to hold a message and pops it.
func nextMessage(t *testing.T, c *Client) protocol.Message {
	t.Helper()

	var msg protocol.Message
	require.Eventually(t, func() bool {
		var ok bool
		msg, ok = c.Inbox().Pop()
		return ok
	}, waitTimeout, 5*time.Millisecond, "no message arrived")
	return msg
}

func TestJoinSendsConnect(t *testing.T) {
	t.Parallel()
	srv := newFakeServer(t)
	c := startClient(t, testClientConfig(srv.addr()))

	conn := srv.accept(t)
	waitOnline(t, c)
	assert.Equal(t, kephaschat.StateDisconnected, c.State())

	require.NoError(t, c.Join(context.Background(), "alice"))
	assert.Equal(t, protocol.Connect{Nick: "alice"}, readMsg(t, conn))

	assert.True(t, c.IsConnected())
	nick, ok := c.CurrentNick()
	assert.True(t, ok)
	assert.Equal(t, "alice", nick)

	assert.ErrorIs(t, c.Join(context.Background(), "again"), kephaschat.ErrAlreadyJoined)
}

func TestLeaveSendsDisconnect(t *testing.T) {
	t.Parallel()
	srv := newFakeServer(t)
	c := startClient(t, testClientConfig(srv.addr()))

	conn := srv.accept(t)
	waitOnline(t, c)

	assert.ErrorIs(t, c.Leave(context.Background()), kephaschat.ErrNotJoined)

	require.NoError(t, c.Join(context.Background(), "alice"))
	readMsg(t, conn)

	require.NoError(t, c.Leave(context.Background()))
	assert.Equal(t, protocol.Disconnect{Nick: "alice"}, readMsg(t, conn))

	assert.False(t, c.IsConnected())
	_, ok := c.CurrentNick()
	assert.False(t, ok)
	assert.True(t, c.IsServerOnline())
}

func TestSendAndRequestUsers(t *testing.T) {
	t.Parallel()
	srv := newFakeServer(t)
	c := startClient(t, testClientConfig(srv.addr()))

	conn := srv.accept(t)
	waitOnline(t, c)

	require.NoError(t, c.Send(protocol.Text{From: "alice", Message: "hi"}))
	require.NoError(t, c.Send(protocol.Private{From: "alice", To: "bob", Message: "psst"}))
	require.NoError(t, c.RequestUsers())

	assert.Equal(t, protocol.Text{From: "alice", Message: "hi"}, readMsg(t, conn))
	assert.Equal(t, protocol.Private{From: "alice", To: "bob", Message: "psst"}, readMsg(t, conn))
	assert.Equal(t, protocol.ChatUsers{Users: []string{}}, readMsg(t, conn))
}

func TestOperationsBeforeConnect(t *testing.T) {
	t.Parallel()
	c := New(testClientConfig("127.0.0.1:1"))
	defer c.Close()

	assert.ErrorIs(t, c.Send(protocol.Text{}), kephaschat.ErrNotConnected)
	assert.ErrorIs(t, c.Join(context.Background(), "alice"), kephaschat.ErrNotConnected)
	assert.Equal(t, kephaschat.StateDisconnected, c.State())
	assert.False(t, c.IsServerOnline())
}

func TestInboundMessagesReachInbox(t *testing.T) {
	t.Parallel()
	srv := newFakeServer(t)
	c := startClient(t, testClientConfig(srv.addr()))

	conn := srv.accept(t)
	waitOnline(t, c)

	writeMsg(t, conn, protocol.Connect{Nick: "bob"})
	writeMsg(t, conn, protocol.Heartbeat{})
	writeMsg(t, conn, protocol.Text{From: "bob", Message: "hello"})
	writeMsg(t, conn, protocol.ChatUsers{Users: []string{"bob", "carol"}})

	assert.Equal(t, protocol.Connect{Nick: "bob"}, nextMessage(t, c))
	assert.Equal(t, protocol.Text{From: "bob", Message: "hello"}, nextMessage(t, c))
	assert.Equal(t, protocol.ChatUsers{Users: []string{"bob", "carol"}}, nextMessage(t, c))
	assert.Zero(t, c.Inbox().Len())
}

func TestUndecodableFramesBecomeNotices(t *testing.T) {
	t.Parallel()
	srv := newFakeServer(t)
	c := startClient(t, testClientConfig(srv.addr()))

	conn := srv.accept(t)
	waitOnline(t, c)

	// Unknown type tag with a two byte body.
	_, err := conn.Write([]byte{0x42, 0, 0, 0, 2, 'x', 'x'})
	require.NoError(t, err)

	// Text whose length prefix overruns the body.
	body := binary.BigEndian.AppendUint32(nil, 50)
	bad := append(protocol.EncodeHeader(protocol.Header{Type: protocol.TypeText, BodySize: uint32(len(body))}), body...)
	_, err = conn.Write(bad)
	require.NoError(t, err)

	writeMsg(t, conn, protocol.Text{From: "bob", Message: "fine"})

	assert.Equal(t, protocol.Text{From: kephaschat.InternalClientNick, Message: headerFailureText}, nextMessage(t, c))
	assert.Equal(t, protocol.Text{From: kephaschat.InternalClientNick, Message: bodyFailureText}, nextMessage(t, c))
	assert.Equal(t, protocol.Text{From: "bob", Message: "fine"}, nextMessage(t, c))
	assert.True(t, c.IsServerOnline())
}

func TestOversizedFrameBecomesNotice(t *testing.T) {
	t.Parallel()
	srv := newFakeServer(t)
	cfg := testClientConfig(srv.addr())
	cfg.MaxBodySize = 32
	c := startClient(t, cfg)

	conn := srv.accept(t)
	waitOnline(t, c)

	writeMsg(t, conn, protocol.Text{From: "bob", Message: strings.Repeat("x", 100)})
	writeMsg(t, conn, protocol.Text{From: "bob", Message: "short"})

	assert.Equal(t, protocol.Text{From: kephaschat.InternalClientNick, Message: oversizeText}, nextMessage(t, c))
	assert.Equal(t, protocol.Text{From: "bob", Message: "short"}, nextMessage(t, c))
}

func TestReconnectRejoinsWithSameNick(t *testing.T) {
	t.Parallel()
	srv := newFakeServer(t)

	var statuses statusLog
	cfg := testClientConfig(srv.addr())
	cfg.OnStatus = statuses.record
	c := startClient(t, cfg)

	first := srv.accept(t)
	waitOnline(t, c)
	require.NoError(t, c.Join(context.Background(), "alice"))
	assert.Equal(t, protocol.Connect{Nick: "alice"}, readMsg(t, first))

	// Drop the connection from the server side.
	require.NoError(t, first.Close())

	second := srv.accept(t)
	assert.Equal(t, protocol.Connect{Nick: "alice"}, readMsg(t, second))

	waitOnline(t, c)
	assert.True(t, c.IsConnected())
	assert.True(t, statuses.seen(func(st kephaschat.Status) bool {
		return !st.ServerOnline && st.State == kephaschat.StateConnected && st.Nick == "alice"
	}), "offline transition was not reported while joined")
}

func TestReconnectWithoutJoinSendsNothing(t *testing.T) {
	t.Parallel()
	srv := newFakeServer(t)
	c := startClient(t, testClientConfig(srv.addr()))

	first := srv.accept(t)
	waitOnline(t, c)
	require.NoError(t, first.Close())

	second := srv.accept(t)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err := second.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestRetriesUntilServerAppears(t *testing.T) {
	t.Parallel()

	// Reserve a port, then free it so the first attempts fail.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := startClient(t, testClientConfig(addr))
	time.Sleep(60 * time.Millisecond)
	assert.False(t, c.IsServerOnline())
	assert.Equal(t, kephaschat.StateDisconnected, c.State())

	ln, err = net.Listen("tcp", addr)
	require.NoError(t, err)
	defer ln.Close()

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	waitOnline(t, c)
}

func TestHeartbeatsAreSent(t *testing.T) {
	t.Parallel()
	srv := newFakeServer(t)
	cfg := testClientConfig(srv.addr())
	cfg.HeartbeatInterval = 10 * time.Millisecond
	c := startClient(t, cfg)

	conn := srv.accept(t)
	waitOnline(t, c)

	assert.Equal(t, protocol.Heartbeat{}, readMsg(t, conn))
	assert.Equal(t, protocol.Heartbeat{}, readMsg(t, conn))
}

func TestConnectionResetTakesServerOffline(t *testing.T) {
	t.Parallel()
	srv := newFakeServer(t)

	var statuses statusLog
	cfg := testClientConfig(srv.addr())
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.OnStatus = statuses.record
	c := startClient(t, cfg)

	conn := srv.accept(t)
	waitOnline(t, c)

	// Reset instead of a clean close.
	require.NoError(t, conn.(*net.TCPConn).SetLinger(0))
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return statuses.seen(func(st kephaschat.Status) bool { return !st.ServerOnline })
	}, waitTimeout, 5*time.Millisecond)

	// And the loop dials again.
	srv.accept(t)
}

func TestCloseStopsClient(t *testing.T) {
	t.Parallel()
	srv := newFakeServer(t)

	var statuses statusLog
	cfg := testClientConfig(srv.addr())
	cfg.OnStatus = statuses.record
	c := New(cfg)
	c.Start()

	conn := srv.accept(t)
	waitOnline(t, c)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	statuses.mu.Lock()
	count := len(statuses.all)
	statuses.mu.Unlock()

	_, ok := <-c.Inbox().Ready()
	assert.False(t, ok, "ready channel should be closed")

	assert.ErrorIs(t, c.Send(protocol.Text{}), kephaschat.ErrClientClosed)
	assert.False(t, c.IsServerOnline())

	// The server side sees the socket close.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitTimeout)))
	_, err := conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)

	statuses.mu.Lock()
	defer statuses.mu.Unlock()
	assert.Len(t, statuses.all, count, "callback fired after Close")

	c.Start()
	assert.False(t, c.IsServerOnline())
}

func TestWebSocketTransport(t *testing.T) {
	t.Parallel()

	frames := make(chan protocol.Message, 4)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := transport.NewWebSocket(ws, time.Second)
		defer conn.Close()

		frame, _ := protocol.Encode(protocol.Text{From: "server", Message: "welcome"})
		if err := conn.WriteFrame(frame); err != nil {
			return
		}

		for {
			header, err := protocol.ReadHeader(conn)
			if err != nil {
				return
			}
			body, err := protocol.ReadBody(conn, header, 0)
			if err != nil {
				return
			}
			msg, err := protocol.DecodeBody(header, body)
			if err != nil {
				return
			}
			frames <- msg
		}
	}))
	defer ts.Close()

	cfg := testClientConfig("")
	cfg.URL = "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	c := New(cfg)
	c.Start()
	defer c.Close()

	waitOnline(t, c)
	assert.Equal(t, protocol.Text{From: "server", Message: "welcome"}, nextMessage(t, c))

	require.NoError(t, c.Join(context.Background(), "alice"))
	select {
	case msg := <-frames:
		assert.Equal(t, protocol.Connect{Nick: "alice"}, msg)
	case <-time.After(waitTimeout):
		t.Fatal("server did not receive Connect")
	}
}
