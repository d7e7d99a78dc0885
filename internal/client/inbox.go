package client

import (
	"sync"

	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/protocol"
)

// Inbox is a mutex-guarded FIFO of received messages with a coalescing
// ready signal.
type Inbox struct {
	mu     sync.Mutex
	items  []protocol.Message
	limit  int
	ready  chan struct{}
	closed bool
}

var _ kephaschat.Inbox = (*Inbox)(nil)

// NewInbox creates an inbox holding at most limit messages, or any number
// when limit is zero.
func NewInbox(limit int) *Inbox {
	return &Inbox{
		limit: limit,
		ready: make(chan struct{}, 1),
	}
}

// Push appends msg. It is a no-op once the inbox is closed.
func (q *Inbox) Push(msg protocol.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.items = append(q.items, msg)
	if q.limit > 0 && len(q.items) > q.limit {
		q.items[0] = nil
		q.items = q.items[1:]
	}

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Inbox) Pop() (protocol.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return msg, true
}

func (q *Inbox) Drain() []protocol.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	return out
}

func (q *Inbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Inbox) Ready() <-chan struct{} {
	return q.ready
}

// close closes the ready channel. Queued messages stay readable.
func (q *Inbox) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ready)
}
