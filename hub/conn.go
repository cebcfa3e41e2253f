package hub

import (
	"sync"

	"github.com/agent-hud/hub/protocol"
)

// Role classifies what kind of client a connection represents.
type Role string

const (
	RoleAgent    Role = "agent"
	RoleOperator Role = "operator"
)

// Conn is one live WebSocket client. The registry owns it for its
// lifetime; the write pump drains its outbound queue. Role and Profile
// are set during registration and read-only afterwards except through
// registry operations.
type Conn struct {
	ID      string
	Role    Role
	Profile *protocol.AgentProfile // non-nil iff Role == RoleAgent

	mu       sync.Mutex
	outbound chan []byte
	closed   bool
	dropped  int
}

func newConn(id string, queueSize int) *Conn {
	return &Conn{
		ID:       id,
		outbound: make(chan []byte, queueSize),
	}
}

// Send enqueues serialized bytes for the write pump. It never blocks:
// a full queue drops the message and returns ErrQueueFull, a closed
// connection returns ErrConnClosed.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.outbound <- data:
		return nil
	default:
		c.dropped++
		return ErrQueueFull
	}
}

// Close shuts the outbound queue, stopping the write pump after it
// drains. Safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.outbound)
}

// Dropped reports how many messages were discarded due to a full queue.
func (c *Conn) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
