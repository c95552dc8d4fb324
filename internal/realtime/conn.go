package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/gosuda/plank/internal/domain"
)

// Close reasons recorded on a Conn.
const (
	ReasonSlowConsumer = "slow consumer"
	ReasonShutdown     = "server shutting down"
	ReasonDisconnected = "disconnected"
)

// Conn is one authenticated client session. The transport drains Outbound
// and watches Done; everything else goes through the Registry and Router.
type Conn struct {
	ID       string
	Identity domain.Identity

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	reason    string

	limiter    *rate.Limiter
	lastActive atomic.Int64
}

// NewConn creates a connection with a bounded outbound queue. A nil limiter
// admits every intent.
func NewConn(identity domain.Identity, sendBuffer int, limiter *rate.Limiter) *Conn {
	if sendBuffer < 1 {
		sendBuffer = 1
	}
	c := &Conn{
		ID:       uuid.NewString(),
		Identity: identity,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		limiter:  limiter,
	}
	c.Touch()
	return c
}

// Send enqueues data without blocking. A full queue closes the connection
// as a slow consumer and reports false.
func (c *Conn) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		c.Close(ReasonSlowConsumer)
		return false
	}
}

// Outbound yields queued frames in FIFO order.
func (c *Conn) Outbound() <-chan []byte { return c.send }

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close marks the connection closed. Only the first reason is kept.
func (c *Conn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.done)
	})
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// CloseReason returns the reason passed to the first Close, or "" while open.
func (c *Conn) CloseReason() string {
	if !c.Closed() {
		return ""
	}
	return c.reason
}

// Allow consumes one intent token.
func (c *Conn) Allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// Touch records activity on the connection.
func (c *Conn) Touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

func (c *Conn) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}
