package ws

import (
	"sync"

	"restaurant-chat/internal/models"
)

// Client is one live connection. Frames are queued on send and written by the
// connection's write pump.
type Client struct {
	ID       string
	Identity models.Identity
	Info     ConnInfo

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewClient(id string, identity models.Identity, info ConnInfo, buffer int) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		ID:       id,
		Identity: identity,
		Info:     info,
		send:     make(chan []byte, buffer),
	}
}

// Enqueue queues a frame without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *Client) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the write pump. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Outbound exposes the frame queue to the write pump.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}
