package room

import (
	"context"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Event names for room-level messages. Quiz-phase events live in the quiz
// package.
const (
	EventJoined          = "joined"
	EventPlayerJoined    = "player-joined"
	EventPlayerLeft      = "player-left"
	EventNewHost         = "new-host"
	EventSettingsUpdated = "settings-updated"
	EventError           = "error"
)

// Connection is one live websocket member of a room. ID is the transient
// connection identity (one socket lifetime); SessionID survives reconnects.
//
// The room closes a connection's out channel when it is replaced by a
// reconnect or its member leaves, while the old socket's read pump may still
// be delivering a final message. Write and Close share a mutex so a write
// can never land on the closed channel.
type Connection struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Cancel    context.CancelFunc
	OutChan   chan map[string]interface{}

	mu     sync.Mutex
	closed bool
}

// Write pushes a message onto the connection's out channel without blocking.
// Messages to a full or closed connection are dropped and logged; broadcasts
// are fire-and-forget with no delivery guarantee.
func (c *Connection) Write(msg map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		event, _ := msg["type"].(string)
		log.Warnf("room: connection %s already closed, dropped %q", c.ID, event)
		return
	}
	select {
	case c.OutChan <- msg:
	default:
		event, _ := msg["type"].(string)
		log.Warnf("room: out channel for connection %s full, dropped %q", c.ID, event)
	}
}

// WriteError sends a private error message to this connection only; it never
// interrupts other members' sessions.
func (c *Connection) WriteError(message string) {
	c.Write(map[string]interface{}{
		"type":    EventError,
		"message": message,
	})
}

// Close shuts the out channel exactly once, stopping the write pump. Later
// writes are dropped, not panicked. Idempotent.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.OutChan)
	if c.Cancel != nil {
		c.Cancel()
	}
}
