// internal/ws/conn.go
package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Conn is one live connection's send side. Outbound messages are queued on
// a buffered channel drained by WritePump, so sends never block a handler;
// messages queued on one Conn arrive in queue order.
type Conn struct {
	UserID uuid.UUID

	out chan []byte
	log *logrus.Logger
}

// outBuffer is the per-connection send queue depth. A connection that
// cannot drain this many messages is treated as unwritable and messages
// to it are dropped.
const outBuffer = 32

func NewConn(userID uuid.UUID, log *logrus.Logger) *Conn {
	return &Conn{
		UserID: userID,
		out:    make(chan []byte, outBuffer),
		log:    log,
	}
}

// Send marshals payload and queues it without blocking. A full or closed
// queue drops the message; fan-out to a user's other connections is
// unaffected.
func (c *Conn) Send(payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.WithError(err).Warn("failed to marshal outbound message")
		return
	}
	select {
	case c.out <- data:
	default:
		c.log.WithField("user", c.UserID).Warn("send queue full, dropping message")
	}
}

// SendError queues a typed error payload.
func (c *Conn) SendError(msg string) {
	c.Send(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}

// WritePump drains the send queue onto the websocket until the context is
// cancelled or a write fails. Runs as its own goroutine per connection.
func (c *Conn) WritePump(ctx context.Context, sock *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.out:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := sock.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.log.WithError(err).WithField("user", c.UserID).Warn("websocket write failed")
				return
			}
		}
	}
}
