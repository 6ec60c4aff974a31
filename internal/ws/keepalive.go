// internal/ws/keepalive.go
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// KeepAliveInterval is how often each connection is probed for liveness.
const KeepAliveInterval = 30 * time.Second

// Monitor is a per-connection liveness check: on every tick, a connection
// that never acknowledged the previous probe is closed; otherwise a new
// probe is sent and the alive flag is cleared until the acknowledgment
// arrives. The monitor stops itself when the connection's context ends.
type Monitor struct {
	mu    sync.Mutex
	alive bool
}

// StartMonitor runs the liveness loop for one connection in its own
// goroutine. The websocket Ping call completes only when the peer answers
// with a pong, which is the acknowledgment that marks the connection
// alive.
func StartMonitor(ctx context.Context, sock *websocket.Conn, interval time.Duration, log *logrus.Logger) {
	m := &Monitor{alive: true}
	go m.run(ctx, sock, interval, log)
}

func (m *Monitor) run(ctx context.Context, sock *websocket.Conn, interval time.Duration, log *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			wasAlive := m.alive
			m.alive = false
			m.mu.Unlock()

			if !wasAlive {
				log.Warn("liveness probe unanswered, closing connection")
				sock.Close(LivenessTimeout, "liveness probe unanswered")
				return
			}

			go func() {
				pingCtx, cancel := context.WithTimeout(ctx, interval)
				defer cancel()
				if err := sock.Ping(pingCtx); err == nil {
					m.mu.Lock()
					m.alive = true
					m.mu.Unlock()
				}
			}()
		}
	}
}
