// internal/ws/registry.go
package ws

import (
	"sync"

	"github.com/google/uuid"

	"github.com/throwdown-gg/throwdown/internal/presence"
)

// Registry maps a user identity to the set of currently-open connections
// per logical channel, covering reconnects and multiple tabs. Sends are
// best-effort fan-out; no ordering is guaranteed across a user's
// simultaneous connections, only within each one.
//
// Lock discipline: the registry mutex is never held while calling into the
// presence tracker, and vice versa.
type Registry struct {
	mu    sync.Mutex
	conns map[presence.Channel]map[uuid.UUID]map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[presence.Channel]map[uuid.UUID]map[*Conn]struct{}),
	}
}

func (r *Registry) Register(userID uuid.UUID, ch presence.Channel, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := r.conns[ch]
	if users == nil {
		users = make(map[uuid.UUID]map[*Conn]struct{})
		r.conns[ch] = users
	}
	set := users[userID]
	if set == nil {
		set = make(map[*Conn]struct{})
		users[userID] = set
	}
	set[c] = struct{}{}
}

func (r *Registry) Unregister(userID uuid.UUID, ch presence.Channel, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.conns[ch][userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.conns[ch], userID)
		}
	}
}

// SendToUser queues payload on every open connection for userID on one
// channel. Connections that cannot accept the message are skipped.
func (r *Registry) SendToUser(userID uuid.UUID, ch presence.Channel, payload interface{}) {
	for _, c := range r.connsFor(userID, ch) {
		c.Send(payload)
	}
}

// SendToAllChannels queues payload on every connection the user has open
// on any channel. Used for game results, which should reach a player
// wherever they are connected.
func (r *Registry) SendToAllChannels(userID uuid.UUID, payload interface{}) {
	r.mu.Lock()
	targets := make([]*Conn, 0, 4)
	for _, users := range r.conns {
		for c := range users[userID] {
			targets = append(targets, c)
		}
	}
	r.mu.Unlock()
	for _, c := range targets {
		c.Send(payload)
	}
}

func (r *Registry) connsFor(userID uuid.UUID, ch presence.Channel) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.conns[ch][userID]
	out := make([]*Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}
