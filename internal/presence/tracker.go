// internal/presence/tracker.go
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Channel is a logical category of live connection. Each channel keeps its
// own per-user reference count.
type Channel string

const (
	ChannelChat     Channel = "chat"
	ChannelGame     Channel = "game"
	ChannelPresence Channel = "presence"
)

// Status is a user's derived live status. It is a pure function of the
// channel counters at the instant of query, never stored as independent
// truth.
type Status string

const (
	StatusOnline  Status = "online"
	StatusInGame  Status = "in-game"
	StatusOffline Status = "offline"
)

// Entry is one user's presence snapshot. LastSeen is set only while the
// user is offline.
type Entry struct {
	UserID   uuid.UUID  `json:"userId"`
	Status   Status     `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

const (
	// lastSeenRetention bounds how long an offline timestamp is kept.
	lastSeenRetention = 24 * time.Hour
	// lastSeenMaxEntries bounds the last-seen map against churny
	// ephemeral users; oldest entries are evicted first.
	lastSeenMaxEntries = 10000
)

// Subscriber receives presence snapshots whenever a user's status or
// last-seen changes. Callbacks must not block and must not call back into
// the tracker.
type Subscriber func(Entry)

// Tracker derives live status from per-channel connection counts and
// retains a bounded last-seen history. Safe for concurrent use.
type Tracker struct {
	log *logrus.Logger

	// notifyMu serializes emission so every subscriber observes updates
	// in emit order. It is always acquired before mu, never the reverse.
	notifyMu sync.Mutex

	mu       sync.Mutex
	counts   map[uuid.UUID]map[Channel]int
	lastSeen map[uuid.UUID]time.Time
	subs     map[int]Subscriber
	nextSub  int

	now func() time.Time
}

func NewTracker(log *logrus.Logger) *Tracker {
	return &Tracker{
		log:      log,
		counts:   make(map[uuid.UUID]map[Channel]int),
		lastSeen: make(map[uuid.UUID]time.Time),
		subs:     make(map[int]Subscriber),
		now:      time.Now,
	}
}

// Subscribe registers a callback for presence changes and returns an id
// for Unsubscribe.
func (t *Tracker) Subscribe(fn Subscriber) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	return id
}

func (t *Tracker) Unsubscribe(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, id)
}

// Connect increments the user's counter for one channel and notifies
// subscribers if the derived status changed. A reconnect clears any
// last-seen timestamp.
func (t *Tracker) Connect(userID uuid.UUID, ch Channel) {
	t.adjust(userID, ch, +1)
}

// Disconnect decrements the user's counter for one channel, clamped at
// zero. Dropping the last connection across all channels stamps last-seen.
func (t *Tracker) Disconnect(userID uuid.UUID, ch Channel) {
	t.adjust(userID, ch, -1)
}

func (t *Tracker) adjust(userID uuid.UUID, ch Channel, delta int) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	before := t.entryUnsafe(userID)

	chans := t.counts[userID]
	if chans == nil {
		chans = make(map[Channel]int)
		t.counts[userID] = chans
	}
	chans[ch] += delta
	if chans[ch] < 0 {
		chans[ch] = 0
	}

	total := 0
	for _, n := range chans {
		total += n
	}
	if total == 0 {
		delete(t.counts, userID)
		t.lastSeen[userID] = t.now()
		t.pruneUnsafe()
	} else {
		delete(t.lastSeen, userID)
	}

	after := t.entryUnsafe(userID)
	changed := before.Status != after.Status || !equalTime(before.LastSeen, after.LastSeen)

	var subs []Subscriber
	if changed {
		subs = make([]Subscriber, 0, len(t.subs))
		for _, fn := range t.subs {
			subs = append(subs, fn)
		}
	}
	t.mu.Unlock()

	if !changed {
		return
	}
	t.log.WithFields(logrus.Fields{
		"user":   userID,
		"status": after.Status,
	}).Debug("presence changed")
	for _, fn := range subs {
		fn(after)
	}
}

// Snapshot returns the user's current presence entry.
func (t *Tracker) Snapshot(userID uuid.UUID) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entryUnsafe(userID)
}

// SnapshotMany returns entries for each id, in the given order.
func (t *Tracker) SnapshotMany(userIDs []uuid.UUID) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(userIDs))
	for _, id := range userIDs {
		out = append(out, t.entryUnsafe(id))
	}
	return out
}

// entryUnsafe computes the derived entry. Assumes mu is held.
func (t *Tracker) entryUnsafe(userID uuid.UUID) Entry {
	e := Entry{UserID: userID, Status: StatusOffline}
	if chans, ok := t.counts[userID]; ok {
		total := 0
		for _, n := range chans {
			total += n
		}
		if chans[ChannelGame] > 0 {
			e.Status = StatusInGame
			return e
		}
		if total > 0 {
			e.Status = StatusOnline
			return e
		}
	}
	if ts, ok := t.lastSeen[userID]; ok {
		c := ts
		e.LastSeen = &c
	}
	return e
}

// pruneUnsafe expires last-seen entries older than the retention window,
// then evicts the oldest entries down to the size cap. Assumes mu is held.
// Runs on every write that sets a new last-seen value.
func (t *Tracker) pruneUnsafe() {
	cutoff := t.now().Add(-lastSeenRetention)
	for id, ts := range t.lastSeen {
		if ts.Before(cutoff) {
			delete(t.lastSeen, id)
		}
	}
	if len(t.lastSeen) <= lastSeenMaxEntries {
		return
	}
	type rec struct {
		id uuid.UUID
		ts time.Time
	}
	all := make([]rec, 0, len(t.lastSeen))
	for id, ts := range t.lastSeen {
		all = append(all, rec{id, ts})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts.Before(all[j].ts) })
	for _, r := range all[:len(all)-lastSeenMaxEntries] {
		delete(t.lastSeen, r.id)
	}
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
