// internal/presence/tracker_test.go
package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTracker() *Tracker {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewTracker(logger)
}

func TestStatusDerivation(t *testing.T) {
	tr := testTracker()
	u := uuid.New()

	assert.Equal(t, StatusOffline, tr.Snapshot(u).Status)

	tr.Connect(u, ChannelChat)
	assert.Equal(t, StatusOnline, tr.Snapshot(u).Status)

	// Game channel dominates regardless of other channels.
	tr.Connect(u, ChannelGame)
	assert.Equal(t, StatusInGame, tr.Snapshot(u).Status)
	tr.Disconnect(u, ChannelChat)
	assert.Equal(t, StatusInGame, tr.Snapshot(u).Status)

	tr.Disconnect(u, ChannelGame)
	assert.Equal(t, StatusOffline, tr.Snapshot(u).Status)
}

func TestLastSeenSetOnlyWhenFullyOffline(t *testing.T) {
	tr := testTracker()
	u := uuid.New()

	tr.Connect(u, ChannelChat)
	tr.Connect(u, ChannelGame)
	tr.Disconnect(u, ChannelGame)
	assert.Nil(t, tr.Snapshot(u).LastSeen, "still online on chat")

	tr.Disconnect(u, ChannelChat)
	snap := tr.Snapshot(u)
	assert.Equal(t, StatusOffline, snap.Status)
	require.NotNil(t, snap.LastSeen)

	// Reconnecting clears the timestamp.
	tr.Connect(u, ChannelPresence)
	assert.Nil(t, tr.Snapshot(u).LastSeen)
}

func TestDisconnectClampsAtZero(t *testing.T) {
	tr := testTracker()
	u := uuid.New()

	tr.Disconnect(u, ChannelChat)
	tr.Disconnect(u, ChannelChat)
	tr.Connect(u, ChannelChat)
	assert.Equal(t, StatusOnline, tr.Snapshot(u).Status, "counter must not go negative")
}

func TestSubscriberNotifiedOnChangeOnly(t *testing.T) {
	tr := testTracker()
	u := uuid.New()

	var mu sync.Mutex
	var got []Entry
	tr.Subscribe(func(e Entry) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})

	tr.Connect(u, ChannelChat)    // offline -> online
	tr.Connect(u, ChannelChat)    // still online, no event
	tr.Connect(u, ChannelGame)    // online -> in-game
	tr.Disconnect(u, ChannelGame) // in-game -> online
	tr.Disconnect(u, ChannelChat) // still online, no event
	tr.Disconnect(u, ChannelChat) // online -> offline (last-seen set)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 4)
	assert.Equal(t, StatusOnline, got[0].Status)
	assert.Equal(t, StatusInGame, got[1].Status)
	assert.Equal(t, StatusOnline, got[2].Status)
	assert.Equal(t, StatusOffline, got[3].Status)
	assert.NotNil(t, got[3].LastSeen)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	tr := testTracker()
	u := uuid.New()

	calls := 0
	id := tr.Subscribe(func(Entry) { calls++ })
	tr.Connect(u, ChannelChat)
	tr.Unsubscribe(id)
	tr.Disconnect(u, ChannelChat)
	assert.Equal(t, 1, calls)
}

func TestSnapshotMany(t *testing.T) {
	tr := testTracker()
	u1, u2 := uuid.New(), uuid.New()
	tr.Connect(u1, ChannelGame)

	entries := tr.SnapshotMany([]uuid.UUID{u1, u2})
	require.Len(t, entries, 2)
	assert.Equal(t, StatusInGame, entries[0].Status)
	assert.Equal(t, StatusOffline, entries[1].Status)
}

func TestRetentionPruning(t *testing.T) {
	tr := testTracker()
	current := time.Now()
	tr.now = func() time.Time { return current }

	stale := uuid.New()
	tr.Connect(stale, ChannelChat)
	tr.Disconnect(stale, ChannelChat)

	// Advance past the retention window; the next last-seen write prunes.
	current = current.Add(lastSeenRetention + time.Hour)
	fresh := uuid.New()
	tr.Connect(fresh, ChannelChat)
	tr.Disconnect(fresh, ChannelChat)

	assert.Nil(t, tr.Snapshot(stale).LastSeen, "stale entry expired")
	assert.NotNil(t, tr.Snapshot(fresh).LastSeen)
}

func TestMaxEntriesEviction(t *testing.T) {
	tr := testTracker()
	base := time.Now()
	step := 0
	tr.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Millisecond)
	}

	oldest := uuid.New()
	tr.Connect(oldest, ChannelChat)
	tr.Disconnect(oldest, ChannelChat)

	for i := 0; i < lastSeenMaxEntries; i++ {
		u := uuid.New()
		tr.Connect(u, ChannelChat)
		tr.Disconnect(u, ChannelChat)
	}

	assert.Nil(t, tr.Snapshot(oldest).LastSeen, "oldest entry evicted over the cap")
}
