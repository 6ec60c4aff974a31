// internal/ws/registry_test.go
package ws

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/throwdown-gg/throwdown/internal/presence"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// drain pops every queued message off a Conn's buffer.
func drain(c *Conn) []map[string]interface{} {
	var out []map[string]interface{}
	for {
		select {
		case data := <-c.out:
			var m map[string]interface{}
			_ = json.Unmarshal(data, &m)
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestFanOutToAllUserConnections(t *testing.T) {
	r := NewRegistry()
	u := uuid.New()
	tab1 := NewConn(u, quietLogger())
	tab2 := NewConn(u, quietLogger())
	r.Register(u, presence.ChannelGame, tab1)
	r.Register(u, presence.ChannelGame, tab2)

	r.SendToUser(u, presence.ChannelGame, map[string]string{"type": "gameState"})

	require.Len(t, drain(tab1), 1)
	require.Len(t, drain(tab2), 1)
}

func TestSendSkipsOtherUsersAndChannels(t *testing.T) {
	r := NewRegistry()
	u, other := uuid.New(), uuid.New()
	gameConn := NewConn(u, quietLogger())
	chatConn := NewConn(u, quietLogger())
	otherConn := NewConn(other, quietLogger())
	r.Register(u, presence.ChannelGame, gameConn)
	r.Register(u, presence.ChannelChat, chatConn)
	r.Register(other, presence.ChannelGame, otherConn)

	r.SendToUser(u, presence.ChannelGame, map[string]string{"type": "gameState"})

	assert.Len(t, drain(gameConn), 1)
	assert.Empty(t, drain(chatConn))
	assert.Empty(t, drain(otherConn))
}

func TestSendToAllChannels(t *testing.T) {
	r := NewRegistry()
	u := uuid.New()
	gameConn := NewConn(u, quietLogger())
	chatConn := NewConn(u, quietLogger())
	r.Register(u, presence.ChannelGame, gameConn)
	r.Register(u, presence.ChannelChat, chatConn)

	r.SendToAllChannels(u, map[string]string{"type": "roundResolved"})

	assert.Len(t, drain(gameConn), 1)
	assert.Len(t, drain(chatConn), 1)
}

func TestUnregisterStopsDelivery(t *testing.T) {
	r := NewRegistry()
	u := uuid.New()
	c := NewConn(u, quietLogger())
	r.Register(u, presence.ChannelGame, c)
	r.Unregister(u, presence.ChannelGame, c)

	r.SendToUser(u, presence.ChannelGame, map[string]string{"type": "gameState"})
	assert.Empty(t, drain(c))
}

func TestFullQueueSkippedNotBlocked(t *testing.T) {
	r := NewRegistry()
	u := uuid.New()
	full := NewConn(u, quietLogger())
	healthy := NewConn(u, quietLogger())
	r.Register(u, presence.ChannelGame, full)
	r.Register(u, presence.ChannelGame, healthy)

	for i := 0; i < outBuffer; i++ {
		full.Send(map[string]int{"n": i})
	}
	drain(healthy)

	// The saturated connection drops the message; the healthy one gets it.
	r.SendToUser(u, presence.ChannelGame, map[string]string{"type": "gameState"})
	assert.Len(t, drain(full), outBuffer)
	assert.Len(t, drain(healthy), 1)
}

func TestPerConnectionOrderPreserved(t *testing.T) {
	r := NewRegistry()
	u := uuid.New()
	c := NewConn(u, quietLogger())
	r.Register(u, presence.ChannelGame, c)

	for i := 0; i < 5; i++ {
		r.SendToUser(u, presence.ChannelGame, map[string]interface{}{"seq": i})
	}
	msgs := drain(c)
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, float64(i), m["seq"])
	}
}
