package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
)

func drain(t *testing.T, c *PlayerConnection) []models.Event {
	t.Helper()
	var out []models.Event
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return out
			}
			var ev models.Event
			require.NoError(t, json.Unmarshal(data, &ev))
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHubSendToPlayerReachesEveryConnection(t *testing.T) {
	hub := NewHub(log.NewNop())
	phone := NewPlayerConnection(1)
	desktop := NewPlayerConnection(1)
	other := NewPlayerConnection(2)
	hub.Register(phone)
	hub.Register(desktop)
	hub.Register(other)

	hub.SendToPlayer(1, models.NewEvent(models.EventChallengeReceived, map[string]int{"duel_id": 3}))

	assert.Len(t, drain(t, phone), 1)
	assert.Len(t, drain(t, desktop), 1)
	assert.Empty(t, drain(t, other))
	assert.True(t, hub.Online(1))

	hub.Unregister(phone)
	hub.Unregister(desktop)
	assert.False(t, hub.Online(1))
	assert.True(t, phone.Closed())
}

func TestHubSendToRoom(t *testing.T) {
	hub := NewHub(log.NewNop())
	a := NewPlayerConnection(1)
	b := NewPlayerConnection(2)
	hub.JoinRoom("battle:7", a)
	hub.JoinRoom("battle:7", b)
	hub.JoinRoom("battle:8", NewPlayerConnection(3))

	hub.SendToRoom("battle:7", models.NewEvent(models.EventAttack, nil))
	hub.SendToRoom("battle:99", models.NewEvent(models.EventAttack, nil))

	evs := drain(t, a)
	require.Len(t, evs, 1)
	assert.Equal(t, models.EventAttack, evs[0].Type)
	assert.Len(t, drain(t, b), 1)
	assert.Equal(t, 2, hub.RoomSize("battle:7"))

	hub.Unregister(a)
	assert.Equal(t, 1, hub.RoomSize("battle:7"))
}

func TestHubPrunesFullConnection(t *testing.T) {
	hub := NewHub(log.NewNop())
	slow := NewPlayerConnection(1)
	hub.Register(slow)
	hub.JoinRoom("battle:7", slow)
	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, slow.Deliver(models.NewEvent(models.EventPong, nil)))
	}
	assert.ErrorIs(t, slow.Deliver(models.NewEvent(models.EventPong, nil)), ErrSendQueueFull)

	hub.SendToPlayer(1, models.NewEvent(models.EventDuelCompleted, nil))

	assert.True(t, slow.Closed(), "队列已满的连接被移除")
	assert.False(t, hub.Online(1))
	assert.Equal(t, 0, hub.RoomSize("battle:7"))
	assert.ErrorIs(t, slow.Deliver(models.NewEvent(models.EventPong, nil)), ErrConnectionClosed)
}

func TestHubCloseAll(t *testing.T) {
	hub := NewHub(log.NewNop())
	a := NewPlayerConnection(1)
	b := NewPlayerConnection(2)
	hub.Register(a)
	hub.JoinRoom("battle:1", b)

	hub.CloseAll()
	hub.CloseAll()

	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
	assert.False(t, hub.Online(1))
}
