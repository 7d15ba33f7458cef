package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainOne(t *testing.T, c *HubClient) Envelope {
	t.Helper()
	select {
	case b, ok := <-c.Send():
		require.True(t, ok, "send channel closed")
		var env Envelope
		require.NoError(t, json.Unmarshal(b, &env))
		return env
	default:
		t.Fatal("no message queued")
		return Envelope{}
	}
}

func TestHub_Broadcast(t *testing.T) {
	h := NewHub(nil)
	admin := h.Register("a1", RoleAdmin)
	display := h.Register("d1", RoleDisplay)
	player := h.Register("p1", RolePlayer)
	require.Equal(t, 3, h.ClientCount())

	h.Broadcast(Envelope{Type: EventTimerUpdate, Payload: mustJSON(TimerUpdatePayload{Seconds: 10})})

	for _, c := range []*HubClient{admin, display, player} {
		env := drainOne(t, c)
		assert.Equal(t, EventTimerUpdate, env.Type)
	}

	h.BroadcastRole(Envelope{Type: EventGameReset}, RoleAdmin)
	assert.Equal(t, EventGameReset, drainOne(t, admin).Type)
	select {
	case <-display.Send():
		t.Fatal("display received an admin-only envelope")
	default:
	}

	h.Unregister(player)
	assert.Equal(t, 2, h.ClientCount())
	_, ok := <-player.Send()
	assert.False(t, ok, "unregistered client channel must be closed")
}

func TestHub_SlowClientDropped(t *testing.T) {
	h := NewHub(nil)
	slow := h.Register("slow", RoleDisplay)
	fast := h.Register("fast", RoleDisplay)

	// fill the slow client's buffer while the fast one keeps draining
	sent := cap(slow.send) + 1
	received := 0
	for i := 0; i < sent; i++ {
		h.Broadcast(Envelope{Type: EventTimerUpdate})
		select {
		case <-fast.Send():
			received++
		default:
		}
	}

	assert.Equal(t, 1, h.ClientCount())
	assert.Equal(t, sent, received, "draining client must see every envelope")

	for i := 0; i < cap(slow.send); i++ {
		<-slow.Send()
	}
	_, ok := <-slow.Send()
	assert.False(t, ok, "dropped client channel must be closed")
}

func TestHub_SendTo(t *testing.T) {
	h := NewHub(nil)
	a := h.Register("a", RoleAdmin)
	b := h.Register("b", RoleAdmin)

	h.SendTo(a, errEnvelope("rejected", "no target set"))

	env := drainOne(t, a)
	assert.Equal(t, "error", env.Type)
	select {
	case <-b.Send():
		t.Fatal("targeted send leaked to another client")
	default:
	}

	h.Unregister(a)
	h.SendTo(a, Envelope{Type: EventGameReset}) // no-op, must not panic
}
