package realtime_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messenger/internal/realtime"
)

// recorder is a Sender that captures delivered events.
type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Send(ev realtime.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Name)
	}
	return out
}

func TestRouter_RoomBroadcast(t *testing.T) {
	router := realtime.NewRouter()
	adam := &recorder{}
	zoe := &recorder{}
	outsider := &recorder{}

	router.Attach("conn-a", "adam", adam)
	router.Attach("conn-z", "zoe", zoe)
	router.Attach("conn-o", "mallory", outsider)

	router.JoinRoom("conn-a", "c1")
	router.JoinRoom("conn-z", "c1")

	router.BroadcastToRoom("c1", realtime.Event{Name: "new_message"})
	assert.Equal(t, []string{"new_message"}, adam.names())
	assert.Equal(t, []string{"new_message"}, zoe.names())
	assert.Empty(t, outsider.names())

	t.Run("except skips the originator", func(t *testing.T) {
		router.BroadcastToRoomExcept("c1", "conn-a", realtime.Event{Name: "user_typing"})
		assert.Equal(t, []string{"new_message"}, adam.names())
		assert.Equal(t, []string{"new_message", "user_typing"}, zoe.names())
	})

	t.Run("leave stops delivery", func(t *testing.T) {
		router.LeaveRoom("conn-z", "c1")
		assert.False(t, router.InRoom("conn-z", "c1"))

		router.BroadcastToRoom("c1", realtime.Event{Name: "message_read"})
		assert.Contains(t, adam.names(), "message_read")
		assert.NotContains(t, zoe.names(), "message_read")
	})
}

func TestRouter_SendToUser(t *testing.T) {
	router := realtime.NewRouter()
	adam := &recorder{}
	router.Attach("conn-a", "adam", adam)

	require.True(t, router.SendToUser("adam", realtime.Event{Name: "conversation_updated"}))
	assert.Equal(t, []string{"conversation_updated"}, adam.names())

	assert.False(t, router.SendToUser("nobody", realtime.Event{Name: "conversation_updated"}))
}

func TestRouter_Detach(t *testing.T) {
	router := realtime.NewRouter()
	adam := &recorder{}
	router.Attach("conn-a", "adam", adam)
	router.JoinRoom("conn-a", "c1")
	require.Equal(t, 1, router.RoomSize("c1"))

	router.Detach("conn-a", "adam")

	assert.Equal(t, 0, router.RoomSize("c1"))
	assert.False(t, router.InRoom("conn-a", "c1"))
	assert.False(t, router.SendToUser("adam", realtime.Event{Name: "new_message"}))

	// Detaching twice is safe.
	router.Detach("conn-a", "adam")
}

func TestRouter_BroadcastAllExcept(t *testing.T) {
	router := realtime.NewRouter()
	adam := &recorder{}
	zoe := &recorder{}
	router.Attach("conn-a", "adam", adam)
	router.Attach("conn-z", "zoe", zoe)

	router.BroadcastAllExcept("conn-a", realtime.Event{Name: "user_online"})
	assert.Empty(t, adam.names())
	assert.Equal(t, []string{"user_online"}, zoe.names())
}
