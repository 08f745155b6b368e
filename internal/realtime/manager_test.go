package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messenger/internal/app/notify"
	chatservice "messenger/internal/app/services/chat"
	domainuser "messenger/internal/domain/user"
	"messenger/internal/infra/storage/memory"
	"messenger/internal/realtime"
)

// staticIdentity resolves tokens from a fixed map.
type staticIdentity map[string]domainuser.ID

func (s staticIdentity) Resolve(ctx context.Context, token string) (domainuser.ID, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("unknown token")
}

// captureNotifier records offline fallback notifications.
type captureNotifier struct {
	mu      sync.Mutex
	pending []notify.PendingMessage
}

func (n *captureNotifier) MessagePending(ctx context.Context, pending notify.PendingMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = append(n.pending, pending)
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

type managerEnv struct {
	manager       *realtime.Manager
	presence      *realtime.MemoryPresence
	router        *realtime.Router
	notifier      *captureNotifier
	conversations *chatservice.ConversationService
	messages      *chatservice.MessageService
}

func newManagerEnv() *managerEnv {
	users := memory.NewUserDirectory()
	users.Put(domainuser.User{ID: "adam", Name: "Adam"})
	users.Put(domainuser.User{ID: "zoe", Name: "Zoe"})
	users.Put(domainuser.User{ID: "mallory", Name: "Mallory"})

	factory := memory.Factory{
		ConversationRepo: memory.NewConversationRepository(),
		MessageRepo:      memory.NewMessageRepository(),
		UserReader:       users,
	}
	conversations := &chatservice.ConversationService{UoW: factory}
	messages := &chatservice.MessageService{UoW: factory}
	readState := &chatservice.ReadStateService{UoW: factory}

	presence := realtime.NewMemoryPresence()
	router := realtime.NewRouter()
	notifier := &captureNotifier{}

	manager := &realtime.Manager{
		Presence: presence,
		Router:   router,
		Identity: staticIdentity{
			"token-adam":    "adam",
			"token-zoe":     "zoe",
			"token-mallory": "mallory",
		},
		Conversations: conversations,
		Messages:      messages,
		ReadState:     readState,
		Notifier:      notifier,
	}
	return &managerEnv{
		manager:       manager,
		presence:      presence,
		router:        router,
		notifier:      notifier,
		conversations: conversations,
		messages:      messages,
	}
}

func (e *managerEnv) connect(t *testing.T, userID domainuser.ID) *realtime.Session {
	t.Helper()
	session := e.manager.Open()
	require.NoError(t, e.manager.Authenticate(context.Background(), session, userID))
	return session
}

// drain empties a session's outbound queue.
func drain(s *realtime.Session) []realtime.Event {
	var out []realtime.Event
	for {
		select {
		case ev, ok := <-s.Out():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventNames(events []realtime.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Name)
	}
	return out
}

func frame(t *testing.T, name string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"event": name, "data": data})
	require.NoError(t, err)
	return raw
}

func TestManager_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("registers presence and announces online", func(t *testing.T) {
		env := newManagerEnv()
		watcher := env.connect(t, "zoe")
		drain(watcher)

		session := env.connect(t, "adam")
		assert.Equal(t, realtime.StateActive, session.State())

		online, err := env.presence.IsOnline(ctx, "adam")
		require.NoError(t, err)
		assert.True(t, online)

		assert.Contains(t, eventNames(drain(watcher)), realtime.EventUserOnline)
	})

	t.Run("via authenticate event", func(t *testing.T) {
		env := newManagerEnv()
		session := env.manager.Open()
		env.manager.HandleEvent(ctx, session, frame(t, "authenticate", map[string]string{"token": "token-adam"}))
		assert.Equal(t, realtime.StateActive, session.State())
		assert.Equal(t, domainuser.ID("adam"), session.UserID())
	})

	t.Run("bad token yields an error event", func(t *testing.T) {
		env := newManagerEnv()
		session := env.manager.Open()
		env.manager.HandleEvent(ctx, session, frame(t, "authenticate", map[string]string{"token": "forged"}))
		assert.Equal(t, realtime.StateConnecting, session.State())
		assert.Contains(t, eventNames(drain(session)), realtime.EventError)
	})

	t.Run("newer connection evicts the older one", func(t *testing.T) {
		env := newManagerEnv()
		first := env.connect(t, "adam")
		second := env.connect(t, "adam")

		assert.Equal(t, realtime.StateClosed, first.State())
		assert.Equal(t, realtime.StateActive, second.State())

		connID, ok, err := env.presence.ConnectionFor(ctx, "adam")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, second.ID, connID)
	})
}

func TestManager_RequiresAuthentication(t *testing.T) {
	env := newManagerEnv()
	session := env.manager.Open()

	env.manager.HandleEvent(context.Background(), session, frame(t, "join_conversation", map[string]string{"conversation_id": "c1"}))

	events := drain(session)
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventError, events[0].Name)
}

func TestManager_JoinConversation(t *testing.T) {
	ctx := context.Background()
	env := newManagerEnv()
	conversation, _, err := env.conversations.GetOrCreate(ctx, "adam", "zoe", "", "")
	require.NoError(t, err)

	t.Run("participant joins the room", func(t *testing.T) {
		session := env.connect(t, "adam")
		env.manager.HandleEvent(ctx, session, frame(t, "join_conversation", map[string]string{"conversation_id": string(conversation.ID)}))
		assert.True(t, env.router.InRoom(session.ID, conversation.ID))
	})

	t.Run("outsider is rejected", func(t *testing.T) {
		session := env.connect(t, "mallory")
		env.manager.HandleEvent(ctx, session, frame(t, "join_conversation", map[string]string{"conversation_id": string(conversation.ID)}))
		assert.False(t, env.router.InRoom(session.ID, conversation.ID))
		assert.Contains(t, eventNames(drain(session)), realtime.EventError)
	})
}

func TestManager_SendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("persists then fans out to the room", func(t *testing.T) {
		env := newManagerEnv()
		conversation, _, err := env.conversations.GetOrCreate(ctx, "adam", "zoe", "", "")
		require.NoError(t, err)

		sender := env.connect(t, "adam")
		receiver := env.connect(t, "zoe")
		join := map[string]string{"conversation_id": string(conversation.ID)}
		env.manager.HandleEvent(ctx, sender, frame(t, "join_conversation", join))
		env.manager.HandleEvent(ctx, receiver, frame(t, "join_conversation", join))
		drain(sender)
		drain(receiver)

		env.manager.HandleEvent(ctx, sender, frame(t, "send_message", map[string]string{
			"conversation_id": string(conversation.ID),
			"content":         "hello zoe",
		}))

		names := eventNames(drain(receiver))
		assert.Contains(t, names, realtime.EventNewMessage)
		assert.Contains(t, names, realtime.EventConversationUpdated)

		// The sender sees its own message through the room too.
		assert.Contains(t, eventNames(drain(sender)), realtime.EventNewMessage)

		// Durably stored, not just broadcast.
		stored, _, err := env.messages.List(ctx, conversation.ID, "adam", time.Time{}, 0)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, "hello zoe", stored[0].Content)

		assert.Zero(t, env.notifier.count())
	})

	t.Run("offline counterpart falls back to the notifier", func(t *testing.T) {
		env := newManagerEnv()
		conversation, _, err := env.conversations.GetOrCreate(ctx, "adam", "zoe", "", "")
		require.NoError(t, err)

		sender := env.connect(t, "adam")
		env.manager.HandleEvent(ctx, sender, frame(t, "join_conversation", map[string]string{"conversation_id": string(conversation.ID)}))
		env.manager.HandleEvent(ctx, sender, frame(t, "send_message", map[string]string{
			"conversation_id": string(conversation.ID),
			"content":         "anyone home?",
		}))

		require.Equal(t, 1, env.notifier.count())
		pending := env.notifier.pending[0]
		assert.Equal(t, "zoe", pending.UserID)
		assert.Equal(t, string(conversation.ID), pending.ConversationID)
		assert.Equal(t, "anyone home?", pending.Preview)
	})

	t.Run("rejected content becomes an error event only", func(t *testing.T) {
		env := newManagerEnv()
		conversation, _, err := env.conversations.GetOrCreate(ctx, "adam", "zoe", "", "")
		require.NoError(t, err)

		sender := env.connect(t, "adam")
		env.manager.HandleEvent(ctx, sender, frame(t, "send_message", map[string]string{
			"conversation_id": string(conversation.ID),
			"content":         "   ",
		}))
		// Whitespace-only content fails schema-level validation.
		events := drain(sender)
		require.NotEmpty(t, events)
		assert.Equal(t, realtime.EventError, events[len(events)-1].Name)
	})
}

func TestManager_Typing(t *testing.T) {
	ctx := context.Background()
	env := newManagerEnv()
	conversation, _, err := env.conversations.GetOrCreate(ctx, "adam", "zoe", "", "")
	require.NoError(t, err)

	adam := env.connect(t, "adam")
	zoe := env.connect(t, "zoe")
	join := map[string]string{"conversation_id": string(conversation.ID)}
	env.manager.HandleEvent(ctx, adam, frame(t, "join_conversation", join))
	env.manager.HandleEvent(ctx, zoe, frame(t, "join_conversation", join))
	drain(adam)
	drain(zoe)

	t.Run("relayed to the room except the typist", func(t *testing.T) {
		env.manager.HandleEvent(ctx, adam, frame(t, "typing_start", join))

		events := drain(zoe)
		require.Len(t, events, 1)
		assert.Equal(t, realtime.EventUserTyping, events[0].Name)
		payload, ok := events[0].Data.(realtime.TypingPayload)
		require.True(t, ok)
		assert.True(t, payload.IsTyping)
		assert.Equal(t, "adam", payload.UserID)

		assert.Empty(t, drain(adam))
	})

	t.Run("requires room membership", func(t *testing.T) {
		mallory := env.connect(t, "mallory")
		env.manager.HandleEvent(ctx, mallory, frame(t, "typing_start", join))
		assert.Contains(t, eventNames(drain(mallory)), realtime.EventError)
		assert.Empty(t, drain(zoe))
	})
}

func TestManager_MarkAsRead(t *testing.T) {
	ctx := context.Background()
	env := newManagerEnv()
	conversation, _, err := env.conversations.GetOrCreate(ctx, "adam", "zoe", "", "")
	require.NoError(t, err)
	message, _, err := env.messages.Create(ctx, conversation.ID, "adam", "read me", "")
	require.NoError(t, err)

	adam := env.connect(t, "adam")
	zoe := env.connect(t, "zoe")
	join := map[string]string{"conversation_id": string(conversation.ID)}
	env.manager.HandleEvent(ctx, adam, frame(t, "join_conversation", join))
	env.manager.HandleEvent(ctx, zoe, frame(t, "join_conversation", join))
	drain(adam)
	drain(zoe)

	env.manager.HandleEvent(ctx, zoe, frame(t, "mark_as_read", map[string]string{
		"message_id":      string(message.ID),
		"conversation_id": string(conversation.ID),
	}))

	events := drain(adam)
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventMessageRead, events[0].Name)
	payload, ok := events[0].Data.(realtime.MessageReadPayload)
	require.True(t, ok)
	assert.Equal(t, string(message.ID), payload.MessageID)
	assert.Equal(t, "zoe", payload.ReadBy)

	// Marking again is a no-op with no broadcast.
	env.manager.HandleEvent(ctx, zoe, frame(t, "mark_as_read", map[string]string{
		"message_id":      string(message.ID),
		"conversation_id": string(conversation.ID),
	}))
	assert.Empty(t, drain(adam))
}

func TestManager_MarkAsReadRoutesByMessageConversation(t *testing.T) {
	ctx := context.Background()
	env := newManagerEnv()
	withZoe, _, err := env.conversations.GetOrCreate(ctx, "adam", "zoe", "", "")
	require.NoError(t, err)
	withMallory, _, err := env.conversations.GetOrCreate(ctx, "adam", "mallory", "", "")
	require.NoError(t, err)
	message, _, err := env.messages.Create(ctx, withZoe.ID, "adam", "read me", "")
	require.NoError(t, err)

	adam := env.connect(t, "adam")
	zoe := env.connect(t, "zoe")
	mallory := env.connect(t, "mallory")
	env.manager.HandleEvent(ctx, adam, frame(t, "join_conversation", map[string]string{"conversation_id": string(withZoe.ID)}))
	env.manager.HandleEvent(ctx, zoe, frame(t, "join_conversation", map[string]string{"conversation_id": string(withZoe.ID)}))
	env.manager.HandleEvent(ctx, adam, frame(t, "join_conversation", map[string]string{"conversation_id": string(withMallory.ID)}))
	env.manager.HandleEvent(ctx, mallory, frame(t, "join_conversation", map[string]string{"conversation_id": string(withMallory.ID)}))
	drain(adam)
	drain(zoe)
	drain(mallory)

	// The event names the wrong conversation; the receipt must still land
	// in the room the message belongs to and nowhere else.
	env.manager.HandleEvent(ctx, zoe, frame(t, "mark_as_read", map[string]string{
		"message_id":      string(message.ID),
		"conversation_id": string(withMallory.ID),
	}))

	events := drain(adam)
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventMessageRead, events[0].Name)
	payload, ok := events[0].Data.(realtime.MessageReadPayload)
	require.True(t, ok)
	assert.Equal(t, string(message.ID), payload.MessageID)
	assert.Empty(t, drain(mallory))
}

func TestManager_MarkConversationRead(t *testing.T) {
	ctx := context.Background()
	env := newManagerEnv()
	conversation, _, err := env.conversations.GetOrCreate(ctx, "adam", "zoe", "", "")
	require.NoError(t, err)
	_, _, err = env.messages.Create(ctx, conversation.ID, "adam", "one", "")
	require.NoError(t, err)

	adam := env.connect(t, "adam")
	zoe := env.connect(t, "zoe")
	drain(adam)
	drain(zoe)

	env.manager.HandleEvent(ctx, zoe, frame(t, "mark_conversation_read", map[string]string{
		"conversation_id": string(conversation.ID),
	}))

	// The acknowledgement goes to the counterpart's personal channel.
	events := drain(adam)
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventConversationRead, events[0].Name)
	payload, ok := events[0].Data.(realtime.ConversationReadPayload)
	require.True(t, ok)
	assert.Equal(t, "zoe", payload.ReadBy)
}

func TestManager_CheckOnlineStatus(t *testing.T) {
	ctx := context.Background()
	env := newManagerEnv()
	_ = env.connect(t, "zoe")

	session := env.connect(t, "adam")
	drain(session)
	env.manager.HandleEvent(ctx, session, frame(t, "check_online_status", map[string]any{
		"user_ids": []string{"zoe", "mallory"},
	}))

	events := drain(session)
	require.Len(t, events, 1)
	require.Equal(t, realtime.EventOnlineStatuses, events[0].Name)
	statuses, ok := events[0].Data.([]realtime.OnlineStatus)
	require.True(t, ok)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].IsOnline)
	assert.False(t, statuses[1].IsOnline)
}

func TestManager_Disconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("announces offline to the rest", func(t *testing.T) {
		env := newManagerEnv()
		watcher := env.connect(t, "zoe")
		session := env.connect(t, "adam")
		drain(watcher)

		env.manager.Disconnect(ctx, session)

		online, err := env.presence.IsOnline(ctx, "adam")
		require.NoError(t, err)
		assert.False(t, online)
		assert.Contains(t, eventNames(drain(watcher)), realtime.EventUserOffline)
	})

	t.Run("evicted session teardown stays silent", func(t *testing.T) {
		env := newManagerEnv()
		watcher := env.connect(t, "zoe")
		first := env.connect(t, "adam")
		second := env.connect(t, "adam")
		drain(watcher)

		// The transport of the replaced connection eventually notices
		// and disconnects; the user is still online on the newer one.
		env.manager.Disconnect(ctx, first)

		online, err := env.presence.IsOnline(ctx, "adam")
		require.NoError(t, err)
		assert.True(t, online)
		assert.NotContains(t, eventNames(drain(watcher)), realtime.EventUserOffline)
		assert.Equal(t, realtime.StateActive, second.State())
	})
}
