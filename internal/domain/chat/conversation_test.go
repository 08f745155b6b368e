package chat_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messenger/internal/domain/chat"
	"messenger/internal/domain/user"
)

func TestNormalizePair(t *testing.T) {
	t.Run("orders participants deterministically", func(t *testing.T) {
		a, b, err := chat.NormalizePair("zoe", "adam")
		require.NoError(t, err)
		assert.Equal(t, user.ID("adam"), a)
		assert.Equal(t, user.ID("zoe"), b)

		a2, b2, err := chat.NormalizePair("adam", "zoe")
		require.NoError(t, err)
		assert.Equal(t, a, a2)
		assert.Equal(t, b, b2)
	})

	t.Run("rejects empty participants", func(t *testing.T) {
		_, _, err := chat.NormalizePair("", "adam")
		assert.ErrorIs(t, err, chat.ErrParticipantRequired)

		_, _, err = chat.NormalizePair("adam", "   ")
		assert.ErrorIs(t, err, chat.ErrParticipantRequired)
	})

	t.Run("rejects self conversation", func(t *testing.T) {
		_, _, err := chat.NormalizePair("adam", "adam")
		assert.ErrorIs(t, err, chat.ErrSelfConversation)
	})
}

func TestNewConversation(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	conversation, err := chat.NewConversation(chat.CreateConversationParams{
		ID:         "c1",
		UserA:      "zoe",
		UserB:      "adam",
		ContextRef: "  listing-42  ",
		CreatedAt:  now,
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID("adam"), conversation.UserA)
	assert.Equal(t, user.ID("zoe"), conversation.UserB)
	assert.Equal(t, "listing-42", conversation.ContextRef)
	assert.Equal(t, now, conversation.CreatedAt)
	assert.Equal(t, now, conversation.UpdatedAt)
}

func TestConversation_Counterpart(t *testing.T) {
	conversation := &chat.Conversation{ID: "c1", UserA: "adam", UserB: "zoe"}

	other, err := conversation.Counterpart("adam")
	require.NoError(t, err)
	assert.Equal(t, user.ID("zoe"), other)

	other, err = conversation.Counterpart("zoe")
	require.NoError(t, err)
	assert.Equal(t, user.ID("adam"), other)

	_, err = conversation.Counterpart("mallory")
	assert.ErrorIs(t, err, chat.ErrNotParticipant)
}

func TestConversation_ApplyLastMessage(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	conversation := &chat.Conversation{ID: "c1", UserA: "adam", UserB: "zoe", CreatedAt: created, UpdatedAt: created}

	t.Run("truncates cache text", func(t *testing.T) {
		long := strings.Repeat("x", chat.SnippetLimit+50)
		at := created.Add(time.Minute)
		conversation.ApplyLastMessage(long, at)
		assert.Len(t, []rune(conversation.LastMessageText), chat.SnippetLimit)
		assert.Equal(t, at, conversation.LastMessageAt)
		assert.Equal(t, at, conversation.UpdatedAt)
	})

	t.Run("does not move updated_at backwards", func(t *testing.T) {
		latest := conversation.UpdatedAt
		conversation.ApplyLastMessage("older edit", created.Add(30*time.Second))
		assert.Equal(t, latest, conversation.UpdatedAt)
	})
}

func TestConversation_MarkReadBy(t *testing.T) {
	conversation := &chat.Conversation{ID: "c1", UserA: "adam", UserB: "zoe"}
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, conversation.MarkReadBy("adam", at))
	assert.Equal(t, at, conversation.LastReadBy("adam"))
	assert.True(t, conversation.LastReadBy("zoe").IsZero())

	assert.ErrorIs(t, conversation.MarkReadBy("mallory", at), chat.ErrNotParticipant)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "hello", chat.Snippet("  hello  ", 100))
	assert.Equal(t, "héllo", chat.Snippet("héllo world", 5))
	assert.Equal(t, "", chat.Snippet("anything", 0))
}
