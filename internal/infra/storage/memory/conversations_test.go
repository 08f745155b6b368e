package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainchat "messenger/internal/domain/chat"
	domainuser "messenger/internal/domain/user"
	"messenger/internal/infra/storage/memory"
)

func TestConversationRepository_PairUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewConversationRepository()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := domainchat.NewConversation(domainchat.CreateConversationParams{
		ID: "c1", UserA: "adam", UserB: "zoe", CreatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, first))

	t.Run("same pair under a different id is rejected", func(t *testing.T) {
		duplicate, err := domainchat.NewConversation(domainchat.CreateConversationParams{
			ID: "c2", UserA: "zoe", UserB: "adam", CreatedAt: now,
		})
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Save(ctx, duplicate), domainchat.ErrPairTaken)
	})

	t.Run("resaving the same record is an update", func(t *testing.T) {
		first.LastMessageText = "hello"
		require.NoError(t, repo.Save(ctx, first))

		got, err := repo.ByID(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "hello", got.LastMessageText)
	})

	t.Run("pair lookup is order independent", func(t *testing.T) {
		got, err := repo.ByPair(ctx, "zoe", "adam")
		require.NoError(t, err)
		assert.Equal(t, domainchat.ConversationID("c1"), got.ID)
	})
}

func TestConversationRepository_ListForUser(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewConversationRepository()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, pair := range [][2]string{{"adam", "zoe"}, {"adam", "mallory"}, {"adam", "nina"}} {
		conversation, err := domainchat.NewConversation(domainchat.CreateConversationParams{
			ID:        domainchat.ConversationID([]string{"c1", "c2", "c3"}[i]),
			UserA:     domainuser.ID(pair[0]),
			UserB:     domainuser.ID(pair[1]),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, conversation))
	}

	t.Run("newest activity first", func(t *testing.T) {
		conversations, err := repo.ListForUser(ctx, "adam", 1, 0)
		require.NoError(t, err)
		require.Len(t, conversations, 3)
		assert.Equal(t, domainchat.ConversationID("c3"), conversations[0].ID)
		assert.Equal(t, domainchat.ConversationID("c1"), conversations[2].ID)
	})

	t.Run("paging", func(t *testing.T) {
		page, err := repo.ListForUser(ctx, "adam", 2, 2)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, domainchat.ConversationID("c1"), page[0].ID)
	})

	t.Run("only the participant's threads", func(t *testing.T) {
		conversations, err := repo.ListForUser(ctx, "zoe", 1, 0)
		require.NoError(t, err)
		require.Len(t, conversations, 1)
	})
}

func TestConversationRepository_ReadsAreIsolated(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewConversationRepository()
	conversation, err := domainchat.NewConversation(domainchat.CreateConversationParams{
		ID: "c1", UserA: "adam", UserB: "zoe",
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, conversation))

	got, err := repo.ByID(ctx, "c1")
	require.NoError(t, err)
	got.LastMessageText = "mutated copy"

	fresh, err := repo.ByID(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, fresh.LastMessageText)
}
