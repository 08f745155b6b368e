package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"messenger/internal/app/uow"
	domainchat "messenger/internal/domain/chat"
	domainuser "messenger/internal/domain/user"
)

// ConversationSummary pairs a conversation with the caller-facing extras
// used by list endpoints.
type ConversationSummary struct {
	Conversation *domainchat.Conversation
	UnreadCount  int64
	Counterpart  *domainuser.User
}

// ConversationService owns conversation lifecycle: idempotent pair lookup,
// access-checked reads and cascading deletes.
type ConversationService struct {
	UoW    uow.Factory
	Logger *slog.Logger
	Now    func() time.Time
}

// GetOrCreate resolves the single conversation for an unordered pair,
// creating it when absent. The context reference is first-writer-wins and
// ignored on an existing thread. A non-empty seedContent appends an initial
// message from caller within the same transaction.
func (s *ConversationService) GetOrCreate(ctx context.Context, caller, other domainuser.ID, contextRef, seedContent string) (*domainchat.Conversation, *domainchat.Message, error) {
	a, b, err := domainchat.NormalizePair(caller, other)
	if err != nil {
		return nil, nil, err
	}
	unit, err := s.UoW.Begin(ctx, uow.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	ctx = uow.WithUnitContext(ctx, unit)
	defer unit.Rollback(ctx)

	conversation, err := unit.Conversations().ByPair(ctx, a, b)
	switch {
	case err == nil:
		if err := unit.Commit(ctx); err != nil {
			return nil, nil, err
		}
		return conversation, nil, nil
	case errors.Is(err, domainchat.ErrConversationNotFound):
	default:
		return nil, nil, err
	}

	now := s.now()
	conversation, err = domainchat.NewConversation(domainchat.CreateConversationParams{
		ID:         domainchat.ConversationID(uuid.NewString()),
		UserA:      a,
		UserB:      b,
		ContextRef: contextRef,
		CreatedAt:  now,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := unit.Conversations().Save(ctx, conversation); err != nil {
		// The unique pair index closes the lookup-before-create race:
		// a concurrent creator won, so return its record instead.
		if existing, lookupErr := unit.Conversations().ByPair(ctx, a, b); lookupErr == nil {
			if commitErr := unit.Commit(ctx); commitErr != nil {
				return nil, nil, commitErr
			}
			return existing, nil, nil
		}
		return nil, nil, err
	}

	var seeded *domainchat.Message
	if seedContent != "" {
		seeded, err = appendMessage(ctx, unit, conversation, caller, seedContent, "", now)
		if err != nil {
			return nil, nil, err
		}
	}
	if err := unit.Commit(ctx); err != nil {
		return nil, nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("conversation created", "conversation_id", conversation.ID, "user_a", conversation.UserA, "user_b", conversation.UserB)
	}
	return conversation, seeded, nil
}

// Get returns the conversation when caller participates in it.
func (s *ConversationService) Get(ctx context.Context, id domainchat.ConversationID, caller domainuser.ID) (*domainchat.Conversation, error) {
	unit, err := s.UoW.Begin(ctx, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	ctx = uow.WithUnitContext(ctx, unit)
	defer unit.Rollback(ctx)

	conversation, err := unit.Conversations().ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(caller) {
		return nil, domainchat.ErrNotParticipant
	}
	return conversation, nil
}

// ListForUser returns the caller's conversations newest-activity-first with
// unread counts and counterpart display data.
func (s *ConversationService) ListForUser(ctx context.Context, userID domainuser.ID, unreadOnly bool, page, limit int) ([]ConversationSummary, error) {
	unit, err := s.UoW.Begin(ctx, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	ctx = uow.WithUnitContext(ctx, unit)
	defer unit.Rollback(ctx)

	conversations, err := unit.Conversations().ListForUser(ctx, userID, normalizePage(page), NormalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	summaries := make([]ConversationSummary, 0, len(conversations))
	for _, conversation := range conversations {
		unread, err := unit.Messages().CountUnread(ctx, []domainchat.ConversationID{conversation.ID}, userID)
		if err != nil {
			return nil, err
		}
		if unreadOnly && unread == 0 {
			continue
		}
		summary := ConversationSummary{Conversation: conversation, UnreadCount: unread}
		counterpartID, err := conversation.Counterpart(userID)
		if err == nil {
			if counterpart, lookupErr := unit.Users().ByID(ctx, counterpartID); lookupErr == nil {
				summary.Counterpart = counterpart
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Delete removes a conversation and every message it owns.
func (s *ConversationService) Delete(ctx context.Context, id domainchat.ConversationID, caller domainuser.ID) error {
	unit, err := s.UoW.Begin(ctx, uow.TxOptions{})
	if err != nil {
		return err
	}
	ctx = uow.WithUnitContext(ctx, unit)
	defer unit.Rollback(ctx)

	conversation, err := unit.Conversations().ByID(ctx, id)
	if err != nil {
		return err
	}
	if !conversation.HasParticipant(caller) {
		return domainchat.ErrNotParticipant
	}
	if err := unit.Messages().DeleteByConversation(ctx, id); err != nil {
		return err
	}
	if err := unit.Conversations().Delete(ctx, id); err != nil {
		return err
	}
	if err := unit.Commit(ctx); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Info("conversation deleted", "conversation_id", id, "user_id", caller)
	}
	return nil
}

func (s *ConversationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func normalizePage(page int) int {
	if page <= 0 {
		return 1
	}
	return page
}

// NormalizeLimit clamps page sizes to the range the list queries accept.
// Callers that derive continuation cursors from a full page must apply the
// same clamp.
func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
