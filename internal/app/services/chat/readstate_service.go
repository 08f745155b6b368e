package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"messenger/internal/app/uow"
	domainchat "messenger/internal/domain/chat"
	domainuser "messenger/internal/domain/user"
)

// ReadStateService reconciles message read flags with the per-user
// last-read timestamps on conversations.
type ReadStateService struct {
	UoW    uow.Factory
	Logger *slog.Logger
	Now    func() time.Time
}

// MarkMessagesRead flags the eligible subset of ids as read: currently
// unread, not authored by reader, and inside a conversation reader
// participates in. Ineligible ids are skipped silently; the returned count
// covers only rows actually updated, and the returned conversation ids are
// the ones those rows belong to.
func (s *ReadStateService) MarkMessagesRead(ctx context.Context, ids []domainchat.MessageID, reader domainuser.ID) (int64, []domainchat.ConversationID, error) {
	if len(ids) == 0 {
		return 0, nil, nil
	}
	unit, err := s.UoW.Begin(ctx, uow.TxOptions{})
	if err != nil {
		return 0, nil, err
	}
	ctx = uow.WithUnitContext(ctx, unit)
	defer unit.Rollback(ctx)

	conversations := make(map[domainchat.ConversationID]*domainchat.Conversation)
	var eligible []domainchat.MessageID
	affected := make(map[domainchat.ConversationID]struct{})
	for _, id := range ids {
		message, err := unit.Messages().ByID(ctx, id)
		if err != nil {
			if errors.Is(err, domainchat.ErrMessageNotFound) {
				continue
			}
			return 0, nil, err
		}
		if message.IsRead || message.SenderID == reader {
			continue
		}
		conversation, ok := conversations[message.ConversationID]
		if !ok {
			conversation, err = unit.Conversations().ByID(ctx, message.ConversationID)
			if err != nil {
				if errors.Is(err, domainchat.ErrConversationNotFound) {
					continue
				}
				return 0, nil, err
			}
			conversations[message.ConversationID] = conversation
		}
		if !conversation.HasParticipant(reader) {
			continue
		}
		eligible = append(eligible, id)
		affected[message.ConversationID] = struct{}{}
	}
	if len(eligible) == 0 {
		return 0, nil, unit.Commit(ctx)
	}

	count, err := unit.Messages().MarkRead(ctx, eligible)
	if err != nil {
		return 0, nil, err
	}
	now := s.now()
	touched := make([]domainchat.ConversationID, 0, len(affected))
	for conversationID := range affected {
		conversation := conversations[conversationID]
		if err := conversation.MarkReadBy(reader, now); err != nil {
			return 0, nil, err
		}
		if err := unit.Conversations().Save(ctx, conversation); err != nil {
			return 0, nil, err
		}
		touched = append(touched, conversationID)
	}
	if err := unit.Commit(ctx); err != nil {
		return 0, nil, err
	}
	return count, touched, nil
}

// MarkConversationRead acknowledges every unread counterpart message in one
// conversation and advances the reader's last-read timestamp.
func (s *ReadStateService) MarkConversationRead(ctx context.Context, conversationID domainchat.ConversationID, reader domainuser.ID) (int64, error) {
	unit, err := s.UoW.Begin(ctx, uow.TxOptions{})
	if err != nil {
		return 0, err
	}
	ctx = uow.WithUnitContext(ctx, unit)
	defer unit.Rollback(ctx)

	conversation, err := unit.Conversations().ByID(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conversation.HasParticipant(reader) {
		return 0, domainchat.ErrNotParticipant
	}
	count, err := unit.Messages().MarkConversationRead(ctx, conversationID, reader)
	if err != nil {
		return 0, err
	}
	if err := conversation.MarkReadBy(reader, s.now()); err != nil {
		return 0, err
	}
	if err := unit.Conversations().Save(ctx, conversation); err != nil {
		return 0, err
	}
	if err := unit.Commit(ctx); err != nil {
		return 0, err
	}
	return count, nil
}

// UnreadCount totals unread counterpart messages across every conversation
// the user participates in.
func (s *ReadStateService) UnreadCount(ctx context.Context, userID domainuser.ID) (int64, error) {
	unit, err := s.UoW.Begin(ctx, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return 0, err
	}
	ctx = uow.WithUnitContext(ctx, unit)
	defer unit.Rollback(ctx)

	conversations, err := unit.Conversations().ListForUser(ctx, userID, 1, 0)
	if err != nil {
		return 0, err
	}
	if len(conversations) == 0 {
		return 0, nil
	}
	ids := make([]domainchat.ConversationID, 0, len(conversations))
	for _, conversation := range conversations {
		ids = append(ids, conversation.ID)
	}
	return unit.Messages().CountUnread(ctx, ids, userID)
}

func (s *ReadStateService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
