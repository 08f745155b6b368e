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

// DefaultEditWindow bounds how long a sender may rewrite a message.
const DefaultEditWindow = 5 * time.Minute

const searchLimit = 50

// MessageService owns the per-conversation message log: creation with the
// conversation cache update in one atomic unit, windowed edits, deletes
// with cache re-derivation, and read-on-view listing.
type MessageService struct {
	UoW        uow.Factory
	Logger     *slog.Logger
	EditWindow time.Duration
	Now        func() time.Time
}

// Create appends a message and refreshes the conversation's last-message
// cache transactionally. The sender's own stale unread sent messages are
// swept read in the same unit.
func (s *MessageService) Create(ctx context.Context, conversationID domainchat.ConversationID, sender domainuser.ID, content string, replyTo domainchat.MessageID) (*domainchat.Message, *domainchat.Conversation, error) {
	unit, err := s.UoW.Begin(ctx, uow.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	ctx = uow.WithUnitContext(ctx, unit)
	defer unit.Rollback(ctx)

	conversation, err := unit.Conversations().ByID(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if !conversation.HasParticipant(sender) {
		return nil, nil, domainchat.ErrNotParticipant
	}
	message, err := appendMessage(ctx, unit, conversation, sender, content, replyTo, s.now())
	if err != nil {
		return nil, nil, err
	}
	if err := unit.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return message, conversation, nil
}

// appendMessage runs the shared creation path inside an open unit. The
// conversation passed in is mutated with the fresh cache fields.
func appendMessage(ctx context.Context, unit uow.UnitOfWork, conversation *domainchat.Conversation, sender domainuser.ID, content string, replyTo domainchat.MessageID, now time.Time) (*domainchat.Message, error) {
	at := nextTimestamp(now, conversation.LastMessageAt)
	message, err := domainchat.NewMessage(domainchat.CreateMessageParams{
		ID:             domainchat.MessageID(uuid.NewString()),
		ConversationID: conversation.ID,
		SenderID:       sender,
		Content:        content,
		ReplyTo:        replyTo,
		CreatedAt:      at,
	})
	if err != nil {
		return nil, err
	}
	if replyTo != "" {
		target, err := unit.Messages().ByID(ctx, replyTo)
		if err != nil {
			if errors.Is(err, domainchat.ErrMessageNotFound) {
				return nil, domainchat.ErrReplyOutsideThread
			}
			return nil, err
		}
		if err := message.ValidateReplyTarget(target); err != nil {
			return nil, err
		}
	}
	// Sweep before saving so the new message itself stays unread.
	if _, err := unit.Messages().MarkSenderRead(ctx, conversation.ID, sender); err != nil {
		return nil, err
	}
	if err := unit.Messages().Save(ctx, message); err != nil {
		return nil, err
	}
	conversation.ApplyLastMessage(message.Content, message.CreatedAt)
	if err := unit.Conversations().Save(ctx, conversation); err != nil {
		return nil, err
	}
	return message, nil
}

// Edit rewrites a message's content within the edit window and refreshes
// the conversation cache when the edited message is the current latest.
func (s *MessageService) Edit(ctx context.Context, id domainchat.MessageID, editor domainuser.ID, content string) (*domainchat.Message, error) {
	unit, err := s.UoW.Begin(ctx, uow.TxOptions{})
	if err != nil {
		return nil, err
	}
	ctx = uow.WithUnitContext(ctx, unit)
	defer unit.Rollback(ctx)

	message, err := unit.Messages().ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := message.CanEditBy(editor, now, s.window()); err != nil {
		return nil, err
	}
	if err := message.Edit(content, now); err != nil {
		return nil, err
	}
	if err := unit.Messages().Save(ctx, message); err != nil {
		return nil, err
	}

	latest, err := unit.Messages().Latest(ctx, message.ConversationID)
	if err != nil && !errors.Is(err, domainchat.ErrMessageNotFound) {
		return nil, err
	}
	if latest != nil && latest.ID == message.ID {
		conversation, err := unit.Conversations().ByID(ctx, message.ConversationID)
		if err != nil {
			return nil, err
		}
		conversation.ApplyLastMessage(message.Content, message.CreatedAt)
		if err := unit.Conversations().Save(ctx, conversation); err != nil {
			return nil, err
		}
	}
	if err := unit.Commit(ctx); err != nil {
		return nil, err
	}
	return message, nil
}

// Delete removes a sender's own message and re-derives the conversation
// cache from the remaining latest message, or clears it.
func (s *MessageService) Delete(ctx context.Context, id domainchat.MessageID, requester domainuser.ID) (*domainchat.Message, error) {
	unit, err := s.UoW.Begin(ctx, uow.TxOptions{})
	if err != nil {
		return nil, err
	}
	ctx = uow.WithUnitContext(ctx, unit)
	defer unit.Rollback(ctx)

	message, err := unit.Messages().ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if message.SenderID != requester {
		return nil, domainchat.ErrNotSender
	}
	if err := unit.Messages().Delete(ctx, id); err != nil {
		return nil, err
	}

	conversation, err := unit.Conversations().ByID(ctx, message.ConversationID)
	if err != nil {
		return nil, err
	}
	latest, err := unit.Messages().Latest(ctx, message.ConversationID)
	switch {
	case err == nil:
		conversation.ApplyLastMessage(latest.Content, latest.CreatedAt)
	case errors.Is(err, domainchat.ErrMessageNotFound):
		conversation.ClearLastMessage(s.now())
	default:
		return nil, err
	}
	if err := unit.Conversations().Save(ctx, conversation); err != nil {
		return nil, err
	}
	if err := unit.Commit(ctx); err != nil {
		return nil, err
	}
	return message, nil
}

// List returns messages newest-first, strictly older than before when set.
// Unread messages authored by the counterpart are marked read in the same
// call (read-on-view). The ids actually marked are returned alongside.
func (s *MessageService) List(ctx context.Context, conversationID domainchat.ConversationID, caller domainuser.ID, before time.Time, limit int) ([]*domainchat.Message, []domainchat.MessageID, error) {
	unit, err := s.UoW.Begin(ctx, uow.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	ctx = uow.WithUnitContext(ctx, unit)
	defer unit.Rollback(ctx)

	conversation, err := unit.Conversations().ByID(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if !conversation.HasParticipant(caller) {
		return nil, nil, domainchat.ErrNotParticipant
	}
	messages, err := unit.Messages().List(ctx, conversationID, before, NormalizeLimit(limit))
	if err != nil {
		return nil, nil, err
	}

	var viewed []domainchat.MessageID
	for _, message := range messages {
		if message.SenderID != caller && !message.IsRead {
			viewed = append(viewed, message.ID)
		}
	}
	if len(viewed) > 0 {
		if _, err := unit.Messages().MarkRead(ctx, viewed); err != nil {
			return nil, nil, err
		}
		if err := conversation.MarkReadBy(caller, s.now()); err != nil {
			return nil, nil, err
		}
		if err := unit.Conversations().Save(ctx, conversation); err != nil {
			return nil, nil, err
		}
		for _, message := range messages {
			if message.SenderID != caller {
				message.IsRead = true
			}
		}
	}
	if err := unit.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return messages, viewed, nil
}

// Search matches content substrings within one conversation.
func (s *MessageService) Search(ctx context.Context, conversationID domainchat.ConversationID, caller domainuser.ID, term string) ([]*domainchat.Message, error) {
	unit, err := s.UoW.Begin(ctx, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	ctx = uow.WithUnitContext(ctx, unit)
	defer unit.Rollback(ctx)

	conversation, err := unit.Conversations().ByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(caller) {
		return nil, domainchat.ErrNotParticipant
	}
	return unit.Messages().Search(ctx, conversationID, term, searchLimit)
}

func (s *MessageService) window() time.Duration {
	if s.EditWindow > 0 {
		return s.EditWindow
	}
	return DefaultEditWindow
}

func (s *MessageService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// nextTimestamp keeps message creation times monotonic per conversation
// even under coarse clocks.
func nextTimestamp(now, last time.Time) time.Time {
	now = now.UTC()
	if !now.After(last) {
		return last.Add(time.Millisecond)
	}
	return now
}
