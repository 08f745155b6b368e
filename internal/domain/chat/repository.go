package chat

import (
	"context"
	"time"

	"messenger/internal/domain/user"
)

// ConversationRepository persists two-party conversation records.
type ConversationRepository interface {
	ByID(ctx context.Context, id ConversationID) (*Conversation, error)
	// ByPair resolves the single conversation for an unordered pair.
	ByPair(ctx context.Context, a, b user.ID) (*Conversation, error)
	Save(ctx context.Context, conversation *Conversation) error
	// ListForUser returns the user's conversations ordered by UpdatedAt
	// descending. Page is 1-based; limit <= 0 disables paging.
	ListForUser(ctx context.Context, userID user.ID, page, limit int) ([]*Conversation, error)
	Delete(ctx context.Context, id ConversationID) error
}

// MessageRepository persists the ordered per-conversation message log.
type MessageRepository interface {
	ByID(ctx context.Context, id MessageID) (*Message, error)
	Save(ctx context.Context, message *Message) error
	Delete(ctx context.Context, id MessageID) error
	DeleteByConversation(ctx context.Context, conversationID ConversationID) error
	// List returns messages newest-first, strictly older than before when
	// before is non-zero.
	List(ctx context.Context, conversationID ConversationID, before time.Time, limit int) ([]*Message, error)
	// Latest returns the most recent message or ErrMessageNotFound.
	Latest(ctx context.Context, conversationID ConversationID) (*Message, error)
	Search(ctx context.Context, conversationID ConversationID, term string, limit int) ([]*Message, error)
	// MarkRead flags the given messages as read and reports how many rows
	// actually changed.
	MarkRead(ctx context.Context, ids []MessageID) (int64, error)
	// MarkConversationRead flags every unread message in the conversation
	// not authored by excludeSender.
	MarkConversationRead(ctx context.Context, conversationID ConversationID, excludeSender user.ID) (int64, error)
	// MarkSenderRead clears the sender's own unread sent messages.
	MarkSenderRead(ctx context.Context, conversationID ConversationID, sender user.ID) (int64, error)
	// CountUnread counts unread messages across the given conversations
	// authored by someone other than excludeSender.
	CountUnread(ctx context.Context, conversationIDs []ConversationID, excludeSender user.ID) (int64, error)
}
