package chat

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"messenger/internal/domain/user"
)

var (
	ErrMessageNotFound    = errors.New("chat: message not found")
	ErrContentRequired    = errors.New("chat: message content is required")
	ErrContentTooLong     = errors.New("chat: message content exceeds limit")
	ErrNotSender          = errors.New("chat: caller is not the message sender")
	ErrEditWindowExpired  = errors.New("chat: edit window expired")
	ErrReplyOutsideThread = errors.New("chat: reply target is not in this conversation")
	ErrReplyNotEarlier    = errors.New("chat: reply target must precede the message")
)

type MessageID string

// MaxContentRunes bounds a single message body.
const MaxContentRunes = 2000

type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       user.ID
	Content        string
	IsRead         bool
	ReplyTo        MessageID
	CreatedAt      time.Time
	EditedAt       time.Time
}

type CreateMessageParams struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       user.ID
	Content        string
	ReplyTo        MessageID
	CreatedAt      time.Time
}

func NewMessage(params CreateMessageParams) (*Message, error) {
	content, err := validateContent(params.Content)
	if err != nil {
		return nil, err
	}
	if params.SenderID == "" {
		return nil, ErrParticipantRequired
	}
	return &Message{
		ID:             params.ID,
		ConversationID: params.ConversationID,
		SenderID:       params.SenderID,
		Content:        content,
		ReplyTo:        params.ReplyTo,
		CreatedAt:      params.CreatedAt.UTC(),
	}, nil
}

// ValidateReplyTarget enforces that a reply references an existing message in
// the same conversation with a strictly earlier creation time. Cycles are
// impossible by construction.
func (m *Message) ValidateReplyTarget(target *Message) error {
	if target == nil || target.ConversationID != m.ConversationID {
		return ErrReplyOutsideThread
	}
	if !target.CreatedAt.Before(m.CreatedAt) {
		return ErrReplyNotEarlier
	}
	return nil
}

// CanEditBy reports whether editor may still change the content at now.
func (m *Message) CanEditBy(editor user.ID, now time.Time, window time.Duration) error {
	if editor != m.SenderID {
		return ErrNotSender
	}
	if window > 0 && now.Sub(m.CreatedAt) > window {
		return ErrEditWindowExpired
	}
	return nil
}

// Edit replaces the content. Authorization and window checks are the
// caller's responsibility via CanEditBy.
func (m *Message) Edit(content string, now time.Time) error {
	trimmed, err := validateContent(content)
	if err != nil {
		return err
	}
	m.Content = trimmed
	m.EditedAt = now.UTC()
	return nil
}

func validateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrContentRequired
	}
	if utf8.RuneCountInString(trimmed) > MaxContentRunes {
		return "", ErrContentTooLong
	}
	return trimmed, nil
}
