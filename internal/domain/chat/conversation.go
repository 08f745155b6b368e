package chat

import (
	"errors"
	"strings"
	"time"

	"messenger/internal/domain/user"
)

var (
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrParticipantRequired  = errors.New("chat: both participant ids are required")
	ErrSelfConversation     = errors.New("chat: cannot start a conversation with yourself")
	ErrNotParticipant       = errors.New("chat: caller is not a participant")
	ErrPairTaken            = errors.New("chat: conversation already exists for this pair")
)

type ConversationID string

// SnippetLimit bounds the denormalized last-message cache text.
const SnippetLimit = 100

// Conversation is a two-party chat thread. Participants are stored in
// normalized order so there is exactly one record per unordered pair.
type Conversation struct {
	ID              ConversationID
	UserA           user.ID
	UserB           user.ID
	ContextRef      string
	LastMessageText string
	LastMessageAt   time.Time
	UserALastReadAt time.Time
	UserBLastReadAt time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type CreateConversationParams struct {
	ID         ConversationID
	UserA      user.ID
	UserB      user.ID
	ContextRef string
	CreatedAt  time.Time
}

func NewConversation(params CreateConversationParams) (*Conversation, error) {
	a, b, err := NormalizePair(params.UserA, params.UserB)
	if err != nil {
		return nil, err
	}
	now := params.CreatedAt.UTC()
	return &Conversation{
		ID:         params.ID,
		UserA:      a,
		UserB:      b,
		ContextRef: strings.TrimSpace(params.ContextRef),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// NormalizePair orders an unordered participant pair deterministically.
func NormalizePair(a, b user.ID) (user.ID, user.ID, error) {
	first := user.ID(strings.TrimSpace(string(a)))
	second := user.ID(strings.TrimSpace(string(b)))
	if first == "" || second == "" {
		return "", "", ErrParticipantRequired
	}
	if first == second {
		return "", "", ErrSelfConversation
	}
	if second < first {
		first, second = second, first
	}
	return first, second, nil
}

func (c *Conversation) HasParticipant(id user.ID) bool {
	return id != "" && (id == c.UserA || id == c.UserB)
}

// Counterpart returns the other participant of the pair.
func (c *Conversation) Counterpart(id user.ID) (user.ID, error) {
	switch id {
	case c.UserA:
		return c.UserB, nil
	case c.UserB:
		return c.UserA, nil
	default:
		return "", ErrNotParticipant
	}
}

// ApplyLastMessage refreshes the denormalized cache after a new or edited
// latest message.
func (c *Conversation) ApplyLastMessage(content string, at time.Time) {
	c.LastMessageText = Snippet(content, SnippetLimit)
	c.LastMessageAt = at.UTC()
	if c.LastMessageAt.After(c.UpdatedAt) {
		c.UpdatedAt = c.LastMessageAt
	}
}

// ClearLastMessage empties the cache when no messages remain.
func (c *Conversation) ClearLastMessage(now time.Time) {
	c.LastMessageText = ""
	c.LastMessageAt = time.Time{}
	c.UpdatedAt = now.UTC()
}

// MarkReadBy records the per-user read acknowledgement timestamp.
func (c *Conversation) MarkReadBy(reader user.ID, at time.Time) error {
	switch reader {
	case c.UserA:
		c.UserALastReadAt = at.UTC()
	case c.UserB:
		c.UserBLastReadAt = at.UTC()
	default:
		return ErrNotParticipant
	}
	return nil
}

func (c *Conversation) LastReadBy(reader user.ID) time.Time {
	switch reader {
	case c.UserA:
		return c.UserALastReadAt
	case c.UserB:
		return c.UserBLastReadAt
	default:
		return time.Time{}
	}
}

// Snippet truncates content to at most max runes for cache fields.
func Snippet(content string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}
