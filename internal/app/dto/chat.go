package dto

import (
	"time"

	chatservice "messenger/internal/app/services/chat"
	domainchat "messenger/internal/domain/chat"
)

// Message is the wire shape of a single chat message.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	IsRead         bool       `json:"is_read"`
	ReplyTo        string     `json:"reply_to_message_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
}

// MessageList is a cursor-paginated message collection, newest first.
type MessageList struct {
	Items      []Message `json:"items"`
	NextBefore string    `json:"next_before,omitempty"`
}

// Participant is the read-only user view attached to conversation lists.
type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Verified  bool   `json:"verified"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Conversation describes one two-party thread.
type Conversation struct {
	ID              string       `json:"id"`
	UserAID         string       `json:"user_a_id"`
	UserBID         string       `json:"user_b_id"`
	ContextRef      string       `json:"context_ref,omitempty"`
	LastMessageText string       `json:"last_message_text,omitempty"`
	LastMessageAt   *time.Time   `json:"last_message_at,omitempty"`
	UnreadCount     int64        `json:"unread_count"`
	Counterpart     *Participant `json:"counterpart,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// ConversationList is a page of conversations ordered by latest activity.
type ConversationList struct {
	Items []Conversation `json:"items"`
	Page  int            `json:"page"`
}

func FromMessage(m *domainchat.Message) Message {
	out := Message{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       string(m.SenderID),
		Content:        m.Content,
		IsRead:         m.IsRead,
		ReplyTo:        string(m.ReplyTo),
		CreatedAt:      m.CreatedAt,
	}
	if !m.EditedAt.IsZero() {
		edited := m.EditedAt
		out.EditedAt = &edited
	}
	return out
}

func FromMessages(messages []*domainchat.Message) []Message {
	items := make([]Message, 0, len(messages))
	for _, m := range messages {
		items = append(items, FromMessage(m))
	}
	return items
}

func FromConversation(c *domainchat.Conversation) Conversation {
	out := Conversation{
		ID:              string(c.ID),
		UserAID:         string(c.UserA),
		UserBID:         string(c.UserB),
		ContextRef:      c.ContextRef,
		LastMessageText: c.LastMessageText,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if !c.LastMessageAt.IsZero() {
		at := c.LastMessageAt
		out.LastMessageAt = &at
	}
	return out
}

func FromSummary(s chatservice.ConversationSummary) Conversation {
	out := FromConversation(s.Conversation)
	out.UnreadCount = s.UnreadCount
	if s.Counterpart != nil {
		out.Counterpart = &Participant{
			ID:        string(s.Counterpart.ID),
			Name:      s.Counterpart.Name,
			Verified:  s.Counterpart.Verified,
			AvatarURL: s.Counterpart.AvatarURL,
		}
	}
	return out
}
