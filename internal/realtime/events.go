package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"messenger/internal/app/dto"
)

// Inbound event names.
const (
	EventAuthenticate         = "authenticate"
	EventJoinConversation     = "join_conversation"
	EventLeaveConversation    = "leave_conversation"
	EventSendMessage          = "send_message"
	EventTypingStart          = "typing_start"
	EventTypingStop           = "typing_stop"
	EventMarkAsRead           = "mark_as_read"
	EventMarkConversationRead = "mark_conversation_read"
	EventCheckOnlineStatus    = "check_online_status"
)

// Outbound event names.
const (
	EventNewMessage          = "new_message"
	EventConversationUpdated = "conversation_updated"
	EventUserOnline          = "user_online"
	EventUserOffline         = "user_offline"
	EventUserTyping          = "user_typing"
	EventMessageRead         = "message_read"
	EventConversationRead    = "conversation_read"
	EventOnlineStatuses      = "online_statuses"
	EventError               = "error"
)

var (
	ErrUnknownEvent   = errors.New("realtime: unknown event")
	ErrInvalidPayload = errors.New("realtime: invalid event payload")
)

// Event is the outbound envelope written to a connection.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// envelope is the raw inbound frame before payload dispatch.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Inbound is the closed union of client events. Each variant carries a
// fixed schema validated at decode time, before any business logic runs.
type Inbound interface {
	inbound()
}

type Authenticate struct {
	Token string `json:"token"`
}

type JoinConversation struct {
	ConversationID string `json:"conversation_id"`
}

type LeaveConversation struct {
	ConversationID string `json:"conversation_id"`
}

type SendMessage struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	ReplyTo        string `json:"reply_to_message_id,omitempty"`
}

type Typing struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"-"`
}

type MarkAsRead struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

type MarkConversationRead struct {
	ConversationID string `json:"conversation_id"`
}

type CheckOnlineStatus struct {
	UserIDs []string `json:"user_ids"`
}

func (Authenticate) inbound()         {}
func (JoinConversation) inbound()     {}
func (LeaveConversation) inbound()    {}
func (SendMessage) inbound()          {}
func (Typing) inbound()               {}
func (MarkAsRead) inbound()           {}
func (MarkConversationRead) inbound() {}
func (CheckOnlineStatus) inbound()    {}

// DecodeInbound parses one raw frame into its typed variant. Unknown names
// and schema violations are rejected here so handlers only ever see valid
// payloads.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	switch env.Event {
	case EventAuthenticate:
		var ev Authenticate
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.Token == "" {
			return nil, fmt.Errorf("%w: token is required", ErrInvalidPayload)
		}
		return ev, nil
	case EventJoinConversation:
		var ev JoinConversation
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.ConversationID == "" {
			return nil, fmt.Errorf("%w: conversation_id is required", ErrInvalidPayload)
		}
		return ev, nil
	case EventLeaveConversation:
		var ev LeaveConversation
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.ConversationID == "" {
			return nil, fmt.Errorf("%w: conversation_id is required", ErrInvalidPayload)
		}
		return ev, nil
	case EventSendMessage:
		var ev SendMessage
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.ConversationID == "" || ev.Content == "" {
			return nil, fmt.Errorf("%w: conversation_id and content are required", ErrInvalidPayload)
		}
		return ev, nil
	case EventTypingStart, EventTypingStop:
		var ev Typing
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.ConversationID == "" {
			return nil, fmt.Errorf("%w: conversation_id is required", ErrInvalidPayload)
		}
		ev.IsTyping = env.Event == EventTypingStart
		return ev, nil
	case EventMarkAsRead:
		var ev MarkAsRead
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.MessageID == "" || ev.ConversationID == "" {
			return nil, fmt.Errorf("%w: message_id and conversation_id are required", ErrInvalidPayload)
		}
		return ev, nil
	case EventMarkConversationRead:
		var ev MarkConversationRead
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.ConversationID == "" {
			return nil, fmt.Errorf("%w: conversation_id is required", ErrInvalidPayload)
		}
		return ev, nil
	case EventCheckOnlineStatus:
		var ev CheckOnlineStatus
		if err := decodeData(env.Data, &ev); err != nil {
			return nil, err
		}
		if len(ev.UserIDs) == 0 {
			return nil, fmt.Errorf("%w: user_ids is required", ErrInvalidPayload)
		}
		return ev, nil
	case "":
		return nil, fmt.Errorf("%w: missing event name", ErrInvalidPayload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func decodeData(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// Outbound payloads.

type NewMessagePayload struct {
	ConversationID string      `json:"conversation_id"`
	Message        dto.Message `json:"message"`
}

type ConversationUpdatedPayload struct {
	ConversationID string `json:"conversation_id"`
}

type PresencePayload struct {
	UserID string `json:"user_id"`
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"isTyping"`
}

type MessageReadPayload struct {
	MessageID string    `json:"message_id"`
	ReadBy    string    `json:"readBy"`
	ReadAt    time.Time `json:"readAt"`
}

type ConversationReadPayload struct {
	ConversationID string `json:"conversation_id"`
	ReadBy         string `json:"readBy"`
}

type OnlineStatus struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// ErrorEvent builds the error frame sent back to the originating
// connection only.
func ErrorEvent(message string) Event {
	return Event{Name: EventError, Data: ErrorPayload{Message: message}}
}
