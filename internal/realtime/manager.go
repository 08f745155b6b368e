package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"messenger/internal/app/dto"
	"messenger/internal/app/notify"
	chatservice "messenger/internal/app/services/chat"
	domainchat "messenger/internal/domain/chat"
	"messenger/internal/domain/user"
)

var ErrUnauthenticated = errors.New("realtime: authentication required")

// IdentityResolver turns a handshake token into a trusted user identity.
// Identity itself is owned by the authentication collaborator.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (user.ID, error)
}

// Manager owns the connection-session lifecycle: handshake, presence
// registration, room membership and disconnect cleanup. It is the only
// component allowed to mutate the presence store and the router's
// subscription sets.
type Manager struct {
	Presence      PresenceStore
	Router        *Router
	Identity      IdentityResolver
	Conversations *chatservice.ConversationService
	Messages      *chatservice.MessageService
	ReadState     *chatservice.ReadStateService
	Notifier      notify.Notifier
	Logger        *slog.Logger

	mu       sync.Mutex
	sessions map[ConnectionID]*Session
}

// Open creates a tracked session in the Connecting state. The caller must
// authenticate it before any other event is accepted.
func (m *Manager) Open() *Session {
	s := newSession()
	m.mu.Lock()
	if m.sessions == nil {
		m.sessions = make(map[ConnectionID]*Session)
	}
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// SessionCount reports how many sessions this instance is tracking.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Authenticate binds a verified identity to the session, registers
// presence (last connection wins) and announces the user online.
func (m *Manager) Authenticate(ctx context.Context, s *Session, userID user.ID) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	if !s.transition(StateConnecting, StateAuthenticated) {
		return ErrUnauthenticated
	}
	s.bind(userID)

	prior, err := m.Presence.Register(ctx, userID, s.ID)
	if err != nil {
		return err
	}
	if prior != "" {
		// A newer connection replaces the old one; close it so the
		// same user never receives duplicate fan-out.
		m.evict(prior, userID)
	}
	m.Router.Attach(s.ID, userID, s)
	s.transition(StateAuthenticated, StateActive)

	m.Router.BroadcastAllExcept(s.ID, Event{Name: EventUserOnline, Data: PresencePayload{UserID: string(userID)}})
	if m.Logger != nil {
		m.Logger.Info("session authenticated", "connection_id", s.ID, "user_id", userID)
	}
	return nil
}

// Disconnect tears the session down. Idempotent: a session already closed
// by a newer connection of the same user is left alone.
func (m *Manager) Disconnect(ctx context.Context, s *Session) {
	userID := s.UserID()
	alreadyClosed := s.State() == StateClosed
	s.close()
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
	if userID == "" {
		return
	}
	m.Router.Detach(s.ID, userID)
	if err := m.Presence.Unregister(ctx, s.ID); err != nil && m.Logger != nil {
		m.Logger.Warn("presence unregister failed", "connection_id", s.ID, "error", err)
	}
	if alreadyClosed {
		return
	}
	online, err := m.Presence.IsOnline(ctx, userID)
	if err == nil && !online {
		m.Router.BroadcastAllExcept(s.ID, Event{Name: EventUserOffline, Data: PresencePayload{UserID: string(userID)}})
	}
	if m.Logger != nil {
		m.Logger.Info("session closed", "connection_id", s.ID, "user_id", userID)
	}
}

// Heartbeat refreshes presence liveness for expiring stores.
func (m *Manager) Heartbeat(ctx context.Context, s *Session) {
	if userID := s.UserID(); userID != "" {
		_ = m.Presence.Touch(ctx, userID, s.ID)
	}
}

// HandleEvent processes one inbound frame. Failures become an error event
// on the originating connection only; they never tear the connection down
// or leak to other room members.
func (m *Manager) HandleEvent(ctx context.Context, s *Session, raw []byte) {
	ev, err := DecodeInbound(raw)
	if err != nil {
		s.Send(ErrorEvent(err.Error()))
		return
	}

	if auth, ok := ev.(Authenticate); ok {
		m.handleAuthenticate(ctx, s, auth)
		return
	}
	if s.State() != StateActive {
		s.Send(ErrorEvent("authentication required"))
		return
	}

	switch ev := ev.(type) {
	case JoinConversation:
		m.handleJoin(ctx, s, ev)
	case LeaveConversation:
		m.Router.LeaveRoom(s.ID, domainchat.ConversationID(ev.ConversationID))
	case SendMessage:
		m.handleSendMessage(ctx, s, ev)
	case Typing:
		m.handleTyping(s, ev)
	case MarkAsRead:
		m.handleMarkAsRead(ctx, s, ev)
	case MarkConversationRead:
		m.handleMarkConversationRead(ctx, s, ev)
	case CheckOnlineStatus:
		m.handleCheckOnlineStatus(ctx, s, ev)
	}
}

func (m *Manager) handleAuthenticate(ctx context.Context, s *Session, ev Authenticate) {
	if s.State() != StateConnecting {
		s.Send(ErrorEvent("already authenticated"))
		return
	}
	if m.Identity == nil {
		s.Send(ErrorEvent("authentication unavailable"))
		return
	}
	userID, err := m.Identity.Resolve(ctx, ev.Token)
	if err != nil {
		s.Send(ErrorEvent("invalid credentials"))
		return
	}
	if err := m.Authenticate(ctx, s, userID); err != nil {
		s.Send(ErrorEvent("authentication failed"))
	}
}

// handleJoin subscribes the connection to a conversation room after
// verifying the caller actually participates in it.
func (m *Manager) handleJoin(ctx context.Context, s *Session, ev JoinConversation) {
	conversationID := domainchat.ConversationID(ev.ConversationID)
	if _, err := m.Conversations.Get(ctx, conversationID, s.UserID()); err != nil {
		s.Send(ErrorEvent(eventErrorMessage(err)))
		return
	}
	m.Router.JoinRoom(s.ID, conversationID)
}

// handleSendMessage persists first, then fans out. Receivers never see a
// notification for data that is not durably stored.
func (m *Manager) handleSendMessage(ctx context.Context, s *Session, ev SendMessage) {
	message, conversation, err := m.Messages.Create(ctx, domainchat.ConversationID(ev.ConversationID), s.UserID(), ev.Content, domainchat.MessageID(ev.ReplyTo))
	if err != nil {
		s.Send(ErrorEvent(eventErrorMessage(err)))
		return
	}
	m.PublishMessage(ctx, message, conversation)
}

// PublishMessage fans a stored message out: the room gets the message,
// both participants get a conversation update and an offline counterpart
// falls back to the push notifier. Used by the websocket path and by the
// REST send endpoint.
func (m *Manager) PublishMessage(ctx context.Context, message *domainchat.Message, conversation *domainchat.Conversation) {
	m.Router.BroadcastToRoom(conversation.ID, Event{
		Name: EventNewMessage,
		Data: NewMessagePayload{ConversationID: string(conversation.ID), Message: dto.FromMessage(message)},
	})
	updated := Event{Name: EventConversationUpdated, Data: ConversationUpdatedPayload{ConversationID: string(conversation.ID)}}
	m.Router.SendToUser(message.SenderID, updated)

	counterpart, err := conversation.Counterpart(message.SenderID)
	if err != nil {
		return
	}
	m.Router.SendToUser(counterpart, updated)
	online, err := m.Presence.IsOnline(ctx, counterpart)
	if err != nil || online {
		return
	}
	if m.Notifier != nil {
		pending := notify.PendingMessage{
			UserID:         string(counterpart),
			ConversationID: string(conversation.ID),
			MessageID:      string(message.ID),
			SenderID:       string(message.SenderID),
			Preview:        domainchat.Snippet(message.Content, domainchat.SnippetLimit),
			SentAt:         message.CreatedAt,
		}
		if err := m.Notifier.MessagePending(ctx, pending); err != nil && m.Logger != nil {
			m.Logger.Warn("offline notification failed", "user_id", counterpart, "error", err)
		}
	}
}

// handleTyping relays an ephemeral typing indicator to the room,
// excluding the sender. Nothing is persisted.
func (m *Manager) handleTyping(s *Session, ev Typing) {
	conversationID := domainchat.ConversationID(ev.ConversationID)
	if !m.Router.InRoom(s.ID, conversationID) {
		s.Send(ErrorEvent("join the conversation first"))
		return
	}
	m.Router.BroadcastToRoomExcept(conversationID, s.ID, Event{
		Name: EventUserTyping,
		Data: TypingPayload{
			ConversationID: ev.ConversationID,
			UserID:         string(s.UserID()),
			IsTyping:       ev.IsTyping,
		},
	})
}

func (m *Manager) handleMarkAsRead(ctx context.Context, s *Session, ev MarkAsRead) {
	reader := s.UserID()
	count, touched, err := m.ReadState.MarkMessagesRead(ctx, []domainchat.MessageID{domainchat.MessageID(ev.MessageID)}, reader)
	if err != nil {
		s.Send(ErrorEvent(eventErrorMessage(err)))
		return
	}
	if count == 0 {
		return
	}
	// The receipt goes to the room the message actually lives in, not to
	// whatever conversation id the client put on the event.
	for _, conversationID := range touched {
		m.Router.BroadcastToRoom(conversationID, Event{
			Name: EventMessageRead,
			Data: MessageReadPayload{MessageID: ev.MessageID, ReadBy: string(reader), ReadAt: time.Now().UTC()},
		})
	}
}

func (m *Manager) handleMarkConversationRead(ctx context.Context, s *Session, ev MarkConversationRead) {
	reader := s.UserID()
	conversationID := domainchat.ConversationID(ev.ConversationID)
	if _, err := m.ReadState.MarkConversationRead(ctx, conversationID, reader); err != nil {
		s.Send(ErrorEvent(eventErrorMessage(err)))
		return
	}
	conversation, err := m.Conversations.Get(ctx, conversationID, reader)
	if err != nil {
		return
	}
	if counterpart, err := conversation.Counterpart(reader); err == nil {
		m.Router.SendToUser(counterpart, Event{
			Name: EventConversationRead,
			Data: ConversationReadPayload{ConversationID: ev.ConversationID, ReadBy: string(reader)},
		})
	}
}

func (m *Manager) handleCheckOnlineStatus(ctx context.Context, s *Session, ev CheckOnlineStatus) {
	statuses := make([]OnlineStatus, 0, len(ev.UserIDs))
	for _, raw := range ev.UserIDs {
		id := user.ID(raw)
		status := OnlineStatus{UserID: raw}
		if online, err := m.Presence.IsOnline(ctx, id); err == nil {
			status.IsOnline = online
		}
		if !status.IsOnline {
			if seen, ok, err := m.Presence.LastSeen(ctx, id); err == nil && ok {
				lastSeen := seen
				status.LastSeen = &lastSeen
			}
		}
		statuses = append(statuses, status)
	}
	s.Send(Event{Name: EventOnlineStatuses, Data: statuses})
}

// evict force-closes a replaced connection of the same user.
func (m *Manager) evict(connID ConnectionID, userID user.ID) {
	m.mu.Lock()
	old, ok := m.sessions[connID]
	if ok {
		delete(m.sessions, connID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	old.close()
	m.Router.Detach(connID, userID)
	if m.Logger != nil {
		m.Logger.Info("session replaced by newer connection", "connection_id", connID, "user_id", userID)
	}
}

// eventErrorMessage maps domain failures to client-safe error text.
func eventErrorMessage(err error) string {
	switch {
	case errors.Is(err, domainchat.ErrConversationNotFound):
		return "conversation not found"
	case errors.Is(err, domainchat.ErrMessageNotFound):
		return "message not found"
	case errors.Is(err, domainchat.ErrNotParticipant):
		return "not a conversation participant"
	case errors.Is(err, domainchat.ErrNotSender):
		return "only the sender may do that"
	case errors.Is(err, domainchat.ErrEditWindowExpired):
		return "edit window expired"
	case errors.Is(err, domainchat.ErrReplyOutsideThread), errors.Is(err, domainchat.ErrReplyNotEarlier):
		return "invalid reply reference"
	case errors.Is(err, domainchat.ErrContentRequired):
		return "message content is required"
	case errors.Is(err, domainchat.ErrContentTooLong):
		return "message content exceeds limit"
	default:
		return "request failed"
	}
}
