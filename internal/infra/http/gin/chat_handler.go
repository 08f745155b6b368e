package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"messenger/internal/app/dto"
	chatservice "messenger/internal/app/services/chat"
	domainchat "messenger/internal/domain/chat"
	domainuser "messenger/internal/domain/user"
	"messenger/internal/realtime"
)

// ChatHTTP exposes the conversation and message endpoints.
type ChatHTTP interface {
	ListMyConversations(c *gin.Context)
	CreateConversation(c *gin.Context)
	GetConversation(c *gin.Context)
	DeleteConversation(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	SearchMessages(c *gin.Context)
	EditMessage(c *gin.Context)
	DeleteMessage(c *gin.Context)
	MarkMessagesRead(c *gin.Context)
	MarkConversationRead(c *gin.Context)
}

// ChatHandler bridges HTTP with the chat services. Realtime is optional;
// when present, REST-originated sends fan out to live subscribers too.
type ChatHandler struct {
	Conversations *chatservice.ConversationService
	Messages      *chatservice.MessageService
	ReadState     *chatservice.ReadStateService
	Realtime      *realtime.Manager
	Logger        *slog.Logger
}

func (h ChatHandler) ListMyConversations(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	page := parsePositiveIntStrict(c.Query("page"), 1)
	limit := parsePositiveIntStrict(c.Query("limit"), 20)
	unreadOnly := c.Query("unread_only") == "true"

	summaries, err := h.Conversations.ListForUser(c.Request.Context(), domainuser.ID(principal.ID), unreadOnly, page, limit)
	if err != nil {
		h.respondChatError(c, err, "list conversations", "user_id", principal.ID)
		return
	}
	collection := dto.ConversationList{
		Items: make([]dto.Conversation, 0, len(summaries)),
		Page:  page,
	}
	for _, summary := range summaries {
		collection.Items = append(collection.Items, dto.FromSummary(summary))
	}
	c.JSON(http.StatusOK, collection)
}

// CreateConversation gets or creates the single thread for a pair. An
// optional message seeds the thread in the same transaction.
func (h ChatHandler) CreateConversation(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req struct {
		UserID     string `json:"user_id"`
		ContextRef string `json:"context_ref"`
		Message    string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	conversation, seeded, err := h.Conversations.GetOrCreate(
		c.Request.Context(),
		domainuser.ID(principal.ID),
		domainuser.ID(strings.TrimSpace(req.UserID)),
		req.ContextRef,
		req.Message,
	)
	if err != nil {
		h.respondChatError(c, err, "create conversation", "user_id", principal.ID, "peer_id", req.UserID)
		return
	}
	if seeded != nil && h.Realtime != nil {
		h.Realtime.PublishMessage(c.Request.Context(), seeded, conversation)
	}
	c.JSON(http.StatusOK, dto.FromConversation(conversation))
}

func (h ChatHandler) GetConversation(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conversationID, ok := pathConversationID(c)
	if !ok {
		return
	}
	conversation, err := h.Conversations.Get(c.Request.Context(), conversationID, domainuser.ID(principal.ID))
	if err != nil {
		h.respondChatError(c, err, "load conversation", "conversation_id", conversationID, "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, dto.FromConversation(conversation))
}

func (h ChatHandler) DeleteConversation(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conversationID, ok := pathConversationID(c)
	if !ok {
		return
	}
	if err := h.Conversations.Delete(c.Request.Context(), conversationID, domainuser.ID(principal.ID)); err != nil {
		h.respondChatError(c, err, "delete conversation", "conversation_id", conversationID, "user_id", principal.ID)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMessages pages a conversation newest-first. Viewing marks the
// counterpart's messages read.
func (h ChatHandler) ListMessages(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conversationID, ok := pathConversationID(c)
	if !ok {
		return
	}
	before, err := parseBeforeCursor(c.Query("before"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before cursor"})
		return
	}
	// Clamp before the full-page check below so an oversized limit still
	// yields a continuation cursor for the page actually served.
	limit := chatservice.NormalizeLimit(parsePositiveIntStrict(c.Query("limit"), 50))

	messages, _, err := h.Messages.List(c.Request.Context(), conversationID, domainuser.ID(principal.ID), before, limit)
	if err != nil {
		h.respondChatError(c, err, "list messages", "conversation_id", conversationID, "user_id", principal.ID)
		return
	}
	collection := dto.MessageList{Items: dto.FromMessages(messages)}
	if len(messages) == limit && limit > 0 {
		oldest := messages[len(messages)-1]
		collection.NextBefore = oldest.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	c.JSON(http.StatusOK, collection)
}

func (h ChatHandler) SendMessage(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conversationID, ok := pathConversationID(c)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
		ReplyTo string `json:"reply_to_message_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	message, conversation, err := h.Messages.Create(
		c.Request.Context(),
		conversationID,
		domainuser.ID(principal.ID),
		req.Content,
		domainchat.MessageID(strings.TrimSpace(req.ReplyTo)),
	)
	if err != nil {
		h.respondChatError(c, err, "send message", "conversation_id", conversationID, "user_id", principal.ID)
		return
	}
	if h.Realtime != nil {
		h.Realtime.PublishMessage(c.Request.Context(), message, conversation)
	}
	c.JSON(http.StatusCreated, dto.FromMessage(message))
}

func (h ChatHandler) SearchMessages(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conversationID, ok := pathConversationID(c)
	if !ok {
		return
	}
	term := strings.TrimSpace(c.Query("q"))
	if term == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	messages, err := h.Messages.Search(c.Request.Context(), conversationID, domainuser.ID(principal.ID), term)
	if err != nil {
		h.respondChatError(c, err, "search messages", "conversation_id", conversationID, "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MessageList{Items: dto.FromMessages(messages)})
}

func (h ChatHandler) EditMessage(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	messageID := strings.TrimSpace(c.Param("id"))
	if messageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message id is required"})
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	message, err := h.Messages.Edit(c.Request.Context(), domainchat.MessageID(messageID), domainuser.ID(principal.ID), req.Content)
	if err != nil {
		h.respondChatError(c, err, "edit message", "message_id", messageID, "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, dto.FromMessage(message))
}

func (h ChatHandler) DeleteMessage(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	messageID := strings.TrimSpace(c.Param("id"))
	if messageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message id is required"})
		return
	}
	if _, err := h.Messages.Delete(c.Request.Context(), domainchat.MessageID(messageID), domainuser.ID(principal.ID)); err != nil {
		h.respondChatError(c, err, "delete message", "message_id", messageID, "user_id", principal.ID)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h ChatHandler) MarkMessagesRead(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req struct {
		MessageIDs []string `json:"message_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.MessageIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_ids is required"})
		return
	}
	ids := make([]domainchat.MessageID, 0, len(req.MessageIDs))
	for _, raw := range req.MessageIDs {
		ids = append(ids, domainchat.MessageID(strings.TrimSpace(raw)))
	}
	count, _, err := h.ReadState.MarkMessagesRead(c.Request.Context(), ids, domainuser.ID(principal.ID))
	if err != nil {
		h.respondChatError(c, err, "mark messages read", "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": count})
}

func (h ChatHandler) MarkConversationRead(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conversationID, ok := pathConversationID(c)
	if !ok {
		return
	}
	count, err := h.ReadState.MarkConversationRead(c.Request.Context(), conversationID, domainuser.ID(principal.ID))
	if err != nil {
		h.respondChatError(c, err, "mark conversation read", "conversation_id", conversationID, "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": count})
}

func (h ChatHandler) respondChatError(c *gin.Context, err error, action string, attrs ...any) {
	if h.Logger != nil {
		h.Logger.Error("chat call failed", append([]any{"action", action, "error", err}, attrs...)...)
	}
	switch {
	case errors.Is(err, domainchat.ErrConversationNotFound),
		errors.Is(err, domainchat.ErrMessageNotFound),
		errors.Is(err, domainuser.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domainchat.ErrNotParticipant),
		errors.Is(err, domainchat.ErrNotSender):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, domainchat.ErrEditWindowExpired):
		c.JSON(http.StatusConflict, gin.H{"error": "edit window expired"})
	case errors.Is(err, domainchat.ErrParticipantRequired),
		errors.Is(err, domainchat.ErrSelfConversation),
		errors.Is(err, domainchat.ErrContentRequired),
		errors.Is(err, domainchat.ErrContentTooLong),
		errors.Is(err, domainchat.ErrReplyOutsideThread),
		errors.Is(err, domainchat.ErrReplyNotEarlier):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathConversationID(c *gin.Context) (domainchat.ConversationID, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return "", false
	}
	return domainchat.ConversationID(id), true
}

// parseBeforeCursor accepts RFC 3339 or unix milliseconds.
func parseBeforeCursor(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

func parsePositiveIntStrict(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}

var _ ChatHTTP = (*ChatHandler)(nil)
