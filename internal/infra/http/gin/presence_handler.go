package ginserver

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	chatservice "messenger/internal/app/services/chat"
	domainuser "messenger/internal/domain/user"
	"messenger/internal/realtime"
)

// PresenceHTTP exposes online-status and unread-count endpoints for
// clients without a live websocket.
type PresenceHTTP interface {
	OnlineStatuses(c *gin.Context)
	UnreadCount(c *gin.Context)
}

type PresenceHandler struct {
	Presence  realtime.PresenceStore
	ReadState *chatservice.ReadStateService
	Logger    *slog.Logger
}

const maxStatusBatch = 100

type onlineStatusResponse struct {
	UserID   string     `json:"user_id"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

func (h PresenceHandler) OnlineStatuses(c *gin.Context) {
	if _, ok := requirePrincipal(c); !ok {
		return
	}
	raw := strings.TrimSpace(c.Query("user_ids"))
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_ids is required"})
		return
	}
	ids := strings.Split(raw, ",")
	if len(ids) > maxStatusBatch {
		ids = ids[:maxStatusBatch]
	}
	statuses := make([]onlineStatusResponse, 0, len(ids))
	for _, rawID := range ids {
		id := domainuser.ID(strings.TrimSpace(rawID))
		if id == "" {
			continue
		}
		status := onlineStatusResponse{UserID: string(id)}
		if online, err := h.Presence.IsOnline(c.Request.Context(), id); err == nil {
			status.IsOnline = online
		}
		if !status.IsOnline {
			if seen, ok, err := h.Presence.LastSeen(c.Request.Context(), id); err == nil && ok {
				lastSeen := seen
				status.LastSeen = &lastSeen
			}
		}
		statuses = append(statuses, status)
	}
	c.JSON(http.StatusOK, gin.H{"statuses": statuses})
}

func (h PresenceHandler) UnreadCount(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	count, err := h.ReadState.UnreadCount(c.Request.Context(), domainuser.ID(principal.ID))
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("unread count failed", "user_id", principal.ID, "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

var _ PresenceHTTP = (*PresenceHandler)(nil)
