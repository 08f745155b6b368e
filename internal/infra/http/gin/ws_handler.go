package ginserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"messenger/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 16 * 1024
)

// WSHandler upgrades HTTP requests to the realtime event connection. The
// client authenticates either with a token query parameter at upgrade
// time or with an authenticate event within the handshake timeout.
type WSHandler struct {
	Manager          *realtime.Manager
	Identity         realtime.IdentityResolver
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers must pass the CORS layer to reach this endpoint; origin
	// policy is enforced there.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h WSHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Debug("websocket upgrade rejected", "error", err)
		}
		return
	}

	session := h.Manager.Open()
	ctx := c.Request.Context()

	if token := c.Query("token"); token != "" {
		userID, err := h.Identity.Resolve(ctx, token)
		if err != nil {
			h.reject(ctx, conn, session, "invalid credentials")
			return
		}
		if err := h.Manager.Authenticate(ctx, session, userID); err != nil {
			h.reject(ctx, conn, session, "authentication failed")
			return
		}
	}

	go h.writePump(conn, session)
	h.enforceHandshake(conn, session)
	h.readPump(conn, session)
}

// readPump owns the connection's reader. It exits on any read error and
// tears the session down.
func (h WSHandler) readPump(conn *websocket.Conn, session *realtime.Session) {
	ctx := context.Background()
	defer h.Manager.Disconnect(ctx, session)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		h.Manager.Heartbeat(ctx, session)
		return nil
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if h.Logger != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Logger.Debug("websocket read failed", "connection_id", session.ID, "error", err)
			}
			return
		}
		h.Manager.HandleEvent(ctx, session, raw)
	}
}

// writePump owns the connection's writer: it drains the session queue and
// keeps the connection alive with pings. When the session closes its
// channel the pump sends a close frame and drops the connection.
func (h WSHandler) writePump(conn *websocket.Conn, session *realtime.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case ev, ok := <-session.Out():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enforceHandshake closes connections that never authenticate.
func (h WSHandler) enforceHandshake(conn *websocket.Conn, session *realtime.Session) {
	timeout := h.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	time.AfterFunc(timeout, func() {
		if session.State() == realtime.StateConnecting {
			h.closeWith(conn, websocket.ClosePolicyViolation, "authentication timeout")
			conn.Close()
		}
	})
}

// reject drops a connection that failed upgrade-time authentication. The
// pumps never start on this path, so the handler must release the hijacked
// connection itself.
func (h WSHandler) reject(ctx context.Context, conn *websocket.Conn, session *realtime.Session, reason string) {
	h.closeWith(conn, websocket.ClosePolicyViolation, reason)
	conn.Close()
	h.Manager.Disconnect(ctx, session)
}

// closeWith sends a close frame through the control channel, which stays
// safe against a concurrently running write pump.
func (h WSHandler) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
