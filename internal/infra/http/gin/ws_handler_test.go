package ginserver

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainuser "messenger/internal/domain/user"
	"messenger/internal/realtime"
)

// rejectAll fails every token resolution.
type rejectAll struct{}

func (rejectAll) Resolve(ctx context.Context, token string) (domainuser.ID, error) {
	return "", errors.New("unknown token")
}

func newWSTestServer(t *testing.T, handler WSHandler) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", handler.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// expectServerClose asserts the peer sent a close frame with the given code
// and then dropped the underlying connection.
func expectServerClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, code, closeErr.Code)

	raw := conn.UnderlyingConn()
	require.NoError(t, raw.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = raw.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF, "peer kept the connection open after the close frame")
}

func TestWSHandler_BadTokenClosesConnection(t *testing.T) {
	manager := &realtime.Manager{
		Presence: realtime.NewMemoryPresence(),
		Router:   realtime.NewRouter(),
	}
	srv := newWSTestServer(t, WSHandler{
		Manager:          manager,
		Identity:         rejectAll{},
		HandshakeTimeout: time.Minute,
	})

	conn := dialWS(t, srv, "?token=forged")
	expectServerClose(t, conn, websocket.ClosePolicyViolation)

	assert.Eventually(t, func() bool { return manager.SessionCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestWSHandler_HandshakeTimeoutClosesConnection(t *testing.T) {
	manager := &realtime.Manager{
		Presence: realtime.NewMemoryPresence(),
		Router:   realtime.NewRouter(),
	}
	srv := newWSTestServer(t, WSHandler{
		Manager:          manager,
		Identity:         rejectAll{},
		HandshakeTimeout: 50 * time.Millisecond,
	})

	conn := dialWS(t, srv, "")
	expectServerClose(t, conn, websocket.ClosePolicyViolation)
}
