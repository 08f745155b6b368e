package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	domainuser "messenger/internal/domain/user"
	"messenger/internal/realtime"
)

const principalContextKey = "messenger.principal"

type principal struct {
	ID   string
	Name string
}

// AuthMiddleware resolves the bearer token into a principal. Requests
// without a valid token pass through anonymous; handlers that need an
// identity reject them via requirePrincipal.
type AuthMiddleware struct {
	Identity realtime.IdentityResolver
	Users    domainuser.Reader
	Logger   *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" || m.Identity == nil {
		c.Next()
		return
	}
	userID, err := m.Identity.Resolve(c.Request.Context(), token)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Debug("token validation failed", "error", err)
		}
		c.Next()
		return
	}
	p := principal{ID: string(userID)}
	if m.Users != nil {
		if u, err := m.Users.ByID(c.Request.Context(), userID); err == nil {
			p.Name = u.Name
		}
	}
	setPrincipal(c, p)
	c.Next()
}

func setPrincipal(c *gin.Context, p principal) {
	c.Set(principalContextKey, p)
}

func currentPrincipal(c *gin.Context) (principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return principal{}, false
	}
	p, ok := val.(principal)
	return p, ok
}

func requirePrincipal(c *gin.Context) (principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
