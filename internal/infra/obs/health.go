package obs

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandlers exposes endpoints for liveness and readiness checks.
// Readiness additionally reports the live connection count so operators
// can watch drain progress during rollouts.
type HealthHandlers struct {
	Ready       func() error
	Connections func() int
}

func (h HealthHandlers) Livez(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (h HealthHandlers) Readyz(c *gin.Context) {
	if h.Ready != nil {
		if err := h.Ready(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
	}
	if h.Connections != nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": h.Connections()})
		return
	}
	c.Status(http.StatusOK)
}
