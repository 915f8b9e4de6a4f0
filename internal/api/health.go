package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opolis/payledger/internal/health"
)

// ReadyHandler serves the aggregate probe status. It answers 503 while any
// probe is degraded.
func ReadyHandler(checker *health.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ready, probes := checker.Status()
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "probes": probes})
	}
}
