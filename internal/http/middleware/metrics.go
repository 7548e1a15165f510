package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/tcm-knowledge-backend/internal/observability"
)

// Metrics instruments HTTP request counts and latency when m is set.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		m.APIInflightInc()
		defer m.APIInflightDec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.ObserveAPI(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
