package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-backend/internal/metrics"
)

// MetricsMiddleware считает запросы и их длительность по шаблону маршрута.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
