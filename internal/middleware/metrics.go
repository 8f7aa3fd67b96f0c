package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/antonvlk/meteohub/pkg/metrics"
)

// Metrics records request latency for each HTTP request, labelled by the
// route template so selector values do not explode the cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		status := strconv.Itoa(c.Writer.Status())
		metrics.APILatency.WithLabelValues(c.Request.Method, path, status).Observe(duration)
	}
}
