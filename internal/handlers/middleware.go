package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
)

// RequestLogger logs each request with method, path, status and duration.
// It does not log request or response bodies.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		status := c.Writer.Status()
		switch {
		case status >= 500:
			logger.Errorf("request method=%s path=%s status=%d duration_ms=%d",
				c.Request.Method, c.Request.URL.Path, status, duration.Milliseconds())
		case status >= 400:
			logger.Warningf("request method=%s path=%s status=%d duration_ms=%d",
				c.Request.Method, c.Request.URL.Path, status, duration.Milliseconds())
		default:
			logger.Infof("request method=%s path=%s status=%d duration_ms=%d",
				c.Request.Method, c.Request.URL.Path, status, duration.Milliseconds())
		}
	}
}
