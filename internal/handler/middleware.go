package handler

import (
	"time"

	"propsearch/pkg/log"

	"github.com/gin-gonic/gin"
)

// requestLogger logs one line per request. Bodies are not captured since
// search responses may be event streams.
func requestLogger() gin.HandlerFunc {
	logger := log.Named("http")
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		logger.Infow("HTTP request",
			"status", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"bytes", c.Writer.Size(),
		)
	}
}
