package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/atlas-ingest/internal/platform/ctxutil"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

const (
	snsMessageTypeHeader = "X-Amz-Sns-Message-Type"
	snsTopicArnHeader    = "X-Amz-Sns-Topic-Arn"
)

// RequestLogger emits one line per request, at warn for 4xx and error for 5xx.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log == nil {
			return
		}

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		fields = append(fields, ctxutil.LogFields(c.Request.Context())...)
		if n := c.Request.ContentLength; n > 0 {
			fields = append(fields, "bytes_in", n)
		}
		// SNS posts identify themselves through headers before the body is parsed.
		if mt := c.GetHeader(snsMessageTypeHeader); mt != "" {
			fields = append(fields, "sns_message_type", mt)
		}
		if arn := c.GetHeader(snsTopicArnHeader); arn != "" {
			fields = append(fields, "topic_arn", arn)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "error", c.Errors.Last().Error())
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
