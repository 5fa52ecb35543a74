package wkhttp

import (
	"fmt"
	"time"

	"github.com/WuKongIM/wkkv/pkg/wklog"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RequestIDHeader = "X-Request-Id"
	RequestIDKey    = "requestId"
)

// LoggerWithWklog 请求日志中间件
func LoggerWithWklog(log wklog.Log) HandlerFunc {
	return func(c *Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		if latency > time.Minute {
			latency = latency.Truncate(time.Second)
		}

		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		if raw != "" {
			path = path + "?" + raw
		}

		log.Debug(fmt.Sprintf("|%s| %d| %s", c.Request.Method, c.Writer.Status(), path),
			zap.String("requestId", c.RequestID()),
			zap.String("clientip", c.ClientIP()),
			zap.Int("size", c.Writer.Size()),
			zap.String("latency", latency.String()))
	}
}

// RequestIDMiddleware 没有携带X-Request-Id的请求生成一个uuid
func RequestIDMiddleware() HandlerFunc {
	return func(c *Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}
