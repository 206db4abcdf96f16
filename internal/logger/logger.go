package logger

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

var base = logrus.New()

// Setup applies level and formatter from config. Unknown levels fall back to info.
func Setup(level, format string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	if format == "json" {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// For returns the request-scoped entry stored in ctx, or the base logger.
func For(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
			return entry
		}
	}
	return logrus.NewEntry(base)
}

// NewContext stores entry in ctx so For can find it downstream.
func NewContext(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, entry)
}

// Middleware tags each request with an id and logs it on completion.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		entry := logrus.NewEntry(base).WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
		})
		c.Request = c.Request.WithContext(NewContext(c.Request.Context(), entry))

		c.Next()

		fields := logrus.Fields{
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}
		if len(c.Errors) > 0 {
			entry.WithFields(fields).Error(c.Errors.String())
			return
		}
		entry.WithFields(fields).Info("request completed")
	}
}

// WithUser adds the acting user's id to the request logger.
func WithUser(c *gin.Context, userID uint) {
	ctx := c.Request.Context()
	c.Request = c.Request.WithContext(NewContext(ctx, For(ctx).WithField("user_id", userID)))
}

// Base exposes the root logger for libraries that want a Printf writer.
func Base() *logrus.Logger {
	return base
}
