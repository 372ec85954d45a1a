package httpapi

import (
	"context"

	"github.com/gin-gonic/gin"
)

// clientIPKey is an unexported context key for passing the resolved client IP
// through internal layers without depending on gin below the HTTP boundary.

type clientIPKey struct{}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	v := ctx.Value(clientIPKey{})
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// AttachClientIP resolves the caller's IP once per request and stores it on
// the request context for audit trails.
func AttachClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}
