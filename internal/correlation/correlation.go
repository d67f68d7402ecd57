// Package correlation threads a single correlation id through inbound
// requests, outbound calls and log lines.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Header carries the correlation id on every HTTP exchange.
const Header = "x-correlation-id"

const contextKey = "correlationId"

type ctxKey struct{}

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// WithID returns a copy of ctx carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the id stored by WithID, or "".
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Resolve prefers the id embedded in a payload over the one supplied by the
// transport that delivered it.
func Resolve(embedded, fallback string) string {
	if strings.TrimSpace(embedded) != "" {
		return embedded
	}
	return fallback
}

// FromEcho returns the id assigned by Middleware.
func FromEcho(c echo.Context) string {
	if id, ok := c.Get(contextKey).(string); ok {
		return id
	}
	return FromContext(c.Request().Context())
}

// SetHeader stamps id onto outbound request headers.
func SetHeader(h http.Header, id string) {
	if id == "" {
		return
	}
	h.Set(Header, id)
}

// Middleware reads the inbound correlation id, generating one when absent,
// and makes it available to handlers, the request context and the response.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := strings.TrimSpace(req.Header.Get(Header))
			if id == "" {
				id = NewID()
			}
			c.Set(contextKey, id)
			c.SetRequest(req.WithContext(WithID(req.Context(), id)))
			c.Response().Header().Set(Header, id)
			return next(c)
		}
	}
}
