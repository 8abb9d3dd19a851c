package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/shiptrack/internal/core"
	"github.com/JonMunkholm/shiptrack/internal/web/middleware"
)

// WithRequestMetadata adds the client IP and User-Agent to ctx for run history.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithClientIP(ctx, middleware.ClientIP(r))
	ctx = core.ContextWithUserAgent(ctx, r.Header.Get("User-Agent"))
	return ctx
}
