package ctadmin

import (
	"context"

	"github.com/MrEthical07/ctadmin/middleware"
)

// WithRequestID attaches a correlation id to ctx. Requests dispatched with
// ctx carry it in the X-Request-ID header, and audit events record it.
// Without one, every request gets a fresh UUID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return middleware.WithRequestID(ctx, id)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := middleware.RequestIDFromContext(ctx)
	return id
}
