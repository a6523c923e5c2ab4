package middleware

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MrEthical07/ctadmin/tokenstore"
	"github.com/MrEthical07/ctadmin/transport"
	"github.com/google/uuid"
)

const (
	// DefaultCSRFCookie is the readable cookie holding the CSRF token.
	DefaultCSRFCookie = "ct_csrf"
	// DefaultCSRFHeader carries the CSRF token on state-changing requests.
	DefaultCSRFHeader = "X-CSRF-Token"
	// DefaultRequestIDHeader carries the correlation ID.
	DefaultRequestIDHeader = "X-Request-ID"
)

// CookieSource reads a cookie visible to the backend origin.
type CookieSource interface {
	CookieValue(name string) (string, bool)
}

// CSRF copies cookie into header on every non read-only request. Requests
// are left alone when the cookie is absent.
func CSRF(src CookieSource, cookie, header string) transport.RequestHook {
	if cookie == "" {
		cookie = DefaultCSRFCookie
	}
	if header == "" {
		header = DefaultCSRFHeader
	}
	return func(_ context.Context, req transport.Request) transport.Request {
		if src == nil || req.IsReadOnly() {
			return req
		}
		v, ok := src.CookieValue(cookie)
		if !ok {
			return req
		}
		return req.WithHeader(header, v)
	}
}

// Bearer attaches "Authorization: Bearer <token>" to every request when a
// token is stored under key. A store failure is logged and the request goes
// out unauthenticated.
func Bearer(store tokenstore.Store, key string, logger *slog.Logger) transport.RequestHook {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(ctx context.Context, req transport.Request) transport.Request {
		token, ok, err := tokenstore.Lookup(ctx, store, key)
		if err != nil {
			logger.Warn("middleware: token lookup failed", "err", err)
			return req
		}
		if !ok {
			return req
		}
		return req.WithHeader("Authorization", "Bearer "+token)
	}
}

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

type requestIDKey struct{}

// WithRequestID pins the correlation ID used for requests dispatched with ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the correlation ID pinned on ctx.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// RequestID sets header to the context's correlation ID, or a fresh UUID.
// A header already present on the request is kept, so retries reuse it.
func RequestID(header string) transport.RequestHook {
	if header == "" {
		header = DefaultRequestIDHeader
	}
	return func(ctx context.Context, req transport.Request) transport.Request {
		if req.Header.Get(header) != "" {
			return req
		}
		id, ok := RequestIDFromContext(ctx)
		if !ok {
			id = uuid.NewString()
		}
		return req.WithHeader(header, id)
	}
}
