// requestid/requestid.go
package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// contextKey is the type for context keys.
type contextKey string

const requestIDKey contextKey = "request_id"

// Header is the HTTP header carrying the correlation id on every response.
const Header = "X-Request-ID"

// Middleware assigns a fresh UUID correlation id to each request, stores it
// in the request context, and sets the X-Request-ID response header.
//
// Inbound X-Request-ID headers are ignored: correlation ids are always
// server-assigned so operators can trust them when matching client reports
// to logs.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := uuid.NewString()
			w.Header().Set(Header, id)
			ctx := context.WithValue(r.Context(), requestIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Get retrieves the correlation id from the context, or "" if none.
func Get(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Set adds a correlation id to a context. Useful in tests and when
// propagating ids into background work.
func Set(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// FromRequest retrieves the correlation id from an HTTP request.
func FromRequest(r *http.Request) string {
	return Get(r.Context())
}
