// middleware/sizelimit.go
package middleware

import (
	"net/http"
)

// LimitBodySize returns a middleware that caps the request body at maxBytes
// via http.MaxBytesReader; oversized bodies surface as a decode error in the
// JSON binder. If maxBytes <= 0 the middleware is a no-op.
//
// Apply early in the chain, before anything reads the body. Resource records
// are small; the default limit mostly guards against abusive uploads.
func LimitBodySize(maxBytes int64) func(next http.Handler) http.Handler {
	if maxBytes <= 0 {
		// No limit: return identity middleware.
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
