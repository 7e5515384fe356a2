// middleware/contenttype.go
package middleware

import (
	"net/http"
	"strings"

	"github.com/dalemusser/gestorbff/apperr"
)

// RequireJSON returns a middleware that ensures write requests carry a JSON
// Content-Type: "application/json" or a "+json" suffix such as
// "application/problem+json". Requests without a body (GET, DELETE, or any
// request with no payload) pass through untouched.
//
// A non-JSON Content-Type gets a 415 rendered in the standard error envelope.
func RequireJSON() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// ContentLength 0 means no payload; -1 (chunked) falls through
			// to the Content-Type check.
			if r.ContentLength == 0 ||
				r.Method == http.MethodGet || r.Method == http.MethodHead ||
				r.Method == http.MethodDelete || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ct := strings.TrimSpace(r.Header.Get("Content-Type"))
			if ct == "" {
				apperr.Write(w, r, apperr.New("unsupported_media_type",
					"Content-Type must be application/json", http.StatusUnsupportedMediaType))
				return
			}

			// Strip parameters, e.g. "; charset=utf-8".
			if idx := strings.Index(ct, ";"); idx != -1 {
				ct = ct[:idx]
			}
			ct = strings.ToLower(strings.TrimSpace(ct))

			if ct != "application/json" && !strings.HasSuffix(ct, "+json") {
				apperr.Write(w, r, apperr.New("unsupported_media_type",
					"Content-Type must be application/json", http.StatusUnsupportedMediaType))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
