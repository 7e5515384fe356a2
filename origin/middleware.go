// origin/middleware.go
package origin

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/dalemusser/gestorbff/requestid"
)

// Middleware returns a CORS middleware that consults the policy per request.
// Credentials are always allowed because the session rides on cookies; the
// allow-origin header therefore echoes the request origin rather than "*".
func Middleware(p *Policy) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, o string) bool {
			return p.Allow(o)
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{requestid.Header},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
