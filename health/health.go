// health/health.go
package health

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dalemusser/gestorbff/httputil"
)

// Check is a single health probe. It returns nil when the dependency is
// healthy. The ctx is derived from the incoming request context.
type Check func(ctx context.Context) error

// Response is the JSON structure returned by the health handler.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler returns an http.Handler that runs the provided checks on each
// request. With no checks it is a plain liveness probe returning
// {"status":"ok"}; if any check fails the status is 503 and the failing
// checks carry their error text.
func Handler(checks map[string]Check, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(checks) == 0 {
			httputil.WriteJSON(w, http.StatusOK, Response{Status: "ok"})
			return
		}

		ctx := r.Context()
		results := make(map[string]string, len(checks))
		anyErr := false

		for name, check := range checks {
			if check == nil {
				results[name] = "ok"
				continue
			}
			if err := check(ctx); err != nil {
				anyErr = true
				msg := "error"
				if err.Error() != "" {
					msg = "error: " + err.Error()
				}
				results[name] = msg

				if logger != nil {
					logger.Warn("health check failed",
						zap.String("check", name),
						zap.Error(err),
					)
				}
			} else {
				results[name] = "ok"
			}
		}

		status := http.StatusOK
		overall := "ok"
		if anyErr {
			status = http.StatusServiceUnavailable
			overall = "error"
		}
		httputil.WriteJSON(w, status, Response{Status: overall, Checks: results})
	})
}

// Mount attaches a GET /healthz route running the provided checks.
func Mount(r chi.Router, checks map[string]Check, logger *zap.Logger) {
	r.Method(http.MethodGet, "/healthz", Handler(checks, logger))
}

// MountAt is like Mount but with a custom path, e.g. "/ready" or "/live".
func MountAt(r chi.Router, path string, checks map[string]Check, logger *zap.Logger) {
	r.Method(http.MethodGet, path, Handler(checks, logger))
}
