// router/router.go
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dalemusser/gestorbff/apperr"
	"github.com/dalemusser/gestorbff/config"
	"github.com/dalemusser/gestorbff/handlers"
	"github.com/dalemusser/gestorbff/health"
	"github.com/dalemusser/gestorbff/logging"
	"github.com/dalemusser/gestorbff/metrics"
	"github.com/dalemusser/gestorbff/middleware"
	"github.com/dalemusser/gestorbff/origin"
	"github.com/dalemusser/gestorbff/ratelimit"
	"github.com/dalemusser/gestorbff/requestid"
)

// Deps are the constructed handler groups and policies the router mounts.
// Everything is built in main and passed in; the router holds no state.
type Deps struct {
	Auth    *handlers.Auth
	Clients *handlers.Resources
	Tasks   *handlers.Resources
	Origins *origin.Policy
	Health  map[string]health.Check
}

// New builds the full route tree with the standard middleware stack:
// correlation id, real IP, panic recovery, security headers, body size
// limit, metrics, access logging, CORS, and per-IP rate limiting, in that
// order. Health and metrics endpoints sit outside the rate limit so probes
// and scrapes never starve.
func New(cfg *config.Config, logger *zap.Logger, deps Deps) chi.Router {
	r := chi.NewRouter()

	// Request context & safety. Correlation first so every later stage,
	// including panic recovery, can log the id.
	r.Use(requestid.Middleware())
	r.Use(chimw.RealIP)
	r.Use(logging.Recoverer(logger))

	r.Use(middleware.SecureDefaults())
	r.Use(middleware.LimitBodySize(cfg.MaxRequestBodyBytes))

	r.Use(metrics.HTTPMetrics)
	r.Use(logging.RequestLogger(logger))

	// CORS before rate limiting so even a 429 carries CORS headers and the
	// browser can read the error envelope.
	r.Use(origin.Middleware(deps.Origins))

	r.Use(ratelimit.Middleware(ratelimit.Config{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
		Skip: func(req *http.Request) bool {
			return req.URL.Path == "/healthz" || req.URL.Path == "/metrics"
		},
	}))

	r.NotFound(apperr.NotFoundHandler(logger))
	r.MethodNotAllowed(apperr.MethodNotAllowedHandler(logger))

	r.Route("/auth", func(ar chi.Router) {
		ar.Use(middleware.RequireJSON())
		ar.Post("/signin", deps.Auth.SignIn)
		ar.Post("/signout", deps.Auth.SignOut)
		ar.Post("/refresh", deps.Auth.Refresh)
		ar.Get("/me", deps.Auth.Me)
	})

	r.Route("/clients", func(cr chi.Router) {
		cr.Use(middleware.RequireJSON())
		cr.Mount("/", deps.Clients.Routes())
	})
	r.Route("/tasks", func(tr chi.Router) {
		tr.Use(middleware.RequireJSON())
		tr.Mount("/", deps.Tasks.Routes())
	})

	health.Mount(r, deps.Health, logger)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}
