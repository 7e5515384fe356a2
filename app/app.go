// app/app.go

// Package app owns the process startup sequence so main stays a one-liner
// and tests can drive the same wiring.
package app

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/dalemusser/gestorbff/config"
	"github.com/dalemusser/gestorbff/handlers"
	"github.com/dalemusser/gestorbff/health"
	"github.com/dalemusser/gestorbff/logging"
	"github.com/dalemusser/gestorbff/metrics"
	"github.com/dalemusser/gestorbff/origin"
	"github.com/dalemusser/gestorbff/resource"
	"github.com/dalemusser/gestorbff/router"
	"github.com/dalemusser/gestorbff/server"
	"github.com/dalemusser/gestorbff/session"
	"github.com/dalemusser/gestorbff/supabase"
)

// Run executes the standard startup sequence:
//
//  1. Bootstrap logger
//  2. Load and validate config
//  3. Build final logger from config
//  4. Register default metrics
//  5. Construct the upstream client, session manager, and origin policy
//  6. Wire handlers and the route tree
//  7. Tie shutdown signals to a context
//  8. Start the HTTP(S) server and block until shutdown
func Run(ctx context.Context) error {
	// 1) Bootstrap logger for early startup
	bootstrap := logging.BootstrapLogger()
	defer bootstrap.Sync()
	bootstrap.Info("bootstrap logger initialized", zap.String("app", "gestorbff"))

	// 2) Load config
	cfg, err := config.Load(bootstrap)
	if err != nil {
		bootstrap.Error("config load failed", zap.Error(err))
		os.Exit(1)
	}
	bootstrap.Info("config loaded",
		zap.String("env", cfg.Env),
		zap.String("log_level", cfg.LogLevel),
	)

	// 3) Build final logger
	logger := logging.MustBuildLogger(cfg.LogLevel, cfg.Env)
	defer logger.Sync()
	logger.Info("logger initialized", zap.String("app", "gestorbff"))
	logger.Debug("effective configuration", zap.String("config", cfg.Dump()))

	// 4) Register default metrics (Go, process, HTTP/upstream histograms)
	metrics.RegisterDefault(logger)

	// 5) Upstream client, session manager, origin policy
	client := supabase.New(cfg.Supabase)
	defer client.Close()

	cookies := session.NewManager(cfg.Session)

	origins, err := origin.Build(cfg.AllowedOrigins)
	if err != nil {
		logger.Error("invalid allowed_origins", zap.Error(err))
		os.Exit(1)
	}
	if origins.AllowAll() {
		logger.Warn("no allowed origins configured; accepting any origin")
	}

	// 6) Handlers and routes
	deps := router.Deps{
		Auth:    handlers.NewAuth(client, cookies, logger),
		Clients: handlers.NewResources(resource.NewService(client, resource.Clients), cookies, logger),
		Tasks:   handlers.NewResources(resource.NewService(client, resource.Tasks), cookies, logger),
		Origins: origins,
		Health: map[string]health.Check{
			"supabase": client.Health,
		},
	}
	handler := router.New(cfg, logger, deps)

	// 7) Shutdown signals → context
	ctx, cancel := server.WithShutdownSignals(ctx, logger)
	defer cancel()

	// 8) Serve
	if err := server.ListenAndServeWithContext(ctx, cfg, handler, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
