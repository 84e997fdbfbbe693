// Package app is the main orchestrator that ties the Server's components
// together: config, store, classifier, rate limiter, fan-out registry,
// session router, HTTP API, and the retention sweeper.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wireterm/wireterm/server/internal/auth"
	"github.com/wireterm/wireterm/server/internal/config"
	"github.com/wireterm/wireterm/server/internal/fanout"
	"github.com/wireterm/wireterm/server/internal/httpapi"
	"github.com/wireterm/wireterm/server/internal/ratelimit"
	"github.com/wireterm/wireterm/server/internal/retention"
	"github.com/wireterm/wireterm/server/internal/router"
	"github.com/wireterm/wireterm/server/internal/store"
)

// App is the assembled Server process.
type App struct {
	cfg     *config.Config
	store   store.Store
	api     *httpapi.Server
	sweeper *retention.Sweeper
	logger  *slog.Logger
	addr    string
}

// tokenHashKey derives the Classifier's keyed-hash key from the configured
// SuperAdmin token, so Agent token hashing is deterministic across restarts
// without a separate secret in the config file.
func tokenHashKey(cfg *config.Config) []byte {
	return []byte("wireterm-token-hash:" + cfg.Security.SuperAdminToken)
}

// New assembles an App from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	s, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	classifier := auth.New(s, cfg.Security.SuperAdminToken, cfg.Security.TokenMinLength, tokenHashKey(cfg))

	limiter, err := ratelimit.New(cfg.Database.RedisURL, cfg.Security.RateLimitPerMinute)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("init rate limiter: %w", err)
	}

	fo := fanout.New(s, cfg.TerminalHistory.DefaultBufferSizeKB, logger)
	rt := router.New(s, classifier, limiter, fo, cfg.TerminalHistory.DefaultBufferSizeKB, cfg.AuditLog.Enabled, logger)

	api := httpapi.New(httpapi.Options{
		Router:         rt,
		AllowedOrigins: []string{"*"},
		Logger:         logger,
	})

	sweeper := retention.New(s, rt, cfg.RetentionWindow(), cfg.AuditRetentionWindow(),
		cfg.TerminalHistory.Enabled, cfg.AuditLog.Enabled, logger)

	return &App{
		cfg:     cfg,
		store:   s,
		api:     api,
		sweeper: sweeper,
		logger:  logger.With("component", "app"),
		addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
	}, nil
}

// Run starts the HTTP listener and retention sweeper and blocks until ctx
// is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:    a.addr,
		Handler: a.api,
	}

	// The sweeper bundles three independent duties (spec §4.5): history
	// pruning, audit pruning, and stale-suspended-instance purging. It needs
	// to run whenever either retention-backed feature is on; sweepOnce gates
	// the first two duties individually and always runs the third.
	if a.cfg.TerminalHistory.Enabled || a.cfg.AuditLog.Enabled {
		go a.sweeper.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", a.addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			_ = httpSrv.Close()
		}
		_ = a.store.Close()
		return ctx.Err()

	case err := <-errCh:
		_ = a.store.Close()
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
