// Package app provides the top-level application lifecycle: it wires every
// dependency (storage, cache, archive, notifications) and runs the
// configured mode until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/predictify/marketengine/internal/config"
	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/server"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, and blocks until the mode completes or the context is
// cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "bootstrap":
		return a.bootstrapMode(ctx, deps)
	case "serve":
		return a.serveMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. Safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// bootstrapMode seeds the first SuperAdmin and a disabled multisig config,
// then returns. Run with mode = "bootstrap" once against a fresh deployment
// before switching to mode = "serve".
func (a *App) bootstrapMode(ctx context.Context, deps *Dependencies) error {
	superAdmin := domain.Identity(a.cfg.Admin.SuperAdmin)
	if err := deps.Admins.Bootstrap(ctx, superAdmin); err != nil {
		return fmt.Errorf("app: bootstrap: %w", err)
	}
	a.logger.InfoContext(ctx, "bootstrap complete", slog.String("super_admin", string(superAdmin)))
	return nil
}

// serveMode runs the HTTP/WebSocket surface and, when configured, the
// periodic archive sweep, until ctx is cancelled.
func (a *App) serveMode(ctx context.Context, deps *Dependencies) error {
	handler := server.New(ctx, a.cfg, deps.Engine, deps.SignalBus, deps.RateLimiter, a.logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", slog.Int("port", a.cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("app: http server: %w", err)
			return
		}
		errCh <- nil
	}()

	var archiveTicker *time.Ticker
	if deps.Archiver != nil && a.cfg.Archive.RetentionDays > 0 {
		archiveTicker = time.NewTicker(24 * time.Hour)
		defer archiveTicker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
			return nil
		case err := <-errCh:
			return err
		case <-tickerChan(archiveTicker):
			before := time.Now().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
			count, err := deps.Archiver.ArchiveMarkets(ctx, before)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive sweep failed", slog.String("error", err.Error()))
				continue
			}
			if count > 0 {
				a.logger.InfoContext(ctx, "archive sweep complete", slog.Int64("archived", count))
			}
		}
	}
}

// tickerChan returns t's channel, or a nil channel (which blocks forever in
// a select) when t is nil, so archival is a no-op when the archiver was
// never configured.
func tickerChan(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
