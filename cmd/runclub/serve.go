package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	web "runclub/internal/adapters/http"
	"runclub/internal/adapters/http/middleware"
	"runclub/internal/adapters/http/perf"
	"runclub/internal/adapters/storage"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Migrate the database and serve the JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg := app.cfg
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := storage.Migrate(ctx, app.db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Performance instrumentation: wrap DB with timing, create collector
	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(app.db, collector, cfg.Server.SlowQuery)
	middleware.SetSlowRequestThreshold(cfg.Server.SlowRequest)

	stores := newStores(timedDB)

	csrfKey, err := web.CSRFKeyFromHex(cfg.Server.CSRFKey)
	if err != nil {
		return err
	}
	var tokens *middleware.TokenVerifier
	if cfg.Tokens.Key != "" {
		tokens, err = middleware.NewTokenVerifier([]byte(cfg.Tokens.Key), cfg.Tokens.Issuer, cfg.Tokens.TTL)
		if err != nil {
			return fmt.Errorf("failed to configure bearer tokens: %w", err)
		}
	}

	processor := newOutboxProcessor(cfg, stores.OutboxStore)
	go processor.Run(ctx, cfg.Outbox.Interval)

	mux, err := web.NewMux(stores, web.Options{
		BaseURL:              cfg.Server.BaseURL,
		Location:             cfg.Location(),
		CSRFKey:              csrfKey,
		SecureCookies:        cfg.Server.SecureCookies,
		TrustedOrigins:       cfg.Server.TrustedOrigins,
		RateLimitPerSecond:   cfg.Server.RateLimitPerSecond,
		ProfileRetryAttempts: cfg.Registration.RetryAttempts,
		ProfileRetryDelay:    cfg.Registration.RetryDelay,
		DefaultRRule:         cfg.Runs.DefaultRRule,
		Tokens:               tokens,
		Outbox:               processor,
		Ping:                 timedDB.PingContext,
	}, collector)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_started", "version", version, "addr", cfg.Server.Addr,
			"driver", cfg.Database.Driver, "schema", storage.LatestSchemaVersion(), "bearer_tokens", tokens != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("server_stopped")
	return nil
}
