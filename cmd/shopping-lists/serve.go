package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"shopping-lists/internal/api"
	"shopping-lists/internal/auth"
	"shopping-lists/internal/metrics"
	"shopping-lists/internal/storage"
	"shopping-lists/internal/storage/memory"
	"shopping-lists/internal/telegram"
)

// sessionSweepInterval is how often expired sessions are purged.
const sessionSweepInterval = 10 * time.Minute

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API (and the Telegram webhook when configured)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve()
		},
	}
}

func (a *app) serve() error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	authMgr := auth.NewManager(store, a.cfg.SessionSecret, a.cfg.SessionTTL, a.logger.Named("auth"))
	server := api.NewServer(store, authMgr, a.logger.Named("api"), api.WithHealthInfo(a.cfg.Backend, a.dataPath()))

	mux := http.NewServeMux()
	mux.Handle("/api/", server.Handler())

	if a.cfg.TelegramEnabled() {
		health := func(ctx context.Context) metrics.Report {
			return metrics.Collect(ctx, string(a.cfg.Backend), server.StoreProbe(), a.dataPath())
		}
		bot, err := telegram.NewBot(a.cfg, store, health, a.logger.Named("telegram"))
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram Bot: %w", err)
		}
		bot.RegisterHandlers(mux)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go a.sweepSessions(ctx, store)

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return a.run(srv, store, quit)
}

// run serves until srv fails or quit fires. The memory snapshot is written
// on either path.
func (a *app) run(srv *http.Server, store storage.Storage, quit <-chan os.Signal) error {
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", srv.Addr, "backend", a.cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var result *multierror.Error
	select {
	case err := <-serveErr:
		result = multierror.Append(result, fmt.Errorf("server failed: %w", err))
	case <-quit:
		a.logger.Info("shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			result = multierror.Append(result, fmt.Errorf("server forced to shutdown: %w", err))
		}
	}

	if err := a.saveSnapshot(store); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	a.logger.Info("server exiting")
	return nil
}

// saveSnapshot persists a memory store when a snapshot path is configured.
func (a *app) saveSnapshot(store storage.Storage) error {
	mem, ok := store.(*memory.Store)
	if !ok || a.cfg.MemorySnapshotPath == "" {
		return nil
	}
	if err := mem.SaveSnapshot(a.cfg.MemorySnapshotPath); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	a.logger.Named("memory").Info("snapshot saved", "path", a.cfg.MemorySnapshotPath)
	return nil
}

func (a *app) sweepSessions(ctx context.Context, store storage.Storage) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Sessions().CleanupExpired(ctx)
			if err != nil {
				a.logger.Warn("session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				a.logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}
