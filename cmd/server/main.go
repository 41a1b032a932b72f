package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/listsync/internal/app"
	"github.com/JonMunkholm/listsync/internal/web"
)

func main() {
	app.LoadEnv()

	a, err := app.New()
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	cfg := a.Config

	slog.Info("server configuration",
		"port", cfg.Server.Port,
		"sync_max_concurrent", cfg.Sync.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"require_api_key", cfg.Security.RequireAPIKey,
	)
	for i, b := range a.Bindings {
		slog.Debug("binding", "index", i, "name", b.Name, "list_id", b.ListID, "file", b.File)
	}

	server := web.NewServer(a.Service, cfg)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let running syncs finish so no batch is cut off mid-request
		status := a.Service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for sync runs to complete", "active", status.Active)
			if err := a.Service.WaitForRuns(shutdownCtx); err != nil {
				slog.Warn("sync runs did not complete in time", "error", err)
			} else {
				slog.Info("all sync runs completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
