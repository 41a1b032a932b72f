// Package app wires configuration, the remote client and the sync service
// together for the entrypoints.
package app

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/listsync/internal/config"
	"github.com/JonMunkholm/listsync/internal/core"
	"github.com/JonMunkholm/listsync/internal/logging"
	"github.com/JonMunkholm/listsync/internal/remote"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Bindings []config.Binding
	Client   *remote.Client
	Service  *core.Service
}

// LoadEnv loads a .env file if one exists. Overload overwrites variables
// already set in the environment.
func LoadEnv() {
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}
}

// New loads configuration and bindings, sets up logging and builds the
// service.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	bindings, err := config.LoadBindings(cfg.Sync.BindingsFile)
	if err != nil {
		return nil, fmt.Errorf("load bindings: %w", err)
	}

	client := remote.NewClient(remote.Config{
		BaseURL:  cfg.Remote.BaseURL,
		APIKey:   cfg.Remote.APIKey,
		PageSize: cfg.Sync.PageSize,
	}, cfg.Remote.Timeout)

	slog.Info("configuration loaded",
		"bindings", len(bindings),
		"bindings_file", cfg.Sync.BindingsFile,
		"batch_size", cfg.Sync.BatchSize,
		"batch_delay", cfg.Sync.BatchDelay,
		"skip_unsubscribed", cfg.Sync.SkipUnsubscribed,
		"export_path", cfg.Export.Path(),
	)
	slog.Debug("configuration", "config", cfg.String())

	return &App{
		Config:   cfg,
		Bindings: bindings,
		Client:   client,
		Service:  core.NewService(bindings, client, core.OptionsFromConfig(cfg)),
	}, nil
}
