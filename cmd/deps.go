package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/forgeworks/forgectl/internal/client"
	"github.com/forgeworks/forgectl/internal/config"
	"github.com/forgeworks/forgectl/internal/log"
	"github.com/forgeworks/forgectl/internal/workspace"
)

// deps bundles the shared application wiring for all commands.
type deps struct {
	cfg      *config.Config
	logger   log.Logger
	api      *client.Client
	registry *workspace.Registry
}

// newDeps loads the configuration and assembles the client stack.
func newDeps() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := initLogger()

	api, err := client.New(cfg.ServerURL, cfg, cfg.RequestTimeout(), logger.With("component", "client"))
	if err != nil {
		return nil, err
	}

	registry, err := workspace.NewRegistry(api, logger.With("component", "workspace"))
	if err != nil {
		return nil, err
	}

	return &deps{
		cfg:      cfg,
		logger:   logger,
		api:      api,
		registry: registry,
	}, nil
}

// initLogger creates the structured logger.
//
// Log level is controlled by the DEBUG environment variable:
//   - DEBUG set (any value): debug level logging
//   - DEBUG not set: info level logging
func initLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	return log.New(cfg)
}
