// Package main is the entry point for the snippet sharing server.
//
// main stays minimal: build a logger, load config from the environment,
// make sure the data directories exist, then hand off to internal/server.
// All actual logic lives in imported packages.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/codether/codether/internal/config"
	"github.com/codether/codether/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// The SQLite file and the fs blob root both need their parent
	// directories to exist before anything opens them.
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		logger.Error("failed to create database directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until the server is shut down via SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
