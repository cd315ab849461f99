package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/podshelf/podshelf/app/api"
	"github.com/podshelf/podshelf/app/cfg"
	"github.com/podshelf/podshelf/app/docstore"
	"github.com/podshelf/podshelf/app/feed"
	"github.com/podshelf/podshelf/app/seed"
	"github.com/podshelf/podshelf/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	if appCfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	slog.Info("Starting Podshelf server", "version", appCfg.Version)

	db, err := docstore.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open document store", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := docstore.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Document store ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	store := docstore.NewStore(db)

	seedURLs, err := seed.Load(appCfg.SeedFile)
	if err != nil {
		slog.Error("Failed to load seed file", "path", appCfg.SeedFile, "error", err)
		os.Exit(1)
	}
	if len(seedURLs) > 0 {
		slog.Info("Loaded seed channels", "count", len(seedURLs), "path", appCfg.SeedFile)
	}

	httpClient := &http.Client{
		Timeout: time.Duration(appCfg.FetchTimeout) * time.Second,
	}
	processor := feed.NewProcessor(feed.NewParser(), store, httpClient, appCfg.UserAgent)

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "refresh_interval", appCfg.RefreshInterval)
	scheduler := tasks.NewScheduler(store, processor, seedURLs)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(store, processor, scheduler)
	server := api.NewServer(handler)

	// No write timeout: enclosure forwarding streams responses of
	// arbitrary length
	httpServer := &http.Server{
		Addr:        ":" + appCfg.Port,
		Handler:     server,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer
	slog.Info("Podshelf server shutdown complete")
}
