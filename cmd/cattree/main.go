// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package main is the entry point for the cattree category service.
// It loads configuration, connects to services, sets up routing, and starts
// the HTTP server with graceful shutdown support.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cattree/internal/cache"
	"cattree/internal/categories"
	"cattree/internal/config"
	"cattree/internal/database"
	"cattree/internal/handlers"
	"cattree/internal/middleware"
	"cattree/internal/router"
	"cattree/internal/store"
)

func main() {
	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.IsDev() {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"store", cfg.StoreDriver,
		"propagation_workers", cfg.PropagationWorkers,
	)

	categoryStore, runLog, closeStore, err := openStore(cfg)
	if err != nil {
		slog.Error("failed to open category store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	opts := categories.Options{Workers: cfg.PropagationWorkers, Log: runLog}

	// The tree cache is optional; the service works without Valkey.
	if cfg.CacheEnabled {
		valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
		if err != nil {
			slog.Warn("valkey unavailable, tree cache disabled", "error", err)
		} else {
			defer valkeyClient.Close()
			opts.Cache = cache.NewTreeCache(valkeyClient, cfg.TreeCacheTTL)
		}
	}

	svc := categories.NewService(categoryStore, opts)

	var limiter *middleware.RateLimiter
	if cfg.RateLimitWrites > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimitWrites, time.Minute)
		defer limiter.Stop()
	}

	r := router.New(handlers.NewCategories(svc), limiter)

	// WriteTimeout leaves room for a propagation over a large subtree.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	// Give active requests up to 30 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}

// openStore returns the configured category store, its propagation run
// log and a function that releases them.
func openStore(cfg *config.Config) (store.CategoryStore, store.PropagationLog, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		slog.Warn("using in-memory category store, data is lost on exit")
		return store.NewMemoryStore(), store.NewMemoryPropagationLog(0), func() {}, nil
	}

	db, err := database.Connect(cfg.DSN())
	if err != nil {
		return nil, nil, nil, err
	}
	closeDB := func() { closeQuietly(db) }

	if err := database.Migrate(db); err != nil {
		closeDB()
		return nil, nil, nil, err
	}

	// Seed development data (no-op if data already exists).
	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			closeDB()
			return nil, nil, nil, err
		}
	}

	return store.NewPGCategoryStore(db), store.NewPGPropagationLog(db), closeDB, nil
}

func closeQuietly(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Warn("closing database failed", "error", err)
	}
}
