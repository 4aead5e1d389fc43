// Command api is the Pitlane betting and settlement API server.
//
// Usage:
//
//	pitlane-api
//	API_PORT=8080 SCHEDULER_ENABLED=true pitlane-api

// @title Pitlane API
// @version 1.0.0
// @description F1 fantasy betting API: race schedules and odds, bet placement, league standings, and result-driven settlement.
// @host localhost:8000
// @BasePath /
// @schemes http https
// @contact.name Pitlane
// @license.name MIT
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @securityDefinitions.apikey InternalSecret
// @in header
// @name X-Settlement-Secret
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

	"github.com/joho/godotenv"

	"github.com/albapepper/pitlane/internal/api"
	"github.com/albapepper/pitlane/internal/api/handler"
	"github.com/albapepper/pitlane/internal/app"
	"github.com/albapepper/pitlane/internal/cache"
	"github.com/albapepper/pitlane/internal/config"
	"github.com/albapepper/pitlane/internal/db"
	"github.com/albapepper/pitlane/internal/scheduler"
	"github.com/albapepper/pitlane/internal/store"
	"github.com/albapepper/pitlane/internal/sweep"

	_ "github.com/albapepper/pitlane/docs" // swagger docs
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	// Initialize cache
	appCache := cache.New(cfg.CacheEnabled)
	defer appCache.Close()
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	st := store.NewPostgres(pool)
	svc := app.Build(cfg, st, logger)
	logger.Info("Services initialized",
		"results_provider", cfg.ResultsProvider,
		"odds_enabled", svc.OddsLive)

	// In-process cron jobs
	if cfg.SchedulerEnabled {
		cron := scheduler.New(ctx, logger)
		if _, err := cron.Add(cfg.SweepCron, "settlement_sweep", scheduler.SweepJob(svc.Sweeper, sweep.Options{}, logger)); err != nil {
			logger.Error("Invalid sweep schedule", "spec", cfg.SweepCron, "error", err)
			os.Exit(1)
		}
		season := func() int { return svc.Clock.Now().Year() }
		if _, err := cron.Add(cfg.ScheduleCron, "schedule_refresh", scheduler.ScheduleJob(svc.Ingest, season, logger)); err != nil {
			logger.Error("Invalid schedule refresh spec", "spec", cfg.ScheduleCron, "error", err)
			os.Exit(1)
		}
		cron.Start()
		defer cron.Stop()
	} else {
		logger.Info("Scheduler disabled (SCHEDULER_ENABLED=false)")
	}

	// Create router
	h := handler.New(handler.Deps{
		Store:    st,
		Cache:    appCache,
		Config:   cfg,
		Clock:    svc.Clock,
		Schedule: svc.Ingest,
		Results:  svc.Ingest,
		Settler:  svc.Settler,
		Sweeper:  svc.Sweeper,
		Betting:  svc.Betting,
		Leagues:  svc.Leagues,
		Logger:   logger,
	})
	router := api.NewRouter(h, cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting Pitlane API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
