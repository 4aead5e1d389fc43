// Command ingest is the Pitlane ingestion and settlement CLI.
//
// Usage:
//
//	pitlane-ingest migrate
//	pitlane-ingest schedule --season 2026
//	pitlane-ingest results --race <uuid>
//	pitlane-ingest settle --race <uuid>
//	pitlane-ingest sweep --max 20 --workers 2
//	pitlane-ingest health
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/pitlane/internal/app"
	"github.com/albapepper/pitlane/internal/apperr"
	"github.com/albapepper/pitlane/internal/config"
	"github.com/albapepper/pitlane/internal/db"
	"github.com/albapepper/pitlane/internal/store"
	"github.com/albapepper/pitlane/internal/sweep"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "pitlane-ingest",
		Short: "Pitlane ingestion and settlement CLI",
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(scheduleCmd())
	root.AddCommand(resultsCmd())
	root.AddCommand(settleCmd())
	root.AddCommand(sweepCmd())
	root.AddCommand(healthCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			start := time.Now()
			if err := db.ApplySchema(ctx, cfg.DatabaseURL); err != nil {
				return err
			}
			logger.Info("Schema applied", "duration", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// schedule command
// --------------------------------------------------------------------------

func scheduleCmd() *cobra.Command {
	var season int
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Ingest the season schedule and refresh odds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithServices(func(ctx context.Context, cfg *config.Config, svc *app.Services) error {
				if season == 0 {
					season = cfg.CurrentSeason
				}
				start := time.Now()
				result, err := svc.Ingest.ScheduleAndOdds(ctx, season)
				if err != nil {
					return err
				}
				logger.Info("Schedule ingest finished",
					"duration", time.Since(start).Round(time.Millisecond),
					"odds_enabled", svc.OddsLive,
					"summary", result.Summary())
				for _, e := range result.Errors {
					logger.Error("schedule error", "error", e)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&season, "season", 0, "Season year (defaults to CURRENT_SEASON)")
	return cmd
}

// --------------------------------------------------------------------------
// results / settle commands
// --------------------------------------------------------------------------

func resultsCmd() *cobra.Command {
	var raceID string
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Ingest official results for one race",
		RunE: func(cmd *cobra.Command, args []string) error {
			if raceID == "" {
				return fmt.Errorf("--race is required")
			}
			return runWithServices(func(ctx context.Context, cfg *config.Config, svc *app.Services) error {
				result, err := svc.Ingest.Results(ctx, raceID)
				if apperr.IsDeferred(err) {
					logger.Info("Results not final yet", "race_id", raceID, "code", apperr.CodeOf(err), "reason", err.Error())
					return nil
				}
				if err != nil {
					return err
				}
				logger.Info("Result ingest finished", "summary", result.Summary())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&raceID, "race", "", "Race ID (uuid)")
	return cmd
}

func settleCmd() *cobra.Command {
	var raceID string
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle one race against its latest results",
		RunE: func(cmd *cobra.Command, args []string) error {
			if raceID == "" {
				return fmt.Errorf("--race is required")
			}
			return runWithServices(func(ctx context.Context, cfg *config.Config, svc *app.Services) error {
				summary, err := svc.Settler.Settle(ctx, raceID)
				if err != nil {
					return err
				}
				return printJSON(summary)
			})
		},
	}
	cmd.Flags().StringVar(&raceID, "race", "", "Race ID (uuid)")
	return cmd
}

// --------------------------------------------------------------------------
// sweep / health commands
// --------------------------------------------------------------------------

func sweepCmd() *cobra.Command {
	var maxRaces, workers int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Ingest and settle every started, unsettled race",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithServices(func(ctx context.Context, cfg *config.Config, svc *app.Services) error {
				result, err := svc.Sweeper.Run(ctx, sweep.Options{Max: maxRaces, Workers: workers})
				if err != nil {
					return err
				}
				logger.Info("Sweep finished", "summary", result.Summary())
				for _, o := range result.Races {
					if o.Error != "" {
						logger.Error("sweep race failed", "race_id", o.RaceID, "code", o.ErrorCode, "error", o.Error)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxRaces, "max", 0, "Maximum races (defaults to SWEEP_BATCH_SIZE)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent worker count (defaults to SWEEP_WORKERS)")
	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report the settlement backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithServices(func(ctx context.Context, cfg *config.Config, svc *app.Services) error {
				report, err := svc.Sweeper.Health(ctx)
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runWithServices handles config loading, DB connection, service wiring
// and context cancellation.
func runWithServices(fn func(ctx context.Context, cfg *config.Config, svc *app.Services) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, app.Build(cfg, store.NewPostgres(pool), logger))
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
