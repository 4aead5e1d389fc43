// Package app assembles providers and domain services from configuration.
// Shared by cmd/api and cmd/ingest.
package app

import (
	"log/slog"

	"github.com/albapepper/pitlane/internal/betting"
	"github.com/albapepper/pitlane/internal/clock"
	"github.com/albapepper/pitlane/internal/config"
	"github.com/albapepper/pitlane/internal/ingest"
	"github.com/albapepper/pitlane/internal/league"
	"github.com/albapepper/pitlane/internal/provider/oddsapi"
	"github.com/albapepper/pitlane/internal/provider/openf1"
	"github.com/albapepper/pitlane/internal/provider/sportsdb"
	"github.com/albapepper/pitlane/internal/settlement"
	"github.com/albapepper/pitlane/internal/store"
	"github.com/albapepper/pitlane/internal/sweep"
)

// Services are the domain services wired against one store.
type Services struct {
	Ingest   *ingest.Service
	Settler  *settlement.Engine
	Sweeper  *sweep.Runner
	Betting  *betting.Service
	Leagues  *league.Service
	Clock    clock.Clock
	OddsLive bool
}

// Build creates provider clients and services. The odds source is left
// out when no odds API key is configured.
func Build(cfg *config.Config, st store.Store, logger *slog.Logger) *Services {
	if logger == nil {
		logger = slog.Default()
	}
	clk := clock.System{}

	schedule := sportsdb.NewClient(cfg.SportsDBBaseURL, cfg.SportsDBAPIKey, cfg.SportsDBLeagueID, cfg.ProviderTimeout, logger)
	results := openf1.NewClient(cfg.OpenF1BaseURL, cfg.ProviderTimeout, logger)

	deps := ingest.Deps{
		Store:           st,
		Clock:           clk,
		Schedule:        schedule,
		Fallback:        results,
		Results:         results,
		ResultsProvider: cfg.ResultsProvider,
		Logger:          logger,
	}
	if cfg.OddsEnabled() {
		deps.Odds = oddsapi.NewClient(cfg.OddsAPIBaseURL, cfg.OddsAPIKey, oddsapi.Options{
			SportKey:  cfg.OddsAPISportKey,
			Regions:   cfg.OddsAPIRegions,
			Markets:   cfg.OddsAPIMarkets,
			Bookmaker: cfg.OddsAPIBookmaker,
		}, cfg.ProviderTimeout, logger)
	}
	in := ingest.New(deps)
	engine := settlement.NewEngine(st, clk, logger)

	return &Services{
		Ingest:  in,
		Settler: engine,
		Sweeper: sweep.NewRunner(st, in, engine, clk, sweep.Options{
			Max:     cfg.SweepBatchSize,
			Workers: cfg.SweepWorkers,
		}, logger),
		Betting:  betting.NewService(st, clk, logger),
		Leagues:  league.NewService(st),
		Clock:    clk,
		OddsLive: cfg.OddsEnabled(),
	}
}
