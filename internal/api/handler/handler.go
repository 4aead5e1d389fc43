// Package handler provides HTTP handlers for all API endpoints.
// Handlers decode and validate requests, call the domain services and map
// their typed errors onto the standard error shape.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/albapepper/pitlane/internal/api/respond"
	"github.com/albapepper/pitlane/internal/betting"
	"github.com/albapepper/pitlane/internal/cache"
	"github.com/albapepper/pitlane/internal/clock"
	"github.com/albapepper/pitlane/internal/config"
	"github.com/albapepper/pitlane/internal/ingest"
	"github.com/albapepper/pitlane/internal/league"
	"github.com/albapepper/pitlane/internal/settlement"
	"github.com/albapepper/pitlane/internal/store"
	"github.com/albapepper/pitlane/internal/sweep"
)

// ScheduleIngester refreshes a season's schedule and odds.
type ScheduleIngester interface {
	ScheduleAndOdds(ctx context.Context, season int) (*ingest.ScheduleResult, error)
}

// ResultIngester appends a result revision for a race.
type ResultIngester interface {
	Results(ctx context.Context, raceID string) (*ingest.ResultIngest, error)
}

// Settler settles a race.
type Settler interface {
	Settle(ctx context.Context, raceID string) (*settlement.Summary, error)
}

// Sweeper runs the settlement sweep and reports its backlog.
type Sweeper interface {
	Run(ctx context.Context, opts sweep.Options) (*sweep.RunResult, error)
	Health(ctx context.Context) (*sweep.HealthReport, error)
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Store    store.Store
	Cache    *cache.Cache
	Config   *config.Config
	Clock    clock.Clock
	Schedule ScheduleIngester
	Results  ResultIngester
	Settler  Settler
	Sweeper  Sweeper
	Betting  *betting.Service
	Leagues  *league.Service
	Logger   *slog.Logger
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	store    store.Store
	cache    *cache.Cache
	cfg      *config.Config
	clock    clock.Clock
	schedule ScheduleIngester
	results  ResultIngester
	settler  Settler
	sweeper  Sweeper
	betting  *betting.Service
	leagues  *league.Service
	logger   *slog.Logger
}

// New creates a Handler with shared dependencies.
func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Cache == nil {
		d.Cache = cache.New(false)
	}
	return &Handler{
		store:    d.Store,
		cache:    d.Cache,
		cfg:      d.Config,
		clock:    d.Clock,
		schedule: d.Schedule,
		results:  d.Results,
		settler:  d.Settler,
		sweeper:  d.Sweeper,
		betting:  d.Betting,
		leagues:  d.Leagues,
		logger:   d.Logger,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, status and docs location.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Pitlane Settlement API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
		"features": []string{
			"schedule_and_odds_ingestion",
			"result_ingestion",
			"race_settlement",
			"settlement_sweep",
			"bet_placement",
			"league_standings",
		},
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies store connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("Database health check failed", "error", err)
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns in-memory cache statistics.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
