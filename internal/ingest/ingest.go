// Package ingest pulls race schedules, odds and results from the upstream
// providers into the store.
//
// Provider failures inside per-race loops are recorded on the returned
// result and the loop moves on. Store failures abort the run.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/albapepper/pitlane/internal/clock"
	"github.com/albapepper/pitlane/internal/config"
	"github.com/albapepper/pitlane/internal/provider"
	"github.com/albapepper/pitlane/internal/store"
)

// MaxMarketsPerRace caps how many market rows one odds fetch may write.
const MaxMarketsPerRace = 200

// ScheduleSource lists the races of a season.
type ScheduleSource interface {
	Name() string
	Season(ctx context.Context, season int) ([]provider.ScheduledRace, error)
}

// OddsSource prices bookmaker events.
type OddsSource interface {
	Name() string
	Events(ctx context.Context) ([]provider.OddsEvent, error)
	EventQuotes(ctx context.Context, eventID string, now time.Time) ([]provider.MarketQuote, error)
}

// ResultSource reports sessions and their classifications.
type ResultSource interface {
	Name() string
	RaceSessions(ctx context.Context, season int, country string) ([]provider.Session, error)
	SessionResults(ctx context.Context, sessionKey int) ([]provider.SessionResult, error)
	Drivers(ctx context.Context, sessionKey int) ([]provider.Driver, error)
	Laps(ctx context.Context, sessionKey int) ([]provider.Lap, error)
}

// Deps holds the collaborators of a Service. Fallback and Odds are optional.
type Deps struct {
	Store           store.Store
	Clock           clock.Clock
	Schedule        ScheduleSource
	Fallback        ScheduleSource
	Odds            OddsSource
	Results         ResultSource
	ResultsProvider string
	Logger          *slog.Logger
}

// Service runs schedule, odds and result ingestion.
type Service struct {
	store           store.Store
	clock           clock.Clock
	schedule        ScheduleSource
	fallback        ScheduleSource
	odds            OddsSource
	results         ResultSource
	resultsProvider string
	logger          *slog.Logger
}

// New creates an ingestion service.
func New(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.ResultsProvider == "" {
		d.ResultsProvider = config.ResultsProviderOpenF1
	}
	return &Service{
		store:           d.Store,
		clock:           d.Clock,
		schedule:        d.Schedule,
		fallback:        d.Fallback,
		odds:            d.Odds,
		results:         d.Results,
		resultsProvider: d.ResultsProvider,
		logger:          d.Logger,
	}
}
