// Package sweep drives result ingestion and settlement for every race that
// has started but is not settled yet.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/albapepper/pitlane/internal/apperr"
	"github.com/albapepper/pitlane/internal/clock"
	"github.com/albapepper/pitlane/internal/ingest"
	"github.com/albapepper/pitlane/internal/settlement"
	"github.com/albapepper/pitlane/internal/store"
)

const defaultBatchSize = 20

// ResultIngester appends a new result revision for a race.
type ResultIngester interface {
	Results(ctx context.Context, raceID string) (*ingest.ResultIngest, error)
}

// Settler settles a race against its latest results.
type Settler interface {
	Settle(ctx context.Context, raceID string) (*settlement.Summary, error)
}

// Options bound one sweep.
type Options struct {
	Max     int
	Workers int
}

// Runner runs sweeps.
type Runner struct {
	store   store.Store
	ingest  ResultIngester
	settle  Settler
	clock   clock.Clock
	logger  *slog.Logger
	options Options
}

// NewRunner creates a sweep runner. opts are the defaults applied when Run
// is given zero values.
func NewRunner(st store.Store, in ResultIngester, se Settler, clk clock.Clock, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.System{}
	}
	if opts.Max <= 0 {
		opts.Max = defaultBatchSize
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Runner{store: st, ingest: in, settle: se, clock: clk, logger: logger, options: opts}
}

// Run locks races whose betting window has closed, then ingests and settles
// up to opts.Max started races, oldest first. One race failing never stops
// the others. The returned error is set only when the candidates could not
// be loaded.
func (r *Runner) Run(ctx context.Context, opts Options) (*RunResult, error) {
	start := time.Now()
	if opts.Max <= 0 {
		opts.Max = r.options.Max
	}
	if opts.Workers < 1 {
		opts.Workers = r.options.Workers
	}

	now := r.clock.Now()
	result := &RunResult{RanAt: now, Races: []RaceOutcome{}}

	locked, err := r.store.LockDueRaces(ctx, now)
	if err != nil {
		return result, fmt.Errorf("lock due races: %w", err)
	}
	result.LockedRaces = locked
	if locked > 0 {
		r.logger.Info("Locked races past their lock time", "count", locked)
	}

	candidates, err := r.store.SweepCandidates(ctx, now, opts.Max)
	if err != nil {
		return result, fmt.Errorf("load sweep candidates: %w", err)
	}
	result.CandidateCount = len(candidates)
	if len(candidates) == 0 {
		r.logger.Info("No races awaiting settlement")
		result.Duration = time.Since(start)
		return result, nil
	}
	r.logger.Info("Found races awaiting settlement", "count", len(candidates))

	workers := opts.Workers
	if workers > len(candidates) {
		workers = len(candidates)
	}

	// Outcomes are written by index so the output keeps candidate order.
	outcomes := make([]RaceOutcome, len(candidates))
	ch := make(chan int, len(candidates))
	for i := range candidates {
		ch <- i
	}
	close(ch)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range ch {
				outcomes[idx] = r.processRace(ctx, candidates[idx].ID)
			}
		}()
	}
	wg.Wait()

	for _, o := range outcomes {
		switch {
		case o.Error != "":
			result.Failures++
		case o.Pending():
			result.PendingFinalizationCount++
		case o.Settled:
			result.SettledCount++
		}
	}
	result.Races = outcomes
	result.Duration = time.Since(start)

	r.logger.Info("Settlement sweep complete", "summary", result.Summary())
	return result, nil
}

func (r *Runner) processRace(ctx context.Context, raceID string) RaceOutcome {
	out := RaceOutcome{RaceID: raceID}

	t0 := time.Now()
	_, err := r.ingest.Results(ctx, raceID)
	out.IngestDuration = time.Since(t0)
	switch {
	case apperr.IsDeferred(err):
		out.IngestStatus = http.StatusAccepted
		out.Finalized = boolPtr(false)
		r.logger.Debug("Race results not final yet", "race_id", raceID, "reason", err.Error())
		return out
	case err != nil:
		out.IngestStatus = apperr.HTTPStatus(err)
		out.Error = err.Error()
		out.ErrorCode = apperr.CodeOf(err)
		r.logger.Warn("Result ingestion failed", "race_id", raceID, "error", err)
		return out
	}
	out.IngestStatus = http.StatusOK
	out.Finalized = boolPtr(true)

	t1 := time.Now()
	_, err = r.settle.Settle(ctx, raceID)
	out.SettleDuration = time.Since(t1)
	if err != nil {
		out.SettleStatus = apperr.HTTPStatus(err)
		out.Error = err.Error()
		out.ErrorCode = apperr.CodeOf(err)
		r.logger.Warn("Settlement failed", "race_id", raceID, "error", err)
		return out
	}
	out.SettleStatus = http.StatusOK
	out.Settled = true

	r.logger.Debug("Race processed", "summary", out.Summary())
	return out
}

func boolPtr(b bool) *bool { return &b }
