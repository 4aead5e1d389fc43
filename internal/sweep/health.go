package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/albapepper/pitlane/internal/model"
)

const overdueLimit = 200

// LatestSettled summarizes the most recently settled race.
type LatestSettled struct {
	RaceID         string    `json:"race_id"`
	Name           string    `json:"name"`
	ResultRevision int       `json:"result_revision"`
	SettledAt      time.Time `json:"settled_at"`
}

// HealthReport describes the settlement backlog.
type HealthReport struct {
	CheckedAt         time.Time      `json:"checked_at"`
	StatusCounts      map[string]int `json:"status_counts"`
	OverdueRaceIDs    []string       `json:"overdue_race_ids"`
	OverdueCount      int            `json:"overdue_count"`
	PendingBetsInRace int            `json:"pending_bets_in_overdue_races"`
	LatestSettled     *LatestSettled `json:"latest_settled_race"`
}

// Health reports race counts by status and the races that have started
// without being settled.
func (r *Runner) Health(ctx context.Context) (*HealthReport, error) {
	now := r.clock.Now()
	report := &HealthReport{CheckedAt: now, StatusCounts: map[string]int{}}

	counts, err := r.store.RaceStatusCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count races by status: %w", err)
	}
	for _, s := range []model.RaceStatus{model.RaceScheduled, model.RaceLocked, model.RaceSettling, model.RaceSettled} {
		report.StatusCounts[string(s)] = counts[s]
	}

	ids, err := r.store.OverdueRaceIDs(ctx, now, overdueLimit)
	if err != nil {
		return nil, fmt.Errorf("list overdue races: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	report.OverdueRaceIDs = ids
	report.OverdueCount = len(ids)

	if len(ids) > 0 {
		n, err := r.store.PendingBetCount(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("count pending bets: %w", err)
		}
		report.PendingBetsInRace = n
	}

	latest, err := r.store.LatestSettledRace(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest settled race: %w", err)
	}
	if latest != nil {
		report.LatestSettled = &LatestSettled{
			RaceID:         latest.ID,
			Name:           latest.Name,
			ResultRevision: latest.ResultRevision,
			SettledAt:      latest.UpdatedAt,
		}
	}
	return report, nil
}
