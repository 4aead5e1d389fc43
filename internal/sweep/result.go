package sweep

import (
	"fmt"
	"time"
)

// RaceOutcome tracks what one sweep did for a single race.
type RaceOutcome struct {
	RaceID         string        `json:"race_id"`
	IngestStatus   int           `json:"ingest_status"`
	SettleStatus   int           `json:"settle_status,omitempty"`
	Finalized      *bool         `json:"finalized,omitempty"`
	Settled        bool          `json:"settled,omitempty"`
	Error          string        `json:"error,omitempty"`
	ErrorCode      string        `json:"error_code,omitempty"`
	IngestDuration time.Duration `json:"ingest_duration_ns"`
	SettleDuration time.Duration `json:"settle_duration_ns,omitempty"`
}

// Pending reports whether the race is waiting on provider finalization.
func (o *RaceOutcome) Pending() bool {
	return o.Finalized != nil && !*o.Finalized
}

// Summary returns a human-readable summary.
func (o *RaceOutcome) Summary() string {
	status := "settled"
	switch {
	case o.Error != "":
		status = "FAILED"
	case o.Pending():
		status = "pending"
	}
	return fmt.Sprintf("race=%s ingest=%d settle=%d status=%s dur=%s",
		o.RaceID, o.IngestStatus, o.SettleStatus, status,
		(o.IngestDuration + o.SettleDuration).Round(time.Millisecond))
}

// RunResult tracks the outcome of a full sweep.
type RunResult struct {
	RanAt                    time.Time     `json:"ran_at"`
	LockedRaces              int           `json:"locked_races"`
	CandidateCount           int           `json:"candidate_count"`
	SettledCount             int           `json:"settled_count"`
	PendingFinalizationCount int           `json:"pending_finalization_count"`
	Failures                 int           `json:"failures"`
	Races                    []RaceOutcome `json:"summary"`
	Duration                 time.Duration `json:"duration_ns"`
}

// Summary returns a human-readable summary.
func (r *RunResult) Summary() string {
	return fmt.Sprintf(
		"locked=%d candidates=%d settled=%d pending=%d failed=%d dur=%s",
		r.LockedRaces, r.CandidateCount, r.SettledCount,
		r.PendingFinalizationCount, r.Failures, r.Duration.Round(time.Millisecond))
}
