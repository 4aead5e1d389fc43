package ingest

import "fmt"

// RaceMatch reports what odds ingestion did for one race.
type RaceMatch struct {
	RaceID     string `json:"race_id"`
	RaceName   string `json:"race_name"`
	EventID    string `json:"event_id,omitempty"`
	Markets    int    `json:"markets"`
	Deactivate int    `json:"deactivated"`
	Skipped    string `json:"skipped,omitempty"`
}

// ScheduleResult tracks counts and diagnostics from a schedule and odds run.
type ScheduleResult struct {
	Season           int         `json:"season"`
	ScheduleProvider string      `json:"schedule_provider"`
	RacesUpserted    int         `json:"races_upserted"`
	OddsEnabled      bool        `json:"odds_enabled"`
	RacesConsidered  int         `json:"races_considered"`
	RacesPriced      int         `json:"races_priced"`
	MarketRows       int         `json:"market_rows"`
	Matches          []RaceMatch `json:"race_matches"`
	Errors           []string    `json:"errors,omitempty"`
}

// AddErrorf records a formatted diagnostic.
func (r *ScheduleResult) AddErrorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary of the run.
func (r *ScheduleResult) Summary() string {
	return fmt.Sprintf(
		"season=%d provider=%s races=%d priced=%d/%d markets=%d errors=%d",
		r.Season, r.ScheduleProvider, r.RacesUpserted,
		r.RacesPriced, r.RacesConsidered, r.MarketRows, len(r.Errors),
	)
}

// ResultIngest reports a successful result ingestion.
type ResultIngest struct {
	RaceID       string `json:"race_id"`
	Ingested     bool   `json:"ingested"`
	Finalized    bool   `json:"finalized"`
	SessionKey   int    `json:"session_key"`
	Revision     int    `json:"revision"`
	InsertedRows int    `json:"inserted_rows"`
}

// Summary returns a human-readable summary of the ingestion.
func (r *ResultIngest) Summary() string {
	return fmt.Sprintf("race=%s session=%d revision=%d rows=%d",
		r.RaceID, r.SessionKey, r.Revision, r.InsertedRows)
}
