// Package provider defines the shapes every upstream F1 data source is
// normalized into, plus the shared HTTP client the adapters are built on.
//
// Adapters in the sub-packages decode loose provider JSON into private raw
// structs, validate it, and hand back these types. Nothing downstream ever
// sees a raw payload.
package provider

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/albapepper/pitlane/internal/model"
)

// ScheduledRace is one race parsed from a schedule provider. Status is left
// to the ingestion layer, which owns the clock and the existing row.
type ScheduledRace struct {
	Season          int
	Round           int
	Slug            string
	Name            string
	Country         string
	Circuit         string
	VenueName       string
	City            string
	Description     string
	ImageURL        string
	BannerURL       string
	PosterURL       string
	HighlightsURL   string
	SportsDBEventID string
	StartTime       time.Time
}

// LockTime is the start time minus the fixed betting lead.
func (r ScheduledRace) LockTime() time.Time {
	return r.StartTime.Add(-model.LockLead)
}

// OddsEvent is a bookmaker-side event a race can be matched against.
type OddsEvent struct {
	ID           string
	SportKey     string
	CommenceTime time.Time
	HomeTeam     string
	AwayTeam     string
}

// MarketQuote is one priced selection from an odds provider.
type MarketQuote struct {
	Provider         string
	ProviderMarketID string
	MarketType       model.MarketType
	SelectionKey     string
	SelectionLabel   string
	DecimalOdds      decimal.Decimal
	FetchedAt        time.Time
}

// Session is one timed track activity reported by a result provider.
type Session struct {
	Key         int
	Name        string
	MeetingName string
	Location    string
	CountryName string
	Year        int
	Start       *time.Time
	End         *time.Time
}

// Finalized reports whether the session's end time has passed.
func (s Session) Finalized(now time.Time) bool {
	return s.End != nil && !s.End.After(now)
}

// SessionResult is one classification row of a session.
type SessionResult struct {
	DriverNumber int
	Position     *int
	DNF          bool
	DNS          bool
	DSQ          bool
}

// Driver identifies a participant of a session.
type Driver struct {
	Number   int
	FullName string
	LastName string
	Acronym  string
}

// Lap is one timed lap. Duration is nil for laps without a valid time.
type Lap struct {
	DriverNumber int
	Duration     *float64
}
