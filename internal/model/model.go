// Package model holds the persisted domain types shared by ingestion,
// settlement, betting and the HTTP layer.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RaceStatus is the settlement lifecycle of a race.
type RaceStatus string

const (
	RaceScheduled RaceStatus = "scheduled"
	RaceLocked    RaceStatus = "locked"
	RaceSettling  RaceStatus = "settling"
	RaceSettled   RaceStatus = "settled"
)

// Protected reports whether schedule ingestion must leave the status alone.
func (s RaceStatus) Protected() bool {
	return s == RaceSettling || s == RaceSettled
}

// Valid reports whether s is a known status.
func (s RaceStatus) Valid() bool {
	switch s {
	case RaceScheduled, RaceLocked, RaceSettling, RaceSettled:
		return true
	}
	return false
}

// LockLead is how long before the start bets close.
const LockLead = 2 * time.Hour

// Race is one grand prix weekend's main race.
type Race struct {
	ID               string
	Season           int
	Round            int
	Slug             string
	Name             string
	Country          string
	Circuit          string
	VenueName        string
	City             string
	Description      string
	ImageURL         string
	BannerURL        string
	PosterURL        string
	HighlightsURL    string
	SportsDBEventID  string
	StartTime        time.Time
	LockTime         time.Time
	LockTimeOverride *time.Time
	Status           RaceStatus
	ResultRevision   int
	UpdatedAt        time.Time
}

// RaceRow is the schedule-ingestion upsert shape, keyed by (Season, Round).
type RaceRow struct {
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
	LockTime        time.Time
	Status          RaceStatus
}

// ScheduleStatus computes the status for a freshly ingested race row:
// locked once lock time has passed, scheduled otherwise.
func ScheduleStatus(lockTime, now time.Time) RaceStatus {
	if !lockTime.After(now) {
		return RaceLocked
	}
	return RaceScheduled
}

// Market is one priced selection offered for a race.
type Market struct {
	ID               string
	RaceID           string
	Provider         string
	ProviderMarketID string
	MarketType       MarketType
	SelectionKey     string
	SelectionLabel   string
	DecimalOdds      decimal.Decimal
	IsActive         bool
	FetchedAt        time.Time
}

// BetStatus is the outcome state of a bet.
type BetStatus string

const (
	BetPending BetStatus = "pending"
	BetWon     BetStatus = "won"
	BetLost    BetStatus = "lost"
	BetVoid    BetStatus = "void"
)

// Stake bounds in tokens.
var (
	MaxStakePerRace = decimal.NewFromInt(100)
	MaxBetsPerSlip  = 20
)

// Bet is a user's stake on a market within a league.
type Bet struct {
	ID                  string
	UserID              string
	LeagueID            string
	RaceID              string
	MarketID            string
	SelectionKey        string
	Stake               decimal.Decimal
	DecimalOddsSnapshot decimal.Decimal
	Status              BetStatus
	GrossReturn         *decimal.Decimal
	NetProfit           *decimal.Decimal
	PlacedAt            time.Time
	SettledAt           *time.Time
}

// RaceResult is one append-only result fact.
type RaceResult struct {
	RaceID      string
	ResultKey   string
	ResultValue string
	Source      string
	Revision    int
	CreatedAt   time.Time
}

// LeagueMember is a user's membership row in a league.
type LeagueMember struct {
	LeagueID     string
	UserID       string
	Role         string
	SeasonPoints decimal.Decimal
	JoinedAt     time.Time
}

// RaceLeagueWinner records the best performer of a league for a race.
type RaceLeagueWinner struct {
	RaceID       string
	LeagueID     string
	WinnerUserID string
	RacePoints   decimal.Decimal
	UpdatedAt    time.Time
}

// Round4 rounds money-like values stored with four decimals.
func Round4(d decimal.Decimal) decimal.Decimal { return d.Round(4) }

// Round2 rounds points and stakes stored with two decimals.
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }
