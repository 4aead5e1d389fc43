// Package store defines the persistence contract of the settlement core and
// its PostgreSQL implementation. An in-memory implementation for tests
// lives in store/memstore.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/albapepper/pitlane/internal/model"
)

// RaceFilter narrows ListRaces.
type RaceFilter struct {
	Status model.RaceStatus
	Season int
	Limit  int
}

// BetSettlement is the terminal state written onto a pending bet.
type BetSettlement struct {
	BetID       string
	Status      model.BetStatus
	GrossReturn decimal.Decimal
	NetProfit   decimal.Decimal
	SettledAt   time.Time
}

// Store is the transactional relational store the core reads and writes.
// Conditional writes report whether a row matched so callers can detect
// lost races against concurrent runs.
type Store interface {
	Ping(ctx context.Context) error

	// InTx runs fn against a transactional view of the store. fn's error
	// rolls back every write made through that view.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// Races
	GetRace(ctx context.Context, id string) (model.Race, error)
	RacesBySeason(ctx context.Context, season int) ([]model.Race, error)
	ListRaces(ctx context.Context, f RaceFilter) ([]model.Race, error)
	UpsertRace(ctx context.Context, row model.RaceRow, now time.Time) error
	LockDueRaces(ctx context.Context, now time.Time) (int, error)
	SweepCandidates(ctx context.Context, now time.Time, limit int) ([]model.Race, error)
	MarkSettling(ctx context.Context, raceID string) (bool, error)
	MarkSettled(ctx context.Context, raceID string, revision int) (bool, error)
	BumpResultRevision(ctx context.Context, raceID string, from, to int) (bool, error)

	// Markets
	MarketsForRace(ctx context.Context, raceID string, includeInactive bool) ([]model.Market, error)
	DeactivateMarkets(ctx context.Context, raceID, provider string) (int, error)
	UpsertMarket(ctx context.Context, m model.Market) error

	// Results
	RaceResults(ctx context.Context, raceID string) ([]model.RaceResult, error)
	InsertRaceResult(ctx context.Context, r model.RaceResult) error

	// Bets
	PendingBets(ctx context.Context, raceID string) ([]model.Bet, error)
	UserRaceBets(ctx context.Context, userID, raceID string) ([]model.Bet, error)
	SettleBet(ctx context.Context, s BetSettlement) (bool, error)
	LockBetSlip(ctx context.Context, userID, leagueID, raceID string) error
	PendingStake(ctx context.Context, userID, leagueID, raceID string) (decimal.Decimal, error)
	InsertBet(ctx context.Context, b model.Bet) error

	// Leagues
	GetMember(ctx context.Context, leagueID, userID string) (model.LeagueMember, error)
	AddSeasonPoints(ctx context.Context, leagueID, userID string, delta decimal.Decimal) (decimal.Decimal, error)
	LeagueMembers(ctx context.Context, leagueID string) ([]model.LeagueMember, error)
	UpsertRaceLeagueWinner(ctx context.Context, w model.RaceLeagueWinner) error
	RaceLeagueWinners(ctx context.Context, raceID string) ([]model.RaceLeagueWinner, error)

	// Health
	RaceStatusCounts(ctx context.Context) (map[model.RaceStatus]int, error)
	OverdueRaceIDs(ctx context.Context, now time.Time, limit int) ([]string, error)
	PendingBetCount(ctx context.Context, raceIDs []string) (int, error)
	LatestSettledRace(ctx context.Context) (*model.Race, error)
}
