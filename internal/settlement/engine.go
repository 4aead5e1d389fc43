// Package settlement turns a race's latest result facts into bet outcomes,
// league point increments and per-league race winners.
//
// A race moves scheduled → locked → settling → settled. The flip to
// settling happens first and on its own; everything after it runs in one
// store transaction so a failed run leaves the race settling and a retry
// starts over cleanly.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/albapepper/pitlane/internal/apperr"
	"github.com/albapepper/pitlane/internal/clock"
	"github.com/albapepper/pitlane/internal/model"
	"github.com/albapepper/pitlane/internal/store"
)

// Summary reports one settlement attempt.
type Summary struct {
	RaceID               string           `json:"race_id"`
	Status               model.RaceStatus `json:"status"`
	AlreadySettled       bool             `json:"already_settled"`
	SettledBets          int              `json:"settled_bets"`
	WinningSelectionKeys []string         `json:"winning_selection_keys"`
	VoidSelectionKeys    []string         `json:"void_selection_keys"`
	ResultRevision       int              `json:"result_revision"`
	LeagueWinnersWritten int              `json:"league_winners_written"`
	Message              string           `json:"message,omitempty"`
}

// Engine settles races.
type Engine struct {
	store  store.Store
	clock  clock.Clock
	logger *slog.Logger
}

// NewEngine creates a settlement engine.
func NewEngine(st store.Store, clk clock.Clock, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Engine{store: st, clock: clk, logger: logger}
}

// Settle settles every pending bet of a race against its latest result
// revision. Settling an already settled race is a no-op that reports zero
// settled bets.
func (e *Engine) Settle(ctx context.Context, raceID string) (*Summary, error) {
	start := time.Now()

	race, err := e.store.GetRace(ctx, raceID)
	if err != nil {
		return nil, err
	}
	if race.Status == model.RaceSettled {
		return alreadySettled(race), nil
	}
	now := e.clock.Now()
	if race.Status == model.RaceScheduled && race.LockTime.After(now) {
		return nil, apperr.Conflict(apperr.CodeRaceNotLocked, "race %s is still open for betting", raceID).
			WithDetail("lock_time", race.LockTime)
	}

	flipped, err := e.store.MarkSettling(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("mark race %s settling: %w", raceID, err)
	}
	if !flipped {
		race.Status = model.RaceSettled
		return alreadySettled(race), nil
	}

	summary := &Summary{RaceID: raceID}
	err = e.store.InTx(ctx, func(tx store.Store) error {
		return e.settleInTx(ctx, tx, raceID, now, summary)
	})
	if err != nil {
		e.logger.Error("Settlement failed", "race_id", raceID, "error", err)
		return nil, err
	}

	summary.Status = model.RaceSettled
	e.logger.Info("Race settled",
		"race_id", raceID,
		"revision", summary.ResultRevision,
		"bets", summary.SettledBets,
		"winners", summary.LeagueWinnersWritten,
		"duration", time.Since(start),
	)
	return summary, nil
}

func alreadySettled(race model.Race) *Summary {
	return &Summary{
		RaceID:               race.ID,
		Status:               model.RaceSettled,
		AlreadySettled:       true,
		ResultRevision:       race.ResultRevision,
		WinningSelectionKeys: []string{},
		VoidSelectionKeys:    []string{},
		Message:              "race already settled",
	}
}

type leagueUser struct {
	league, user string
}

func (e *Engine) settleInTx(ctx context.Context, tx store.Store, raceID string, now time.Time, summary *Summary) error {
	facts, err := tx.RaceResults(ctx, raceID)
	if err != nil {
		return fmt.Errorf("load results of race %s: %w", raceID, err)
	}
	outcome, ok := LatestOutcome(facts)
	if !ok {
		return apperr.Conflict(apperr.CodeNoRaceResults, "race %s has no results to settle against", raceID)
	}
	if outcome.Empty() {
		return apperr.Conflict(apperr.CodeNoOutcomeFacts,
			"no winning or void selections in revision %d", outcome.Revision).
			WithDetail("revision", outcome.Revision).
			WithDetail("hint", "write winning_selection_key(s), void_selection_key(s) or selection:<key> = won|void facts")
	}
	summary.ResultRevision = outcome.Revision
	summary.WinningSelectionKeys = outcome.WinningKeys()
	summary.VoidSelectionKeys = outcome.VoidKeys()

	bets, err := tx.PendingBets(ctx, raceID)
	if err != nil {
		return fmt.Errorf("load pending bets of race %s: %w", raceID, err)
	}

	totals := make(map[leagueUser]decimal.Decimal)
	var order []leagueUser
	for _, b := range bets {
		s := SettleBet(b, outcome.BetStatus(b.SelectionKey), now)
		updated, err := tx.SettleBet(ctx, s)
		if err != nil {
			return fmt.Errorf("settle bet %s: %w", b.ID, err)
		}
		if !updated {
			e.logger.Warn("Bet no longer pending, skipping", "race_id", raceID, "bet_id", b.ID)
			continue
		}
		summary.SettledBets++

		k := leagueUser{b.LeagueID, b.UserID}
		if _, seen := totals[k]; !seen {
			order = append(order, k)
		}
		totals[k] = totals[k].Add(s.NetProfit)
	}

	for _, k := range order {
		if _, err := tx.AddSeasonPoints(ctx, k.league, k.user, totals[k]); err != nil {
			return fmt.Errorf("add season points for user %s in league %s: %w", k.user, k.league, err)
		}
	}

	for _, w := range leagueWinners(raceID, totals, now) {
		if err := tx.UpsertRaceLeagueWinner(ctx, w); err != nil {
			return fmt.Errorf("write winner of league %s: %w", w.LeagueID, err)
		}
		summary.LeagueWinnersWritten++
	}

	settled, err := tx.MarkSettled(ctx, raceID, outcome.Revision)
	if err != nil {
		return fmt.Errorf("mark race %s settled: %w", raceID, err)
	}
	if !settled {
		return apperr.Conflict(apperr.CodeRevisionConflict, "race %s left settling during settlement", raceID)
	}
	return nil
}

// SettleBet computes the terminal state of a bet for a decided status.
// Void refunds the stake, won pays stake times odds, lost pays nothing.
func SettleBet(b model.Bet, status model.BetStatus, at time.Time) store.BetSettlement {
	s := store.BetSettlement{BetID: b.ID, Status: status, SettledAt: at}
	switch status {
	case model.BetVoid:
		s.GrossReturn = b.Stake
		s.NetProfit = decimal.Zero
	case model.BetWon:
		s.GrossReturn = model.Round4(b.Stake.Mul(b.DecimalOddsSnapshot))
		s.NetProfit = model.Round4(s.GrossReturn.Sub(b.Stake))
	default:
		s.Status = model.BetLost
		s.GrossReturn = decimal.Zero
		s.NetProfit = b.Stake.Neg()
	}
	return s
}

// leagueWinners picks the best aggregated net profit per league. Equal
// totals go to the lexicographically smaller user id.
func leagueWinners(raceID string, totals map[leagueUser]decimal.Decimal, at time.Time) []model.RaceLeagueWinner {
	best := make(map[string]model.RaceLeagueWinner)
	for k, net := range totals {
		cur, ok := best[k.league]
		if !ok || net.GreaterThan(cur.RacePoints) || (net.Equal(cur.RacePoints) && k.user < cur.WinnerUserID) {
			best[k.league] = model.RaceLeagueWinner{
				RaceID:       raceID,
				LeagueID:     k.league,
				WinnerUserID: k.user,
				RacePoints:   net,
				UpdatedAt:    at,
			}
		}
	}

	winners := make([]model.RaceLeagueWinner, 0, len(best))
	for _, w := range best {
		w.RacePoints = model.Round4(w.RacePoints)
		winners = append(winners, w)
	}
	sort.Slice(winners, func(i, j int) bool { return winners[i].LeagueID < winners[j].LeagueID })
	return winners
}
