// Package betting places bets on race markets within a league.
package betting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/albapepper/pitlane/internal/apperr"
	"github.com/albapepper/pitlane/internal/clock"
	"github.com/albapepper/pitlane/internal/model"
	"github.com/albapepper/pitlane/internal/store"
)

// BetRequest is one stake on a market.
type BetRequest struct {
	MarketID string          `json:"market_id" validate:"required,uuid"`
	Stake    decimal.Decimal `json:"stake"`
}

// PlaceRequest is a bet slip for one league.
type PlaceRequest struct {
	LeagueID string       `json:"league_id" validate:"required,uuid"`
	Bets     []BetRequest `json:"bets" validate:"required,min=1,max=20,dive"`
}

// PlacedBet is an accepted bet as returned to the client.
type PlacedBet struct {
	ID                  string          `json:"id"`
	MarketID            string          `json:"market_id"`
	SelectionKey        string          `json:"selection_key"`
	Stake               decimal.Decimal `json:"stake"`
	DecimalOddsSnapshot decimal.Decimal `json:"decimal_odds_snapshot"`
	Status              model.BetStatus `json:"status"`
}

// Placement is the response to an accepted slip.
type Placement struct {
	RaceID          string          `json:"race_id"`
	LeagueID        string          `json:"league_id"`
	AcceptedBets    []PlacedBet     `json:"accepted_bets"`
	TotalStake      decimal.Decimal `json:"total_stake"`
	RemainingPoints decimal.Decimal `json:"remaining_points"`
}

// Service places bets.
type Service struct {
	store    store.Store
	clock    clock.Clock
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService creates a betting service.
func NewService(st store.Store, clk clock.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{store: st, clock: clk, validate: validator.New(), logger: logger}
}

// RequireMembership returns a Forbidden error unless the user belongs to
// the league.
func RequireMembership(ctx context.Context, st store.Store, leagueID, userID string) (model.LeagueMember, error) {
	m, err := st.GetMember(ctx, leagueID, userID)
	if apperr.IsNotFound(err) {
		return model.LeagueMember{}, apperr.Forbidden(apperr.CodeNotLeagueMember, "you are not a member of this league")
	}
	if err != nil {
		return model.LeagueMember{}, fmt.Errorf("load membership: %w", err)
	}
	return m, nil
}

// Place validates a slip and inserts all of its bets or none of them.
func (s *Service) Place(ctx context.Context, userID, raceID string, req PlaceRequest) (*Placement, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	race, err := s.store.GetRace(ctx, raceID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if race.Status != model.RaceScheduled || !race.LockTime.After(now) {
		return nil, apperr.Conflict(apperr.CodeRaceLocked, "betting on race %s is closed", raceID).
			WithDetail("lock_time", race.LockTime)
	}

	if _, err := RequireMembership(ctx, s.store, req.LeagueID, userID); err != nil {
		return nil, err
	}

	markets, err := s.store.MarketsForRace(ctx, raceID, false)
	if err != nil {
		return nil, fmt.Errorf("load markets for race %s: %w", raceID, err)
	}
	byID := make(map[string]model.Market, len(markets))
	for _, m := range markets {
		byID[m.ID] = m
	}

	requested := decimal.Zero
	bets := make([]model.Bet, 0, len(req.Bets))
	for _, b := range req.Bets {
		m, ok := byID[b.MarketID]
		if !ok || !m.IsActive {
			return nil, apperr.Invalid(apperr.CodeMarketNotFound, "market is not open on this race").
				WithDetail("market_id", b.MarketID)
		}
		stake := model.Round2(b.Stake)
		requested = requested.Add(stake)
		bets = append(bets, model.Bet{
			ID:                  uuid.NewString(),
			UserID:              userID,
			LeagueID:            req.LeagueID,
			RaceID:              raceID,
			MarketID:            m.ID,
			SelectionKey:        m.SelectionKey,
			Stake:               stake,
			DecimalOddsSnapshot: m.DecimalOdds,
			Status:              model.BetPending,
			PlacedAt:            now,
		})
	}

	var existing decimal.Decimal
	err = s.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.LockBetSlip(ctx, userID, req.LeagueID, raceID); err != nil {
			return err
		}
		existing, err = tx.PendingStake(ctx, userID, req.LeagueID, raceID)
		if err != nil {
			return fmt.Errorf("sum pending stake: %w", err)
		}
		if existing.Add(requested).GreaterThan(model.MaxStakePerRace) {
			return apperr.Conflict(apperr.CodeStakeLimitExceeded, "stake limit for this race exceeded").
				WithDetail("existing_stake", existing).
				WithDetail("requested_stake", requested).
				WithDetail("max_stake", model.MaxStakePerRace)
		}
		for _, b := range bets {
			if err := tx.InsertBet(ctx, b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	placement := &Placement{
		RaceID:          raceID,
		LeagueID:        req.LeagueID,
		AcceptedBets:    make([]PlacedBet, len(bets)),
		TotalStake:      requested,
		RemainingPoints: model.MaxStakePerRace.Sub(existing).Sub(requested),
	}
	for i, b := range bets {
		placement.AcceptedBets[i] = PlacedBet{
			ID:                  b.ID,
			MarketID:            b.MarketID,
			SelectionKey:        b.SelectionKey,
			Stake:               b.Stake,
			DecimalOddsSnapshot: b.DecimalOddsSnapshot,
			Status:              b.Status,
		}
	}

	s.logger.Info("Bets placed",
		"race_id", raceID,
		"league_id", req.LeagueID,
		"user_id", userID,
		"bets", len(bets),
		"stake", requested.String(),
	)
	return placement, nil
}

// UserBets lists a user's bets on a race across leagues.
func (s *Service) UserBets(ctx context.Context, userID, raceID string) ([]model.Bet, error) {
	if _, err := s.store.GetRace(ctx, raceID); err != nil {
		return nil, err
	}
	bets, err := s.store.UserRaceBets(ctx, userID, raceID)
	if err != nil {
		return nil, fmt.Errorf("load bets: %w", err)
	}
	return bets, nil
}

// check runs struct validation plus the stake and duplicate rules.
func (s *Service) check(req PlaceRequest) error {
	if err := s.validate.Struct(req); err != nil {
		e := apperr.Invalid(apperr.CodeInvalidRequest, "invalid bet slip")
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+" "+fe.Tag())
			}
			e.WithDetail("fields", strings.Join(fields, "; "))
		}
		return e
	}

	seen := make(map[string]bool, len(req.Bets))
	for i, b := range req.Bets {
		// Bounds apply to the stored two-decimal stake.
		if st := model.Round2(b.Stake); !st.IsPositive() || st.GreaterThan(model.MaxStakePerRace) {
			return apperr.Invalid(apperr.CodeInvalidRequest, "stake must be greater than 0 and at most %s", model.MaxStakePerRace).
				WithDetail("index", i)
		}
		id := strings.ToLower(b.MarketID)
		if seen[id] {
			return apperr.Invalid(apperr.CodeDuplicateMarket, "duplicate market selections are not allowed").
				WithDetail("market_id", b.MarketID)
		}
		seen[id] = true
	}
	return nil
}
