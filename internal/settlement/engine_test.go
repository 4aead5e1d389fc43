package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/pitlane/internal/apperr"
	"github.com/albapepper/pitlane/internal/clock"
	"github.com/albapepper/pitlane/internal/model"
	"github.com/albapepper/pitlane/internal/store/memstore"
)

const (
	leagueA = "11111111-1111-1111-1111-111111111111"
	leagueB = "22222222-2222-2222-2222-222222222222"
	userA   = "aaaaaaaa-0000-0000-0000-000000000001"
	userB   = "bbbbbbbb-0000-0000-0000-000000000002"
)

var raceStart = time.Date(2026, 6, 7, 13, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memstore.Store
	engine *Engine
	race   model.Race
}

func newFixture(t *testing.T, status model.RaceStatus) *fixture {
	t.Helper()
	st := memstore.New(nil)
	race := st.AddRace(model.Race{Season: 2026, Round: 8, Name: "Monaco Grand Prix", StartTime: raceStart, Status: status})
	for _, u := range []string{userA, userB} {
		st.AddMember(model.LeagueMember{LeagueID: leagueA, UserID: u, SeasonPoints: decimal.Zero})
	}
	return &fixture{
		store:  st,
		engine: NewEngine(st, clock.NewFixed(raceStart.Add(4*time.Hour)), nil),
		race:   race,
	}
}

func (f *fixture) bet(user, league, selection, stake, odds string) model.Bet {
	m := f.store.AddMarket(model.Market{
		RaceID: f.race.ID, Provider: "the-odds-api", ProviderMarketID: "ev:book:outrights",
		MarketType: model.MarketRaceWinner, SelectionKey: selection + "#" + user,
		DecimalOdds: decimal.RequireFromString(odds), IsActive: true,
	})
	return f.store.AddBet(model.Bet{
		UserID: user, LeagueID: league, RaceID: f.race.ID, MarketID: m.ID, SelectionKey: selection,
		Stake: decimal.RequireFromString(stake), DecimalOddsSnapshot: decimal.RequireFromString(odds),
		PlacedAt: raceStart.Add(-24 * time.Hour),
	})
}

func (f *fixture) fact(key, value string, rev int) {
	f.store.AddResult(model.RaceResult{RaceID: f.race.ID, ResultKey: key, ResultValue: value, Revision: rev})
}

func (f *fixture) points(t *testing.T, league, user string) decimal.Decimal {
	t.Helper()
	m, err := f.store.GetMember(context.Background(), league, user)
	require.NoError(t, err)
	return m.SeasonPoints
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSettleWonAndLost(t *testing.T) {
	f := newFixture(t, model.RaceLocked)
	won := f.bet(userA, leagueA, "max_verstappen_win", "40", "3.0")
	lost := f.bet(userA, leagueA, "lando_norris_win", "60", "1.5")
	f.fact("selection:max_verstappen_win", "won", 1)
	f.fact("selection:lando_norris_win", "lost", 1)

	sum, err := f.engine.Settle(context.Background(), f.race.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.SettledBets)
	assert.Equal(t, model.RaceSettled, sum.Status)
	assert.Equal(t, []string{"max_verstappen_win"}, sum.WinningSelectionKeys)
	assert.Empty(t, sum.VoidSelectionKeys)
	assert.Equal(t, 1, sum.ResultRevision)

	w, _ := f.store.Bet(won.ID)
	assert.Equal(t, model.BetWon, w.Status)
	assert.True(t, dec("120").Equal(*w.GrossReturn))
	assert.True(t, dec("80").Equal(*w.NetProfit))
	require.NotNil(t, w.SettledAt)

	l, _ := f.store.Bet(lost.ID)
	assert.Equal(t, model.BetLost, l.Status)
	assert.True(t, decimal.Zero.Equal(*l.GrossReturn))
	assert.True(t, dec("-60").Equal(*l.NetProfit))

	assert.True(t, dec("20").Equal(f.points(t, leagueA, userA)))

	race, err := f.store.GetRace(context.Background(), f.race.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RaceSettled, race.Status)
	assert.Equal(t, 1, race.ResultRevision)
}

func TestSettleVoidRefundsStake(t *testing.T) {
	f := newFixture(t, model.RaceLocked)
	b := f.bet(userA, leagueA, "oscar_piastri_podium", "25.50", "2.75")
	f.fact("void_selection_key", "oscar_piastri_podium", 1)

	sum, err := f.engine.Settle(context.Background(), f.race.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"oscar_piastri_podium"}, sum.VoidSelectionKeys)

	got, _ := f.store.Bet(b.ID)
	assert.Equal(t, model.BetVoid, got.Status)
	assert.True(t, dec("25.5").Equal(*got.GrossReturn))
	assert.True(t, decimal.Zero.Equal(*got.NetProfit))
	assert.True(t, decimal.Zero.Equal(f.points(t, leagueA, userA)))
}

func TestSettleRoundsReturnsToFourPlaces(t *testing.T) {
	f := newFixture(t, model.RaceLocked)
	b := f.bet(userA, leagueA, "a_win", "33.33", "2.1234")
	f.fact("winning_selection_key", "a_win", 1)

	_, err := f.engine.Settle(context.Background(), f.race.ID)
	require.NoError(t, err)

	got, _ := f.store.Bet(b.ID)
	assert.Equal(t, "70.7729", got.GrossReturn.StringFixed(4))
	assert.Equal(t, "37.4429", got.NetProfit.StringFixed(4))
	assert.Equal(t, "37.44", f.points(t, leagueA, userA).StringFixed(2))
}

func TestSettleTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t, model.RaceLocked)
	b := f.bet(userA, leagueA, "a_win", "10", "2")
	f.fact("selection:a_win", "won", 1)

	_, err := f.engine.Settle(context.Background(), f.race.ID)
	require.NoError(t, err)
	first, _ := f.store.Bet(b.ID)
	pts := f.points(t, leagueA, userA)

	sum, err := f.engine.Settle(context.Background(), f.race.ID)
	require.NoError(t, err)
	assert.True(t, sum.AlreadySettled)
	assert.Equal(t, 0, sum.SettledBets)

	second, _ := f.store.Bet(b.ID)
	assert.Equal(t, first, second)
	assert.True(t, pts.Equal(f.points(t, leagueA, userA)))
}

func TestSettleWinnerTieBreaksOnSmallerUserID(t *testing.T) {
	f := newFixture(t, model.RaceLocked)
	f.store.AddMember(model.LeagueMember{LeagueID: leagueB, UserID: userB})
	f.bet(userB, leagueA, "a_win", "10", "3")
	f.bet(userA, leagueA, "a_win", "10", "3")
	f.bet(userB, leagueB, "b_win", "5", "2")
	f.fact("winning_selection_keys", `["a_win"]`, 1)

	sum, err := f.engine.Settle(context.Background(), f.race.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.LeagueWinnersWritten)

	winners, err := f.store.RaceLeagueWinners(context.Background(), f.race.ID)
	require.NoError(t, err)
	require.Len(t, winners, 2)
	assert.Equal(t, leagueA, winners[0].LeagueID)
	assert.Equal(t, userA, winners[0].WinnerUserID)
	assert.True(t, dec("20").Equal(winners[0].RacePoints))
	assert.Equal(t, userB, winners[1].WinnerUserID)
	assert.True(t, dec("-5").Equal(winners[1].RacePoints))
}

func TestSettleRejectsOpenRace(t *testing.T) {
	f := newFixture(t, model.RaceScheduled)
	f.engine.clock = clock.NewFixed(raceStart.Add(-3 * time.Hour))

	_, err := f.engine.Settle(context.Background(), f.race.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeRaceNotLocked, apperr.CodeOf(err))

	race, _ := f.store.GetRace(context.Background(), f.race.ID)
	assert.Equal(t, model.RaceScheduled, race.Status)
}

func TestSettleWithoutResults(t *testing.T) {
	f := newFixture(t, model.RaceLocked)
	f.bet(userA, leagueA, "a_win", "10", "2")

	_, err := f.engine.Settle(context.Background(), f.race.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, apperr.CodeNoRaceResults, apperr.CodeOf(err))

	race, _ := f.store.GetRace(context.Background(), f.race.ID)
	assert.Equal(t, model.RaceSettling, race.Status)
}

func TestSettleWithoutOutcomeFacts(t *testing.T) {
	f := newFixture(t, model.RaceLocked)
	f.fact("selection:a_win", "lost", 1)

	_, err := f.engine.Settle(context.Background(), f.race.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNoOutcomeFacts, apperr.CodeOf(err))
}

func TestSettleRollsBackOnPersistenceError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.RaceLocked)
	b := f.bet(userA, leagueA, "a_win", "10", "2")
	f.fact("selection:a_win", "won", 1)
	f.store.SetFault("UpsertRaceLeagueWinner", errors.New("connection reset"))

	_, err := f.engine.Settle(ctx, f.race.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	got, _ := f.store.Bet(b.ID)
	assert.Equal(t, model.BetPending, got.Status)
	assert.True(t, decimal.Zero.Equal(f.points(t, leagueA, userA)))
	race, _ := f.store.GetRace(ctx, f.race.ID)
	assert.Equal(t, model.RaceSettling, race.Status)

	// A retry after the fault clears resumes from settling.
	f.store.SetFault("UpsertRaceLeagueWinner", nil)
	sum, err := f.engine.Settle(ctx, f.race.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.SettledBets)
	assert.True(t, dec("10").Equal(f.points(t, leagueA, userA)))
}

func TestSettleMissingMembershipFails(t *testing.T) {
	f := newFixture(t, model.RaceLocked)
	f.bet(userB, leagueB, "a_win", "10", "2")
	f.fact("selection:a_win", "won", 1)

	_, err := f.engine.Settle(context.Background(), f.race.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestSettleUnknownRace(t *testing.T) {
	f := newFixture(t, model.RaceLocked)
	_, err := f.engine.Settle(context.Background(), "nope")
	assert.True(t, apperr.IsNotFound(err))
}

func TestSettleBetFormulas(t *testing.T) {
	at := raceStart
	b := model.Bet{ID: "b", Stake: dec("40"), DecimalOddsSnapshot: dec("3.0")}

	won := SettleBet(b, model.BetWon, at)
	assert.True(t, dec("120").Equal(won.GrossReturn))
	assert.True(t, dec("80").Equal(won.NetProfit))

	lost := SettleBet(b, model.BetLost, at)
	assert.True(t, lost.GrossReturn.IsZero())
	assert.True(t, dec("-40").Equal(lost.NetProfit))

	void := SettleBet(b, model.BetVoid, at)
	assert.True(t, dec("40").Equal(void.GrossReturn))
	assert.True(t, void.NetProfit.IsZero())
}
