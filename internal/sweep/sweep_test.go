package sweep

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/pitlane/internal/apperr"
	"github.com/albapepper/pitlane/internal/clock"
	"github.com/albapepper/pitlane/internal/ingest"
	"github.com/albapepper/pitlane/internal/model"
	"github.com/albapepper/pitlane/internal/settlement"
	"github.com/albapepper/pitlane/internal/store/memstore"
)

var now = time.Date(2026, 6, 7, 18, 0, 0, 0, time.UTC)

type fakeIngester struct {
	mu    sync.Mutex
	errs  map[string]error
	calls []string
}

func (f *fakeIngester) Results(ctx context.Context, raceID string) (*ingest.ResultIngest, error) {
	f.mu.Lock()
	f.calls = append(f.calls, raceID)
	f.mu.Unlock()
	if err := f.errs[raceID]; err != nil {
		return nil, err
	}
	return &ingest.ResultIngest{RaceID: raceID, Ingested: true, Finalized: true, Revision: 1}, nil
}

type fakeSettler struct {
	errs map[string]error
}

func (f *fakeSettler) Settle(ctx context.Context, raceID string) (*settlement.Summary, error) {
	if err := f.errs[raceID]; err != nil {
		return nil, err
	}
	return &settlement.Summary{RaceID: raceID, Status: model.RaceSettled}, nil
}

func addRace(st *memstore.Store, round int, start time.Time, status model.RaceStatus) model.Race {
	return st.AddRace(model.Race{Season: 2026, Round: round, Name: "Race", StartTime: start, Status: status})
}

func TestRunClassifiesEachRace(t *testing.T) {
	st := memstore.New(nil)
	settled := addRace(st, 1, now.Add(-72*time.Hour), model.RaceLocked)
	pending := addRace(st, 2, now.Add(-48*time.Hour), model.RaceSettling)
	ingestFail := addRace(st, 3, now.Add(-24*time.Hour), model.RaceLocked)
	settleFail := addRace(st, 4, now.Add(-2*time.Hour), model.RaceLocked)
	addRace(st, 5, now.Add(time.Hour), model.RaceLocked)
	addRace(st, 6, now.Add(-96*time.Hour), model.RaceSettled)

	in := &fakeIngester{errs: map[string]error{
		pending.ID:    apperr.Deferred(apperr.CodeNotFinalized, "not yet"),
		ingestFail.ID: apperr.Upstream(errors.New("503"), "openf1 down"),
	}}
	se := &fakeSettler{errs: map[string]error{
		settleFail.ID: apperr.Conflict(apperr.CodeNoOutcomeFacts, "no facts"),
	}}
	r := NewRunner(st, in, se, clock.NewFixed(now), Options{}, nil)

	res, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, res.CandidateCount)
	assert.Equal(t, 1, res.SettledCount)
	assert.Equal(t, 1, res.PendingFinalizationCount)
	assert.Equal(t, 2, res.Failures)

	require.Len(t, res.Races, 4)
	assert.Equal(t, settled.ID, res.Races[0].RaceID)
	assert.True(t, res.Races[0].Settled)
	assert.Equal(t, http.StatusOK, res.Races[0].SettleStatus)

	assert.Equal(t, pending.ID, res.Races[1].RaceID)
	assert.Equal(t, http.StatusAccepted, res.Races[1].IngestStatus)
	assert.True(t, res.Races[1].Pending())

	assert.Equal(t, http.StatusBadGateway, res.Races[2].IngestStatus)
	assert.Equal(t, apperr.CodeUpstreamUnavailable, res.Races[2].ErrorCode)
	assert.Zero(t, res.Races[2].SettleStatus)

	assert.Equal(t, http.StatusConflict, res.Races[3].SettleStatus)
	assert.Equal(t, apperr.CodeNoOutcomeFacts, res.Races[3].ErrorCode)
	assert.NotEmpty(t, res.Summary())
}

func TestRunRespectsBatchLimitAndOrder(t *testing.T) {
	st := memstore.New(nil)
	var ids []string
	for i := 0; i < 25; i++ {
		ids = append(ids, addRace(st, i+1, now.Add(-time.Duration(30-i)*time.Hour), model.RaceLocked).ID)
	}
	in := &fakeIngester{}
	r := NewRunner(st, in, &fakeSettler{}, clock.NewFixed(now), Options{}, nil)

	res, err := r.Run(context.Background(), Options{Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, 20, res.CandidateCount)
	for i, o := range res.Races {
		assert.Equal(t, ids[i], o.RaceID)
	}
	assert.Len(t, in.calls, 20)
}

func TestRunLocksDueRaces(t *testing.T) {
	st := memstore.New(nil)
	due := addRace(st, 1, now.Add(time.Hour), model.RaceScheduled)
	addRace(st, 2, now.Add(5*time.Hour), model.RaceScheduled)
	r := NewRunner(st, &fakeIngester{}, &fakeSettler{}, clock.NewFixed(now), Options{}, nil)

	res, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.LockedRaces)
	assert.Equal(t, 0, res.CandidateCount)

	got, err := st.GetRace(context.Background(), due.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RaceLocked, got.Status)
}

func TestRunCandidateLoadFailure(t *testing.T) {
	st := memstore.New(nil)
	st.SetFault("SweepCandidates", errors.New("pool closed"))
	r := NewRunner(st, &fakeIngester{}, &fakeSettler{}, clock.NewFixed(now), Options{}, nil)

	_, err := r.Run(context.Background(), Options{})
	require.Error(t, err)
}

func TestRunEndToEndWithEngine(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(nil)
	race := addRace(st, 1, now.Add(-5*time.Hour), model.RaceLocked)
	st.AddMember(model.LeagueMember{LeagueID: "l1", UserID: "u1"})
	m := st.AddMarket(model.Market{RaceID: race.ID, Provider: "p", ProviderMarketID: "x", SelectionKey: "a_win", DecimalOdds: decimal.NewFromInt(2), IsActive: true})
	st.AddBet(model.Bet{UserID: "u1", LeagueID: "l1", RaceID: race.ID, MarketID: m.ID, SelectionKey: "a_win", Stake: decimal.NewFromInt(10), DecimalOddsSnapshot: decimal.NewFromInt(2)})
	st.AddResult(model.RaceResult{RaceID: race.ID, ResultKey: "selection:a_win", ResultValue: "won", Revision: 1})

	engine := settlement.NewEngine(st, clock.NewFixed(now), nil)
	r := NewRunner(st, &fakeIngester{}, engine, clock.NewFixed(now), Options{}, nil)

	res, err := r.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SettledCount)

	health, err := r.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, health.StatusCounts["settled"])
	assert.Empty(t, health.OverdueRaceIDs)
	require.NotNil(t, health.LatestSettled)
	assert.Equal(t, race.ID, health.LatestSettled.RaceID)
}

func TestHealthReportsBacklog(t *testing.T) {
	st := memstore.New(nil)
	overdue := addRace(st, 1, now.Add(-3*time.Hour), model.RaceSettling)
	addRace(st, 2, now.Add(72*time.Hour), model.RaceScheduled)
	m := st.AddMarket(model.Market{RaceID: overdue.ID, Provider: "p", ProviderMarketID: "x", SelectionKey: "a_win", IsActive: true})
	st.AddBet(model.Bet{UserID: "u1", LeagueID: "l1", RaceID: overdue.ID, MarketID: m.ID})
	st.AddBet(model.Bet{UserID: "u2", LeagueID: "l1", RaceID: overdue.ID, MarketID: m.ID})

	r := NewRunner(st, &fakeIngester{}, &fakeSettler{}, clock.NewFixed(now), Options{}, nil)
	health, err := r.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{overdue.ID}, health.OverdueRaceIDs)
	assert.Equal(t, 2, health.PendingBetsInRace)
	assert.Equal(t, 1, health.StatusCounts["settling"])
	assert.Equal(t, 1, health.StatusCounts["scheduled"])
	assert.Nil(t, health.LatestSettled)
}
