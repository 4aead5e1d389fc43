package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/pitlane/internal/api/handler"
	"github.com/albapepper/pitlane/internal/apperr"
	"github.com/albapepper/pitlane/internal/auth"
	"github.com/albapepper/pitlane/internal/betting"
	"github.com/albapepper/pitlane/internal/cache"
	"github.com/albapepper/pitlane/internal/clock"
	"github.com/albapepper/pitlane/internal/config"
	"github.com/albapepper/pitlane/internal/ingest"
	"github.com/albapepper/pitlane/internal/league"
	"github.com/albapepper/pitlane/internal/model"
	"github.com/albapepper/pitlane/internal/settlement"
	"github.com/albapepper/pitlane/internal/store/memstore"
	"github.com/albapepper/pitlane/internal/sweep"
)

const (
	testSecret    = "cron-secret"
	testJWTSecret = "jwt-secret"
	leagueID      = "11111111-1111-1111-1111-111111111111"
	memberID      = "aaaaaaaa-0000-0000-0000-000000000001"
	outsiderID    = "cccccccc-0000-0000-0000-000000000003"
)

var raceStart = time.Date(2026, 6, 7, 13, 0, 0, 0, time.UTC)

type stubResults struct {
	err    error
	result *ingest.ResultIngest
}

func (s *stubResults) Results(ctx context.Context, raceID string) (*ingest.ResultIngest, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubSchedule struct {
	seasons []int
}

func (s *stubSchedule) ScheduleAndOdds(ctx context.Context, season int) (*ingest.ScheduleResult, error) {
	s.seasons = append(s.seasons, season)
	return &ingest.ScheduleResult{Season: season, ScheduleProvider: "thesportsdb"}, nil
}

type testServer struct {
	router   *chi.Mux
	store    *memstore.Store
	clock    *clock.Fixed
	results  *stubResults
	schedule *stubSchedule
	race     model.Race
	market   model.Market
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clk := clock.NewFixed(raceStart.Add(-24 * time.Hour))
	st := memstore.New(clk)
	race := st.AddRace(model.Race{Season: 2026, Round: 8, Slug: "monaco", Name: "Monaco Grand Prix", StartTime: raceStart})
	market := st.AddMarket(model.Market{
		RaceID: race.ID, Provider: "the-odds-api", ProviderMarketID: "ev:book:outrights",
		MarketType: model.MarketRaceWinner, SelectionKey: "max_verstappen_win", SelectionLabel: "Max Verstappen",
		DecimalOdds: decimal.RequireFromString("3.0"), IsActive: true,
	})
	st.AddMember(model.LeagueMember{LeagueID: leagueID, UserID: memberID, SeasonPoints: decimal.Zero})

	cfg := &config.Config{
		SettlementSecret: testSecret,
		JWTSecret:        testJWTSecret,
		SweepBatchSize:   20,
		SweepWorkers:     2,
	}
	appCache := cache.New(true)
	t.Cleanup(appCache.Close)

	results := &stubResults{result: &ingest.ResultIngest{RaceID: race.ID, Ingested: true, Finalized: true}}
	schedule := &stubSchedule{}
	engine := settlement.NewEngine(st, clk, nil)
	h := handler.New(handler.Deps{
		Store:    st,
		Cache:    appCache,
		Config:   cfg,
		Clock:    clk,
		Schedule: schedule,
		Results:  results,
		Settler:  engine,
		Sweeper:  sweep.NewRunner(st, results, engine, clk, sweep.Options{}, nil),
		Betting:  betting.NewService(st, clk, nil),
		Leagues:  league.NewService(st),
	})
	return &testServer{
		router: NewRouter(h, cfg), store: st, clock: clk,
		results: results, schedule: schedule, race: race, market: market,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, userID string) map[string]string {
	t.Helper()
	token, err := auth.JWT{Secret: []byte(testJWTSecret)}.Sign(auth.Claims{
		Email:            "driver@example.com",
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
	})
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func internalHeaders() map[string]string {
	return map[string]string{auth.HeaderSettlementSecret: testSecret}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	e, ok := body["error"].(map[string]interface{})
	require.True(t, ok, rec.Body.String())
	return e["code"].(string)
}

func TestHealthAndTiming(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Process-Time"))

	rec = s.do(t, http.MethodGet, "/health/db", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListRacesCachesWithETag(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/races?season=2026", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	races := decode(t, rec)["races"].([]interface{})
	require.Len(t, races, 1)
	assert.Equal(t, "Monaco Grand Prix", races[0].(map[string]interface{})["name"])

	rec = s.do(t, http.MethodGet, "/api/v1/races?season=2026", "", map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/races?status=finished", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/v1/races?limit=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRaceMarkets(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/races/"+s.race.ID+"/markets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	markets := decode(t, rec)["markets"].([]interface{})
	assert.Len(t, markets, 1)

	rec = s.do(t, http.MethodGet, "/api/v1/races/not-a-uuid/markets", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/races/99999999-9999-9999-9999-999999999999/markets", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperr.CodeRaceNotFound, errorCode(t, rec))
}

func TestPlaceBetsRequiresUser(t *testing.T) {
	s := newTestServer(t)
	body := `{"league_id":"` + leagueID + `","bets":[{"market_id":"` + s.market.ID + `","stake":10}]}`

	rec := s.do(t, http.MethodPost, "/api/v1/races/"+s.race.ID+"/bets", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/races/"+s.race.ID+"/bets", body, bearer(t, outsiderID))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperr.CodeNotLeagueMember, errorCode(t, rec))
}

func TestPlaceBetsAndListMine(t *testing.T) {
	s := newTestServer(t)
	body := `{"league_id":"` + leagueID + `","bets":[{"market_id":"` + s.market.ID + `","stake":"40"}]}`

	rec := s.do(t, http.MethodPost, "/api/v1/races/"+s.race.ID+"/bets", body, bearer(t, memberID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	placed := decode(t, rec)
	assert.Equal(t, "60", placed["remaining_points"])

	over := `{"league_id":"` + leagueID + `","bets":[{"market_id":"` + s.market.ID + `","stake":"61"}]}`
	rec = s.do(t, http.MethodPost, "/api/v1/races/"+s.race.ID+"/bets", over, bearer(t, memberID))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperr.CodeStakeLimitExceeded, errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/api/v1/races/"+s.race.ID+"/bets", `{"league_id":`, bearer(t, memberID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/races/"+s.race.ID+"/bets/me", "", bearer(t, memberID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["bets"].([]interface{}), 1)
}

func TestStandingsForMembersOnly(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/leagues/"+leagueID+"/standings", "", bearer(t, memberID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["standings"].([]interface{}), 1)

	rec = s.do(t, http.MethodGet, "/api/v1/leagues/"+leagueID+"/standings", "", bearer(t, outsiderID))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInternalRoutesRequireSecret(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/internal/races/"+s.race.ID+"/settle", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/internal/races/"+s.race.ID+"/settle", "",
		map[string]string{"Authorization": "Bearer " + testSecret})
	assert.NotEqual(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/internal/cron/settle-races/health", "",
		map[string]string{auth.HeaderCronSecret: testSecret})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSettleRaceEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/internal/races/"+s.race.ID+"/settle", "", internalHeaders())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperr.CodeRaceNotLocked, errorCode(t, rec))

	s.store.AddBet(model.Bet{
		UserID: memberID, LeagueID: leagueID, RaceID: s.race.ID, MarketID: s.market.ID,
		SelectionKey: "max_verstappen_win", Stake: decimal.NewFromInt(40), DecimalOddsSnapshot: decimal.RequireFromString("3.0"),
	})
	s.store.AddResult(model.RaceResult{RaceID: s.race.ID, ResultKey: "selection:max_verstappen_win", ResultValue: "won", Revision: 1})
	s.clock.Set(raceStart.Add(3 * time.Hour))

	rec = s.do(t, http.MethodPost, "/internal/races/"+s.race.ID+"/settle", "", internalHeaders())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decode(t, rec)
	assert.Equal(t, "settled", sum["status"])
	assert.EqualValues(t, 1, sum["settled_bets"])

	rec = s.do(t, http.MethodPost, "/internal/races/"+s.race.ID+"/settle", "", internalHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["already_settled"])
}

func TestIngestResultsDeferred(t *testing.T) {
	s := newTestServer(t)
	s.results.err = apperr.Deferred(apperr.CodeNotFinalized, "session not finalized").WithDetail("session_key", 9523)

	rec := s.do(t, http.MethodPost, "/internal/races/"+s.race.ID+"/ingest-results", "", internalHeaders())
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["finalized"])
	assert.Equal(t, false, body["ingested"])
	assert.Equal(t, apperr.CodeNotFinalized, body["code"])
	assert.EqualValues(t, 9523, body["session_key"])

	s.results.err = nil
	rec = s.do(t, http.MethodPost, "/internal/races/"+s.race.ID+"/ingest-results", "", internalHeaders())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestScheduleSeason(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/internal/schedule/ingest?season=1999", "", internalHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/internal/schedule/ingest?season=2027", "", internalHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/internal/schedule/ingest", "", internalHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{2027, 2026}, s.schedule.seasons)
}

func TestRunSweepEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.clock.Set(raceStart.Add(3 * time.Hour))
	s.store.AddResult(model.RaceResult{RaceID: s.race.ID, ResultKey: "selection:max_verstappen_win", ResultValue: "won", Revision: 1})

	rec := s.do(t, http.MethodPost, "/internal/cron/settle-races?max=0", "", internalHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/internal/cron/settle-races", "", internalHeaders())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["candidate_count"])
	assert.EqualValues(t, 1, body["settled_count"])
}
