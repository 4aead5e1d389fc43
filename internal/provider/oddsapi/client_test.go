package oddsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/pitlane/internal/model"
)

const oddsPayload = `{
 "id":"ev1","sport_key":"motorsport_f1","commence_time":"2026-06-07T13:00:00Z","home_team":"Monaco Grand Prix","away_team":"",
 "bookmakers":[
  {"key":"fanduel","markets":[{"key":"outrights","outcomes":[{"name":"Lando Norris","price":5.0}]}]},
  {"key":"draftkings","markets":[
   {"key":"outrights","last_update":"2026-06-01T10:00:00Z","outcomes":[
     {"name":"Max Verstappen","price":2.123456},
     {"name":"Charles Leclerc","price":1.0},
     {"name":"Nobody","price":null},
     {"name":"Oscar Piastri","price":7.5}
   ]},
   {"key":"podium_finish","outcomes":[{"name":"Max Verstappen","price":1.3}]}
  ]}
 ]}`

func newTestClient(t *testing.T, bookmaker string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("apiKey"))
		switch r.URL.Path {
		case "/sports/motorsport_f1/events":
			w.Write([]byte(`[{"id":"ev1","commence_time":"2026-06-07T13:00:00Z","home_team":"Monaco Grand Prix"},{"id":"bad","commence_time":"soon"}]`))
		case "/sports/motorsport_f1/events/ev1/odds":
			assert.Equal(t, "decimal", r.URL.Query().Get("oddsFormat"))
			assert.Equal(t, bookmaker, r.URL.Query().Get("bookmakers"))
			w.Write([]byte(oddsPayload))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "secret", Options{Bookmaker: bookmaker}, time.Second, nil)
}

func TestEvents(t *testing.T) {
	events, err := newTestClient(t, "").Events(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev1", events[0].ID)
	assert.Equal(t, "Monaco Grand Prix", events[0].HomeTeam)
}

func TestEventQuotesPreferredBookmaker(t *testing.T) {
	now := time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)
	quotes, err := newTestClient(t, "draftkings").EventQuotes(context.Background(), "ev1", now)
	require.NoError(t, err)
	require.Len(t, quotes, 3)

	ver := quotes[0]
	assert.Equal(t, ProviderName, ver.Provider)
	assert.Equal(t, "ev1:draftkings:outrights", ver.ProviderMarketID)
	assert.Equal(t, model.MarketRaceWinner, ver.MarketType)
	assert.Equal(t, "max_verstappen_win", ver.SelectionKey)
	assert.Equal(t, "2.1235", ver.DecimalOdds.String())
	assert.Equal(t, time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC), ver.FetchedAt)

	assert.Equal(t, "oscar_piastri_win", quotes[1].SelectionKey)

	pod := quotes[2]
	assert.Equal(t, model.MarketPodium, pod.MarketType)
	assert.Equal(t, "max_verstappen_podium", pod.SelectionKey)
	assert.Equal(t, now, pod.FetchedAt)
}

func TestEventQuotesDefaultsToFirstBookmaker(t *testing.T) {
	quotes, err := newTestClient(t, "").EventQuotes(context.Background(), "ev1", time.Now())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "lando_norris_win", quotes[0].SelectionKey)
}

func TestEventQuotesMissingPreferredBookmaker(t *testing.T) {
	_, err := newTestClient(t, "betmgm").EventQuotes(context.Background(), "ev1", time.Now())
	assert.ErrorIs(t, err, ErrNoBookmaker)
}

func TestQuotesSkipPricesThatRoundToEvens(t *testing.T) {
	price := func(v float64) *float64 { return &v }
	bm := rawBookmaker{Key: "draftkings", Markets: []rawMarket{{
		Key: "outrights",
		Outcomes: []rawOutcome{
			{Name: "Max Verstappen", Price: price(1.00001)},
			{Name: "Lando Norris", Price: price(1.0002)},
			{Name: "Charles Leclerc", Price: price(0.5)},
		},
	}}}

	quotes := quotesFromBookmaker("ev1", bm, time.Now())
	require.Len(t, quotes, 1)
	assert.Equal(t, "lando_norris_win", quotes[0].SelectionKey)
	assert.Equal(t, "1.0002", quotes[0].DecimalOdds.String())
	for _, q := range quotes {
		assert.True(t, q.DecimalOdds.GreaterThan(decimal.NewFromInt(1)))
	}
}
