// Package oddsapi provides The Odds API adapter used to price race markets.
package oddsapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/albapepper/pitlane/internal/model"
	"github.com/albapepper/pitlane/internal/provider"
)

const (
	DefaultBaseURL = "https://api.the-odds-api.com/v4"
	ProviderName   = "the-odds-api"
)

// Options selects what to fetch per event.
type Options struct {
	SportKey  string
	Regions   string
	Markets   string
	Bookmaker string // preferred bookmaker key; empty means first returned
}

// Client fetches events and outright odds.
type Client struct {
	http   *provider.Client
	opts   Options
	logger *slog.Logger
}

// NewClient creates an odds client. The API key travels as a query param.
func NewClient(baseURL, apiKey string, opts Options, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if opts.SportKey == "" {
		opts.SportKey = "motorsport_f1"
	}
	if opts.Regions == "" {
		opts.Regions = "us"
	}
	if opts.Markets == "" {
		opts.Markets = "outrights"
	}
	return &Client{
		http: provider.NewClient(provider.ClientConfig{
			Name:              ProviderName,
			BaseURL:           strings.TrimRight(baseURL, "/"),
			Timeout:           timeout,
			RequestsPerMinute: 120,
			Query:             url.Values{"apiKey": {apiKey}},
		}, logger),
		opts:   opts,
		logger: logger,
	}
}

// Name identifies the provider on stored markets.
func (c *Client) Name() string { return ProviderName }

type rawEvent struct {
	ID           string `json:"id"`
	SportKey     string `json:"sport_key"`
	CommenceTime string `json:"commence_time"`
	HomeTeam     string `json:"home_team"`
	AwayTeam     string `json:"away_team"`
}

type rawOutcome struct {
	Name  string   `json:"name"`
	Price *float64 `json:"price"`
}

type rawMarket struct {
	Key        string       `json:"key"`
	LastUpdate string       `json:"last_update"`
	Outcomes   []rawOutcome `json:"outcomes"`
}

type rawBookmaker struct {
	Key     string      `json:"key"`
	Title   string      `json:"title"`
	Markets []rawMarket `json:"markets"`
}

type rawEventOdds struct {
	rawEvent
	Bookmakers []rawBookmaker `json:"bookmakers"`
}

// Events lists upcoming events for the configured sport. Events without a
// parseable commence time are dropped.
func (c *Client) Events(ctx context.Context) ([]provider.OddsEvent, error) {
	var raw []rawEvent
	if err := c.http.GetJSON(ctx, "/sports/"+url.PathEscape(c.opts.SportKey)+"/events", nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	out := make([]provider.OddsEvent, 0, len(raw))
	for _, r := range raw {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(r.CommenceTime))
		if err != nil || r.ID == "" {
			continue
		}
		out = append(out, provider.OddsEvent{
			ID:           r.ID,
			SportKey:     r.SportKey,
			CommenceTime: t.UTC(),
			HomeTeam:     strings.TrimSpace(r.HomeTeam),
			AwayTeam:     strings.TrimSpace(r.AwayTeam),
		})
	}
	return out, nil
}

// ErrNoBookmaker is returned when an event has no usable bookmaker.
var ErrNoBookmaker = errors.New("no bookmaker in response")

// EventQuotes fetches one event's odds and flattens the chosen bookmaker's
// markets into quotes. now stamps quotes whose market has no last_update.
func (c *Client) EventQuotes(ctx context.Context, eventID string, now time.Time) ([]provider.MarketQuote, error) {
	params := url.Values{
		"regions":    {c.opts.Regions},
		"markets":    {c.opts.Markets},
		"oddsFormat": {"decimal"},
	}
	if c.opts.Bookmaker != "" {
		params.Set("bookmakers", c.opts.Bookmaker)
	}

	var raw rawEventOdds
	path := "/sports/" + url.PathEscape(c.opts.SportKey) + "/events/" + url.PathEscape(eventID) + "/odds"
	if err := c.http.GetJSON(ctx, path, params, &raw); err != nil {
		return nil, fmt.Errorf("fetch odds for event %s: %w", eventID, err)
	}

	bm, ok := pickBookmaker(raw.Bookmakers, c.opts.Bookmaker)
	if !ok {
		return nil, ErrNoBookmaker
	}
	return quotesFromBookmaker(eventID, bm, now), nil
}

func pickBookmaker(bookmakers []rawBookmaker, preferred string) (rawBookmaker, bool) {
	if preferred != "" {
		for _, b := range bookmakers {
			if b.Key == preferred {
				return b, true
			}
		}
		return rawBookmaker{}, false
	}
	if len(bookmakers) == 0 {
		return rawBookmaker{}, false
	}
	return bookmakers[0], true
}

func quotesFromBookmaker(eventID string, bm rawBookmaker, now time.Time) []provider.MarketQuote {
	var quotes []provider.MarketQuote
	for _, m := range bm.Markets {
		marketType := model.MarketTypeForProviderKey(m.Key)
		fetchedAt := now
		if t, err := time.Parse(time.RFC3339, m.LastUpdate); err == nil {
			fetchedAt = t.UTC()
		}
		for _, o := range m.Outcomes {
			if o.Price == nil || math.IsNaN(*o.Price) || math.IsInf(*o.Price, 0) {
				continue
			}
			// The stored four-decimal price must stay above evens.
			odds := decimal.NewFromFloat(*o.Price).Round(4)
			if odds.LessThanOrEqual(decimal.NewFromInt(1)) {
				continue
			}
			key := model.SelectionKey(o.Name, marketType)
			if key == marketType.SelectionSuffix() {
				continue
			}
			quotes = append(quotes, provider.MarketQuote{
				Provider:         ProviderName,
				ProviderMarketID: eventID + ":" + bm.Key + ":" + m.Key,
				MarketType:       marketType,
				SelectionKey:     key,
				SelectionLabel:   strings.TrimSpace(o.Name),
				DecimalOdds:      odds,
				FetchedAt:        fetchedAt,
			})
		}
	}
	return quotes
}
