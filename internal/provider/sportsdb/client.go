// Package sportsdb provides the TheSportsDB schedule adapter, the primary
// source of the season calendar.
package sportsdb

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/albapepper/pitlane/internal/provider"
)

const (
	DefaultBaseURL  = "https://www.thesportsdb.com/api/v1/json"
	DefaultAPIKey   = "123"
	DefaultLeagueID = "4370"
)

// Client fetches season events from TheSportsDB.
type Client struct {
	http     *provider.Client
	leagueID string
	logger   *slog.Logger
}

// NewClient creates a TheSportsDB client. The API key is a path segment.
func NewClient(baseURL, apiKey, leagueID string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if apiKey == "" {
		apiKey = DefaultAPIKey
	}
	if leagueID == "" {
		leagueID = DefaultLeagueID
	}
	return &Client{
		http: provider.NewClient(provider.ClientConfig{
			Name:              "thesportsdb",
			BaseURL:           strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(apiKey),
			Timeout:           timeout,
			RequestsPerMinute: 30,
		}, logger),
		leagueID: leagueID,
		logger:   logger,
	}
}

// Name identifies the schedule source in ingestion summaries.
func (c *Client) Name() string { return "thesportsdb" }

type rawEvent struct {
	IDEvent           string `json:"idEvent"`
	StrEvent          string `json:"strEvent"`
	StrEventAlternate string `json:"strEventAlternate"`
	DateEvent         string `json:"dateEvent"`
	StrTime           string `json:"strTime"`
	StrTimestamp      string `json:"strTimestamp"`
	IntRound          string `json:"intRound"`
	StrCountry        string `json:"strCountry"`
	StrVenue          string `json:"strVenue"`
	StrCircuit        string `json:"strCircuit"`
	StrCity           string `json:"strCity"`
	StrDescriptionEN  string `json:"strDescriptionEN"`
	StrThumb          string `json:"strThumb"`
	StrBanner         string `json:"strBanner"`
	StrPoster         string `json:"strPoster"`
	StrVideo          string `json:"strVideo"`
}

// Season returns the races of a season. Events without a parseable start
// time are dropped.
func (c *Client) Season(ctx context.Context, season int) ([]provider.ScheduledRace, error) {
	var payload struct {
		Events []rawEvent `json:"events"`
	}
	params := url.Values{"id": {c.leagueID}, "s": {strconv.Itoa(season)}}
	if err := c.http.GetJSON(ctx, "/eventsseason.php", params, &payload); err != nil {
		return nil, fmt.Errorf("fetch season %d: %w", season, err)
	}

	races := make([]provider.ScheduledRace, 0, len(payload.Events))
	for i, ev := range payload.Events {
		race, ok := eventToRace(season, i+1, ev)
		if !ok {
			c.logger.Debug("Skipping event without start time", "event_id", ev.IDEvent, "event", ev.StrEvent)
			continue
		}
		races = append(races, race)
	}
	return races, nil
}

func eventToRace(season, fallbackRound int, ev rawEvent) (provider.ScheduledRace, bool) {
	start, ok := parseStart(ev)
	if !ok {
		return provider.ScheduledRace{}, false
	}

	round := parseRound(ev.IntRound, fallbackRound)
	name := firstNonEmpty(ev.StrEvent, ev.StrEventAlternate)
	if name == "" {
		name = fmt.Sprintf("Round %d Grand Prix", round)
	}

	return provider.ScheduledRace{
		Season:          season,
		Round:           round,
		Slug:            provider.RaceSlug(season, round, name),
		Name:            name,
		Country:         strings.TrimSpace(ev.StrCountry),
		Circuit:         firstNonEmpty(ev.StrCircuit, ev.StrVenue),
		VenueName:       strings.TrimSpace(ev.StrVenue),
		City:            strings.TrimSpace(ev.StrCity),
		Description:     strings.TrimSpace(ev.StrDescriptionEN),
		ImageURL:        strings.TrimSpace(ev.StrThumb),
		BannerURL:       strings.TrimSpace(ev.StrBanner),
		PosterURL:       strings.TrimSpace(ev.StrPoster),
		HighlightsURL:   strings.TrimSpace(ev.StrVideo),
		SportsDBEventID: strings.TrimSpace(ev.IDEvent),
		StartTime:       start,
	}, true
}

// parseStart prefers the combined timestamp, then date plus time (noon
// when absent). All provider times are UTC.
func parseStart(ev rawEvent) (time.Time, bool) {
	if ts := strings.TrimSpace(ev.StrTimestamp); ts != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, ts); err == nil {
				return t.UTC(), true
			}
		}
	}

	date := strings.TrimSpace(ev.DateEvent)
	if date == "" {
		return time.Time{}, false
	}
	clock := strings.TrimSpace(ev.StrTime)
	if clock == "" {
		clock = "12:00:00"
	}
	clock = strings.TrimSuffix(strings.TrimSuffix(clock, "Z"), "+00:00")
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, date+"T"+clock); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseRound(raw string, fallback int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n > 0 {
		return n
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
