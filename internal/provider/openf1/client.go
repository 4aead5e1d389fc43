// Package openf1 provides the OpenF1 adapter: the fallback schedule source
// and the race-result source (sessions, classification, drivers, laps).
package openf1

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/albapepper/pitlane/internal/provider"
)

const DefaultBaseURL = "https://api.openf1.org/v1"

// RaceSessionName filters sessions down to the main race.
const RaceSessionName = "Race"

// Client talks to the public OpenF1 API.
type Client struct {
	http   *provider.Client
	logger *slog.Logger
}

// NewClient creates an OpenF1 client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http: provider.NewClient(provider.ClientConfig{
			Name:              "openf1",
			BaseURL:           strings.TrimRight(baseURL, "/"),
			Timeout:           timeout,
			RequestsPerMinute: 600,
		}, logger),
		logger: logger,
	}
}

// Name identifies the source in ingestion summaries.
func (c *Client) Name() string { return "openf1" }

type rawSession struct {
	SessionKey  int    `json:"session_key"`
	SessionName string `json:"session_name"`
	CountryName string `json:"country_name"`
	DateStart   string `json:"date_start"`
	DateEnd     string `json:"date_end"`
	Location    string `json:"location"`
	MeetingName string `json:"meeting_name"`
	Year        int    `json:"year"`
}

func (r rawSession) toSession() provider.Session {
	return provider.Session{
		Key:         r.SessionKey,
		Name:        strings.TrimSpace(r.SessionName),
		MeetingName: strings.TrimSpace(r.MeetingName),
		Location:    strings.TrimSpace(r.Location),
		CountryName: strings.TrimSpace(r.CountryName),
		Year:        r.Year,
		Start:       parseTime(r.DateStart),
		End:         parseTime(r.DateEnd),
	}
}

type rawSessionResult struct {
	DriverNumber int  `json:"driver_number"`
	Position     *int `json:"position"`
	DNF          bool `json:"dnf"`
	DNS          bool `json:"dns"`
	DSQ          bool `json:"dsq"`
}

type rawDriver struct {
	DriverNumber int    `json:"driver_number"`
	FullName     string `json:"full_name"`
	LastName     string `json:"last_name"`
	NameAcronym  string `json:"name_acronym"`
}

type rawLap struct {
	DriverNumber int      `json:"driver_number"`
	LapDuration  *float64 `json:"lap_duration"`
}

func (c *Client) sessions(ctx context.Context, params url.Values) ([]provider.Session, error) {
	var raw []rawSession
	if err := c.http.GetJSON(ctx, "/sessions", params, &raw); err != nil {
		return nil, err
	}
	out := make([]provider.Session, 0, len(raw))
	for _, r := range raw {
		if r.SessionKey == 0 {
			continue
		}
		out = append(out, r.toSession())
	}
	return out, nil
}

// RaceSessions returns candidate race sessions for a season, narrowed by
// country when one is given. Falls back to the whole season when the
// country lookup yields nothing. Fetch failures count as no candidates.
func (c *Client) RaceSessions(ctx context.Context, season int, country string) ([]provider.Session, error) {
	params := url.Values{"session_name": {RaceSessionName}, "year": {strconv.Itoa(season)}}

	if country = strings.TrimSpace(country); country != "" {
		byCountry := url.Values{"country_name": {country}}
		for k, v := range params {
			byCountry[k] = v
		}
		sessions, err := c.sessions(ctx, byCountry)
		if err != nil {
			c.logger.Warn("OpenF1 session lookup by country failed", "country", country, "error", err)
		}
		if len(sessions) > 0 {
			return sessions, nil
		}
	}

	sessions, err := c.sessions(ctx, params)
	if err != nil {
		c.logger.Warn("OpenF1 session lookup by year failed", "season", season, "error", err)
		return nil, nil
	}
	return sessions, nil
}

// SessionResults returns the classification of a session.
func (c *Client) SessionResults(ctx context.Context, sessionKey int) ([]provider.SessionResult, error) {
	var raw []rawSessionResult
	if err := c.http.GetJSON(ctx, "/session_result", sessionParams(sessionKey), &raw); err != nil {
		return nil, fmt.Errorf("session results %d: %w", sessionKey, err)
	}
	out := make([]provider.SessionResult, 0, len(raw))
	for _, r := range raw {
		if r.DriverNumber <= 0 {
			continue
		}
		out = append(out, provider.SessionResult{
			DriverNumber: r.DriverNumber,
			Position:     r.Position,
			DNF:          r.DNF,
			DNS:          r.DNS,
			DSQ:          r.DSQ,
		})
	}
	return out, nil
}

// Drivers returns the entry list of a session.
func (c *Client) Drivers(ctx context.Context, sessionKey int) ([]provider.Driver, error) {
	var raw []rawDriver
	if err := c.http.GetJSON(ctx, "/drivers", sessionParams(sessionKey), &raw); err != nil {
		return nil, fmt.Errorf("session drivers %d: %w", sessionKey, err)
	}
	out := make([]provider.Driver, 0, len(raw))
	for _, r := range raw {
		if r.DriverNumber <= 0 {
			continue
		}
		out = append(out, provider.Driver{
			Number:   r.DriverNumber,
			FullName: strings.TrimSpace(r.FullName),
			LastName: strings.TrimSpace(r.LastName),
			Acronym:  strings.TrimSpace(r.NameAcronym),
		})
	}
	return out, nil
}

// Laps returns every lap of a session.
func (c *Client) Laps(ctx context.Context, sessionKey int) ([]provider.Lap, error) {
	var raw []rawLap
	if err := c.http.GetJSON(ctx, "/laps", sessionParams(sessionKey), &raw); err != nil {
		return nil, fmt.Errorf("session laps %d: %w", sessionKey, err)
	}
	out := make([]provider.Lap, 0, len(raw))
	for _, r := range raw {
		out = append(out, provider.Lap{DriverNumber: r.DriverNumber, Duration: r.LapDuration})
	}
	return out, nil
}

// Season builds a fallback calendar from the season's race sessions.
// OpenF1 has no round numbers, so rounds follow chronological order.
func (c *Client) Season(ctx context.Context, season int) ([]provider.ScheduledRace, error) {
	var raw []rawSession
	params := url.Values{"session_name": {RaceSessionName}, "year": {strconv.Itoa(season)}}
	if err := c.http.GetJSON(ctx, "/sessions", params, &raw); err != nil {
		return nil, fmt.Errorf("fetch season %d sessions: %w", season, err)
	}
	return sessionsToRaces(season, raw), nil
}

func sessionsToRaces(season int, raw []rawSession) []provider.ScheduledRace {
	seen := make(map[string]bool, len(raw))
	sessions := make([]provider.Session, 0, len(raw))
	for _, r := range raw {
		key := r.MeetingName + ":" + r.DateStart + ":" + r.CountryName
		if seen[key] {
			continue
		}
		seen[key] = true
		s := r.toSession()
		if s.Start == nil {
			continue
		}
		sessions = append(sessions, s)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Start.Before(*sessions[j].Start)
	})

	races := make([]provider.ScheduledRace, 0, len(sessions))
	for i, s := range sessions {
		round := i + 1
		name := raceName(s, round)
		races = append(races, provider.ScheduledRace{
			Season:    season,
			Round:     round,
			Slug:      provider.RaceSlug(season, round, name),
			Name:      name,
			Country:   s.CountryName,
			Circuit:   s.Location,
			StartTime: *s.Start,
		})
	}
	return races
}

func raceName(s provider.Session, round int) string {
	if strings.Contains(strings.ToLower(s.MeetingName), "grand prix") {
		return s.MeetingName
	}
	base := s.MeetingName
	if base == "" {
		base = s.CountryName
	}
	if base == "" {
		base = fmt.Sprintf("Round %d", round)
	}
	return strings.Join(strings.Fields(base+" Grand Prix"), " ")
}

func sessionParams(sessionKey int) url.Values {
	return url.Values{"session_key": {strconv.Itoa(sessionKey)}}
}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
