// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/ingest.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Table names, matching schema.sql
// --------------------------------------------------------------------------

const (
	RacesTable             = "races"
	MarketsTable           = "markets"
	BetsTable              = "bets"
	RaceResultsTable       = "race_results"
	LeagueMembersTable     = "league_members"
	RaceLeagueWinnersTable = "race_league_winners"
)

// Providers
const (
	ResultsProviderOpenF1 = "openf1"
	OddsProviderName      = "the-odds-api"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Auth
	SettlementSecret string
	JWTSecret        string

	// Schedule providers
	SportsDBAPIKey   string
	SportsDBLeagueID string
	SportsDBBaseURL  string
	OpenF1BaseURL    string

	// Odds provider
	OddsAPIKey       string
	OddsAPIBaseURL   string
	OddsAPISportKey  string
	OddsAPIRegions   string
	OddsAPIMarkets   string
	OddsAPIBookmaker string

	// Results
	ResultsProvider string
	ProviderTimeout time.Duration

	// Sweep + scheduler
	SweepBatchSize   int
	SweepWorkers     int
	SchedulerEnabled bool
	SweepCron        string
	ScheduleCron     string
	CurrentSeason    int

	// Cache
	CacheEnabled bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}
	cfg := FromEnv()
	cfg.DatabaseURL = dbURL
	return cfg, nil
}

// FromEnv reads every setting except the mandatory database URL check.
// Used directly by tests and tooling that run against the in-memory store.
func FromEnv() *Config {
	return &Config{
		DatabaseURL:    envOr("DATABASE_URL", ""),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		SettlementSecret: envOr("SETTLEMENT_CRON_SECRET", envOr("CRON_SECRET", "")),
		JWTSecret:        envOr("AUTH_JWT_SECRET", ""),

		SportsDBAPIKey:   envOr("THESPORTSDB_API_KEY", "123"),
		SportsDBLeagueID: envOr("THESPORTSDB_LEAGUE_ID", "4370"),
		SportsDBBaseURL:  envOr("THESPORTSDB_BASE_URL", "https://www.thesportsdb.com/api/v1/json"),
		OpenF1BaseURL:    envOr("OPENF1_BASE_URL", "https://api.openf1.org/v1"),

		OddsAPIKey:       envOr("ODDS_API_KEY", ""),
		OddsAPIBaseURL:   envOr("ODDS_API_BASE_URL", "https://api.the-odds-api.com/v4"),
		OddsAPISportKey:  envOr("ODDS_API_SPORT_KEY", "motorsport_f1"),
		OddsAPIRegions:   envOr("ODDS_API_REGIONS", "us"),
		OddsAPIMarkets:   envOr("ODDS_API_MARKETS", "outrights"),
		OddsAPIBookmaker: envOr("ODDS_API_BOOKMAKER", ""),

		ResultsProvider: strings.ToLower(envOr("F1_RESULTS_PROVIDER", ResultsProviderOpenF1)),
		ProviderTimeout: time.Duration(envInt("PROVIDER_TIMEOUT_SECONDS", 15)) * time.Second,

		SweepBatchSize:   envInt("SWEEP_BATCH_SIZE", 20),
		SweepWorkers:     envInt("SWEEP_WORKERS", 1),
		SchedulerEnabled: envBool("SCHEDULER_ENABLED", false),
		SweepCron:        envOr("SWEEP_CRON", "*/10 * * * *"),
		ScheduleCron:     envOr("SCHEDULE_CRON", "0 */6 * * *"),
		CurrentSeason:    envInt("CURRENT_SEASON", time.Now().UTC().Year()),

		CacheEnabled: envBool("CACHE_ENABLED", true),
	}
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// OddsEnabled reports whether an odds API key is configured.
func (c *Config) OddsEnabled() bool {
	return c.OddsAPIKey != ""
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
