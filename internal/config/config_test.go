package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pitlane")
	t.Setenv("SETTLEMENT_CRON_SECRET", "")
	t.Setenv("CRON_SECRET", "")
	t.Setenv("F1_RESULTS_PROVIDER", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "123", cfg.SportsDBAPIKey)
	assert.Equal(t, "4370", cfg.SportsDBLeagueID)
	assert.Equal(t, "motorsport_f1", cfg.OddsAPISportKey)
	assert.Equal(t, "us", cfg.OddsAPIRegions)
	assert.Equal(t, "outrights", cfg.OddsAPIMarkets)
	assert.Equal(t, ResultsProviderOpenF1, cfg.ResultsProvider)
	assert.Equal(t, 15*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 20, cfg.SweepBatchSize)
	assert.Empty(t, cfg.SettlementSecret)
	assert.False(t, cfg.OddsEnabled())
}

func TestSettlementSecretFallsBackToCronSecret(t *testing.T) {
	t.Setenv("SETTLEMENT_CRON_SECRET", "")
	t.Setenv("CRON_SECRET", "legacy")
	assert.Equal(t, "legacy", FromEnv().SettlementSecret)

	t.Setenv("SETTLEMENT_CRON_SECRET", "primary")
	assert.Equal(t, "primary", FromEnv().SettlementSecret)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("PITLANE_TEST_LIST", " a, ,b ")
	assert.Equal(t, []string{"a", "b"}, envList("PITLANE_TEST_LIST", nil))

	t.Setenv("PITLANE_TEST_INT", "nope")
	assert.Equal(t, 7, envInt("PITLANE_TEST_INT", 7))

	t.Setenv("PITLANE_TEST_BOOL", "true")
	assert.True(t, envBool("PITLANE_TEST_BOOL", false))

	t.Setenv("F1_RESULTS_PROVIDER", "OpenF1")
	assert.Equal(t, "openf1", FromEnv().ResultsProvider)
}
