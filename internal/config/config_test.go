package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears key for the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func clearEnv(t *testing.T) {
	t.Helper()
	for key := range knownKeys {
		unsetEnv(t, upper(key))
	}
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

func noDotenv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(noDotenv(t))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOGFLIX_BASE_URL", "https://hogflix.example")
	t.Setenv("POSTHOG_API_KEY", "phc_123")
	t.Setenv("PERSONA_COUNT", "42")
	t.Setenv("MAX_BATCH", "0")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("SINK_RPS", "2.5")
	t.Setenv("SEED", "7")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := Load(noDotenv(t))
	require.NoError(t, err)
	assert.Equal(t, "https://hogflix.example", cfg.BaseURL)
	assert.Equal(t, "phc_123", cfg.PostHogAPIKey)
	assert.Equal(t, 42, cfg.PersonaCount)
	assert.Equal(t, 0, cfg.MaxBatch)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, 2.5, cfg.SinkRPS)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, Defaults().Sink, cfg.Sink)
}

func TestLoad_DotenvDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PERSONA_COUNT=99\nDEBUG=1\n"), 0o600))
	t.Setenv("PERSONA_COUNT", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.PersonaCount)
	assert.True(t, cfg.Debug)
}

func TestLoad_BadNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv("PERSONA_COUNT", "many")

	_, err := Load(noDotenv(t))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate_LiveRequiresAPIKey(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate(ModeRun)
	require.ErrorIs(t, err, ErrMissingCredential)
	assert.Contains(t, err.Error(), "POSTHOG_API_KEY")

	cfg.PostHogAPIKey = "phc_123"
	assert.NoError(t, cfg.Validate(ModeRun))
}

func TestValidate_DryRunNeverRequiresCredential(t *testing.T) {
	cfg := Defaults()
	cfg.DryRun = true
	assert.NoError(t, cfg.Validate(ModeRun))

	cfg.Sink = SinkClickHouse
	assert.NoError(t, cfg.Validate(ModeRun))
}

func TestValidate_ClickHouseNeedsDSN(t *testing.T) {
	cfg := Defaults()
	cfg.Sink = SinkClickHouse
	err := cfg.Validate(ModeRun)
	require.ErrorIs(t, err, ErrMissingCredential)
	assert.Contains(t, err.Error(), "CLICKHOUSE_DSN")

	cfg.ClickHouseDSN = "clickhouse://localhost:9000/default"
	assert.NoError(t, cfg.Validate(ModeRun))
}

func TestValidate_VerifyAndPersonasNeedNoCredential(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate(ModeVerify))
	assert.NoError(t, cfg.Validate(ModePersonas))
}

func TestValidate_InvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative base url", func(c *Config) { c.BaseURL = "hogflix" }},
		{"unknown sink", func(c *Config) { c.Sink = "kafka" }},
		{"unknown store driver", func(c *Config) { c.PersonaStoreDriver = "mongo" }},
		{"unknown browser", func(c *Config) { c.Browser = "firefox" }},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }},
		{"negative batch", func(c *Config) { c.MaxBatch = -1 }},
		{"empty store", func(c *Config) { c.PersonaStore = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.DryRun = true
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(ModeRun), ErrInvalidConfig)
		})
	}
}

func TestValidate_Backfill(t *testing.T) {
	cfg := Defaults()
	cfg.DryRun = true
	assert.ErrorIs(t, cfg.Validate(ModeBackfill), ErrInvalidConfig)

	cfg.BackfillStart = "2024-03-01"
	cfg.BackfillEnd = "2024-03-14"
	require.NoError(t, cfg.Validate(ModeBackfill))

	start, end, err := cfg.BackfillRange()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), end)

	cfg.BackfillEnd = "2024-02-01"
	assert.ErrorIs(t, cfg.Validate(ModeBackfill), ErrInvalidConfig)

	cfg.BackfillEnd = "14/03/2024"
	assert.ErrorIs(t, cfg.Validate(ModeBackfill), ErrInvalidConfig)
}

func TestValidate_LiveBackfillRequiresAPIKey(t *testing.T) {
	cfg := Defaults()
	cfg.BackfillStart = "2024-03-01"
	cfg.BackfillEnd = "2024-03-01"
	assert.ErrorIs(t, cfg.Validate(ModeBackfill), ErrMissingCredential)
}
