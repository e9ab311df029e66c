// Package config reads the simulator's environment configuration and the
// optional YAML policy file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

var (
	// ErrMissingCredential means live mode lacks the sink credential or target.
	ErrMissingCredential = errors.New("missing required credential")
	// ErrInvalidConfig means a variable holds an unusable value.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// DateLayout is the format of BACKFILL_START and BACKFILL_END.
const DateLayout = "2006-01-02"

// Mode is the command a configuration is validated for.
type Mode string

const (
	ModeRun      Mode = "run"
	ModeBackfill Mode = "backfill"
	ModeVerify   Mode = "verify"
	ModePersonas Mode = "personas"
)

// Sink kinds.
const (
	SinkPostHog    = "posthog"
	SinkClickHouse = "clickhouse"
)

// Config is the whole environment surface. Each field maps to the upper-case
// environment variable of its koanf key.
type Config struct {
	BaseURL       string  `koanf:"hogflix_base_url"`
	PostHogHost   string  `koanf:"posthog_host"`
	PostHogAPIKey string  `koanf:"posthog_api_key"`
	Sink          string  `koanf:"sink"`
	ClickHouseDSN string  `koanf:"clickhouse_dsn"`
	SinkBatchSize int     `koanf:"sink_batch_size"`
	SinkRPS       float64 `koanf:"sink_rps"`

	PersonaStore       string `koanf:"persona_store"`
	PersonaStoreDriver string `koanf:"persona_store_driver"`
	PersonaCount       int    `koanf:"persona_count"`
	MaxBatch           int    `koanf:"max_batch"`
	Concurrency        int    `koanf:"concurrency"`

	Browser    string `koanf:"browser"`
	ChromePath string `koanf:"chrome_path"`
	Headless   bool   `koanf:"headless"`
	Seed       int64  `koanf:"seed"`

	BackfillStart      string  `koanf:"backfill_start"`
	BackfillEnd        string  `koanf:"backfill_end"`
	BackfillPersonas   int     `koanf:"backfill_personas"`
	BackfillAvgEvents  float64 `koanf:"backfill_avg_events"`
	BackfillPauseEvery int     `koanf:"backfill_pause_every"`

	DryRun         bool   `koanf:"dry_run"`
	Debug          bool   `koanf:"debug"`
	LogFormat      string `koanf:"log_format"`
	PolicyFile     string `koanf:"policy_file"`
	CatalogFile    string `koanf:"catalog_file"`
	PushgatewayURL string `koanf:"pushgateway_url"`
}

// Defaults returns the configuration used for unset variables.
func Defaults() Config {
	return Config{
		BaseURL:            "http://localhost:8080",
		PostHogHost:        "https://us.i.posthog.com",
		Sink:               SinkPostHog,
		SinkBatchSize:      20,
		PersonaStore:       "personas.json",
		PersonaStoreDriver: "file",
		PersonaCount:       120,
		MaxBatch:           25,
		Concurrency:        1,
		Browser:            "chrome",
		Headless:           true,
		BackfillPersonas:   50,
		BackfillAvgEvents:  12,
		BackfillPauseEvery: 100,
		LogFormat:          "json",
	}
}

// knownKeys holds every koanf key of Config so unrelated environment
// variables are never loaded.
var knownKeys = func() map[string]bool {
	keys := map[string]bool{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("koanf"); tag != "" {
			keys[tag] = true
		}
	}
	return keys
}()

// Load reads dotenv files (default ".env"; missing files are ignored), then
// the process environment. Variables already set in the environment win
// over dotenv values.
func Load(dotenvFiles ...string) (*Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if !knownKeys[key] {
			return ""
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// Live reports whether events leave the process.
func (c *Config) Live() bool { return !c.DryRun }

// Validate checks the configuration for mode. Live runs and backfills need
// the sink credential; dry runs never do.
func (c *Config) Validate(mode Mode) error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		invalid("HOGFLIX_BASE_URL %q is not an absolute URL", c.BaseURL)
	}
	switch c.Sink {
	case SinkPostHog, SinkClickHouse:
	default:
		invalid("SINK must be %q or %q, got %q", SinkPostHog, SinkClickHouse, c.Sink)
	}
	switch c.PersonaStoreDriver {
	case "file", "sqlite3", "libsql", "postgres":
	default:
		invalid("PERSONA_STORE_DRIVER %q is not one of file, sqlite3, libsql, postgres", c.PersonaStoreDriver)
	}
	if c.PersonaStore == "" {
		invalid("PERSONA_STORE must not be empty")
	}
	switch c.Browser {
	case "chrome", "sim":
	default:
		invalid("BROWSER must be chrome or sim, got %q", c.Browser)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		invalid("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	if c.PersonaCount < 0 || c.MaxBatch < 0 || c.Concurrency < 0 || c.SinkBatchSize < 0 || c.SinkRPS < 0 {
		invalid("counts and rates must not be negative")
	}

	if (mode == ModeRun || mode == ModeBackfill) && c.Live() {
		switch c.Sink {
		case SinkPostHog:
			if c.PostHogAPIKey == "" {
				errs = append(errs, fmt.Errorf("%w: POSTHOG_API_KEY is required unless DRY_RUN is set", ErrMissingCredential))
			}
			if c.PostHogHost == "" {
				errs = append(errs, fmt.Errorf("%w: POSTHOG_HOST is required unless DRY_RUN is set", ErrMissingCredential))
			}
		case SinkClickHouse:
			if c.ClickHouseDSN == "" {
				errs = append(errs, fmt.Errorf("%w: CLICKHOUSE_DSN is required when SINK=clickhouse unless DRY_RUN is set", ErrMissingCredential))
			}
		}
	}

	if mode == ModeBackfill {
		if _, _, err := c.BackfillRange(); err != nil {
			errs = append(errs, err)
		}
		if c.BackfillPersonas <= 0 {
			invalid("BACKFILL_PERSONAS must be positive")
		}
		if c.BackfillAvgEvents <= 0 {
			invalid("BACKFILL_AVG_EVENTS must be positive")
		}
	}
	return errors.Join(errs...)
}

// BackfillRange parses the inclusive UTC date range.
func (c *Config) BackfillRange() (start, end time.Time, err error) {
	if c.BackfillStart == "" || c.BackfillEnd == "" {
		return start, end, fmt.Errorf("%w: BACKFILL_START and BACKFILL_END are required (YYYY-MM-DD)", ErrInvalidConfig)
	}
	start, err = time.Parse(DateLayout, c.BackfillStart)
	if err != nil {
		return start, end, fmt.Errorf("%w: BACKFILL_START %q: want YYYY-MM-DD", ErrInvalidConfig, c.BackfillStart)
	}
	end, err = time.Parse(DateLayout, c.BackfillEnd)
	if err != nil {
		return start, end, fmt.Errorf("%w: BACKFILL_END %q: want YYYY-MM-DD", ErrInvalidConfig, c.BackfillEnd)
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("%w: BACKFILL_END %s is before BACKFILL_START %s", ErrInvalidConfig, c.BackfillEnd, c.BackfillStart)
	}
	return start, end, nil
}
