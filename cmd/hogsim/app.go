package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hogsim/internal/browser"
	"hogsim/internal/catalog"
	"hogsim/internal/config"
	"hogsim/internal/core"
	"hogsim/internal/events"
	"hogsim/internal/logging"
	"hogsim/internal/persona"
	"hogsim/internal/persona/sqlstore"
	"hogsim/internal/ratelimit"
)

const closeGrace = 30 * time.Second

// app holds what every command builds from the environment.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	policy  *config.PolicyFile
	catalog *catalog.Catalog

	closers []func(context.Context) error
}

// newApp loads and validates the configuration for mode. Nothing touches
// the network or the persona store before validation passes.
func newApp(mode config.Mode) (*app, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}
	if dryRun {
		cfg.DryRun = true
	}
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	log, err := logging.New(logging.Config{Debug: cfg.Debug, Format: cfg.LogFormat})
	if err != nil {
		return nil, err
	}
	pol, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	cat := catalog.Default()
	if cfg.CatalogFile != "" {
		if cat, err = catalog.LoadFile(cfg.CatalogFile); err != nil {
			return nil, err
		}
	}
	return &app{cfg: cfg, log: log, policy: pol, catalog: cat}, nil
}

// close runs the registered closers in reverse order.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeGrace)
	defer cancel()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	_ = a.log.Sync()
	return errors.Join(errs...)
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// rand returns the run's generator. SEED=0 means a time-based seed.
func (a *app) rand() *core.Rand {
	seed := a.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	a.log.Debug("random seed", zap.Int64("seed", seed))
	return core.NewRand(seed)
}

func (a *app) openStore(ctx context.Context) (persona.Store, error) {
	if a.cfg.PersonaStoreDriver == "file" {
		return persona.NewFileStore(a.cfg.PersonaStore), nil
	}
	st, err := sqlstore.Open(ctx, a.cfg.PersonaStoreDriver, a.cfg.PersonaStore)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return st.Close() })
	return st, nil
}

func (a *app) driver() (browser.Driver, error) {
	if a.cfg.Browser == "sim" {
		return browser.NewSim(a.catalog, a.cfg.BaseURL)
	}
	return browser.NewChrome(browser.ChromeConfig{
		ExecPath: a.cfg.ChromePath,
		Headless: a.cfg.Headless,
		Logger:   a.log,
	}), nil
}

// transport picks the event sink. Dry runs swap only the transport; events
// are built exactly as in a live run.
func (a *app) transport(ctx context.Context) (events.Transport, error) {
	switch {
	case a.cfg.DryRun:
		return events.NewDryRunTransport(a.log), nil
	case a.cfg.Sink == config.SinkClickHouse:
		t, err := events.NewClickHouseTransport(ctx, a.cfg.ClickHouseDSN, "")
		if err != nil {
			return nil, fmt.Errorf("clickhouse sink: %w", err)
		}
		return t, nil
	default:
		hc := events.HTTPConfig{Host: a.cfg.PostHogHost, APIKey: a.cfg.PostHogAPIKey}
		if a.cfg.SinkRPS > 0 {
			hc.RateLimiter = ratelimit.NewRateLimiter(a.cfg.SinkRPS)
		}
		if a.cfg.Debug {
			hc.Debug = events.NewDebugLogger(a.log)
		}
		return events.NewHTTPTransport(hc), nil
	}
}

// eventClient builds the client and registers it for a final flush.
func (a *app) eventClient(ctx context.Context, clock core.Clock, opts ...events.Option) (*events.Client, error) {
	t, err := a.transport(ctx)
	if err != nil {
		return nil, err
	}
	opts = append([]events.Option{events.WithClock(clock), events.WithLogger(a.log)}, opts...)
	c := events.NewClient(t, events.ClientConfig{
		APIKey:    a.cfg.PostHogAPIKey,
		BaseURL:   a.cfg.BaseURL,
		BatchSize: a.cfg.SinkBatchSize,
	}, opts...)
	a.onClose(c.Close)
	return c, nil
}

// replayableIDs makes event uuids a function of SEED, so re-running a
// backfill with the same seed repeats its ids and the sink can dedupe. Batch
// runs share one SEED across invocations and keep random ids.
func (a *app) replayableIDs() []events.Option {
	if a.cfg.Seed == 0 {
		return nil
	}
	return []events.Option{events.WithIDSource(core.NewRand(a.cfg.Seed))}
}
