package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hogsim/internal/core"
	"hogsim/internal/logging"
)

// DefaultBatchSize is how many records the client buffers before sending.
const DefaultBatchSize = 20

// Capturer is the narrow interface every action depends on.
type Capturer interface {
	Capture(ctx context.Context, e Event) error
	Flush(ctx context.Context) error
}

// Transport delivers records to the analytics sink.
type Transport interface {
	Send(ctx context.Context, records []Record) error
	Close() error
}

// Stats counts what happened to captured events.
type Stats struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Invalid   int `json:"invalid"`
}

// ClientConfig configures a Client.
type ClientConfig struct {
	APIKey    string
	BaseURL   string // used to build $current_url from event paths
	BatchSize int
}

// Client buffers, enriches and sends events. One Client serves one batch run;
// it is passed to every component that emits, never held in a global.
type Client struct {
	transport Transport
	cfg       ClientConfig
	clock     core.Clock
	ids       io.Reader
	log       *zap.Logger

	mu      sync.Mutex
	pending []Record
	stats   Stats
}

// Option customises a Client.
type Option func(*Client)

// WithClock sets the clock used for default timestamps.
func WithClock(c core.Clock) Option { return func(cl *Client) { cl.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(cl *Client) { cl.log = logging.OrNop(l) } }

// WithIDSource sets the entropy used for per-event UUIDs. Passing a seeded
// core.Rand makes the whole record stream reproducible. Without one, ids
// come from crypto/rand.
func WithIDSource(r io.Reader) Option { return func(cl *Client) { cl.ids = r } }

// NewClient creates a Client around a transport.
func NewClient(t Transport, cfg ClientConfig, opts ...Option) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	c := &Client{
		transport: t,
		cfg:       cfg,
		clock:     core.RealClock{},
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capture validates and enriches e and queues it. When the queue reaches the
// batch size it is sent immediately. Invalid events are rejected with a
// warning and an ErrInvalidEvent error; they are never silently dropped.
func (c *Client) Capture(ctx context.Context, e Event) error {
	rec, err := Enrich(c.cfg.APIKey, c.cfg.BaseURL, e, c.clock.Now())
	if err != nil {
		c.mu.Lock()
		c.stats.Invalid++
		c.mu.Unlock()
		c.log.Warn("rejected event", zap.String("event", e.Name), zap.String("distinct_id", e.DistinctID), zap.Error(err))
		return err
	}
	rec.UUID = c.newID()

	c.mu.Lock()
	c.pending = append(c.pending, rec)
	c.stats.Attempted++
	var batch []Record
	if len(c.pending) >= c.cfg.BatchSize {
		batch = c.pending
		c.pending = nil
	}
	c.mu.Unlock()

	if batch != nil {
		return c.send(ctx, batch)
	}
	return nil
}

func (c *Client) newID() string {
	if c.ids != nil {
		if id, err := uuid.NewRandomFromReader(c.ids); err == nil {
			return id.String()
		}
	}
	id, err := uuid.NewRandom()
	if err != nil {
		c.log.Warn("event uuid unavailable", zap.Error(err))
		return ""
	}
	return id.String()
}

// Flush sends everything queued so far.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return c.send(ctx, batch)
}

// Close flushes and closes the transport.
func (c *Client) Close(ctx context.Context) error {
	flushErr := c.Flush(ctx)
	return errors.Join(flushErr, c.transport.Close())
}

// Stats returns a snapshot of the counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Client) send(ctx context.Context, batch []Record) error {
	err := c.transport.Send(ctx, batch)

	c.mu.Lock()
	if err != nil {
		c.stats.Failed += len(batch)
	} else {
		c.stats.Sent += len(batch)
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Error("event delivery failed", zap.Int("dropped", len(batch)), zap.Error(err))
		return fmt.Errorf("sending %d events: %w", len(batch), err)
	}
	c.log.Debug("events delivered", zap.Int("count", len(batch)))
	return nil
}
