// Package collector aggregates action and session outcomes reported during a
// batch and turns them into a run report.
package collector

import (
	"sync"
	"sync/atomic"
	"time"

	"hogsim/internal/core"
)

const bufferSize = 1000

// Collector aggregates outcomes from sessions. It implements core.Reporter.
type Collector struct {
	events  []core.Event
	ch      chan core.Event
	done    chan struct{}
	mu      sync.Mutex
	clock   core.Clock
	dropped atomic.Int64

	startTime time.Time
	endTime   time.Time
}

// NewCollector creates a Collector and starts its collection goroutine.
func NewCollector(clock core.Clock) *Collector {
	if clock == nil {
		clock = core.RealClock{}
	}
	c := &Collector{
		events:    make([]core.Event, 0),
		ch:        make(chan core.Event, bufferSize),
		done:      make(chan struct{}),
		clock:     clock,
		startTime: clock.Now(),
	}
	go c.collect()
	return c
}

func (c *Collector) collect() {
	for event := range c.ch {
		c.mu.Lock()
		c.events = append(c.events, event)
		c.mu.Unlock()
	}
	close(c.done)
}

// Report sends an outcome to the collector. It never blocks; outcomes that
// do not fit in the buffer are counted as dropped.
func (c *Collector) Report(event core.Event) {
	select {
	case c.ch <- event:
	default:
		c.dropped.Add(1)
	}
}

// Close stops accepting outcomes and waits for the buffer to drain.
func (c *Collector) Close() {
	c.mu.Lock()
	c.endTime = c.clock.Now()
	c.mu.Unlock()
	close(c.ch)
	<-c.done
}

// Events returns a copy of collected outcomes.
func (c *Collector) Events() []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]core.Event, len(c.events))
	copy(result, c.events)
	return result
}

// DroppedEvents reports outcomes lost to a full buffer.
func (c *Collector) DroppedEvents() int64 {
	return c.dropped.Load()
}

// Duration is the batch duration so far, or start to Close once closed.
func (c *Collector) Duration() time.Duration {
	c.mu.Lock()
	end := c.endTime
	c.mu.Unlock()
	if !end.IsZero() {
		return end.Sub(c.startTime)
	}
	return c.clock.Since(c.startTime)
}

// Compute returns metrics over everything collected so far. It is safe to
// call while sessions are still reporting.
func (c *Collector) Compute() *Metrics {
	return ComputeMetrics(c.Events(), c.Duration())
}
