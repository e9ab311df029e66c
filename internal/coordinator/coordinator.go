// Package coordinator runs per-persona jobs with bounded parallelism.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"hogsim/internal/core"
)

// Job is one unit of work, usually one persona's visit.
type Job func(ctx context.Context)

// Coordinator starts jobs in goroutines, at most Concurrency at a time. A
// panicking job is recovered and reported as a failed step; it never takes
// the batch down.
type Coordinator struct {
	wg       sync.WaitGroup
	sem      chan struct{}
	reporter core.Reporter
	active   atomic.Int32
	started  atomic.Int64
	panics   atomic.Int64
}

// NewCoordinator creates a Coordinator. concurrency < 1 means 1.
func NewCoordinator(concurrency int, reporter core.Reporter) *Coordinator {
	if concurrency < 1 {
		concurrency = 1
	}
	if reporter == nil {
		reporter = core.NullReporter
	}
	return &Coordinator{
		sem:      make(chan struct{}, concurrency),
		reporter: reporter,
	}
}

// Go waits for a free slot and starts job. It returns false without
// starting the job when ctx ends first.
func (c *Coordinator) Go(ctx context.Context, actorID string, job Job) bool {
	select {
	case <-ctx.Done():
		return false
	case c.sem <- struct{}{}:
	}
	if ctx.Err() != nil {
		<-c.sem
		return false
	}

	c.started.Add(1)
	c.active.Add(1)
	c.wg.Add(1)
	go func() {
		defer func() {
			<-c.sem
			c.active.Add(-1)
			c.wg.Done()
		}()
		defer c.recoverPanic(actorID)
		job(ctx)
	}()
	return true
}

// Wait blocks until every started job has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// ActiveActors returns the number of jobs currently running.
func (c *Coordinator) ActiveActors() int {
	return int(c.active.Load())
}

// Started returns how many jobs were started.
func (c *Coordinator) Started() int {
	return int(c.started.Load())
}

// Panics returns how many jobs panicked.
func (c *Coordinator) Panics() int {
	return int(c.panics.Load())
}

// recoverPanic recovers from panics in job goroutines and reports them as failed events.
func (c *Coordinator) recoverPanic(actorID string) {
	if r := recover(); r != nil {
		c.panics.Add(1)
		c.reporter.Report(core.Event{
			ActorID: actorID,
			Step:    "panic",
			Status:  core.StatusFailed,
			Error:   fmt.Sprintf("panic: %v", r),
		})
	}
}
