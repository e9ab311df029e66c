// Package core defines the fundamental types shared by the simulator packages.
package core

import (
	"time"
)

// Status is the result of executing one action.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Event represents a single measurement from a persona's session: one action
// outcome, or the persona-level result when Step is empty.
type Event struct {
	ActorID   string
	Timestamp time.Time
	Scenario  string
	Step      string
	Status    Status
	Duration  time.Duration
	Error     string
	Emitted   int // analytics events emitted by the step
}

// Reporter is the interface sessions use to send outcomes to the Collector.
type Reporter interface {
	Report(Event)
}

// NullReporter discards all events.
var NullReporter Reporter = nullReporter{}

type nullReporter struct{}

func (nullReporter) Report(Event) {}

// MultiReporter fans each event out to every reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) Report(e Event) {
	for _, r := range m {
		r.Report(e)
	}
}
