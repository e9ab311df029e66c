// Package events is the Event Sink Client: it validates and enriches
// behaviour events and hands them to a Transport.
//
// Every record leaving this package carries the synthetic marker so the
// analytics side can exclude simulated traffic from real-traffic views.
package events

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ErrInvalidEvent is returned when an event misses a required field.
var ErrInvalidEvent = errors.New("invalid event")

const (
	// SyntheticProperty marks every emitted event as simulated traffic.
	SyntheticProperty = "synthetic"
	// LibName identifies the emitter in the $lib property.
	LibName = "hogsim"
	// TimestampFormat is ISO-8601 with millisecond precision, always UTC.
	TimestampFormat = "2006-01-02T15:04:05.000Z"
)

// Properties is the open, event-specific part of an event.
type Properties map[string]any

// Event is what actions and the backfill emitter hand to the client.
// Name and DistinctID are required. A zero Timestamp means "now".
// Path, when set, is written as $pathname and $current_url since events
// emitted from outside a browser cannot rely on implicit page capture.
type Event struct {
	Name       string
	DistinctID string
	Timestamp  time.Time
	Path       string
	Properties Properties
}

// Validate reports missing required fields.
func (e Event) Validate() error {
	var missing []string
	if e.Name == "" {
		missing = append(missing, "name")
	}
	if e.DistinctID == "" {
		missing = append(missing, "distinct_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrInvalidEvent, missing)
	}
	return nil
}

// Record is the wire form of one event.
type Record struct {
	APIKey     string         `json:"api_key,omitempty"`
	Event      string         `json:"event"`
	Properties map[string]any `json:"properties"`
	DistinctID string         `json:"distinct_id"`
	Timestamp  string         `json:"timestamp"`
	UUID       string         `json:"uuid,omitempty"`

	At time.Time `json:"-"`
}

// Redacted returns a copy with the API key masked, for logging.
func (r Record) Redacted() Record {
	if r.APIKey != "" {
		r.APIKey = "[REDACTED]"
	}
	return r
}

// Enrich turns an event into its wire record. It is a pure function of its
// inputs: now is used only when the event has no timestamp of its own.
func Enrich(apiKey, baseURL string, e Event, now time.Time) (Record, error) {
	if err := e.Validate(); err != nil {
		return Record{}, err
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = now
	}
	ts = ts.UTC()

	props := make(map[string]any, len(e.Properties)+4)
	for k, v := range e.Properties {
		props[k] = v
	}
	props[SyntheticProperty] = true
	props["$lib"] = LibName
	if e.Path != "" {
		props["$pathname"] = e.Path
		if _, ok := props["$current_url"]; !ok && baseURL != "" {
			props["$current_url"] = joinURL(baseURL, e.Path)
		}
	}

	return Record{
		APIKey:     apiKey,
		Event:      e.Name,
		Properties: props,
		DistinctID: e.DistinctID,
		Timestamp:  ts.Format(TimestampFormat),
		At:         ts,
	}, nil
}

func joinURL(base, path string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return base + path
	}
	return u.ResolveReference(ref).String()
}
