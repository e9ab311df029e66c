package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"hogsim/internal/logging"
)

// MemoryTransport keeps every record it is sent. Used by tests and verify.
type MemoryTransport struct {
	mu      sync.Mutex
	records []Record
	Err     error // returned from Send when set
}

func (m *MemoryTransport) Send(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *MemoryTransport) Close() error { return nil }

// Records returns a copy of the captured records.
func (m *MemoryTransport) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Names returns the event names in send order.
func (m *MemoryTransport) Names() []string {
	recs := m.Records()
	names := make([]string, len(recs))
	for i, r := range recs {
		names[i] = r.Event
	}
	return names
}

// DryRunTransport logs every would-be record with its full payload instead of
// sending it. It replaces only the delivery step, so everything upstream runs
// exactly as in a live run.
type DryRunTransport struct {
	log *zap.Logger

	mu    sync.Mutex
	count int
}

// NewDryRunTransport creates a dry-run transport logging through l.
func NewDryRunTransport(l *zap.Logger) *DryRunTransport {
	return &DryRunTransport{log: logging.OrNop(l)}
}

func (d *DryRunTransport) Send(_ context.Context, records []Record) error {
	for _, r := range records {
		d.log.Info("dry run event",
			zap.String("event", r.Event),
			zap.String("uuid", r.UUID),
			zap.String("distinct_id", r.DistinctID),
			zap.String("timestamp", r.Timestamp),
			zap.Any("payload", r.Redacted()),
		)
	}
	d.mu.Lock()
	d.count += len(records)
	d.mu.Unlock()
	return nil
}

func (d *DryRunTransport) Close() error { return nil }

// Count returns how many records were logged.
func (d *DryRunTransport) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}
