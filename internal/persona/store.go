package persona

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"hogsim/internal/logging"
)

var (
	// ErrStoreNotFound means no persona store has been written yet.
	ErrStoreNotFound = errors.New("persona store not found")
	// ErrStoreCorrupt means the store exists but could not be decoded.
	ErrStoreCorrupt = errors.New("persona store corrupt")
)

// Store persists the full persona population. Save must replace the stored
// set atomically: readers see either the old set or the new one, never a mix.
// Concurrent writers from separate invocations are last-writer-wins.
type Store interface {
	Load(ctx context.Context) ([]Persona, error)
	Save(ctx context.Context, personas []Persona) error
}

// LoadOrSeed returns the stored population, or seeds and persists a new one
// when the store is missing or corrupt. Any other load error is returned
// and nothing is written.
func LoadOrSeed(ctx context.Context, store Store, opts SeedOptions, log *zap.Logger) ([]Persona, bool, error) {
	log = logging.OrNop(log)

	personas, err := store.Load(ctx)
	switch {
	case err == nil && len(personas) > 0:
		return personas, false, nil
	case err == nil, errors.Is(err, ErrStoreNotFound):
		log.Info("no persona store, seeding", zap.Int("count", opts.Count))
	case errors.Is(err, ErrStoreCorrupt):
		log.Warn("persona store corrupt, reseeding", zap.Int("count", opts.Count), zap.Error(err))
	default:
		return nil, false, err
	}

	personas = Seed(opts)
	if err := store.Save(ctx, personas); err != nil {
		return nil, false, fmt.Errorf("saving seeded personas: %w", err)
	}
	return personas, true, nil
}

// SelectDue returns pointers to personas whose next visit is at or before
// now, most overdue first, capped at maxBatch (<= 0 means no cap). deferred
// is the number of due personas left for a later invocation.
func SelectDue(personas []Persona, now time.Time, maxBatch int) (due []*Persona, deferred int) {
	for i := range personas {
		if personas[i].Due(now) {
			due = append(due, &personas[i])
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].NextVisitAt.Before(due[j].NextVisitAt)
	})
	if maxBatch > 0 && len(due) > maxBatch {
		deferred = len(due) - maxBatch
		due = due[:maxBatch]
	}
	return due, deferred
}

// MemoryStore keeps the population in process memory. It backs runs that
// must not touch a persistent store.
type MemoryStore struct {
	mu       sync.Mutex
	personas []Persona
}

func (m *MemoryStore) Load(ctx context.Context) ([]Persona, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.personas == nil {
		return nil, ErrStoreNotFound
	}
	return append([]Persona(nil), m.personas...), nil
}

func (m *MemoryStore) Save(ctx context.Context, personas []Persona) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.personas = append(make([]Persona, 0, len(personas)), personas...)
	return nil
}
