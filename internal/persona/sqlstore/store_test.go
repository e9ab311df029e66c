package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hogsim/internal/core"
	"hogsim/internal/persona"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "db", "personas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_EmptyTableIsNotFound(t *testing.T) {
	s := openTemp(t)
	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, persona.ErrStoreNotFound)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	personas := persona.Seed(persona.SeedOptions{Count: 15, Now: now, Rand: core.NewRand(9)})
	personas[2].ActorState = []byte(`{"cookies":{"ph_session":"xyz"}}`)
	personas[2].LastVisitAt = now.Add(-time.Hour)
	personas[2].Visits = 4
	require.NoError(t, s.Save(ctx, personas))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 15)
	for i := range personas {
		assert.Equal(t, personas[i].ID, loaded[i].ID)
		assert.Equal(t, personas[i].Profile, loaded[i].Profile)
		assert.Equal(t, personas[i].Traits, loaded[i].Traits)
		assert.True(t, personas[i].NextVisitAt.Equal(loaded[i].NextVisitAt))
		assert.True(t, personas[i].CreatedAt.Equal(loaded[i].CreatedAt))
	}
	assert.Equal(t, personas[2].ActorState, loaded[2].ActorState)
	assert.Equal(t, 4, loaded[2].Visits)
	assert.True(t, loaded[3].LastVisitAt.IsZero())
	assert.Nil(t, loaded[3].ActorState)

	require.NoError(t, s.Save(ctx, loaded))
	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, loaded, again)
}

func TestStore_SaveReplacesPopulation(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	now := time.Now().UTC()

	require.NoError(t, s.Save(ctx, persona.Seed(persona.SeedOptions{Count: 10, Now: now, Rand: core.NewRand(1)})))
	smaller := persona.Seed(persona.SeedOptions{Count: 3, Now: now, Rand: core.NewRand(2)})
	require.NoError(t, s.Save(ctx, smaller))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, smaller[0].ID, loaded[0].ID)
}

func TestStore_LoadOrSeed(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	opts := persona.SeedOptions{Count: 6, Now: time.Now().UTC(), Rand: core.NewRand(3)}

	first, seeded, err := persona.LoadOrSeed(ctx, s, opts, nil)
	require.NoError(t, err)
	assert.True(t, seeded)

	second, seeded, err := persona.LoadOrSeed(ctx, s, opts, nil)
	require.NoError(t, err)
	assert.False(t, seeded)
	require.Len(t, second, len(first))
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	assert.ErrorContains(t, err, "unsupported")
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "VALUES ($1, $2)", pg.rebind("VALUES (?, ?)"))
	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, "VALUES (?, ?)", lite.rebind("VALUES (?, ?)"))
}
