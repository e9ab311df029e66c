// Package sqlstore keeps the persona population in a SQL table. It serves
// local SQLite files, Turso/libSQL databases and PostgreSQL through the same
// database/sql code path.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"                                // postgres
	_ "github.com/mattn/go-sqlite3"                      // sqlite3
	_ "github.com/tursodatabase/libsql-client-go/libsql" // libsql

	"hogsim/internal/persona"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverLibSQL   = "libsql"
	DriverPostgres = "postgres"
)

const table = "personas"

// Store implements persona.Store on top of *sql.DB.
type Store struct {
	db     *sql.DB
	driver string
}

var _ persona.Store = (*Store)(nil)

// Open connects to dsn with driver and makes sure the personas table exists.
// For sqlite3 the dsn is a file path whose directory is created on demand.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
	case DriverLibSQL, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported persona store driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s connection failed: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s ping failed: %w", driver, err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	blob := "BLOB"
	if s.driver == DriverPostgres {
		blob = "BYTEA"
	}
	ddl := `CREATE TABLE IF NOT EXISTS ` + table + ` (
		id            TEXT PRIMARY KEY,
		position      INTEGER NOT NULL,
		profile       TEXT NOT NULL,
		traits        TEXT NOT NULL,
		created_at    TEXT NOT NULL,
		next_visit_at TEXT NOT NULL,
		last_visit_at TEXT NOT NULL,
		visits        INTEGER NOT NULL DEFAULT 0,
		actor_state   ` + blob + `
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating %s table: %w", table, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns every persona in insertion order. An empty table reports
// persona.ErrStoreNotFound so the caller seeds a population.
func (s *Store) Load(ctx context.Context) ([]persona.Persona, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, profile, traits, created_at, next_visit_at,
		last_visit_at, visits, actor_state FROM `+table+` ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying personas: %w", err)
	}
	defer rows.Close()

	var out []persona.Persona
	for rows.Next() {
		var (
			p                        persona.Persona
			profile, traits          string
			created, next, lastVisit string
			state                    []byte
		)
		if err := rows.Scan(&p.ID, &profile, &traits, &created, &next, &lastVisit, &p.Visits, &state); err != nil {
			return nil, fmt.Errorf("scanning persona: %w", err)
		}
		if err := decodeRow(&p, profile, traits, created, next, lastVisit); err != nil {
			return nil, fmt.Errorf("%w: persona %s: %v", persona.ErrStoreCorrupt, p.ID, err)
		}
		if len(state) > 0 {
			p.ActorState = state
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading personas: %w", err)
	}
	if len(out) == 0 {
		return nil, persona.ErrStoreNotFound
	}
	return out, nil
}

func decodeRow(p *persona.Persona, profile, traits, created, next, lastVisit string) error {
	if err := json.Unmarshal([]byte(profile), &p.Profile); err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	if err := json.Unmarshal([]byte(traits), &p.Traits); err != nil {
		return fmt.Errorf("traits: %w", err)
	}
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return err
	}
	if p.NextVisitAt, err = parseTime(next); err != nil {
		return err
	}
	if p.LastVisitAt, err = parseTime(lastVisit); err != nil {
		return err
	}
	return nil
}

// Save replaces the whole population inside one transaction.
func (s *Store) Save(ctx context.Context, personas []persona.Persona) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return fmt.Errorf("clearing personas: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO `+table+` (id, position, profile, traits,
		created_at, next_visit_at, last_visit_at, visits, actor_state) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range personas {
		profile, err := json.Marshal(p.Profile)
		if err != nil {
			return fmt.Errorf("encoding profile for %s: %w", p.ID, err)
		}
		traits, err := json.Marshal(p.Traits)
		if err != nil {
			return fmt.Errorf("encoding traits for %s: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, p.ID, i, string(profile), string(traits),
			formatTime(p.CreatedAt), formatTime(p.NextVisitAt), formatTime(p.LastVisitAt),
			p.Visits, p.ActorState); err != nil {
			return fmt.Errorf("inserting persona %s: %w", p.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing personas: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.New("bad timestamp " + strconv.Quote(s))
	}
	return t, nil
}
