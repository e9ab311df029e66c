package events

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

const defaultClickHouseTable = "synthetic_events"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// ClickHouseTransport writes records straight into a ClickHouse table,
// for setups where synthetic traffic should land in the warehouse rather
// than go through the capture API.
type ClickHouseTransport struct {
	conn  clickhouse.Conn
	table string
}

// NewClickHouseTransport connects using a clickhouse:// DSN and makes sure
// the target table exists.
func NewClickHouseTransport(ctx context.Context, dsn, table string) (*ClickHouseTransport, error) {
	if table == "" {
		table = defaultClickHouseTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid clickhouse table name %q", table)
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing clickhouse dsn: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}

	t := &ClickHouseTransport{conn: conn, table: table}
	if err := t.ensureTable(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return t, nil
}

func (t *ClickHouseTransport) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			uuid        String,
			event       LowCardinality(String),
			distinct_id String,
			timestamp   DateTime64(3, 'UTC'),
			properties  String,
			synthetic   UInt8
		) ENGINE = MergeTree
		ORDER BY (event, timestamp)`, t.table)
	if err := t.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", t.table, err)
	}
	return nil
}

func (t *ClickHouseTransport) Send(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := t.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s (uuid, event, distinct_id, timestamp, properties, synthetic)", t.table))
	if err != nil {
		return fmt.Errorf("preparing batch: %w", err)
	}
	// An unsent batch holds its pool connection until aborted.
	defer func() {
		if !batch.IsSent() {
			_ = batch.Abort()
		}
	}()

	for _, r := range records {
		props, err := json.Marshal(r.Properties)
		if err != nil {
			return fmt.Errorf("encoding properties for %s: %w", r.Event, err)
		}
		at := r.At
		if at.IsZero() {
			if at, err = time.Parse(TimestampFormat, r.Timestamp); err != nil {
				return fmt.Errorf("parsing timestamp %q: %w", r.Timestamp, err)
			}
		}
		if err := batch.Append(r.UUID, r.Event, r.DistinctID, at, string(props), uint8(1)); err != nil {
			return fmt.Errorf("appending %s: %w", r.Event, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending batch: %w", err)
	}
	return nil
}

func (t *ClickHouseTransport) Close() error {
	return t.conn.Close()
}
