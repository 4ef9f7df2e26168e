// Package postgres reads raw health records from a Postgres table populated by
// the platform bridge.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/companion/internal/domain"
	"example.com/companion/internal/healthstore"
)

const schema = `CREATE TABLE IF NOT EXISTS health_records (
    record_id  TEXT PRIMARY KEY,
    kind       TEXT NOT NULL,
    source_app TEXT NOT NULL,
    start_at   TIMESTAMPTZ NOT NULL,
    end_at     TIMESTAMPTZ NOT NULL,
    payload    JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS health_records_kind_start_idx ON health_records (kind, start_at)`

// Source is a domain.HealthSource backed by the health_records table.
type Source struct {
	pool *pgxpool.Pool
}

// NewSource constructs a Source.
func NewSource(pool *pgxpool.Pool) *Source {
	return &Source{pool: pool}
}

// EnsureSchema creates the records table when missing.
func (s *Source) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create health_records: %w", err)
	}
	return nil
}

// Available pings the database.
func (s *Source) Available(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("health store unreachable: %w", err)
	}
	return nil
}

// ReadRecords returns records of kind overlapping tr.
func (s *Source) ReadRecords(ctx context.Context, kind domain.RecordKind, tr domain.TimeRange) ([]domain.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}

	const query = `SELECT record_id, kind, source_app, start_at, end_at, payload
        FROM health_records
        WHERE kind=$1 AND start_at < $3 AND (end_at > $2 OR start_at >= $2)
        ORDER BY start_at, record_id`

	rows, err := s.pool.Query(ctx, query, string(kind), tr.Start, tr.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var row healthstore.Row
		var rawKind string
		var payload []byte
		if err := rows.Scan(&row.RecordID, &rawKind, &row.SourceApp, &row.Start, &row.End, &payload); err != nil {
			return nil, err
		}
		row.Kind = domain.RecordKind(rawKind)
		row.Payload = payload
		rec, err := healthstore.Decode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Insert upserts records in a single transaction.
func (s *Source) Insert(ctx context.Context, records ...domain.Record) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, rec := range records {
		row, err := healthstore.Encode(rec)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO health_records (record_id, kind, source_app, start_at, end_at, payload)
            VALUES ($1, $2, $3, $4, $5, $6)
            ON CONFLICT (record_id) DO UPDATE SET kind=EXCLUDED.kind, source_app=EXCLUDED.source_app,
                start_at=EXCLUDED.start_at, end_at=EXCLUDED.end_at, payload=EXCLUDED.payload`,
			row.RecordID, string(row.Kind), row.SourceApp, row.Start, row.End, []byte(row.Payload)); err != nil {
			return fmt.Errorf("insert %s: %w", row.RecordID, err)
		}
	}
	return tx.Commit(ctx)
}
