package consumer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS sync_outcome_log (
    run_id         TEXT PRIMARY KEY,
    device         TEXT NOT NULL,
    sync_type      TEXT NOT NULL,
    status         TEXT NOT NULL,
    message        TEXT NOT NULL,
    attempt        INTEGER NOT NULL,
    daily_metrics  INTEGER NOT NULL DEFAULT 0,
    activities     INTEGER NOT NULL DEFAULT 0,
    sleep_sessions INTEGER NOT NULL DEFAULT 0,
    window_from    DATE,
    window_to      DATE,
    occurred_at    TIMESTAMPTZ NOT NULL,
    topic          TEXT NOT NULL,
    partition      INTEGER NOT NULL,
    record_offset  BIGINT NOT NULL,
    payload        JSONB NOT NULL,
    received_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS sync_outcome_log_device_idx ON sync_outcome_log (device, occurred_at DESC);
`

// ArchiveHandler writes consumed outcomes into Postgres. Redelivered run IDs
// are ignored.
type ArchiveHandler struct {
	pool *pgxpool.Pool
}

// NewArchiveHandler constructs a handler backed by the provided pool.
func NewArchiveHandler(pool *pgxpool.Pool) *ArchiveHandler {
	return &ArchiveHandler{pool: pool}
}

// EnsureSchema creates the archive table if needed.
func (h *ArchiveHandler) EnsureSchema(ctx context.Context) error {
	if _, err := h.pool.Exec(ctx, archiveSchema); err != nil {
		return fmt.Errorf("create sync_outcome_log: %w", err)
	}
	return nil
}

// Handle stores the outcome in sync_outcome_log.
func (h *ArchiveHandler) Handle(ctx context.Context, msg Message) error {
	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	out := msg.Outcome
	tag, err := conn.Exec(ctx,
		`INSERT INTO sync_outcome_log (run_id, device, sync_type, status, message, attempt,
             daily_metrics, activities, sleep_sessions, window_from, window_to, occurred_at,
             topic, partition, record_offset, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,'')::date,NULLIF($11,'')::date,$12,$13,$14,$15,$16)
         ON CONFLICT (run_id) DO NOTHING`,
		msg.RunID,
		out.Device,
		out.Type,
		out.Status,
		out.Message,
		out.Attempt,
		out.Counts.DailyMetrics,
		out.Counts.Activities,
		out.Counts.SleepSessions,
		out.WindowFrom,
		out.WindowTo,
		out.OccurredAt,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		[]byte(msg.Payload),
	)
	if err != nil {
		return fmt.Errorf("archive outcome %s: %w", msg.RunID, err)
	}
	if tag.RowsAffected() == 0 {
		archivedCounter.WithLabelValues("duplicate").Inc()
		return nil
	}
	archivedCounter.WithLabelValues("inserted").Inc()
	return nil
}
