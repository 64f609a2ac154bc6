package repository

import (
	"context"
	"time"

	"coin-digest/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

const createDeliveriesTable = `
CREATE TABLE IF NOT EXISTS deliveries (
    run_id        UUID        PRIMARY KEY,
    chat_id       TEXT        NOT NULL,
    status        TEXT        NOT NULL,
    error         TEXT        NOT NULL DEFAULT '',
    message_chars INTEGER     NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_deliveries_created_at
    ON deliveries (created_at DESC);
`

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DeliveryRepository keeps an audit trail of digest sends. It never stores prices.
type DeliveryRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewDeliveryRepository(pool PgxPool, tracer trace.Tracer) *DeliveryRepository {
	return &DeliveryRepository{pool: pool, tracer: tracer}
}

func (r *DeliveryRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "delivery-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createDeliveriesTable)
	return err
}

func (r *DeliveryRepository) RecordDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	_, span := r.tracer.Start(ctx, "delivery-repo.record-delivery")
	defer span.End()

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO deliveries (run_id, chat_id, status, error, message_chars, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (run_id) DO UPDATE SET
		     status = EXCLUDED.status,
		     error = EXCLUDED.error,
		     message_chars = EXCLUDED.message_chars`,
		rec.RunID.String(), rec.ChatID, string(rec.Status), rec.Error, rec.MessageChars, createdAt.UTC(),
	)
	return err
}

func (r *DeliveryRepository) RecentDeliveries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	_, span := r.tracer.Start(ctx, "delivery-repo.recent-deliveries")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx,
		`SELECT run_id::text, chat_id, status, error, message_chars, created_at
		 FROM deliveries
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.DeliveryRecord
	for rows.Next() {
		var (
			rec    domain.DeliveryRecord
			runID  string
			status string
			ts     time.Time
		)
		if err := rows.Scan(&runID, &rec.ChatID, &status, &rec.Error, &rec.MessageChars, &ts); err != nil {
			return nil, err
		}
		if rec.RunID, err = uuid.Parse(runID); err != nil {
			return nil, err
		}
		rec.Status = domain.DeliveryStatus(status)
		rec.CreatedAt = ts.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}
