package sqlstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"usalli/internal/domain"
	"usalli/pkg/errors"
)

type OutboxRepository struct {
	ext  sqlx.ExtContext
	bind int
}

func (r *OutboxRepository) Append(ctx context.Context, e *domain.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (
			id, aggregate_id, account_id, event_type, payload, created_at, dispatched_at, attempts, last_error
		) VALUES (
			:id, :aggregate_id, :account_id, :event_type, :payload, :created_at, :dispatched_at, :attempts, :last_error
		)
	`
	_, err := sqlx.NamedExecContext(ctx, r.ext, query, e)
	return errors.Wrap(err, "failed to append outbox event")
}

// ListPending returns undispatched events oldest first. Inside a
// transaction on Postgres the rows stay locked until it ends.
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	var events []*domain.OutboxEvent
	query := `
		SELECT * FROM outbox_events
		WHERE dispatched_at IS NULL
		ORDER BY created_at, id
		LIMIT ?`
	// Concurrent dispatchers skip each other's batches on Postgres.
	if r.bind == sqlx.DOLLAR {
		query += ` FOR UPDATE SKIP LOCKED`
	}
	query = sqlx.Rebind(r.bind, query)
	err := sqlx.SelectContext(ctx, r.ext, &events, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending outbox events")
	}
	return events, nil
}

func (r *OutboxRepository) MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := sqlx.Rebind(r.bind, `
		UPDATE outbox_events SET
			dispatched_at = ?,
			attempts = attempts + 1,
			last_error = NULL
		WHERE id = ?
	`)
	_, err := r.ext.ExecContext(ctx, query, at, id)
	return errors.Wrap(err, "failed to mark outbox event dispatched")
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := sqlx.Rebind(r.bind, `
		UPDATE outbox_events SET
			attempts = attempts + 1,
			last_error = ?
		WHERE id = ?
	`)
	_, err := r.ext.ExecContext(ctx, query, reason, id)
	return errors.Wrap(err, "failed to mark outbox event failed")
}
