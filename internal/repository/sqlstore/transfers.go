package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"usalli/internal/domain"
	"usalli/pkg/errors"
)

type TransferRepository struct {
	ext  sqlx.ExtContext
	bind int
}

func (r *TransferRepository) Create(ctx context.Context, t *domain.Transfer) error {
	query := `
		INSERT INTO transfers (
			id, account_id, amount, account_holder_name, account_number, routing_number, reason,
			status, blocked_step, block_reason, created_at, updated_at, completed_at
		) VALUES (
			:id, :account_id, :amount, :account_holder_name, :account_number, :routing_number, :reason,
			:status, :blocked_step, :block_reason, :created_at, :updated_at, :completed_at
		)
	`
	_, err := sqlx.NamedExecContext(ctx, r.ext, query, t)
	return errors.Wrap(err, "failed to create transfer")
}

func (r *TransferRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	t := &domain.Transfer{}
	query := sqlx.Rebind(r.bind, `SELECT * FROM transfers WHERE id = ?`)
	err := sqlx.GetContext(ctx, r.ext, t, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrTransferNotFound
		}
		return nil, errors.Wrap(err, "failed to find transfer by id")
	}
	return t, nil
}

// Update writes the fields set in u. The column list is fixed; only values
// come from the caller.
func (r *TransferRepository) Update(ctx context.Context, id uuid.UUID, u domain.TransferUpdate, at time.Time) error {
	if u.IsEmpty() {
		return errors.ErrEmptyUpdate
	}
	query := sqlx.Rebind(r.bind, `
		UPDATE transfers SET
			block_reason = ?,
			updated_at = ?
		WHERE id = ?
	`)
	res, err := r.ext.ExecContext(ctx, query, *u.BlockReason, at, id)
	if err != nil {
		return errors.Wrap(err, "failed to update transfer")
	}
	n, err := rowsChanged(res, "transfer update")
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.ErrTransferNotFound
	}
	return nil
}

func (r *TransferRepository) AdvanceStep(ctx context.Context, id uuid.UUID, step int, at time.Time) (bool, error) {
	query := sqlx.Rebind(r.bind, `
		UPDATE transfers SET
			blocked_step = ?,
			updated_at = ?
		WHERE id = ? AND status = ? AND blocked_step = ?
	`)
	res, err := r.ext.ExecContext(ctx, query, step+1, at, id, domain.TransferStatusBlocked, step)
	if err != nil {
		return false, errors.Wrap(err, "failed to advance transfer step")
	}
	n, err := rowsChanged(res, "transfer step")
	return n == 1, err
}

func (r *TransferRepository) CompleteBlocked(ctx context.Context, id uuid.UUID, step int, at time.Time) (bool, error) {
	query := sqlx.Rebind(r.bind, `
		UPDATE transfers SET
			status = ?,
			blocked_step = 0,
			updated_at = ?,
			completed_at = ?
		WHERE id = ? AND status = ? AND blocked_step = ?
	`)
	res, err := r.ext.ExecContext(ctx, query,
		domain.TransferStatusCompleted, at, at, id, domain.TransferStatusBlocked, step)
	if err != nil {
		return false, errors.Wrap(err, "failed to complete transfer")
	}
	n, err := rowsChanged(res, "transfer completion")
	return n == 1, err
}

func (r *TransferRepository) List(ctx context.Context, limit, offset int) ([]*domain.Transfer, error) {
	var transfers []*domain.Transfer
	query := sqlx.Rebind(r.bind, `SELECT * FROM transfers ORDER BY created_at DESC, id LIMIT ? OFFSET ?`)
	err := sqlx.SelectContext(ctx, r.ext, &transfers, query, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list transfers")
	}
	return transfers, nil
}

func (r *TransferRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.Transfer, error) {
	var transfers []*domain.Transfer
	query := sqlx.Rebind(r.bind, `
		SELECT * FROM transfers
		WHERE account_id = ?
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`)
	err := sqlx.SelectContext(ctx, r.ext, &transfers, query, accountID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list transfers by account")
	}
	return transfers, nil
}
