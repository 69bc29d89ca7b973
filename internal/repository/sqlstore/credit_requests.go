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

type CreditRequestRepository struct {
	ext  sqlx.ExtContext
	bind int
}

func (r *CreditRequestRepository) Create(ctx context.Context, req *domain.CreditRequest) error {
	query := `
		INSERT INTO credit_requests (id, account_id, amount, reason, status, created_at, updated_at)
		VALUES (:id, :account_id, :amount, :reason, :status, :created_at, :updated_at)
	`
	_, err := sqlx.NamedExecContext(ctx, r.ext, query, req)
	return errors.Wrap(err, "failed to create credit request")
}

func (r *CreditRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.CreditRequest, error) {
	req := &domain.CreditRequest{}
	query := sqlx.Rebind(r.bind, `SELECT * FROM credit_requests WHERE id = ?`)
	err := sqlx.GetContext(ctx, r.ext, req, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrCreditRequestNotFound
		}
		return nil, errors.Wrap(err, "failed to find credit request by id")
	}
	return req, nil
}

func (r *CreditRequestRepository) Decide(ctx context.Context, id uuid.UUID, status domain.CreditRequestStatus, at time.Time) (bool, error) {
	query := sqlx.Rebind(r.bind, `
		UPDATE credit_requests SET
			status = ?,
			updated_at = ?
		WHERE id = ? AND status = ?
	`)
	res, err := r.ext.ExecContext(ctx, query, status, at, id, domain.CreditRequestStatusPending)
	if err != nil {
		return false, errors.Wrap(err, "failed to update credit request status")
	}
	n, err := rowsChanged(res, "credit request status")
	return n == 1, err
}

func (r *CreditRequestRepository) List(ctx context.Context, limit, offset int) ([]*domain.CreditRequest, error) {
	var reqs []*domain.CreditRequest
	query := sqlx.Rebind(r.bind, `SELECT * FROM credit_requests ORDER BY created_at DESC, id LIMIT ? OFFSET ?`)
	err := sqlx.SelectContext(ctx, r.ext, &reqs, query, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list credit requests")
	}
	return reqs, nil
}

func (r *CreditRequestRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.CreditRequest, error) {
	var reqs []*domain.CreditRequest
	query := sqlx.Rebind(r.bind, `
		SELECT * FROM credit_requests
		WHERE account_id = ?
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`)
	err := sqlx.SelectContext(ctx, r.ext, &reqs, query, accountID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list credit requests by account")
	}
	return reqs, nil
}
