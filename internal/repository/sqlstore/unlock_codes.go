package sqlstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"usalli/internal/domain"
	"usalli/pkg/errors"
)

type UnlockCodeRepository struct {
	ext  sqlx.ExtContext
	bind int
}

func (r *UnlockCodeRepository) Create(ctx context.Context, c *domain.UnlockCode) error {
	query := `
		INSERT INTO unlock_codes (id, transfer_id, step_number, code, used, expires_at, created_at, used_at)
		VALUES (:id, :transfer_id, :step_number, :code, :used, :expires_at, :created_at, :used_at)
	`
	_, err := sqlx.NamedExecContext(ctx, r.ext, query, c)
	return errors.Wrap(err, "failed to create unlock code")
}

// Consume flips one matching unused code to used. The match and the flip
// are a single statement, so two callers presenting the same code cannot
// both succeed.
func (r *UnlockCodeRepository) Consume(ctx context.Context, transferID uuid.UUID, step int, code string, now time.Time, enforceExpiry bool) (bool, error) {
	stmt := `
		UPDATE unlock_codes SET
			used = TRUE,
			used_at = ?
		WHERE id = (
			SELECT id FROM unlock_codes
			WHERE transfer_id = ? AND step_number = ? AND code = ? AND used = FALSE`
	args := []interface{}{now, transferID, step, code}
	if enforceExpiry {
		stmt += ` AND expires_at > ?`
		args = append(args, now)
	}
	stmt += `
			ORDER BY created_at
			LIMIT 1
		) AND used = FALSE`

	res, err := r.ext.ExecContext(ctx, sqlx.Rebind(r.bind, stmt), args...)
	if err != nil {
		return false, errors.Wrap(err, "failed to consume unlock code")
	}
	n, err := rowsChanged(res, "unlock code")
	return n == 1, err
}

func (r *UnlockCodeRepository) RevokeUnused(ctx context.Context, transferID uuid.UUID, step int, now time.Time) (int64, error) {
	query := sqlx.Rebind(r.bind, `
		UPDATE unlock_codes SET
			used = TRUE,
			used_at = ?
		WHERE transfer_id = ? AND step_number = ? AND used = FALSE
	`)
	res, err := r.ext.ExecContext(ctx, query, now, transferID, step)
	if err != nil {
		return 0, errors.Wrap(err, "failed to revoke unlock codes")
	}
	return rowsChanged(res, "unlock code revocation")
}

func (r *UnlockCodeRepository) ListByTransfer(ctx context.Context, transferID uuid.UUID) ([]*domain.UnlockCode, error) {
	var codes []*domain.UnlockCode
	query := sqlx.Rebind(r.bind, `
		SELECT * FROM unlock_codes
		WHERE transfer_id = ?
		ORDER BY step_number, created_at
	`)
	err := sqlx.SelectContext(ctx, r.ext, &codes, query, transferID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list unlock codes")
	}
	return codes, nil
}
