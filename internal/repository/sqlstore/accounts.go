package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"usalli/internal/domain"
	"usalli/pkg/errors"
)

type AccountRepository struct {
	ext  sqlx.ExtContext
	bind int
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, owner_user_id, holder_name, balance, created_at, updated_at)
		VALUES (:id, :owner_user_id, :holder_name, :balance, :created_at, :updated_at)
	`
	_, err := sqlx.NamedExecContext(ctx, r.ext, query, account)
	return errors.Wrap(err, "failed to create account")
}

func (r *AccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	account := &domain.Account{}
	query := sqlx.Rebind(r.bind, `SELECT * FROM accounts WHERE id = ?`)
	err := sqlx.GetContext(ctx, r.ext, account, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, errors.Wrap(err, "failed to find account by id")
	}
	return account, nil
}

// AddToBalance applies delta relative to the stored balance so concurrent
// writers serialize on the row instead of overwriting each other.
func (r *AccountRepository) AddToBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	set := `balance = balance + ?`
	// SQLite adds NUMERIC columns as doubles; rounding to cents restores the
	// exact amount.
	if r.bind != sqlx.DOLLAR {
		set = `balance = ROUND(balance + ?, 2)`
	}

	var balance decimal.Decimal
	query := sqlx.Rebind(r.bind, `
		UPDATE accounts SET
			`+set+`,
			updated_at = ?
		WHERE id = ?
		RETURNING balance
	`)
	err := sqlx.GetContext(ctx, r.ext, &balance, query, delta, time.Now().UTC(), id)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, errors.ErrAccountNotFound
		}
		return decimal.Zero, errors.Wrap(err, "failed to update account balance")
	}
	return balance.Round(2), nil
}

func (r *AccountRepository) AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, account_id, reference, entry_type, amount, balance_after, created_at)
		VALUES (:id, :account_id, :reference, :entry_type, :amount, :balance_after, :created_at)
	`
	_, err := sqlx.NamedExecContext(ctx, r.ext, query, entry)
	return errors.Wrap(err, "failed to append ledger entry")
}

func (r *AccountRepository) ListEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	query := sqlx.Rebind(r.bind, `
		SELECT * FROM ledger_entries
		WHERE account_id = ?
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`)
	err := sqlx.SelectContext(ctx, r.ext, &entries, query, accountID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list ledger entries")
	}
	return entries, nil
}
