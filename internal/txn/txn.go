// Package txn defines the all-or-nothing execution contract the engines run
// their mutations under, and the transaction-bound repositories a Scope
// exposes.
package txn

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"usalli/internal/domain"
)

// Coordinator runs fn inside one database transaction. The transaction
// commits when fn returns nil and rolls back on error or panic.
type Coordinator interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Scope) error) error
}

// Scope hands out repositories bound to the current transaction. The same
// repositories are used outside a transaction for point reads.
type Scope interface {
	Accounts() AccountRepository
	Transfers() TransferRepository
	UnlockCodes() UnlockCodeRepository
	CreditRequests() CreditRequestRepository
	Settings() SettingRepository
	Outbox() OutboxRepository
}

type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	// AddToBalance applies a relative change and returns the new balance.
	AddToBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
	AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error
	ListEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, error)
}

type TransferRepository interface {
	Create(ctx context.Context, t *domain.Transfer) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Transfer, error)
	Update(ctx context.Context, id uuid.UUID, u domain.TransferUpdate, at time.Time) error
	// AdvanceStep moves a blocked transfer from step to step+1. It reports
	// false when the transfer was not blocked at step.
	AdvanceStep(ctx context.Context, id uuid.UUID, step int, at time.Time) (bool, error)
	// CompleteBlocked completes a transfer blocked at the final step. It
	// reports false when the transfer was not blocked at that step.
	CompleteBlocked(ctx context.Context, id uuid.UUID, step int, at time.Time) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Transfer, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.Transfer, error)
}

type UnlockCodeRepository interface {
	Create(ctx context.Context, c *domain.UnlockCode) error
	// Consume marks the matching unused code as used. It reports false when
	// no live code matched.
	Consume(ctx context.Context, transferID uuid.UUID, step int, code string, now time.Time, enforceExpiry bool) (bool, error)
	// RevokeUnused marks every unused code for the transfer step as used.
	RevokeUnused(ctx context.Context, transferID uuid.UUID, step int, now time.Time) (int64, error)
	ListByTransfer(ctx context.Context, transferID uuid.UUID) ([]*domain.UnlockCode, error)
}

type CreditRequestRepository interface {
	Create(ctx context.Context, r *domain.CreditRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.CreditRequest, error)
	// Decide moves a pending request to status. It reports false when the
	// request was no longer pending.
	Decide(ctx context.Context, id uuid.UUID, status domain.CreditRequestStatus, at time.Time) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*domain.CreditRequest, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.CreditRequest, error)
}

type SettingRepository interface {
	Get(ctx context.Context, key string) (*domain.Setting, error)
	// Put writes value when the stored version equals expectedVersion,
	// inserting the row when expectedVersion is 0. It reports false on a
	// version mismatch.
	Put(ctx context.Context, key, value string, expectedVersion int64, at time.Time) (bool, error)
}

type OutboxRepository interface {
	Append(ctx context.Context, e *domain.OutboxEvent) error
	ListPending(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Store is a Coordinator whose repositories also serve point reads outside
// any transaction.
type Store interface {
	Coordinator
	Scope
}
