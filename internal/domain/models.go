// Package domain holds the entities shared by the ledger, transfer and credit
// engines and their stores.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxUnlockStep is the number of unlock codes a blocked transfer needs.
const MaxUnlockStep = 4

type Account struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	OwnerUserID uuid.NullUUID   `json:"ownerUserId" db:"owner_user_id"`
	HolderName  string          `json:"holderName" db:"holder_name"`
	Balance     decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

// OwnedBy reports whether the account belongs to userID. Accounts opened
// without an owner belong to nobody.
func (a *Account) OwnedBy(userID uuid.UUID) bool {
	return a.OwnerUserID.Valid && a.OwnerUserID.UUID == userID
}

type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// LedgerEntry records one balance change. Entries are never updated.
type LedgerEntry struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	AccountID    uuid.UUID       `json:"accountId" db:"account_id"`
	Reference    uuid.UUID       `json:"reference" db:"reference"`
	EntryType    EntryType       `json:"entryType" db:"entry_type"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	BalanceAfter decimal.Decimal `json:"balanceAfter" db:"balance_after"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
}

type TransferStatus string

const (
	TransferStatusProcessing TransferStatus = "processing"
	TransferStatusBlocked    TransferStatus = "blocked"
	TransferStatusCompleted  TransferStatus = "completed"
)

type Transfer struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	AccountID         uuid.UUID       `json:"accountId" db:"account_id"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	AccountHolderName string          `json:"accountHolderName" db:"account_holder_name"`
	AccountNumber     string          `json:"accountNumber" db:"account_number"`
	RoutingNumber     string          `json:"routingNumber" db:"routing_number"`
	Reason            string          `json:"reason" db:"reason"`
	Status            TransferStatus  `json:"status" db:"status"`
	BlockedStep       int             `json:"blockedStep" db:"blocked_step"`
	BlockReason       *string         `json:"blockReason" db:"block_reason"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`
	CompletedAt       *time.Time      `json:"completedAt" db:"completed_at"`
}

// AwaitingStep reports whether the transfer is blocked waiting for step.
func (t *Transfer) AwaitingStep(step int) bool {
	return t.Status == TransferStatusBlocked && t.BlockedStep == step
}

// TransferUpdate lists the caller-editable transfer fields. Nil fields are
// left untouched.
type TransferUpdate struct {
	BlockReason *string `json:"blockReason"`
}

func (u TransferUpdate) IsEmpty() bool {
	return u.BlockReason == nil
}

type UnlockCode struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	TransferID uuid.UUID  `json:"transferId" db:"transfer_id"`
	StepNumber int        `json:"stepNumber" db:"step_number"`
	Code       string     `json:"code" db:"code"`
	Used       bool       `json:"used" db:"used"`
	ExpiresAt  time.Time  `json:"expiresAt" db:"expires_at"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	UsedAt     *time.Time `json:"usedAt" db:"used_at"`
}

type CreditRequestStatus string

const (
	CreditRequestStatusPending  CreditRequestStatus = "pending"
	CreditRequestStatusApproved CreditRequestStatus = "approved"
	CreditRequestStatusRejected CreditRequestStatus = "rejected"
)

// IsDecision reports whether s is a status an operator may set.
func (s CreditRequestStatus) IsDecision() bool {
	return s == CreditRequestStatusApproved || s == CreditRequestStatusRejected
}

type CreditRequest struct {
	ID        uuid.UUID           `json:"id" db:"id"`
	AccountID uuid.UUID           `json:"accountId" db:"account_id"`
	Amount    decimal.Decimal     `json:"amount" db:"amount"`
	Reason    string              `json:"reason" db:"reason"`
	Status    CreditRequestStatus `json:"status" db:"status"`
	CreatedAt time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time           `json:"updatedAt" db:"updated_at"`
}

// Setting is a versioned JSON document keyed by name.
type Setting struct {
	Key       string    `json:"key" db:"setting_key"`
	Value     string    `json:"value" db:"value"`
	Version   int64     `json:"version" db:"version"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

const SettingBlockStepMessages = "block_step_messages"

// OutboxEvent is a domain event persisted with the change that caused it
// and delivered later by the dispatcher.
type OutboxEvent struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	AggregateID  uuid.UUID  `json:"aggregateId" db:"aggregate_id"`
	AccountID    uuid.UUID  `json:"accountId" db:"account_id"`
	EventType    string     `json:"eventType" db:"event_type"`
	Payload      string     `json:"payload" db:"payload"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	DispatchedAt *time.Time `json:"dispatchedAt" db:"dispatched_at"`
	Attempts     int        `json:"attempts" db:"attempts"`
	LastError    *string    `json:"lastError" db:"last_error"`
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// NormalizePage clamps list pagination to sane bounds.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
