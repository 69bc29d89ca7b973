// Package transfer implements the transfer lifecycle: the blocking rule
// applied at creation and the four-step unlock state machine that releases a
// blocked transfer.
package transfer

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"usalli/internal/domain"
	"usalli/internal/metrics"
	"usalli/internal/txn"
	"usalli/pkg/errors"
	"usalli/pkg/logger"
)

// Ledger is the part of the account ledger the engine needs.
type Ledger interface {
	Debit(ctx context.Context, sc txn.Scope, accountID uuid.UUID, amount decimal.Decimal, reference uuid.UUID) (*domain.LedgerEntry, error)
	AccountIn(ctx context.Context, sc txn.Scope, accountID uuid.UUID) (*domain.Account, error)
}

// CodeConsumer consumes unlock codes inside a transaction.
type CodeConsumer interface {
	Consume(ctx context.Context, sc txn.Scope, transferID uuid.UUID, step int, code string) (bool, error)
}

type Config struct {
	// Transfers strictly above BlockThreshold are blocked.
	BlockThreshold decimal.Decimal
}

func DefaultConfig() Config {
	return Config{BlockThreshold: decimal.NewFromInt(10000)}
}

type Engine struct {
	store  txn.Store
	ledger Ledger
	codes  CodeConsumer
	cfg    Config
	logger logger.Logger
}

func NewEngine(store txn.Store, ledger Ledger, codes CodeConsumer, cfg Config, log logger.Logger) *Engine {
	if !cfg.BlockThreshold.IsPositive() {
		cfg.BlockThreshold = DefaultConfig().BlockThreshold
	}
	return &Engine{
		store:  store,
		ledger: ledger,
		codes:  codes,
		cfg:    cfg,
		logger: log,
	}
}

type CreateTransferRequest struct {
	AccountID         uuid.UUID       `json:"accountId" validate:"required"`
	Amount            decimal.Decimal `json:"amount" validate:"required,gt=0,lt=10000000000000,money"`
	AccountHolderName string          `json:"accountHolderName" validate:"required,max=200"`
	AccountNumber     string          `json:"accountNumber" validate:"required,max=34"`
	RoutingNumber     string          `json:"routingNumber" validate:"required,max=34"`
	Reason            string          `json:"reason" validate:"max=500"`
}

type CreateResult struct {
	Transfer *domain.Transfer
	Account  *domain.Account
}

// VerifyResult is the outcome of a verification attempt. Account is set only
// on success. A failed attempt carries no reason.
type VerifyResult struct {
	Success bool
	Account *domain.Account
}

// errRejected aborts a verification transaction without surfacing an error.
var errRejected = stderrors.New("verification rejected")

// CreateTransfer persists a transfer. Amounts above the block threshold are
// stored blocked at step 1 with no debit; anything else completes at once
// and debits the account in the same transaction.
func (e *Engine) CreateTransfer(ctx context.Context, req *CreateTransferRequest) (*CreateResult, error) {
	if !req.Amount.IsPositive() {
		return nil, errors.ErrInvalidAmount
	}
	if strings.TrimSpace(req.AccountHolderName) == "" ||
		strings.TrimSpace(req.AccountNumber) == "" ||
		strings.TrimSpace(req.RoutingNumber) == "" {
		return nil, errors.ErrMissingRecipient
	}

	now := time.Now().UTC()
	t := &domain.Transfer{
		ID:                uuid.New(),
		AccountID:         req.AccountID,
		Amount:            req.Amount,
		AccountHolderName: strings.TrimSpace(req.AccountHolderName),
		AccountNumber:     strings.TrimSpace(req.AccountNumber),
		RoutingNumber:     strings.TrimSpace(req.RoutingNumber),
		Reason:            strings.TrimSpace(req.Reason),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	blocked := req.Amount.GreaterThan(e.cfg.BlockThreshold)
	if blocked {
		t.Status = domain.TransferStatusBlocked
		t.BlockedStep = 1
	} else {
		t.Status = domain.TransferStatusCompleted
		t.BlockedStep = 0
		t.CompletedAt = &now
	}

	var account *domain.Account
	err := e.store.WithinTx(ctx, func(ctx context.Context, sc txn.Scope) error {
		if _, err := sc.Accounts().FindByID(ctx, req.AccountID); err != nil {
			return err
		}
		if err := sc.Transfers().Create(ctx, t); err != nil {
			return err
		}
		if !blocked {
			if _, err := e.ledger.Debit(ctx, sc, t.AccountID, t.Amount, t.ID); err != nil {
				return err
			}
		}

		eventType := domain.EventTransferCreated
		if blocked {
			eventType = domain.EventTransferBlocked
		}
		if err := e.appendEvent(ctx, sc, eventType, t); err != nil {
			return err
		}

		var err error
		account, err = e.ledger.AccountIn(ctx, sc, t.AccountID)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "create transfer")
	}

	metrics.TransfersCreated.WithLabelValues(string(t.Status)).Inc()
	e.logger.Info("Transfer created", map[string]interface{}{
		"transfer_id":  t.ID,
		"account_id":   t.AccountID,
		"amount":       t.Amount.String(),
		"status":       t.Status,
		"blocked_step": t.BlockedStep,
	})

	return &CreateResult{Transfer: t, Account: account}, nil
}

// UpdateTransfer applies caller-editable fields. It never changes status,
// blocked step or balances.
func (e *Engine) UpdateTransfer(ctx context.Context, id uuid.UUID, update domain.TransferUpdate) (*domain.Transfer, error) {
	if update.IsEmpty() {
		return nil, errors.ErrEmptyUpdate
	}

	var t *domain.Transfer
	err := e.store.WithinTx(ctx, func(ctx context.Context, sc txn.Scope) error {
		if err := sc.Transfers().Update(ctx, id, update, time.Now().UTC()); err != nil {
			return err
		}
		var err error
		t, err = sc.Transfers().FindByID(ctx, id)
		if err != nil {
			return err
		}
		return e.appendEvent(ctx, sc, domain.EventTransferUpdated, t)
	})
	if err != nil {
		return nil, errors.Wrap(err, "update transfer")
	}

	e.logger.Info("Transfer updated", map[string]interface{}{
		"transfer_id": id,
	})

	return t, nil
}

// VerifyStep consumes code for the transfer's current step and advances the
// transfer, completing it and debiting the account at the final step. A
// wrong step, wrong code or reused code yields an unsuccessful result and
// leaves everything unchanged.
func (e *Engine) VerifyStep(ctx context.Context, transferID uuid.UUID, step int, code string) (*VerifyResult, error) {
	var result *VerifyResult
	var completed bool

	err := e.store.WithinTx(ctx, func(ctx context.Context, sc txn.Scope) error {
		t, err := sc.Transfers().FindByID(ctx, transferID)
		if err != nil {
			return err
		}
		if !t.AwaitingStep(step) {
			return errRejected
		}

		ok, err := e.codes.Consume(ctx, sc, transferID, step, code)
		if err != nil {
			return err
		}
		if !ok {
			return errRejected
		}

		now := time.Now().UTC()
		if step < domain.MaxUnlockStep {
			advanced, err := sc.Transfers().AdvanceStep(ctx, transferID, step, now)
			if err != nil {
				return err
			}
			if !advanced {
				return errRejected
			}
			t.BlockedStep = step + 1
			t.UpdatedAt = now
			if err := e.appendEvent(ctx, sc, domain.EventTransferStepAdvanced, t); err != nil {
				return err
			}
		} else {
			done, err := sc.Transfers().CompleteBlocked(ctx, transferID, step, now)
			if err != nil {
				return err
			}
			if !done {
				return errRejected
			}
			if _, err := e.ledger.Debit(ctx, sc, t.AccountID, t.Amount, t.ID); err != nil {
				return err
			}
			t.Status = domain.TransferStatusCompleted
			t.BlockedStep = 0
			t.UpdatedAt = now
			t.CompletedAt = &now
			if err := e.appendEvent(ctx, sc, domain.EventTransferCompleted, t); err != nil {
				return err
			}
			completed = true
		}

		account, err := e.ledger.AccountIn(ctx, sc, t.AccountID)
		if err != nil {
			return err
		}
		result = &VerifyResult{Success: true, Account: account}
		return nil
	})

	if stderrors.Is(err, errRejected) {
		metrics.UnlockVerifications.WithLabelValues(metrics.ResultRejected).Inc()
		e.logger.Warn("Unlock verification rejected", map[string]interface{}{
			"transfer_id": transferID,
			"step":        step,
		})
		return &VerifyResult{Success: false}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "verify step")
	}

	metrics.UnlockVerifications.WithLabelValues(metrics.ResultSuccess).Inc()
	e.logger.Info("Unlock step verified", map[string]interface{}{
		"transfer_id": transferID,
		"step":        step,
		"completed":   completed,
	})

	return result, nil
}

func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	return e.store.Transfers().FindByID(ctx, id)
}

func (e *Engine) List(ctx context.Context, limit, offset int) ([]*domain.Transfer, error) {
	limit, offset = domain.NormalizePage(limit, offset)
	return e.store.Transfers().List(ctx, limit, offset)
}

func (e *Engine) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.Transfer, error) {
	if _, err := e.store.Accounts().FindByID(ctx, accountID); err != nil {
		return nil, err
	}
	limit, offset = domain.NormalizePage(limit, offset)
	return e.store.Transfers().ListByAccount(ctx, accountID, limit, offset)
}

func (e *Engine) appendEvent(ctx context.Context, sc txn.Scope, eventType string, t *domain.Transfer) error {
	ev, err := domain.NewOutboxEvent(eventType, t.ID, t.AccountID, map[string]interface{}{
		"transferId":  t.ID,
		"status":      t.Status,
		"blockedStep": t.BlockedStep,
		"amount":      t.Amount.StringFixed(2),
		"blockReason": t.BlockReason,
	})
	if err != nil {
		return errors.Wrap(err, "encode "+eventType)
	}
	return sc.Outbox().Append(ctx, ev)
}
