// Package credit implements credit requests: a customer asks for funds, an
// operator approves or rejects, and approval credits the account exactly
// once.
package credit

import (
	"context"
	"strconv"
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
	Credit(ctx context.Context, sc txn.Scope, accountID uuid.UUID, amount decimal.Decimal, reference uuid.UUID) (*domain.LedgerEntry, error)
	AccountIn(ctx context.Context, sc txn.Scope, accountID uuid.UUID) (*domain.Account, error)
}

type Engine struct {
	store  txn.Store
	ledger Ledger
	logger logger.Logger
}

func NewEngine(store txn.Store, ledger Ledger, log logger.Logger) *Engine {
	return &Engine{
		store:  store,
		ledger: ledger,
		logger: log,
	}
}

type CreateCreditRequest struct {
	AccountID uuid.UUID       `json:"accountId" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"required,gt=0,lt=10000000000000,money"`
	Reason    string          `json:"reason" validate:"max=500"`
}

// UpdateResult carries the request after the call. Account is set only when
// this call credited it.
type UpdateResult struct {
	Request *domain.CreditRequest
	Account *domain.Account
}

func (e *Engine) Create(ctx context.Context, req *CreateCreditRequest) (*domain.CreditRequest, error) {
	if !req.Amount.IsPositive() {
		return nil, errors.ErrInvalidAmount
	}

	now := time.Now().UTC()
	cr := &domain.CreditRequest{
		ID:        uuid.New(),
		AccountID: req.AccountID,
		Amount:    req.Amount,
		Reason:    strings.TrimSpace(req.Reason),
		Status:    domain.CreditRequestStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := e.store.WithinTx(ctx, func(ctx context.Context, sc txn.Scope) error {
		if _, err := sc.Accounts().FindByID(ctx, req.AccountID); err != nil {
			return err
		}
		if err := sc.CreditRequests().Create(ctx, cr); err != nil {
			return err
		}
		return e.appendEvent(ctx, sc, domain.EventCreditRequestCreated, cr)
	})
	if err != nil {
		return nil, errors.Wrap(err, "create credit request")
	}

	e.logger.Info("Credit request created", map[string]interface{}{
		"credit_request_id": cr.ID,
		"account_id":        cr.AccountID,
		"amount":            cr.Amount.String(),
	})

	return cr, nil
}

// UpdateStatus moves a pending request to approved or rejected. Approval
// credits the account in the same transaction. A request that is already
// decided is returned unchanged, whatever status was asked for.
func (e *Engine) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CreditRequestStatus) (*UpdateResult, error) {
	if !status.IsDecision() {
		return nil, errors.ErrInvalidStatus
	}

	result := &UpdateResult{}
	applied := false

	err := e.store.WithinTx(ctx, func(ctx context.Context, sc txn.Scope) error {
		now := time.Now().UTC()
		changed, err := sc.CreditRequests().Decide(ctx, id, status, now)
		if err != nil {
			return err
		}

		cr, err := sc.CreditRequests().FindByID(ctx, id)
		if err != nil {
			return err
		}
		result.Request = cr

		if !changed {
			return nil
		}
		applied = true

		eventType := domain.EventCreditRequestRejected
		if status == domain.CreditRequestStatusApproved {
			eventType = domain.EventCreditRequestApproved
			if _, err := e.ledger.Credit(ctx, sc, cr.AccountID, cr.Amount, cr.ID); err != nil {
				return err
			}
			account, err := e.ledger.AccountIn(ctx, sc, cr.AccountID)
			if err != nil {
				return err
			}
			result.Account = account
		}
		return e.appendEvent(ctx, sc, eventType, cr)
	})

	metrics.CreditDecisions.WithLabelValues(string(status), strconv.FormatBool(applied)).Inc()

	if err != nil {
		return nil, errors.Wrap(err, "update credit request status")
	}

	e.logger.Info("Credit request status updated", map[string]interface{}{
		"credit_request_id": id,
		"requested_status":  status,
		"status":            result.Request.Status,
		"applied":           applied,
	})

	return result, nil
}

func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*domain.CreditRequest, error) {
	return e.store.CreditRequests().FindByID(ctx, id)
}

func (e *Engine) List(ctx context.Context, limit, offset int) ([]*domain.CreditRequest, error) {
	limit, offset = domain.NormalizePage(limit, offset)
	return e.store.CreditRequests().List(ctx, limit, offset)
}

func (e *Engine) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.CreditRequest, error) {
	if _, err := e.store.Accounts().FindByID(ctx, accountID); err != nil {
		return nil, err
	}
	limit, offset = domain.NormalizePage(limit, offset)
	return e.store.CreditRequests().ListByAccount(ctx, accountID, limit, offset)
}

func (e *Engine) appendEvent(ctx context.Context, sc txn.Scope, eventType string, cr *domain.CreditRequest) error {
	ev, err := domain.NewOutboxEvent(eventType, cr.ID, cr.AccountID, map[string]interface{}{
		"creditRequestId": cr.ID,
		"status":          cr.Status,
		"amount":          cr.Amount.StringFixed(2),
	})
	if err != nil {
		return errors.Wrap(err, "encode "+eventType)
	}
	return sc.Outbox().Append(ctx, ev)
}
