// Package ledger owns account balances. Every change is a relative update
// applied inside the caller's transaction together with an append-only
// ledger entry.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"usalli/internal/domain"
	"usalli/internal/txn"
	"usalli/pkg/errors"
	"usalli/pkg/logger"
)

type Service struct {
	store  txn.Store
	logger logger.Logger
}

func NewService(store txn.Store, log logger.Logger) *Service {
	return &Service{
		store:  store,
		logger: log,
	}
}

// Debit subtracts amount from the account. There is no balance floor.
func (s *Service) Debit(ctx context.Context, sc txn.Scope, accountID uuid.UUID, amount decimal.Decimal, reference uuid.UUID) (*domain.LedgerEntry, error) {
	return s.post(ctx, sc, accountID, amount, reference, domain.EntryTypeDebit)
}

// Credit adds amount to the account.
func (s *Service) Credit(ctx context.Context, sc txn.Scope, accountID uuid.UUID, amount decimal.Decimal, reference uuid.UUID) (*domain.LedgerEntry, error) {
	return s.post(ctx, sc, accountID, amount, reference, domain.EntryTypeCredit)
}

func (s *Service) post(ctx context.Context, sc txn.Scope, accountID uuid.UUID, amount decimal.Decimal, reference uuid.UUID, entryType domain.EntryType) (*domain.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, errors.ErrInvalidAmount
	}

	delta := amount
	if entryType == domain.EntryTypeDebit {
		delta = amount.Neg()
	}

	balance, err := sc.Accounts().AddToBalance(ctx, accountID, delta)
	if err != nil {
		return nil, err
	}

	entry := &domain.LedgerEntry{
		ID:           uuid.New(),
		AccountID:    accountID,
		Reference:    reference,
		EntryType:    entryType,
		Amount:       amount,
		BalanceAfter: balance,
		CreatedAt:    time.Now().UTC(),
	}
	if err := sc.Accounts().AppendEntry(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Debug("Ledger entry posted", map[string]interface{}{
		"account_id":    accountID,
		"entry_type":    entryType,
		"amount":        amount.String(),
		"balance_after": balance.String(),
		"reference":     reference,
	})

	return entry, nil
}

// GetBalance reads the current balance outside any transaction.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return s.store.Accounts().FindByID(ctx, accountID)
}

// AccountIn reads the account inside sc, so it reflects changes made earlier
// in the same transaction.
func (s *Service) AccountIn(ctx context.Context, sc txn.Scope, accountID uuid.UUID) (*domain.Account, error) {
	return sc.Accounts().FindByID(ctx, accountID)
}

func (s *Service) BalanceIn(ctx context.Context, sc txn.Scope, accountID uuid.UUID) (decimal.Decimal, error) {
	account, err := s.AccountIn(ctx, sc, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// OpenAccount creates an account with no owner. With auth enabled only
// admins may act on it over the API.
func (s *Service) OpenAccount(ctx context.Context, holderName string, openingBalance decimal.Decimal) (*domain.Account, error) {
	return s.open(ctx, uuid.NullUUID{}, holderName, openingBalance)
}

// OpenAccountFor creates an account owned by the user with ownerUserID.
func (s *Service) OpenAccountFor(ctx context.Context, ownerUserID uuid.UUID, holderName string, openingBalance decimal.Decimal) (*domain.Account, error) {
	return s.open(ctx, uuid.NullUUID{UUID: ownerUserID, Valid: true}, holderName, openingBalance)
}

// open books a positive opening balance as a credit referencing the account
// itself.
func (s *Service) open(ctx context.Context, owner uuid.NullUUID, holderName string, openingBalance decimal.Decimal) (*domain.Account, error) {
	if openingBalance.IsNegative() {
		return nil, errors.ErrInvalidAmount
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:          uuid.New(),
		OwnerUserID: owner,
		HolderName:  holderName,
		Balance:     decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, sc txn.Scope) error {
		if err := sc.Accounts().Create(ctx, account); err != nil {
			return err
		}
		if openingBalance.IsPositive() {
			entry, err := s.Credit(ctx, sc, account.ID, openingBalance, account.ID)
			if err != nil {
				return err
			}
			account.Balance = entry.BalanceAfter
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "open account")
	}

	s.logger.Info("Account opened", map[string]interface{}{
		"account_id": account.ID,
		"owned":      owner.Valid,
		"balance":    account.Balance.String(),
	})

	return account, nil
}

func (s *Service) Entries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, error) {
	if _, err := s.store.Accounts().FindByID(ctx, accountID); err != nil {
		return nil, err
	}
	limit, offset = domain.NormalizePage(limit, offset)
	return s.store.Accounts().ListEntries(ctx, accountID, limit, offset)
}
