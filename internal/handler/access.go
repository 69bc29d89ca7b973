package handler

import (
	"context"

	"github.com/google/uuid"

	"usalli/internal/domain"
	"usalli/internal/ledger"
	"usalli/internal/middleware"
	"usalli/pkg/errors"
)

// AccountAccess scopes customer calls to the accounts they own. Admins may
// act on any account; with auth disabled every caller may.
type AccountAccess struct {
	ledger  *ledger.Service
	enabled bool
}

func NewAccountAccess(ledgerService *ledger.Service, authEnabled bool) *AccountAccess {
	return &AccountAccess{ledger: ledgerService, enabled: authEnabled}
}

// Authorize loads the account and checks the caller in ctx may use it.
func (a *AccountAccess) Authorize(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	acc, err := a.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !a.enabled {
		return acc, nil
	}
	if userType, _ := middleware.UserTypeFromContext(ctx); userType == middleware.UserTypeAdmin {
		return acc, nil
	}
	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok || !acc.OwnedBy(userID) {
		return nil, errors.ErrAccountAccessDenied
	}
	return acc, nil
}
