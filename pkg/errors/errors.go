// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport layers.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindForbidden
)

// Not found
var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrTransferNotFound      = errors.New("transfer not found")
	ErrCreditRequestNotFound = errors.New("credit request not found")
	ErrSettingNotFound       = errors.New("setting not found")
)

// Validation
var (
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrInvalidStep          = errors.New("step must be between 1 and 4")
	ErrInvalidStatus        = errors.New("status must be approved or rejected")
	ErrInvalidBlockMessages = errors.New("block step messages must contain exactly 4 non-empty entries")
	ErrEmptyUpdate          = errors.New("update contains no fields")
	ErrMissingRecipient     = errors.New("recipient holder name, account number and routing number are required")
)

// Forbidden
var (
	ErrAccountAccessDenied = errors.New("access to this account is not allowed")
)

// Conflict
var (
	ErrSettingsVersionConflict = errors.New("settings were modified concurrently")
	ErrDuplicateRequest        = errors.New("duplicate request in progress")
)

var kinds = map[error]Kind{
	ErrAccountNotFound:       KindNotFound,
	ErrTransferNotFound:      KindNotFound,
	ErrCreditRequestNotFound: KindNotFound,
	ErrSettingNotFound:       KindNotFound,

	ErrInvalidAmount:        KindValidation,
	ErrInvalidStep:          KindValidation,
	ErrInvalidStatus:        KindValidation,
	ErrInvalidBlockMessages: KindValidation,
	ErrEmptyUpdate:          KindValidation,
	ErrMissingRecipient:     KindValidation,

	ErrAccountAccessDenied: KindForbidden,

	ErrSettingsVersionConflict: KindConflict,
	ErrDuplicateRequest:        KindConflict,
}

// KindOf reports the kind of the first known sentinel found in err's chain.
func KindOf(err error) Kind {
	kind, _ := classify(err)
	return kind
}

// PublicMessage returns the text of the known sentinel in err's chain, safe
// to show to API clients. Internal errors get a generic message.
func PublicMessage(err error) string {
	if _, sentinel := classify(err); sentinel != nil {
		return sentinel.Error()
	}
	return "Internal server error"
}

func classify(err error) (Kind, error) {
	if err == nil {
		return KindInternal, nil
	}
	for sentinel, kind := range kinds {
		if errors.Is(err, sentinel) {
			return kind, sentinel
		}
	}
	return KindInternal, nil
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is is errors.Is, re-exported so callers importing this package as "errors"
// keep access to it.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
