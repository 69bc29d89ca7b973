// Package handler exposes the bank core over JSON HTTP.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"usalli/internal/domain"
	"usalli/internal/middleware"
	"usalli/pkg/errors"
	"usalli/pkg/logger"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondValidationErrors(w http.ResponseWriter, errs map[string]string) {
	respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":             "Validation failed",
		"validation_errors": errs,
	})
}

// respondServiceError maps an engine error to its HTTP status. Only internal
// errors are logged; their detail never reaches the client.
func respondServiceError(w http.ResponseWriter, r *http.Request, log logger.Logger, err error, action string) {
	status := http.StatusInternalServerError
	switch errors.KindOf(err) {
	case errors.KindNotFound:
		status = http.StatusNotFound
	case errors.KindValidation:
		status = http.StatusBadRequest
	case errors.KindConflict:
		status = http.StatusConflict
	case errors.KindForbidden:
		status = http.StatusForbidden
	default:
		log.Error(action+" failed", map[string]interface{}{
			"error":      err.Error(),
			"request_id": middleware.RequestIDFromContext(r.Context()),
		})
	}
	respondError(w, status, errors.PublicMessage(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func pagination(r *http.Request) (int, int) {
	limit, offset := 0, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return domain.NormalizePage(limit, offset)
}

// Response shapes. Money is rendered with two decimals.

type accountResponse struct {
	ID         uuid.UUID `json:"id"`
	HolderName string    `json:"holderName"`
	Balance    string    `json:"balance"`
}

func newAccountResponse(a *domain.Account) *accountResponse {
	if a == nil {
		return nil
	}
	return &accountResponse{
		ID:         a.ID,
		HolderName: a.HolderName,
		Balance:    a.Balance.StringFixed(2),
	}
}

type transferResponse struct {
	ID                uuid.UUID             `json:"id"`
	AccountID         uuid.UUID             `json:"accountId"`
	Amount            string                `json:"amount"`
	AccountHolderName string                `json:"accountHolderName"`
	AccountNumber     string                `json:"accountNumber"`
	RoutingNumber     string                `json:"routingNumber"`
	Reason            string                `json:"reason"`
	Status            domain.TransferStatus `json:"status"`
	BlockedStep       int                   `json:"blockedStep"`
	BlockReason       *string               `json:"blockReason"`
	BlockMessage      string                `json:"blockMessage,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
	CompletedAt       *time.Time            `json:"completedAt"`
}

func newTransferResponse(t *domain.Transfer) *transferResponse {
	return &transferResponse{
		ID:                t.ID,
		AccountID:         t.AccountID,
		Amount:            t.Amount.StringFixed(2),
		AccountHolderName: t.AccountHolderName,
		AccountNumber:     t.AccountNumber,
		RoutingNumber:     t.RoutingNumber,
		Reason:            t.Reason,
		Status:            t.Status,
		BlockedStep:       t.BlockedStep,
		BlockReason:       t.BlockReason,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		CompletedAt:       t.CompletedAt,
	}
}

type creditRequestResponse struct {
	ID        uuid.UUID                  `json:"id"`
	AccountID uuid.UUID                  `json:"accountId"`
	Amount    string                     `json:"amount"`
	Reason    string                     `json:"reason"`
	Status    domain.CreditRequestStatus `json:"status"`
	CreatedAt time.Time                  `json:"createdAt"`
	UpdatedAt time.Time                  `json:"updatedAt"`
}

func newCreditRequestResponse(cr *domain.CreditRequest) *creditRequestResponse {
	return &creditRequestResponse{
		ID:        cr.ID,
		AccountID: cr.AccountID,
		Amount:    cr.Amount.StringFixed(2),
		Reason:    cr.Reason,
		Status:    cr.Status,
		CreatedAt: cr.CreatedAt,
		UpdatedAt: cr.UpdatedAt,
	}
}

type entryResponse struct {
	ID           uuid.UUID        `json:"id"`
	Reference    uuid.UUID        `json:"reference"`
	EntryType    domain.EntryType `json:"entryType"`
	Amount       string           `json:"amount"`
	BalanceAfter string           `json:"balanceAfter"`
	CreatedAt    time.Time        `json:"createdAt"`
}

func newEntryResponse(e *domain.LedgerEntry) *entryResponse {
	return &entryResponse{
		ID:           e.ID,
		Reference:    e.Reference,
		EntryType:    e.EntryType,
		Amount:       e.Amount.StringFixed(2),
		BalanceAfter: e.BalanceAfter.StringFixed(2),
		CreatedAt:    e.CreatedAt,
	}
}
