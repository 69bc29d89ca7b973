package handler

import (
	"net/http"

	"github.com/google/uuid"

	"usalli/internal/credit"
	"usalli/internal/ledger"
	"usalli/internal/transfer"
	"usalli/pkg/logger"
)

type AccountHandler struct {
	ledger    *ledger.Service
	transfers *transfer.Engine
	credits   *credit.Engine
	access    *AccountAccess
	logger    logger.Logger
}

func NewAccountHandler(ledgerService *ledger.Service, transfers *transfer.Engine, credits *credit.Engine, access *AccountAccess, log logger.Logger) *AccountHandler {
	return &AccountHandler{
		ledger:    ledgerService,
		transfers: transfers,
		credits:   credits,
		access:    access,
		logger:    log,
	}
}

// accountID parses the path id and checks the caller may use the account.
func (h *AccountHandler) accountID(w http.ResponseWriter, r *http.Request, action string) (uuid.UUID, bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return uuid.Nil, false
	}
	if _, err := h.access.Authorize(r.Context(), id); err != nil {
		respondServiceError(w, r, h.logger, err, action)
		return uuid.Nil, false
	}
	return id, true
}

// GetAccount handles GET /accounts/{id}.
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	acc, err := h.access.Authorize(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Get account")
		return
	}
	respondJSON(w, http.StatusOK, newAccountResponse(acc))
}

// GetEntries handles GET /accounts/{id}/entries.
func (h *AccountHandler) GetEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r, "List ledger entries")
	if !ok {
		return
	}
	limit, offset := pagination(r)
	entries, err := h.ledger.Entries(r.Context(), id, limit, offset)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "List ledger entries")
		return
	}

	out := make([]*entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, newEntryResponse(e))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": out,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetTransfers handles GET /accounts/{id}/transfers.
func (h *AccountHandler) GetTransfers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r, "List account transfers")
	if !ok {
		return
	}
	limit, offset := pagination(r)
	transfers, err := h.transfers.ListByAccount(r.Context(), id, limit, offset)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "List account transfers")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transfers": transferViews(transfers),
		"limit":     limit,
		"offset":    offset,
	})
}

// GetCreditRequests handles GET /accounts/{id}/credit-requests.
func (h *AccountHandler) GetCreditRequests(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r, "List account credit requests")
	if !ok {
		return
	}
	limit, offset := pagination(r)
	requests, err := h.credits.ListByAccount(r.Context(), id, limit, offset)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "List account credit requests")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"creditRequests": creditRequestViews(requests),
		"limit":          limit,
		"offset":         offset,
	})
}
