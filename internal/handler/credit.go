package handler

import (
	"net/http"

	"usalli/internal/credit"
	"usalli/internal/domain"
	"usalli/pkg/logger"
	"usalli/pkg/validator"
)

type CreditHandler struct {
	engine    *credit.Engine
	access    *AccountAccess
	validator *validator.Validator
	logger    logger.Logger
}

func NewCreditHandler(engine *credit.Engine, access *AccountAccess, val *validator.Validator, log logger.Logger) *CreditHandler {
	return &CreditHandler{engine: engine, access: access, validator: val, logger: log}
}

type updateCreditStatusRequest struct {
	Status domain.CreditRequestStatus `json:"status" validate:"required,oneof=approved rejected"`
}

// CreateCreditRequest handles POST /credit-requests.
func (h *CreditHandler) CreateCreditRequest(w http.ResponseWriter, r *http.Request) {
	var req credit.CreateCreditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	if _, err := h.access.Authorize(r.Context(), req.AccountID); err != nil {
		respondServiceError(w, r, h.logger, err, "Create credit request")
		return
	}

	cr, err := h.engine.Create(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Create credit request")
		return
	}
	respondJSON(w, http.StatusCreated, newCreditRequestResponse(cr))
}

// GetCreditRequest handles GET /credit-requests/{id}.
func (h *CreditHandler) GetCreditRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	cr, err := h.engine.Get(r.Context(), id)
	if err == nil {
		_, err = h.access.Authorize(r.Context(), cr.AccountID)
	}
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Get credit request")
		return
	}
	respondJSON(w, http.StatusOK, newCreditRequestResponse(cr))
}

// ListCreditRequests handles GET /credit-requests.
func (h *CreditHandler) ListCreditRequests(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	requests, err := h.engine.List(r.Context(), limit, offset)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "List credit requests")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"creditRequests": creditRequestViews(requests),
		"limit":          limit,
		"offset":         offset,
	})
}

// UpdateStatus handles PUT /credit-requests/{id}. updatedUser is present only
// when this call credited the account.
func (h *CreditHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateCreditStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	res, err := h.engine.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Update credit request")
		return
	}

	body := map[string]interface{}{"updatedRequest": newCreditRequestResponse(res.Request)}
	if res.Account != nil {
		body["updatedUser"] = newAccountResponse(res.Account)
	}
	respondJSON(w, http.StatusOK, body)
}

func creditRequestViews(requests []*domain.CreditRequest) []*creditRequestResponse {
	out := make([]*creditRequestResponse, 0, len(requests))
	for _, cr := range requests {
		out = append(out, newCreditRequestResponse(cr))
	}
	return out
}
