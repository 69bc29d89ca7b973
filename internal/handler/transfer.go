package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"usalli/internal/domain"
	"usalli/internal/settings"
	"usalli/internal/transfer"
	"usalli/internal/unlock"
	"usalli/pkg/logger"
	"usalli/pkg/validator"
)

type TransferHandler struct {
	engine    *transfer.Engine
	codes     *unlock.Registry
	settings  *settings.Service
	access    *AccountAccess
	validator *validator.Validator
	logger    logger.Logger
}

func NewTransferHandler(engine *transfer.Engine, codes *unlock.Registry, settingsService *settings.Service, access *AccountAccess, val *validator.Validator, log logger.Logger) *TransferHandler {
	return &TransferHandler{
		engine:    engine,
		codes:     codes,
		settings:  settingsService,
		access:    access,
		validator: val,
		logger:    log,
	}
}

type issueCodeRequest struct {
	TransferID uuid.UUID `json:"transferId" validate:"required"`
	Step       int       `json:"step" validate:"required,min=1,max=4"`
}

type verifyCodeRequest struct {
	TransferID uuid.UUID `json:"transferId" validate:"required"`
	Step       int       `json:"step" validate:"required,min=1,max=4"`
	Code       string    `json:"code" validate:"required,unlock_code"`
}

// CreateTransfer handles POST /transfers.
func (h *TransferHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req transfer.CreateTransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	if _, err := h.access.Authorize(r.Context(), req.AccountID); err != nil {
		respondServiceError(w, r, h.logger, err, "Create transfer")
		return
	}

	res, err := h.engine.CreateTransfer(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Create transfer")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"newTransfer": h.transferView(r.Context(), res.Transfer),
		"updatedUser": newAccountResponse(res.Account),
	})
}

// UpdateTransfer handles PUT /transfers/{id}.
func (h *TransferHandler) UpdateTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var update domain.TransferUpdate
	if !decodeJSON(w, r, &update) {
		return
	}

	t, err := h.engine.UpdateTransfer(r.Context(), id, update)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Update transfer")
		return
	}
	respondJSON(w, http.StatusOK, h.transferView(r.Context(), t))
}

// GenerateCode handles POST /transfers/generate-code.
func (h *TransferHandler) GenerateCode(w http.ResponseWriter, r *http.Request) {
	var req issueCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	code, err := h.codes.IssueCode(r.Context(), req.TransferID, req.Step)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Issue unlock code")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"code":      code.Code,
		"expiresAt": code.ExpiresAt,
	})
}

// VerifyCode handles POST /transfers/verify-code. A rejected code is a
// normal 200 response with success=false.
func (h *TransferHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	if _, err := h.authorizeTransfer(r.Context(), req.TransferID); err != nil {
		respondServiceError(w, r, h.logger, err, "Verify unlock code")
		return
	}

	res, err := h.engine.VerifyStep(r.Context(), req.TransferID, req.Step, req.Code)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Verify unlock code")
		return
	}

	body := map[string]interface{}{"success": res.Success}
	if res.Success {
		body["updatedUser"] = newAccountResponse(res.Account)
	}
	respondJSON(w, http.StatusOK, body)
}

// GetTransfer handles GET /transfers/{id}.
func (h *TransferHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.authorizeTransfer(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Get transfer")
		return
	}
	respondJSON(w, http.StatusOK, h.transferView(r.Context(), t))
}

// ListTransfers handles GET /transfers.
func (h *TransferHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	transfers, err := h.engine.List(r.Context(), limit, offset)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "List transfers")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transfers": transferViews(transfers),
		"limit":     limit,
		"offset":    offset,
	})
}

// authorizeTransfer loads the transfer and checks the caller may use its
// account.
func (h *TransferHandler) authorizeTransfer(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	t, err := h.engine.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := h.access.Authorize(ctx, t.AccountID); err != nil {
		return nil, err
	}
	return t, nil
}

// transferView attaches the operator message for a blocked transfer's
// current step. A settings read failure only drops the message.
func (h *TransferHandler) transferView(ctx context.Context, t *domain.Transfer) *transferResponse {
	view := newTransferResponse(t)
	if t.Status != domain.TransferStatusBlocked {
		return view
	}
	msg, err := h.settings.MessageForStep(ctx, t.BlockedStep)
	if err != nil {
		h.logger.Warn("Block message unavailable", map[string]interface{}{
			"transfer_id": t.ID,
			"error":       err.Error(),
		})
		return view
	}
	view.BlockMessage = msg
	return view
}

func transferViews(transfers []*domain.Transfer) []*transferResponse {
	out := make([]*transferResponse, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, newTransferResponse(t))
	}
	return out
}
