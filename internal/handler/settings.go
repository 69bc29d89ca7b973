package handler

import (
	"net/http"

	"usalli/internal/settings"
	"usalli/pkg/logger"
	"usalli/pkg/validator"
)

type SettingsHandler struct {
	service   *settings.Service
	validator *validator.Validator
	logger    logger.Logger
}

func NewSettingsHandler(service *settings.Service, val *validator.Validator, log logger.Logger) *SettingsHandler {
	return &SettingsHandler{service: service, validator: val, logger: log}
}

// GetBlockMessages handles GET /settings/block-messages.
func (h *SettingsHandler) GetBlockMessages(w http.ResponseWriter, r *http.Request) {
	bm, err := h.service.BlockMessages(r.Context())
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Get block messages")
		return
	}
	respondJSON(w, http.StatusOK, bm)
}

// UpdateBlockMessages handles PUT /settings/block-messages.
func (h *SettingsHandler) UpdateBlockMessages(w http.ResponseWriter, r *http.Request) {
	var req settings.UpdateBlockMessagesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	bm, err := h.service.UpdateBlockMessages(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Update block messages")
		return
	}
	respondJSON(w, http.StatusOK, bm)
}
