package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"wabridge/internal/adapters/http/shared"
	"wabridge/internal/core/account"
	"wabridge/internal/services"
	"wabridge/platform/logger"
)

// AccountHandler expõe as operações de contas WhatsApp via HTTP.
// Única camada que traduz falhas do domínio em códigos de status.
type AccountHandler struct {
	service *services.AccountService
	writer  *shared.ResponseWriter
	logger  *logger.Logger
}

// NewAccountHandler cria novo handler de contas
func NewAccountHandler(service *services.AccountService, log *logger.Logger) *AccountHandler {
	return &AccountHandler{
		service: service,
		writer:  shared.NewResponseWriter(log),
		logger:  log.WithModule("account-handler"),
	}
}

// Initialize trata POST /accounts/initialize
func (h *AccountHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req services.InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writer.WriteBadRequest(w, "Invalid request body", err.Error())
		return
	}

	snapshot, err := h.service.Initialize(r.Context(), &req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writer.WriteSuccess(w, snapshot, "Account initialization started")
}

// Send trata POST /accounts/send
func (h *AccountHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req services.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writer.WriteBadRequest(w, "Invalid request body", err.Error())
		return
	}

	result, err := h.service.Send(r.Context(), &req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writer.WriteSuccess(w, result, "Message sent")
}

// StatusAll trata GET /accounts/status
func (h *AccountHandler) StatusAll(w http.ResponseWriter, r *http.Request) {
	h.writer.WriteSuccess(w, h.service.AllStatuses())
}

// StatusOne trata GET /accounts/{accountId}/status
func (h *AccountHandler) StatusOne(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	snapshot, err := h.service.Status(accountID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writer.WriteSuccess(w, snapshot)
}

// Disconnect trata POST /accounts/disconnect
func (h *AccountHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	var req services.DisconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writer.WriteBadRequest(w, "Invalid request body", err.Error())
		return
	}

	if err := h.service.Disconnect(r.Context(), &req); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writer.WriteSuccess(w, nil, "Account disconnected")
}

// writeDomainError mapeia falhas do domínio para códigos HTTP
func (h *AccountHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, account.ErrAccountNotFound):
		h.writer.WriteNotFound(w, err.Error())
	case errors.Is(err, account.ErrAccountNotReady):
		h.writer.WriteServiceUnavailable(w, err.Error())
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, account.ErrInvalidTarget),
		errors.Is(err, account.ErrEmptyMessage):
		h.writer.WriteBadRequest(w, err.Error())
	default:
		h.logger.ErrorWithFields("Unexpected error handling request", map[string]interface{}{
			"error": err.Error(),
		})
		h.writer.WriteInternalError(w, err.Error())
	}
}
