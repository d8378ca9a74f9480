package services

import (
	"context"
	"errors"
	"fmt"

	"wabridge/internal/core/account"
	"wabridge/internal/services/shared/validation"
	"wabridge/platform/logger"
)

// ErrValidation marca falhas de validação de entrada, mapeadas para 400
var ErrValidation = errors.New("validation failed")

// InitializeRequest dados para inicializar ou reiniciar uma conta
type InitializeRequest struct {
	AccountID      string `json:"accountId" validate:"required,account_id"`
	ReferencePhone string `json:"referencePhone,omitempty" validate:"omitempty,phone_number"`
	Force          bool   `json:"force,omitempty"`
}

// SendRequest dados para envio de mensagem
type SendRequest struct {
	AccountID   string `json:"accountId" validate:"required,account_id"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	ChatID      string `json:"chatId,omitempty"`
	Message     string `json:"message,omitempty" validate:"max=65536"`
	MediaURL    string `json:"mediaUrl,omitempty" validate:"omitempty,url"`
	Mimetype    string `json:"mimetype,omitempty"`
	Filename    string `json:"filename,omitempty" validate:"max=255"`
	Caption     string `json:"caption,omitempty" validate:"max=4096"`
}

// DisconnectRequest dados para desconectar uma conta
type DisconnectRequest struct {
	AccountID string `json:"accountId" validate:"required,account_id"`
}

// AccountService valida entradas e delega ao Manager.
// É a fronteira entre a Control API e o núcleo.
type AccountService struct {
	manager   *account.Manager
	validator *validation.Validator
	logger    *logger.Logger
}

// NewAccountService cria o serviço de contas
func NewAccountService(manager *account.Manager, validator *validation.Validator, log *logger.Logger) *AccountService {
	return &AccountService{
		manager:   manager,
		validator: validator,
		logger:    log.WithModule("account-service"),
	}
}

// Initialize inicializa a conta; com Force força reinicialização completa
func (s *AccountService) Initialize(ctx context.Context, req *InitializeRequest) (account.Snapshot, error) {
	if err := s.validator.ValidateStruct(req); err != nil {
		return account.Snapshot{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if req.Force {
		return s.manager.Restart(ctx, req.AccountID)
	}
	return s.manager.Initialize(ctx, req.AccountID, req.ReferencePhone)
}

// Send envia uma mensagem de texto ou mídia
func (s *AccountService) Send(ctx context.Context, req *SendRequest) (*account.SendResult, error) {
	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.PhoneNumber == "" && req.ChatID == "" {
		return nil, fmt.Errorf("%w: phoneNumber or chatId is required", ErrValidation)
	}
	if req.Message == "" && req.MediaURL == "" {
		return nil, fmt.Errorf("%w: message or mediaUrl is required", ErrValidation)
	}

	return s.manager.Send(ctx, &account.SendMessageInput{
		AccountID:   req.AccountID,
		PhoneNumber: req.PhoneNumber,
		ChatID:      req.ChatID,
		Body:        req.Message,
		MediaURL:    req.MediaURL,
		Mimetype:    req.Mimetype,
		Filename:    req.Filename,
		Caption:     req.Caption,
	})
}

// Status retorna o snapshot de uma conta
func (s *AccountService) Status(accountID string) (account.Snapshot, error) {
	return s.manager.Status(accountID)
}

// AllStatuses retorna snapshots de todas as contas
func (s *AccountService) AllStatuses() []account.Snapshot {
	return s.manager.AllStatuses()
}

// Disconnect desliga e remove a conta
func (s *AccountService) Disconnect(ctx context.Context, req *DisconnectRequest) error {
	if err := s.validator.ValidateStruct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.manager.Disconnect(ctx, req.AccountID)
}
