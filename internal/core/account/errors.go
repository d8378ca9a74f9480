package account

import "errors"

// Erros do domínio de contas
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountNotReady = errors.New("account not ready")
	ErrInvalidTarget   = errors.New("invalid message target")
	ErrEmptyMessage    = errors.New("message has no content")
	ErrMediaFetch      = errors.New("failed to fetch media")
	ErrManagerStopped  = errors.New("account manager stopped")
)
