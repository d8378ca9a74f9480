package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"wabridge/internal/core/account"
	"wabridge/platform/logger"
)

// StatusSink publica transições de status no endpoint do sistema externo.
// Fire-and-forget: falhas são registradas e descartadas, nunca propagadas.
// O sistema externo consulta o status autoritativo via Control API quando
// perde uma notificação.
type StatusSink struct {
	url        string
	secret     string
	logger     *logger.Logger
	httpClient *http.Client
}

// NewStatusSink cria um sink de status apontando para a URL externa
func NewStatusSink(url, secret string, log *logger.Logger) *StatusSink {
	return &StatusSink{
		url:    url,
		secret: secret,
		logger: log.WithModule("status-sink"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// PushStatus envia a transição de status, engolindo qualquer falha
func (s *StatusSink) PushStatus(ctx context.Context, update *account.StatusUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		s.logger.ErrorWithFields("Failed to marshal status update", map[string]interface{}{
			"account_id": update.AccountID,
			"error":      err.Error(),
		})
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(payload))
	if err != nil {
		s.logger.ErrorWithFields("Failed to create status request", map[string]interface{}{
			"account_id": update.AccountID,
			"error":      err.Error(),
		})
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Webhook-Account", update.AccountID)
	if s.secret != "" {
		req.Header.Set("X-Webhook-Signature", signPayload(payload, s.secret))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.WarnWithFields("Status push failed", map[string]interface{}{
			"account_id": update.AccountID,
			"status":     update.Status,
			"error":      err.Error(),
		})
		return
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.WarnWithFields("Status push rejected", map[string]interface{}{
			"account_id":  update.AccountID,
			"status":      update.Status,
			"status_code": resp.StatusCode,
		})
		return
	}

	s.logger.DebugWithFields("Status pushed", map[string]interface{}{
		"account_id": update.AccountID,
		"status":     update.Status,
	})
}

var _ account.StatusSink = (*StatusSink)(nil)
