package sink

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"wabridge/internal/core/account"
	"wabridge/platform/logger"
)

const userAgent = "wabridge-webhook/1.0"

// WebhookSink entrega envelopes de mensagens ao webhook do sistema externo.
// Cada entrega é uma tentativa única; o corpo é assinado com HMAC-SHA256
// quando um segredo está configurado.
type WebhookSink struct {
	url        string
	secret     string
	logger     *logger.Logger
	httpClient *http.Client
}

// NewWebhookSink cria um sink de mensagens apontando para a URL do webhook
func NewWebhookSink(url, secret string, log *logger.Logger) *WebhookSink {
	return &WebhookSink{
		url:    url,
		secret: secret,
		logger: log.WithModule("webhook-sink"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ForwardMessage publica o envelope no webhook externo
func (s *WebhookSink) ForwardMessage(ctx context.Context, envelope *account.MessageEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	deliveryID := uuid.New().String()

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Webhook-Delivery", deliveryID)
	req.Header.Set("X-Webhook-Account", envelope.AccountID)
	req.Header.Set("X-Webhook-Timestamp", fmt.Sprintf("%d", envelope.Timestamp))
	if s.secret != "" {
		req.Header.Set("X-Webhook-Signature", signPayload(payload, s.secret))
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		body = []byte("failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	s.logger.DebugWithFields("Message forwarded to webhook", map[string]interface{}{
		"account_id":  envelope.AccountID,
		"message_id":  envelope.MessageID,
		"delivery_id": deliveryID,
		"status_code": resp.StatusCode,
		"latency":     time.Since(start).String(),
	})
	return nil
}

// signPayload gera a assinatura HMAC-SHA256 do corpo
func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
