package sink

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabridge/internal/core/account"
	"wabridge/platform/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.TestConfig())
}

func TestWebhookSinkForwardsEnvelope(t *testing.T) {
	var received account.MessageEnvelope
	var signature string
	var deliveryID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get("X-Webhook-Signature")
		deliveryID = r.Header.Get("X-Webhook-Delivery")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))

		h := hmac.New(sha256.New, []byte("shh"))
		h.Write(body)
		assert.Equal(t, "sha256="+hex.EncodeToString(h.Sum(nil)), signature)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	s := NewWebhookSink(server.URL, "shh", testLogger())
	err := s.ForwardMessage(context.Background(), &account.MessageEnvelope{
		AccountID: "acc-1",
		MessageID: "m1",
		Type:      "text",
		Body:      "hello",
		Timestamp: 1700000000,
	})
	require.NoError(t, err)
	assert.Equal(t, "acc-1", received.AccountID)
	assert.Equal(t, "hello", received.Body)
	assert.NotEmpty(t, signature)
	assert.NotEmpty(t, deliveryID)
}

func TestWebhookSinkNon2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	s := NewWebhookSink(server.URL, "", testLogger())
	err := s.ForwardMessage(context.Background(), &account.MessageEnvelope{AccountID: "acc-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestStatusSinkPushesUpdate(t *testing.T) {
	var received account.StatusUpdate

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewStatusSink(server.URL, "", testLogger())
	s.PushStatus(context.Background(), &account.StatusUpdate{
		AccountID: "acc-1",
		Status:    "CONNECTED",
		Phone:     "966512345678",
	})

	assert.Equal(t, "acc-1", received.AccountID)
	assert.Equal(t, "CONNECTED", received.Status)
	assert.Equal(t, "966512345678", received.Phone)
}

func TestStatusSinkSwallowsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	s := NewStatusSink(server.URL, "", testLogger())

	// Falha HTTP não pode escapar como panic ou erro
	s.PushStatus(context.Background(), &account.StatusUpdate{AccountID: "acc-1", Status: "WAITING"})

	server.Close()

	// Endpoint fora do ar também é engolido
	s.PushStatus(context.Background(), &account.StatusUpdate{AccountID: "acc-1", Status: "DISCONNECTED"})
}

func TestMediaFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer server.Close()

	f := NewHTTPMediaFetcher(testLogger())
	data, mimetype, err := f.Fetch(context.Background(), server.URL+"/img.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
	assert.Equal(t, "image/png", mimetype)
}

func TestMediaFetcherRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := NewHTTPMediaFetcher(testLogger())
	_, _, err := f.Fetch(context.Background(), server.URL+"/missing.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestMediaFetcherRejectsInvalidURL(t *testing.T) {
	f := NewHTTPMediaFetcher(testLogger())

	_, _, err := f.Fetch(context.Background(), "ftp://example.com/file")
	assert.Error(t, err)

	_, _, err = f.Fetch(context.Background(), "not a url")
	assert.Error(t, err)
}
