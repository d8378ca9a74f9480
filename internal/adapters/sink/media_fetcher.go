package sink

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"wabridge/internal/core/account"
	"wabridge/platform/logger"
)

// maxMediaBytes limite de download de mídia referenciada por URL
const maxMediaBytes = 64 << 20

// HTTPMediaFetcher baixa mídia de URLs para requisições de envio
type HTTPMediaFetcher struct {
	logger     *logger.Logger
	httpClient *http.Client
}

// NewHTTPMediaFetcher cria um fetcher de mídia via HTTP
func NewHTTPMediaFetcher(log *logger.Logger) *HTTPMediaFetcher {
	return &HTTPMediaFetcher{
		logger: log.WithModule("media-fetcher"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Fetch baixa o recurso e retorna os bytes com o mimetype reportado
func (f *HTTPMediaFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, "", fmt.Errorf("invalid media URL: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("media download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("media download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media body: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, "", fmt.Errorf("media exceeds size limit of %d bytes", maxMediaBytes)
	}

	mimetype := resp.Header.Get("Content-Type")
	if mimetype == "" {
		mimetype = http.DetectContentType(data)
	}

	f.logger.DebugWithFields("Media fetched", map[string]interface{}{
		"url":       rawURL,
		"mimetype":  mimetype,
		"file_size": len(data),
	})

	return data, mimetype, nil
}

var _ account.MediaFetcher = (*HTTPMediaFetcher)(nil)
