// Package extract calls an external text-extraction sidecar for binary
// document formats.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single extraction request.
	DefaultTimeout = 60 * time.Second

	maxResponseBytes = 32 * 1024 * 1024
)

// HTTPExtractor posts PDF bytes to `{baseURL}/parse` and reads back the text.
type HTTPExtractor struct {
	baseURL string
	client  *http.Client
}

// parseResponse is the sidecar response format.
type parseResponse struct {
	Text  string `json:"text"`
	Pages int    `json:"pages"`
	Error string `json:"error,omitempty"`
}

// NewHTTPExtractor creates an extractor for the sidecar at baseURL.
func NewHTTPExtractor(baseURL string, timeout time.Duration) *HTTPExtractor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPExtractor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Extract returns the plain text of a PDF document.
func (e *HTTPExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/parse", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling extraction service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var result parseResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if resp.StatusCode >= 400 {
			return "", fmt.Errorf("extraction service returned %d", resp.StatusCode)
		}
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if result.Error != "" {
		return "", fmt.Errorf("pdf parse error: %s", result.Error)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("extraction service returned %d", resp.StatusCode)
	}

	return result.Text, nil
}
