// Package asrclient calls the speech-recognition service with raw audio.
package asrclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"agentcag/pkg/domain"
)

// Client calls the ASR service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs an ASR service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Transcribe sends raw audio bytes with their content type and returns the
// recognized text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, contentType string) (domain.Transcription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", bytes.NewReader(audio))
	if err != nil {
		return domain.Transcription{}, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("asr service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return domain.Transcription{}, fmt.Errorf("asr service: %s", resp.Status)
	}
	var tr domain.Transcription
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return domain.Transcription{}, fmt.Errorf("asr service: decode: %w", err)
	}
	return tr, nil
}
