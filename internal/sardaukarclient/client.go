// Package sardaukarclient calls the Sardaukar constructed-language
// translator. Callers treat any failure here as a cue to fall back to the
// untranslated text, never as a request failure.
package sardaukarclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client calls the translator service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a translator client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Translate returns the Sardaukar rendering of text.
func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"text":              text,
		"include_phonetics": false,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/translate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sardaukar translator: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("sardaukar translator: %s", resp.Status)
	}
	var result struct {
		Sardaukar string `json:"sardaukar"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("sardaukar translator: decode: %w", err)
	}
	if strings.TrimSpace(result.Sardaukar) == "" {
		return "", fmt.Errorf("sardaukar translator: empty translation")
	}
	return result.Sardaukar, nil
}
