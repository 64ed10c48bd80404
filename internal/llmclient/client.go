// Package llmclient calls the language-model service over HTTP. The service
// degrades internally (falling back to a canned answer with fallback=true in
// metadata) before surfacing errors, so client-level failures are rare.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client calls the LLM service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Generation is the model's answer plus provenance metadata.
type Generation struct {
	Text       string         `json:"text"`
	TokensUsed int            `json:"tokens_used"`
	Model      string         `json:"model"`
	Metadata   map[string]any `json:"metadata"`
}

// NewClient constructs an LLM service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Generate produces a model answer for the given text within maxTokens.
func (c *Client) Generate(ctx context.Context, text string, maxTokens int) (Generation, error) {
	body, err := json.Marshal(map[string]any{
		"text":       text,
		"max_tokens": maxTokens,
	})
	if err != nil {
		return Generation{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return Generation{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Generation{}, fmt.Errorf("llm service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Generation{}, fmt.Errorf("llm service: %s", resp.Status)
	}
	var gen Generation
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return Generation{}, fmt.Errorf("llm service: decode: %w", err)
	}
	if gen.Metadata == nil {
		gen.Metadata = map[string]any{}
	}
	return gen, nil
}
