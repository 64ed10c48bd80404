// Package ttsclient calls the speech-synthesis service.
package ttsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client calls the TTS service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Synthesis describes a rendered audio clip.
type Synthesis struct {
	AudioURL string  `json:"audio_url"`
	Duration float64 `json:"duration"`
	Format   string  `json:"format"`
}

// NewClient constructs a TTS service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Synthesize renders text to speech and returns the audio location.
func (c *Client) Synthesize(ctx context.Context, text string, useSardaukar bool) (Synthesis, error) {
	body, err := json.Marshal(map[string]any{
		"text":          text,
		"use_sardaukar": useSardaukar,
	})
	if err != nil {
		return Synthesis{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return Synthesis{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Synthesis{}, fmt.Errorf("tts service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Synthesis{}, fmt.Errorf("tts service: %s", resp.Status)
	}
	var syn Synthesis
	if err := json.NewDecoder(resp.Body).Decode(&syn); err != nil {
		return Synthesis{}, fmt.Errorf("tts service: decode: %w", err)
	}
	if syn.AudioURL == "" {
		return Synthesis{}, fmt.Errorf("tts service: missing audio url")
	}
	return syn, nil
}
