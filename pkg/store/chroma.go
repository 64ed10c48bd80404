package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultChromaURL = "http://127.0.0.1:8005"

// chromaClient calls the Chroma HTTP API. The engine embeds documents
// server-side, so documents and query texts travel as plain text.
type chromaClient struct {
	baseURL    string
	httpClient *http.Client
}

func newChromaClient(baseURL string) *chromaClient {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultChromaURL
	}
	return &chromaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsureCollection gets or creates the named collection and returns its id.
func (c *chromaClient) EnsureCollection(ctx context.Context, name string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := c.doJSON(ctx, "/api/v1/collections", chromaCollectionRequest{
		Name:        name,
		GetOrCreate: true,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("chroma collection response missing id")
	}
	return resp.ID, nil
}

// Add indexes documents under the given ids.
func (c *chromaClient) Add(ctx context.Context, collectionID string, ids, documents []string) error {
	return c.doJSON(ctx, "/api/v1/collections/"+collectionID+"/add", chromaAddRequest{
		IDs:       ids,
		Documents: documents,
	}, nil)
}

// Query returns the nearest documents with their distances.
func (c *chromaClient) Query(ctx context.Context, collectionID, text string, limit int) (ids, documents []string, distances []float64, err error) {
	var resp chromaQueryResponse
	err = c.doJSON(ctx, "/api/v1/collections/"+collectionID+"/query", chromaQueryRequest{
		QueryTexts: []string{text},
		NResults:   limit,
		Include:    []string{"documents", "distances"},
	}, &resp)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil, nil, nil
	}
	return resp.IDs[0], first(resp.Documents), first(resp.Distances), nil
}

// Heartbeat checks that the engine answers.
func (c *chromaClient) Heartbeat(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/heartbeat", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("chroma heartbeat: %s", resp.Status)
	}
	return nil
}

func (c *chromaClient) doJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return fmt.Errorf("chroma api error: %s", errResp.Error)
		}
		return fmt.Errorf("chroma api error: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func first[T any](rows [][]T) []T {
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}

type chromaCollectionRequest struct {
	Name        string `json:"name"`
	GetOrCreate bool   `json:"get_or_create"`
}

type chromaAddRequest struct {
	IDs       []string `json:"ids"`
	Documents []string `json:"documents"`
}

type chromaQueryRequest struct {
	QueryTexts []string `json:"query_texts"`
	NResults   int      `json:"n_results"`
	Include    []string `json:"include"`
}

type chromaQueryResponse struct {
	IDs       [][]string  `json:"ids"`
	Documents [][]string  `json:"documents"`
	Distances [][]float64 `json:"distances"`
}
