package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"agentcag/internal/app"
	"agentcag/internal/llmclient"
	"agentcag/pkg/domain"
	"agentcag/pkg/store"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	dataStore := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err := dataStore.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize store: %v", err)
	}
	t.Cleanup(func() { dataStore.Close() })

	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text": "four", "tokens_used": 3, "model": "test-model",
		})
	}))
	t.Cleanup(llm.Close)

	a, err := app.New(app.Config{Store: dataStore, LLM: llmclient.NewClient(llm.URL)})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg.App = a
	if cfg.Profile == "" {
		cfg.Profile = store.ProfileEmbedded
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestQueryThenHistoryRoundTrip(t *testing.T) {
	srv := newTestServer(t, Config{})
	handler := srv.Router()

	rec := postJSON(t, handler, "/query", domain.QueryRequest{Text: "2+2?", UserID: "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("query status = %d, body %s", rec.Code, rec.Body.String())
	}
	var queryResp domain.QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &queryResp); err != nil {
		t.Fatalf("decode query response: %v", err)
	}
	if queryResp.QueryID == "" || queryResp.Text != "four" {
		t.Fatalf("unexpected query response: %+v", queryResp)
	}

	req := httptest.NewRequest(http.MethodGet, "/history/u1?limit=1", nil)
	hrec := httptest.NewRecorder()
	handler.ServeHTTP(hrec, req)
	if hrec.Code != http.StatusOK {
		t.Fatalf("history status = %d, body %s", hrec.Code, hrec.Body.String())
	}
	var historyResp domain.HistoryResponse
	if err := json.Unmarshal(hrec.Body.Bytes(), &historyResp); err != nil {
		t.Fatalf("decode history response: %v", err)
	}
	if historyResp.UserID != "u1" || len(historyResp.History) != 1 {
		t.Fatalf("unexpected history response: %+v", historyResp)
	}
	if historyResp.History[0].QueryText != "2+2?" {
		t.Errorf("history query_text = %q, want %q", historyResp.History[0].QueryText, "2+2?")
	}
	if historyResp.History[0].ResponseText != "four" {
		t.Errorf("history response_text = %q, want %q", historyResp.History[0].ResponseText, "four")
	}
}

func TestQueryValidationErrors(t *testing.T) {
	srv := newTestServer(t, Config{})
	handler := srv.Router()

	rec := postJSON(t, handler, "/query", map[string]string{"user_id": "u1"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing text status = %d, want 422", rec.Code)
	}

	rec = postJSON(t, handler, "/query", map[string]string{"text": "hi", "input_type": "carrier-pigeon"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad input_type status = %d, want 422", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader("{not json"))
	brec := httptest.NewRecorder()
	handler.ServeHTTP(brec, req)
	if brec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON status = %d, want 400", brec.Code)
	}
}

func TestQueryMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/query", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestSearchRequiresQueryParam(t *testing.T) {
	srv := newTestServer(t, Config{})
	handler := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/search?query=anything", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var searchResp domain.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &searchResp); err != nil {
		t.Fatalf("decode search response: %v", err)
	}
	if searchResp.Query != "anything" {
		t.Errorf("echoed query = %q", searchResp.Query)
	}
}

func TestSearchFindsStoredContent(t *testing.T) {
	srv := newTestServer(t, Config{})
	handler := srv.Router()

	rec := postJSON(t, handler, "/query", domain.QueryRequest{Text: "2+2?", UserID: "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("query status = %d", rec.Code)
	}

	// the stub model always answers "four", so the stored response matches
	req := httptest.NewRequest(http.MethodGet, "/search?query=four", nil)
	srec := httptest.NewRecorder()
	handler.ServeHTTP(srec, req)
	var searchResp domain.SearchResponse
	if err := json.Unmarshal(srec.Body.Bytes(), &searchResp); err != nil {
		t.Fatalf("decode search response: %v", err)
	}
	if len(searchResp.Results) == 0 {
		t.Fatal("expected at least one search hit")
	}
}

func TestHealthHealthy(t *testing.T) {
	srv := newTestServer(t, Config{Profile: store.ProfileEmbedded, Version: "test"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var health domain.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if health.Status != "healthy" || health.Profile != store.ProfileEmbedded {
		t.Errorf("unexpected health payload: %+v", health)
	}
}

func TestHealthUnhealthyStore(t *testing.T) {
	dataStore := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err := dataStore.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize store: %v", err)
	}
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "x"})
	}))
	t.Cleanup(llm.Close)
	a, _ := app.New(app.Config{Store: dataStore, LLM: llmclient.NewClient(llm.URL)})
	srv, err := New(Config{App: a, Profile: store.ProfileEmbedded})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	dataStore.Close()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHistoryUnknownPath(t *testing.T) {
	srv := newTestServer(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/history/", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("empty user id status = %d, want 404", rec.Code)
	}
}

func TestSpeechToTextNotConfigured(t *testing.T) {
	srv := newTestServer(t, Config{})
	req := httptest.NewRequest(http.MethodPost, "/speech-to-text", bytes.NewReader([]byte{0x01, 0x02}))
	req.Header.Set("Content-Type", "audio/wav")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestSpeechToTextEmptyBody(t *testing.T) {
	srv := newTestServer(t, Config{})
	req := httptest.NewRequest(http.MethodPost, "/speech-to-text", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestQueryRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	srv := newTestServer(t, Config{
		RedisAddr:               mr.Addr(),
		QueryRateLimitPerMinute: 2,
	})
	handler := srv.Router()

	body := domain.QueryRequest{Text: "hi", UserID: "u1"}
	for i := 0; i < 2; i++ {
		rec := postJSON(t, handler, "/query", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, body %s", i+1, rec.Code, rec.Body.String())
		}
	}
	rec := postJSON(t, handler, "/query", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", rec.Code)
	}
}

func TestSecurityHeadersPresent(t *testing.T) {
	srv := newTestServer(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}
