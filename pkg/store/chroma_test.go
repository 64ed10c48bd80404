package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChromaEnsureCollection(t *testing.T) {
	var gotReq chromaCollectionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/collections" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "col-123"})
	}))
	defer srv.Close()

	c := newChromaClient(srv.URL)
	id, err := c.EnsureCollection(context.Background(), "agent_embeddings")
	if err != nil {
		t.Fatalf("ensure collection: %v", err)
	}
	if id != "col-123" {
		t.Errorf("collection id = %q", id)
	}
	if gotReq.Name != "agent_embeddings" || !gotReq.GetOrCreate {
		t.Errorf("unexpected request payload: %+v", gotReq)
	}
}

func TestChromaQueryUnwrapsNestedRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/collections/col-123/query" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(chromaQueryResponse{
			IDs:       [][]string{{"a", "b"}},
			Documents: [][]string{{"doc a", "doc b"}},
			Distances: [][]float64{{0.1, 0.4}},
		})
	}))
	defer srv.Close()

	c := newChromaClient(srv.URL)
	ids, docs, dists, err := c.Query(context.Background(), "col-123", "query text", 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" {
		t.Errorf("ids = %v", ids)
	}
	if len(docs) != 2 || docs[1] != "doc b" {
		t.Errorf("docs = %v", docs)
	}
	if len(dists) != 2 || dists[1] != 0.4 {
		t.Errorf("distances = %v", dists)
	}
}

func TestChromaQueryEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chromaQueryResponse{})
	}))
	defer srv.Close()

	c := newChromaClient(srv.URL)
	ids, docs, dists, err := c.Query(context.Background(), "col-123", "query text", 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if ids != nil || docs != nil || dists != nil {
		t.Errorf("expected nil slices, got %v %v %v", ids, docs, dists)
	}
}

func TestChromaSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "collection not found"})
	}))
	defer srv.Close()

	c := newChromaClient(srv.URL)
	if err := c.Add(context.Background(), "missing", []string{"a"}, []string{"doc"}); err == nil {
		t.Fatal("expected error from failing add")
	}
}

func TestChromaHeartbeat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/heartbeat" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]int64{"nanosecond heartbeat": 1})
	}))
	defer srv.Close()

	c := newChromaClient(srv.URL)
	if err := c.Heartbeat(context.Background()); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	srv.Close()
	if err := c.Heartbeat(context.Background()); err == nil {
		t.Error("expected heartbeat failure after server shutdown")
	}
}
