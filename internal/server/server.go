// Package server exposes the pipeline over HTTP. Fatal pipeline errors
// surface as opaque 500s; degraded-but-successful requests return 200 with
// flags in metadata.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agentcag/internal/app"
	"agentcag/internal/metrics"
	"agentcag/internal/ratelimit"
	"agentcag/internal/util"
	"agentcag/pkg/domain"
)

const (
	maxQueryBodyBytes = 1 << 20
	maxAudioBodyBytes = 16 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App     *app.App
	Profile string
	Version string

	// Optional per-IP rate limit on /query; disabled when limit is zero.
	RedisAddr               string
	RedisPassword           string
	QueryRateLimitPerMinute int
	TrustProxyHeaders       bool
}

// Server exposes HTTP endpoints for the pipeline.
type Server struct {
	app          *app.App
	profile      string
	version      string
	queryLimiter *ratelimit.FixedWindowLimiter
	trustProxy   bool
	mux          *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	s := &Server{
		app:        cfg.App,
		profile:    cfg.Profile,
		version:    cfg.Version,
		trustProxy: cfg.TrustProxyHeaders,
		mux:        http.NewServeMux(),
	}
	if cfg.QueryRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "agentcag:query",
			cfg.QueryRateLimitPerMinute, time.Minute)
		if err != nil {
			return nil, err
		}
		s.queryLimiter = limiter
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with middleware applied.
func (s *Server) Router() http.Handler {
	var handler http.Handler = s.mux
	handler = util.WithRequestLog(handler)
	handler = util.WithRequestID(handler)
	handler = util.WithCORS(handler)
	handler = util.WithSecurityHeaders(handler)
	return handler
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("/query", s.instrumented("/query", s.handleQuery))
	s.mux.HandleFunc("/history/", s.instrumented("/history", s.handleHistory))
	s.mux.HandleFunc("/search", s.instrumented("/search", s.handleSearch))
	s.mux.HandleFunc("/speech-to-text", s.instrumented("/speech-to-text", s.handleSpeechToText))
}

func (s *Server) instrumented(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.RequestCount.WithLabelValues(r.Method, endpoint).Inc()
		start := time.Now()
		next(w, r)
		metrics.RequestDuration.Observe(time.Since(start).Seconds())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.HealthCheck(r.Context()); err != nil {
		util.LoggerFromContext(r.Context()).Error("health check failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, "service unhealthy")
		return
	}
	writeJSON(w, http.StatusOK, domain.HealthResponse{
		Status:  "healthy",
		Service: "agent-api",
		Profile: s.profile,
		Version: s.version,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.queryLimiter != nil && !s.queryLimiter.Allow(util.ClientIP(r, s.trustProxy)) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req domain.QueryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxQueryBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	resp, err := s.app.ProcessQuery(r.Context(), req)
	if err != nil {
		if errors.Is(err, app.ErrTextRequired) || errors.Is(err, app.ErrInvalidInputType) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.internalError(w, r, "query processing failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID := strings.TrimPrefix(r.URL.Path, "/history/")
	if userID == "" || strings.Contains(userID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	limit := queryInt(r, "limit", 10)
	history, err := s.app.History(r.Context(), userID, limit)
	if err != nil {
		s.internalError(w, r, "history retrieval failed", err)
		return
	}
	writeJSON(w, http.StatusOK, domain.HistoryResponse{UserID: userID, History: history})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	query := r.URL.Query().Get("query")
	limit := queryInt(r, "limit", 5)
	results, err := s.app.Search(r.Context(), query, limit)
	if err != nil {
		if errors.Is(err, app.ErrTextRequired) {
			writeError(w, http.StatusUnprocessableEntity, "query parameter required")
			return
		}
		s.internalError(w, r, "search failed", err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SearchResponse{Query: query, Results: results})
}

func (s *Server) handleSpeechToText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	audio, err := io.ReadAll(io.LimitReader(r.Body, maxAudioBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(audio) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "audio data required")
		return
	}
	tr, err := s.app.Transcribe(r.Context(), audio, r.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, app.ErrSpeechNotConfigured) {
			writeError(w, http.StatusNotImplemented, "speech recognition not configured")
			return
		}
		s.internalError(w, r, "transcription failed", err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// internalError logs the cause and returns an opaque message so store schema
// and adapter URLs never leak to callers.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	metrics.ErrorCount.WithLabelValues(msg).Inc()
	util.LoggerFromContext(r.Context()).Error(msg, "err", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
