// Package app drives one query through the pipeline: store the query, call
// the language model, optionally translate and synthesize speech, store the
// response. Each optional stage degrades on failure instead of failing the
// request; the fatal/non-fatal choice is made explicitly per stage here and
// nowhere else.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agentcag/internal/asrclient"
	"agentcag/internal/llmclient"
	"agentcag/internal/metrics"
	"agentcag/internal/sardaukarclient"
	"agentcag/internal/ttsclient"
	"agentcag/internal/util"
	"agentcag/pkg/domain"
	"agentcag/pkg/store"
)

const (
	defaultMaxTokens = 1000
	anonymousUserID  = "anonymous"
	storeTimeout     = 5 * time.Second
)

// Config wires the pipeline's collaborators.
type Config struct {
	Store     store.ConversationStore
	LLM       *llmclient.Client
	Sardaukar *sardaukarclient.Client
	TTS       *ttsclient.Client
	ASR       *asrclient.Client
	MaxTokens int
}

// App is the query orchestration pipeline.
type App struct {
	store     store.ConversationStore
	llm       *llmclient.Client
	sardaukar *sardaukarclient.Client
	tts       *ttsclient.Client
	asr       *asrclient.Client
	maxTokens int
}

// New constructs the pipeline. Store and LLM are required; the translator,
// TTS, and ASR clients are optional enhancements.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("conversation store required")
	}
	if cfg.LLM == nil {
		return nil, fmt.Errorf("llm client required")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &App{
		store:     cfg.Store,
		llm:       cfg.LLM,
		sardaukar: cfg.Sardaukar,
		tts:       cfg.TTS,
		asr:       cfg.ASR,
		maxTokens: maxTokens,
	}, nil
}

// ProcessQuery runs the full pipeline for one inbound query. Store and model
// failures abort the request; translation and synthesis failures degrade the
// response and are reported through metadata flags.
func (a *App) ProcessQuery(ctx context.Context, req domain.QueryRequest) (domain.QueryResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return domain.QueryResponse{}, ErrTextRequired
	}
	inputType := req.InputType
	if inputType == "" {
		inputType = domain.InputText
	}
	if !inputType.Valid() {
		return domain.QueryResponse{}, fmt.Errorf("%w: %q", ErrInvalidInputType, req.InputType)
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = anonymousUserID
	}
	metrics.QueryCount.Inc()
	logger := util.LoggerFromContext(ctx)

	queryID, err := a.storeQuery(ctx, text, userID, inputType)
	if err != nil {
		return domain.QueryResponse{}, fmt.Errorf("store query: %w", err)
	}

	gen, err := a.llm.Generate(ctx, text, a.maxTokens)
	if err != nil {
		return domain.QueryResponse{}, fmt.Errorf("generate answer: %w", err)
	}
	finalText := gen.Text
	metadata := gen.Metadata
	if gen.Model != "" {
		metadata["model"] = gen.Model
	}
	if gen.TokensUsed > 0 {
		metadata["tokensUsed"] = gen.TokensUsed
	}

	if req.UseSardaukar {
		finalText, metadata["usedTranslation"] = a.translateStage(ctx, finalText)
	}

	audioURL := ""
	if req.GenerateSpeech {
		audioURL, metadata["speechGenerated"] = a.synthesizeStage(ctx, finalText, req.UseSardaukar)
		if audioURL != "" {
			metadata["audioUrl"] = audioURL
		}
	}

	responseID, err := a.storeResponse(ctx, queryID, finalText, metadata)
	if err != nil {
		return domain.QueryResponse{}, fmt.Errorf("store response: %w", err)
	}

	logger.Info("query processed",
		"query_id", queryID,
		"response_id", responseID,
		"translated", req.UseSardaukar,
		"speech", req.GenerateSpeech,
	)
	return domain.QueryResponse{
		QueryID:    queryID,
		ResponseID: responseID,
		Text:       finalText,
		AudioURL:   audioURL,
		Metadata:   metadata,
	}, nil
}

// translateStage never fails the request: on any translator error it keeps
// the untranslated text and reports used=false.
func (a *App) translateStage(ctx context.Context, text string) (string, bool) {
	logger := util.LoggerFromContext(ctx)
	if a.sardaukar == nil {
		logger.Warn("translation requested but translator not configured")
		return text, false
	}
	translated, err := a.sardaukar.Translate(ctx, text)
	if err != nil {
		logger.Warn("translation failed, keeping original text", "err", err)
		return text, false
	}
	metrics.TranslationCount.Inc()
	return translated, true
}

// synthesizeStage never fails the request: on any TTS error the response
// simply ships without audio.
func (a *App) synthesizeStage(ctx context.Context, text string, useSardaukar bool) (string, bool) {
	logger := util.LoggerFromContext(ctx)
	if a.tts == nil {
		logger.Warn("speech requested but tts not configured")
		return "", false
	}
	syn, err := a.tts.Synthesize(ctx, text, useSardaukar)
	if err != nil {
		logger.Warn("speech synthesis failed, returning text only", "err", err)
		return "", false
	}
	metrics.SynthesisCount.Inc()
	return syn.AudioURL, true
}

func (a *App) storeQuery(ctx context.Context, text, userID string, inputType domain.InputType) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return a.store.StoreQuery(ctx, text, userID, inputType)
}

func (a *App) storeResponse(ctx context.Context, queryID, text string, metadata map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return a.store.StoreResponse(ctx, queryID, text, metadata)
}

// History returns the user's conversation entries, newest first.
func (a *App) History(ctx context.Context, userID string, limit int) ([]domain.ConversationEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	history, err := a.store.GetHistory(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return history, nil
}

// Search returns stored content similar to the query text.
func (a *App) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrTextRequired
	}
	if limit <= 0 || limit > 50 {
		limit = 5
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	results, err := a.store.SearchSimilar(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	return results, nil
}

// Transcribe forwards raw audio to the speech-recognition service.
func (a *App) Transcribe(ctx context.Context, audio []byte, contentType string) (domain.Transcription, error) {
	if a.asr == nil {
		return domain.Transcription{}, ErrSpeechNotConfigured
	}
	return a.asr.Transcribe(ctx, audio, contentType)
}

// HealthCheck reports store health.
func (a *App) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return a.store.HealthCheck(ctx)
}
