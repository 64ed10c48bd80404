package domain

import "time"

type InputType string

const (
	InputText   InputType = "text"
	InputSpeech InputType = "speech"
)

// Valid reports whether the input type is one of the known values.
func (t InputType) Valid() bool {
	return t == InputText || t == InputSpeech
}

type Query struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	InputType InputType `json:"input_type"`
	CreatedAt time.Time `json:"created_at"`
}

type Response struct {
	ID        string         `json:"id"`
	QueryID   string         `json:"query_id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// ConversationEntry joins one query with its response for history display.
type ConversationEntry struct {
	QueryID      string    `json:"query_id"`
	ResponseID   string    `json:"response_id"`
	QueryText    string    `json:"query_text"`
	ResponseText string    `json:"response_text"`
	Timestamp    string    `json:"timestamp"`
	InputType    InputType `json:"input_type"`
}

// SearchResult is one similarity hit; score is in [0,1], higher is closer.
// Scores are only comparable within a single backend's result set.
type SearchResult struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type QueryRequest struct {
	Text           string    `json:"text"`
	UserID         string    `json:"user_id"`
	InputType      InputType `json:"input_type"`
	GenerateSpeech bool      `json:"generate_speech"`
	UseSardaukar   bool      `json:"use_sardaukar"`
}

type QueryResponse struct {
	QueryID    string         `json:"query_id"`
	ResponseID string         `json:"response_id"`
	Text       string         `json:"text"`
	AudioURL   string         `json:"audio_url,omitempty"`
	Metadata   map[string]any `json:"metadata"`
}

type HistoryResponse struct {
	UserID  string              `json:"user_id"`
	History []ConversationEntry `json:"history"`
}

type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

type Transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Profile string `json:"profile"`
	Version string `json:"version"`
}
