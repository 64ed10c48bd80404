// Package store persists conversations behind a single contract with two
// interchangeable backends: an embedded SQLite store and a distributed
// Neo4j-plus-Chroma store. Both generate the same opaque ids and model the
// same ASKED/ANSWERS relationships, so callers never see which one is active.
package store

import (
	"context"
	"errors"
	"fmt"

	"agentcag/pkg/domain"
)

// ConversationStore defines persistence operations shared by all backends.
// Implementations must be safe for concurrent use from many in-flight
// requests sharing one store handle.
type ConversationStore interface {
	// Initialize opens connections and provisions schema. Call once at startup.
	Initialize(ctx context.Context) error
	// Close releases held connections. Operations after Close fail with ErrClosed.
	Close() error
	// HealthCheck performs a trivial round trip against the backend.
	HealthCheck(ctx context.Context) error

	// StoreQuery upserts the user, stores the query, and links them.
	// Returns a fresh unique query id.
	StoreQuery(ctx context.Context, text, userID string, inputType domain.InputType) (string, error)
	// StoreResponse stores a response answering queryID. Fails with
	// ErrDanglingReference when queryID was never stored.
	StoreResponse(ctx context.Context, queryID, text string, metadata map[string]any) (string, error)
	// GetHistory returns up to limit query/response pairs for the user,
	// newest first. An unknown user yields an empty slice, not an error.
	GetHistory(ctx context.Context, userID string, limit int) ([]domain.ConversationEntry, error)
	// SearchSimilar returns up to limit hits ordered by score descending.
	SearchSimilar(ctx context.Context, query string, limit int) ([]domain.SearchResult, error)
}

var (
	// ErrUnavailable indicates the backend cannot be reached or set up.
	ErrUnavailable = errors.New("store unavailable")
	// ErrDanglingReference indicates a response was written against a query
	// that does not exist.
	ErrDanglingReference = errors.New("query does not exist")
	// ErrClosed indicates an operation on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Deployment profiles selecting the backend variant.
const (
	ProfileEmbedded    = "embedded"
	ProfileDistributed = "distributed"
)

// timeFormat is a fixed-width RFC3339 variant so stored timestamps sort
// correctly as strings in both backends.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Config carries backend connection settings. Only the fields for the
// selected profile are consulted.
type Config struct {
	// embedded
	SQLitePath string
	// distributed
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	ChromaURL     string
}

// New selects a backend from the deployment profile. Unknown profiles fail
// before any network or disk I/O; the returned store still needs Initialize.
func New(profile string, cfg Config) (ConversationStore, error) {
	switch profile {
	case ProfileEmbedded:
		return NewSQLiteStore(cfg.SQLitePath), nil
	case ProfileDistributed:
		return NewGraphStore(GraphConfig{
			Neo4jURI:      cfg.Neo4jURI,
			Neo4jUser:     cfg.Neo4jUser,
			Neo4jPassword: cfg.Neo4jPassword,
			ChromaURL:     cfg.ChromaURL,
		}), nil
	default:
		return nil, fmt.Errorf("unknown deployment profile: %q", profile)
	}
}
