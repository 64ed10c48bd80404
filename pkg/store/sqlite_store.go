package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"agentcag/pkg/domain"
)

// SQLiteStore is the embedded backend: one local database file holding
// users, queries, responses, embeddings, and relationships.
type SQLiteStore struct {
	path string

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewSQLiteStore constructs the store; Initialize opens the database.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Initialize opens or creates the database file and provisions the schema.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.db != nil {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create db dir: %v", ErrUnavailable, err)
		}
	}
	db, err := sql.Open("sqlite", s.path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("%w: open db: %v", ErrUnavailable, err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("%w: migrate: %v", ErrUnavailable, err)
	}
	s.db = db
	slog.Info("embedded store initialized", "path", s.path)
	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS queries (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id),
		text       TEXT NOT NULL,
		input_type TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_queries_user ON queries(user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS responses (
		id         TEXT PRIMARY KEY,
		query_id   TEXT NOT NULL REFERENCES queries(id),
		text       TEXT NOT NULL,
		metadata   TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_responses_query ON responses(query_id);

	CREATE TABLE IF NOT EXISTS embeddings (
		id           TEXT PRIMARY KEY,
		content_id   TEXT NOT NULL,
		content_type TEXT NOT NULL,
		text         TEXT NOT NULL,
		embedding    BLOB,
		created_at   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS relationships (
		id                TEXT PRIMARY KEY,
		source_id         TEXT NOT NULL,
		target_id         TEXT NOT NULL,
		relationship_type TEXT NOT NULL,
		properties        TEXT,
		created_at        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Close releases the database handle. Further operations fail with ErrClosed.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.db == nil {
		return nil, fmt.Errorf("%w: not initialized", ErrUnavailable)
	}
	return s.db, nil
}

// HealthCheck verifies a trivial round trip against the database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil || one != 1 {
		return fmt.Errorf("%w: health check failed: %v", ErrUnavailable, err)
	}
	return nil
}

// StoreQuery upserts the user, inserts the query, and records the ASKED
// relationship in one transaction.
func (s *SQLiteStore) StoreQuery(ctx context.Context, text, userID string, inputType domain.InputType) (string, error) {
	db, err := s.conn()
	if err != nil {
		return "", err
	}
	queryID := uuid.NewString()
	now := time.Now().UTC().Format(timeFormat)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, created_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		userID, now); err != nil {
		return "", fmt.Errorf("upsert user: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO queries (id, user_id, text, input_type, created_at) VALUES (?, ?, ?, ?, ?)`,
		queryID, userID, text, string(inputType), now); err != nil {
		return "", fmt.Errorf("insert query: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO relationships (id, source_id, target_id, relationship_type, created_at) VALUES (?, ?, ?, 'ASKED', ?)`,
		uuid.NewString(), userID, queryID, now); err != nil {
		return "", fmt.Errorf("insert relationship: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit query: %w", err)
	}
	slog.Debug("stored query", "query_id", queryID, "user_id", userID)
	return queryID, nil
}

// StoreResponse inserts the response and its ANSWERS relationship in one
// transaction. The query row must already exist.
func (s *SQLiteStore) StoreResponse(ctx context.Context, queryID, text string, metadata map[string]any) (string, error) {
	db, err := s.conn()
	if err != nil {
		return "", err
	}
	responseID := uuid.NewString()
	now := time.Now().UTC().Format(timeFormat)

	metaJSON := "{}"
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("encode metadata: %w", err)
		}
		metaJSON = string(b)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM queries WHERE id = ?`, queryID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("%w: %s", ErrDanglingReference, queryID)
		}
		return "", fmt.Errorf("check query: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO responses (id, query_id, text, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		responseID, queryID, text, metaJSON, now); err != nil {
		return "", fmt.Errorf("insert response: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO relationships (id, source_id, target_id, relationship_type, created_at) VALUES (?, ?, ?, 'ANSWERS', ?)`,
		uuid.NewString(), responseID, queryID, now); err != nil {
		return "", fmt.Errorf("insert relationship: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit response: %w", err)
	}
	slog.Debug("stored response", "response_id", responseID, "query_id", queryID)
	return responseID, nil
}

// GetHistory returns the user's query/response pairs, newest first.
func (s *SQLiteStore) GetHistory(ctx context.Context, userID string, limit int) ([]domain.ConversationEntry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT q.id, r.id, q.text, r.text, q.created_at, q.input_type
		FROM queries q
		JOIN responses r ON q.id = r.query_id
		WHERE q.user_id = ?
		ORDER BY q.created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	history := []domain.ConversationEntry{}
	for rows.Next() {
		var entry domain.ConversationEntry
		var inputType string
		if err := rows.Scan(&entry.QueryID, &entry.ResponseID, &entry.QueryText,
			&entry.ResponseText, &entry.Timestamp, &inputType); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entry.InputType = domain.InputType(inputType)
		history = append(history, entry)
	}
	return history, rows.Err()
}

// SearchSimilar does a linear substring scan over response text. Every hit
// scores 1.0; the embeddings table is reserved for a future vector upgrade.
func (s *SQLiteStore) SearchSimilar(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT r.id, r.text
		FROM responses r
		WHERE r.text LIKE ?
		ORDER BY r.created_at DESC
		LIMIT ?`, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search responses: %w", err)
	}
	defer rows.Close()

	results := []domain.SearchResult{}
	for rows.Next() {
		var res domain.SearchResult
		if err := rows.Scan(&res.ID, &res.Text); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		res.Score = 1.0
		results = append(results, res)
	}
	return results, rows.Err()
}
