package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"agentcag/pkg/domain"
)

const embeddingsCollection = "agent_embeddings"

// GraphConfig carries connection settings for the distributed backend.
type GraphConfig struct {
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	ChromaURL     string
}

// GraphStore is the distributed backend: entities and relationships live in
// Neo4j, response embeddings in Chroma. The two are written independently
// and may transiently disagree; similarity search reads Chroma only.
type GraphStore struct {
	cfg    GraphConfig
	chroma *chromaClient

	mu           sync.Mutex
	driver       neo4j.DriverWithContext
	collectionID string
	closed       bool
}

// NewGraphStore constructs the store; Initialize opens the connections.
func NewGraphStore(cfg GraphConfig) *GraphStore {
	return &GraphStore{
		cfg:    cfg,
		chroma: newChromaClient(cfg.ChromaURL),
	}
}

// Initialize connects to both engines, provisions graph uniqueness
// constraints, and gets-or-creates the embeddings collection.
func (s *GraphStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.driver != nil {
		return nil
	}

	driver, err := neo4j.NewDriverWithContext(s.cfg.Neo4jURI,
		neo4j.BasicAuth(s.cfg.Neo4jUser, s.cfg.Neo4jPassword, ""))
	if err != nil {
		return fmt.Errorf("%w: neo4j driver: %v", ErrUnavailable, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return fmt.Errorf("%w: neo4j connectivity: %v", ErrUnavailable, err)
	}

	// Uniqueness constraints replace application-level duplicate checks.
	session := driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)
	for _, stmt := range []string{
		"CREATE CONSTRAINT IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (q:Query) REQUIRE q.id IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (r:Response) REQUIRE r.id IS UNIQUE",
	} {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			driver.Close(ctx)
			return fmt.Errorf("%w: create constraint: %v", ErrUnavailable, err)
		}
	}

	collectionID, err := s.chroma.EnsureCollection(ctx, embeddingsCollection)
	if err != nil {
		driver.Close(ctx)
		return fmt.Errorf("%w: chroma collection: %v", ErrUnavailable, err)
	}

	s.driver = driver
	s.collectionID = collectionID
	slog.Info("distributed store initialized", "neo4j", s.cfg.Neo4jURI, "collection", embeddingsCollection)
	return nil
}

// Close shuts down the Neo4j driver. Further operations fail with ErrClosed.
func (s *GraphStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	if s.driver == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.driver.Close(ctx)
	s.driver = nil
	return err
}

func (s *GraphStore) conn() (neo4j.DriverWithContext, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, "", ErrClosed
	}
	if s.driver == nil {
		return nil, "", fmt.Errorf("%w: not initialized", ErrUnavailable)
	}
	return s.driver, s.collectionID, nil
}

// HealthCheck round-trips both engines.
func (s *GraphStore) HealthCheck(ctx context.Context) error {
	driver, _, err := s.conn()
	if err != nil {
		return err
	}
	session := driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)
	result, err := session.Run(ctx, "RETURN 1 AS ok", nil)
	if err != nil {
		return fmt.Errorf("%w: neo4j health: %v", ErrUnavailable, err)
	}
	if _, err := result.Single(ctx); err != nil {
		return fmt.Errorf("%w: neo4j health: %v", ErrUnavailable, err)
	}
	if err := s.chroma.Heartbeat(ctx); err != nil {
		return fmt.Errorf("%w: chroma health: %v", ErrUnavailable, err)
	}
	return nil
}

// StoreQuery upserts the user and creates the query node plus its ASKED edge
// in one atomic statement.
func (s *GraphStore) StoreQuery(ctx context.Context, text, userID string, inputType domain.InputType) (string, error) {
	driver, _, err := s.conn()
	if err != nil {
		return "", err
	}
	queryID := uuid.NewString()
	now := time.Now().UTC().Format(timeFormat)

	session := driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)
	_, err = session.Run(ctx, `
		MERGE (u:User {id: $user_id})
		CREATE (q:Query {
			id: $query_id,
			text: $text,
			input_type: $input_type,
			created_at: $created_at
		})
		CREATE (u)-[:ASKED]->(q)`,
		map[string]any{
			"user_id":    userID,
			"query_id":   queryID,
			"text":       text,
			"input_type": string(inputType),
			"created_at": now,
		})
	if err != nil {
		return "", fmt.Errorf("store query: %w", err)
	}
	slog.Debug("stored query", "query_id", queryID, "user_id", userID)
	return queryID, nil
}

// StoreResponse creates the response node and its ANSWERS edge; the MATCH on
// the query node enforces the dangling-reference check. On success the
// response text is indexed into Chroma best-effort.
func (s *GraphStore) StoreResponse(ctx context.Context, queryID, text string, metadata map[string]any) (string, error) {
	driver, collectionID, err := s.conn()
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

	session := driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)
	result, err := session.Run(ctx, `
		MATCH (q:Query {id: $query_id})
		CREATE (r:Response {
			id: $response_id,
			text: $text,
			metadata: $metadata,
			created_at: $created_at
		})
		CREATE (r)-[:ANSWERS]->(q)
		RETURN r.id AS id`,
		map[string]any{
			"query_id":    queryID,
			"response_id": responseID,
			"text":        text,
			"metadata":    metaJSON,
			"created_at":  now,
		})
	if err != nil {
		return "", fmt.Errorf("store response: %w", err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return "", fmt.Errorf("store response: %w", err)
	}
	if len(records) == 0 {
		// No Query node matched, so nothing was created.
		return "", fmt.Errorf("%w: %s", ErrDanglingReference, queryID)
	}

	if err := s.chroma.Add(ctx, collectionID, []string{responseID}, []string{text}); err != nil {
		// Graph and vector store are only eventually consistent; a missed
		// index entry degrades search, not correctness.
		slog.Warn("chroma indexing failed", "response_id", responseID, "err", err)
	}
	slog.Debug("stored response", "response_id", responseID, "query_id", queryID)
	return responseID, nil
}

// GetHistory walks ASKED/ANSWERS edges for the user, newest first.
func (s *GraphStore) GetHistory(ctx context.Context, userID string, limit int) ([]domain.ConversationEntry, error) {
	driver, _, err := s.conn()
	if err != nil {
		return nil, err
	}
	session := driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)
	result, err := session.Run(ctx, `
		MATCH (u:User {id: $user_id})-[:ASKED]->(q:Query)<-[:ANSWERS]-(r:Response)
		RETURN q.id AS query_id, r.id AS response_id, q.text AS query_text,
		       r.text AS response_text, q.created_at AS created_at, q.input_type AS input_type
		ORDER BY q.created_at DESC
		LIMIT $limit`,
		map[string]any{"user_id": userID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect history: %w", err)
	}

	history := []domain.ConversationEntry{}
	for _, record := range records {
		history = append(history, domain.ConversationEntry{
			QueryID:      recordString(record, "query_id"),
			ResponseID:   recordString(record, "response_id"),
			QueryText:    recordString(record, "query_text"),
			ResponseText: recordString(record, "response_text"),
			Timestamp:    recordString(record, "created_at"),
			InputType:    domain.InputType(recordString(record, "input_type")),
		})
	}
	return history, nil
}

// SearchSimilar queries Chroma only; scores are 1 - distance, clamped to [0,1].
func (s *GraphStore) SearchSimilar(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	_, collectionID, err := s.conn()
	if err != nil {
		return nil, err
	}
	ids, documents, distances, err := s.chroma.Query(ctx, collectionID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("chroma query: %w", err)
	}

	results := []domain.SearchResult{}
	for i, id := range ids {
		res := domain.SearchResult{ID: id}
		if i < len(documents) {
			res.Text = documents[i]
		}
		if i < len(distances) {
			res.Score = clampScore(1.0 - distances[i])
		}
		results = append(results, res)
	}
	return results, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func recordString(record *neo4j.Record, key string) string {
	value, ok := record.Get(key)
	if !ok {
		return ""
	}
	str, _ := value.(string)
	return str
}
