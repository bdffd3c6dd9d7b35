package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

type Store struct {
	DB *sql.DB
}

// DefaultEmbeddingDimensions indicates the expected length of semantic vectors stored in pgvector columns.
const DefaultEmbeddingDimensions = 1536

// Chat message roles persisted per conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User is an account row.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// Conversation groups messages under one chat thread.
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one persisted chat turn. Results holds the marketplace result
// payload for assistant turns that returned listings, nil otherwise.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	Results        json.RawMessage
	CreatedAt      time.Time
}

// MessageEmbeddingSearchResult is a semantic search hit over past user queries.
type MessageEmbeddingSearchResult struct {
	Content   string
	Distance  float64
	CreatedAt time.Time
}

// New constructs the Store from DATABASE_URL or the POSTGRES_* variables.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// Conversation operations
func (s *Store) CreateConversation(ctx context.Context, userID, title string) (string, error) {
	if title == "" {
		title = "New Chat"
	}
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO conversations (user_id, title) VALUES ($1,$2) RETURNING id`,
		userID, title).Scan(&id)
	return id, err
}

func (s *Store) GetConversation(ctx context.Context, id, userID string) (Conversation, error) {
	var c Conversation
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id=$1 AND user_id=$2`,
		id, userID).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE user_id=$1 ORDER BY updated_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) RenameConversation(ctx context.Context, id, userID, title string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE conversations SET title=$3, updated_at=now() WHERE id=$1 AND user_id=$2`,
		id, userID, title)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteConversation removes the conversation and, through ON DELETE CASCADE,
// its messages and their embeddings.
func (s *Store) DeleteConversation(ctx context.Context, id, userID string) error {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM conversations WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Message operations
func (s *Store) AppendMessage(ctx context.Context, conversationID, role, content string, results json.RawMessage) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, results) VALUES ($1,$2,$3,$4) RETURNING id`,
		conversationID, role, content, nullableJSON(results)).Scan(&id)
	if err != nil {
		return "", err
	}
	_, err = s.DB.ExecContext(ctx,
		`UPDATE conversations SET updated_at=now() WHERE id=$1`, conversationID)
	return id, err
}

// ListMessages returns the conversation's messages in insertion order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, results, created_at FROM messages WHERE conversation_id=$1 ORDER BY created_at ASC, id ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var (
			m       Message
			results sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &results, &m.CreatedAt); err != nil {
			return nil, err
		}
		if results.Valid {
			m.Results = json.RawMessage(results.String)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// Embedding operations
func (s *Store) UpsertMessageEmbedding(ctx context.Context, messageID, userID, content string, vector []float32) error {
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO message_embeddings (message_id, user_id, content, embedding)
VALUES ($1, $2, $3, $4::vector)
ON CONFLICT (message_id) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding
`, messageID, userID, content, vecLiteral)
	return err
}

// SearchMessageEmbeddings returns the user's closest past queries for the
// supplied vector.
func (s *Store) SearchMessageEmbeddings(ctx context.Context, userID string, vector []float32, topK int) ([]MessageEmbeddingSearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector must not be empty")
	}
	if topK <= 0 {
		topK = 5
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT content, created_at, embedding <=> $1::vector AS distance
FROM message_embeddings
WHERE user_id = $2
ORDER BY embedding <=> $1::vector
LIMIT $3
`, vecLiteral, userID, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []MessageEmbeddingSearchResult
	for rows.Next() {
		var res MessageEmbeddingSearchResult
		if err := rows.Scan(&res.Content, &res.CreatedAt, &res.Distance); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
