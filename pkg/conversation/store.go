package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/harun/taskpilot/internal/observability"
)

// ErrNotFound is returned for conversations that do not exist or belong
// to another user. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("conversation not found")

// Conversation is one chat thread owned by a user
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one persisted turn of a conversation
type Message struct {
	ID               string    `json:"id"`
	ConversationID   string    `json:"conversation_id"`
	Role             string    `json:"role"`
	Content          string    `json:"content"`
	PromptTokens     *int      `json:"prompt_tokens,omitempty"`
	CompletionTokens *int      `json:"completion_tokens,omitempty"`
	TotalTokens      *int      `json:"total_tokens,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ToolCallRecord is one audited tool invocation attached to a message
type ToolCallRecord struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id"`
	ToolName   string    `json:"tool_name"`
	InputJSON  string    `json:"input_json"`
	OutputJSON string    `json:"output_json"`
	Status     string    `json:"status"`
	DurationMS *int64    `json:"duration_ms,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SaveMessageInput contains fields for persisting a message
type SaveMessageInput struct {
	ConversationID   string
	Role             string
	Content          string
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
}

// SaveToolCallInput contains fields for persisting a tool-call audit record
type SaveToolCallInput struct {
	MessageID  string
	ToolName   string
	InputJSON  string
	OutputJSON string
	Status     string
	DurationMS *int64
}

// Store provides conversation persistence
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// StoreConfig holds store configuration
type StoreConfig struct {
	DBPath string
	Logger zerolog.Logger
}

const conversationSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user_id ON conversations(user_id);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	prompt_tokens INTEGER,
	completion_tokens INTEGER,
	total_tokens INTEGER,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id);

CREATE TABLE IF NOT EXISTS tool_calls (
	id TEXT PRIMARY KEY,
	message_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	input_json TEXT NOT NULL,
	output_json TEXT NOT NULL,
	status TEXT NOT NULL,
	duration_ms INTEGER,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_calls_message_id ON tool_calls(message_id);
`

// NewStore opens the conversation database and ensures the schema exists
func NewStore(cfg StoreConfig) (*Store, error) {
	observability.EnsureRegistered()

	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation database: %w", err)
	}

	if _, err := db.Exec(conversationSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize conversation schema: %w", err)
	}

	cfg.Logger.Info().Str("db", cfg.DBPath).Msg("Conversation store initialized")

	s := &Store{
		db:     db,
		logger: cfg.Logger,
	}
	s.updateConversationsMetric(context.Background())

	return s, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateConversation starts a new conversation for the user
func (s *Store) CreateConversation(ctx context.Context, userID, title string) (*Conversation, error) {
	if userID == "" {
		return nil, errors.New("user ID is required")
	}
	if title == "" {
		title = "New Conversation"
	}

	now := time.Now().UTC()
	c := &Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Title, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}

	s.logger.Debug().Str("conversation_id", c.ID).Msg("Conversation created")
	s.updateConversationsMetric(ctx)

	return c, nil
}

// GetConversation returns a conversation owned by the user
func (s *Store) GetConversation(ctx context.Context, conversationID, userID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = ?`, conversationID)

	var c Conversation
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}

	if c.UserID != userID {
		return nil, ErrNotFound
	}

	return &c, nil
}

// ListConversations returns the user's conversations, most recent first
func (s *Store) ListConversations(ctx context.Context, userID string, offset, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM conversations
		 WHERE user_id = ? ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	conversations := []*Conversation{}
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, &c)
	}

	return conversations, rows.Err()
}

// DeleteConversation removes a conversation and everything under it
func (s *Store) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	if _, err := s.GetConversation(ctx, conversationID, userID); err != nil {
		return err
	}

	if err := s.deleteConversationRows(ctx, conversationID); err != nil {
		return err
	}

	s.logger.Debug().Str("conversation_id", conversationID).Msg("Conversation deleted")
	s.updateConversationsMetric(ctx)

	return nil
}

// SaveMessage persists a message and bumps the conversation's updated_at
func (s *Store) SaveMessage(ctx context.Context, in SaveMessageInput) (*Message, error) {
	if in.ConversationID == "" {
		return nil, errors.New("conversation ID is required")
	}
	if in.Role != "user" && in.Role != "assistant" {
		return nil, fmt.Errorf("invalid message role: %s", in.Role)
	}

	now := time.Now().UTC()
	m := &Message{
		ID:               uuid.NewString(),
		ConversationID:   in.ConversationID,
		Role:             in.Role,
		Content:          in.Content,
		PromptTokens:     in.PromptTokens,
		CompletionTokens: in.CompletionTokens,
		TotalTokens:      in.TotalTokens,
		CreatedAt:        now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, prompt_tokens, completion_tokens, total_tokens, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Role, m.Content, m.PromptTokens, m.CompletionTokens, m.TotalTokens, m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to touch conversation: %w", err)
	}

	return m, nil
}

// History returns the conversation's messages in chronological order
func (s *Store) History(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, prompt_tokens, completion_tokens, total_tokens, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at ASC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		var m Message
		var prompt, completion, total sql.NullInt64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &prompt, &completion, &total, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.PromptTokens = nullableInt(prompt)
		m.CompletionTokens = nullableInt(completion)
		m.TotalTokens = nullableInt(total)
		messages = append(messages, &m)
	}

	return messages, rows.Err()
}

// MessageCount returns the number of messages in a conversation
func (s *Store) MessageCount(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// SaveToolCall persists one tool-call audit record
func (s *Store) SaveToolCall(ctx context.Context, in SaveToolCallInput) (*ToolCallRecord, error) {
	if in.MessageID == "" {
		return nil, errors.New("message ID is required")
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate tool call ID: %w", err)
	}

	rec := &ToolCallRecord{
		ID:         id,
		MessageID:  in.MessageID,
		ToolName:   in.ToolName,
		InputJSON:  in.InputJSON,
		OutputJSON: in.OutputJSON,
		Status:     in.Status,
		DurationMS: in.DurationMS,
		CreatedAt:  time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (id, message_id, tool_name, input_json, output_json, status, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.MessageID, rec.ToolName, rec.InputJSON, rec.OutputJSON, rec.Status, rec.DurationMS, rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert tool call: %w", err)
	}

	return rec, nil
}

// ToolCalls returns the audit records attached to a message
func (s *Store) ToolCalls(ctx context.Context, messageID string) ([]*ToolCallRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_id, tool_name, input_json, output_json, status, duration_ms, created_at
		 FROM tool_calls WHERE message_id = ? ORDER BY created_at ASC`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool calls: %w", err)
	}
	defer rows.Close()

	records := []*ToolCallRecord{}
	for rows.Next() {
		var rec ToolCallRecord
		var duration sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.MessageID, &rec.ToolName, &rec.InputJSON, &rec.OutputJSON, &rec.Status, &duration, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tool call: %w", err)
		}
		if duration.Valid {
			d := duration.Int64
			rec.DurationMS = &d
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// UpdateTitle renames a conversation owned by the user
func (s *Store) UpdateTitle(ctx context.Context, conversationID, userID, title string) (*Conversation, error) {
	c, err := s.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	c.Title = title
	c.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		c.Title, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update title: %w", err)
	}

	return c, nil
}

// SweepIdleBefore deletes conversations not touched since the cutoff and
// returns how many were removed. Used by the retention sweeper.
func (s *Store) SweepIdleBefore(ctx context.Context, cutoff time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM conversations WHERE updated_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to query idle conversations: %w", err)
	}

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := s.deleteConversationRows(ctx, id); err != nil {
			return 0, err
		}
	}

	if len(ids) > 0 {
		s.updateConversationsMetric(ctx)
	}

	return len(ids), nil
}

func (s *Store) deleteConversationRows(ctx context.Context, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tool_calls WHERE message_id IN (SELECT id FROM messages WHERE conversation_id = ?)`,
		conversationID); err != nil {
		return fmt.Errorf("failed to delete tool calls: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	return tx.Commit()
}

func (s *Store) updateConversationsMetric(ctx context.Context) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&count); err != nil {
		return
	}
	observability.SetActiveConversations(count)
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
