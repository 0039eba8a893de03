// Package storage provides SQLite storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/querygate/llm"
	"github.com/richinex/querygate/model"
)

// SqliteStorage implements ConversationStorage, TurnRecorder and
// DocumentStore using SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStorage struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newSqlite(db)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newSqlite(db)
}

func newSqlite(db *sql.DB) (*SqliteStorage, error) {
	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			message_index INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls TEXT,
			tool_call_id TEXT,
			tool_name TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE,
			UNIQUE(session_id, message_index)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session
		ON messages(session_id, message_index);

		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			query TEXT NOT NULL,
			final_answer TEXT NOT NULL,
			documents_used INTEGER NOT NULL,
			provider_used TEXT NOT NULL,
			web_search_used INTEGER NOT NULL,
			tool_call_count INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_turns_conversation
		ON turns(conversation_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			owner_scope TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			tags TEXT,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_documents_scope
		ON documents(owner_scope);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SqliteStorage) ensureSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (session_id) VALUES (?)",
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure session: %w", err)
	}
	return nil
}

// Save saves conversation history for a session.
func (s *SqliteStorage) Save(ctx context.Context, sessionID string, history []llm.ChatMessage) error {
	if err := s.ensureSession(ctx, sessionID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear old messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (session_id, message_index, role, content, tool_calls, tool_call_id, tool_name)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i, msg := range history {
		var toolCalls interface{}
		if len(msg.ToolCalls) > 0 {
			encoded, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("failed to encode tool calls: %w", err)
			}
			toolCalls = string(encoded)
		}
		_, err = stmt.ExecContext(ctx, sessionID, i, msg.Role, msg.Content,
			toolCalls, nullable(msg.ToolCallID), nullable(msg.ToolName))
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE sessions SET updated_at = datetime('now') WHERE session_id = ?",
		sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load loads conversation history for a session.
// Returns empty slice if session doesn't exist.
func (s *SqliteStorage) Load(ctx context.Context, sessionID string) ([]llm.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, tool_calls, tool_call_id, tool_name
		FROM messages WHERE session_id = ? ORDER BY message_index ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []llm.ChatMessage{} // Start with empty slice, not nil
	for rows.Next() {
		var msg llm.ChatMessage
		var toolCalls, toolCallID, toolName sql.NullString
		if err := rows.Scan(&msg.Role, &msg.Content, &toolCalls, &toolCallID, &toolName); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if toolCalls.Valid {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("invalid tool calls in database: %w", err)
			}
		}
		msg.ToolCallID = toolCallID.String
		msg.ToolName = toolName.String
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// Delete deletes conversation history and turns for a session.
func (s *SqliteStorage) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE conversation_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}
	return nil
}

// ListSessions lists all session IDs, most recently updated first.
func (s *SqliteStorage) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id FROM sessions ORDER BY updated_at DESC, session_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []string{}
	for rows.Next() {
		var sessionID string
		if err := rows.Scan(&sessionID); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sessionID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// Exists checks if a session exists.
func (s *SqliteStorage) Exists(ctx context.Context, sessionID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE session_id = ?",
		sessionID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}
	return count > 0, nil
}

// TurnRecorder implementation

// Record stores a completed turn.
func (s *SqliteStorage) Record(ctx context.Context, turn model.ConversationTurn) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns
		(conversation_id, query, final_answer, documents_used, provider_used, web_search_used, tool_call_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ConversationID,
		turn.Query,
		turn.FinalAnswer,
		turn.DocumentsUsedCount,
		turn.ProviderUsed,
		turn.WebSearchUsed,
		turn.ToolCallCount,
		turn.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record turn: %w", err)
	}
	return nil
}

// ListTurns returns turns newest first.
func (s *SqliteStorage) ListTurns(ctx context.Context, conversationID string, limit int) ([]model.ConversationTurn, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, query, final_answer, documents_used, provider_used, web_search_used, tool_call_count, created_at
		FROM turns
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	turns := []model.ConversationTurn{}
	for rows.Next() {
		var turn model.ConversationTurn
		var createdAt int64
		err := rows.Scan(
			&turn.ConversationID,
			&turn.Query,
			&turn.FinalAnswer,
			&turn.DocumentsUsedCount,
			&turn.ProviderUsed,
			&turn.WebSearchUsed,
			&turn.ToolCallCount,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.CreatedAt = time.Unix(0, createdAt).UTC()
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}
	return turns, nil
}

// DocumentStore implementation

// PutDocument inserts or replaces a document.
func (s *SqliteStorage) PutDocument(ctx context.Context, doc model.Document) error {
	var tags interface{}
	if len(doc.Tags) > 0 {
		encoded, err := json.Marshal(doc.Tags)
		if err != nil {
			return fmt.Errorf("failed to encode tags: %w", err)
		}
		tags = string(encoded)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents (id, owner_scope, title, body, summary, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OwnerScope, doc.Title, doc.Body, doc.Summary, tags, doc.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	return nil
}

// GetDocument looks up a document by ID.
func (s *SqliteStorage) GetDocument(ctx context.Context, id string) (model.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_scope, title, body, summary, tags, created_at
		FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, ErrNotFound
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// FetchCandidates returns scope's documents ordered by ID.
func (s *SqliteStorage) FetchCandidates(ctx context.Context, scope string, ids []string) ([]model.Document, error) {
	query := `
		SELECT id, owner_scope, title, body, summary, tags, created_at
		FROM documents WHERE owner_scope = ?`
	args := []interface{}{scope}
	if len(ids) > 0 {
		query += " AND id IN (?" + strings.Repeat(", ?", len(ids)-1) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row scanner) (model.Document, error) {
	var doc model.Document
	var tags sql.NullString
	var createdAt int64
	if err := row.Scan(&doc.ID, &doc.OwnerScope, &doc.Title, &doc.Body, &doc.Summary, &tags, &createdAt); err != nil {
		return model.Document{}, err
	}
	if tags.Valid {
		if err := json.Unmarshal([]byte(tags.String), &doc.Tags); err != nil {
			return model.Document{}, fmt.Errorf("invalid tags in database: %w", err)
		}
	}
	doc.CreatedAt = time.Unix(0, createdAt).UTC()
	return doc, nil
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Verify SqliteStorage implements all interfaces
var _ ConversationStorage = (*SqliteStorage)(nil)
var _ TurnRecorder = (*SqliteStorage)(nil)
var _ DocumentStore = (*SqliteStorage)(nil)
