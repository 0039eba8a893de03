// Package storage provides persistence collaborators for the engine:
// conversation history, completed turns and candidate documents.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interfaces
// - Allows swapping between memory, SQLite, Postgres and Mongo without API changes
// - Each storage implementation encapsulates its own schema and encoding

package storage

import (
	"context"
	"errors"

	"github.com/richinex/querygate/llm"
	"github.com/richinex/querygate/model"
)

// ErrNotFound is returned by lookups of a single record that does not exist.
var ErrNotFound = errors.New("not found")

// ConversationStorage defines the interface for storing conversation history.
type ConversationStorage interface {
	// Save replaces the conversation history for a session.
	Save(ctx context.Context, sessionID string, history []llm.ChatMessage) error

	// Load loads conversation history for a session.
	// Returns empty slice (not nil) if session doesn't exist.
	// Returns error only for storage failures (I/O errors, etc.), not missing sessions.
	Load(ctx context.Context, sessionID string) ([]llm.ChatMessage, error)

	// Delete deletes conversation history for a session.
	Delete(ctx context.Context, sessionID string) error

	// ListSessions lists all session IDs.
	ListSessions(ctx context.Context) ([]string, error)

	// Exists checks if a session exists.
	Exists(ctx context.Context, sessionID string) (bool, error)
}

// TurnRecorder archives completed conversation turns.
type TurnRecorder interface {
	Record(ctx context.Context, turn model.ConversationTurn) error

	// ListTurns returns up to limit turns of a conversation, newest first.
	// A limit of zero or less returns all of them.
	ListTurns(ctx context.Context, conversationID string, limit int) ([]model.ConversationTurn, error)
}

// DocumentStore supplies candidate documents.
type DocumentStore interface {
	// FetchCandidates returns the documents of scope, restricted to ids
	// when ids is non-empty. An unknown scope yields an empty slice.
	FetchCandidates(ctx context.Context, scope string, ids []string) ([]model.Document, error)

	// GetDocument returns ErrNotFound for an unknown id.
	GetDocument(ctx context.Context, id string) (model.Document, error)

	// PutDocument inserts or replaces a document by ID.
	PutDocument(ctx context.Context, doc model.Document) error
}

// AppendExchange loads a session, appends the question and answer, and
// saves it back.
func AppendExchange(ctx context.Context, store ConversationStorage, sessionID, question, answer string) error {
	history, err := store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	history = append(history, llm.UserMessage(question), llm.AssistantMessage(answer))
	return store.Save(ctx, sessionID, history)
}
