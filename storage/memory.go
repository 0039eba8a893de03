// Package storage provides in-memory storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral sessions

package storage

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/richinex/querygate/llm"
	"github.com/richinex/querygate/model"
)

// InMemoryStorage implements ConversationStorage, TurnRecorder and
// DocumentStore using in-memory maps. Data is lost when process terminates.
type InMemoryStorage struct {
	mu        sync.RWMutex
	sessions  map[string][]llm.ChatMessage
	turns     map[string][]model.ConversationTurn
	documents map[string]model.Document
}

// NewInMemoryStorage creates a new in-memory storage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		sessions:  make(map[string][]llm.ChatMessage),
		turns:     make(map[string][]model.ConversationTurn),
		documents: make(map[string]model.Document),
	}
}

// Save saves conversation history for a session.
func (s *InMemoryStorage) Save(ctx context.Context, sessionID string, history []llm.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Make a copy to avoid external mutations
	copied := make([]llm.ChatMessage, len(history))
	copy(copied, history)
	s.sessions[sessionID] = copied
	return nil
}

// Load loads conversation history for a session.
// Returns empty slice if session doesn't exist.
func (s *InMemoryStorage) Load(ctx context.Context, sessionID string) ([]llm.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.sessions[sessionID]
	if !ok {
		return []llm.ChatMessage{}, nil
	}

	copied := make([]llm.ChatMessage, len(history))
	copy(copied, history)
	return copied, nil
}

// Delete deletes conversation history and turns for a session.
func (s *InMemoryStorage) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	delete(s.turns, sessionID)
	return nil
}

// ListSessions lists all session IDs in lexical order.
func (s *InMemoryStorage) ListSessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.sessions))
	for sessionID := range s.sessions {
		sessions = append(sessions, sessionID)
	}
	sort.Strings(sessions)
	return sessions, nil
}

// Exists checks if a session exists.
func (s *InMemoryStorage) Exists(ctx context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.sessions[sessionID]
	return ok, nil
}

// Record appends a turn.
func (s *InMemoryStorage) Record(ctx context.Context, turn model.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns[turn.ConversationID] = append(s.turns[turn.ConversationID], turn)
	return nil
}

// ListTurns returns turns, most recently recorded first.
func (s *InMemoryStorage) ListTurns(ctx context.Context, conversationID string, limit int) ([]model.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.turns[conversationID]
	out := make([]model.ConversationTurn, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, stored[i])
	}
	return out, nil
}

// FetchCandidates returns scope's documents ordered by ID.
func (s *InMemoryStorage) FetchCandidates(ctx context.Context, scope string, ids []string) ([]model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := []model.Document{}
	for _, doc := range s.documents {
		if doc.OwnerScope != scope {
			continue
		}
		if len(ids) > 0 && !slices.Contains(ids, doc.ID) {
			continue
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// GetDocument looks up a document by ID.
func (s *InMemoryStorage) GetDocument(ctx context.Context, id string) (model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return model.Document{}, ErrNotFound
	}
	return doc, nil
}

// PutDocument stores doc, replacing any document with the same ID.
func (s *InMemoryStorage) PutDocument(ctx context.Context, doc model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc.Tags = slices.Clone(doc.Tags)
	s.documents[doc.ID] = doc
	return nil
}

var _ ConversationStorage = (*InMemoryStorage)(nil)
var _ TurnRecorder = (*InMemoryStorage)(nil)
var _ DocumentStore = (*InMemoryStorage)(nil)
