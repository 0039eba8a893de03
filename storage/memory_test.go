package storage

import (
	"context"
	"testing"

	"github.com/richinex/querygate/llm"
)

func TestInMemoryStorageSaveAndLoad(t *testing.T) {
	storage := NewInMemoryStorage()
	ctx := context.Background()

	messages := []llm.ChatMessage{
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there"},
	}

	if err := storage.Save(ctx, "test-session", messages); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := storage.Load(ctx, "test-session")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(loaded) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(loaded))
	}
	if loaded[0].Content != "Hello" {
		t.Errorf("expected 'Hello', got '%s'", loaded[0].Content)
	}
	if loaded[1].Content != "Hi there" {
		t.Errorf("expected 'Hi there', got '%s'", loaded[1].Content)
	}
}

func TestInMemoryStorageIsolation(t *testing.T) {
	storage := NewInMemoryStorage()
	ctx := context.Background()

	messages := []llm.ChatMessage{{Role: "user", Content: "original"}}
	if err := storage.Save(ctx, "s", messages); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	messages[0].Content = "mutated"

	loaded, _ := storage.Load(ctx, "s")
	if loaded[0].Content != "original" {
		t.Errorf("saved history changed through caller slice: %q", loaded[0].Content)
	}

	loaded[0].Content = "mutated again"
	reloaded, _ := storage.Load(ctx, "s")
	if reloaded[0].Content != "original" {
		t.Errorf("saved history changed through loaded slice: %q", reloaded[0].Content)
	}
}

func TestInMemoryStorageContract(t *testing.T) {
	runStorageContract(t, NewInMemoryStorage())
}
