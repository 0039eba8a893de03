package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/richinex/querygate/llm"
	"github.com/richinex/querygate/model"
)

type backend interface {
	ConversationStorage
	TurnRecorder
	DocumentStore
}

// runStorageContract exercises behavior every backend must share.
func runStorageContract(t *testing.T, s backend) {
	ctx := context.Background()

	t.Run("load unknown session", func(t *testing.T) {
		loaded, err := s.Load(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if loaded == nil || len(loaded) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", loaded)
		}
	})

	t.Run("tool calls round trip", func(t *testing.T) {
		history := []llm.ChatMessage{
			llm.UserMessage("what is new in go"),
			llm.ToolCallMessage(llm.ToolRequest{ID: "call_1", Name: "web_search", Args: json.RawMessage(`{"query":"go release"}`)}),
			llm.ToolResultMessage("call_1", "web_search", `{"results":[]}`),
			llm.AssistantMessage("Go 1.24 is out."),
		}
		if err := s.Save(ctx, "tools", history); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		loaded, err := s.Load(ctx, "tools")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(loaded) != 4 {
			t.Fatalf("expected 4 messages, got %d", len(loaded))
		}
		if len(loaded[1].ToolCalls) != 1 || loaded[1].ToolCalls[0].ID != "call_1" {
			t.Errorf("tool call lost: %#v", loaded[1])
		}
		if string(loaded[1].ToolCalls[0].Arguments) != `{"query":"go release"}` {
			t.Errorf("arguments changed: %s", loaded[1].ToolCalls[0].Arguments)
		}
		if loaded[2].ToolCallID != "call_1" || loaded[2].ToolName != "web_search" {
			t.Errorf("tool result identity lost: %#v", loaded[2])
		}
	})

	t.Run("overwrite and delete", func(t *testing.T) {
		if err := s.Save(ctx, "ow", []llm.ChatMessage{llm.UserMessage("First")}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := s.Save(ctx, "ow", []llm.ChatMessage{llm.UserMessage("Second"), llm.AssistantMessage("Response")}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		loaded, _ := s.Load(ctx, "ow")
		if len(loaded) != 2 || loaded[0].Content != "Second" {
			t.Errorf("expected overwritten history, got %#v", loaded)
		}

		exists, err := s.Exists(ctx, "ow")
		if err != nil || !exists {
			t.Fatalf("expected session to exist (err=%v)", err)
		}
		if err := s.Delete(ctx, "ow"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		exists, _ = s.Exists(ctx, "ow")
		if exists {
			t.Error("expected session to not exist after deletion")
		}
		loaded, _ = s.Load(ctx, "ow")
		if len(loaded) != 0 {
			t.Errorf("expected no messages after deletion, got %d", len(loaded))
		}
	})

	t.Run("append exchange", func(t *testing.T) {
		if err := AppendExchange(ctx, s, "ex", "q1", "a1"); err != nil {
			t.Fatalf("AppendExchange failed: %v", err)
		}
		if err := AppendExchange(ctx, s, "ex", "q2", "a2"); err != nil {
			t.Fatalf("AppendExchange failed: %v", err)
		}
		loaded, _ := s.Load(ctx, "ex")
		want := []string{"q1", "a1", "q2", "a2"}
		if len(loaded) != len(want) {
			t.Fatalf("expected %d messages, got %d", len(want), len(loaded))
		}
		for i, w := range want {
			if loaded[i].Content != w {
				t.Errorf("message %d: expected %q, got %q", i, w, loaded[i].Content)
			}
		}
		if loaded[3].Role != llm.RoleAssistant {
			t.Errorf("expected assistant role, got %q", loaded[3].Role)
		}

		sessions, err := s.ListSessions(ctx)
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		found := false
		for _, id := range sessions {
			found = found || id == "ex"
		}
		if !found {
			t.Errorf("expected ex in %v", sessions)
		}
	})

	t.Run("turns newest first", func(t *testing.T) {
		base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		for i := 0; i < 3; i++ {
			turn := model.ConversationTurn{
				ConversationID:     "conv",
				Query:              "q",
				FinalAnswer:        "a",
				DocumentsUsedCount: i,
				ProviderUsed:       "primary",
				WebSearchUsed:      i == 2,
				ToolCallCount:      i,
				CreatedAt:          base.Add(time.Duration(i) * time.Minute),
			}
			if err := s.Record(ctx, turn); err != nil {
				t.Fatalf("Record failed: %v", err)
			}
		}

		turns, err := s.ListTurns(ctx, "conv", 2)
		if err != nil {
			t.Fatalf("ListTurns failed: %v", err)
		}
		if len(turns) != 2 {
			t.Fatalf("expected 2 turns, got %d", len(turns))
		}
		if turns[0].ToolCallCount != 2 || !turns[0].WebSearchUsed {
			t.Errorf("expected newest turn first, got %#v", turns[0])
		}
		if !turns[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
			t.Errorf("created_at changed: %v", turns[0].CreatedAt)
		}

		all, _ := s.ListTurns(ctx, "conv", 0)
		if len(all) != 3 {
			t.Errorf("expected all 3 turns, got %d", len(all))
		}
		none, _ := s.ListTurns(ctx, "other", 0)
		if none == nil || len(none) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", none)
		}
	})

	t.Run("documents", func(t *testing.T) {
		created := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		docs := []model.Document{
			{ID: "d2", OwnerScope: "team", Title: "Release notes", Body: "body", Tags: []string{"go", "release"}, CreatedAt: created},
			{ID: "d1", OwnerScope: "team", Title: "Q3 Growth Metrics", Body: "numbers", Summary: "growth", CreatedAt: created},
			{ID: "d3", OwnerScope: "other", Title: "Private", Body: "secret", CreatedAt: created},
		}
		for _, d := range docs {
			if err := s.PutDocument(ctx, d); err != nil {
				t.Fatalf("PutDocument failed: %v", err)
			}
		}

		team, err := s.FetchCandidates(ctx, "team", nil)
		if err != nil {
			t.Fatalf("FetchCandidates failed: %v", err)
		}
		if len(team) != 2 || team[0].ID != "d1" || team[1].ID != "d2" {
			t.Fatalf("expected d1,d2 got %#v", team)
		}
		if len(team[1].Tags) != 2 || team[1].Tags[1] != "release" {
			t.Errorf("tags lost: %#v", team[1].Tags)
		}

		subset, _ := s.FetchCandidates(ctx, "team", []string{"d2", "d3"})
		if len(subset) != 1 || subset[0].ID != "d2" {
			t.Errorf("ids must stay within scope, got %#v", subset)
		}

		unknown, err := s.FetchCandidates(ctx, "nobody", nil)
		if err != nil {
			t.Fatalf("FetchCandidates failed: %v", err)
		}
		if unknown == nil || len(unknown) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", unknown)
		}

		got, err := s.GetDocument(ctx, "d1")
		if err != nil {
			t.Fatalf("GetDocument failed: %v", err)
		}
		if got.Summary != "growth" || !got.CreatedAt.Equal(created) {
			t.Errorf("unexpected document %#v", got)
		}

		if _, err := s.GetDocument(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		docs[1].Title = "Q4 Growth Metrics"
		if err := s.PutDocument(ctx, docs[1]); err != nil {
			t.Fatalf("PutDocument failed: %v", err)
		}
		got, _ = s.GetDocument(ctx, "d1")
		if got.Title != "Q4 Growth Metrics" {
			t.Errorf("expected replaced title, got %q", got.Title)
		}
	})
}
