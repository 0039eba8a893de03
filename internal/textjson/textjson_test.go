package textjson

import (
	"errors"
	"testing"
)

type call struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

func TestObject(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"pure", `{"tool":"web_search","arguments":{"query":"go"}}`},
		{"prefix", `Sure, searching now: {"tool":"web_search","arguments":{"query":"go"}}`},
		{"suffix", `{"tool":"web_search","arguments":{"query":"go"}} Let me know.`},
		{"fenced", "```json\n{\"tool\":\"web_search\",\"arguments\":{\"query\":\"go\"}}\n```"},
		{"bare fence", "```\n{\"tool\":\"web_search\",\"arguments\":{\"query\":\"go\"}}\n```"},
		{"stray brace first", `Use {curly} notation. {"tool":"web_search","arguments":{"query":"go"}}`},
		{"brace in string", `{"tool":"web_search","arguments":{"query":"a } b"}} trailing }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Object[call](tt.text)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Tool != "web_search" {
				t.Errorf("expected tool web_search, got %q", got.Tool)
			}
			if got.Arguments["query"] == nil {
				t.Errorf("expected query argument, got %v", got.Arguments)
			}
		})
	}
}

func TestObjectNotFound(t *testing.T) {
	for _, text := range []string{"", "plain text", "{broken", "[1,2,3]"} {
		_, err := Object[call](text)
		if !errors.Is(err, ErrNoObject) {
			t.Errorf("%q: expected ErrNoObject, got %v", text, err)
		}
	}
}

func TestObjectWrongShape(t *testing.T) {
	_, err := Object[call](`{"tool": 42}`)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if errors.Is(err, ErrNoObject) {
		t.Errorf("a found object with the wrong shape is not ErrNoObject: %v", err)
	}
}

func TestFindPreviewIsBounded(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	_, err := Find(string(long))
	if err == nil || len(err.Error()) > 200 {
		t.Fatalf("expected short error, got %v", err)
	}
}
