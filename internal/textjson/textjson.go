// Package textjson recovers JSON objects that models embed in free text,
// such as tool calls written as prose by small local models.
package textjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoObject is returned when text holds no decodable JSON object.
var ErrNoObject = errors.New("no JSON object found")

const previewLen = 100

// Object decodes the first JSON object in text into T. Markdown code
// fences are ignored, as is any text before or after the object.
func Object[T any](text string) (T, error) {
	var out T
	raw, err := Find(text)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode object: %w", err)
	}
	return out, nil
}

// Find returns the first complete JSON object in text. Each opening brace
// is tried in turn, so braces inside prose or strings do not confuse it.
func Find(text string) (json.RawMessage, error) {
	text = stripFence(text)
	for i := strings.IndexByte(text, '{'); i >= 0; {
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err == nil {
			return raw, nil
		}
		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, fmt.Errorf("%w in %q", ErrNoObject, preview(text))
}

// stripFence removes a surrounding ``` or ```json fence.
func stripFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 && !strings.Contains(t[:nl], "{") {
		t = t[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "```"))
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen]) + "..."
}
