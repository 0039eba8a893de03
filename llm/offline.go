// Offline Provider implementation for a local OpenAI-compatible server (Ollama).
//
// Information Hiding:
// - Local endpoint defaults, no API key
// - Recovery of tool calls that small local models emit as JSON text

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/richinex/querygate/internal/textjson"
)

// DefaultOfflineBaseURL is Ollama's OpenAI-compatible endpoint.
const DefaultOfflineBaseURL = "http://localhost:11434/v1"

// OfflineProvider talks to a local model server.
type OfflineProvider struct {
	inner *OpenAIProvider
}

// NewOfflineProvider creates a provider for a local endpoint.
// An empty baseURL uses DefaultOfflineBaseURL.
func NewOfflineProvider(baseURL, model string, maxTokens uint32, temperature float32) *OfflineProvider {
	if baseURL == "" {
		baseURL = DefaultOfflineBaseURL
	}
	// Ollama ignores the key but go-openai always sends one.
	return &OfflineProvider{
		inner: NewOpenAICompatibleProvider("offline", "ollama", baseURL, model, maxTokens, temperature),
	}
}

// Name returns the provider name.
func (p *OfflineProvider) Name() string {
	return p.inner.Name()
}

// Model returns the current model.
func (p *OfflineProvider) Model() string {
	return p.inner.Model()
}

// Call sends the request. Tools are advertised both natively and in the
// prompt, since many local models answer with a JSON object instead of a
// structured tool call.
func (p *OfflineProvider) Call(ctx context.Context, prompt string, history []ChatMessage, tools []ToolDefinition) (Response, error) {
	if len(tools) > 0 {
		prompt = prompt + "\n\n" + textToolInstructions(tools)
	}

	content, toolCalls, usage, err := p.inner.complete(ctx, prompt, history, tools)
	if err != nil {
		return nil, err
	}

	if len(toolCalls) == 0 && len(tools) > 0 {
		if tc, ok := parseTextToolCall(content, tools); ok {
			toolCalls = []ToolCall{tc}
			content = ""
		}
	}

	return newResponse(p.Name(), content, toolCalls, usage)
}

// textToolCall is the shape we ask local models to emit.
type textToolCall struct {
	Tool      string          `json:"tool"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func textToolInstructions(tools []ToolDefinition) string {
	var sb strings.Builder
	sb.WriteString("To use a tool, reply with only a JSON object: {\"tool\": \"<name>\", \"arguments\": {...}}.\nTools:\n")
	for _, t := range tools {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Description)
	}
	return sb.String()
}

// parseTextToolCall recognises a JSON tool call naming one of tools.
func parseTextToolCall(content string, tools []ToolDefinition) (ToolCall, bool) {
	call, err := textjson.Object[textToolCall](content)
	if err != nil {
		return ToolCall{}, false
	}
	name := call.Tool
	if name == "" {
		name = call.Name
	}
	for _, t := range tools {
		if t.Name == name {
			args := call.Arguments
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			return ToolCall{ID: "call_" + uuid.NewString(), Name: name, Arguments: args}, true
		}
	}
	return ToolCall{}, false
}

// Verify OfflineProvider implements Provider
var _ Provider = (*OfflineProvider)(nil)
