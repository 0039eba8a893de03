// Package llm provides shared data models for LLM providers.
package llm

import "encoding/json"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage represents a chat message with role and content.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // For assistant messages with tool calls
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool result messages
	ToolName   string     `json:"tool_name,omitempty"`    // Gemini matches responses by name
}

// ToolCall represents a tool call from the LLM.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition defines a tool that the LLM can call.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// ToolCallMessage records an assistant turn that requested a tool.
func ToolCallMessage(req ToolRequest) ChatMessage {
	return ChatMessage{
		Role:    RoleAssistant,
		Content: req.Text,
		ToolCalls: []ToolCall{{
			ID:        req.ID,
			Name:      req.Name,
			Arguments: req.Args,
		}},
	}
}

// ToolResultMessage carries a tool's output back to the model.
func ToolResultMessage(callID, toolName, content string) ChatMessage {
	return ChatMessage{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: callID,
		ToolName:   toolName,
	}
}

// Response is what a provider returns for one call: either an Answer or
// a ToolRequest.
type Response interface {
	isResponse()
}

// Answer is a plain text reply.
type Answer struct {
	Text  string
	Usage *TokenUsage
}

// ToolRequest asks the caller to run a tool and report back.
type ToolRequest struct {
	ID   string
	Name string
	Args json.RawMessage
	// Text is any commentary the model sent alongside the call.
	Text  string
	Usage *TokenUsage
}

func (Answer) isResponse()      {}
func (ToolRequest) isResponse() {}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// newResponse turns adapter output into a Response. The first tool call
// wins when a model requests several; an empty reply is invalid.
func newResponse(provider, content string, toolCalls []ToolCall, usage *TokenUsage) (Response, error) {
	if len(toolCalls) > 0 {
		tc := toolCalls[0]
		if tc.Name == "" {
			return nil, invalidResponse(provider, "tool call without a name")
		}
		args := tc.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		return ToolRequest{ID: tc.ID, Name: tc.Name, Args: args, Text: content, Usage: usage}, nil
	}
	if content == "" {
		return nil, invalidResponse(provider, "empty response")
	}
	return Answer{Text: content, Usage: usage}, nil
}
