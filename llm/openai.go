// OpenAI Provider implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for OpenAI Chat Completions API
// - Any OpenAI-compatible endpoint (DeepSeek, Ollama) via base URL

package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for OpenAI and
// OpenAI-compatible chat completion endpoints.
type OpenAIProvider struct {
	client      *openai.Client
	name        string
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return NewOpenAICompatibleProvider("openai", apiKey, "", model, maxTokens, temperature)
}

// NewOpenAICompatibleProvider creates a provider for any endpoint speaking
// the Chat Completions API. An empty baseURL keeps the OpenAI default.
func NewOpenAICompatibleProvider(name, apiKey, baseURL, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(config),
		name:        name,
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the current model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Call sends a chat completion request with optional tool definitions.
func (p *OpenAIProvider) Call(ctx context.Context, prompt string, history []ChatMessage, tools []ToolDefinition) (Response, error) {
	content, toolCalls, usage, err := p.complete(ctx, prompt, history, tools)
	if err != nil {
		return nil, err
	}
	return newResponse(p.name, content, toolCalls, usage)
}

// complete runs the request and returns the raw pieces of the first choice.
func (p *OpenAIProvider) complete(ctx context.Context, prompt string, history []ChatMessage, tools []ToolDefinition) (string, []ToolCall, *TokenUsage, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    convertToOpenAIMessagesWithTools(prompt, history),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}
	if len(tools) > 0 {
		req.Tools = convertToOpenAITools(tools)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", nil, nil, classify(p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, nil, invalidResponse(p.name, "no choices")
	}

	msg := resp.Choices[0].Message
	var toolCalls []ToolCall
	for _, tc := range msg.ToolCalls {
		toolCalls = append(toolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: []byte(tc.Function.Arguments),
		})
	}

	usage := &TokenUsage{
		PromptTokens:     uint32(resp.Usage.PromptTokens),
		CompletionTokens: uint32(resp.Usage.CompletionTokens),
		TotalTokens:      uint32(resp.Usage.TotalTokens),
	}

	return msg.Content, toolCalls, usage, nil
}

// convertToOpenAIMessagesWithTools handles tool calls and tool responses.
// The prompt goes first as the system message.
func convertToOpenAIMessagesWithTools(prompt string, messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if prompt != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: prompt,
		})
	}

	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}

		// Handle tool calls from assistant
		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}

		// Handle tool response
		if msg.ToolCallID != "" {
			oaiMsg.ToolCallID = msg.ToolCallID
		}

		result = append(result, oaiMsg)
	}
	return result
}

// convertToOpenAITools converts tool definitions to OpenAI format.
func convertToOpenAITools(tools []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
