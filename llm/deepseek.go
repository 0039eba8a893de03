// DeepSeek Provider implementation using go-openai library.
//
// Information Hiding:
// - Uses OpenAI-compatible API with different base URL
// - Supports deepseek-chat and deepseek-reasoner models

package llm

const deepseekBaseURL = "https://api.deepseek.com/v1"

// NewDeepSeekProvider creates a new DeepSeek provider.
func NewDeepSeekProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return NewOpenAICompatibleProvider("deepseek", apiKey, deepseekBaseURL, model, maxTokens, temperature)
}
