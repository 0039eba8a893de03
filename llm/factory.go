// LLM Provider Factory - builder-first API for creating LLM providers.
//
// Quick Start:
//
//	// Simplest: use defaults, read API key from environment
//	claude, err := llm.ProviderAnthropic.FromEnv()
//
//	// Full configuration
//	custom, err := llm.ProviderOpenAI.
//	    Model(llm.ModelOpenAIGPT4oMini).
//	    MaxTokens(2048).
//	    Temperature(0.2).
//	    FromEnv()
//
//	// Local fallback, no key needed
//	local, err := llm.ProviderOffline.Model("llama3.1").BaseURL("http://gpu-box:11434/v1").FromEnv()

package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go/option"
)

// ProviderType represents supported LLM providers.
type ProviderType int

const (
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI ProviderType = iota
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
	// ProviderDeepSeek is the DeepSeek provider.
	ProviderDeepSeek
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini
	// ProviderOffline is a local OpenAI-compatible server such as Ollama.
	ProviderOffline
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderDeepSeek:
		return "deepseek"
	case ProviderGemini:
		return "gemini"
	case ProviderOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// EnvVar returns the environment variable name for this provider's API key.
// The offline provider needs none.
func (p ProviderType) EnvVar() string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderDeepSeek:
		return "DEEPSEEK_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// NeedsAPIKey reports whether FromEnv requires EnvVar to be set.
func (p ProviderType) NeedsAPIKey() bool {
	return p.EnvVar() != ""
}

// DefaultModel returns the default model for this provider.
func (p ProviderType) DefaultModel() string {
	switch p {
	case ProviderOpenAI:
		return ModelOpenAIGPT4oMini
	case ProviderAnthropic:
		return ModelAnthropicClaudeSonnet4
	case ProviderDeepSeek:
		return ModelDeepSeekChat
	case ProviderGemini:
		return ModelGeminiFlash25
	case ProviderOffline:
		return ModelOfflineLlama31
	default:
		return ""
	}
}

// ParseProviderType parses a provider from string (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(s) {
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "deepseek":
		return ProviderDeepSeek, nil
	case "gemini", "google":
		return ProviderGemini, nil
	case "offline", "ollama", "local":
		return ProviderOffline, nil
	default:
		return 0, fmt.Errorf("unknown provider: %s", s)
	}
}

// FromEnv creates a provider with defaults, reading API key from environment.
func (p ProviderType) FromEnv() (Provider, error) {
	return NewProviderBuilder(p).FromEnv()
}

// Model starts configuring this provider with a specific model.
func (p ProviderType) Model(model string) *ProviderBuilder {
	return NewProviderBuilder(p).Model(model)
}

// ProviderBuilder is a builder for configuring LLM providers.
type ProviderBuilder struct {
	providerType ProviderType
	model        string
	baseURL      string
	maxTokens    uint32
	temperature  *float32
}

// NewProviderBuilder creates a new builder for the given provider.
func NewProviderBuilder(providerType ProviderType) *ProviderBuilder {
	return &ProviderBuilder{
		providerType: providerType,
	}
}

// Model sets the model to use.
func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.model = model
	return b
}

// BaseURL overrides the API endpoint.
func (b *ProviderBuilder) BaseURL(url string) *ProviderBuilder {
	b.baseURL = url
	return b
}

// MaxTokens sets maximum tokens for responses.
func (b *ProviderBuilder) MaxTokens(tokens uint32) *ProviderBuilder {
	b.maxTokens = tokens
	return b
}

// Temperature sets temperature (0.0 = deterministic, 1.0 = creative).
func (b *ProviderBuilder) Temperature(temp float32) *ProviderBuilder {
	b.temperature = &temp
	return b
}

// FromEnv builds the provider, reading API key from environment.
func (b *ProviderBuilder) FromEnv() (Provider, error) {
	if !b.providerType.NeedsAPIKey() {
		return b.build("")
	}
	envVar := b.providerType.EnvVar()
	apiKey := os.Getenv(envVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %s environment variable not set", b.providerType, envVar)
	}
	return b.build(apiKey)
}

// APIKey builds the provider with an explicit API key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	return b.build(key)
}

func (b *ProviderBuilder) build(apiKey string) (Provider, error) {
	model := b.model
	if model == "" {
		model = b.providerType.DefaultModel()
	}

	maxTokens := b.maxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	temperature := float32(0.2) // default
	if b.temperature != nil {
		temperature = *b.temperature
	}

	switch b.providerType {
	case ProviderOpenAI:
		return NewOpenAICompatibleProvider("openai", apiKey, b.baseURL, model, maxTokens, temperature), nil
	case ProviderAnthropic:
		var opts []option.RequestOption
		if b.baseURL != "" {
			opts = append(opts, option.WithBaseURL(b.baseURL))
		}
		return NewAnthropicProvider(apiKey, model, maxTokens, temperature, opts...), nil
	case ProviderDeepSeek:
		if b.baseURL != "" {
			return NewOpenAICompatibleProvider("deepseek", apiKey, b.baseURL, model, maxTokens, temperature), nil
		}
		return NewDeepSeekProvider(apiKey, model, maxTokens, temperature), nil
	case ProviderGemini:
		return NewGeminiProvider(apiKey, model, maxTokens, temperature), nil
	case ProviderOffline:
		return NewOfflineProvider(b.baseURL, model, maxTokens, temperature), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %v", b.providerType)
	}
}

// Model identifier constants for all supported providers.

// OpenAI model identifiers
const (
	ModelOpenAIGPT4o     = "gpt-4o"
	ModelOpenAIGPT4oMini = "gpt-4o-mini"
)

// Anthropic model identifiers
const (
	ModelAnthropicClaudeSonnet4 = "claude-sonnet-4-20250514"
	ModelAnthropicClaudeHaiku35 = "claude-3-5-haiku-latest"
)

// DeepSeek model identifiers
const (
	ModelDeepSeekChat     = "deepseek-chat"
	ModelDeepSeekReasoner = "deepseek-reasoner"
)

// Gemini model identifiers
const (
	ModelGeminiFlash25 = "gemini-2.5-flash"
	ModelGeminiPro25   = "gemini-2.5-pro"
)

// Local model identifiers (Ollama tags)
const (
	ModelOfflineLlama31 = "llama3.1"
	ModelOfflineQwen25  = "qwen2.5"
)
