// Coordinator configuration types.
//
// Information Hiding:
// - Default values hidden

package agent

// DefaultMaxIterations bounds the tool calls made for one query.
const DefaultMaxIterations = 5

// DefaultSystemPrompt frames every provider call.
const DefaultSystemPrompt = `You answer questions for a research assistant.
Ground your answer in the provided documents when they are relevant and say so when they are not.
Use the web_search tool only when the documents cannot answer the question. Be concise.`

// DefaultClosingInstruction is added to the forced final call.
const DefaultClosingInstruction = `You have used all available searches. Tools are no longer available.
Write your final answer now from the documents and the search results you already have.`

// Config holds coordinator configuration.
type Config struct {
	// SystemPrompt guides the model's behavior.
	SystemPrompt string

	// MaxIterations is the number of tool calls allowed before the forced
	// final call. Zero selects DefaultMaxIterations.
	MaxIterations int

	// ClosingInstruction is appended to the prompt of the forced final call.
	ClosingInstruction string
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		SystemPrompt:       DefaultSystemPrompt,
		MaxIterations:      DefaultMaxIterations,
		ClosingInstruction: DefaultClosingInstruction,
	}
}

func (c Config) withDefaults() Config {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.ClosingInstruction == "" {
		c.ClosingInstruction = DefaultClosingInstruction
	}
	return c
}
