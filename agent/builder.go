// Coordinator builder for fluent configuration.
//
// Information Hiding:
// - Builder state management hidden
// - Default value application hidden

package agent

import (
	"github.com/richinex/querygate/tools"
)

// Builder provides fluent configuration for creating coordinators.
// Usage: agent.NewBuilder(chain).MaxIterations(3).Build().
type Builder struct {
	invoker    Invoker
	config     Config
	registry   *tools.Registry
	toolConfig *tools.ToolConfig
}

// NewBuilder creates a builder over the given provider chain.
func NewBuilder(invoker Invoker) *Builder {
	return &Builder{invoker: invoker}
}

// SystemPrompt sets the system prompt.
func (b *Builder) SystemPrompt(prompt string) *Builder {
	b.config.SystemPrompt = prompt
	return b
}

// MaxIterations sets the tool call bound.
func (b *Builder) MaxIterations(n int) *Builder {
	b.config.MaxIterations = n
	return b
}

// ClosingInstruction sets the instruction for the forced final call.
func (b *Builder) ClosingInstruction(text string) *Builder {
	b.config.ClosingInstruction = text
	return b
}

// Tools sets the registry of callable tools.
func (b *Builder) Tools(registry *tools.Registry) *Builder {
	b.registry = registry
	return b
}

// ToolConfig sets the tool timeout and retry policy.
func (b *Builder) ToolConfig(config tools.ToolConfig) *Builder {
	b.toolConfig = &config
	return b
}

// Build creates the coordinator.
func (b *Builder) Build() *Coordinator {
	c := New(b.config, b.invoker, b.registry)
	if b.toolConfig != nil {
		c.WithToolConfig(*b.toolConfig)
	}
	return c
}
