// Package tools provides tool management and registration.
//
// Information Hiding:
// - Tool storage and lookup implementation hidden
// - Registration and discovery mechanisms abstracted

package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/richinex/querygate/llm"
)

// Registry manages available tools with dynamic registration.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a new tool to the registry.
// Returns error if a tool with the same name already exists.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Metadata().Name
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool '%s' already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// Has checks if a tool exists in the registry.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns provider tool definitions in name order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			defs = append(defs, tool.Metadata().Definition())
		}
	}
	return defs
}

// Default timeout for tools, in seconds.
const DefaultToolTimeout = 10

// WithWebSearch creates a registry holding web_search over searcher.
func WithWebSearch(searcher Searcher) (*Registry, error) {
	registry := NewRegistry()
	if err := registry.Register(NewWebSearchTool(searcher, DefaultMaxResults)); err != nil {
		return nil, fmt.Errorf("failed to register web search: %w", err)
	}
	return registry, nil
}
