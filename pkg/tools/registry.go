package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/nanobot-run/nanobot/pkg/providers"
)

// Registry holds name→tool with insertion-time registration and dispatches
// by name. Execute never raises: every failure becomes a string prefixed
// "Error".
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, keyed by its own Name(). Re-registering the same
// name replaces the prior tool but keeps its original insertion order.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ToolDefinitions returns {name, description, parameters} for every
// registered tool, suitable for an LLM tool-schema array.
func (r *Registry) ToolDefinitions() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]providers.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Execute dispatches by name and always returns a human-readable string,
// even on failure. Unknown names yield "Error: tool {name} not found".
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) string {
	t, ok := r.Get(name)
	if !ok {
		return fmt.Sprintf("Error: tool %s not found", name)
	}

	result := t.Execute(ctx, args)
	if result == nil {
		return "Error: tool returned no result"
	}
	return result.ForLLM
}

// ExecuteWithContext is like Execute but also returns the structured result,
// so callers (the turn engine) can inspect IsError/Silent for tool_action
// bookkeeping and side-channel delivery decisions.
func (r *Registry) ExecuteWithContext(ctx context.Context, name string, args map[string]interface{}) *ToolResult {
	t, ok := r.Get(name)
	if !ok {
		return ErrorResult(fmt.Sprintf("tool %s not found", name))
	}
	result := t.Execute(ctx, args)
	if result == nil {
		return ErrorResult("tool returned no result")
	}
	return result
}

// UpdateContexts invokes SetContext(channel, chatID) on every registered
// ContextualTool. The engine calls it once before each turn.
func (r *Registry) UpdateContexts(channel, chatID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tools {
		if ct, ok := t.(ContextualTool); ok {
			ct.SetContext(channel, chatID)
		}
	}
}

// UpdateMetadata invokes SetMetadata(metadata) on every registered
// MetadataAwareTool.
func (r *Registry) UpdateMetadata(metadata map[string]string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tools {
		if mt, ok := t.(MetadataAwareTool); ok {
			mt.SetMetadata(metadata)
		}
	}
}
