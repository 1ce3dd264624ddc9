package tools

import (
	"context"
	"fmt"
	"sync"

	domainchat "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/services/chat"
)

// ToolCall represents a single tool invocation request.
type ToolCall struct {
	ID    string                 `json:"id"`    // call id from the model
	Name  string                 `json:"name"`  // tool name
	Input map[string]interface{} `json:"input"` // tool parameters
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	ID      string      `json:"id"`       // call id (matches ToolCall.ID)
	Name    string      `json:"name"`     // tool name (matches ToolCall.Name)
	Result  interface{} `json:"result"`   // execution result (nil if error)
	Error   error       `json:"error"`    // execution error (nil if success)
	IsError bool        `json:"is_error"` // whether execution failed
}

// entry pairs a tool's schema with its executor
type entry struct {
	definition domainchat.ToolDefinition
	executor   ToolExecutor
}

// Registry manages tool definitions and handles tool execution.
// It is thread-safe and can be used concurrently.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]entry),
	}
}

// Register adds a tool to the registry.
// If a tool with the same name already exists, it will be replaced.
func (r *Registry) Register(definition domainchat.ToolDefinition, executor ToolExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[definition.Name] = entry{definition: definition, executor: executor}
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns all registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Definitions resolves tool names to their schemas, preserving the
// given order. Unknown names are skipped so a stored config referring
// to a tool that has since been removed degrades instead of failing.
func (r *Registry) Definitions(names []string) []domainchat.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	definitions := make([]domainchat.ToolDefinition, 0, len(names))
	for _, name := range names {
		if e, ok := r.tools[name]; ok {
			definitions = append(definitions, e.definition)
		}
	}
	return definitions
}

// Execute runs a single tool and returns the result.
// A missing tool or a failed execution is reported in the result, not
// as a separate error, so callers handle both uniformly.
func (r *Registry) Execute(ctx context.Context, call ToolCall) ToolResult {
	r.mu.RLock()
	e, ok := r.tools[call.Name]
	r.mu.RUnlock()

	if !ok {
		return ToolResult{
			ID:      call.ID,
			Name:    call.Name,
			Error:   fmt.Errorf("tool not found: %s", call.Name),
			IsError: true,
		}
	}

	result, err := e.executor.Execute(ctx, call.Input)
	if err != nil {
		return ToolResult{
			ID:      call.ID,
			Name:    call.Name,
			Error:   err,
			IsError: true,
		}
	}

	return ToolResult{
		ID:     call.ID,
		Name:   call.Name,
		Result: result,
	}
}
