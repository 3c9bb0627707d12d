package tools

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/driftware/deskhand/internal/action"
	"github.com/driftware/deskhand/internal/computer"
	"github.com/driftware/deskhand/internal/providers"
)

// Registry manages tool registration and dispatches model tool calls.
type Registry struct {
	tools     map[string]Tool
	mu        sync.RWMutex
	display   computer.DisplaySpec
	scrubbing bool // scrub credentials from output (default true)
}

func NewRegistry(display computer.DisplaySpec) *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		display:   display,
		scrubbing: true, // enabled by default
	}
}

// SetScrubbing enables or disables credential scrubbing on tool output.
func (r *Registry) SetScrubbing(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrubbing = enabled
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Dispatch decodes one model tool call, executes it, and encodes the
// outcome as a tool-result transcript message. Malformed calls and failed
// executions both come back as error results so the model can correct
// itself; Dispatch never returns an error to the loop.
func (r *Registry) Dispatch(ctx context.Context, call providers.ToolCall) providers.Message {
	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	disp := r.display
	scrub := r.scrubbing
	r.mu.RUnlock()

	if !ok {
		return action.EncodeDecodeError(call, &action.DecodeError{
			Kind: action.ErrUnknownAction, Detail: "unknown tool: " + call.Name,
		})
	}

	act, err := action.Decode(call.Name, call.Arguments, disp)
	if err != nil {
		slog.Debug("tool call rejected", "tool", call.Name, "error", err)
		return action.EncodeDecodeError(call, err)
	}

	start := time.Now()
	result := tool.Execute(ctx, act)
	duration := time.Since(start)

	// Scrub credentials from tool output before it reaches the model.
	if scrub && result.Text != "" {
		result.Text = ScrubCredentials(result.Text)
	}

	slog.Debug("tool executed",
		"tool", call.Name,
		"action", act.Kind,
		"duration_ms", duration.Milliseconds(),
		"is_error", result.IsError,
	)

	return action.Encode(call, result)
}

// ProviderDefs returns tool definitions for model provider APIs.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]providers.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, ToProviderDef(tool))
	}
	return defs
}

// List returns all registered tool names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
