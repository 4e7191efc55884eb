// Package tooldispatch classifies a turn's tool calls as server-executable,
// system-executable, or client-executable, and runs the server/system ones
// synchronously within the turn.
package tooldispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/loomrun/loom/internal/agent"
)

// MaxToolNameLength bounds a registered tool's name.
const MaxToolNameLength = 256

// ServerTool is anything the engine can execute in-process on a turn's
// behalf: web search/fetch, file access, document search, and the like.
// internal/tools/{websearch,files} already implement this shape.
type ServerTool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error)
}

// Class is the dispatcher's classification of a tool call's execution site.
type Class string

const (
	ClassServer Class = "server"
	ClassSystem Class = "system"
	ClassClient Class = "client"
)

// Registry holds the engine's built-in tools, partitioned into "server"
// tools (IO-bound: web_search, web_fetch, document_search, file
// read/write/edit) and "system" tools (intrinsic engine state with no
// external dependency, e.g. task-list management). The two run identically,
// synchronously inside the engine process, so the split here is purely a
// provenance label, not a behavioral one; Classify never needs to tell them
// apart to decide whether to execute.
type Registry struct {
	mu     sync.RWMutex
	server map[string]ServerTool
	system map[string]ServerTool
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		server: make(map[string]ServerTool),
		system: make(map[string]ServerTool),
	}
}

// RegisterServer adds a server-provenance tool.
func (r *Registry) RegisterServer(tool ServerTool) error {
	return r.register(r.server, tool)
}

// RegisterSystem adds a system-provenance tool (intrinsic engine state).
func (r *Registry) RegisterSystem(tool ServerTool) error {
	return r.register(r.system, tool)
}

func (r *Registry) register(into map[string]ServerTool, tool ServerTool) error {
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tooldispatch: tool name must not be empty")
	}
	if len(name) > MaxToolNameLength {
		return fmt.Errorf("tooldispatch: tool name %q exceeds %d characters", name, MaxToolNameLength)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.server[name]; exists {
		return fmt.Errorf("tooldispatch: tool %q already registered", name)
	}
	if _, exists := r.system[name]; exists {
		return fmt.Errorf("tooldispatch: tool %q already registered", name)
	}
	into[name] = tool
	return nil
}

// lookup returns the registered tool and its provenance class, if any.
func (r *Registry) lookup(name string) (ServerTool, Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tool, ok := r.server[name]; ok {
		return tool, ClassServer, true
	}
	if tool, ok := r.system[name]; ok {
		return tool, ClassSystem, true
	}
	return nil, "", false
}

// AsLLMTools renders every registered tool (server and system) into the
// agent.Tool shape the Backend Driver formats for the model, so the model
// can see and invoke built-ins alongside client-declared tools.
func (r *Registry) AsLLMTools() []agent.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]agent.Tool, 0, len(r.server)+len(r.system))
	for _, tool := range r.server {
		out = append(out, agent.Tool{Name: tool.Name(), Description: tool.Description(), Schema: tool.Schema()})
	}
	for _, tool := range r.system {
		out = append(out, agent.Tool{Name: tool.Name(), Description: tool.Description(), Schema: tool.Schema()})
	}
	return out
}
