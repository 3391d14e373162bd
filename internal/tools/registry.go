// Package tools provides the tool registry and the metered dispatcher.
// Tools carry a JSON Schema for their arguments; the dispatcher validates,
// executes, meters, and audits every call, including failures.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// The closed tool name set.
const (
	ToolWorkflowOrchestrator = "workflow_orchestrator"
	ToolGoogleSearch         = "google_search"
	ToolCodeExecutor         = "code_executor"
	ToolSubmitParallelJob    = "submit_parallel_job"
	ToolRetrieveContext      = "retrieve_context"
)

// CostModifier returns the per-tool cost multiplier. Unknown tools meter
// at the neutral rate.
func CostModifier(name string) float64 {
	switch name {
	case ToolWorkflowOrchestrator:
		return 1.5
	case ToolCodeExecutor:
		return 1.2
	case ToolSubmitParallelJob:
		return 2.0
	case ToolRetrieveContext:
		return 0.8
	default:
		return 1.0
	}
}

// Executor runs a tool against validated arguments.
type Executor func(ctx context.Context, args map[string]any) (any, error)

// Definition describes a registered tool.
type Definition struct {
	Name        string
	Description string
	ArgSchema   *jsonschema.Schema
	Execute     Executor
}

// Registry is a name-keyed map of tool definitions. Registration happens
// during startup wiring; the map is read-mostly afterwards.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a tool. Duplicate names are rejected.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("tool definition requires a name")
	}
	if def.Execute == nil {
		return fmt.Errorf("tool %q requires an executor", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("tool %q is already registered", def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// ValidateArgs returns the schema violation for a tool's arguments, nil
// when the tool accepts them.
func (r *Registry) ValidateArgs(name string, args map[string]any) error {
	def, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("tool not found: %s", name)
	}
	if def.ArgSchema == nil {
		return nil
	}
	payload := map[string]any{}
	if args != nil {
		payload = args
	}
	return def.ArgSchema.Validate(toAny(payload))
}

// Validate reports whether the tool exists and its schema accepts args.
func (r *Registry) Validate(name string, args map[string]any) bool {
	return r.ValidateArgs(name, args) == nil
}

// toAny normalizes the argument map into plain JSON-compatible values so
// schema validation sees the same shapes it would on the wire.
func toAny(args map[string]any) any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}

// List returns the registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.defs, name)
}

// Clear removes every tool.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = make(map[string]*Definition)
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}
