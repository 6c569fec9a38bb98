package tool

import (
	"fmt"
	"sort"

	contextpkg "github.com/fractalminds/agentcore/pkg/context"
	"github.com/fractalminds/agentcore/pkg/registry"
)

// RegistryError wraps registry failures with the component/action shape the
// teacher uses throughout (grounded on pkg/tools/registry.go's
// ToolRegistryError).
type RegistryError struct {
	Action  string
	Message string
	Err     error
}

func (e *RegistryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool registry: %s: %s: %v", e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("tool registry: %s: %s", e.Action, e.Message)
}

func (e *RegistryError) Unwrap() error { return e.Err }

// Registry is C7's name -> (callable, schema, scope, read_only) registry
// (spec §4.7), built on the shared generic BaseRegistry.
type Registry struct {
	*registry.BaseRegistry[Callable]
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Callable]()}
}

// RegisterTool registers a Callable under its own Definition().Name.
func (r *Registry) RegisterTool(c Callable) error {
	name := c.Definition().Name
	if name == "" {
		return &RegistryError{Action: "RegisterTool", Message: "tool definition has empty name"}
	}
	if IsMetaTool(name) {
		return &RegistryError{Action: "RegisterTool", Message: fmt.Sprintf("%q is a meta-tool name, reserved for the agent loop", name)}
	}
	if err := r.Register(name, c); err != nil {
		return &RegistryError{Action: "RegisterTool", Message: name, Err: err}
	}
	return nil
}

// ReplaceTool registers or replaces a tool, used by the Skill Activator's
// Form 2 (compiled tools) to add tools mid-session.
func (r *Registry) ReplaceTool(c Callable) error {
	name := c.Definition().Name
	if name == "" {
		return &RegistryError{Action: "ReplaceTool", Message: "tool definition has empty name"}
	}
	return r.Upsert(name, c)
}

// Definitions returns every tool's Definition, sorted by name for
// deterministic LLM-facing tool lists.
func (r *Registry) Definitions() []Definition {
	names := r.Keys()
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		c, ok := r.Get(name)
		if !ok {
			continue
		}
		defs = append(defs, c.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// ListToolSchemas satisfies pkg/context's ToolLister, feeding the Context
// Orchestrator's ToolsSource (spec §4.5/§4.7 integration).
func (r *Registry) ListToolSchemas() []contextpkg.ToolSchema {
	defs := r.Definitions()
	out := make([]contextpkg.ToolSchema, 0, len(defs))
	for _, d := range defs {
		out = append(out, contextpkg.ToolSchema{
			Name:        d.Name,
			Description: d.Description,
			SchemaJSON:  schemaSummary(d.Schema),
		})
	}
	return out
}

func schemaSummary(schema map[string]any) string {
	if schema == nil {
		return "{}"
	}
	props, _ := schema["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for k := range props {
		names = append(names, k)
	}
	sort.Strings(names)
	out := "{properties: ["
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	out += "]}"
	return out
}

var _ contextpkg.ToolLister = (*Registry)(nil)
