// Package tool is C7: the Tool Registry & Executor (spec §4.7).
//
// Tools are registered by name with a callable, a JSON schema, a Scope, and
// a read_only flag. The Executor classifies a batch of LLM-issued calls into
// read-only and mutating groups, runs read-only groups under bounded
// concurrency and mutating groups strictly serially, and reassembles results
// in the order the LLM issued them.
//
// Grounded on the teacher's interface-centric pkg/tool/tool.go (Tool /
// CallableTool / Toolset / Context) rather than the older concrete
// pkg/tools package: the newer design's layered interfaces map directly
// onto the spec's scope/read_only registry metadata, where pkg/tools bakes
// execution into one flat Tool interface with no scope concept at all.
package tool

import (
	"context"
	"fmt"
)

// Scope classifies where and how a tool executes (spec §4.7).
type Scope string

const (
	ScopeSandboxed Scope = "sandboxed" // filesystem/process access restricted to an allowlist
	ScopeSystem    Scope = "system"    // runs with the host process's own privileges
	ScopeRemote    Scope = "remote"    // executes out-of-process via a plugin
	ScopeContext   Scope = "context"   // pure function of the supplied context, no side effects
)

// Definition is the LLM-facing description of a tool (grounded on the
// teacher's ToDefinition/Definition, extended with the spec's scope and
// read_only registry metadata).
type Definition struct {
	Name        string
	Description string
	Schema      map[string]any
	Scope       Scope
	ReadOnly    bool
}

// Call is one LLM-issued invocation (teacher's ToolCall, renamed to avoid
// stutter now that it lives in package tool).
type Call struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Result is the outcome of one Call (teacher's ToolResult).
type Result struct {
	CallID    string
	Name      string
	Content   string
	Success   bool
	Error     string
	Truncated bool
	Metadata  map[string]any
}

// SandboxHandle restricts filesystem access for sandboxed-scope tools to a
// configured allowlist of path prefixes (spec §4.7, "auto-injected sandbox
// handle").
type SandboxHandle interface {
	Allowed(path string) bool
	Resolve(path string) (string, error)
}

// Context is what a Callable receives at call time. Narrower than the
// teacher's tool.Context (no FunctionCallID/Actions/SearchMemory — those
// belong to the agent-loop callback surface, not yet adapted); Sandbox is
// new, carrying the spec's per-call sandbox handle.
type Context struct {
	context.Context
	Sandbox SandboxHandle // nil unless the tool's Scope is ScopeSandboxed
}

// Callable is a registrable tool (teacher's CallableTool, stripped of
// IsLongRunning/RequiresApproval — async and HITL tool execution are out of
// scope for this core).
type Callable interface {
	Definition() Definition
	Call(ctx Context, args map[string]any) (map[string]any, error)
}

// InvalidArgumentsError is raised when a call's arguments fail schema
// validation (spec §4.7, "validate arguments against schema").
type InvalidArgumentsError struct {
	ToolName string
	Message  string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("tool %q: invalid arguments: %s", e.ToolName, e.Message)
}

// MetaToolNames are recognized and dispatched by the Agent Loop rather than
// the Executor (spec §4.7, "Meta-tools"). ExecuteBatch rejects batches
// containing these so a misconfigured agent fails loudly instead of
// silently routing a meta-tool through the ordinary tool path.
var MetaToolNames = map[string]bool{
	"done":                   true,
	"create_plan":            true,
	"delegate_task":          true,
	"query_l1_memory":        true,
	"query_l2_memory":        true,
	"query_events_by_action": true,
}

// IsMetaTool reports whether name is handled by the Agent Loop directly.
func IsMetaTool(name string) bool {
	return MetaToolNames[name]
}
