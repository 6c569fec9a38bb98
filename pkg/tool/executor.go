package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/fractalminds/agentcore/pkg/bus"
	"github.com/fractalminds/agentcore/pkg/wire"
)

const (
	// DefaultConcurrency bounds simultaneous read-only tool calls (spec §4.7).
	DefaultConcurrency = 10
	// DefaultCallTimeout is the per-call deadline.
	DefaultCallTimeout = 60 * time.Second
	// DefaultOutputCap truncates tool output at 1 MiB of content (spec §4.7).
	DefaultOutputCap = 1 << 20 // 1 MiB
	truncationMarker = "\n...[truncated]"
)

// ExecutorConfig configures C7's executor.
type ExecutorConfig struct {
	Concurrency int
	CallTimeout time.Duration
	OutputCap   int
}

func (c *ExecutorConfig) setDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.OutputCap <= 0 {
		c.OutputCap = DefaultOutputCap
	}
}

// Executor runs batches of LLM-issued tool calls (spec §4.7).
//
// Bounded-concurrency read-only execution is grounded on the teacher's own
// golang.org/x/sync/errgroup usage (pkg/agent/workflowagent/parallel.go),
// extended with errgroup.Group.SetLimit — shipped in the same x/sync
// version (v0.17.0) the teacher's go.mod already pins, so this is not a new
// dependency, only a newer API surface of one already in use.
//
// Schema validation is grounded on github.com/santhosh-tekuri/jsonschema/v5,
// used for exactly this purpose (validating a decoded JSON payload against
// a compiled schema) in the pack's haasonsaas-nexus/pkg/pluginsdk/validation.go;
// the teacher's own invopop/jsonschema only generates schemas, it doesn't
// validate payloads against them.
type Executor struct {
	cfg      ExecutorConfig
	registry *Registry
	bus      *bus.Bus
	sandbox  SandboxHandle

	schemaMu    sync.Mutex
	schemaCache map[string]*jsonschema.Schema
}

// NewExecutor wires a Registry and an optional Bus for tool.call/tool.result
// publication (spec §4.7). sandbox is injected into the Context of every
// ScopeSandboxed tool call; may be nil if no sandboxed tools are registered.
func NewExecutor(cfg ExecutorConfig, reg *Registry, b *bus.Bus, sandbox SandboxHandle) *Executor {
	cfg.setDefaults()
	return &Executor{
		cfg: cfg, registry: reg, bus: b, sandbox: sandbox,
		schemaCache: make(map[string]*jsonschema.Schema),
	}
}

// ExecuteBatch is the C7 contract: execute_batch([tool_call]) -> [tool_result]
// (spec §4.7). Calls to meta-tool names are rejected; the Agent Loop must
// strip those before handing a batch to the executor.
func (e *Executor) ExecuteBatch(ctx context.Context, taskID, traceID, spanID string, calls []Call) ([]Result, error) {
	for _, c := range calls {
		if IsMetaTool(c.Name) {
			return nil, fmt.Errorf("tool executor: %q is a meta-tool, must be handled by the agent loop", c.Name)
		}
	}

	results := make([]Result, len(calls))
	groups := partitionByClass(calls, e.classify)

	idx := 0
	for _, g := range groups {
		if g.readOnly {
			if err := e.runConcurrent(ctx, taskID, traceID, spanID, g.calls, g.offsets(idx), results); err != nil {
				return nil, err
			}
		} else {
			e.runSerial(ctx, taskID, traceID, spanID, g.calls, g.offsets(idx), results)
		}
		idx += len(g.calls)
	}

	return results, nil
}

// classify reports a call as read-only using the registry's Definition;
// unknown tools default to mutating (spec §4.7, "if unknown, default to
// mutating").
func (e *Executor) classify(c Call) bool {
	callable, ok := e.registry.Get(c.Name)
	if !ok {
		return false
	}
	return callable.Definition().ReadOnly
}

type callGroup struct {
	readOnly bool
	calls    []Call
	start    int
}

func (g callGroup) offsets(base int) []int {
	out := make([]int, len(g.calls))
	for i := range g.calls {
		out[i] = base + i
	}
	return out
}

// partitionByClass splits calls into maximal contiguous same-class runs,
// preserving LLM-issued order (spec §4.7 "Partition the batch into maximal
// contiguous groups of the same class").
func partitionByClass(calls []Call, classify func(Call) bool) []callGroup {
	var groups []callGroup
	for i, c := range calls {
		ro := classify(c)
		if len(groups) == 0 || groups[len(groups)-1].readOnly != ro {
			groups = append(groups, callGroup{readOnly: ro, start: i})
		}
		last := &groups[len(groups)-1]
		last.calls = append(last.calls, c)
	}
	return groups
}

func (e *Executor) runConcurrent(ctx context.Context, taskID, traceID, spanID string, calls []Call, offsets []int, results []Result) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, c := range calls {
		i, c := i, c
		g.Go(func() error {
			results[offsets[i]] = e.runOne(gctx, taskID, traceID, spanID, c)
			return nil
		})
	}
	return g.Wait()
}

func (e *Executor) runSerial(ctx context.Context, taskID, traceID, spanID string, calls []Call, offsets []int, results []Result) {
	for i, c := range calls {
		results[offsets[i]] = e.runOne(ctx, taskID, traceID, spanID, c)
	}
}

// runOne executes a single call end to end: schema validation, tool.call
// publication, timeout-bounded invocation, output truncation, tool.result
// publication (spec §4.7).
func (e *Executor) runOne(ctx context.Context, taskID, traceID, spanID string, c Call) Result {
	e.publish(ctx, wire.EventToolCall, taskID, traceID, spanID, map[string]any{
		"call_id": c.ID, "tool_name": c.Name, "arguments": c.Arguments,
	})

	callable, ok := e.registry.Get(c.Name)
	if !ok {
		return e.finish(ctx, taskID, traceID, spanID, c, Result{
			CallID: c.ID, Name: c.Name, Success: false,
			Error: fmt.Sprintf("tool %q not registered", c.Name),
		})
	}

	def := callable.Definition()
	if err := e.validate(def, c.Arguments); err != nil {
		return e.finish(ctx, taskID, traceID, spanID, c, Result{
			CallID: c.ID, Name: c.Name, Success: false, Error: err.Error(),
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	toolCtx := Context{Context: callCtx}
	if def.Scope == ScopeSandboxed {
		toolCtx.Sandbox = e.sandbox
	}

	out, err := callable.Call(toolCtx, c.Arguments)
	if err != nil {
		return e.finish(ctx, taskID, traceID, spanID, c, Result{
			CallID: c.ID, Name: c.Name, Success: false, Error: err.Error(),
		})
	}

	content, truncated := truncate(renderOutput(out), e.cfg.OutputCap)
	return e.finish(ctx, taskID, traceID, spanID, c, Result{
		CallID: c.ID, Name: c.Name, Success: true, Content: content,
		Truncated: truncated, Metadata: out,
	})
}

func (e *Executor) finish(ctx context.Context, taskID, traceID, spanID string, c Call, r Result) Result {
	e.publish(ctx, wire.EventToolResult, taskID, traceID, spanID, map[string]any{
		"call_id": c.ID, "tool_name": c.Name, "success": r.Success,
		"error": r.Error, "truncated": r.Truncated,
	})
	return r
}

func (e *Executor) publish(ctx context.Context, t wire.EventType, taskID, traceID, spanID string, payload map[string]any) {
	if e.bus == nil {
		return
	}
	ev := wire.NewEvent(t, "tool_executor", taskID, traceID, spanID, payload)
	_ = e.bus.Publish(ctx, ev)
}

// validate checks args against def.Schema, compiling (and caching) the
// schema on first use (spec §4.7, "fail with InvalidArguments").
func (e *Executor) validate(def Definition, args map[string]any) error {
	if def.Schema == nil {
		return nil
	}
	schema, err := e.compiledSchema(def.Name, def.Schema)
	if err != nil {
		return &InvalidArgumentsError{ToolName: def.Name, Message: fmt.Sprintf("schema compile error: %v", err)}
	}
	if err := schema.Validate(toAny(args)); err != nil {
		return &InvalidArgumentsError{ToolName: def.Name, Message: err.Error()}
	}
	return nil
}

func (e *Executor) compiledSchema(name string, raw map[string]any) (*jsonschema.Schema, error) {
	e.schemaMu.Lock()
	defer e.schemaMu.Unlock()
	if s, ok := e.schemaCache[name]; ok {
		return s, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	compiled, err := jsonschema.CompileString(name+".json", string(data))
	if err != nil {
		return nil, err
	}
	e.schemaCache[name] = compiled
	return compiled, nil
}

func toAny(m map[string]any) any {
	data, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return map[string]any{}
	}
	return v
}

func renderOutput(out map[string]any) string {
	if out == nil {
		return ""
	}
	if s, ok := out["result"].(string); ok {
		return s
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf("%v", out)
	}
	return string(data)
}

func truncate(s string, cap int) (string, bool) {
	if len(s) <= cap {
		return s, false
	}
	return s[:cap] + truncationMarker, true
}
