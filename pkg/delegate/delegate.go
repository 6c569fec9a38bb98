// Package delegate implements C10, Delegation & Fractal Composition: the
// delegate_task meta-tool's contract of spawning a child Agent, running it
// to completion, and merging its writes back into the parent (spec §4.10).
//
// Grounded on the teacher's pkg/tool/agenttool (agent-as-tool delegation): a
// child runs in an isolated session seeded from filtered parent state, and
// its final text becomes the tool's return value. agentcore generalizes the
// teacher's single isolated Session into this core's child Task + child
// Scoped Memory + child Agent triple, matching the fractal composition
// contract where a delegated task is itself run by the Agent Loop (C9).
package delegate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fractalminds/agentcore/pkg/agent"
	"github.com/fractalminds/agentcore/pkg/budget"
	"github.com/fractalminds/agentcore/pkg/bus"
	"github.com/fractalminds/agentcore/pkg/llmprovider"
	"github.com/fractalminds/agentcore/pkg/memory"
	"github.com/fractalminds/agentcore/pkg/observability"
	"github.com/fractalminds/agentcore/pkg/scope"
	"github.com/fractalminds/agentcore/pkg/skill"
	"github.com/fractalminds/agentcore/pkg/token"
	"github.com/fractalminds/agentcore/pkg/tool"
	"github.com/fractalminds/agentcore/pkg/wire"
)

// DepthLimitExceededError is returned when delegating would exceed the
// agent's configured recursion depth (spec §4.10 step 1).
type DepthLimitExceededError struct {
	Depth int
	Max   int
}

func (e *DepthLimitExceededError) Error() string {
	return fmt.Sprintf("delegate: depth %d would exceed max_recursion_depth %d", e.Depth, e.Max)
}

// seedTopK bounds how many parent entries seed a child's inherited
// projections per context_hints match (spec §4.10 step 4 "top-k by
// recency"); not spec-pinned to an exact value, so agentcore picks a small
// constant in the teacher's style of unexported tuning constants.
const seedTopK = 5

// Coordinator runs delegate_task calls for every agent node spawned from the
// same fractal root config. It holds the collaborators spec §4.10 step 5
// marks "Inherited" — skill registry, tool registry, event bus, executor
// (carrying the sandbox manager), shared budget, LLM provider — so every
// child agent shares them by reference rather than recreating them.
//
// BaseConfig is the node type's AgentConfig: fractal composition recurses
// the same configuration at every depth (only AgentID varies per child),
// per spec §4.10 step 5's "AgentConfig.inherit(parent_config, ...)".
type Coordinator struct {
	provider llmprovider.Provider
	tools    *tool.Registry
	executor *tool.Executor
	skills   *skill.Registry
	bus      *bus.Bus
	tokens   *token.Registry
	budget   *budget.Budget
	memCfg   memory.Config
	metrics  *observability.Metrics
	logger   *slog.Logger

	baseCfg agent.Config
}

// Config configures a Coordinator.
type Config struct {
	BaseAgentConfig agent.Config
	Provider        llmprovider.Provider
	Tools           *tool.Registry
	Executor        *tool.Executor
	Skills          *skill.Registry
	Bus             *bus.Bus
	Tokens          *token.Registry
	Budget          *budget.Budget
	Memory          memory.Config
	Metrics         *observability.Metrics
	Logger          *slog.Logger
}

// New constructs a Coordinator. It implements agent.Delegator, so the same
// value is passed as every node's delegator when the tree is wired up
// (typically by cmd/agentcore).
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		provider: cfg.Provider, tools: cfg.Tools, executor: cfg.Executor,
		skills: cfg.Skills, bus: cfg.Bus, tokens: cfg.Tokens, budget: cfg.Budget,
		memCfg: cfg.Memory, metrics: cfg.Metrics, logger: logger,
		baseCfg: cfg.BaseAgentConfig,
	}
}

// Delegate implements agent.Delegator: the delegate_task meta-tool's full
// 8-step contract (spec §4.10).
func (c *Coordinator) Delegate(ctx context.Context, parent *wire.Task, parentScope *scope.Memory, subtaskDescription string, requiredCapabilities []string, contextHints map[string]any) (string, error) {
	depth := parent.Depth() + 1
	maxDepth := c.baseCfg.MaxRecursionDepth
	if maxDepth <= 0 {
		maxDepth = 5
	}
	if depth > maxDepth {
		return "", &DepthLimitExceededError{Depth: depth, Max: maxDepth}
	}
	if c.budget != nil && c.budget.Exhausted() {
		return "", &budget.ExceededError{Requested: 0, Remaining: c.budget.Remaining()}
	}

	child := c.buildChildTask(parent, subtaskDescription, requiredCapabilities, depth)

	childScope := scope.NewChild(child.TaskID, parentScope)
	parentScope.SeedChildProjections(childScope, contextHints, seedTopK)

	childAgent := c.buildChildAgent(childScope, parent.TargetAgent+"/"+child.TaskID)

	if err := childAgent.RunTask(ctx, child); err != nil {
		return "", fmt.Errorf("delegate: child task %s: %w", child.TaskID, err)
	}

	parentScope.MergeFromChild(childScope, parent.TargetAgent)

	return child.Content(), nil
}

func (c *Coordinator) buildChildTask(parent *wire.Task, subtaskDescription string, requiredCapabilities []string, depth int) *wire.Task {
	child := wire.New(parent.TargetAgent, parent.TargetAgent, wire.ActionDelegate, map[string]any{
		"content":                subtaskDescription,
		"required_capabilities": requiredCapabilities,
	})
	child.ParentTaskID = parent.TaskID
	child.SessionID = parent.SessionID
	child.Metadata["depth"] = depth
	return child
}

// buildChildAgent constructs the child Agent per spec §4.10 step 5: skill
// registry, tool registry, executor, event bus, budget and LLM provider are
// inherited by reference; tier store, scoped memory (already constructed by
// the caller) and active skill set are independent per child.
func (c *Coordinator) buildChildAgent(childScope *scope.Memory, childID string) *agent.Agent {
	childCfg := c.baseCfg
	childCfg.AgentID = childID

	childStore := memory.NewStore(c.memCfg, c.metrics)
	childActivator := skill.NewActivator(c.skills, c.tools, c.bus)

	return agent.New(
		childCfg, c.provider, childStore, childScope, c.tools, c.executor,
		c.skills, childActivator, c.bus, c.tokens, c.budget, c, c.logger,
	)
}

var _ agent.Delegator = (*Coordinator)(nil)
