// Package agent is C9, the Agent Loop: the perceive-reason-act-observe
// state machine that drives a single Task from pending to a terminal
// status, streaming an LLM, dispatching tool and meta-tool calls, and
// promoting the finished task through memory (spec §4.9).
//
// Grounded on the teacher's pkg/agent (NativeAgent.Run iteration loop) for
// the overall shape — build context, stream the LLM, dispatch tool calls,
// loop until done or max_iterations — generalized to this core's explicit
// Context Orchestrator (C6), Tool Executor (C7) and Skill Activator (C8)
// rather than the teacher's own inlined equivalents.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fractalminds/agentcore/pkg/budget"
	"github.com/fractalminds/agentcore/pkg/bus"
	contextpkg "github.com/fractalminds/agentcore/pkg/context"
	"github.com/fractalminds/agentcore/pkg/llmprovider"
	"github.com/fractalminds/agentcore/pkg/memory"
	"github.com/fractalminds/agentcore/pkg/scope"
	"github.com/fractalminds/agentcore/pkg/skill"
	"github.com/fractalminds/agentcore/pkg/token"
	"github.com/fractalminds/agentcore/pkg/tool"
	"github.com/fractalminds/agentcore/pkg/wire"
)

// Config is one agent node's tunables (spec §8 config surface).
type Config struct {
	AgentID       string
	Model         string
	SystemPrompt  string
	AutonomyNotes string

	MaxIterations     int           // default 10
	MaxRetries        int           // default 1, transient LLM errors only
	IterationDeadline time.Duration // default 60s, per spec §5 per-LLM-call deadline
	MaxRecursionDepth int           // default 5, enforced by pkg/delegate at delegate_task time

	RequireDone  bool // if true, a tool-call-free response is nudged instead of accepted
	SelfEvaluate bool

	Orchestrator contextpkg.OrchestratorConfig
}

func (c *Config) setDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 1
	}
	if c.IterationDeadline <= 0 {
		c.IterationDeadline = 60 * time.Second
	}
	if c.MaxRecursionDepth <= 0 {
		c.MaxRecursionDepth = 5
	}
	if c.Orchestrator.Model == "" {
		c.Orchestrator.Model = c.Model
	}
}

// Delegator performs spec §4.10 Delegation on behalf of the agent loop's
// `delegate_task` meta-tool. Implemented by pkg/delegate; declared here so
// pkg/agent never imports pkg/delegate (delegate constructs child *Agent
// values and so must import agent, not the other way around).
type Delegator interface {
	Delegate(ctx context.Context, parent *wire.Task, parentScope *scope.Memory, subtaskDescription string, requiredCapabilities []string, contextHints map[string]any) (string, error)
}

// Agent is one node of C9: the unit that runs tasks to completion.
type Agent struct {
	cfg Config

	provider  llmprovider.Provider
	store     *memory.Store
	scoped    *scope.Memory
	tools     *tool.Registry
	executor  *tool.Executor
	skills    *skill.Registry
	activator *skill.Activator
	bus       *bus.Bus
	tokens    *token.Registry
	budget    *budget.Budget
	delegator Delegator

	logger *slog.Logger
}

// New wires every C1-C8/C10 collaborator the loop needs. delegator may be
// nil, in which case `delegate_task` fails with ErrDelegationUnavailable
// rather than panicking — a leaf agent with no delegation wiring is valid.
func New(cfg Config, provider llmprovider.Provider, store *memory.Store, scoped *scope.Memory, tools *tool.Registry, executor *tool.Executor, skills *skill.Registry, activator *skill.Activator, b *bus.Bus, tokens *token.Registry, bud *budget.Budget, delegator Delegator, logger *slog.Logger) *Agent {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		cfg: cfg, provider: provider, store: store, scoped: scoped,
		tools: tools, executor: executor, skills: skills, activator: activator,
		bus: b, tokens: tokens, budget: bud, delegator: delegator, logger: logger.With("agent_id", cfg.AgentID),
	}
}

// ID returns this agent's node identifier, used as SourceNode on published
// events and as TargetAgent when constructing child tasks.
func (a *Agent) ID() string { return a.cfg.AgentID }

// Config returns this agent's configuration, read by pkg/delegate to build a
// child AgentConfig per spec §4.10 step 5 ("AgentConfig.inherit(parent_config,
// ...)").
func (a *Agent) Config() Config { return a.cfg }

// Scoped returns this agent's scoped memory, read by pkg/delegate to seed a
// child's INHERITED projections and to merge a child's SHARED/GLOBAL writes
// back (spec §4.10 steps 4 and 7).
func (a *Agent) Scoped() *scope.Memory { return a.scoped }

// Model returns the model name this agent streams against, used by
// pkg/session to count tokens for context re-budgeting (spec §4.11
// aggregate_context).
func (a *Agent) Model() string { return a.cfg.Model }

// Tokens returns the shared Token Counter, used by pkg/session for the same
// reason as Model.
func (a *Agent) Tokens() *token.Registry { return a.tokens }

// TransientLLMError marks an error as retryable within MaxRetries (spec
// §4.9 "transient errors: timeouts, 5xx, rate limit").
type TransientLLMError struct {
	Err error
}

func (e *TransientLLMError) Error() string { return fmt.Sprintf("agent: transient LLM error: %v", e.Err) }
func (e *TransientLLMError) Unwrap() error { return e.Err }

// ErrDelegationUnavailable is returned by delegate_task when the agent was
// constructed without a Delegator.
var ErrDelegationUnavailable = fmt.Errorf("agent: delegation not wired for this node")
