package agent

import (
	"context"

	contextpkg "github.com/fractalminds/agentcore/pkg/context"
	"github.com/fractalminds/agentcore/pkg/llmprovider"
	"github.com/fractalminds/agentcore/pkg/skill"
	"github.com/fractalminds/agentcore/pkg/tool"
	"github.com/fractalminds/agentcore/pkg/wire"
)

// buildOrchestratorContext runs the Context Orchestrator (C6) for one
// iteration and converts its Message list to the llmprovider shape (spec
// §4.9 step 3a-b: build context, and on iteration 0 fold in the activated
// skills' Form-1 instructions as a system-role message).
//
// A fresh Orchestrator is constructed per call rather than cached on Agent:
// NewOrchestrator only assigns fields (no expensive setup), and the prompt
// source's ActivatedInstructions/IsFirstIteration vary every iteration.
func (a *Agent) buildOrchestratorContext(ctx context.Context, task *wire.Task, activation *skill.Activation, firstIteration bool) ([]llmprovider.Message, error) {
	prompt := contextpkg.PromptSource{
		SystemPrompt:          a.cfg.SystemPrompt,
		ActivatedInstructions: activation.InjectedInstructions,
		AutonomyNotes:         a.cfg.AutonomyNotes,
		IsFirstIteration:      firstIteration,
	}

	o := contextpkg.NewOrchestrator(
		a.cfg.Orchestrator,
		a.tokens,
		prompt,
		contextpkg.UserInputSource{},
		contextpkg.AgentOutputSource{Store: a.store, Agent: a.cfg.AgentID},
		contextpkg.MemoryTiersSource{Store: a.store, SessionID: task.SessionID},
		nil, // knowledge base: no KnowledgeBaseProvider is wired into the agent's orchestrator
		contextpkg.ToolsSource{Lister: a.tools},
		contextpkg.SkillsSource{Lister: a.activator},
	)

	messages, err := o.BuildContext(ctx, a.taskContent(task))
	if err != nil {
		return nil, err
	}

	out := make([]llmprovider.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, llmprovider.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// BuildMessages runs the Context Orchestrator standalone for query, outside
// an Agent Loop iteration: skills are activated fresh and folded in as if
// this were iteration 0. Used by pkg/session to bind a Context Orchestrator
// to "the session's current agent" (spec §4.11) without running a task.
func (a *Agent) BuildMessages(ctx context.Context, taskID, traceID, spanID, query string) ([]llmprovider.Message, error) {
	activation, err := a.activator.Activate(ctx, taskID, traceID, spanID, query)
	if err != nil {
		return nil, err
	}
	return a.buildOrchestratorContext(ctx, &wire.Task{TaskID: taskID, Parameters: map[string]any{"content": query}}, activation, true)
}

// toolDefinitionsForLLM projects the Tool Registry's Definitions into the
// llmprovider-facing shape stream_chat expects (spec §6 "tools" parameter).
func toolDefinitionsForLLM(reg *tool.Registry) []llmprovider.ToolDefinition {
	defs := reg.Definitions()
	out := make([]llmprovider.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, llmprovider.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Schema,
		})
	}
	return out
}
