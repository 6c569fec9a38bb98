package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractalminds/agentcore/pkg/bus"
	"github.com/fractalminds/agentcore/pkg/llmprovider"
	"github.com/fractalminds/agentcore/pkg/memory"
	"github.com/fractalminds/agentcore/pkg/scope"
	"github.com/fractalminds/agentcore/pkg/skill"
	"github.com/fractalminds/agentcore/pkg/token"
	"github.com/fractalminds/agentcore/pkg/tool"
	"github.com/fractalminds/agentcore/pkg/wire"
)

// echoTool is a minimal read-only tool standing in for a real sandboxed
// tool: it returns whatever "text" argument it was called with.
type echoTool struct{}

func (echoTool) Definition() tool.Definition {
	return tool.Definition{Name: "echo", Description: "echoes its input", ReadOnly: true, Scope: tool.ScopeContext}
}

func (echoTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	text, _ := args["text"].(string)
	return map[string]any{"result": text}, nil
}

// testHarness wires the minimal C1-C8 collaborators an Agent needs, with no
// manifests, no knowledge base and a fresh in-memory bus, so each test only
// has to supply a Fake provider and a task.
func testHarness(t *testing.T, cfg Config, provider llmprovider.Provider) (*Agent, *tool.Registry) {
	t.Helper()

	b, err := bus.New(bus.Config{}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	tools := tool.NewRegistry()
	require.NoError(t, tools.RegisterTool(echoTool{}))

	executor := tool.NewExecutor(tool.ExecutorConfig{}, tools, b, nil)
	skills := skill.NewRegistry(nil)
	activator := skill.NewActivator(skills, tools, b)
	store := memory.NewStore(memory.Config{}, nil)
	scoped := scope.New(cfg.AgentID)
	tokens := token.NewRegistry("gpt-4o-mini")

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	ag := New(cfg, provider, store, scoped, tools, executor, skills, activator, b, tokens, nil, nil, nil)
	return ag, tools
}

func TestRunTask_EchoThenDone_CompletesWithToolResultAsContent(t *testing.T) {
	provider := &llmprovider.Fake{Responses: []llmprovider.FakeResponse{
		{Chunks: []llmprovider.Chunk{
			{Kind: llmprovider.ChunkToolCallStart, ToolCallID: "c1", ToolCallName: "echo"},
			{Kind: llmprovider.ChunkToolCallComplete, ToolCallID: "c1", ToolCallName: "echo", Arguments: map[string]any{"text": "hello"}},
			{Kind: llmprovider.ChunkFinish, FinishReason: "stop"},
		}},
		{Chunks: []llmprovider.Chunk{
			{Kind: llmprovider.ChunkToolCallStart, ToolCallID: "c2", ToolCallName: "done"},
			{Kind: llmprovider.ChunkToolCallComplete, ToolCallID: "c2", ToolCallName: "done", Arguments: map[string]any{"content": "hello"}},
			{Kind: llmprovider.ChunkFinish, FinishReason: "stop"},
		}},
	}}

	ag, _ := testHarness(t, Config{AgentID: "agent-1", SystemPrompt: "You are a test agent."}, provider)

	task := wire.New("tester", "agent-1", wire.ActionExecute, map[string]any{"content": "say hello"})
	err := ag.RunTask(context.Background(), task)

	require.NoError(t, err)
	assert.Equal(t, wire.StatusCompleted, task.GetStatus())
	assert.Equal(t, "hello", task.Content())
	require.Len(t, provider.Calls, 2, "one iteration for the echo call, one for done")
}

func TestRunTask_ToolFreeResponseCompletesDirectlyWhenDoneNotRequired(t *testing.T) {
	provider := &llmprovider.Fake{Responses: []llmprovider.FakeResponse{
		{Chunks: []llmprovider.Chunk{
			{Kind: llmprovider.ChunkText, TextDelta: "the answer is 42"},
			{Kind: llmprovider.ChunkFinish, FinishReason: "stop"},
		}},
	}}

	ag, _ := testHarness(t, Config{AgentID: "agent-2", RequireDone: false}, provider)

	task := wire.New("tester", "agent-2", wire.ActionExecute, map[string]any{"content": "what is the answer"})
	err := ag.RunTask(context.Background(), task)

	require.NoError(t, err)
	assert.Equal(t, wire.StatusCompleted, task.GetStatus())
	assert.Equal(t, "the answer is 42", task.Content())
}

func TestRunTask_RequireDoneNudgesToolFreeResponse(t *testing.T) {
	provider := &llmprovider.Fake{Responses: []llmprovider.FakeResponse{
		{Chunks: []llmprovider.Chunk{{Kind: llmprovider.ChunkText, TextDelta: "thinking out loud"}, {Kind: llmprovider.ChunkFinish, FinishReason: "stop"}}},
		{Chunks: []llmprovider.Chunk{
			{Kind: llmprovider.ChunkToolCallStart, ToolCallID: "c1", ToolCallName: "done"},
			{Kind: llmprovider.ChunkToolCallComplete, ToolCallID: "c1", ToolCallName: "done", Arguments: map[string]any{"content": "final"}},
			{Kind: llmprovider.ChunkFinish, FinishReason: "stop"},
		}},
	}}

	ag, _ := testHarness(t, Config{AgentID: "agent-3", RequireDone: true}, provider)

	task := wire.New("tester", "agent-3", wire.ActionExecute, map[string]any{"content": "ramble then finish"})
	err := ag.RunTask(context.Background(), task)

	require.NoError(t, err)
	assert.Equal(t, "final", task.Content())
	require.Len(t, provider.Calls, 2, "a tool-call-free response must be nudged into a second iteration")
}

func TestRunTask_DelegateWithoutDelegatorIsSwallowedAsAToolError(t *testing.T) {
	// dispatch errors (including ErrDelegationUnavailable) become a tool
	// result's error content rather than failing the task outright — only
	// streamIteration/context-build/budget failures fail the task (spec
	// §4.9's failure semantics apply to the LLM call, not individual tool
	// dispatch outcomes).
	provider := &llmprovider.Fake{Responses: []llmprovider.FakeResponse{
		{Chunks: []llmprovider.Chunk{
			{Kind: llmprovider.ChunkToolCallStart, ToolCallID: "c1", ToolCallName: "delegate_task"},
			{Kind: llmprovider.ChunkToolCallComplete, ToolCallID: "c1", ToolCallName: "delegate_task", Arguments: map[string]any{"subtask_description": "do the sub-thing"}},
			{Kind: llmprovider.ChunkFinish, FinishReason: "stop"},
		}},
	}}

	ag, _ := testHarness(t, Config{AgentID: "agent-4", MaxIterations: 1}, provider)

	task := wire.New("tester", "agent-4", wire.ActionExecute, map[string]any{"content": "please delegate"})
	err := ag.RunTask(context.Background(), task)

	require.NoError(t, err)
	assert.Equal(t, wire.StatusCompleted, task.GetStatus())
	require.Len(t, provider.Calls, 1)
}

func TestRunTask_MaxIterationsExhaustedFallsBackToLastAssistantText(t *testing.T) {
	resp := llmprovider.FakeResponse{Chunks: []llmprovider.Chunk{
		{Kind: llmprovider.ChunkText, TextDelta: "still working"},
		{Kind: llmprovider.ChunkToolCallStart, ToolCallID: "c1", ToolCallName: "echo"},
		{Kind: llmprovider.ChunkToolCallComplete, ToolCallID: "c1", ToolCallName: "echo", Arguments: map[string]any{"text": "x"}},
		{Kind: llmprovider.ChunkFinish, FinishReason: "stop"},
	}}
	provider := &llmprovider.Fake{Responses: []llmprovider.FakeResponse{resp}}

	ag, _ := testHarness(t, Config{AgentID: "agent-5", MaxIterations: 2}, provider)

	task := wire.New("tester", "agent-5", wire.ActionExecute, map[string]any{"content": "loop forever"})
	err := ag.RunTask(context.Background(), task)

	require.NoError(t, err)
	assert.Equal(t, wire.StatusCompleted, task.GetStatus())
	assert.Equal(t, "still working", task.Content())
	require.Len(t, provider.Calls, 2, "the loop must stop at MaxIterations")
}
