package delegate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractalminds/agentcore/pkg/agent"
	"github.com/fractalminds/agentcore/pkg/budget"
	"github.com/fractalminds/agentcore/pkg/bus"
	"github.com/fractalminds/agentcore/pkg/llmprovider"
	"github.com/fractalminds/agentcore/pkg/memory"
	"github.com/fractalminds/agentcore/pkg/scope"
	"github.com/fractalminds/agentcore/pkg/skill"
	"github.com/fractalminds/agentcore/pkg/token"
	"github.com/fractalminds/agentcore/pkg/tool"
	"github.com/fractalminds/agentcore/pkg/wire"
)

func newTestBus(t *testing.T) *bus.Bus {
	t.Helper()
	b, err := bus.New(bus.Config{}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func doneProvider(content string) *llmprovider.Fake {
	return &llmprovider.Fake{Responses: []llmprovider.FakeResponse{
		{Chunks: []llmprovider.Chunk{
			{Kind: llmprovider.ChunkToolCallStart, ToolCallID: "c1", ToolCallName: "done"},
			{Kind: llmprovider.ChunkToolCallComplete, ToolCallID: "c1", ToolCallName: "done", Arguments: map[string]any{"content": content}},
			{Kind: llmprovider.ChunkFinish, FinishReason: "stop"},
		}},
	}}
}

func newCoordinator(t *testing.T, baseCfg agent.Config, provider llmprovider.Provider, bud *budget.Budget) *Coordinator {
	t.Helper()
	b := newTestBus(t)
	tools := tool.NewRegistry()
	executor := tool.NewExecutor(tool.ExecutorConfig{}, tools, b, nil)
	skills := skill.NewRegistry(nil)
	tokens := token.NewRegistry("gpt-4o-mini")
	if baseCfg.Model == "" {
		baseCfg.Model = "gpt-4o-mini"
	}
	return New(Config{
		BaseAgentConfig: baseCfg,
		Provider:        provider,
		Tools:           tools,
		Executor:        executor,
		Skills:          skills,
		Bus:             b,
		Tokens:          tokens,
		Budget:          bud,
		Memory:          memory.Config{},
	})
}

func TestDelegate_DepthLimitExceededRejectsWithoutRunningChild(t *testing.T) {
	provider := doneProvider("should never run")
	coord := newCoordinator(t, agent.Config{AgentID: "root", MaxRecursionDepth: 1}, provider, budget.New(1000))

	parent := wire.New("caller", "root", wire.ActionExecute, nil)
	parent.Metadata["depth"] = 1 // delegating again would be depth 2, exceeding max of 1
	parentScope := scope.New("root")

	_, err := coord.Delegate(context.Background(), parent, parentScope, "do a sub-thing", nil, nil)

	require.Error(t, err)
	var depthErr *DepthLimitExceededError
	require.ErrorAs(t, err, &depthErr)
	assert.Equal(t, 2, depthErr.Depth)
	assert.Equal(t, 1, depthErr.Max)
	assert.Empty(t, provider.Calls, "an over-depth delegate must never stream the child's LLM calls")
}

func TestDelegate_BudgetExhaustedRejectsWithoutRunningChild(t *testing.T) {
	provider := doneProvider("should never run")
	coord := newCoordinator(t, agent.Config{AgentID: "root"}, provider, budget.New(0))

	parent := wire.New("caller", "root", wire.ActionExecute, nil)
	parentScope := scope.New("root")

	_, err := coord.Delegate(context.Background(), parent, parentScope, "do a sub-thing", nil, nil)

	require.Error(t, err)
	var budgetErr *budget.ExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.Empty(t, provider.Calls)
}

func TestDelegate_SuccessfulChildRunReturnsItsContent(t *testing.T) {
	provider := doneProvider("child result")
	coord := newCoordinator(t, agent.Config{AgentID: "root"}, provider, budget.New(10000))

	parent := wire.New("caller", "root", wire.ActionExecute, nil)
	parentScope := scope.New("root")

	content, err := coord.Delegate(context.Background(), parent, parentScope, "do a sub-thing", []string{"research"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "child result", content)
	require.Len(t, provider.Calls, 1)
}

func TestDelegate_WithContextHintsStillSucceedsAndPreservesParentEntries(t *testing.T) {
	parentScope := scope.New("root")
	require.NoError(t, parentScope.Write("project_brief", "build a widget", scope.Shared, "root"))
	require.NoError(t, parentScope.Write("unrelated", "noise", scope.Shared, "root"))

	provider := doneProvider("ok")
	coord := newCoordinator(t, agent.Config{AgentID: "root"}, provider, budget.New(10000))

	parent := wire.New("caller", "root", wire.ActionExecute, nil)
	hints := map[string]any{"project_brief": true}

	content, err := coord.Delegate(context.Background(), parent, parentScope, "work from the brief", nil, hints)
	require.NoError(t, err)
	assert.Equal(t, "ok", content)

	// Seeding a child's inherited projections and merging its writes back
	// must never drop the parent's own shared entries.
	brief, ok := parentScope.Read("project_brief", scope.Shared)
	require.True(t, ok)
	assert.Equal(t, "build a widget", brief.Content)
	_, ok = parentScope.Read("unrelated", scope.Shared)
	assert.True(t, ok)
}
