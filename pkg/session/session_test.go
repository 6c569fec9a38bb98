package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractalminds/agentcore/pkg/agent"
	"github.com/fractalminds/agentcore/pkg/bus"
	"github.com/fractalminds/agentcore/pkg/llmprovider"
	"github.com/fractalminds/agentcore/pkg/memory"
	"github.com/fractalminds/agentcore/pkg/scope"
	"github.com/fractalminds/agentcore/pkg/skill"
	"github.com/fractalminds/agentcore/pkg/token"
	"github.com/fractalminds/agentcore/pkg/tool"
)

func newTestAgent(t *testing.T, id string, provider llmprovider.Provider) *agent.Agent {
	t.Helper()
	b, err := bus.New(bus.Config{}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	tools := tool.NewRegistry()
	executor := tool.NewExecutor(tool.ExecutorConfig{}, tools, b, nil)
	skills := skill.NewRegistry(nil)
	activator := skill.NewActivator(skills, tools, b)
	store := memory.NewStore(memory.Config{}, nil)
	scoped := scope.New(id)
	tokens := token.NewRegistry("gpt-4o-mini")

	cfg := agent.Config{AgentID: id, Model: "gpt-4o-mini"}
	return agent.New(cfg, provider, store, scoped, tools, executor, skills, activator, b, tokens, nil, nil, nil)
}

func textProvider(text string) *llmprovider.Fake {
	return &llmprovider.Fake{Responses: []llmprovider.FakeResponse{
		{Chunks: []llmprovider.Chunk{{Kind: llmprovider.ChunkText, TextDelta: text}, {Kind: llmprovider.ChunkFinish, FinishReason: "stop"}}},
	}}
}

func waitForTaskTerminal(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tasks := s.Tasks()
		if len(tasks) > 0 && tasks[0].GetStatus().IsTerminal() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task never reached a terminal status")
}

func TestSession_LifecycleTransitions(t *testing.T) {
	s := New("s1", "app", "user", newTestAgent(t, "agent-1", textProvider("hi")))
	assert.Equal(t, StatusActive, s.Status())

	require.NoError(t, s.Pause())
	assert.Equal(t, StatusPaused, s.Status())

	require.NoError(t, s.Resume())
	assert.Equal(t, StatusActive, s.Status())

	require.NoError(t, s.End())
	assert.Equal(t, StatusEnded, s.Status())
}

func TestSession_InvalidTransitionFromEndedIsRejected(t *testing.T) {
	s := New("s1", "app", "user", newTestAgent(t, "agent-1", textProvider("hi")))
	require.NoError(t, s.End())

	err := s.Resume()
	require.Error(t, err)
	var transErr *InvalidTransitionError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, StatusEnded, transErr.From)
	assert.Equal(t, StatusActive, transErr.To)
}

func TestSession_AddTaskRejectedWhenNotActive(t *testing.T) {
	s := New("s1", "app", "user", newTestAgent(t, "agent-1", textProvider("hi")))
	require.NoError(t, s.Pause())

	_, err := s.AddTask(context.Background(), "do something")
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestSession_AddTaskRunsAndCompletes(t *testing.T) {
	s := New("s1", "app", "user", newTestAgent(t, "agent-1", textProvider("the result")))

	task, err := s.AddTask(context.Background(), "do something")
	require.NoError(t, err)
	waitForTaskTerminal(t, s)

	assert.Equal(t, "the result", task.Content())
	assert.Len(t, s.Tasks(), 1)
}

func TestSession_CancelUnknownTaskReturnsNotFound(t *testing.T) {
	s := New("s1", "app", "user", newTestAgent(t, "agent-1", textProvider("hi")))
	err := s.Cancel("does-not-exist")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestSession_StateScopesAreIndependent(t *testing.T) {
	s := New("s1", "app", "user", newTestAgent(t, "agent-1", textProvider("hi")))

	s.SetState(StateApp, "tags", []string{"billing"})
	s.SetState(StateUser, "locale", "en-US")
	s.SetState(StateTemp, "scratch", 42)

	v, ok := s.GetState(StateApp, "tags")
	require.True(t, ok)
	assert.Equal(t, []string{"billing"}, v)

	_, ok = s.GetState(StateTemp, "tags")
	assert.False(t, ok, "app-scoped state must not leak into temp scope")

	s.ClearTemp()
	_, ok = s.GetState(StateTemp, "scratch")
	assert.False(t, ok)

	_, ok = s.GetState(StateUser, "locale")
	assert.True(t, ok, "ClearTemp must not affect user-scoped state")
}

func TestController_OpenReturnsSameSessionForSameID(t *testing.T) {
	c := NewController(newTestAgent(t, "agent-1", textProvider("hi")))
	a := c.Open("s1", "app", "user")
	b := c.Open("s1", "app", "user")
	assert.Same(t, a, b)
	assert.Len(t, c.Sessions(), 1)
}

func TestController_AggregateContext_ConcatenatesWithinBudget(t *testing.T) {
	ag := newTestAgent(t, "agent-1", textProvider("hi"))
	c := NewController(ag)
	c.Open("s1", "app", "user")
	c.Open("s2", "app", "user")

	msgs, err := c.AggregateContext(context.Background(), []string{"s1", "s2"}, "hello", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, msgs)
}

func TestController_DistributeTask_BroadcastsWithEmptyTag(t *testing.T) {
	ag := newTestAgent(t, "agent-1", textProvider("done"))
	c := NewController(ag)
	c.Open("s1", "app", "user")
	c.Open("s2", "app", "user")

	tasks, err := c.DistributeTask(context.Background(), "go do it", "", []string{"s1", "s2"})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestController_DistributeTask_FiltersByTag(t *testing.T) {
	ag := newTestAgent(t, "agent-1", textProvider("done"))
	c := NewController(ag)
	s1 := c.Open("s1", "app", "user")
	c.Open("s2", "app", "user")
	s1.SetState(StateApp, "tags", []string{"billing"})

	tasks, err := c.DistributeTask(context.Background(), "go do it", "billing", []string{"s1", "s2"})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	_, ok := tasks["s1"]
	assert.True(t, ok)
}

func TestHasTag_MatchesCommaSeparatedString(t *testing.T) {
	assert.True(t, hasTag("billing, urgent", "urgent"))
	assert.False(t, hasTag("billing, urgent", "support"))
	assert.True(t, hasTag([]string{"support"}, "support"))
}
