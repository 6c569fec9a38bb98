package skill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractalminds/agentcore/pkg/tool"
)

// fakeToolChecker satisfies toolChecker without a real tool.Registry, so
// required_tools gating and Form-2 registration can be exercised in
// isolation.
type fakeToolChecker struct {
	available map[string]bool
	replaced  []string
}

func newFakeToolChecker(names ...string) *fakeToolChecker {
	available := make(map[string]bool, len(names))
	for _, n := range names {
		available[n] = true
	}
	return &fakeToolChecker{available: available}
}

func (f *fakeToolChecker) Get(name string) (tool.Callable, bool) {
	return nil, f.available[name]
}

func (f *fakeToolChecker) ReplaceTool(c tool.Callable) error {
	f.replaced = append(f.replaced, c.Definition().Name)
	f.available[c.Definition().Name] = true
	return nil
}

func newRegistryWith(manifests ...*Manifest) *Registry {
	r := NewRegistry(nil)
	for _, m := range manifests {
		_ = r.Upsert(m.Name, m)
	}
	return r
}

func TestActivate_InstructionFormInjectsKeywordMatch(t *testing.T) {
	m := &Manifest{Name: "git-helper", Form: FormInstruction, Keywords: []string{"git", "commit"}, Instructions: "Use git conventions."}
	skills := newRegistryWith(m)
	tools := newFakeToolChecker()
	a := NewActivator(skills, tools, nil)

	activation, err := a.Activate(context.Background(), "t1", "", "", "please run git commit for me")
	require.NoError(t, err)
	assert.Contains(t, activation.InjectedInstructions, "Use git conventions.")
	assert.Equal(t, []string{"git-helper"}, activation.ActivatedSkills)
}

func TestActivate_NoKeywordMatchExcludesSkill(t *testing.T) {
	m := &Manifest{Name: "git-helper", Form: FormInstruction, Keywords: []string{"git"}, Instructions: "Use git conventions."}
	a := NewActivator(newRegistryWith(m), newFakeToolChecker(), nil)

	activation, err := a.Activate(context.Background(), "t1", "", "", "summarize this document")
	require.NoError(t, err)
	assert.Empty(t, activation.ActivatedSkills)
}

func TestActivate_RequiredToolsGatingExcludesSkill(t *testing.T) {
	m := &Manifest{Name: "deploy", Form: FormInstruction, Instructions: "Deploy carefully.", RequiredTools: []string{"kubectl"}}
	a := NewActivator(newRegistryWith(m), newFakeToolChecker(), nil)

	activation, err := a.Activate(context.Background(), "t1", "", "", "anything")
	require.NoError(t, err)
	assert.Empty(t, activation.ActivatedSkills, "skill requiring an unavailable tool must be silently excluded, not an error")
}

func TestActivate_RequiredToolsAvailableActivatesSkill(t *testing.T) {
	m := &Manifest{Name: "deploy", Form: FormInstruction, Instructions: "Deploy carefully.", RequiredTools: []string{"kubectl"}}
	a := NewActivator(newRegistryWith(m), newFakeToolChecker("kubectl"), nil)

	activation, err := a.Activate(context.Background(), "t1", "", "", "anything")
	require.NoError(t, err)
	assert.Equal(t, []string{"deploy"}, activation.ActivatedSkills)
}

func TestActivate_CompilationFormRegistersCompiledTool(t *testing.T) {
	m := &Manifest{
		Name: "greeter", Form: FormCompilation,
		CompiledTools: []CompiledToolSpec{{Name: "greet", Description: "says hello", Command: "echo hello", ReadOnly: true}},
	}
	tools := newFakeToolChecker()
	a := NewActivator(newRegistryWith(m), tools, nil)

	activation, err := a.Activate(context.Background(), "t1", "", "", "greeter")
	require.NoError(t, err)
	require.Len(t, activation.CompiledTools, 1)
	assert.Equal(t, "greet", activation.CompiledTools[0].Name)
	assert.Contains(t, tools.replaced, "greet")
}

func TestActivate_InstantiationFormReturnsNodeSpecs(t *testing.T) {
	m := &Manifest{
		Name: "researcher", Form: FormInstantiation,
		Nodes: []NodeSpec{{Name: "researcher-node", SystemPrompt: "You research things.", Tools: []string{"web_search"}}},
	}
	a := NewActivator(newRegistryWith(m), newFakeToolChecker(), nil)

	activation, err := a.Activate(context.Background(), "t1", "", "", "researcher")
	require.NoError(t, err)
	require.Len(t, activation.InstantiatedNodes, 1)
	assert.Equal(t, "researcher-node", activation.InstantiatedNodes[0].Name)
}

func TestActivateNamed_ExplicitActivationIgnoresKeywords(t *testing.T) {
	m := &Manifest{Name: "always-silent", Form: FormInstruction, Keywords: []string{"never-matches-anything"}, Instructions: "Stay quiet."}
	a := NewActivator(newRegistryWith(m), newFakeToolChecker(), nil)

	activation, err := a.ActivateNamed(context.Background(), "t1", "", "", []string{"always-silent"})
	require.NoError(t, err)
	assert.Equal(t, []string{"always-silent"}, activation.ActivatedSkills)
}

func TestActivateNamed_UnknownNameIsSkipped(t *testing.T) {
	a := NewActivator(NewRegistry(nil), newFakeToolChecker(), nil)

	activation, err := a.ActivateNamed(context.Background(), "t1", "", "", []string{"does-not-exist"})
	require.NoError(t, err)
	assert.Empty(t, activation.ActivatedSkills)
}

func TestActiveSkillSummaries_ReflectsPriorityAndSortsByName(t *testing.T) {
	high := &Manifest{Name: "zzz-high", Form: FormInstruction, Priority: "high", Instructions: "x", Description: "high prio"}
	low := &Manifest{Name: "aaa-low", Form: FormInstruction, Priority: "low", Instructions: "y", Description: "low prio"}
	a := NewActivator(newRegistryWith(high, low), newFakeToolChecker(), nil)

	_, err := a.ActivateNamed(context.Background(), "t1", "", "", []string{"zzz-high", "aaa-low"})
	require.NoError(t, err)

	summaries := a.ActiveSkillSummaries()
	require.Len(t, summaries, 2)
	assert.Equal(t, "aaa-low", summaries[0].Name, "summaries are sorted by name")
	assert.Equal(t, "zzz-high", summaries[1].Name)
}
