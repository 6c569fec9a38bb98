package skill

import (
	"context"
	"sort"
	"strings"
	"sync"

	contextpkg "github.com/fractalminds/agentcore/pkg/context"
	"github.com/fractalminds/agentcore/pkg/bus"
	"github.com/fractalminds/agentcore/pkg/tool"
	"github.com/fractalminds/agentcore/pkg/wire"
)

// Activation is the C8 activation contract's return value: activate(task)
// -> {injected_instructions, compiled_tools, instantiated_nodes} (spec
// §4.8).
type Activation struct {
	InjectedInstructions []string
	CompiledTools        []tool.Definition
	InstantiatedNodes    []NodeSpec
	ActivatedSkills      []string
}

// toolChecker is the narrow surface the activator needs from the Tool
// Registry: existence checks for required_tools gating, and registration
// for Form-2 compiled tools. Satisfied structurally by *tool.Registry.
type toolChecker interface {
	Get(name string) (tool.Callable, bool)
	ReplaceTool(c tool.Callable) error
}

// Activator is C8: discovers relevant skills for a task via progressive
// disclosure, then activates them per their manifest's Form (spec §4.8).
type Activator struct {
	skills *Registry
	tools  toolChecker
	bus    *bus.Bus

	mu     sync.RWMutex
	active map[string]*Manifest
}

// NewActivator wires a skill Registry, the Tool Registry (for required_tools
// gating and Form-2 registration), and the Event Bus (activation events MUST
// be published, spec §4.8).
func NewActivator(skills *Registry, tools toolChecker, b *bus.Bus) *Activator {
	return &Activator{
		skills: skills,
		tools:  tools,
		bus:    b,
		active: make(map[string]*Manifest),
	}
}

// Activate runs progressive discovery over taskContent, filters candidates
// by required_tools availability (fail-closed: a skill whose required tools
// are not all registered is silently excluded, not an activation error),
// then activates the remainder per their Form (spec §4.8).
func (a *Activator) Activate(ctx context.Context, taskID, traceID, spanID, taskContent string) (*Activation, error) {
	candidates := a.discover(taskContent)
	result := &Activation{}

	for _, m := range candidates {
		if !a.requiredToolsAvailable(m.RequiredTools) {
			continue
		}

		switch m.Form {
		case FormInstruction:
			if m.Instructions != "" {
				result.InjectedInstructions = append(result.InjectedInstructions, m.Instructions)
			}
		case FormCompilation:
			for _, spec := range m.CompiledTools {
				ct, err := newCompiledCommandTool(spec)
				if err != nil {
					continue
				}
				if err := a.tools.ReplaceTool(ct); err != nil {
					continue
				}
				result.CompiledTools = append(result.CompiledTools, ct.Definition())
			}
		case FormInstantiation:
			result.InstantiatedNodes = append(result.InstantiatedNodes, m.Nodes...)
		}

		result.ActivatedSkills = append(result.ActivatedSkills, m.Name)

		a.mu.Lock()
		a.active[m.Name] = m
		a.mu.Unlock()

		a.publish(ctx, taskID, traceID, spanID, m)
	}

	return result, nil
}

// discover is the progressive-disclosure candidate search: rule-based
// keyword matching against the task's content. A manifest with no keywords
// is treated as always-relevant (spec §4.8 "Discovery is LLM- or
// rule-based"; this is the rule-based path — the Agent Loop may instead
// supply LLM-selected candidates directly via ActivateNamed).
func (a *Activator) discover(taskContent string) []*Manifest {
	lower := strings.ToLower(taskContent)
	all := a.skills.List()

	var candidates []*Manifest
	for _, m := range all {
		if len(m.Keywords) == 0 {
			candidates = append(candidates, m)
			continue
		}
		for _, kw := range m.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				candidates = append(candidates, m)
				break
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].priorityRank() != candidates[j].priorityRank() {
			return candidates[i].priorityRank() > candidates[j].priorityRank()
		}
		return candidates[i].Name < candidates[j].Name
	})
	return candidates
}

// ActivateNamed activates an explicit, LLM-selected set of skill names,
// still subject to required_tools gating (spec §4.8 "Discovery is LLM- or
// rule-based").
func (a *Activator) ActivateNamed(ctx context.Context, taskID, traceID, spanID string, names []string) (*Activation, error) {
	result := &Activation{}
	for _, name := range names {
		m, ok := a.skills.Get(name)
		if !ok || !a.requiredToolsAvailable(m.RequiredTools) {
			continue
		}
		sub, _ := a.activateOne(ctx, taskID, traceID, spanID, m)
		result.InjectedInstructions = append(result.InjectedInstructions, sub.InjectedInstructions...)
		result.CompiledTools = append(result.CompiledTools, sub.CompiledTools...)
		result.InstantiatedNodes = append(result.InstantiatedNodes, sub.InstantiatedNodes...)
		result.ActivatedSkills = append(result.ActivatedSkills, sub.ActivatedSkills...)
	}
	return result, nil
}

func (a *Activator) activateOne(ctx context.Context, taskID, traceID, spanID string, m *Manifest) (*Activation, error) {
	result := &Activation{}
	switch m.Form {
	case FormInstruction:
		if m.Instructions != "" {
			result.InjectedInstructions = append(result.InjectedInstructions, m.Instructions)
		}
	case FormCompilation:
		for _, spec := range m.CompiledTools {
			ct, err := newCompiledCommandTool(spec)
			if err != nil {
				continue
			}
			if err := a.tools.ReplaceTool(ct); err != nil {
				continue
			}
			result.CompiledTools = append(result.CompiledTools, ct.Definition())
		}
	case FormInstantiation:
		result.InstantiatedNodes = append(result.InstantiatedNodes, m.Nodes...)
	}
	result.ActivatedSkills = append(result.ActivatedSkills, m.Name)

	a.mu.Lock()
	a.active[m.Name] = m
	a.mu.Unlock()

	a.publish(ctx, taskID, traceID, spanID, m)
	return result, nil
}

func (a *Activator) requiredToolsAvailable(required []string) bool {
	if len(required) == 0 {
		return true
	}
	if a.tools == nil {
		return false
	}
	for _, name := range required {
		if _, ok := a.tools.Get(name); !ok {
			return false
		}
	}
	return true
}

func (a *Activator) publish(ctx context.Context, taskID, traceID, spanID string, m *Manifest) {
	if a.bus == nil {
		return
	}
	ev := wire.NewEvent(wire.EventSkillActivate, "skill_activator", taskID, traceID, spanID, map[string]any{
		"skill_name": m.Name,
		"form":       string(m.Form),
	})
	_ = a.bus.Publish(ctx, ev)
}

// ActiveSkillSummaries satisfies pkg/context's SkillLister, feeding the
// Context Orchestrator's SkillsSource (spec §4.5/§4.8 integration).
func (a *Activator) ActiveSkillSummaries() []contextpkg.SkillSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]contextpkg.SkillSummary, 0, len(a.active))
	for _, m := range a.active {
		priority := contextpkg.PriorityMedium
		if m.priorityRank() == 2 {
			priority = contextpkg.PriorityHigh
		}
		out = append(out, contextpkg.SkillSummary{
			Name:     m.Name,
			Summary:  m.Description,
			Priority: priority,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var _ contextpkg.SkillLister = (*Activator)(nil)
