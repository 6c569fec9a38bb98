package context

import (
	"context"
	"fmt"
	"sort"
)

// Message is a role/content pair ready to hand to an LLM provider.
type Message struct {
	Role    string
	Content string
}

// BudgetTooSmallError is raised only when the system prompt alone exceeds
// max_context_tokens (spec §4.6 failure semantics).
type BudgetTooSmallError struct {
	SystemTokens int
	MaxTokens    int
}

func (e *BudgetTooSmallError) Error() string {
	return fmt.Sprintf("context: system prompt alone (%d tokens) exceeds max_context_tokens (%d)", e.SystemTokens, e.MaxTokens)
}

// BudgetRatios allocates the remaining (post-system, post-reserve) budget
// across sources (spec §4.6 step 3 defaults).
type BudgetRatios struct {
	System      float64
	User        float64
	Tools       float64
	Skills      float64
	L1          float64
	L2          float64
	L4          float64
	RAG         float64
	AgentOutput float64
}

// DefaultBudgetRatios matches the spec's typical defaults.
func DefaultBudgetRatios() BudgetRatios {
	return BudgetRatios{
		System: 0.12, User: 0.12, Tools: 0.15, Skills: 0.10,
		L1: 0.18, L2: 0.12, L4: 0.06, RAG: 0.10, AgentOutput: 0.05,
	}
}

// OrchestratorConfig configures C6 (spec §8 config surface).
type OrchestratorConfig struct {
	Model              string
	MaxContextTokens   int
	OutputReserveRatio float64 // default 0.10
	Ratios             BudgetRatios
}

func (c *OrchestratorConfig) setDefaults() {
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = 8000
	}
	if c.OutputReserveRatio <= 0 {
		c.OutputReserveRatio = 0.10
	}
	var zero BudgetRatios
	if c.Ratios == zero {
		c.Ratios = DefaultBudgetRatios()
	}
}

// namedSource pairs a Source with the BudgetRatios field that governs it.
type namedSource struct {
	source Source
	ratio  func(BudgetRatios) float64
}

// Orchestrator is C6: it assembles a token-budgeted message list from the
// seven sources (spec §4.6).
type Orchestrator struct {
	cfg     OrchestratorConfig
	counter TokenCounter

	prompt      PromptSource
	userInput   Source
	agentOutput Source
	memoryTiers Source
	knowledge   Source
	tools       Source
	skills      Source
}

// NewOrchestrator wires every source. prompt is handled specially (it's
// computed before the budget split, since its size determines the
// remaining budget) while the other six share the post-reserve budget by
// ratio.
func NewOrchestrator(cfg OrchestratorConfig, counter TokenCounter, prompt PromptSource, userInput, agentOutput, memoryTiers, knowledge, tools, skills Source) *Orchestrator {
	cfg.setDefaults()
	return &Orchestrator{
		cfg: cfg, counter: counter,
		prompt: prompt, userInput: userInput, agentOutput: agentOutput,
		memoryTiers: memoryTiers, knowledge: knowledge, tools: tools, skills: skills,
	}
}

// BuildContext is the C6 contract: build_context(current_task) -> [Message]
// (spec §4.6). query is the current task's content, used to drive RAG and
// semantic-tier retrieval; session scoping comes from the sources
// themselves (MemoryTiersSource.SessionID).
func (o *Orchestrator) BuildContext(ctx context.Context, query string) ([]Message, error) {
	promptComponents, err := o.prompt.Collect(ctx, query, o.cfg.MaxContextTokens, o.cfg.Model, o.counter)
	if err != nil {
		return nil, fmt.Errorf("context: collecting prompt: %w", err)
	}
	systemTokens := 0
	for _, c := range promptComponents {
		systemTokens += c.TokenCount
	}

	if systemTokens > o.cfg.MaxContextTokens {
		return nil, &BudgetTooSmallError{SystemTokens: systemTokens, MaxTokens: o.cfg.MaxContextTokens}
	}

	remaining := o.cfg.MaxContextTokens - systemTokens
	reserve := int(float64(o.cfg.MaxContextTokens) * o.cfg.OutputReserveRatio)
	remaining -= reserve
	if remaining < 0 {
		remaining = 0
	}

	sources := []namedSource{
		{o.userInput, func(r BudgetRatios) float64 { return r.User }},
		{o.tools, func(r BudgetRatios) float64 { return r.Tools }},
		{o.skills, func(r BudgetRatios) float64 { return r.Skills }},
		{o.memoryTiers, func(r BudgetRatios) float64 { return r.L1 + r.L2 + r.L4 }},
		{o.knowledge, func(r BudgetRatios) float64 { return r.RAG }},
		{o.agentOutput, func(r BudgetRatios) float64 { return r.AgentOutput }},
	}

	var collected []Component
	collected = append(collected, promptComponents...)

	rolledOver := 0
	for _, ns := range sources {
		if ns.source == nil {
			continue
		}
		budget := int(float64(remaining)*ns.ratio(o.cfg.Ratios)) + rolledOver
		if budget < 0 {
			budget = 0
		}
		got, err := ns.source.Collect(ctx, query, budget, o.cfg.Model, o.counter)
		if err != nil {
			return nil, fmt.Errorf("context: collecting from source: %w", err)
		}
		used := 0
		for _, c := range got {
			used += c.TokenCount
		}
		if used < budget {
			rolledOver = budget - used // unused budget rolls to the next source (spec §4.6 step 3)
		} else {
			rolledOver = 0
		}
		collected = append(collected, got...)
	}

	return assembleMessages(collected, o.cfg.MaxContextTokens), nil
}

// assembleMessages converts components to messages, deduplicates,
// enforces strict priority order with RAG pinned immediately after the
// system prompt (spec §4.6 steps 5-8).
func assembleMessages(components []Component, totalBudget int) []Message {
	components = dedupe(components)

	var system, rag, rest []Component
	for _, c := range components {
		switch {
		case c.SourceName == "prompt":
			system = append(system, c)
		case isRAG(c):
			rag = append(rag, c)
		default:
			rest = append(rest, c)
		}
	}

	sortByPriorityThenRecency(rest)

	ordered := make([]Component, 0, len(components))
	ordered = append(ordered, system...)
	ordered = append(ordered, rag...)
	ordered = append(ordered, rest...)

	ordered = enforceBudget(ordered, totalBudget)

	messages := make([]Message, 0, len(ordered))
	for _, c := range ordered {
		messages = append(messages, Message{Role: c.Role, Content: c.Content})
	}
	return messages
}

func isRAG(c Component) bool {
	if c.SourceName == "knowledge_base" || c.SourceName == "memory_l4" {
		return true
	}
	if c.Metadata != nil {
		if rag, ok := c.Metadata["rag"].(bool); ok && rag {
			return true
		}
	}
	return false
}

// dedupe removes components referencing the same task_id, keeping the
// first (highest-priority, thanks to earlier sorting within each source).
func dedupe(components []Component) []Component {
	seen := make(map[string]bool)
	out := make([]Component, 0, len(components))
	for _, c := range components {
		key := ""
		if c.Metadata != nil {
			if taskID, ok := c.Metadata["task_id"].(string); ok {
				key = taskID
			}
		}
		if key == "" {
			out = append(out, c)
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// enforceBudget drops components bottom-up by priority when the assembled
// total still exceeds budget (spec §4.6 step 8). Only StrategyDrop
// components below PriorityEssential are dropped. No component's content is
// shortened: StrategyTruncate/StrategySummarize components and
// essential/critical ones are kept whole, so the result can still exceed
// totalBudget.
func enforceBudget(components []Component, totalBudget int) []Component {
	total := 0
	for _, c := range components {
		total += c.TokenCount
	}
	if total <= totalBudget || totalBudget <= 0 {
		return components
	}

	byPriorityAsc := make([]Component, len(components))
	copy(byPriorityAsc, components)
	sort.SliceStable(byPriorityAsc, func(i, j int) bool { return byPriorityAsc[i].Priority < byPriorityAsc[j].Priority })

	drop := make(map[int]bool)
	excess := total - totalBudget
	for i, c := range byPriorityAsc {
		if excess <= 0 {
			break
		}
		if c.Priority >= PriorityEssential {
			continue // never drop RAG/system-critical components
		}
		switch c.Strategy {
		case StrategyDrop:
			drop[i] = true
			excess -= c.TokenCount
		case StrategyTruncate, StrategySummarize:
			// Kept whole: neither dropped nor shortened.
		}
	}

	droppedContent := make(map[string]bool)
	for i, c := range byPriorityAsc {
		if drop[i] {
			droppedContent[c.SourceName+"|"+c.Content] = true
		}
	}
	out := make([]Component, 0, len(components))
	for _, c := range components {
		if droppedContent[c.SourceName+"|"+c.Content] {
			continue
		}
		out = append(out, c)
	}
	return out
}
