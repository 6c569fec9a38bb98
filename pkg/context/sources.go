package context

import (
	"context"
	"fmt"

	"github.com/fractalminds/agentcore/pkg/memory"
	"github.com/fractalminds/agentcore/pkg/wire"
)

// --- User input -------------------------------------------------------

// UserInputSource surfaces the incoming task content (spec §4.5).
type UserInputSource struct{}

func (UserInputSource) SourceName() string { return "user_input" }

func (UserInputSource) Collect(ctx context.Context, query string, tokenBudget int, model string, counter TokenCounter) ([]Component, error) {
	if query == "" {
		return nil, nil
	}
	tokens, err := counter.CountText(model, query)
	if err != nil {
		return nil, fmt.Errorf("context: user_input token count: %w", err)
	}
	c := Component{
		SourceName: "user_input",
		Role:       "user",
		Content:    query,
		Priority:   PriorityEssential,
		TokenCount: tokens,
		Strategy:   StrategyKeep,
	}
	return fitToBudget([]Component{c}, tokenBudget), nil
}

// --- Agent output -------------------------------------------------------

// AgentOutputSource surfaces recent assistant outputs from L1 (spec §4.5).
type AgentOutputSource struct {
	Store *memory.Store
	Agent string
}

func (AgentOutputSource) SourceName() string { return "agent_output" }

func (s AgentOutputSource) Collect(ctx context.Context, query string, tokenBudget int, model string, counter TokenCounter) ([]Component, error) {
	if s.Store == nil {
		return nil, nil
	}
	var components []Component
	for _, t := range s.Store.RecentTasks(10) {
		if t.TargetAgent != s.Agent {
			continue
		}
		content := t.Content()
		if content == "" {
			continue
		}
		tokens, err := counter.CountText(model, content)
		if err != nil {
			return nil, fmt.Errorf("context: agent_output token count: %w", err)
		}
		components = append(components, Component{
			SourceName: "agent_output",
			Role:       "assistant",
			Content:    content,
			Priority:   PriorityMedium,
			TokenCount: tokens,
			Strategy:   StrategyTruncate,
			recency:    t.CreatedAt.UnixNano(),
		})
	}
	return fitToBudget(components, tokenBudget), nil
}

// --- Memory tiers ---------------------------------------------------------

// MemoryTiersSource surfaces L1/L2/L3/L4 (spec §4.5). L4 is the RAG
// retrieval result and MUST be priority ESSENTIAL/90 regardless of recency.
type MemoryTiersSource struct {
	Store     *memory.Store
	SessionID string
}

func (MemoryTiersSource) SourceName() string { return "memory_tiers" }

func (s MemoryTiersSource) Collect(ctx context.Context, query string, tokenBudget int, model string, counter TokenCounter) ([]Component, error) {
	if s.Store == nil {
		return nil, nil
	}

	var all []Component
	add := func(t *wire.Task, sourceTag string, priority Priority, strategy Strategy) error {
		content := t.Content()
		if content == "" {
			return nil
		}
		tokens, err := counter.CountText(model, content)
		if err != nil {
			return err
		}
		all = append(all, Component{
			SourceName: sourceTag,
			Role:       "assistant",
			Content:    content,
			Priority:   priority,
			TokenCount: tokens,
			Strategy:   strategy,
			recency:    t.CreatedAt.UnixNano(),
			Metadata:   map[string]any{"tier": sourceTag, "task_id": t.TaskID},
		})
		return nil
	}

	for _, t := range s.Store.RecentTasks(20) {
		if s.SessionID != "" && t.SessionID != s.SessionID {
			continue
		}
		if err := add(t, "memory_l1", PriorityHigh, StrategyTruncate); err != nil {
			return nil, fmt.Errorf("context: memory_tiers l1: %w", err)
		}
	}
	for _, t := range s.Store.ImportantTasks(10) {
		if s.SessionID != "" && t.SessionID != s.SessionID {
			continue
		}
		if err := add(t, "memory_l2", PriorityHigh, StrategyTruncate); err != nil {
			return nil, fmt.Errorf("context: memory_tiers l2: %w", err)
		}
	}
	if s.SessionID != "" {
		for _, t := range s.Store.SessionTasks(s.SessionID) {
			if err := add(t, "memory_l3", PriorityMedium, StrategySummarize); err != nil {
				return nil, fmt.Errorf("context: memory_tiers l3: %w", err)
			}
		}
	}

	if query != "" {
		for _, e := range s.Store.SemanticSearch(ctx, query, 5) {
			tokens, err := counter.CountText(model, e.Text)
			if err != nil {
				return nil, fmt.Errorf("context: memory_tiers l4: %w", err)
			}
			all = append(all, Component{
				SourceName: "memory_l4",
				Role:       "system",
				Content:    e.Text,
				Priority:   PriorityEssential,
				TokenCount: tokens,
				Strategy:   StrategyKeep,
				recency:    e.CreatedAt.UnixNano(),
				Metadata:   map[string]any{"tier": "l4", "rag": true},
			})
		}
	}

	return fitToBudget(all, tokenBudget), nil
}

// --- Knowledge base ---------------------------------------------------------

// KnowledgeSnippet is one RAG hit from an external knowledge base.
type KnowledgeSnippet struct {
	Text     string
	Score    float64
	Metadata map[string]any
}

// KnowledgeBaseProvider is consumed, never implemented, by the core (spec §6).
type KnowledgeBaseProvider interface {
	Retrieve(ctx context.Context, query string, topK int) ([]KnowledgeSnippet, error)
}

// KnowledgeBaseSource surfaces external RAG snippets; ESSENTIAL, fails soft
// to empty on provider failure (spec §4.5).
type KnowledgeBaseSource struct {
	Provider KnowledgeBaseProvider
	TopK     int
}

func (KnowledgeBaseSource) SourceName() string { return "knowledge_base" }

func (s KnowledgeBaseSource) Collect(ctx context.Context, query string, tokenBudget int, model string, counter TokenCounter) ([]Component, error) {
	if s.Provider == nil || query == "" {
		return nil, nil
	}
	topK := s.TopK
	if topK <= 0 {
		topK = 5
	}
	snippets, err := s.Provider.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, nil // fail soft: provider failure yields empty, not an error
	}

	components := make([]Component, 0, len(snippets))
	for i, sn := range snippets {
		tokens, err := counter.CountText(model, sn.Text)
		if err != nil {
			continue
		}
		components = append(components, Component{
			SourceName: "knowledge_base",
			Role:       "system",
			Content:    sn.Text,
			Priority:   PriorityEssential,
			TokenCount: tokens,
			Strategy:   StrategyKeep,
			recency:    int64(len(snippets) - i),
			Metadata:   sn.Metadata,
		})
	}
	return fitToBudget(components, tokenBudget), nil
}

// --- Prompt ---------------------------------------------------------

// PromptSource assembles the three-layer system prompt (spec §4.5): user
// prompt, Form-1 skill instructions, framework autonomy notes.
type PromptSource struct {
	SystemPrompt         string
	ActivatedInstructions []string // Form 1 instructions, first iteration only
	AutonomyNotes        string
	IsFirstIteration     bool
}

func (PromptSource) SourceName() string { return "prompt" }

func (s PromptSource) Collect(ctx context.Context, query string, tokenBudget int, model string, counter TokenCounter) ([]Component, error) {
	text := s.SystemPrompt
	if s.IsFirstIteration {
		for _, instr := range s.ActivatedInstructions {
			if instr != "" {
				text += "\n\n" + instr
			}
		}
	}
	if s.AutonomyNotes != "" {
		text += "\n\n" + s.AutonomyNotes
	}
	if text == "" {
		return nil, nil
	}

	tokens, err := counter.CountText(model, text)
	if err != nil {
		return nil, fmt.Errorf("context: prompt token count: %w", err)
	}
	c := Component{
		SourceName: "prompt",
		Role:       "system",
		Content:    text,
		Priority:   PriorityCritical,
		TokenCount: tokens,
		Strategy:   StrategyKeep,
	}
	return []Component{c}, nil // never dropped by fitToBudget: caller sizes the budget around it
}

// --- Tools ---------------------------------------------------------

// ToolSchema is one tool's name, description and schema text, ready to
// inline into the system message describing available tools. SchemaJSON is
// whatever the lister supplies; tool.Registry supplies a summary listing
// only the schema's property names, not the full JSON schema.
type ToolSchema struct {
	Name        string
	Description string
	SchemaJSON  string
}

// ToolLister is consumed from the tool registry (spec §4.7).
type ToolLister interface {
	ListToolSchemas() []ToolSchema
}

// ToolsSource surfaces the lister's tool schemas, pruned by
// name/description when the budget is tight (spec §4.5).
type ToolsSource struct {
	Lister ToolLister
}

func (ToolsSource) SourceName() string { return "tools" }

func (s ToolsSource) Collect(ctx context.Context, query string, tokenBudget int, model string, counter TokenCounter) ([]Component, error) {
	if s.Lister == nil {
		return nil, nil
	}
	schemas := s.Lister.ListToolSchemas()
	components := make([]Component, 0, len(schemas))
	for _, sc := range schemas {
		full := fmt.Sprintf("%s: %s\n%s", sc.Name, sc.Description, sc.SchemaJSON)
		tokens, err := counter.CountText(model, full)
		if err != nil {
			return nil, fmt.Errorf("context: tools token count: %w", err)
		}
		components = append(components, Component{
			SourceName: "tools",
			Role:       "system",
			Content:    full,
			Priority:   PriorityHigh,
			TokenCount: tokens,
			Strategy:   StrategyDrop,
			Metadata:   map[string]any{"tool_name": sc.Name},
		})
	}

	fitted := fitToBudget(components, tokenBudget)
	if len(fitted) == len(components) || len(components) == 0 {
		return fitted, nil
	}

	// Budget too tight for full schemas: fall back to name+description only
	// ("token-budgeted by name/description pruning", spec §4.5).
	pruned := make([]Component, 0, len(schemas))
	for _, sc := range schemas {
		brief := fmt.Sprintf("%s: %s", sc.Name, sc.Description)
		tokens, err := counter.CountText(model, brief)
		if err != nil {
			continue
		}
		pruned = append(pruned, Component{
			SourceName: "tools",
			Role:       "system",
			Content:    brief,
			Priority:   PriorityHigh,
			TokenCount: tokens,
			Strategy:   StrategyDrop,
			Metadata:   map[string]any{"tool_name": sc.Name, "pruned": true},
		})
	}
	return fitToBudget(pruned, tokenBudget), nil
}

// --- Skills ---------------------------------------------------------

// SkillSummary is one active skill's context contribution, distinct from
// the Form-1 instructions PromptSource inlines directly: this covers
// skills activated via Form 2 (compiled tools) or Form 3 (instantiated
// sub-agents), where the loop still needs a short note in context
// describing what became available and why.
type SkillSummary struct {
	Name     string
	Summary  string
	Priority Priority // MEDIUM to HIGH per skill metadata (spec §4.5)
}

// SkillLister is consumed from the Skill Activator (spec §4.8).
type SkillLister interface {
	ActiveSkillSummaries() []SkillSummary
}

// SkillsSource surfaces active skill instructions (spec §4.5).
type SkillsSource struct {
	Lister SkillLister
}

func (SkillsSource) SourceName() string { return "skills" }

func (s SkillsSource) Collect(ctx context.Context, query string, tokenBudget int, model string, counter TokenCounter) ([]Component, error) {
	if s.Lister == nil {
		return nil, nil
	}
	summaries := s.Lister.ActiveSkillSummaries()
	components := make([]Component, 0, len(summaries))
	for _, sk := range summaries {
		p := sk.Priority
		if p == 0 {
			p = PriorityMedium
		}
		tokens, err := counter.CountText(model, sk.Summary)
		if err != nil {
			return nil, fmt.Errorf("context: skills token count: %w", err)
		}
		components = append(components, Component{
			SourceName: "skills",
			Role:       "system",
			Content:    sk.Summary,
			Priority:   p,
			TokenCount: tokens,
			Strategy:   StrategyDrop,
			Metadata:   map[string]any{"skill_name": sk.Name},
		})
	}
	return fitToBudget(components, tokenBudget), nil
}
