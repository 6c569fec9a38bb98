package context

// Priority ranks a Component's importance for budget-enforcement ordering
// (spec §4.5/§4.6). Higher values are kept first; PriorityEssential and
// above are never dropped by the orchestrator's final budget pass.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityEssential
	PriorityCritical
)

// Strategy is what the Context Orchestrator does with a Component when the
// assembled message list still exceeds budget after priority-based
// selection (spec §4.6 step 8).
type Strategy int

const (
	// StrategyKeep never drops or truncates this component; the caller is
	// responsible for sizing the budget so it fits (e.g. the system prompt).
	StrategyKeep Strategy = iota
	// StrategyDrop removes the component outright when over budget.
	StrategyDrop
	// StrategyTruncate marks a component as truncatable. The orchestrator's
	// final budget pass does not drop it and does not shorten its content.
	StrategyTruncate
	// StrategySummarize marks a component as summarizable (used by L3 tier
	// components). The orchestrator's final budget pass does not drop it and
	// does not summarize its content.
	StrategySummarize
)

// Component is one token-budgeted unit a Source contributes to the
// assembled message list (spec §4.5). SourceName identifies which of the
// seven sources produced it; Role is the destination chat role
// (system/user/assistant).
type Component struct {
	SourceName string
	Role       string
	Content    string
	Priority   Priority
	TokenCount int
	Strategy   Strategy
	Metadata   map[string]any

	// recency orders same-priority components, highest first. Sources set
	// it from a task's CreatedAt (as UnixNano) or an explicit rank; it is
	// unexported because only fitToBudget/sortByPriorityThenRecency compare
	// it, never a caller outside this package.
	recency int64
}
