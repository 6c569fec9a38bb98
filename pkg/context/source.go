package context

import "context"

// TokenCounter is the narrow slice of pkg/token's Registry a Source needs —
// declared locally so sources can be tested without constructing a real
// tiktoken-backed counter, following the teacher's ReadonlyState/State
// interface-narrowing idiom (pkg/agent/context.go).
type TokenCounter interface {
	CountText(model, text string) (int, error)
}

// Source is one of the seven context sources (spec §4.5).
type Source interface {
	SourceName() string
	Collect(ctx context.Context, query string, tokenBudget int, model string, counter TokenCounter) ([]Component, error)
}

// fitToBudget trims components to the budget, keeping the highest priority
// and most recent first, as spec §4.5 requires of every source
// individually ("favoring higher-priority items and newer items").
func fitToBudget(components []Component, tokenBudget int) []Component {
	sorted := make([]Component, len(components))
	copy(sorted, components)
	sortByPriorityThenRecency(sorted)

	out := make([]Component, 0, len(sorted))
	used := 0
	for _, c := range sorted {
		if used+c.TokenCount > tokenBudget {
			continue
		}
		out = append(out, c)
		used += c.TokenCount
	}
	return out
}

func sortByPriorityThenRecency(components []Component) {
	for i := 1; i < len(components); i++ {
		for j := i; j > 0; j-- {
			a, b := components[j-1], components[j]
			less := a.Priority < b.Priority || (a.Priority == b.Priority && a.recency < b.recency)
			if !less {
				break
			}
			components[j-1], components[j] = components[j], components[j-1]
		}
	}
}
