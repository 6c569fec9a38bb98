package context

import (
	"context"
	"strings"
	"testing"
)

type fakeCounter struct{}

func (fakeCounter) CountText(model, text string) (int, error) {
	return len(strings.Fields(text)), nil
}

type fakeKnowledgeProvider struct {
	snippets []KnowledgeSnippet
	err      error
}

func (f fakeKnowledgeProvider) Retrieve(ctx context.Context, query string, topK int) ([]KnowledgeSnippet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snippets, nil
}

func newTestOrchestrator(t *testing.T, knowledge KnowledgeBaseProvider) *Orchestrator {
	t.Helper()
	prompt := PromptSource{SystemPrompt: "you are a helpful agent"}
	return NewOrchestrator(
		OrchestratorConfig{MaxContextTokens: 1000},
		fakeCounter{},
		prompt,
		UserInputSource{},
		nil, // agent output
		nil, // memory tiers
		KnowledgeBaseSource{Provider: knowledge, TopK: 3},
		nil, // tools
		nil, // skills
	)
}

func TestOrchestrator_RAGPlacedAfterSystemBeforeHistory(t *testing.T) {
	o := newTestOrchestrator(t, fakeKnowledgeProvider{snippets: []KnowledgeSnippet{{Text: "retrieved fact about widgets"}}})

	messages, err := o.BuildContext(context.Background(), "how do widgets work")
	if err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}
	if len(messages) < 2 {
		t.Fatalf("BuildContext() = %v, want at least system + rag", messages)
	}
	if messages[0].Role != "system" || !strings.Contains(messages[0].Content, "helpful agent") {
		t.Errorf("messages[0] = %+v, want the system prompt first", messages[0])
	}
	if !strings.Contains(messages[1].Content, "retrieved fact") {
		t.Errorf("messages[1] = %+v, want RAG content immediately after system prompt", messages[1])
	}
}

func TestOrchestrator_KnowledgeProviderFailureFailsSoft(t *testing.T) {
	o := newTestOrchestrator(t, fakeKnowledgeProvider{err: errUnavailable{}})

	messages, err := o.BuildContext(context.Background(), "anything")
	if err != nil {
		t.Fatalf("BuildContext() error = %v, want fail-soft success", err)
	}
	for _, m := range messages {
		if strings.Contains(m.Content, "retrieved fact") {
			t.Errorf("unexpected RAG content despite provider failure: %+v", m)
		}
	}
}

type errUnavailable struct{}

func (errUnavailable) Error() string { return "knowledge base unavailable" }

func TestOrchestrator_BudgetTooSmall(t *testing.T) {
	prompt := PromptSource{SystemPrompt: strings.Repeat("word ", 500)}
	o := NewOrchestrator(
		OrchestratorConfig{MaxContextTokens: 10},
		fakeCounter{},
		prompt,
		UserInputSource{}, nil, nil, nil, nil, nil,
	)

	_, err := o.BuildContext(context.Background(), "hi")
	if err == nil {
		t.Fatal("BuildContext() expected BudgetTooSmallError, got nil")
	}
	if _, ok := err.(*BudgetTooSmallError); !ok {
		t.Errorf("BuildContext() error = %T, want *BudgetTooSmallError", err)
	}
}

func TestFitToBudget_PrefersHigherPriorityAndRecency(t *testing.T) {
	components := []Component{
		{SourceName: "a", Content: "low", Priority: PriorityLow, TokenCount: 5, recency: 1},
		{SourceName: "b", Content: "high-old", Priority: PriorityHigh, TokenCount: 5, recency: 1},
		{SourceName: "c", Content: "high-new", Priority: PriorityHigh, TokenCount: 5, recency: 2},
	}
	fitted := fitToBudget(components, 10)
	if len(fitted) != 2 {
		t.Fatalf("fitToBudget() = %v, want 2 components to fit in budget 10", fitted)
	}
	if fitted[0].Content != "high-new" || fitted[1].Content != "high-old" {
		t.Errorf("fitToBudget() = %v, want high-priority components kept, newest first", fitted)
	}
}
