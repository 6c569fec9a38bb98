package tool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recordingTool struct {
	name     string
	readOnly bool
	schema   map[string]any
	delay    time.Duration
	fail     bool

	mu      sync.Mutex
	started []time.Time
}

func (r *recordingTool) Definition() Definition {
	return Definition{Name: r.name, Description: "test", Schema: r.schema, ReadOnly: r.readOnly}
}

func (r *recordingTool) Call(ctx Context, args map[string]any) (map[string]any, error) {
	r.mu.Lock()
	r.started = append(r.started, time.Now())
	r.mu.Unlock()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.fail {
		return nil, &InvalidArgumentsError{ToolName: r.name, Message: "boom"}
	}
	return map[string]any{"result": r.name + "-done"}, nil
}

func newExecutor(t *testing.T, tools ...Callable) (*Executor, *Registry) {
	t.Helper()
	reg := NewRegistry()
	for _, tool := range tools {
		if err := reg.RegisterTool(tool); err != nil {
			t.Fatalf("RegisterTool() error = %v", err)
		}
	}
	return NewExecutor(ExecutorConfig{Concurrency: 2, CallTimeout: time.Second}, reg, nil, nil), reg
}

func TestExecutor_ReassemblesResultsInIssuedOrder(t *testing.T) {
	a := &recordingTool{name: "a", readOnly: true}
	b := &recordingTool{name: "b", readOnly: true}
	c := &recordingTool{name: "c", readOnly: true}
	exec, _ := newExecutor(t, a, b, c)

	calls := []Call{{ID: "1", Name: "c"}, {ID: "2", Name: "a"}, {ID: "3", Name: "b"}}
	results, err := exec.ExecuteBatch(context.Background(), "task-1", "trace-1", "span-1", calls)
	if err != nil {
		t.Fatalf("ExecuteBatch() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	want := []string{"c", "a", "b"}
	for i, r := range results {
		if r.Name != want[i] {
			t.Errorf("results[%d].Name = %q, want %q", i, r.Name, want[i])
		}
		if !r.Success {
			t.Errorf("results[%d].Success = false, want true (err=%s)", i, r.Error)
		}
	}
}

func TestExecutor_MutatingGroupRunsSerially(t *testing.T) {
	track := func(name string) *recordingTool {
		return &recordingTool{name: name, readOnly: false, delay: 20 * time.Millisecond}
	}
	a, b := track("a"), track("b")
	exec, _ := newExecutor(t, a, b)

	// Mutating calls must run strictly serially: total wall time is at
	// least the sum of both delays (spec §4.7).
	start := time.Now()
	_, err := exec.ExecuteBatch(context.Background(), "t", "tr", "sp", []Call{
		{ID: "1", Name: "a"}, {ID: "2", Name: "b"},
	})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("ExecuteBatch() error = %v", err)
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 40ms (mutating calls must run serially)", elapsed)
	}
}

func TestExecutor_UnknownToolDefaultsToMutatingAndFails(t *testing.T) {
	exec, _ := newExecutor(t)
	results, err := exec.ExecuteBatch(context.Background(), "t", "tr", "sp", []Call{
		{ID: "1", Name: "nonexistent"},
	})
	if err != nil {
		t.Fatalf("ExecuteBatch() error = %v", err)
	}
	if results[0].Success {
		t.Error("results[0].Success = true, want false for unregistered tool")
	}
}

func TestExecutor_MetaToolRejected(t *testing.T) {
	exec, _ := newExecutor(t)
	_, err := exec.ExecuteBatch(context.Background(), "t", "tr", "sp", []Call{
		{ID: "1", Name: "delegate_task"},
	})
	if err == nil {
		t.Fatal("ExecuteBatch() expected error for meta-tool, got nil")
	}
}

func TestExecutor_SchemaValidationRejectsMissingRequiredField(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string"}},
		"required":   []any{"query"},
	}
	tool := &recordingTool{name: "search", readOnly: true, schema: schema}
	exec, _ := newExecutor(t, tool)

	results, err := exec.ExecuteBatch(context.Background(), "t", "tr", "sp", []Call{
		{ID: "1", Name: "search", Arguments: map[string]any{}},
	})
	if err != nil {
		t.Fatalf("ExecuteBatch() error = %v", err)
	}
	if results[0].Success {
		t.Error("results[0].Success = true, want false for missing required field")
	}
}

func TestExecutor_OutputTruncation(t *testing.T) {
	big := make([]byte, 100)
	for i := range big {
		big[i] = 'x'
	}
	exec := NewExecutor(ExecutorConfig{OutputCap: 10}, NewRegistry(), nil, nil)
	content, truncated := truncate(string(big), exec.cfg.OutputCap)
	if !truncated {
		t.Error("truncate() truncated = false, want true")
	}
	if len(content) <= 10 {
		t.Errorf("len(content) = %d, want > cap (includes marker)", len(content))
	}
}

func TestPartitionByClass_MaximalContiguousGroups(t *testing.T) {
	calls := []Call{
		{Name: "ro1"}, {Name: "ro2"}, {Name: "mut1"}, {Name: "ro3"},
	}
	classify := func(c Call) bool { return c.Name == "ro1" || c.Name == "ro2" || c.Name == "ro3" }
	groups := partitionByClass(calls, classify)
	if len(groups) != 3 {
		t.Fatalf("len(groups) = %d, want 3", len(groups))
	}
	if !groups[0].readOnly || len(groups[0].calls) != 2 {
		t.Errorf("groups[0] = %+v, want readOnly with 2 calls", groups[0])
	}
	if groups[1].readOnly || len(groups[1].calls) != 1 {
		t.Errorf("groups[1] = %+v, want mutating with 1 call", groups[1])
	}
	if !groups[2].readOnly || len(groups[2].calls) != 1 {
		t.Errorf("groups[2] = %+v, want readOnly with 1 call", groups[2])
	}
}

func TestExecutor_ConcurrentGroupRunsWithinLimit(t *testing.T) {
	var active int32
	var maxActive int32
	tools := make([]Callable, 0, 5)
	for i := 0; i < 5; i++ {
		tools = append(tools, &limitProbeTool{
			name: string(rune('a' + i)), active: &active, maxActive: &maxActive,
		})
	}
	reg := NewRegistry()
	for _, tl := range tools {
		if err := reg.RegisterTool(tl); err != nil {
			t.Fatalf("RegisterTool() error = %v", err)
		}
	}
	exec := NewExecutor(ExecutorConfig{Concurrency: 2, CallTimeout: time.Second}, reg, nil, nil)

	calls := make([]Call, 0, 5)
	for i := 0; i < 5; i++ {
		calls = append(calls, Call{ID: string(rune('0' + i)), Name: string(rune('a' + i))})
	}
	if _, err := exec.ExecuteBatch(context.Background(), "t", "tr", "sp", calls); err != nil {
		t.Fatalf("ExecuteBatch() error = %v", err)
	}
	if got := atomic.LoadInt32(&maxActive); got > 2 {
		t.Errorf("max concurrent calls = %d, want <= 2 (Concurrency limit)", got)
	}
}

type limitProbeTool struct {
	name      string
	active    *int32
	maxActive *int32
}

func (p *limitProbeTool) Definition() Definition {
	return Definition{Name: p.name, ReadOnly: true}
}

func (p *limitProbeTool) Call(ctx Context, args map[string]any) (map[string]any, error) {
	n := atomic.AddInt32(p.active, 1)
	defer atomic.AddInt32(p.active, -1)
	for {
		cur := atomic.LoadInt32(p.maxActive)
		if n <= cur || atomic.CompareAndSwapInt32(p.maxActive, cur, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return map[string]any{"result": "ok"}, nil
}
