package memory

import (
	"context"
	"testing"

	"github.com/fractalminds/agentcore/pkg/wire"
)

func taskWithImportance(agent string, importance float64) *wire.Task {
	task := wire.New("tester", agent, wire.ActionExecute, nil)
	task.Metadata["importance"] = importance
	task.SetResult(map[string]any{"content": "result for " + agent})
	return task
}

func TestStore_L1CapacityInvariant(t *testing.T) {
	cfg := Config{MaxL1Size: 3}
	s := NewStore(cfg, nil)

	for i := 0; i < 10; i++ {
		s.AddTask(taskWithImportance("agent", 0.1))
	}
	if got := s.l1.Len(); got > 3 {
		t.Errorf("L1 occupancy = %d, want <= 3 (max_l1_size)", got)
	}
}

func TestStore_L1ToL2Promotion(t *testing.T) {
	cfg := Config{MaxL1Size: 3, PromoteThreshold: 0.6}
	s := NewStore(cfg, nil)

	t1 := taskWithImportance("t1", 0.7) // above threshold, should survive eviction into L2
	s.AddTask(t1)
	s.AddTask(taskWithImportance("t2", 0.1))
	s.AddTask(taskWithImportance("t3", 0.1))
	s.AddTask(taskWithImportance("t4", 0.1)) // evicts t1 from L1

	if _, ok := s.l1.Get(t1.TaskID); ok {
		t.Fatal("t1 should have been evicted from L1")
	}
	top := s.ImportantTasks(1)
	if len(top) != 1 || top[0].TaskID != t1.TaskID {
		t.Errorf("L2 top-1 = %v, want t1 (importance 0.7 >= 0.6 threshold)", top)
	}
}

func TestStore_L2ReplacesOnlyWhenOutranked(t *testing.T) {
	cfg := Config{MaxL2Size: 2}
	s := NewStore(cfg, nil)

	low := taskWithImportance("low", 0.3)
	high := taskWithImportance("high", 0.9)
	s.l2.Offer(low)
	s.l2.Offer(high)

	weaker := taskWithImportance("weaker", 0.1)
	s.l2.Offer(weaker) // should be rejected, L2 stays {low, high}

	if _, ok := s.l2.Get(weaker.TaskID); ok {
		t.Error("weaker task should not have displaced a higher-ranked entry")
	}
	if _, ok := s.l2.Get(low.TaskID); !ok {
		t.Error("low task should still be resident (not outranked)")
	}

	stronger := taskWithImportance("stronger", 0.95)
	s.l2.Offer(stronger) // should displace the current minimum (low, 0.3)

	if _, ok := s.l2.Get(low.TaskID); ok {
		t.Error("low task should have been displaced by a higher-importance arrival")
	}
	if _, ok := s.l2.Get(stronger.TaskID); !ok {
		t.Error("stronger task should have been admitted")
	}
}

func TestStore_L3IndexedBySession(t *testing.T) {
	s := NewStore(Config{}, nil)

	t1 := taskWithImportance("a", 0.1)
	t1.SessionID = "sess-1"
	t2 := taskWithImportance("b", 0.1)
	t2.SessionID = "sess-2"

	s.l3.Add(t1)
	s.l3.Add(t2)

	got := s.SessionTasks("sess-1")
	if len(got) != 1 || got[0].TaskID != t1.TaskID {
		t.Errorf("SessionTasks(sess-1) = %v, want [t1]", got)
	}
}

func TestStore_SemanticSearchFailsSoftWithoutEmbedder(t *testing.T) {
	s := NewStore(Config{}, nil)
	s.l4.Add(context.Background(), "fact-1", "the sky is blue", nil)
	s.l4.Add(context.Background(), "fact-2", "water boils at 100C", nil)

	results := s.SemanticSearch(context.Background(), "sky", 5)
	if len(results) != 1 || results[0].ID != "fact-1" {
		t.Errorf("SemanticSearch(sky) = %v, want keyword fallback hit on fact-1", results)
	}

	empty := s.SemanticSearch(context.Background(), "", 5)
	if empty != nil {
		t.Errorf("SemanticSearch(\"\") = %v, want nil/empty", empty)
	}
}

func TestStore_L1ToL2ToL3Chain(t *testing.T) {
	cfg := Config{MaxL1Size: 1, MaxL2Size: 1, PromoteThreshold: 0.5, PromoteThresholdL2: 0.8}
	s := NewStore(cfg, nil)

	veryImportant := taskWithImportance("very", 0.95)
	s.AddTask(veryImportant)
	s.AddTask(taskWithImportance("filler1", 0.1)) // evicts veryImportant into L2

	// L2 capacity is 1; pushing another high-importance task forces
	// veryImportant to be evaluated for L2->L3 promotion.
	s.l2.Offer(taskWithImportance("filler2", 0.99))

	if _, ok := s.l3.Get(veryImportant.TaskID); !ok {
		t.Error("veryImportant task should have been promoted through L2 into L3")
	}
}
