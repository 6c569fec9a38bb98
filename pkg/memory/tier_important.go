package memory

import (
	"container/heap"
	"sync"

	"github.com/fractalminds/agentcore/pkg/wire"
)

// importantItem is one slot in L2's heap, grounded on the teacher's
// summary_buffer.go notion of ranking retained items by a scalar score —
// generalized here from recency to importance.
type importantItem struct {
	task  *wire.Task
	index int // heap.Interface bookkeeping
}

// importantHeap is a min-heap so the *lowest*-ranked item sits at the root —
// that's the one a new arrival must outrank to be admitted once L2 is full.
// Ties break by timestamp: the older entry sorts lower (evicted first) to
// satisfy "tie-break: timestamp desc" for what survives.
type importantHeap []*importantItem

func (h importantHeap) Len() int { return len(h) }
func (h importantHeap) Less(i, j int) bool {
	ii, ij := h[i].task.Importance(), h[j].task.Importance()
	if ii != ij {
		return ii < ij
	}
	return h[i].task.CreatedAt.Before(h[j].task.CreatedAt)
}
func (h importantHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *importantHeap) Push(x any) {
	item := x.(*importantItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *importantHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// ImportantTier (L2) is a bounded heap on task.Importance(), kept as a
// min-heap so the lowest-ranked entry sits at the root. When full,
// an offered task is admitted only if it outranks the current minimum (spec
// §4.3: "a new item replaces the current minimum only if it outranks it").
type ImportantTier struct {
	mu       sync.Mutex
	capacity int
	h        importantHeap
	byID     map[string]*importantItem
	onEvict  EvictionCallback
}

// NewImportantTier constructs L2 with the given capacity (spec default 100).
func NewImportantTier(capacity int, onEvict EvictionCallback) *ImportantTier {
	if capacity <= 0 {
		capacity = 100
	}
	return &ImportantTier{
		capacity: capacity,
		byID:     make(map[string]*importantItem),
		onEvict:  onEvict,
	}
}

// Offer attempts to admit task into L2. It always succeeds while under
// capacity; once full it only admits tasks that outrank the current
// minimum, evicting that minimum via the promotion callback.
func (t *ImportantTier) Offer(task *wire.Task) {
	t.mu.Lock()
	var evicted *wire.Task

	if existing, ok := t.byID[task.TaskID]; ok {
		existing.task = task
		heap.Fix(&t.h, existing.index)
		t.mu.Unlock()
		return
	}

	if t.h.Len() < t.capacity {
		item := &importantItem{task: task}
		heap.Push(&t.h, item)
		t.byID[task.TaskID] = item
		t.mu.Unlock()
		return
	}

	min := t.h[0]
	minRanksLower := task.Importance() > min.task.Importance() ||
		(task.Importance() == min.task.Importance() && task.CreatedAt.After(min.task.CreatedAt))
	if !minRanksLower {
		t.mu.Unlock()
		return
	}

	evicted = min.task
	delete(t.byID, evicted.TaskID)
	heap.Pop(&t.h)
	item := &importantItem{task: task}
	heap.Push(&t.h, item)
	t.byID[task.TaskID] = item
	t.mu.Unlock()

	if evicted != nil && t.onEvict != nil {
		t.onEvict(evicted)
	}
}

// TopK returns the k highest-importance tasks, descending. The teacher's
// summary_buffer.go sorts a copy rather than mutating live state; this does
// the same so repeated calls are side-effect-free.
func (t *ImportantTier) TopK(k int) []*wire.Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	items := make([]*importantItem, len(t.h))
	copy(items, t.h)

	// Selection over a copy: O(n log n) sort is fine at these tier sizes
	// (capacity default 100).
	sortImportantDesc(items)

	if k > 0 && k < len(items) {
		items = items[:k]
	}
	out := make([]*wire.Task, len(items))
	for i, it := range items {
		out[i] = it.task
	}
	return out
}

func sortImportantDesc(items []*importantItem) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0; j-- {
			a, b := items[j-1], items[j]
			less := a.task.Importance() < b.task.Importance() ||
				(a.task.Importance() == b.task.Importance() && a.task.CreatedAt.Before(b.task.CreatedAt))
			if !less {
				break
			}
			items[j-1], items[j] = items[j], items[j-1]
		}
	}
}

// Get returns a task by id if it is still resident in L2.
func (t *ImportantTier) Get(taskID string) (*wire.Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.byID[taskID]
	if !ok {
		return nil, false
	}
	return item.task, true
}

// Len reports current occupancy.
func (t *ImportantTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.h.Len()
}
