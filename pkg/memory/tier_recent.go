package memory

import (
	"container/list"
	"sync"

	"github.com/fractalminds/agentcore/pkg/wire"
)

// EvictionCallback is invoked synchronously with the task L1 just evicted.
// Per spec §4.3 it must not re-enter L1 writes — Store's callback hands the
// task straight to L2's Offer instead.
type EvictionCallback func(evicted *wire.Task)

// RecentTier (L1) is a bounded FIFO queue backed by a doubly linked list
// plus an id index. Insertion and eviction are both O(1), grounded on the teacher's buffer_window.go windowing
// strategy, generalized from "keep last N messages" to "keep last N tasks".
type RecentTier struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	byID     map[string]*list.Element
	onEvict  EvictionCallback
}

// NewRecentTier constructs L1 with the given capacity (spec default 50).
func NewRecentTier(capacity int, onEvict EvictionCallback) *RecentTier {
	if capacity <= 0 {
		capacity = 50
	}
	return &RecentTier{
		capacity: capacity,
		order:    list.New(),
		byID:     make(map[string]*list.Element),
		onEvict:  onEvict,
	}
}

// Add inserts task at the head of L1, evicting the oldest entry if the tier
// is at capacity.
func (t *RecentTier) Add(task *wire.Task) {
	t.mu.Lock()
	var evicted *wire.Task
	elem := t.order.PushFront(task)
	t.byID[task.TaskID] = elem

	if t.order.Len() > t.capacity {
		back := t.order.Back()
		if back != nil {
			evicted = back.Value.(*wire.Task)
			t.order.Remove(back)
			delete(t.byID, evicted.TaskID)
		}
	}
	t.mu.Unlock()

	if evicted != nil && t.onEvict != nil {
		t.onEvict(evicted)
	}
}

// Get returns a task by id if it is still resident in L1.
func (t *RecentTier) Get(taskID string) (*wire.Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	elem, ok := t.byID[taskID]
	if !ok {
		return nil, false
	}
	return elem.Value.(*wire.Task), true
}

// Recent returns up to limit most-recently-added tasks, newest-first.
func (t *RecentTier) Recent(limit int) []*wire.Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*wire.Task, 0, t.order.Len())
	for e := t.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*wire.Task))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Len reports the current occupancy, for the spec §8 invariant |L1| <= max_l1_size.
func (t *RecentTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}
