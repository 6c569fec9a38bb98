package memory

import (
	"container/list"
	"sync"

	"github.com/fractalminds/agentcore/pkg/wire"
)

// SessionTier (L3) indexes tasks by session_id with a bounded total
// occupancy, per-session FIFO eviction, and O(1) lookup — grounded on the
// teacher's session_service.go keying conversation state off session IDs,
// generalized to a multi-session ring rather than one store per session.
type SessionTier struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // global insertion order, for total-capacity FIFO eviction
	bySession map[string]*list.List
	elemBySession map[string]map[string]*list.Element // sessionID -> taskID -> element in order
	onEvict  EvictionCallback
}

type sessionEntry struct {
	sessionID string
	task      *wire.Task
}

// NewSessionTier constructs L3 with the given total capacity (spec default 500).
func NewSessionTier(capacity int, onEvict EvictionCallback) *SessionTier {
	if capacity <= 0 {
		capacity = 500
	}
	return &SessionTier{
		capacity:      capacity,
		order:         list.New(),
		bySession:     make(map[string]*list.List),
		elemBySession: make(map[string]map[string]*list.Element),
		onEvict:       onEvict,
	}
}

// Add inserts task under its SessionID, evicting the globally oldest entry
// if the tier's total occupancy exceeds capacity.
func (t *SessionTier) Add(task *wire.Task) {
	sessionID := task.SessionID
	if sessionID == "" {
		sessionID = "default"
	}

	t.mu.Lock()
	elem := t.order.PushBack(&sessionEntry{sessionID: sessionID, task: task})

	if _, ok := t.bySession[sessionID]; !ok {
		t.bySession[sessionID] = list.New()
		t.elemBySession[sessionID] = make(map[string]*list.Element)
	}
	perSessionElem := t.bySession[sessionID].PushBack(task)
	t.elemBySession[sessionID][task.TaskID] = perSessionElem

	var evicted *wire.Task
	if t.order.Len() > t.capacity {
		front := t.order.Front()
		if front != nil {
			ev := front.Value.(*sessionEntry)
			evicted = ev.task
			t.order.Remove(front)
			if perElem, ok := t.elemBySession[ev.sessionID][ev.task.TaskID]; ok {
				t.bySession[ev.sessionID].Remove(perElem)
				delete(t.elemBySession[ev.sessionID], ev.task.TaskID)
			}
		}
	}
	t.mu.Unlock()

	if evicted != nil && t.onEvict != nil {
		t.onEvict(evicted)
	}
}

// BySession returns every task stored under sessionID, oldest first.
func (t *SessionTier) BySession(sessionID string) []*wire.Task {
	if sessionID == "" {
		sessionID = "default"
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.bySession[sessionID]
	if !ok {
		return nil
	}
	out := make([]*wire.Task, 0, l.Len())
	for e := l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*wire.Task))
	}
	return out
}

// Get scans every session for taskID. O(sessions) but L3 lookups are rare
// relative to L1/L2 (spec order: check L1, then L2, then L3).
func (t *SessionTier) Get(taskID string) (*wire.Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, elems := range t.elemBySession {
		if elem, ok := elems[taskID]; ok {
			return elem.Value.(*wire.Task), true
		}
	}
	return nil, false
}

// Len reports total occupancy across all sessions.
func (t *SessionTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}
