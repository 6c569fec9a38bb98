// Package wire defines the envelope types that flow across agentcore's
// subsystems: Task (the unit of work and the unit of memory) and Event (the
// envelope for every observable happening). Both are wire-level: any
// component that crosses a process boundary (the bus's external transport,
// a persistence backend, an A2A-compatible client) serializes exactly these
// field sets.
package wire

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// validTransitions encodes the monotonic status machine from spec §3:
// pending -> running -> {completed|failed|cancelled}, never leaving terminal.
var validTransitions = map[Status]map[Status]bool{
	StatusPending: {StatusRunning: true, StatusCancelled: true},
	StatusRunning: {StatusCompleted: true, StatusFailed: true, StatusCancelled: true},
}

// CanTransition reports whether moving from `from` to `to` is a legal step.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// Action is drawn from a fixed, open-ended vocabulary understood by agents.
type Action string

const (
	ActionExecute  Action = "execute"
	ActionDelegate Action = "delegate"
	ActionQuery    Action = "query"
	ActionNotify   Action = "notify"
)

// Task is the unit of work and the unit of memory (spec §3).
type Task struct {
	TaskID       string
	ParentTaskID string
	SessionID    string
	SourceAgent  string
	TargetAgent  string
	Action       Action
	Parameters   map[string]any
	Status       Status
	Result       map[string]any
	Metadata     map[string]any
	CreatedAt    time.Time

	mu sync.RWMutex
}

// New creates a pending task with a freshly generated TaskID.
func New(sourceAgent, targetAgent string, action Action, parameters map[string]any) *Task {
	if parameters == nil {
		parameters = map[string]any{}
	}
	return &Task{
		TaskID:      uuid.New().String(),
		SourceAgent: sourceAgent,
		TargetAgent: targetAgent,
		Action:      action,
		Parameters:  parameters,
		Status:      StatusPending,
		Result:      map[string]any{},
		Metadata:    map[string]any{"timestamp": time.Now().UTC()},
		CreatedAt:   time.Now().UTC(),
	}
}

// Importance reads metadata.importance, defaulting to 0 when absent or of the
// wrong type.
func (t *Task) Importance() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if v, ok := t.Metadata["importance"]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int:
			return float64(n)
		}
	}
	return 0
}

// Depth reads metadata.depth, defaulting to 0.
func (t *Task) Depth() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if v, ok := t.Metadata["depth"]; ok {
		if n, ok := v.(int); ok {
			return n
		}
	}
	return 0
}

// GetStatus returns the current status (thread-safe snapshot).
func (t *Task) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// TransitionError reports an illegal status transition attempt.
type TransitionError struct {
	TaskID string
	From   Status
	To     Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: illegal transition %s -> %s", e.TaskID, e.From, e.To)
}

// SetStatus attempts a monotonic transition, returning *TransitionError if
// the move is illegal. Cancelling an already-terminal task is a documented
// no-op rather than an error (spec §8 idempotence laws).
func (t *Task) SetStatus(to Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Status.IsTerminal() && to == StatusCancelled {
		return nil
	}
	if !CanTransition(t.Status, to) {
		return &TransitionError{TaskID: t.TaskID, From: t.Status, To: to}
	}
	t.Status = to
	return nil
}

// SetResult merges entries into Result under the write lock.
func (t *Task) SetResult(entries map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range entries {
		t.Result[k] = v
	}
}

// Content is a convenience accessor for result["content"] as a string.
func (t *Task) Content() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if v, ok := t.Result["content"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Clone returns a shallow value copy safe to hand to memory tiers (the maps
// are copied one level deep so tier storage cannot mutate the live task's
// metadata out from under the owning agent).
func (t *Task) Clone() *Task {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cp := &Task{
		TaskID:       t.TaskID,
		ParentTaskID: t.ParentTaskID,
		SessionID:    t.SessionID,
		SourceAgent:  t.SourceAgent,
		TargetAgent:  t.TargetAgent,
		Action:       t.Action,
		Status:       t.Status,
		CreatedAt:    t.CreatedAt,
		Parameters:   copyMap(t.Parameters),
		Result:       copyMap(t.Result),
		Metadata:     copyMap(t.Metadata),
	}
	return cp
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// FailureResult builds the result map shape demanded by spec §7:
// result.error = { kind, message, retry_count }.
func FailureResult(kind, message string, retryCount int) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"kind":        kind,
			"message":     message,
			"retry_count": retryCount,
		},
	}
}
