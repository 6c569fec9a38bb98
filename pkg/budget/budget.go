// Package budget implements the shared, monotonically decreasing resource
// counter propagated through a delegation tree (spec §2 Glossary "Budget";
// §4.10, §5 "shared Budget is an atomic counter decremented by each
// charge"). Grounded on the teacher's atomic-counter idiom used throughout
// pkg/rag/metrics.go and pkg/context/progress_tracker.go (sync/atomic
// counters guarding a shared resource without a mutex).
package budget

import (
	"fmt"
	"sync/atomic"
)

// ExceededError is raised when a charge would take the budget below zero
// (spec §4.10 step 2 "If the shared Budget is exhausted, fail with
// BudgetExceeded").
type ExceededError struct {
	Requested int64
	Remaining int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("budget: requested %d tokens, only %d remaining", e.Requested, e.Remaining)
}

// Budget is a shared token/iteration allowance. A parent Agent and every
// descendant produced via Delegation (C10) share the same *Budget instance,
// so charges at any depth draw from one pool (spec §5 concurrency
// boundary: "The shared Budget is an atomic counter decremented by each
// charge").
type Budget struct {
	remaining atomic.Int64
}

// New constructs a Budget with the given initial token/iteration allowance.
func New(initial int64) *Budget {
	b := &Budget{}
	b.remaining.Store(initial)
	return b
}

// Charge atomically decrements the budget by n. It fails — without
// mutating the counter — if n exceeds what remains.
func (b *Budget) Charge(n int64) error {
	if n <= 0 {
		return nil
	}
	for {
		cur := b.remaining.Load()
		if n > cur {
			return &ExceededError{Requested: n, Remaining: cur}
		}
		if b.remaining.CompareAndSwap(cur, cur-n) {
			return nil
		}
	}
}

// Remaining reports the current allowance.
func (b *Budget) Remaining() int64 {
	return b.remaining.Load()
}

// Exhausted reports whether no further charge can succeed.
func (b *Budget) Exhausted() bool {
	return b.remaining.Load() <= 0
}
