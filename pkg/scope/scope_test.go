package scope

import "testing"

func TestMemory_WriteInheritedRejected(t *testing.T) {
	m := New("node-a")
	err := m.Write("x", "1", Inherited, "writer")
	if _, ok := err.(*ReadOnlyScopeError); !ok {
		t.Fatalf("Write(inherited) error = %v, want *ReadOnlyScopeError", err)
	}
}

func TestMemory_WriteVersionsMonotonic(t *testing.T) {
	m := New("node-a")
	if err := m.Write("goal", "v1", Local, "writer"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := m.Write("goal", "v2", Local, "writer2"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	e, ok := m.Read("goal", Local)
	if !ok {
		t.Fatal("Read() missing entry")
	}
	if e.Version != 2 {
		t.Errorf("Version = %d, want 2 (monotonic increment)", e.Version)
	}
	if e.UpdatedBy != "writer2" {
		t.Errorf("UpdatedBy = %q, want writer2", e.UpdatedBy)
	}
}

// TestMemory_ChildInheritsParentShared mirrors spec scenario S6: child's
// read("goal", [inherited]) sees the parent's shared entry; child writes
// shared "finding"; after the child returns, the parent's read("finding",
// [shared]) sees it.
func TestMemory_ChildInheritsParentShared(t *testing.T) {
	parent := New("parent")
	if err := parent.Write("goal", "build index", Shared, "parent"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	child := NewChild("child", parent)
	e, ok := child.Read("goal", Inherited)
	if !ok {
		t.Fatal("child Read(goal, inherited) missing")
	}
	if e.Content != "build index" || e.Scope != Inherited {
		t.Errorf("child read = %+v, want content=build index scope=inherited", e)
	}

	if err := child.Write("finding", "5 modules", Shared, "child"); err != nil {
		t.Fatalf("child Write() error = %v", err)
	}

	parent.MergeFromChild(child, "child")
	pe, ok := parent.Read("finding", Shared)
	if !ok {
		t.Fatal("parent Read(finding, shared) missing after merge")
	}
	if pe.Content != "5 modules" {
		t.Errorf("parent finding = %v, want '5 modules'", pe.Content)
	}
}

func TestMemory_ParentEntriesNeverMutatedByChild(t *testing.T) {
	parent := New("parent")
	_ = parent.Write("goal", "original", Shared, "parent")

	child := NewChild("child", parent)
	_, _ = child.Read("goal", Inherited)

	// Mutating the child's cached inherited projection must never affect
	// the parent's live entry.
	child.mu.Lock()
	child.entries[Inherited]["goal"].Content = "tampered"
	child.mu.Unlock()

	pe, _ := parent.Read("goal", Shared)
	if pe.Content != "original" {
		t.Errorf("parent entry = %v, want unaffected by child projection mutation", pe.Content)
	}
}

func TestMemory_ListByScopeSortedDeterministic(t *testing.T) {
	m := New("node-a")
	_ = m.Write("zeta", 1, Local, "w")
	_ = m.Write("alpha", 2, Local, "w")

	entries := m.ListByScope(Local)
	if len(entries) != 2 || entries[0].ID != "alpha" || entries[1].ID != "zeta" {
		t.Errorf("ListByScope() = %v, want sorted [alpha zeta]", entries)
	}
}
