// Package scope implements C4, scoped memory: a per-node key-value store
// with four access policies (local, shared, inherited, global) and
// parent-chain read-through for inherited entries.
//
// Grounded on the teacher's agent.State interface (pkg/agent/context.go):
// the same Get/Set/Delete/All(iter.Seq2) shape, generalized from a flat
// key space with string prefixes ("temp:", "app:", "user:") to entries
// that each carry an explicit Scope field plus version/author metadata.
package scope

import (
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"
)

// Scope is one of the four fixed access policies (spec §4.4).
type Scope string

const (
	Local     Scope = "local"
	Shared    Scope = "shared"
	Inherited Scope = "inherited"
	Global    Scope = "global"
)

// defaultSearchOrder is used when read() is called without an explicit
// scope list (spec §4.4: "local -> shared -> inherited -> global").
var defaultSearchOrder = []Scope{Local, Shared, Inherited, Global}

// Entry is one scoped memory record (spec §3).
type Entry struct {
	ID            string
	Content       any
	Scope         Scope
	Version       int
	CreatedBy     string
	UpdatedBy     string
	ParentVersion int // set on inherited entries; 0 if not applicable
	Metadata      map[string]any
	updatedAt     time.Time
}

// ReadOnlyScopeError is returned when a caller attempts to write an
// inherited entry (spec §4.4 invariant: "no silent upgrade").
type ReadOnlyScopeError struct {
	ID string
}

func (e *ReadOnlyScopeError) Error() string {
	return fmt.Sprintf("scope: entry %q is inherited and read-only", e.ID)
}

// Memory is one node's scoped memory store. A child node's Memory is
// constructed with the parent set, so inherited reads can walk the chain.
type Memory struct {
	nodeID string
	parent *Memory

	mu      sync.RWMutex
	entries map[Scope]map[string]*Entry
}

// New constructs a root (parentless) scoped memory for nodeID.
func New(nodeID string) *Memory {
	return &Memory{
		nodeID:  nodeID,
		entries: newEntryMap(),
	}
}

// NewChild constructs a child scoped memory whose inherited reads fall
// through to parent's shared/global entries (spec §4.4 read rule).
func NewChild(nodeID string, parent *Memory) *Memory {
	return &Memory{
		nodeID:  nodeID,
		parent:  parent,
		entries: newEntryMap(),
	}
}

func newEntryMap() map[Scope]map[string]*Entry {
	return map[Scope]map[string]*Entry{
		Local:     {},
		Shared:    {},
		Inherited: {},
		Global:    {},
	}
}

// Write inserts or updates an entry (spec §4.4 write rule). Writing to
// Inherited always fails with *ReadOnlyScopeError.
func (m *Memory) Write(id string, content any, scope Scope, writer string) error {
	if scope == Inherited {
		return &ReadOnlyScopeError{ID: id}
	}
	if scope == "" {
		scope = Local
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.entries[scope]
	if existing, ok := bucket[id]; ok {
		existing.Content = content
		existing.Version++
		existing.UpdatedBy = writer
		existing.updatedAt = time.Now().UTC()
		return nil
	}

	bucket[id] = &Entry{
		ID:        id,
		Content:   content,
		Scope:     scope,
		Version:   1,
		CreatedBy: writer,
		UpdatedBy: writer,
		updatedAt: time.Now().UTC(),
	}
	return nil
}

// Read searches searchScopes in order (default: local, shared, inherited,
// global) and returns the first hit. An inherited miss recursively consults
// the parent's shared/global entries and caches a read-only projection
// keyed by the source version (spec §4.4).
func (m *Memory) Read(id string, searchScopes ...Scope) (*Entry, bool) {
	if len(searchScopes) == 0 {
		searchScopes = defaultSearchOrder
	}

	for _, s := range searchScopes {
		if s == Inherited {
			if e, ok := m.readInherited(id); ok {
				return e, true
			}
			continue
		}
		m.mu.RLock()
		e, ok := m.entries[s][id]
		m.mu.RUnlock()
		if ok {
			return e, true
		}
	}
	return nil, false
}

func (m *Memory) readInherited(id string) (*Entry, bool) {
	m.mu.RLock()
	if e, ok := m.entries[Inherited][id]; ok {
		m.mu.RUnlock()
		return e, true
	}
	m.mu.RUnlock()

	if m.parent == nil {
		return nil, false
	}

	// Consult the parent's shared, then global, entries — never the
	// parent's local or inherited entries (spec §4.4: projections of an
	// ancestor's shared/global entry only).
	var source *Entry
	if e, ok := m.parent.Read(id, Shared); ok {
		source = e
	} else if e, ok := m.parent.Read(id, Global); ok {
		source = e
	} else {
		return nil, false
	}

	projection := &Entry{
		ID:            id,
		Content:       source.Content,
		Scope:         Inherited,
		Version:       source.Version,
		CreatedBy:     source.CreatedBy,
		UpdatedBy:     source.UpdatedBy,
		ParentVersion: source.Version,
		updatedAt:     time.Now().UTC(),
	}

	m.mu.Lock()
	m.entries[Inherited][id] = projection
	m.mu.Unlock()

	return projection, true
}

// ListByScope returns every entry in scope, sorted by id for deterministic
// iteration (spec §4.4 list_by_scope).
func (m *Memory) ListByScope(s Scope) []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket := m.entries[s]
	out := make([]*Entry, 0, len(bucket))
	for _, e := range bucket {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All iterates every entry across every scope, grounded on the teacher's
// agent.State.All() iter.Seq2[string, any] shape.
func (m *Memory) All() iter.Seq2[string, *Entry] {
	return func(yield func(string, *Entry) bool) {
		m.mu.RLock()
		snapshot := make([]*Entry, 0)
		for _, bucket := range m.entries {
			for _, e := range bucket {
				snapshot = append(snapshot, e)
			}
		}
		m.mu.RUnlock()

		sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
		for _, e := range snapshot {
			if !yield(e.ID, e) {
				return
			}
		}
	}
}

// PropagatableSnapshot returns every Shared and Global entry, the subset
// that propagates both up (to a parent, at delegation termination) and down
// (to a child, as inherited seeds) per the spec §4.4 propagation table.
func (m *Memory) PropagatableSnapshot() []*Entry {
	shared := m.ListByScope(Shared)
	global := m.ListByScope(Global)
	out := make([]*Entry, 0, len(shared)+len(global))
	out = append(out, shared...)
	out = append(out, global...)
	return out
}

// SeedChildProjections copies Shared/Global entries from m into child's
// Inherited scope, restricted to ids matching a context_hints key and capped
// at the topK most recently updated matches (spec §4.10 step 4: "seed
// INHERITED projections from parent SHARED/GLOBAL entries relevant to
// context_hints ... match hint keys against entry ids, take top-k by
// recency").
func (m *Memory) SeedChildProjections(child *Memory, hints map[string]any, topK int) {
	if len(hints) == 0 {
		return
	}

	var matched []*Entry
	for _, e := range m.PropagatableSnapshot() {
		if _, ok := hints[e.ID]; ok {
			matched = append(matched, e)
		}
	}

	m.mu.RLock()
	sort.Slice(matched, func(i, j int) bool { return matched[i].updatedAt.After(matched[j].updatedAt) })
	m.mu.RUnlock()

	if topK > 0 && len(matched) > topK {
		matched = matched[:topK]
	}

	child.mu.Lock()
	defer child.mu.Unlock()
	for _, e := range matched {
		child.entries[Inherited][e.ID] = &Entry{
			ID: e.ID, Content: e.Content, Scope: Inherited, Version: e.Version,
			CreatedBy: e.CreatedBy, UpdatedBy: e.CreatedBy, ParentVersion: e.Version,
			updatedAt: time.Now().UTC(),
		}
	}
}

// MergeFromChild folds a terminated child's shared/global entries back into
// this (parent) memory, per spec §4.10 step 7: "merge child SHARED entries
// back into the parent's SHARED scope (version-aware: parent's existing
// entries with a higher version win; else child's version is adopted)".
// Global entries merge too, since the propagation table marks global as
// propagating up as well as down.
func (m *Memory) MergeFromChild(child *Memory, writer string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range child.PropagatableSnapshot() {
		bucket := m.entries[e.Scope]
		if existing, ok := bucket[e.ID]; ok && existing.Version > e.Version {
			continue
		}
		bucket[e.ID] = &Entry{
			ID: e.ID, Content: e.Content, Scope: e.Scope,
			Version: e.Version, CreatedBy: e.CreatedBy, UpdatedBy: writer,
			updatedAt: time.Now().UTC(),
		}
	}
}
