// Package memory implements C3, the hierarchical memory tier store: a
// four-level hierarchy (L1 recent, L2 important, L3 session, L4 semantic)
// that every completed or evicted Task flows through, with promotion driven
// by importance and age.
//
// The package follows the teacher's index/service split (pkg/memory's
// IndexService + VectorIndexService pair): each tier is a narrow, single-
// purpose store with its own mutex, and Store composes them the way the
// teacher's MemoryService composes WorkingMemoryStrategy and
// LongTermMemoryStrategy — a thin orchestrator over swappable strategies
// rather than one large stateful object.
package memory

import (
	"context"
)

// EmbeddingProvider mirrors the teacher's embedder.Embedder contract
// (pkg/embedder). It is declared locally rather than imported because the
// spec treats embedding providers as a pluggable, externally-supplied
// interface (consumed, never implemented, by the core) — L4 degrades to
// keyword search when one isn't configured.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// VectorSearcher mirrors the teacher's vector.Provider contract
// (pkg/vector): a minimal upsert/search surface any backend (qdrant,
// pinecone, chromem) can satisfy. Declared locally for the same reason as
// EmbeddingProvider.
type VectorSearcher interface {
	Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]any) error
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]VectorMatch, error)
}

// VectorMatch is one hit from a VectorSearcher.
type VectorMatch struct {
	ID       string
	Score    float32
	Metadata map[string]any
}
