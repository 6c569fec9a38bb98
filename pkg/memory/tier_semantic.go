package memory

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"
)

// SemanticEntry is one compressed fact held in L4: text plus an optional
// embedding and free-form metadata (spec §4.3: "entries are (text, optional
// embedding, metadata)").
type SemanticEntry struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]any
	CreatedAt time.Time
}

// SemanticTier (L4) is a compressed, logically unbounded but physically
// capped store (nominal target ~150 entries). Retrieval is cosine similarity
// when an EmbeddingProvider is configured; otherwise it degrades to keyword
// substring matching, grounded on the teacher's index_vector.go +
// index_keyword.go pair — the same dual-index design, generalized from
// session events to arbitrary compressed facts.
//
// The exact L3->L4 summarization/clustering rule is left open (spec §9 open
// question): entries arrive pre-summarized from Store.onL3Evict, and
// this tier's only contract is admit/evict/search.
type SemanticTier struct {
	mu       sync.Mutex
	capacity int
	order    []*SemanticEntry // oldest first
	byID     map[string]*SemanticEntry

	embedder EmbeddingProvider // optional
	searcher VectorSearcher    // optional; when set, Search delegates to it
	collection string
}

// NewSemanticTier constructs L4. embedder/searcher may both be nil, in which
// case Search falls back to keyword matching over resident entries.
func NewSemanticTier(capacity int, embedder EmbeddingProvider, searcher VectorSearcher, collection string) *SemanticTier {
	if capacity <= 0 {
		capacity = 150
	}
	if collection == "" {
		collection = "agentcore_semantic_memory"
	}
	return &SemanticTier{
		capacity:   capacity,
		byID:       make(map[string]*SemanticEntry),
		embedder:   embedder,
		searcher:   searcher,
		collection: collection,
	}
}

// Add admits a compressed fact, embedding it if a provider is configured and
// evicting the oldest entry once at capacity.
func (t *SemanticTier) Add(ctx context.Context, id, text string, metadata map[string]any) {
	entry := &SemanticEntry{ID: id, Text: text, Metadata: metadata, CreatedAt: time.Now().UTC()}

	if t.embedder != nil {
		if vec, err := t.embedder.Embed(ctx, text); err == nil {
			entry.Embedding = vec
			if t.searcher != nil {
				_ = t.searcher.Upsert(ctx, t.collection, id, vec, metadata)
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.order = append(t.order, entry)
	t.byID[id] = entry
	for len(t.order) > t.capacity {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.byID, oldest.ID)
	}
}

// Search performs semantic search (if an embedder is configured) or keyword
// fallback, returning up to topK entries. It fails soft: an embedding error
// degrades to keyword search rather than propagating (spec §4.3: "fails
// soft (returns empty) if no embedding provider is configured").
func (t *SemanticTier) Search(ctx context.Context, query string, topK int) []*SemanticEntry {
	if query == "" {
		return nil
	}

	if t.embedder != nil {
		if vec, err := t.embedder.Embed(ctx, query); err == nil {
			if t.searcher != nil {
				return t.searchExternal(ctx, vec, topK)
			}
			return t.searchLocalCosine(vec, topK)
		}
	}
	return t.searchKeyword(query, topK)
}

func (t *SemanticTier) searchExternal(ctx context.Context, vec []float32, topK int) []*SemanticEntry {
	matches, err := t.searcher.Search(ctx, t.collection, vec, topK)
	if err != nil {
		return t.searchLocalCosine(vec, topK)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*SemanticEntry, 0, len(matches))
	for _, m := range matches {
		if e, ok := t.byID[m.ID]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (t *SemanticTier) searchLocalCosine(query []float32, topK int) []*SemanticEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	scoredEntries := make([]scoredEntry, 0, len(t.order))
	for _, e := range t.order {
		if e.Embedding == nil {
			continue
		}
		scoredEntries = append(scoredEntries, scoredEntry{e, cosineSimilarity(query, e.Embedding)})
	}
	sortScoredDesc(scoredEntries)
	if topK > 0 && len(scoredEntries) > topK {
		scoredEntries = scoredEntries[:topK]
	}
	out := make([]*SemanticEntry, len(scoredEntries))
	for i, s := range scoredEntries {
		out[i] = s.e
	}
	return out
}

func (t *SemanticTier) searchKeyword(query string, topK int) []*SemanticEntry {
	needle := strings.ToLower(query)
	t.mu.Lock()
	defer t.mu.Unlock()

	var matched []*SemanticEntry
	for i := len(t.order) - 1; i >= 0; i-- {
		e := t.order[i]
		if strings.Contains(strings.ToLower(e.Text), needle) {
			matched = append(matched, e)
		}
		if topK > 0 && len(matched) >= topK {
			break
		}
	}
	return matched
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type scoredEntry struct {
	e     *SemanticEntry
	score float64
}

func sortScoredDesc(items []scoredEntry) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j-1].score < items[j].score; j-- {
			items[j-1], items[j] = items[j], items[j-1]
		}
	}
}

// Len reports current occupancy.
func (t *SemanticTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}
