package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fractalminds/agentcore/pkg/observability"
	"github.com/fractalminds/agentcore/pkg/wire"
)

// Config controls tier capacities and promotion thresholds (spec §8 config
// surface: max_l1_size/max_l2_size/max_l3_size, importance_promote_threshold).
type Config struct {
	MaxL1Size int
	MaxL2Size int
	MaxL3Size int
	MaxL4Size int

	// PromoteThreshold gates L1->L2 promotion (spec default 0.6).
	PromoteThreshold float64
	// PromoteThresholdL2 gates L2->L3 promotion; spec calls this "a higher
	// threshold" without pinning an exact value, so Store defaults it above
	// PromoteThreshold.
	PromoteThresholdL2 float64

	Collection string

	Embedder EmbeddingProvider
	Searcher VectorSearcher
}

// SetDefaults fills in the spec's documented defaults, following the
// teacher's LongTermConfig.SetDefaults convention (pkg/memory/types.go).
func (c *Config) SetDefaults() {
	if c.MaxL1Size <= 0 {
		c.MaxL1Size = 50
	}
	if c.MaxL2Size <= 0 {
		c.MaxL2Size = 100
	}
	if c.MaxL3Size <= 0 {
		c.MaxL3Size = 500
	}
	if c.MaxL4Size <= 0 {
		c.MaxL4Size = 150
	}
	if c.PromoteThreshold <= 0 {
		c.PromoteThreshold = 0.6
	}
	if c.PromoteThresholdL2 <= 0 {
		c.PromoteThresholdL2 = c.PromoteThreshold + 0.2
	}
	if c.Collection == "" {
		c.Collection = "agentcore_semantic_memory"
	}
}

// Store is C3, the hierarchical memory tier store. It owns L1-L4 and wires
// each tier's eviction callback to the next tier's Offer/Add, implementing
// the promotion lifecycle from spec §3/§4.3.
//
// Thread-safety: each tier guards its own state; Store itself holds no lock
// around cross-tier calls, matching the teacher's MemoryService design
// (pkg/memory/memory.go) where the orchestrator composes already-safe
// strategies rather than re-locking around them.
type Store struct {
	cfg Config

	l1 *RecentTier
	l2 *ImportantTier
	l3 *SessionTier
	l4 *SemanticTier

	metrics *observability.Metrics

	mu        sync.Mutex
	asyncWork sync.WaitGroup
}

// NewStore wires the four tiers, each tier's overflow feeding the next
// per the promotion thresholds in cfg.
func NewStore(cfg Config, metrics *observability.Metrics) *Store {
	cfg.SetDefaults()
	s := &Store{cfg: cfg, metrics: metrics}

	s.l4 = NewSemanticTier(cfg.MaxL4Size, cfg.Embedder, cfg.Searcher, cfg.Collection)
	s.l3 = NewSessionTier(cfg.MaxL3Size, s.onL3Evict)
	s.l2 = NewImportantTier(cfg.MaxL2Size, s.onL2Evict)
	s.l1 = NewRecentTier(cfg.MaxL1Size, s.onL1Evict)

	return s
}

// AddTask inserts task into L1 (spec §4.3: "add_task(task): inserts into
// L1"). Overflow promotion happens synchronously via the eviction chain.
func (s *Store) AddTask(task *wire.Task) {
	s.l1.Add(task)
	s.recordOccupancy()
}

// onL1Evict is the L1 eviction callback: tasks above PromoteThreshold move
// to L2, everything else is dropped (spec §3: "an L1 eviction with
// importance>tau_promote promotes the evicted task to L2").
func (s *Store) onL1Evict(evicted *wire.Task) {
	if evicted.Importance() > s.cfg.PromoteThreshold {
		s.l2.Offer(evicted)
		s.recordPromotion("l1", "l2")
	}
	s.recordOccupancy()
}

// onL2Evict promotes to L3 above the higher threshold.
func (s *Store) onL2Evict(evicted *wire.Task) {
	if evicted.Importance() > s.cfg.PromoteThresholdL2 {
		s.l3.Add(evicted)
		s.recordPromotion("l2", "l3")
	}
	s.recordOccupancy()
}

// onL3Evict promotes to L4 via summarization. The summarization rule itself
// is implementation-defined (spec §9 open question); Store's policy is the
// simplest one that satisfies the contract ("L4 size target is
// approximately maintained and retrieval remains semantically useful"): the
// task's content becomes the compressed fact text.
func (s *Store) onL3Evict(evicted *wire.Task) {
	text := summarizeForSemanticTier(evicted)
	if text == "" {
		s.recordOccupancy()
		return
	}
	s.l4.Add(context.Background(), evicted.TaskID, text, map[string]any{
		"session_id": evicted.SessionID,
		"source":     "l3_promotion",
	})
	s.recordPromotion("l3", "l4")
	s.recordOccupancy()
}

func summarizeForSemanticTier(task *wire.Task) string {
	if content := task.Content(); content != "" {
		return fmt.Sprintf("[%s] %s", task.TargetAgent, content)
	}
	return ""
}

// PromoteTasksAsync runs an explicit sweep (spec §4.3 promote_tasks_async)
// in the background, useful for callers that want L3->L4 compaction driven
// by a timer rather than purely by L3 overflow. Sweeping currently re-offers
// L3's oldest-per-session entries above the L2 promotion bar so long-idle
// sessions still compact even without fresh L1/L2 churn.
func (s *Store) PromoteTasksAsync(sessionIDs []string) {
	s.asyncWork.Add(1)
	go func() {
		defer s.asyncWork.Done()
		for _, sid := range sessionIDs {
			tasks := s.l3.BySession(sid)
			if len(tasks) == 0 {
				continue
			}
			oldest := tasks[0]
			if oldest.Importance() > s.cfg.PromoteThresholdL2 {
				s.onL3Evict(oldest)
			}
		}
	}()
}

// Wait blocks until all in-flight async promotions complete. Intended for
// tests and graceful shutdown.
func (s *Store) Wait() {
	s.asyncWork.Wait()
}

// SemanticSearch queries L4 (spec §4.3 semantic_search). It never errors:
// an unconfigured or failing embedder degrades to keyword search.
func (s *Store) SemanticSearch(ctx context.Context, query string, topK int) []*SemanticEntry {
	return s.l4.Search(ctx, query, topK)
}

// RecentTasks returns up to limit of L1's most recent tasks.
func (s *Store) RecentTasks(limit int) []*wire.Task {
	return s.l1.Recent(limit)
}

// ImportantTasks returns L2's top-k by importance.
func (s *Store) ImportantTasks(k int) []*wire.Task {
	return s.l2.TopK(k)
}

// SessionTasks returns every L3 task for a session.
func (s *Store) SessionTasks(sessionID string) []*wire.Task {
	return s.l3.BySession(sessionID)
}

// Lookup searches L1 then L2 then L3 for a task by id, the order a fresh
// task is most likely to still be found in.
func (s *Store) Lookup(taskID string) (*wire.Task, bool) {
	if t, ok := s.l1.Get(taskID); ok {
		return t, true
	}
	if t, ok := s.l2.Get(taskID); ok {
		return t, true
	}
	if t, ok := s.l3.Get(taskID); ok {
		return t, true
	}
	return nil, false
}

func (s *Store) recordOccupancy() {
	if s.metrics == nil {
		return
	}
	s.metrics.TierOccupancy.WithLabelValues("l1").Set(float64(s.l1.Len()))
	s.metrics.TierOccupancy.WithLabelValues("l2").Set(float64(s.l2.Len()))
	s.metrics.TierOccupancy.WithLabelValues("l3").Set(float64(s.l3.Len()))
	s.metrics.TierOccupancy.WithLabelValues("l4").Set(float64(s.l4.Len()))
}

func (s *Store) recordPromotion(from, to string) {
	if s.metrics == nil {
		slog.Debug("memory tier promotion", "from", from, "to", to)
		return
	}
	s.metrics.TierPromotions.WithLabelValues(from, to).Inc()
}
