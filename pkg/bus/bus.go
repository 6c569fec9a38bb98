package bus

import (
	"container/list"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fractalminds/agentcore/pkg/observability"
	"github.com/fractalminds/agentcore/pkg/wire"
)

// TimeoutError is returned by RequestReply when no correlated completion
// event arrives before the deadline.
type TimeoutError struct {
	TaskID string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("bus: request_reply timed out waiting for task %s", e.TaskID)
}

// TaskFailedError wraps a task that completed with status=failed while a
// caller was blocked in RequestReply.
type TaskFailedError struct {
	Task *wire.Task
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("bus: task %s failed: %v", e.Task.TaskID, e.Task.Result["error"])
}

// Config controls retention and backpressure.
type Config struct {
	HistoryCap    int // default 1000
	HighWaterMark int // default = HistoryCap, publishes beyond this may drop droppable events
}

func (c *Config) setDefaults() {
	if c.HistoryCap <= 0 {
		c.HistoryCap = 1000
	}
	if c.HighWaterMark <= 0 {
		c.HighWaterMark = c.HistoryCap
	}
}

type entry struct {
	event  wire.Event
	elem   *list.Element
	pinned int
}

// subscription is a registered handler plus the serial queue that makes
// delivery ordered per-selector (spec §4.2: "handlers run concurrently
// across distinct events but serially per selector").
type subscription struct {
	id       int
	selector Selector
	handler  Handler
	queue    chan wire.Event
	cancel   func()
}

// Bus is the queryable event substrate. It owns indices built by consuming
// its own Transport, so the same code path serves in-memory and external
// transports identically.
type Bus struct {
	cfg       Config
	transport Transport
	metrics   *observability.Metrics

	mu       sync.RWMutex
	order    *list.List // insertion order of event IDs, front = oldest
	byID     map[string]*entry
	byNode   map[string][]*entry
	byAction map[string][]*entry
	byTask   map[string][]*entry

	subMu sync.Mutex
	subs  map[int]*subscription
	nextSubID int

	waitersMu sync.Mutex
	waiters   map[string][]chan wire.Event // taskID -> channels awaiting a terminal event

	unsubscribeSelf func()
}

// New wires a Bus on top of the given transport. If transport is nil, an
// InMemoryTransport is created.
func New(cfg Config, transport Transport, metrics *observability.Metrics) (*Bus, error) {
	cfg.setDefaults()
	if transport == nil {
		transport = NewInMemoryTransport()
	}

	b := &Bus{
		cfg:       cfg,
		transport: transport,
		metrics:   metrics,
		order:     list.New(),
		byID:      make(map[string]*entry),
		byNode:    make(map[string][]*entry),
		byAction:  make(map[string][]*entry),
		byTask:    make(map[string][]*entry),
		subs:      make(map[int]*subscription),
		waiters:   make(map[string][]chan wire.Event),
	}

	unsub, err := transport.Subscribe(context.Background(), b.ingest)
	if err != nil {
		return nil, fmt.Errorf("bus: subscribing indexer to transport: %w", err)
	}
	b.unsubscribeSelf = unsub
	return b, nil
}

// Close tears down the bus's internal subscription and every registered
// handler's delivery goroutine.
func (b *Bus) Close() error {
	b.unsubscribeSelf()
	b.subMu.Lock()
	for _, s := range b.subs {
		s.cancel()
	}
	b.subs = make(map[int]*subscription)
	b.subMu.Unlock()
	return b.transport.Close()
}

// Publish appends the event to the log and routes it to matching
// subscribers. Publishes are non-blocking for the producer up to the
// configured high-water mark; beyond it, droppable event types (text
// deltas) may be shed rather than block the producer.
func (b *Bus) Publish(ctx context.Context, e wire.Event) error {
	b.mu.RLock()
	size := b.order.Len()
	b.mu.RUnlock()

	if size >= b.cfg.HighWaterMark && e.EventType.Droppable() {
		if b.metrics != nil {
			b.metrics.BusDropped.WithLabelValues(string(e.EventType)).Inc()
		}
		return nil
	}

	if err := b.transport.Publish(ctx, e); err != nil {
		return fmt.Errorf("bus: publish: %w", err)
	}
	if b.metrics != nil {
		b.metrics.BusPublished.WithLabelValues(string(e.EventType)).Inc()
	}
	return nil
}

// ingest is the bus's own subscription to the transport: it builds indices
// and fans out to selector-matched handlers. It runs on the transport's
// delivery goroutine, so it must not block indefinitely.
func (b *Bus) ingest(e wire.Event) {
	b.index(e)
	b.notifyWaiters(e)
	b.dispatch(e)
}

func (b *Bus) index(e wire.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elem := b.order.PushBack(e.EventID)
	en := &entry{event: e, elem: elem}
	b.byID[e.EventID] = en
	if e.SourceNode != "" {
		b.byNode[e.SourceNode] = append(b.byNode[e.SourceNode], en)
	}
	if e.TargetNode != "" {
		b.byNode[e.TargetNode] = append(b.byNode[e.TargetNode], en)
	}
	if act, ok := e.Payload["action"].(string); ok && act != "" {
		b.byAction[act] = append(b.byAction[act], en)
	}
	if e.TaskID != "" {
		b.byTask[e.TaskID] = append(b.byTask[e.TaskID], en)
	}

	b.evictLocked()
	if b.metrics != nil {
		b.metrics.BusRetained.Set(float64(b.order.Len()))
	}
}

// evictLocked drops the oldest unpinned events until the history is back at
// or under cap. An event pinned by an outstanding RequestReply waiter is
// skipped — retention may transiently exceed cap rather than violate the
// "never evict a pinned event" invariant (spec §4.2, §8 property 12).
func (b *Bus) evictLocked() {
	for b.order.Len() > b.cfg.HistoryCap {
		victim := b.firstUnpinnedLocked()
		if victim == nil {
			return
		}
		b.removeLocked(victim)
	}
}

func (b *Bus) firstUnpinnedLocked() *entry {
	for e := b.order.Front(); e != nil; e = e.Next() {
		id := e.Value.(string)
		en := b.byID[id]
		if en != nil && en.pinned == 0 {
			return en
		}
	}
	return nil
}

func (b *Bus) removeLocked(en *entry) {
	b.order.Remove(en.elem)
	delete(b.byID, en.event.EventID)
	b.byNode[en.event.SourceNode] = removeEntry(b.byNode[en.event.SourceNode], en)
	if en.event.TargetNode != "" {
		b.byNode[en.event.TargetNode] = removeEntry(b.byNode[en.event.TargetNode], en)
	}
	if act, ok := en.event.Payload["action"].(string); ok {
		b.byAction[act] = removeEntry(b.byAction[act], en)
	}
	b.byTask[en.event.TaskID] = removeEntry(b.byTask[en.event.TaskID], en)
}

func removeEntry(s []*entry, target *entry) []*entry {
	for i, e := range s {
		if e == target {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// Subscribe registers a handler for events matching selector. Delivery to a
// single subscription is strictly serial; distinct subscriptions run
// concurrently with each other.
func (b *Bus) Subscribe(selector Selector, handler Handler) (unsubscribe func()) {
	b.subMu.Lock()
	id := b.nextSubID
	b.nextSubID++

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		id:       id,
		selector: selector,
		handler:  handler,
		queue:    make(chan wire.Event, 256),
		cancel:   cancel,
	}
	b.subs[id] = sub
	b.subMu.Unlock()

	go func() {
		for {
			select {
			case e := <-sub.queue:
				if err := handler(ctx, e); err != nil {
					b.publishHandlerError(id, e, err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		b.subMu.Lock()
		delete(b.subs, id)
		b.subMu.Unlock()
		cancel()
	}
}

func (b *Bus) dispatch(e wire.Event) {
	b.subMu.Lock()
	matched := make([]*subscription, 0)
	for _, s := range b.subs {
		if s.selector.matches(e) {
			matched = append(matched, s)
		}
	}
	b.subMu.Unlock()

	for _, s := range matched {
		select {
		case s.queue <- e:
		default:
			// Subscriber queue saturated: drop for this slow consumer only,
			// never block the producer or other subscribers.
		}
	}
}

func (b *Bus) publishHandlerError(subID int, e wire.Event, handlerErr error) {
	errEvent := wire.NewEvent(wire.EventNodeError, e.SourceNode, e.TaskID, e.TraceID, e.SpanID, map[string]any{
		"subscriber_error": handlerErr.Error(),
		"subscription_id":  subID,
		"original_event":   e.EventID,
	})
	_ = b.Publish(context.Background(), errEvent)
}

// QueryByNode returns up to limit events, most-recent-first, for a node.
func (b *Bus) QueryByNode(nodeID string, limit int) []wire.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return mostRecent(b.byNode[nodeID], limit)
}

// QueryByAction returns up to limit events, most-recent-first, for an action.
func (b *Bus) QueryByAction(action string, limit int) []wire.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return mostRecent(b.byAction[action], limit)
}

// QueryByTask returns every event for a task_id, oldest-first.
func (b *Bus) QueryByTask(taskID string) []wire.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entries := b.byTask[taskID]
	out := make([]wire.Event, len(entries))
	for i, en := range entries {
		out[i] = en.event
	}
	return out
}

// QueryRecent returns up to limit of the most recently published events.
func (b *Bus) QueryRecent(limit int) []wire.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	all := make([]*entry, 0, b.order.Len())
	for e := b.order.Front(); e != nil; e = e.Next() {
		all = append(all, b.byID[e.Value.(string)])
	}
	return mostRecent(all, limit)
}

// SearchRelevant does a bounded keyword match over event payload text,
// newest-first. Degrades gracefully to simple substring matching — no
// embedding provider is assumed at the bus layer.
func (b *Bus) SearchRelevant(text string, limit int) []wire.Event {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	type scored struct {
		en    *entry
		score int
	}
	var matches []scored
	for e := b.order.Back(); e != nil; e = e.Prev() {
		en := b.byID[e.Value.(string)]
		if en == nil {
			continue
		}
		score := payloadScore(en.event, needle)
		if score > 0 {
			matches = append(matches, scored{en, score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]wire.Event, len(matches))
	for i, m := range matches {
		out[i] = m.en.event
	}
	return out
}

func payloadScore(e wire.Event, needle string) int {
	score := 0
	for _, v := range e.Payload {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(s), needle) {
			score++
		}
	}
	return score
}

func mostRecent(entries []*entry, limit int) []wire.Event {
	n := len(entries)
	start := 0
	if limit > 0 && n > limit {
		start = n - limit
	}
	slice := entries[start:]
	out := make([]wire.Event, len(slice))
	for i := 0; i < len(slice); i++ {
		out[len(slice)-1-i] = slice[i].event
	}
	return out
}

// RequestReply publishes a task-envelope event addressed to targetNode and
// blocks until a correlated terminal event (task.terminal) for the same
// task_id arrives, or timeout elapses. Events of the task already retained
// when it is called are pinned against eviction until it returns; events
// indexed after the call, including the envelope it publishes and the
// terminal reply, are not pinned.
func (b *Bus) RequestReply(ctx context.Context, targetNode string, task *wire.Task, timeout time.Duration) (*wire.Task, error) {
	ch := make(chan wire.Event, 1)
	b.waitersMu.Lock()
	b.waiters[task.TaskID] = append(b.waiters[task.TaskID], ch)
	b.waitersMu.Unlock()
	b.pin(task.TaskID)
	defer func() {
		b.unpin(task.TaskID)
		b.waitersMu.Lock()
		b.waiters[task.TaskID] = removeChan(b.waiters[task.TaskID], ch)
		b.waitersMu.Unlock()
	}()

	ev := wire.NewEvent(wire.EventTaskDelegate, task.SourceAgent, task.TaskID, "", "", map[string]any{
		"action": string(task.Action),
		"task":   task,
	}).WithTarget(targetNode)
	if err := b.Publish(ctx, ev); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-ch:
		resultTask, _ := result.Payload["task"].(*wire.Task)
		if resultTask == nil {
			resultTask = task
		}
		if resultTask.GetStatus() == wire.StatusFailed {
			return resultTask, &TaskFailedError{Task: resultTask}
		}
		return resultTask, nil
	case <-timer.C:
		return nil, &TimeoutError{TaskID: task.TaskID}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *Bus) notifyWaiters(e wire.Event) {
	if e.EventType != wire.EventTaskTerminal {
		return
	}
	b.waitersMu.Lock()
	defer b.waitersMu.Unlock()
	for _, ch := range b.waiters[e.TaskID] {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *Bus) pin(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, en := range b.byTask[taskID] {
		en.pinned++
	}
}

func (b *Bus) unpin(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, en := range b.byTask[taskID] {
		if en.pinned > 0 {
			en.pinned--
		}
	}
}

func removeChan(s []chan wire.Event, target chan wire.Event) []chan wire.Event {
	for i, c := range s {
		if c == target {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
