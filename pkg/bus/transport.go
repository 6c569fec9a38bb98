// Package bus implements C2, the event bus: an append-only, queryable event
// substrate over which all agents publish observations, and the transport
// for delegated tasks.
//
// The bus is split into two layers, mirroring the teacher's layered search
// engine (pkg/context/search.go's ParallelSearch + pluggable backends): a
// Transport that moves raw events (in-process channels, or an external
// coordination backend for distributed deployments) and the Bus itself,
// which consumes its own transport to maintain the indices queries need.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/fractalminds/agentcore/pkg/wire"
)

// Selector filters events a subscriber cares about. Zero-value fields are
// wildcards.
type Selector struct {
	TargetNode string
	EventType  wire.EventType
	Action     string
}

func (s Selector) matches(e wire.Event) bool {
	if s.TargetNode != "" && e.TargetNode != s.TargetNode {
		return false
	}
	if s.EventType != "" && e.EventType != s.EventType {
		return false
	}
	if s.Action != "" {
		act, _ := e.Payload["action"].(string)
		if act != s.Action {
			return false
		}
	}
	return true
}

// Handler processes one event. Errors are captured by the bus and
// re-published as node.error events (spec §4.2 failure semantics); they
// never propagate to the producer or to other subscribers.
type Handler func(ctx context.Context, e wire.Event) error

// Transport moves events between publishers and subscribers. InMemoryTransport
// is the default, single-process implementation and the only one this
// package provides. Implementations honor one ordering guarantee:
// publications from the same producer are observed by every subscriber in
// submission order.
type Transport interface {
	// Publish hands the event to the transport for delivery. Implementations
	// must preserve per-producer (per SourceNode) ordering.
	Publish(ctx context.Context, e wire.Event) error

	// Subscribe registers a raw delivery callback; returns an unsubscribe
	// function. The transport does not filter — selector matching is the
	// Bus's job — but it does guarantee serial delivery within one
	// subscription (spec §4.2: "handlers run concurrently across distinct
	// events but serially per selector" is enforced one layer up, in Bus).
	Subscribe(ctx context.Context, fn func(wire.Event)) (unsubscribe func(), err error)

	// Close releases transport resources.
	Close() error
}

// InMemoryTransport fans events out over Go channels. It guarantees
// per-producer ordering because Publish appends under a single mutex and
// subscriber goroutines drain their channel in FIFO order.
type InMemoryTransport struct {
	mu   sync.Mutex
	subs map[int]chan wire.Event
	next int
	// perProducerSeq is retained for diagnostics/tests: it lets a test assert
	// that producer p's events were observed in submission order.
	perProducerSeq map[string]int64
	closed         bool
}

// NewInMemoryTransport constructs a ready-to-use transport.
func NewInMemoryTransport() *InMemoryTransport {
	return &InMemoryTransport{
		subs:           make(map[int]chan wire.Event),
		perProducerSeq: make(map[string]int64),
	}
}

func (t *InMemoryTransport) Publish(ctx context.Context, e wire.Event) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("bus: transport closed")
	}
	t.perProducerSeq[e.SourceNode]++
	chans := make([]chan wire.Event, 0, len(t.subs))
	for _, ch := range t.subs {
		chans = append(chans, ch)
	}
	t.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (t *InMemoryTransport) Subscribe(ctx context.Context, fn func(wire.Event)) (func(), error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("bus: transport closed")
	}
	id := t.next
	t.next++
	ch := make(chan wire.Event, 256)
	t.subs[id] = ch
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for {
			select {
			case e, ok := <-ch:
				if !ok {
					return
				}
				fn(e)
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	unsubscribe := func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
		close(done)
	}
	return unsubscribe, nil
}

func (t *InMemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for _, ch := range t.subs {
		close(ch)
	}
	t.subs = nil
	return nil
}
