package wire

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the fixed enum of observable happenings (spec §3).
type EventType string

const (
	EventNodeThinking         EventType = "node.thinking"
	EventToolCall             EventType = "tool.call"
	EventToolResult           EventType = "tool.result"
	EventNodeStart            EventType = "node.start"
	EventNodeComplete         EventType = "node.complete"
	EventNodeError            EventType = "node.error"
	EventMemoryRetrieveStart  EventType = "memory.retrieve.start"
	EventMemoryRetrieveDone   EventType = "memory.retrieve.complete"
	EventMemoryVectorizeStart EventType = "memory.vectorize.start"
	EventMemoryVectorizeDone  EventType = "memory.vectorize.complete"
	EventEphemeralAdd         EventType = "ephemeral.add"
	EventEphemeralClear       EventType = "ephemeral.clear"
	EventTaskDelegate         EventType = "task.delegate"
	EventTaskAccept           EventType = "task.accept"
	EventSkillActivate        EventType = "skill.activate"
	EventTaskSubmitted        EventType = "task.submitted"
	EventTaskTerminal         EventType = "task.terminal"
)

// undroppable holds the event types §4.2 forbids dropping under backpressure:
// tool results, task terminal events, node errors and node.complete must
// always be delivered.
var undroppable = map[EventType]bool{
	EventToolResult:   true,
	EventTaskTerminal: true,
	EventNodeError:    true,
	EventNodeComplete: true,
}

// Droppable reports whether this event type may be shed under a bus
// high-water mark. Text deltas (node.thinking) are the first to go.
func (t EventType) Droppable() bool {
	return !undroppable[t]
}

// Event is an immutable envelope published to the bus (spec §3).
type Event struct {
	EventID    string
	EventType  EventType
	SourceNode string
	TargetNode string // optional
	TaskID     string
	Payload    map[string]any
	Timestamp  time.Time
	TraceID    string
	SpanID     string
}

// NewEvent stamps a fresh event_id and timestamp. TraceID/SpanID propagate the
// delegation-tree hierarchy (spec §3 invariant: they mirror parent/child task
// relationships) and must be supplied by the caller.
func NewEvent(eventType EventType, sourceNode, taskID, traceID, spanID string, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		SourceNode: sourceNode,
		TaskID:     taskID,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
		TraceID:    traceID,
		SpanID:     spanID,
	}
}

// WithTarget returns a copy of the event addressed to a specific target node.
func (e Event) WithTarget(target string) Event {
	e.TargetNode = target
	return e
}

// NewSpanID mints a child span id that nests under parent, so downstream
// consumers can reconstruct per-agent order from the string alone (spec §4.10
// ordering guarantee), without requiring a full OTel context.
func NewSpanID(parent string) string {
	id := uuid.New().String()[:8]
	if parent == "" {
		return id
	}
	return parent + "/" + id
}
