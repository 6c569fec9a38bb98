// Package llmprovider defines the single pluggable boundary the Agent Loop
// (C9) drives every LLM call through (spec §6 "LLM provider interface
// (consumed)"). No concrete vendor SDK is wired here: the teacher's
// pkg/llms ships a StreamChunk{Type,Text,ToolCall,Tokens,Error} union keyed
// by a string tag; this package keeps the same streaming-chunk shape but
// splits it into the spec's six named variants (text/tool_call_start/
// tool_call_delta/tool_call_complete/usage/finish) as an explicit Kind enum
// plus typed payload fields, so a consumer switches on Kind instead of
// re-deriving a variant from which pointer field happens to be non-nil.
package llmprovider

import "context"

// Message is one turn in the conversation handed to StreamChat, grounded on
// the teacher's llms.Message (role/content/tool_calls/tool_call_id/name).
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolCall mirrors the teacher's llms.ToolCall.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolDefinition is the provider-facing tool shape handed alongside messages
// (teacher's llms.ToolDefinition).
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Params bounds a single stream_chat call (temperature/max_tokens are the
// only knobs the core itself reasons about; provider-specific extras travel
// in Extra).
type Params struct {
	Temperature float64
	MaxTokens   int
	Extra       map[string]any
}

// ChunkKind is the fixed enum of streamed chunk variants (spec §6).
type ChunkKind string

const (
	ChunkText             ChunkKind = "text"
	ChunkToolCallStart    ChunkKind = "tool_call_start"
	ChunkToolCallDelta    ChunkKind = "tool_call_delta"
	ChunkToolCallComplete ChunkKind = "tool_call_complete"
	ChunkUsage            ChunkKind = "usage"
	ChunkFinish           ChunkKind = "finish"
)

// Chunk is one unit of a streamed response. Only the fields relevant to Kind
// are populated; a provider MUST emit exactly one ChunkFinish chunk per
// call, and a ChunkToolCallComplete's Arguments MUST be a fully-formed map
// (spec §6).
type Chunk struct {
	Kind ChunkKind

	// ChunkText
	TextDelta string

	// ChunkToolCallStart / ChunkToolCallDelta / ChunkToolCallComplete
	ToolCallID   string
	ToolCallName string
	PartialJSON  string // ChunkToolCallDelta only
	Arguments    map[string]any

	// ChunkUsage
	InputTokens  int
	OutputTokens int

	// ChunkFinish
	FinishReason string
}

// Provider is the consumed LLM boundary (spec §6). StreamChat MUST close
// the returned channel after emitting exactly one ChunkFinish (or an error
// chunk is not a thing — callers instead get a non-nil error return and no
// further sends).
type Provider interface {
	StreamChat(ctx context.Context, messages []Message, tools []ToolDefinition, params Params) (<-chan Chunk, error)
}
