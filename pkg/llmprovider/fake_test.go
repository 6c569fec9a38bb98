package llmprovider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan Chunk) []Chunk {
	t.Helper()
	var out []Chunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestFake_NoResponsesScriptedEmitsBareFinish(t *testing.T) {
	f := &Fake{}
	ch, err := f.StreamChat(context.Background(), nil, nil, Params{})
	require.NoError(t, err)

	chunks := drain(t, ch)
	require.Len(t, chunks, 1)
	assert.Equal(t, ChunkFinish, chunks[0].Kind)
	assert.Equal(t, "stop", chunks[0].FinishReason)
}

func TestFake_ReplaysScriptedChunksInOrder(t *testing.T) {
	f := &Fake{Responses: []FakeResponse{
		{Chunks: []Chunk{
			{Kind: ChunkText, TextDelta: "hel"},
			{Kind: ChunkText, TextDelta: "lo"},
			{Kind: ChunkFinish, FinishReason: "stop"},
		}},
	}}

	ch, err := f.StreamChat(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, Params{})
	require.NoError(t, err)

	chunks := drain(t, ch)
	require.Len(t, chunks, 3)
	assert.Equal(t, "hel", chunks[0].TextDelta)
	assert.Equal(t, "lo", chunks[1].TextDelta)
	assert.Equal(t, ChunkFinish, chunks[2].Kind)
}

func TestFake_CyclesOnLastResponseOnceExhausted(t *testing.T) {
	f := &Fake{Responses: []FakeResponse{
		{Chunks: []Chunk{{Kind: ChunkText, TextDelta: "first"}, {Kind: ChunkFinish}}},
		{Chunks: []Chunk{{Kind: ChunkText, TextDelta: "second"}, {Kind: ChunkFinish}}},
	}}

	_, _ = f.StreamChat(context.Background(), nil, nil, Params{})
	_, _ = f.StreamChat(context.Background(), nil, nil, Params{})
	ch, err := f.StreamChat(context.Background(), nil, nil, Params{})
	require.NoError(t, err)

	chunks := drain(t, ch)
	assert.Equal(t, "second", chunks[0].TextDelta, "calls beyond len(Responses) replay the last scripted response")
}

func TestFake_ScriptedErrorIsReturnedNotSentAsChunk(t *testing.T) {
	wantErr := errors.New("rate limited")
	f := &Fake{Responses: []FakeResponse{{Err: wantErr}}}

	ch, err := f.StreamChat(context.Background(), nil, nil, Params{})
	assert.Nil(t, ch)
	assert.ErrorIs(t, err, wantErr)
}

func TestFake_RecordsEveryCall(t *testing.T) {
	f := &Fake{}
	msgs := []Message{{Role: "system", Content: "be terse"}}
	tools := []ToolDefinition{{Name: "echo"}}
	params := Params{Temperature: 0.2, MaxTokens: 256}

	_, err := f.StreamChat(context.Background(), msgs, tools, params)
	require.NoError(t, err)
	_, err = f.StreamChat(context.Background(), msgs, tools, params)
	require.NoError(t, err)

	require.Len(t, f.Calls, 2)
	assert.Equal(t, msgs, f.Calls[0].Messages)
	assert.Equal(t, tools, f.Calls[0].Tools)
	assert.Equal(t, params, f.Calls[0].Params)
}
