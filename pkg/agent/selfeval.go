package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fractalminds/agentcore/pkg/llmprovider"
	"github.com/fractalminds/agentcore/pkg/wire"
)

// QualityMetrics is the structured self-evaluation output attached to a
// completed task as result.quality_metrics (spec §4.9 step 4).
type QualityMetrics struct {
	Confidence float64 `json:"confidence"`
	Coverage   float64 `json:"coverage"`
	Novelty    float64 `json:"novelty"`
}

// selfEvaluate runs one short follow-up LLM call judging the task's final
// content, grounded on the teacher's pkg/reasoning/reflection.go structured-
// analysis pattern (a dedicated LLM call producing a small, fixed JSON
// shape rather than heuristics over string matching).
func (a *Agent) selfEvaluate(ctx context.Context, task *wire.Task, content string) (QualityMetrics, error) {
	prompt := fmt.Sprintf(
		"Task: %s\nFinal answer: %s\n\nRespond with ONLY a JSON object {\"confidence\":0-1,\"coverage\":0-1,\"novelty\":0-1} judging how confident you are the answer is correct, how completely it covers the task, and how much new information it introduced beyond what was already known.",
		a.taskContent(task), content,
	)

	stream, err := a.provider.StreamChat(ctx, []llmprovider.Message{{Role: "user", Content: prompt}}, nil, llmprovider.Params{})
	if err != nil {
		return QualityMetrics{}, err
	}

	var text string
	for chunk := range stream {
		if chunk.Kind == llmprovider.ChunkText {
			text += chunk.TextDelta
		}
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return QualityMetrics{}, fmt.Errorf("agent: self-evaluation produced no JSON object: %q", text)
	}

	var metrics QualityMetrics
	if err := json.Unmarshal([]byte(text[start:end+1]), &metrics); err != nil {
		return QualityMetrics{}, fmt.Errorf("agent: parsing self-evaluation: %w", err)
	}
	return metrics, nil
}
