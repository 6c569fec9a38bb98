package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"

	"github.com/fractalminds/agentcore/pkg/llmprovider"
	"github.com/fractalminds/agentcore/pkg/observability"
	"github.com/fractalminds/agentcore/pkg/skill"
	"github.com/fractalminds/agentcore/pkg/tool"
	"github.com/fractalminds/agentcore/pkg/wire"
)

// turn is one iteration's accumulated assistant message plus the tool
// results that followed it — the unit appended to the conversation buffer
// (spec §4.9 step 3g).
type turn struct {
	assistant llmprovider.Message
	toolMsgs  []llmprovider.Message
}

// RunTask drives task from pending through running to a terminal status
// (spec §4.9). It is synchronous: callers that want concurrent task
// execution run it in their own goroutine per task, matching the spec's
// "one logical task ~= one logical worker" scheduling model (§5).
func (a *Agent) RunTask(ctx context.Context, task *wire.Task) error {
	traceID, spanID := observability.SpanIDs(ctx)
	if traceID == "" {
		traceID = task.TaskID
	}
	if spanID == "" {
		spanID = wire.NewSpanID("")
	}

	if err := task.SetStatus(wire.StatusRunning); err != nil {
		return err
	}

	a.store.AddTask(task)
	a.publish(ctx, wire.EventNodeStart, task.TaskID, traceID, spanID, map[string]any{"agent_id": a.cfg.AgentID})

	activation, err := a.activator.Activate(ctx, task.TaskID, traceID, spanID, a.taskContent(task))
	if err != nil {
		return a.fail(ctx, task, traceID, spanID, "skill_activation", err, 0)
	}

	var conversation []turn
	var finalContent string
	completed := false

	for iteration := 0; iteration < a.cfg.MaxIterations && !completed; iteration++ {
		select {
		case <-ctx.Done():
			return a.cancel(ctx, task, traceID, spanID)
		default:
		}

		messages, err := a.buildContext(ctx, task, activation, iteration == 0, conversation)
		if err != nil {
			return a.fail(ctx, task, traceID, spanID, "context_build", err, 0)
		}

		assistantText, toolCalls, usedTokens, err := a.streamIteration(ctx, task, traceID, spanID, messages)
		if err != nil {
			return a.fail(ctx, task, traceID, spanID, "llm_stream", err, a.cfg.MaxRetries)
		}

		if a.budget != nil && usedTokens > 0 {
			if err := a.budget.Charge(usedTokens); err != nil {
				return a.fail(ctx, task, traceID, spanID, "budget_exceeded", err, 0)
			}
		}

		if len(toolCalls) == 0 {
			if a.cfg.RequireDone {
				conversation = append(conversation, turn{assistant: llmprovider.Message{Role: "assistant", Content: assistantText}, toolMsgs: []llmprovider.Message{
					{Role: "user", Content: "Call the `done` tool with your final answer to finish this task."},
				}})
				continue
			}
			finalContent = assistantText
			completed = true
			break
		}

		t := turn{assistant: llmprovider.Message{Role: "assistant", Content: assistantText, ToolCalls: toolCallsToProvider(toolCalls)}}

		for _, call := range toolCalls {
			outcome, err := a.dispatch(ctx, task, traceID, spanID, call)
			if err != nil {
				t.toolMsgs = append(t.toolMsgs, llmprovider.Message{Role: "tool", ToolCallID: call.ID, Name: call.Name, Content: fmt.Sprintf("error: %v", err)})
				continue
			}
			if outcome.done {
				finalContent = outcome.content
				completed = true
			}
			t.toolMsgs = append(t.toolMsgs, llmprovider.Message{Role: "tool", ToolCallID: call.ID, Name: call.Name, Content: outcome.content})
			if completed {
				break
			}
		}

		conversation = append(conversation, t)
	}

	if !completed {
		finalContent = lastAssistantText(conversation)
	}

	return a.complete(ctx, task, traceID, spanID, finalContent)
}

// streamIteration drives one stream_chat call with the spec's retry policy:
// transient LLM errors retry up to MaxRetries with exponential backoff and
// jitter; everything else is permanent (spec §4.9 failure semantics).
func (a *Agent) streamIteration(ctx context.Context, task *wire.Task, traceID, spanID string, messages []llmprovider.Message) (string, []tool.Call, int64, error) {
	type result struct {
		text   string
		calls  []tool.Call
		tokens int64
	}

	op := func() (result, error) {
		iterCtx, cancel := context.WithTimeout(ctx, a.cfg.IterationDeadline)
		defer cancel()

		stream, err := a.provider.StreamChat(iterCtx, messages, toolDefinitionsForLLM(a.tools), llmprovider.Params{})
		if err != nil {
			var transient *TransientLLMError
			if errors.As(err, &transient) {
				return result{}, err
			}
			return result{}, backoff.Permanent(err)
		}

		var text string
		var tokens int64
		pending := map[string]*tool.Call{}
		var order []string

		for chunk := range stream {
			switch chunk.Kind {
			case llmprovider.ChunkText:
				text += chunk.TextDelta
				a.publish(iterCtx, wire.EventNodeThinking, task.TaskID, traceID, spanID, map[string]any{"delta": chunk.TextDelta})
			case llmprovider.ChunkToolCallStart:
				pending[chunk.ToolCallID] = &tool.Call{ID: chunk.ToolCallID, Name: chunk.ToolCallName}
				order = append(order, chunk.ToolCallID)
			case llmprovider.ChunkToolCallComplete:
				c, ok := pending[chunk.ToolCallID]
				if !ok {
					c = &tool.Call{ID: chunk.ToolCallID, Name: chunk.ToolCallName}
					pending[chunk.ToolCallID] = c
					order = append(order, chunk.ToolCallID)
				}
				c.Name = chunk.ToolCallName
				c.Arguments = chunk.Arguments
			case llmprovider.ChunkUsage:
				tokens += int64(chunk.InputTokens + chunk.OutputTokens)
			case llmprovider.ChunkFinish:
				if chunk.FinishReason == "error" {
					return result{}, &TransientLLMError{Err: fmt.Errorf("provider reported finish reason %q", chunk.FinishReason)}
				}
			}
		}

		calls := make([]tool.Call, 0, len(order))
		for _, id := range order {
			calls = append(calls, *pending[id])
		}
		return result{text: text, calls: calls, tokens: tokens}, nil
	}

	opts := []backoff.RetryOption{backoff.WithMaxTries(uint(a.cfg.MaxRetries + 1))}
	r, err := backoff.Retry(ctx, op, opts...)
	if err != nil {
		var transient *TransientLLMError
		if errors.As(err, &transient) {
			return "", nil, 0, transient
		}
		return "", nil, 0, err
	}
	return r.text, r.calls, r.tokens, nil
}

func (a *Agent) buildContext(ctx context.Context, task *wire.Task, activation *skill.Activation, firstIteration bool, conversation []turn) ([]llmprovider.Message, error) {
	msgs, err := a.buildOrchestratorContext(ctx, task, activation, firstIteration)
	if err != nil {
		return nil, err
	}
	for _, t := range conversation {
		msgs = append(msgs, t.assistant)
		msgs = append(msgs, t.toolMsgs...)
	}
	return msgs, nil
}

func lastAssistantText(conversation []turn) string {
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].assistant.Content != "" {
			return conversation[i].assistant.Content
		}
	}
	return ""
}

func (a *Agent) taskContent(task *wire.Task) string {
	if v, ok := task.Parameters["content"].(string); ok {
		return v
	}
	if v, ok := task.Parameters["description"].(string); ok {
		return v
	}
	return ""
}

func toolCallsToProvider(calls []tool.Call) []llmprovider.ToolCall {
	out := make([]llmprovider.ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, llmprovider.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
	}
	return out
}

func (a *Agent) publish(ctx context.Context, t wire.EventType, taskID, traceID, spanID string, payload map[string]any) {
	if a.bus == nil {
		return
	}
	ev := wire.NewEvent(t, a.cfg.AgentID, taskID, traceID, spanID, payload)
	_ = a.bus.Publish(ctx, ev)
}

func (a *Agent) cancel(ctx context.Context, task *wire.Task, traceID, spanID string) error {
	_ = task.SetStatus(wire.StatusCancelled)
	a.publish(ctx, wire.EventNodeComplete, task.TaskID, traceID, spanID, map[string]any{"status": string(wire.StatusCancelled)})
	a.store.AddTask(task)
	return context.Canceled
}

func (a *Agent) fail(ctx context.Context, task *wire.Task, traceID, spanID, kind string, err error, retries int) error {
	task.SetResult(wire.FailureResult(kind, err.Error(), retries))
	_ = task.SetStatus(wire.StatusFailed)
	a.publish(ctx, wire.EventNodeError, task.TaskID, traceID, spanID, map[string]any{"kind": kind, "error": err.Error()})
	a.publish(ctx, wire.EventTaskTerminal, task.TaskID, traceID, spanID, map[string]any{"status": string(wire.StatusFailed)})
	a.store.AddTask(task)
	return err
}

func (a *Agent) complete(ctx context.Context, task *wire.Task, traceID, spanID, content string) error {
	task.SetResult(map[string]any{"content": content})
	if err := task.SetStatus(wire.StatusCompleted); err != nil {
		return err
	}

	if a.cfg.SelfEvaluate {
		if metrics, err := a.selfEvaluate(ctx, task, content); err == nil {
			task.SetResult(map[string]any{"quality_metrics": metrics})
		} else {
			a.logger.Warn("self-evaluation failed", "task_id", task.TaskID, "error", err)
		}
	}

	a.store.AddTask(task)
	a.publish(ctx, wire.EventNodeComplete, task.TaskID, traceID, spanID, map[string]any{"status": string(wire.StatusCompleted)})
	a.publish(ctx, wire.EventTaskTerminal, task.TaskID, traceID, spanID, map[string]any{"status": string(wire.StatusCompleted)})

	if task.SessionID != "" {
		a.store.PromoteTasksAsync([]string{task.SessionID})
	}
	return nil
}
