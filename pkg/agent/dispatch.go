package agent

import (
	"context"
	"fmt"

	"github.com/fractalminds/agentcore/pkg/tool"
	"github.com/fractalminds/agentcore/pkg/wire"
)

// dispatchOutcome carries a meta-tool or ordinary tool call's result back
// to the loop, along with whether it ended the task (spec §4.9 step 3f
// "done: raise TaskComplete").
type dispatchOutcome struct {
	done    bool
	content string
}

// dispatch routes one LLM-issued call to its handler: meta-tools are
// handled inline, everything else goes to the Tool Executor (spec §4.9
// step 3f).
func (a *Agent) dispatch(ctx context.Context, task *wire.Task, traceID, spanID string, call tool.Call) (dispatchOutcome, error) {
	switch call.Name {
	case "done":
		return dispatchOutcome{done: true, content: stringArg(call.Arguments, "content")}, nil
	case "create_plan":
		return a.dispatchCreatePlan(ctx, task, traceID, spanID, call)
	case "delegate_task":
		return a.dispatchDelegate(ctx, task, call)
	case "query_l1_memory":
		return a.dispatchQueryL1(call)
	case "query_l2_memory":
		return a.dispatchQueryL2(call)
	case "query_events_by_action":
		return a.dispatchQueryEvents(call)
	default:
		return a.dispatchOrdinary(ctx, task, traceID, spanID, call)
	}
}

func (a *Agent) dispatchOrdinary(ctx context.Context, task *wire.Task, traceID, spanID string, call tool.Call) (dispatchOutcome, error) {
	results, err := a.executor.ExecuteBatch(ctx, task.TaskID, traceID, spanID, []tool.Call{call})
	if err != nil {
		return dispatchOutcome{}, err
	}
	r := results[0]
	if !r.Success {
		return dispatchOutcome{content: fmt.Sprintf("error: %s", r.Error)}, nil
	}
	return dispatchOutcome{content: r.Content}, nil
}

// dispatchCreatePlan runs a structured sub-task plan locally, as an
// ordered sequence of sub-tasks handled by this same agent (spec §4.9 step
// 3f "create_plan: execute the plan locally"), distinct from delegate_task
// which spawns a child agent (§4.10).
func (a *Agent) dispatchCreatePlan(ctx context.Context, parent *wire.Task, traceID, spanID string, call tool.Call) (dispatchOutcome, error) {
	raw, _ := call.Arguments["subtasks"].([]any)
	if len(raw) == 0 {
		return dispatchOutcome{content: "plan had no subtasks"}, nil
	}

	var results []string
	for i, item := range raw {
		desc := ""
		if m, ok := item.(map[string]any); ok {
			desc = stringArg(m, "description")
		} else if s, ok := item.(string); ok {
			desc = s
		}
		if desc == "" {
			continue
		}

		sub := wire.New(a.cfg.AgentID, a.cfg.AgentID, wire.ActionExecute, map[string]any{"content": desc})
		sub.ParentTaskID = parent.TaskID
		sub.SessionID = parent.SessionID
		sub.Metadata["depth"] = parent.Depth()
		sub.Metadata["plan_index"] = i

		if err := a.RunTask(ctx, sub); err != nil {
			return dispatchOutcome{}, fmt.Errorf("agent: plan subtask %d: %w", i, err)
		}
		results = append(results, sub.Content())
	}

	return dispatchOutcome{content: joinResults(results)}, nil
}

func (a *Agent) dispatchDelegate(ctx context.Context, parent *wire.Task, call tool.Call) (dispatchOutcome, error) {
	if a.delegator == nil {
		return dispatchOutcome{}, ErrDelegationUnavailable
	}
	subtaskDescription := stringArg(call.Arguments, "subtask_description")
	var requiredCapabilities []string
	if raw, ok := call.Arguments["required_capabilities"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				requiredCapabilities = append(requiredCapabilities, s)
			}
		}
	}
	var contextHints map[string]any
	if h, ok := call.Arguments["context_hints"].(map[string]any); ok {
		contextHints = h
	}

	content, err := a.delegator.Delegate(ctx, parent, a.scoped, subtaskDescription, requiredCapabilities, contextHints)
	if err != nil {
		return dispatchOutcome{}, err
	}
	return dispatchOutcome{content: content}, nil
}

func (a *Agent) dispatchQueryL1(call tool.Call) (dispatchOutcome, error) {
	limit := intArg(call.Arguments, "limit", 10)
	tasks := a.store.RecentTasks(limit)
	return dispatchOutcome{content: summarizeTasks(tasks)}, nil
}

func (a *Agent) dispatchQueryL2(call tool.Call) (dispatchOutcome, error) {
	limit := intArg(call.Arguments, "limit", 10)
	tasks := a.store.ImportantTasks(limit)
	return dispatchOutcome{content: summarizeTasks(tasks)}, nil
}

func (a *Agent) dispatchQueryEvents(call tool.Call) (dispatchOutcome, error) {
	action := stringArg(call.Arguments, "action")
	limit := intArg(call.Arguments, "limit", 10)
	if a.bus == nil || action == "" {
		return dispatchOutcome{content: "[]"}, nil
	}
	events := a.bus.QueryByAction(action, limit)
	return dispatchOutcome{content: summarizeEvents(events)}, nil
}

func summarizeTasks(tasks []*wire.Task) string {
	if len(tasks) == 0 {
		return "no matching tasks"
	}
	out := ""
	for _, t := range tasks {
		out += fmt.Sprintf("- [%s] %s: %s\n", t.TaskID, t.Status, t.Content())
	}
	return out
}

func summarizeEvents(events []wire.Event) string {
	if len(events) == 0 {
		return "no matching events"
	}
	out := ""
	for _, e := range events {
		out += fmt.Sprintf("- %s task=%s node=%s\n", e.EventType, e.TaskID, e.SourceNode)
	}
	return out
}

func joinResults(results []string) string {
	out := ""
	for i, r := range results {
		if i > 0 {
			out += "\n"
		}
		out += r
	}
	return out
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}
