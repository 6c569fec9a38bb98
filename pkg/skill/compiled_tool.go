package skill

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/fractalminds/agentcore/pkg/tool"
)

// defaultCompiledToolTimeout bounds a Form-2 compiled tool's execution,
// grounded on the teacher's CommandTool default MaxExecutionTime
// (pkg/tools/command.go).
const defaultCompiledToolTimeout = 30 * time.Second

// compiledCommandTool is one Form-2 skill action compiled into a Callable:
// a fixed command, optionally extended with caller-supplied "args" (spec
// §4.8 "compile the skill's scripted actions into tool definitions").
// Grounded on the teacher's CommandTool, narrowed to a single fixed
// executable per compiled tool rather than an arbitrary shell string, since
// a skill manifest — unlike an operator-configured tool — is attacker-
// adjacent input that should not get free-form shell execution.
type compiledCommandTool struct {
	name        string
	description string
	command     string
	readOnly    bool
}

func newCompiledCommandTool(spec CompiledToolSpec) (*compiledCommandTool, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("skill: compiled tool has empty name")
	}
	if strings.TrimSpace(spec.Command) == "" {
		return nil, fmt.Errorf("skill: compiled tool %q has empty command", spec.Name)
	}
	return &compiledCommandTool{
		name:        spec.Name,
		description: spec.Description,
		command:     spec.Command,
		readOnly:    spec.ReadOnly,
	}, nil
}

func (c *compiledCommandTool) Definition() tool.Definition {
	return tool.Definition{
		Name:        c.name,
		Description: c.description,
		Scope:       tool.ScopeSandboxed,
		ReadOnly:    c.readOnly,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"args": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "extra arguments appended to the compiled command",
				},
			},
		},
	}
}

func (c *compiledCommandTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	cmdArgs := strings.Fields(c.command)
	if len(cmdArgs) == 0 {
		return nil, fmt.Errorf("skill: compiled tool %q resolved to an empty command", c.name)
	}

	if raw, ok := args["args"].([]any); ok {
		for _, v := range raw {
			s, ok := v.(string)
			if !ok {
				return nil, &tool.InvalidArgumentsError{ToolName: c.name, Message: "args must be an array of strings"}
			}
			cmdArgs = append(cmdArgs, s)
		}
	}

	runCtx := ctx.Context
	if _, hasDeadline := runCtx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, defaultCompiledToolTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, cmdArgs[0], cmdArgs[1:]...)
	if ctx.Sandbox != nil {
		if dir, err := ctx.Sandbox.Resolve("."); err == nil {
			cmd.Dir = dir
		}
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		return map[string]any{"result": string(out)}, fmt.Errorf("skill: compiled tool %q: %w", c.name, err)
	}
	return map[string]any{"result": string(out)}, nil
}

var _ tool.Callable = (*compiledCommandTool)(nil)
