package tool

import (
	"fmt"
	"os"
	"path/filepath"
)

// EchoTool is a trivial context-scoped tool (pure function of its
// arguments, no side effects) used as the agent loop's worked example
// (spec §4.9) and as a zero-dependency smoke-test tool for a freshly
// started node.
type EchoTool struct{}

func (EchoTool) Definition() Definition {
	return Definition{
		Name:        "echo",
		Description: "Echoes the given text back, unchanged.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
		Scope:    ScopeContext,
		ReadOnly: true,
	}
}

func (EchoTool) Call(ctx Context, args map[string]any) (map[string]any, error) {
	text, _ := args["text"].(string)
	return map[string]any{"text": text}, nil
}

// ReadFileTool reads a file's contents from within the sandbox allowlist
// (spec §4.7 "auto-injected sandbox handle"), grounded on the teacher's
// pkg/tools.ReadFileTool minus line-range selection, which this core's
// callers have no use for without the teacher's code-editing workflow.
type ReadFileTool struct {
	MaxBytes int
}

func (t ReadFileTool) Definition() Definition {
	return Definition{
		Name:        "read_file",
		Description: "Read the contents of a file within the sandboxed working directory.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
			"required": []string{"path"},
		},
		Scope:    ScopeSandboxed,
		ReadOnly: true,
	}
}

func (t ReadFileTool) Call(ctx Context, args map[string]any) (map[string]any, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return nil, &InvalidArgumentsError{ToolName: "read_file", Message: "path is required"}
	}
	if ctx.Sandbox == nil {
		return nil, fmt.Errorf("read_file: no sandbox configured")
	}
	if !ctx.Sandbox.Allowed(path) {
		return nil, fmt.Errorf("read_file: path %q is outside the sandbox allowlist", path)
	}
	resolved, err := ctx.Sandbox.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("read_file: %w", err)
	}

	maxBytes := t.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	data, err := os.ReadFile(filepath.Clean(resolved))
	if err != nil {
		return nil, fmt.Errorf("read_file: %w", err)
	}
	if len(data) > maxBytes {
		data = data[:maxBytes]
	}
	return map[string]any{"content": string(data)}, nil
}
