package tool

import (
	"fmt"
	"os"
	"strings"
)

// Sandboxed filesystem tools, grounded on the teacher's pkg/tools/read_file.go
// and pkg/tools/file_writer.go, adapted to this package's generic Func
// wrapper and the spec's sandbox-handle injection (rather than a single
// configured working directory): every path argument is resolved through
// ctx.Sandbox, which fails closed if unset or if the path escapes the
// allowlist.

// ReadFileArgs is read_file's argument struct.
type ReadFileArgs struct {
	Path        string `json:"path" jsonschema:"required,description=File path to read"`
	StartLine   int    `json:"start_line,omitempty" jsonschema:"description=Starting line number (1-indexed)"`
	EndLine     int    `json:"end_line,omitempty" jsonschema:"description=Ending line number (inclusive)"`
	LineNumbers bool   `json:"line_numbers,omitempty" jsonschema:"description=Include line numbers,default=false"`
}

// NewReadFileTool builds the sandboxed read_file tool.
func NewReadFileTool() (*Func[ReadFileArgs], error) {
	return NewFunc("read_file",
		"Read the contents of a file, optionally restricted to a line range.",
		ScopeSandboxed, true,
		func(ctx Context, args ReadFileArgs) (map[string]any, error) {
			if ctx.Sandbox == nil {
				return nil, fmt.Errorf("read_file: no sandbox configured")
			}
			resolved, err := ctx.Sandbox.Resolve(args.Path)
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(resolved)
			if err != nil {
				return nil, fmt.Errorf("read_file: %w", err)
			}
			content := selectLines(string(data), args.StartLine, args.EndLine, args.LineNumbers)
			return map[string]any{"result": content, "path": args.Path}, nil
		})
}

func selectLines(content string, start, end int, numbered bool) string {
	if start <= 0 && end <= 0 {
		return content
	}
	lines := strings.Split(content, "\n")
	if start <= 0 {
		start = 1
	}
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start > len(lines) {
		return ""
	}
	var b strings.Builder
	for i := start; i <= end; i++ {
		if numbered {
			fmt.Fprintf(&b, "%d: %s\n", i, lines[i-1])
		} else {
			b.WriteString(lines[i-1])
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// WriteFileArgs is write_file's argument struct.
type WriteFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=File path to write"`
	Content string `json:"content" jsonschema:"required,description=Content to write"`
	Append  bool   `json:"append,omitempty" jsonschema:"description=Append instead of overwrite"`
}

// NewWriteFileTool builds the sandboxed write_file tool (mutating — never
// classified read-only by the executor's batch partitioner).
func NewWriteFileTool() (*Func[WriteFileArgs], error) {
	return NewFunc("write_file",
		"Create or overwrite a file with the given content.",
		ScopeSandboxed, false,
		func(ctx Context, args WriteFileArgs) (map[string]any, error) {
			if ctx.Sandbox == nil {
				return nil, fmt.Errorf("write_file: no sandbox configured")
			}
			resolved, err := ctx.Sandbox.Resolve(args.Path)
			if err != nil {
				return nil, err
			}
			flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
			if args.Append {
				flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
			}
			f, err := os.OpenFile(resolved, flags, 0o644)
			if err != nil {
				return nil, fmt.Errorf("write_file: %w", err)
			}
			defer f.Close()
			if _, err := f.WriteString(args.Content); err != nil {
				return nil, fmt.Errorf("write_file: %w", err)
			}
			return map[string]any{"result": fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path)}, nil
		})
}
