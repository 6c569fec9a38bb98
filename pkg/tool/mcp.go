package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPConfig configures a stdio-transport MCP toolset (spec §6 domain stack:
// MCP toolset adapter). Grounded on the teacher's pkg/tool/mcptoolset,
// narrowed to the stdio transport — the HTTP/SSE transports there are a
// hand-rolled JSON-RPC client duplicating what mark3labs/mcp-go already
// does for stdio, and this core has no HTTP-transport consumer yet.
type MCPConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	Filter  []string // if non-empty, only these tool names are exposed
}

// MCPToolset lazily connects to an MCP server over stdio and exposes its
// tools as Callables (spec ScopeRemote — the tool body runs out-of-process).
type MCPToolset struct {
	cfg MCPConfig

	mu        sync.Mutex
	client    *client.Client
	connected bool
	filterSet map[string]bool
	tools     []Callable
}

// NewMCPToolset builds an MCP toolset; connection happens lazily on first
// Tools() call.
func NewMCPToolset(cfg MCPConfig) (*MCPToolset, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcp toolset %q: command is required for stdio transport", cfg.Name)
	}
	var filterSet map[string]bool
	if len(cfg.Filter) > 0 {
		filterSet = make(map[string]bool, len(cfg.Filter))
		for _, n := range cfg.Filter {
			filterSet[n] = true
		}
	}
	return &MCPToolset{cfg: cfg, filterSet: filterSet}, nil
}

// Tools connects (if needed) and returns the discovered tools as Callables.
func (t *MCPToolset) Tools(ctx context.Context) ([]Callable, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		if err := t.connect(ctx); err != nil {
			return nil, fmt.Errorf("mcp toolset %q: %w", t.cfg.Name, err)
		}
	}
	return t.tools, nil
}

func (t *MCPToolset) connect(ctx context.Context) error {
	env := make([]string, 0, len(t.cfg.Env))
	for k, v := range t.cfg.Env {
		env = append(env, k+"="+v)
	}

	mcpClient, err := client.NewStdioMCPClient(t.cfg.Command, env, t.cfg.Args...)
	if err != nil {
		return fmt.Errorf("creating MCP client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("starting MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "agentcore", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("initializing MCP session: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("listing MCP tools: %w", err)
	}

	var tools []Callable
	for _, mt := range listResp.Tools {
		if t.filterSet != nil && !t.filterSet[mt.Name] {
			continue
		}
		tools = append(tools, &mcpTool{
			toolset: t,
			name:    mt.Name,
			desc:    mt.Description,
			schema:  convertMCPSchema(mt.InputSchema),
		})
	}

	t.client = mcpClient
	t.tools = tools
	t.connected = true
	return nil
}

func (t *MCPToolset) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	t.connected = false
	t.tools = nil
	return err
}

type mcpTool struct {
	toolset *MCPToolset
	name    string
	desc    string
	schema  map[string]any
}

func (w *mcpTool) Definition() Definition {
	return Definition{
		Name: w.name, Description: w.desc, Schema: w.schema,
		Scope: ScopeRemote, ReadOnly: false, // remote tool side effects are unknown; default to mutating (spec §4.7)
	}
}

func (w *mcpTool) Call(ctx Context, args map[string]any) (map[string]any, error) {
	w.toolset.mu.Lock()
	mcpClient := w.toolset.client
	w.toolset.mu.Unlock()
	if mcpClient == nil {
		return nil, fmt.Errorf("mcp tool %q: toolset not connected", w.name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = w.name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx.Context, req)
	if err != nil {
		return nil, fmt.Errorf("mcp tool %q: call failed: %w", w.name, err)
	}
	return parseMCPResult(resp)
}

func parseMCPResult(resp *mcp.CallToolResult) (map[string]any, error) {
	result := make(map[string]any)
	if resp.IsError {
		for _, c := range resp.Content {
			if tc, ok := c.(mcp.TextContent); ok {
				return nil, fmt.Errorf("mcp: %s", tc.Text)
			}
		}
		return nil, fmt.Errorf("mcp: unknown error")
	}
	var texts []string
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	switch len(texts) {
	case 0:
	case 1:
		result["result"] = texts[0]
	default:
		result["results"] = texts
	}
	return result, nil
}

func convertMCPSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

var _ Callable = (*mcpTool)(nil)
