// Command agentcore boots one or more agent nodes from a YAML config and
// serves spec §6's Agent execution API over HTTP.
//
// Usage:
//
//	agentcore serve --config config.yaml
//	agentcore validate --config config.yaml
//
// Grounded on the teacher's cmd/hector/main.go: a kong CLI struct with
// cmd:""-tagged subcommands, SIGINT/SIGTERM-driven graceful shutdown via
// context cancellation, and a .env-before-config load order.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/fractalminds/agentcore/pkg/agent"
	"github.com/fractalminds/agentcore/pkg/budget"
	"github.com/fractalminds/agentcore/pkg/bus"
	"github.com/fractalminds/agentcore/pkg/config"
	"github.com/fractalminds/agentcore/pkg/delegate"
	"github.com/fractalminds/agentcore/pkg/llmprovider"
	"github.com/fractalminds/agentcore/pkg/memory"
	"github.com/fractalminds/agentcore/pkg/observability"
	"github.com/fractalminds/agentcore/pkg/scope"
	"github.com/fractalminds/agentcore/pkg/skill"
	"github.com/fractalminds/agentcore/pkg/token"
	"github.com/fractalminds/agentcore/pkg/tool"

	"github.com/fractalminds/agentcore/pkg/api"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the agent execution HTTP server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config string `short:"c" help:"Path to config file." type:"path" default:"agentcore.yaml"`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	fmt.Printf("agentcore version %s\n", version)
	return nil
}

// ValidateCmd loads and validates a config file without starting anything.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	_ = config.LoadDotEnv("")
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	fmt.Printf("%s: valid, %d agent(s) configured\n", cli.Config, len(cfg.Agents))
	return nil
}

// ServeCmd boots every configured agent node and serves the HTTP API.
type ServeCmd struct {
	Watch bool `help:"Watch the config file and hot-reload skill manifests on change."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("agentcore: shutting down")
		cancel()
	}()

	_ = config.LoadDotEnv("")
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := cfg.Logger.NewLogger(os.Stderr)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	slog.SetDefault(logger)

	node, err := buildNode(cfg, logger)
	if err != nil {
		return fmt.Errorf("wiring components: %w", err)
	}
	defer node.bus.Close()

	if c.Watch {
		go func() {
			err := config.Watch(ctx, cli.Config, func(newCfg *config.Config) {
				if newCfg.Skill.Dir == "" {
					return
				}
				if _, errs := node.skills.LoadDir(newCfg.Skill.Dir); len(errs) > 0 {
					for _, e := range errs {
						logger.Error("agentcore: skill reload failed", "error", e)
					}
				}
			}, logger)
			if err != nil && ctx.Err() == nil {
				logger.Error("agentcore: config watch stopped", "error", err)
			}
		}()
	}

	srv := api.New(node.agents, node.bus, logger)
	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutS) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutS) * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("agentcore: listening", "addr", cfg.Server.Addr(), "agents", cfg.AgentNames())
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// wiredNode is every shared component one agentcore process holds plus the
// set of top-level agents reachable over the HTTP surface.
type wiredNode struct {
	bus    *bus.Bus
	skills *skill.Registry
	agents map[string]*agent.Agent
}

// buildNode wires C1-C11 together from config: one shared bus, tool
// registry/executor, skill registry/activator, token registry and budget,
// and one Agent (with its own tier store, scoped memory and
// delegate.Coordinator built from that agent's config) per configured
// agent_id; every Coordinator is handed the same shared collaborators, so
// delegate_task calls from any agent spawn children carrying the same
// inherited collaborators (spec §4.10 step 5).
func buildNode(cfg *config.Config, logger *slog.Logger) (*wiredNode, error) {
	metrics := observability.NewMetrics(cfg.Observability.MetricsEnabled)

	b, err := bus.New(cfg.Bus.ToBusConfig(), nil, metrics)
	if err != nil {
		return nil, fmt.Errorf("bus: %w", err)
	}

	tools := tool.NewRegistry()
	if err := tools.RegisterTool(tool.EchoTool{}); err != nil {
		return nil, fmt.Errorf("registering echo tool: %w", err)
	}
	if err := tools.RegisterTool(tool.ReadFileTool{}); err != nil {
		return nil, fmt.Errorf("registering read_file tool: %w", err)
	}

	executor := tool.NewExecutor(cfg.Tool.ToExecutorConfig(), tools, b, tool.NewPathSandbox("."))

	skills := skill.NewRegistry(logger)
	if cfg.Skill.Dir != "" {
		if _, errs := skills.LoadDir(cfg.Skill.Dir); len(errs) > 0 {
			for _, e := range errs {
				logger.Warn("agentcore: skill manifest load failed", "error", e)
			}
		}
	}

	tokens := token.NewRegistry(firstAgentModel(cfg))
	sharedBudget := budget.New(totalBudget(cfg))

	// A single canned-text provider stands in for the spec's consumed LLM provider
	// interface (spec §6 "LLM provider interface (consumed)") until a real
	// provider is wired in by the embedding application; Provider is an
	// interface agentcore's caller can substitute freely.
	provider := llmprovider.Provider(defaultProvider())

	agents := make(map[string]*agent.Agent, len(cfg.Agents))
	for id, a := range cfg.Agents {
		agCfg := a.ToAgentConfig(id)
		store := memory.NewStore(cfg.Memory.ToMemoryConfig(), metrics)
		scoped := scope.New(id)
		activator := skill.NewActivator(skills, tools, b)

		coordinator := delegate.New(delegate.Config{
			BaseAgentConfig: agCfg,
			Provider:        provider,
			Tools:           tools,
			Executor:        executor,
			Skills:          skills,
			Bus:             b,
			Tokens:          tokens,
			Budget:          sharedBudget,
			Memory:          cfg.Memory.ToMemoryConfig(),
			Metrics:         metrics,
			Logger:          logger,
		})

		agents[id] = agent.New(
			agCfg, provider, store, scoped, tools, executor, skills,
			activator, b, tokens, sharedBudget, coordinator, logger,
		)
	}

	return &wiredNode{bus: b, skills: skills, agents: agents}, nil
}

func firstAgentModel(cfg *config.Config) string {
	for _, a := range cfg.Agents {
		if a.Model != "" {
			return a.Model
		}
	}
	return "gpt-4o-mini"
}

// defaultBudgetTokens is the fleet-wide allowance used when no agent sets
// budget_tokens explicitly, large enough not to trip BudgetExceeded during
// ordinary single-node operation.
const defaultBudgetTokens = 1_000_000

// totalBudget sums every configured agent's budget_tokens (spec §4.10 step 2:
// one shared Budget counter spans a whole delegation tree), falling back to
// defaultBudgetTokens when nothing is configured.
func totalBudget(cfg *config.Config) int64 {
	var total int64
	for _, a := range cfg.Agents {
		total += a.BudgetTokens
	}
	if total <= 0 {
		return defaultBudgetTokens
	}
	return total
}

// defaultProvider returns a canned provider that answers every call with a
// fixed text response, so a freshly started node still serves requests
// without any external LLM credentials configured. Real deployments wire
// their own llmprovider.Provider into buildNode instead of relying on this
// placeholder.
func defaultProvider() *llmprovider.Fake {
	return &llmprovider.Fake{Responses: []llmprovider.FakeResponse{
		{Chunks: []llmprovider.Chunk{
			{Kind: llmprovider.ChunkText, TextDelta: "no LLM provider configured"},
			{Kind: llmprovider.ChunkFinish, FinishReason: "stop"},
		}},
	}}
}

func main() {
	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("agentcore"),
		kong.Description("agentcore - long-horizon LLM agent core"),
		kong.UsageOnError(),
	)
	err := kctx.Run(&cli)
	kctx.FatalIfErrorf(err)
}
