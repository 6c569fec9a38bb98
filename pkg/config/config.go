// Package config decodes the YAML configuration surface spec §8 names
// (max_iterations, max_recursion_depth, max_context_tokens,
// output_reserve_ratio, max_l1_size/max_l2_size/max_l3_size,
// importance_promote_threshold, tool_concurrency_limit, llm_timeout_s,
// tool_timeout_s, bus_history_cap, skill_activation_mode) into the typed
// Config structs each C1-C11 package already exposes, following the
// teacher's pkg/config.Config/SetDefaults/Validate convention
// (pkg/config/config.go) generalized from Hector's agents/llms/tools
// registry shape to this core's single-binary component wiring.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fractalminds/agentcore/pkg/agent"
	"github.com/fractalminds/agentcore/pkg/bus"
	contextpkg "github.com/fractalminds/agentcore/pkg/context"
	"github.com/fractalminds/agentcore/pkg/memory"
	"github.com/fractalminds/agentcore/pkg/tool"
)

// Config is the root configuration structure loaded from YAML.
type Config struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`

	// Agents defines every agent node this binary can instantiate, keyed by
	// agent_id. Fractal composition (C10) recurses the same node
	// configuration at every depth, so one entry covers a whole subtree.
	Agents map[string]*AgentConfig `yaml:"agents,omitempty"`

	Bus      BusConfig      `yaml:"bus,omitempty"`
	Memory   MemoryConfig   `yaml:"memory,omitempty"`
	Tool     ToolConfig     `yaml:"tool,omitempty"`
	Skill    SkillConfig    `yaml:"skill,omitempty"`
	Server   ServerConfig   `yaml:"server,omitempty"`
	Logger   LoggerConfig   `yaml:"logger,omitempty"`
	Observability ObservabilityConfig `yaml:"observability,omitempty"`
}

// AgentConfig is one node's YAML-facing tunables, mirroring agent.Config and
// context.OrchestratorConfig (spec's "Agent Configuration" data-model entry
// and §8 config surface).
type AgentConfig struct {
	Model         string `yaml:"model,omitempty"`
	SystemPrompt  string `yaml:"system_prompt,omitempty"`
	AutonomyNotes string `yaml:"autonomy_notes,omitempty"`

	MaxIterations        int     `yaml:"max_iterations,omitempty"`
	MaxRetries           int     `yaml:"max_retries,omitempty"`
	IterationDeadlineS   int     `yaml:"llm_timeout_s,omitempty"`
	MaxRecursionDepth    int     `yaml:"max_recursion_depth,omitempty"`
	RequireDone          bool    `yaml:"require_done,omitempty"`
	SelfEvaluate         bool    `yaml:"self_evaluate,omitempty"`
	MaxContextTokens     int     `yaml:"max_context_tokens,omitempty"`
	OutputReserveRatio   float64 `yaml:"output_reserve_ratio,omitempty"`

	// SkillActivationMode is one of hybrid|explicit|auto (spec's Agent
	// Configuration entry). It is validated but not passed to
	// ToAgentConfig; the Activator always uses keyword-or-explicit
	// activation.
	SkillActivationMode string `yaml:"skill_activation_mode,omitempty"`

	EnabledSkills  []string `yaml:"enabled_skills,omitempty"`
	DisabledSkills []string `yaml:"disabled_skills,omitempty"`
	ExtraTools     []string `yaml:"extra_tools,omitempty"`
	DisabledTools  []string `yaml:"disabled_tools,omitempty"`

	BudgetTokens int64 `yaml:"budget_tokens,omitempty"`
}

// SetDefaults mirrors agent.Config.setDefaults so a YAML-absent field never
// surprises the caller with a zero value once ToAgentConfig runs.
func (c *AgentConfig) SetDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	if c.MaxRecursionDepth <= 0 {
		c.MaxRecursionDepth = 5
	}
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = 8000
	}
	if c.OutputReserveRatio <= 0 {
		c.OutputReserveRatio = 0.10
	}
	if c.SkillActivationMode == "" {
		c.SkillActivationMode = "hybrid"
	}
}

// Validate rejects configurations agent.Config/OrchestratorConfig would
// otherwise silently clamp or that would raise a programmer-error class
// failure deeper in the stack (spec §7 "Programmer errors ... negative
// limits").
func (c *AgentConfig) Validate() error {
	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must not be negative")
	}
	if c.MaxRecursionDepth < 0 {
		return fmt.Errorf("max_recursion_depth must not be negative")
	}
	if c.OutputReserveRatio < 0 || c.OutputReserveRatio >= 1 {
		return fmt.Errorf("output_reserve_ratio must be in [0, 1)")
	}
	switch c.SkillActivationMode {
	case "", "hybrid", "explicit", "auto":
	default:
		return fmt.Errorf("skill_activation_mode %q is not one of hybrid|explicit|auto", c.SkillActivationMode)
	}
	return nil
}

// ToAgentConfig builds the agent.Config this node's Agent is constructed
// with. agentID is supplied by the caller (the YAML map key), not read from
// YAML, so renaming a map entry can never desync AgentID from its key.
func (c *AgentConfig) ToAgentConfig(agentID string) agent.Config {
	return agent.Config{
		AgentID:           agentID,
		Model:             c.Model,
		SystemPrompt:      c.SystemPrompt,
		AutonomyNotes:     c.AutonomyNotes,
		MaxIterations:     c.MaxIterations,
		MaxRetries:        c.MaxRetries,
		IterationDeadline: time.Duration(c.IterationDeadlineS) * time.Second,
		MaxRecursionDepth: c.MaxRecursionDepth,
		RequireDone:       c.RequireDone,
		SelfEvaluate:      c.SelfEvaluate,
		Orchestrator: contextpkg.OrchestratorConfig{
			Model:              c.Model,
			MaxContextTokens:   c.MaxContextTokens,
			OutputReserveRatio: c.OutputReserveRatio,
		},
	}
}

// BusConfig mirrors bus.Config (spec §8 "bus_history_cap").
type BusConfig struct {
	HistoryCap    int `yaml:"history_cap,omitempty"`
	HighWaterMark int `yaml:"high_water_mark,omitempty"`
}

func (c BusConfig) ToBusConfig() bus.Config {
	return bus.Config{HistoryCap: c.HistoryCap, HighWaterMark: c.HighWaterMark}
}

// MemoryConfig mirrors memory.Config (spec §8 "max_l1_size/max_l2_size/
// max_l3_size, importance_promote_threshold").
type MemoryConfig struct {
	MaxL1Size          int     `yaml:"max_l1_size,omitempty"`
	MaxL2Size          int     `yaml:"max_l2_size,omitempty"`
	MaxL3Size          int     `yaml:"max_l3_size,omitempty"`
	MaxL4Size          int     `yaml:"max_l4_size,omitempty"`
	PromoteThreshold   float64 `yaml:"importance_promote_threshold,omitempty"`
	PromoteThresholdL2 float64 `yaml:"importance_promote_threshold_l2,omitempty"`
	Collection         string  `yaml:"collection,omitempty"`
}

func (c MemoryConfig) ToMemoryConfig() memory.Config {
	return memory.Config{
		MaxL1Size: c.MaxL1Size, MaxL2Size: c.MaxL2Size, MaxL3Size: c.MaxL3Size, MaxL4Size: c.MaxL4Size,
		PromoteThreshold: c.PromoteThreshold, PromoteThresholdL2: c.PromoteThresholdL2,
		Collection: c.Collection,
	}
}

// ToolConfig mirrors tool.ExecutorConfig (spec §8 "tool_concurrency_limit",
// "tool_timeout_s").
type ToolConfig struct {
	Concurrency     int `yaml:"concurrency_limit,omitempty"`
	CallTimeoutS    int `yaml:"timeout_s,omitempty"`
	OutputCap       int `yaml:"output_cap,omitempty"`
}

func (c ToolConfig) ToExecutorConfig() tool.ExecutorConfig {
	return tool.ExecutorConfig{
		Concurrency: c.Concurrency,
		CallTimeout: time.Duration(c.CallTimeoutS) * time.Second,
		OutputCap:   c.OutputCap,
	}
}

// SkillConfig points at the progressive-disclosure manifest directory (C8),
// hot-reloaded via fsnotify the way the teacher watches its config file
// (pkg/config's fsnotify.Watcher use, generalized here to skill manifests).
type SkillConfig struct {
	Dir           string `yaml:"dir,omitempty"`
	Watch         bool   `yaml:"watch,omitempty"`
	DebounceMS    int    `yaml:"debounce_ms,omitempty"`
}

// ServerConfig configures pkg/api's chi-based HTTP surface (spec §6 "Agent
// execution API").
type ServerConfig struct {
	Host            string `yaml:"host,omitempty"`
	Port            int    `yaml:"port,omitempty"`
	ReadTimeoutS    int    `yaml:"read_timeout_s,omitempty"`
	WriteTimeoutS   int    `yaml:"write_timeout_s,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeoutS <= 0 {
		c.ReadTimeoutS = 30
	}
	if c.WriteTimeoutS <= 0 {
		c.WriteTimeoutS = 0 // 0 disables the write deadline; stream_events is long-lived SSE
	}
}

func (c ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// LoggerConfig selects log level/format, following the teacher's
// cmd/hector logger flags (level, format) minus file-output support.
type LoggerConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // "simple" (text) or "json"
}

func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// ObservabilityConfig toggles Prometheus/OTel wiring (pkg/observability).
type ObservabilityConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled,omitempty"`
}

// SetDefaults fills in every section's documented default (spec §8).
func (c *Config) SetDefaults() {
	if c.Agents == nil {
		c.Agents = map[string]*AgentConfig{}
	}
	if len(c.Agents) == 0 {
		c.Agents["assistant"] = &AgentConfig{}
	}
	for _, a := range c.Agents {
		a.SetDefaults()
	}
	c.Server.SetDefaults()
	c.Logger.SetDefaults()
}

// Validate checks every section and every cross-section reference.
func (c *Config) Validate() error {
	var errs []string
	for name, a := range c.Agents {
		if err := a.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("agents.%s: %v", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// GetAgent returns the named agent's configuration.
func (c *Config) GetAgent(name string) (*AgentConfig, bool) {
	a, ok := c.Agents[name]
	return a, ok
}

// AgentNames returns every configured agent_id, for cmd/agentcore to build
// one Agent per entry at startup.
func (c *Config) AgentNames() []string {
	names := make([]string, 0, len(c.Agents))
	for name := range c.Agents {
		names = append(names, name)
	}
	return names
}
