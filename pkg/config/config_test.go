package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentConfig_SetDefaultsFillsSpecDefaults(t *testing.T) {
	a := &AgentConfig{}
	a.SetDefaults()

	assert.Equal(t, 10, a.MaxIterations)
	assert.Equal(t, 5, a.MaxRecursionDepth)
	assert.Equal(t, 8000, a.MaxContextTokens)
	assert.Equal(t, 0.10, a.OutputReserveRatio)
	assert.Equal(t, "hybrid", a.SkillActivationMode)
}

func TestAgentConfig_ValidateRejectsNegativeLimits(t *testing.T) {
	a := &AgentConfig{MaxIterations: -1}
	assert.Error(t, a.Validate())

	a = &AgentConfig{MaxRecursionDepth: -1}
	assert.Error(t, a.Validate())

	a = &AgentConfig{OutputReserveRatio: 1.5}
	assert.Error(t, a.Validate())

	a = &AgentConfig{SkillActivationMode: "bogus"}
	assert.Error(t, a.Validate())
}

func TestAgentConfig_ToAgentConfigUsesCallerSuppliedID(t *testing.T) {
	a := &AgentConfig{Model: "gpt-4o-mini", MaxIterations: 3}
	cfg := a.ToAgentConfig("agent-7")

	assert.Equal(t, "agent-7", cfg.AgentID)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, 3, cfg.MaxIterations)
	assert.Equal(t, "gpt-4o-mini", cfg.Orchestrator.Model, "orchestrator model must follow the agent's model")
}

func TestConfig_SetDefaultsCreatesAnAssistantWhenNoAgentsConfigured(t *testing.T) {
	c := &Config{}
	c.SetDefaults()

	require.Contains(t, c.Agents, "assistant")
	assert.Equal(t, 10, c.Agents["assistant"].MaxIterations)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "info", c.Logger.Level)
}

func TestConfig_ValidateAggregatesPerAgentErrors(t *testing.T) {
	c := &Config{Agents: map[string]*AgentConfig{
		"bad": {MaxIterations: -1},
	}}
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agents.bad")
}

func TestExpandEnvVars_SupportsBraceDollarAndDefault(t *testing.T) {
	t.Setenv("AGENTCORE_TEST_VAR", "resolved")

	input := map[string]any{
		"a": "${AGENTCORE_TEST_VAR}",
		"b": "$AGENTCORE_TEST_VAR",
		"c": "${AGENTCORE_TEST_MISSING:-fallback}",
		"nested": map[string]any{
			"d": []any{"${AGENTCORE_TEST_VAR}"},
		},
	}
	out := expandEnvVars(input)

	assert.Equal(t, "resolved", out["a"])
	assert.Equal(t, "resolved", out["b"])
	assert.Equal(t, "fallback", out["c"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, []any{"resolved"}, nested["d"])
}

func TestLoad_ParsesDecodesExpandsDefaultsAndValidates(t *testing.T) {
	t.Setenv("AGENTCORE_TEST_MODEL", "gpt-4o-mini")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
name: test-config
agents:
  researcher:
    model: ${AGENTCORE_TEST_MODEL}
    max_iterations: 7
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Contains(t, cfg.Agents, "researcher")
	assert.Equal(t, "gpt-4o-mini", cfg.Agents["researcher"].Model)
	assert.Equal(t, 7, cfg.Agents["researcher"].MaxIterations)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv_MissingFileIsNotAnError(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestLoggerConfig_NewLoggerRejectsUnknownLevel(t *testing.T) {
	c := LoggerConfig{Level: "not-a-level"}
	_, err := c.NewLogger(os.Stderr)
	assert.Error(t, err)
}

func TestLoggerConfig_NewLoggerBuildsTextAndJSONHandlers(t *testing.T) {
	text, err := LoggerConfig{Level: "info", Format: "simple"}.NewLogger(os.Stderr)
	require.NoError(t, err)
	assert.NotNil(t, text)

	jsonLogger, err := LoggerConfig{Level: "debug", Format: "json"}.NewLogger(os.Stderr)
	require.NoError(t, err)
	assert.NotNil(t, jsonLogger)
}
