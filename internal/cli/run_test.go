package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/kestrel/internal/config"
	"github.com/harun/kestrel/pkg/agent"
)

// TestPermissionRules_Conversion tests config rule sets map onto engine rules
func TestPermissionRules_Conversion(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Permissions.Read.Allow = []string{"src/**"}
	cfg.Permissions.Read.Deny = []string{"**/.env*"}
	cfg.RequireApproval = []string{"execute", "shell_execute"}
	cfg.WorkspaceRoot = t.TempDir()

	rules := permissionRules(cfg)

	assert.Equal(t, []string{"src/**"}, rules.Read.Allow)
	assert.Equal(t, []string{"**/.env*"}, rules.Read.Deny)
	assert.Equal(t, []string{"execute", "shell_execute"}, rules.RequireApproval)
	assert.Equal(t, cfg.WorkspaceRoot, rules.Root)
}

// TestBuildRunConfig_FlagsOverrideConfig tests flag precedence over config defaults
func TestBuildRunConfig_FlagsOverrideConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DefaultProvider = "anthropic"
	cfg.DefaultModel = "claude-sonnet-4-20250514"
	cfg.MaxIterations = 24

	runProvider = "openai"
	runModel = "gpt-4o"
	runMaxTurns = 7
	runMode = string(agent.ModeLocalOnly)
	defer func() {
		runProvider, runModel, runMaxTurns, runMode = "", "", 0, string(agent.ModeHybrid)
	}()

	runCfg := buildRunConfig(cfg)

	assert.Equal(t, "openai", runCfg.Provider)
	assert.Equal(t, "gpt-4o", runCfg.Model)
	assert.Equal(t, 7, runCfg.MaxTurns)
	assert.Equal(t, agent.ModeLocalOnly, runCfg.Mode)
}

// TestBuildRunConfig_ConfigDefaults tests config values flow through without flags
func TestBuildRunConfig_ConfigDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxIterations = 12

	runCfg := buildRunConfig(cfg)

	assert.Equal(t, cfg.DefaultProvider, runCfg.Provider)
	assert.Equal(t, cfg.DefaultModel, runCfg.Model)
	assert.Equal(t, 12, runCfg.MaxTurns)
}

// TestCredentialsByProvider_EnvOverrides tests environment keys beat config keys
func TestCredentialsByProvider_EnvOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers = []config.ProviderProfile{
		{Provider: "anthropic", APIKey: "from-config"},
		{Provider: "openai", APIKey: "openai-config"},
	}

	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	creds := credentialsByProvider(cfg)

	require.Contains(t, creds, "anthropic")
	assert.Equal(t, "from-env", creds["anthropic"])
	assert.Equal(t, "openai-config", creds["openai"])
}
