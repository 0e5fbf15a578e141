package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMerge_PermissionListsUnion tests that permission lists union across scopes
func TestMerge_PermissionListsUnion(t *testing.T) {
	global := DefaultConfig()
	global.Permissions = PermissionsConfig{
		Read: RuleSetConfig{
			Allow: []string{"**"},
			Deny:  []string{"**/.env*"},
		},
	}

	project := &Config{
		Permissions: PermissionsConfig{
			Read: RuleSetConfig{
				Deny: []string{"secrets/**"},
			},
		},
	}

	merged := Merge(global, project, nil)

	assert.Equal(t, []string{"**"}, merged.Permissions.Read.Allow)
	assert.ElementsMatch(t, []string{"**/.env*", "secrets/**"}, merged.Permissions.Read.Deny)
}

// TestMerge_ScalarsProjectOverridesGlobal tests project-overrides-global for scalar keys
func TestMerge_ScalarsProjectOverridesGlobal(t *testing.T) {
	global := DefaultConfig()
	global.DefaultProvider = "anthropic"
	global.DefaultModel = "claude-sonnet-4-20250514"
	global.MaxIterations = 24

	project := &Config{
		DefaultProvider: "openai",
		MaxIterations:   5,
	}

	merged := Merge(global, project, nil)

	assert.Equal(t, "openai", merged.DefaultProvider)
	assert.Equal(t, 5, merged.MaxIterations)
	// Untouched keys keep the global value
	assert.Equal(t, "claude-sonnet-4-20250514", merged.DefaultModel)
}

// TestMerge_NonPermissionArraysReplaceWholesale tests wholesale replacement for non-permission arrays
func TestMerge_NonPermissionArraysReplaceWholesale(t *testing.T) {
	global := DefaultConfig()
	global.RequireApproval = []string{"execute", "write"}

	project := &Config{
		RequireApproval: []string{"shell_execute"},
	}

	merged := Merge(global, project, nil)

	assert.Equal(t, []string{"shell_execute"}, merged.RequireApproval)
}

// TestMerge_NilProject tests that a missing project scope keeps the global config
func TestMerge_NilProject(t *testing.T) {
	global := DefaultConfig()
	global.DefaultModel = "gpt-4o"

	merged := Merge(global, nil, nil)

	assert.Equal(t, "gpt-4o", merged.DefaultModel)
}

// TestMerge_ExplicitZeroValuesOverride tests explicitly-set zero values reset the global scope
func TestMerge_ExplicitZeroValuesOverride(t *testing.T) {
	global := DefaultConfig()
	global.AutoApprove = true
	global.MaxIterations = 50
	global.RequireApproval = []string{"execute", "write"}

	project := &Config{}
	keys := KeySet{"auto_approve": true, "max_iterations": true, "require_approval": true}

	merged := Merge(global, project, keys)

	assert.False(t, merged.AutoApprove)
	assert.Equal(t, DefaultConfig().MaxIterations, merged.MaxIterations)
	assert.Empty(t, merged.RequireApproval)
}

// TestMerge_AbsentKeysInheritGlobal tests keys the project never set keep the global value
func TestMerge_AbsentKeysInheritGlobal(t *testing.T) {
	global := DefaultConfig()
	global.AutoApprove = true
	global.MaxIterations = 50
	global.RequireApproval = []string{"execute"}

	merged := Merge(global, &Config{}, nil)

	assert.True(t, merged.AutoApprove)
	assert.Equal(t, 50, merged.MaxIterations)
	assert.Equal(t, []string{"execute"}, merged.RequireApproval)
}

// TestValidate_UnknownSchemaVersion tests that an unknown version is fatal
func TestValidate_UnknownSchemaVersion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Version = 99

	err := Validate(cfg)
	assert.Error(t, err)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "schema version")
}

// TestValidate_MalformedPattern tests that a broken glob fails validation
func TestValidate_MalformedPattern(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Permissions.Read.Deny = append(cfg.Permissions.Read.Deny, "[unterminated")

	err := Validate(cfg)
	assert.Error(t, err)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

// TestValidate_EnabledMCPServerNeedsCommand tests enabled servers require a command
func TestValidate_EnabledMCPServerNeedsCommand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MCPServers = []MCPServerConfig{{Name: "files", Enabled: true}}

	err := Validate(cfg)
	assert.Error(t, err)
}

// TestValidate_Defaults tests the default config passes validation
func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}
