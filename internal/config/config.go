package config

import (
	"fmt"
)

// SchemaVersion is the config schema version this build understands.
const SchemaVersion = 1

// Config represents the merged Kestrel configuration
type Config struct {
	// Schema version, must match SchemaVersion
	Version int `json:"version" mapstructure:"version"`

	// Default provider: anthropic, openai, gemini
	DefaultProvider string `json:"default_provider" mapstructure:"default_provider"`

	// Default model id for the default provider
	DefaultModel string `json:"default_model" mapstructure:"default_model"`

	// Maximum provider turns per run
	MaxIterations int `json:"max_iterations" mapstructure:"max_iterations"`

	// Approve destructive actions without prompting
	AutoApprove bool `json:"auto_approve" mapstructure:"auto_approve"`

	// Per-kind permission rule sets
	Permissions PermissionsConfig `json:"permissions" mapstructure:"permissions"`

	// Action kinds or tool names that always require operator approval
	RequireApproval []string `json:"require_approval" mapstructure:"require_approval"`

	// Remote tool server declarations
	MCPServers []MCPServerConfig `json:"mcp_servers" mapstructure:"mcp_servers"`

	// Provider credentials
	Providers []ProviderProfile `json:"providers" mapstructure:"providers"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Workspace root all file access is confined to
	WorkspaceRoot string `json:"workspace_root" mapstructure:"workspace_root"`
}

// RuleSetConfig holds allow and deny glob lists for one action kind
type RuleSetConfig struct {
	Allow []string `json:"allow" mapstructure:"allow"`
	Deny  []string `json:"deny" mapstructure:"deny"`
}

// PermissionsConfig holds the three independent rule sets
type PermissionsConfig struct {
	Read    RuleSetConfig `json:"read" mapstructure:"read"`
	Write   RuleSetConfig `json:"write" mapstructure:"write"`
	Execute RuleSetConfig `json:"execute" mapstructure:"execute"`
}

// MCPServerConfig declares a remote tool server
type MCPServerConfig struct {
	Name      string   `json:"name" mapstructure:"name"`
	Transport string   `json:"transport" mapstructure:"transport"` // stdio
	Command   string   `json:"command" mapstructure:"command"`
	Args      []string `json:"args" mapstructure:"args"`
	Enabled   bool     `json:"enabled" mapstructure:"enabled"`
}

// ProviderProfile represents credentials for one LLM provider
type ProviderProfile struct {
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai, gemini
	APIKey   string `json:"api_key" mapstructure:"api_key"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// ConfigurationError reports a malformed or unsupported configuration.
// It is fatal at load time; a run never starts with one pending.
type ConfigurationError struct {
	Path   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Path, e.Reason)
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Version:         SchemaVersion,
		DefaultProvider: "anthropic",
		DefaultModel:    "claude-sonnet-4-20250514",
		MaxIterations:   24,
		Permissions: PermissionsConfig{
			Read: RuleSetConfig{
				Allow: []string{"**"},
				Deny:  []string{"**/.env*", "**/id_rsa*", "**/*.pem"},
			},
			Write: RuleSetConfig{
				Allow: []string{"**"},
				Deny:  []string{"**/.git/**"},
			},
			Execute: RuleSetConfig{
				Allow: []string{"git *", "ls *", "cat *", "go *", "grep *"},
				Deny:  []string{"rm -rf /*", "sudo *"},
			},
		},
		RequireApproval: []string{"execute"},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// KeySet records which keys a config file set explicitly, so explicit
// zero values can override the lower scope. Keys follow the file's
// dotted form ("auto_approve", "permissions.read.allow").
type KeySet map[string]bool

// Has reports whether the key was set explicitly. A nil set reports
// nothing as explicit.
func (k KeySet) Has(name string) bool {
	return k[name]
}

// Merge overlays a project-scope config on a global-scope config.
// The two permission rule sets are unioned; every other key is
// project-overrides-global, with non-permission arrays replaced
// wholesale. projectKeys marks keys the project scope set explicitly:
// an explicit false or zero overrides the global value instead of
// inheriting it.
func Merge(global, project *Config, projectKeys KeySet) *Config {
	if global == nil && project == nil {
		return DefaultConfig()
	}
	if project == nil {
		out := *global
		return &out
	}
	if global == nil {
		out := *project
		return &out
	}

	out := *global

	if project.Version != 0 {
		out.Version = project.Version
	}
	if project.DefaultProvider != "" {
		out.DefaultProvider = project.DefaultProvider
	}
	if project.DefaultModel != "" {
		out.DefaultModel = project.DefaultModel
	}
	if project.MaxIterations != 0 {
		out.MaxIterations = project.MaxIterations
	} else if projectKeys.Has("max_iterations") {
		// An explicit zero resets the turn budget to the default.
		out.MaxIterations = DefaultConfig().MaxIterations
	}
	if projectKeys.Has("auto_approve") {
		out.AutoApprove = project.AutoApprove
	} else if project.AutoApprove {
		out.AutoApprove = true
	}
	if project.DataDir != "" {
		out.DataDir = project.DataDir
	}
	if project.WorkspaceRoot != "" {
		out.WorkspaceRoot = project.WorkspaceRoot
	}
	if project.Logging.Level != "" || project.Logging.File != "" {
		out.Logging = project.Logging
	}

	// Non-permission arrays replace wholesale; an explicit empty list
	// clears the inherited one.
	if len(project.RequireApproval) > 0 || projectKeys.Has("require_approval") {
		out.RequireApproval = append([]string(nil), project.RequireApproval...)
	}
	if len(project.MCPServers) > 0 {
		out.MCPServers = append([]MCPServerConfig(nil), project.MCPServers...)
	}
	if len(project.Providers) > 0 {
		out.Providers = append([]ProviderProfile(nil), project.Providers...)
	}

	// Permission lists union, never replace
	out.Permissions = PermissionsConfig{
		Read:    mergeRuleSet(global.Permissions.Read, project.Permissions.Read),
		Write:   mergeRuleSet(global.Permissions.Write, project.Permissions.Write),
		Execute: mergeRuleSet(global.Permissions.Execute, project.Permissions.Execute),
	}

	return &out
}

func mergeRuleSet(global, project RuleSetConfig) RuleSetConfig {
	return RuleSetConfig{
		Allow: unionPatterns(global.Allow, project.Allow),
		Deny:  unionPatterns(global.Deny, project.Deny),
	}
}

func unionPatterns(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, p := range list {
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
