package config

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

var validProviders = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"gemini":    true,
}

var validTransports = map[string]bool{
	"stdio": true,
}

// Validate checks a merged configuration. Any failure is a
// ConfigurationError and aborts before a run can start.
func Validate(cfg *Config) error {
	if cfg == nil {
		return &ConfigurationError{Reason: "config is nil"}
	}

	if cfg.Version != SchemaVersion {
		return &ConfigurationError{
			Reason: fmt.Sprintf("unknown schema version %d (supported: %d)", cfg.Version, SchemaVersion),
		}
	}

	if cfg.DefaultProvider != "" && !validProviders[cfg.DefaultProvider] {
		return &ConfigurationError{
			Reason: fmt.Sprintf("unknown default provider %q", cfg.DefaultProvider),
		}
	}

	if cfg.MaxIterations < 0 {
		return &ConfigurationError{Reason: "max_iterations cannot be negative"}
	}

	ruleSets := map[string]RuleSetConfig{
		"read":    cfg.Permissions.Read,
		"write":   cfg.Permissions.Write,
		"execute": cfg.Permissions.Execute,
	}
	for kind, rs := range ruleSets {
		for _, pattern := range append(append([]string{}, rs.Allow...), rs.Deny...) {
			if pattern == "" {
				return &ConfigurationError{
					Reason: fmt.Sprintf("empty pattern in %s rules", kind),
				}
			}
			if !doublestar.ValidatePattern(pattern) {
				return &ConfigurationError{
					Reason: fmt.Sprintf("malformed %s rule pattern %q", kind, pattern),
				}
			}
		}
	}

	for _, srv := range cfg.MCPServers {
		if srv.Name == "" {
			return &ConfigurationError{Reason: "mcp server declared without a name"}
		}
		transport := srv.Transport
		if transport == "" {
			transport = "stdio"
		}
		if !validTransports[transport] {
			return &ConfigurationError{
				Reason: fmt.Sprintf("mcp server %q has unsupported transport %q", srv.Name, srv.Transport),
			}
		}
		if srv.Enabled && srv.Command == "" {
			return &ConfigurationError{
				Reason: fmt.Sprintf("mcp server %q is enabled without a command", srv.Name),
			}
		}
	}

	for _, profile := range cfg.Providers {
		if !validProviders[profile.Provider] {
			return &ConfigurationError{
				Reason: fmt.Sprintf("unknown provider %q in provider profiles", profile.Provider),
			}
		}
	}

	return nil
}
