package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// projectFilenames are the accepted project-scope config filenames,
// checked in order at every directory while walking upward.
var projectFilenames = []string{
	"kestrel.json",
	".kestrel.json",
	filepath.Join(".kestrel", "kestrel.json"),
}

// Loader handles configuration loading and scope merging
type Loader struct {
	globalPath string
	workingDir string
}

// NewLoader creates a new config loader. An empty globalPath selects the
// per-user default location; an empty workingDir disables project discovery.
func NewLoader(globalPath, workingDir string) *Loader {
	return &Loader{
		globalPath: globalPath,
		workingDir: workingDir,
	}
}

// Load reads the global and project scopes, merges them and validates
// the result. Both scopes are optional; defaults fill the gaps.
func (l *Loader) Load() (*Config, error) {
	globalPath, err := l.resolveGlobalPath()
	if err != nil {
		return nil, err
	}

	global := DefaultConfig()
	if _, err := os.Stat(globalPath); err == nil {
		fileCfg, fileKeys, err := readConfigFile(globalPath)
		if err != nil {
			return nil, err
		}
		global = Merge(DefaultConfig(), fileCfg, fileKeys)
	}

	var project *Config
	var projectKeys KeySet
	projectPath := l.DiscoverProjectConfig()
	if projectPath != "" {
		project, projectKeys, err = readConfigFile(projectPath)
		if err != nil {
			return nil, err
		}
	}

	cfg := Merge(global, project, projectKeys)

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".kestrel")
	}
	if cfg.Logging.File == "" && cfg.DataDir != "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "kestrel.log")
	}
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = l.workingDir
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Paths returns the config file paths currently in effect, for watching.
func (l *Loader) Paths() []string {
	paths := []string{}
	if globalPath, err := l.resolveGlobalPath(); err == nil {
		if _, err := os.Stat(globalPath); err == nil {
			paths = append(paths, globalPath)
		}
	}
	if projectPath := l.DiscoverProjectConfig(); projectPath != "" {
		paths = append(paths, projectPath)
	}
	return paths
}

// DiscoverProjectConfig walks upward from the working directory through the
// accepted filenames to the filesystem root and returns the first match.
func (l *Loader) DiscoverProjectConfig() string {
	if l.workingDir == "" {
		return ""
	}

	dir, err := filepath.Abs(l.workingDir)
	if err != nil {
		return ""
	}

	for {
		for _, name := range projectFilenames {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func (l *Loader) resolveGlobalPath() (string, error) {
	if l.globalPath != "" {
		return l.globalPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".kestrel", "kestrel.json"), nil
}

// readConfigFile parses one scope and records which keys the file set,
// so the merge can tell an explicit zero from an absent key.
func readConfigFile(path string) (*Config, KeySet, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetEnvPrefix("KESTREL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, &ConfigurationError{Path: path, Reason: err.Error()}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, &ConfigurationError{Path: path, Reason: fmt.Sprintf("failed to unmarshal: %v", err)}
	}

	keys := make(KeySet)
	for _, key := range v.AllKeys() {
		keys[key] = true
	}

	return cfg, keys, nil
}

// Save writes the configuration to the global scope path.
func (l *Loader) Save(cfg *Config) error {
	globalPath, err := l.resolveGlobalPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(globalPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(globalPath)
	v.SetConfigType("json")

	v.Set("version", cfg.Version)
	v.Set("default_provider", cfg.DefaultProvider)
	v.Set("default_model", cfg.DefaultModel)
	v.Set("max_iterations", cfg.MaxIterations)
	v.Set("auto_approve", cfg.AutoApprove)
	v.Set("permissions", cfg.Permissions)
	v.Set("require_approval", cfg.RequireApproval)
	v.Set("mcp_servers", cfg.MCPServers)
	v.Set("providers", cfg.Providers)
	v.Set("logging", cfg.Logging)
	v.Set("data_dir", cfg.DataDir)
	v.Set("workspace_root", cfg.WorkspaceRoot)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
