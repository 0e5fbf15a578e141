package toolexecutor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, rules PermissionRules) *PermissionEngine {
	t.Helper()
	engine, err := NewPermissionEngine(rules)
	require.NoError(t, err)
	return engine
}

// TestPermissionEngine_Evaluate_DenyWins tests that a pattern in both lists denies
func TestPermissionEngine_Evaluate_DenyWins(t *testing.T) {
	root := t.TempDir()
	engine := newTestEngine(t, PermissionRules{
		Read: RuleSet{
			Allow: []string{"**"},
			Deny:  []string{"**/*.pem"},
		},
		Root: root,
	})

	decision := engine.Evaluate(ActionRead, "certs/server.pem")
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "**/*.pem")

	// Same pattern in both lists still denies
	engine = newTestEngine(t, PermissionRules{
		Read: RuleSet{
			Allow: []string{"**/*.pem"},
			Deny:  []string{"**/*.pem"},
		},
		Root: root,
	})
	decision = engine.Evaluate(ActionRead, "certs/server.pem")
	assert.False(t, decision.Allowed)
}

// TestPermissionEngine_Evaluate_EmptyAllowDeniesAll tests the empty-allow edge case
func TestPermissionEngine_Evaluate_EmptyAllowDeniesAll(t *testing.T) {
	engine := newTestEngine(t, PermissionRules{
		Write: RuleSet{},
		Root:  t.TempDir(),
	})

	decision := engine.Evaluate(ActionWrite, "notes.txt")
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "no write allow rules")
}

// TestPermissionEngine_Evaluate_GlobalEnvDeny tests scenario: global deny of **/.env*
func TestPermissionEngine_Evaluate_GlobalEnvDeny(t *testing.T) {
	engine := newTestEngine(t, PermissionRules{
		Read: RuleSet{
			Allow: []string{"**"},
			Deny:  []string{"**/.env*"},
		},
		Root: t.TempDir(),
	})

	decision := engine.Evaluate(ActionRead, ".env")
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "**/.env*")

	decision = engine.Evaluate(ActionRead, "sub/dir/.env.local")
	assert.False(t, decision.Allowed)

	decision = engine.Evaluate(ActionRead, "main.go")
	assert.True(t, decision.Allowed)
}

// TestPermissionEngine_Evaluate_CommandPatterns tests full-command matching
func TestPermissionEngine_Evaluate_CommandPatterns(t *testing.T) {
	engine := newTestEngine(t, PermissionRules{
		Execute: RuleSet{
			Allow: []string{"git *", "go test*"},
			Deny:  []string{"git push *"},
		},
		RequireApproval: []string{"shell_execute"},
	})

	// "git *" allows git status
	decision := engine.Evaluate(ActionExecute, "git status")
	assert.True(t, decision.Allowed)
	// Action-kind approval not configured for execute itself
	assert.False(t, decision.RequiresApproval)
	// The named tool is in the approval set
	assert.True(t, engine.ApprovalRequired("shell_execute"))

	decision = engine.Evaluate(ActionExecute, "git log src/main.go")
	assert.True(t, decision.Allowed, "wildcard must cross path separators in command targets")

	decision = engine.Evaluate(ActionExecute, "git push origin main")
	assert.False(t, decision.Allowed)

	decision = engine.Evaluate(ActionExecute, "rm -rf /")
	assert.False(t, decision.Allowed)
}

// TestPermissionEngine_Evaluate_ApprovalByKind tests kind-level approval flags
func TestPermissionEngine_Evaluate_ApprovalByKind(t *testing.T) {
	engine := newTestEngine(t, PermissionRules{
		Execute: RuleSet{
			Allow: []string{"**"},
		},
		RequireApproval: []string{"execute"},
	})

	decision := engine.Evaluate(ActionExecute, "ls -la")
	assert.True(t, decision.Allowed)
	assert.True(t, decision.RequiresApproval)
}

// TestPermissionEngine_Evaluate_RootEscapeDenied tests the sandbox-escape invariant
func TestPermissionEngine_Evaluate_RootEscapeDenied(t *testing.T) {
	root := t.TempDir()
	engine := newTestEngine(t, PermissionRules{
		Read: RuleSet{
			Allow: []string{"**"},
		},
		Root: root,
	})

	for _, target := range []string{
		"../outside.txt",
		"../../etc/passwd",
		"nested/../../escape.txt",
		"/etc/passwd",
	} {
		decision := engine.Evaluate(ActionRead, target)
		assert.False(t, decision.Allowed, "target %q must be denied", target)
		assert.Contains(t, decision.Reason, "outside permitted root")
	}

	// Dot-dot segments that stay inside the root are fine
	decision := engine.Evaluate(ActionRead, "nested/../inside.txt")
	assert.True(t, decision.Allowed)
}

// TestPermissionEngine_Evaluate_SymlinkEscapeDenied tests symlinks cannot leave the root
func TestPermissionEngine_Evaluate_SymlinkEscapeDenied(t *testing.T) {
	outside := t.TempDir()
	root := t.TempDir()

	link := filepath.Join(root, "leak")
	require.NoError(t, os.Symlink(outside, link))

	engine := newTestEngine(t, PermissionRules{
		Read: RuleSet{
			Allow: []string{"**"},
		},
		Root: root,
	})

	decision := engine.Evaluate(ActionRead, "leak/secret.txt")
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "outside permitted root")
}

// TestPermissionEngine_Evaluate_Deterministic tests identical inputs give identical outputs
func TestPermissionEngine_Evaluate_Deterministic(t *testing.T) {
	engine := newTestEngine(t, PermissionRules{
		Read: RuleSet{
			Allow: []string{"src/**", "docs/*"},
			Deny:  []string{"**/secret*"},
		},
		Root: t.TempDir(),
	})

	first := engine.Evaluate(ActionRead, "src/a/b/c.go")
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, engine.Evaluate(ActionRead, "src/a/b/c.go"))
	}
}

// TestPermissionEngine_Swap_Atomic tests that reload swaps the whole rule set
func TestPermissionEngine_Swap_Atomic(t *testing.T) {
	root := t.TempDir()
	engine := newTestEngine(t, PermissionRules{
		Read: RuleSet{Allow: []string{"**"}},
		Root: root,
	})

	require.True(t, engine.Evaluate(ActionRead, "anything.txt").Allowed)

	require.NoError(t, engine.Swap(PermissionRules{
		Read: RuleSet{Allow: []string{"docs/**"}},
		Root: root,
	}))

	assert.False(t, engine.Evaluate(ActionRead, "anything.txt").Allowed)
	assert.True(t, engine.Evaluate(ActionRead, "docs/readme.md").Allowed)
}

// TestPermissionEngine_Swap_InvalidKeepsCurrent tests a bad reload leaves rules intact
func TestPermissionEngine_Swap_InvalidKeepsCurrent(t *testing.T) {
	engine := newTestEngine(t, PermissionRules{
		Read: RuleSet{Allow: []string{"**"}},
		Root: t.TempDir(),
	})

	err := engine.Swap(PermissionRules{
		Read: RuleSet{Allow: []string{"[unterminated"}},
	})
	require.Error(t, err)

	assert.True(t, engine.Evaluate(ActionRead, "still-works.txt").Allowed)
}

// TestPermissionEngine_Evaluate_SingleStarScoped tests single wildcard stays in one segment
func TestPermissionEngine_Evaluate_SingleStarScoped(t *testing.T) {
	engine := newTestEngine(t, PermissionRules{
		Read: RuleSet{
			Allow: []string{"docs/*"},
		},
		Root: t.TempDir(),
	})

	assert.True(t, engine.Evaluate(ActionRead, "docs/readme.md").Allowed)
	assert.False(t, engine.Evaluate(ActionRead, "docs/sub/readme.md").Allowed)
}
