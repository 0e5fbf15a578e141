package toolexecutor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
)

// RuleSet holds allow and deny glob patterns for one action kind.
// Path patterns are matched against the workspace-relative slash path;
// execute patterns are matched against the full command string including
// arguments, so "git *" is needed to match "git status".
type RuleSet struct {
	Allow []string `json:"allow"`
	Deny  []string `json:"deny"`
}

// PermissionRules is the input configuration for the permission engine.
type PermissionRules struct {
	Read    RuleSet `json:"read"`
	Write   RuleSet `json:"write"`
	Execute RuleSet `json:"execute"`

	// RequireApproval lists action kinds or specific tool names that
	// always require operator approval even when allowed.
	RequireApproval []string `json:"require_approval"`

	// Root is the permitted filesystem root; any path resolving outside
	// it is denied regardless of patterns.
	Root string `json:"root"`
}

// Decision is the outcome of a permission evaluation.
type Decision struct {
	Allowed          bool
	RequiresApproval bool
	Reason           string
}

// ruleSnapshot is an immutable compiled rule set. Reloads build a new
// snapshot and swap the pointer; evaluations in flight keep the one they
// started with, so no run observes a half-updated rule set.
type ruleSnapshot struct {
	kinds    map[ActionKind]RuleSet
	approval map[string]bool
	root     string
}

// PermissionEngine evaluates file and command actions against glob rule
// sets. It is safe for concurrent use; reads take no lock.
type PermissionEngine struct {
	snapshot atomic.Pointer[ruleSnapshot]
}

// NewPermissionEngine compiles the rules into the initial snapshot.
func NewPermissionEngine(rules PermissionRules) (*PermissionEngine, error) {
	snap, err := compileRules(rules)
	if err != nil {
		return nil, err
	}

	engine := &PermissionEngine{}
	engine.snapshot.Store(snap)
	return engine, nil
}

// Swap atomically replaces the compiled rule set. Invalid rules leave
// the current snapshot in place.
func (e *PermissionEngine) Swap(rules PermissionRules) error {
	snap, err := compileRules(rules)
	if err != nil {
		return err
	}

	e.snapshot.Store(snap)
	log.Info().Str("root", snap.root).Msg("Permission rules swapped")
	return nil
}

func compileRules(rules PermissionRules) (*ruleSnapshot, error) {
	kinds := map[ActionKind]RuleSet{
		ActionRead:    cloneRuleSet(rules.Read),
		ActionWrite:   cloneRuleSet(rules.Write),
		ActionExecute: cloneRuleSet(rules.Execute),
	}

	for kind, rs := range kinds {
		for _, pattern := range append(append([]string{}, rs.Allow...), rs.Deny...) {
			if pattern == "" {
				return nil, fmt.Errorf("empty pattern in %s rules", kind)
			}
			if !doublestar.ValidatePattern(pattern) {
				return nil, fmt.Errorf("malformed %s rule pattern %q", kind, pattern)
			}
		}
	}

	approval := make(map[string]bool, len(rules.RequireApproval))
	for _, name := range rules.RequireApproval {
		if name != "" {
			approval[name] = true
		}
	}

	root := rules.Root
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("invalid permission root %q: %w", root, err)
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		root = abs
	}

	return &ruleSnapshot{
		kinds:    kinds,
		approval: approval,
		root:     root,
	}, nil
}

func cloneRuleSet(rs RuleSet) RuleSet {
	return RuleSet{
		Allow: append([]string(nil), rs.Allow...),
		Deny:  append([]string(nil), rs.Deny...),
	}
}

// Evaluate checks a target against the rule set for an action kind.
// Order is fixed: deny match blocks, an allow match is required to
// proceed, then the approval set is consulted by action kind. Path
// targets are normalized first; anything escaping the permitted root is
// denied unconditionally.
func (e *PermissionEngine) Evaluate(kind ActionKind, target string) Decision {
	snap := e.snapshot.Load()
	rs, ok := snap.kinds[kind]
	if !ok {
		return Decision{Allowed: false, Reason: fmt.Sprintf("unknown action kind %q", kind)}
	}

	matchTarget := target
	match := matchPattern
	if kind == ActionRead || kind == ActionWrite {
		normalized, err := snap.normalizePath(target)
		if err != nil {
			return Decision{Allowed: false, Reason: err.Error()}
		}
		matchTarget = normalized
	} else {
		// Command patterns match the whole command string including
		// arguments; a wildcard there crosses spaces and slashes.
		match = matchCommand
	}

	// Deny overrides allow
	for _, pattern := range rs.Deny {
		if match(pattern, matchTarget) {
			return Decision{
				Allowed: false,
				Reason:  fmt.Sprintf("%s of %q denied by rule %q", kind, target, pattern),
			}
		}
	}

	// An allow match is required; an empty allow list denies everything
	// of this kind.
	if len(rs.Allow) == 0 {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("no %s allow rules configured", kind),
		}
	}

	allowed := false
	for _, pattern := range rs.Allow {
		if match(pattern, matchTarget) {
			allowed = true
			break
		}
	}
	if !allowed {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("%s of %q matches no allow rule", kind, target),
		}
	}

	return Decision{
		Allowed:          true,
		RequiresApproval: snap.approval[string(kind)],
		Reason:           fmt.Sprintf("%s of %q allowed", kind, target),
	}
}

// ApprovalRequired reports whether a specific tool name is in the
// always-require-approval set.
func (e *PermissionEngine) ApprovalRequired(toolName string) bool {
	return e.snapshot.Load().approval[toolName]
}

// normalizePath resolves a path target against the permitted root and
// returns the root-relative slash path used for pattern matching.
func (s *ruleSnapshot) normalizePath(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("path target is empty")
	}

	candidate := target
	if !filepath.IsAbs(candidate) {
		if s.root == "" {
			candidate = filepath.Clean(candidate)
			if strings.HasPrefix(candidate, "..") {
				return "", fmt.Errorf("path %q resolves outside permitted root", target)
			}
			return filepath.ToSlash(candidate), nil
		}
		candidate = filepath.Join(s.root, candidate)
	}
	candidate = filepath.Clean(candidate)
	candidate = resolveSymlinks(candidate)

	if s.root == "" {
		return filepath.ToSlash(strings.TrimPrefix(candidate, string(filepath.Separator))), nil
	}

	rel, err := filepath.Rel(s.root, candidate)
	if err != nil {
		return "", fmt.Errorf("path %q resolves outside permitted root", target)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q resolves outside permitted root", target)
	}

	return filepath.ToSlash(rel), nil
}

// resolveSymlinks evaluates symlinks on the longest existing prefix of
// the path so links cannot smuggle a target outside the root before the
// file exists.
func resolveSymlinks(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	dir, base := filepath.Split(filepath.Clean(path))
	dir = filepath.Clean(dir)
	if dir == path {
		return path
	}
	if _, err := os.Lstat(dir); err != nil {
		return filepath.Join(resolveSymlinks(dir), base)
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(resolved, base)
	}
	return path
}

func matchPattern(pattern, target string) bool {
	matched, err := doublestar.Match(pattern, target)
	if err != nil {
		log.Warn().Err(err).Str("pattern", pattern).Msg("Invalid glob pattern")
		return false
	}
	return matched
}

// matchCommand matches a command pattern where * spans any characters,
// including spaces and path separators, and ? matches one character.
func matchCommand(pattern, target string) bool {
	return wildcardMatch(pattern, target)
}

func wildcardMatch(pattern, target string) bool {
	p, t := 0, 0
	star, mark := -1, 0

	for t < len(target) {
		switch {
		case p < len(pattern) && (pattern[p] == target[t] || pattern[p] == '?'):
			p++
			t++
		case p < len(pattern) && pattern[p] == '*':
			star = p
			mark = t
			p++
		case star >= 0:
			p = star + 1
			mark++
			t = mark
		default:
			return false
		}
	}

	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
