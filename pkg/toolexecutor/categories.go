package toolexecutor

import "strings"

// ToolCategory classifies a tool by the kind of side effect it performs.
type ToolCategory string

const (
	CategoryRead    ToolCategory = "read"
	CategoryWrite   ToolCategory = "write"
	CategoryShell   ToolCategory = "shell"
	CategoryWeb     ToolCategory = "web"
	CategoryGeneral ToolCategory = "general"
)

// ActionKind is the permission dimension a tool execution is checked
// against. Only read, write and execute carry glob rule sets; tools in
// other categories are gated by the approval set alone.
type ActionKind string

const (
	ActionRead    ActionKind = "read"
	ActionWrite   ActionKind = "write"
	ActionExecute ActionKind = "execute"
)

// AllCategories returns all valid tool categories
func AllCategories() []ToolCategory {
	return []ToolCategory{
		CategoryRead,
		CategoryWrite,
		CategoryShell,
		CategoryWeb,
		CategoryGeneral,
	}
}

// IsValidCategory checks if a category is valid
func IsValidCategory(category string) bool {
	cat := ToolCategory(strings.ToLower(category))
	for _, valid := range AllCategories() {
		if cat == valid {
			return true
		}
	}
	return false
}

// ActionKind maps a category onto its permission action kind. The second
// return is false for categories with no rule set (web, general).
func (c ToolCategory) ActionKind() (ActionKind, bool) {
	switch c {
	case CategoryRead:
		return ActionRead, true
	case CategoryWrite:
		return ActionWrite, true
	case CategoryShell:
		return ActionExecute, true
	default:
		return "", false
	}
}
