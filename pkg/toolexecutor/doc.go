// Package toolexecutor is the tool catalog and enforcement layer.
//
// Tools are registered into a name-keyed catalog, locally defined or
// fetched from MCP servers. Every execution is checked against the
// permission engine's glob rule sets before the handler runs, and
// actions in the always-require-approval set suspend on the approval
// manager until an operator decides. All per-call failures are folded
// into the ToolResult so the calling loop can feed them back to the
// model instead of aborting.
package toolexecutor
