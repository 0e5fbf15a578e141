package toolexecutor

import (
	"context"
	"fmt"
	"strings"
)

// RegisterMCPServer fetches the server's tool list and registers each
// tool in the catalog. Name collisions with already-registered (local)
// tools are resolved by prefixing with the server id, so local tools
// always win plain-name resolution.
func (te *ToolExecutor) RegisterMCPServer(ctx context.Context, adapter *MCPServerAdapter) ([]string, error) {
	if adapter == nil {
		return nil, fmt.Errorf("mcp adapter is required")
	}
	serverID := adapter.ServerID()
	if strings.TrimSpace(serverID) == "" {
		return nil, fmt.Errorf("mcp server id is required")
	}

	tools, err := adapter.GetTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch MCP tools: %w", err)
	}

	registered := make([]string, 0, len(tools))
	for _, tool := range tools {
		originalName := tool.Name
		if originalName == "" {
			continue
		}

		toolName := originalName
		if te.GetTool(toolName) != nil {
			toolName = fmt.Sprintf("%s_%s", serverID, originalName)
		}
		tool.Name = toolName
		tool.Handler = func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return adapter.ExecuteTool(ctx, originalName, params)
		}

		if err := te.RegisterTool(tool); err != nil {
			return registered, fmt.Errorf("failed to register MCP tool %s: %w", toolName, err)
		}
		registered = append(registered, toolName)
	}

	return registered, nil
}
