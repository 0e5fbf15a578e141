package toolexecutor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Category    ToolCategory    `json:"category,omitempty"`
	Handler     ToolHandler     `json:"-"`

	// ServerID is set for tools served by a remote MCP server.
	ServerID string `json:"server_id,omitempty"`

	// RawSchema carries a remote tool's parameter schema verbatim when
	// one was declared; it is passed through to providers untouched.
	RawSchema map[string]interface{} `json:"-"`
}

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// ToolDescriptor is the provider-facing view of a tool: name,
// description and a JSON-schema-shaped parameter object passed verbatim.
type ToolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
	Remote      bool                   `json:"-"`
}

// ExecutionContext provides runtime information for tool execution
type ExecutionContext struct {
	RunID       string
	WorkingDir  string
	Timeout     time.Duration
	AutoApprove bool
}

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Success   bool                   `json:"success"`
	Output    interface{}            `json:"output,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Truncated bool                   `json:"truncated,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Cancelled reports whether the call was interrupted by cancellation
// before producing an outcome. Such a result is not a tool outcome and
// must not be fed back to the model.
func (r ToolResult) Cancelled() bool {
	v, ok := r.Metadata["cancelled"].(bool)
	return ok && v
}

// ToolExecutor manages and executes tools. Every side-effecting call
// passes the permission engine before its handler runs; actions in the
// approval set additionally suspend on the approval manager.
type ToolExecutor struct {
	tools           map[string]*ToolDefinition
	schemas         map[string]*gojsonschema.Schema
	permissions     *PermissionEngine
	approvalManager *ApprovalManager
	mu              sync.RWMutex
}

// New creates a new ToolExecutor
func New() *ToolExecutor {
	te := &ToolExecutor{
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
	}

	log.Info().Msg("Tool executor initialized")

	return te
}

// SetPermissionEngine sets the permission engine enforced on execution
func (te *ToolExecutor) SetPermissionEngine(engine *PermissionEngine) {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.permissions = engine
}

// SetApprovalManager sets the approval manager for destructive actions
func (te *ToolExecutor) SetApprovalManager(manager *ApprovalManager) {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.approvalManager = manager
	log.Info().Msg("Approval manager configured for tool executor")
}

// RegisterTool registers a new tool
func (te *ToolExecutor) RegisterTool(def ToolDefinition) error {
	if err := te.validateToolDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := te.generateJSONSchema(def)
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	te.mu.Lock()
	defer te.mu.Unlock()

	te.tools[def.Name] = &def
	te.schemas[def.Name] = schema

	log.Info().Str("tool", def.Name).Str("category", string(def.Category)).Msg("Tool registered")

	return nil
}

// UnregisterTool removes a tool
func (te *ToolExecutor) UnregisterTool(name string) {
	te.mu.Lock()
	defer te.mu.Unlock()

	delete(te.tools, name)
	delete(te.schemas, name)
}

// GetTool returns a tool definition by name
func (te *ToolExecutor) GetTool(name string) *ToolDefinition {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return te.tools[name]
}

// ListTools returns all registered tool names, local tools first.
func (te *ToolExecutor) ListTools() []string {
	te.mu.RLock()
	defer te.mu.RUnlock()

	local := []string{}
	remote := []string{}
	for name, def := range te.tools {
		if def.ServerID != "" {
			remote = append(remote, name)
		} else {
			local = append(local, name)
		}
	}
	sort.Strings(local)
	sort.Strings(remote)

	return append(local, remote...)
}

// Descriptors returns the provider-facing tool list. Remote tools are
// excluded when includeRemote is false (local-only execution mode).
func (te *ToolExecutor) Descriptors(includeRemote bool) []ToolDescriptor {
	te.mu.RLock()
	defer te.mu.RUnlock()

	descriptors := make([]ToolDescriptor, 0, len(te.tools))
	for _, def := range te.tools {
		remote := def.ServerID != ""
		if remote && !includeRemote {
			continue
		}

		schema := def.RawSchema
		if schema == nil {
			schema = schemaMapFromParameters(def.Parameters)
		}

		descriptors = append(descriptors, ToolDescriptor{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
			Remote:      remote,
		})
	}

	// Local-first, then remote, each alphabetical, so dispatch order and
	// provider-visible ordering stay deterministic.
	sort.Slice(descriptors, func(i, j int) bool {
		if descriptors[i].Remote != descriptors[j].Remote {
			return !descriptors[i].Remote
		}
		return descriptors[i].Name < descriptors[j].Name
	})

	return descriptors
}

// Execute runs a tool with the given parameters. All failures are folded
// into the ToolResult so the caller can hand them back to the model,
// except an interrupted approval wait, which comes back marked
// Cancelled and carries no outcome.
func (te *ToolExecutor) Execute(ctx context.Context, toolName string, params map[string]interface{}, execCtx *ExecutionContext) ToolResult {
	startTime := time.Now()

	te.mu.RLock()
	tool := te.tools[toolName]
	schema := te.schemas[toolName]
	permissions := te.permissions
	approvalManager := te.approvalManager
	te.mu.RUnlock()

	if tool == nil {
		log.Warn().Str("tool", toolName).Msg("Tool not found")
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("tool not found: %s", toolName),
		}
	}

	if err := te.validateParameters(schema, params); err != nil {
		log.Error().Str("tool", toolName).Err(err).Msg("Parameter validation failed")
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("parameter validation failed: %v", err),
		}
	}

	requiresApproval := false
	target := permissionTarget(tool, params)

	if permissions != nil {
		if kind, ok := tool.Category.ActionKind(); ok {
			decision := permissions.Evaluate(kind, target)
			if !decision.Allowed {
				log.Warn().
					Str("tool", toolName).
					Str("kind", string(kind)).
					Str("reason", decision.Reason).
					Msg("Tool execution blocked by permission rules")
				return ToolResult{
					Success: false,
					Error:   fmt.Sprintf("permission denied: %s", decision.Reason),
					Metadata: map[string]interface{}{
						"permission_denied": true,
					},
				}
			}
			requiresApproval = decision.RequiresApproval
		}
		if permissions.ApprovalRequired(toolName) {
			requiresApproval = true
		}
	}

	if requiresApproval && (execCtx == nil || !execCtx.AutoApprove) {
		approved, reason, err := te.requestApproval(ctx, approvalManager, tool, params, target, execCtx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// An interrupted wait is not a decision; the caller
				// aborts the run instead of reporting an outcome.
				log.Info().Str("tool", toolName).Msg("Approval wait interrupted")
				return ToolResult{
					Success: false,
					Error:   err.Error(),
					Metadata: map[string]interface{}{
						"cancelled": true,
					},
				}
			}
			// Timed-out or failed requests are call failures, not
			// operator denials.
			log.Error().Str("tool", toolName).Err(err).Msg("Approval request failed")
			return ToolResult{
				Success: false,
				Error:   err.Error(),
			}
		}
		if !approved {
			log.Warn().Str("tool", toolName).Str("reason", reason).Msg("Tool execution refused by operator")
			return ToolResult{
				Success: false,
				Error:   fmt.Sprintf("approval denied: %s", reason),
				Metadata: map[string]interface{}{
					"approval_denied": true,
				},
			}
		}
	}

	log.Debug().Str("tool", toolName).Msg("Executing tool")

	timeout := 30 * time.Second
	if execCtx != nil && execCtx.Timeout > 0 {
		timeout = execCtx.Timeout
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	handlerCtx := ContextWithExecContext(timeoutCtx, execCtx)

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		result, err := tool.Handler(handlerCtx, params)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- result
		}
	}()

	select {
	case result := <-resultChan:
		duration := time.Since(startTime)
		output, truncated := te.truncateOutput(result)

		log.Debug().
			Str("tool", toolName).
			Dur("duration", duration).
			Bool("truncated", truncated).
			Msg("Tool execution completed")

		return ToolResult{
			Success:   true,
			Output:    output,
			Truncated: truncated,
			Metadata: map[string]interface{}{
				"duration": duration.Milliseconds(),
			},
		}

	case err := <-errChan:
		log.Error().Str("tool", toolName).Err(err).Msg("Tool execution failed")
		return ToolResult{
			Success: false,
			Error:   err.Error(),
		}

	case <-timeoutCtx.Done():
		log.Error().Str("tool", toolName).Dur("timeout", timeout).Msg("Tool execution timeout")
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("tool execution timeout after %v", timeout),
		}
	}
}

func (te *ToolExecutor) requestApproval(ctx context.Context, manager *ApprovalManager, tool *ToolDefinition, params map[string]interface{}, target string, execCtx *ExecutionContext) (bool, string, error) {
	if manager == nil {
		return false, "no approval channel configured", nil
	}

	req := ApprovalRequest{
		Tool:      tool.Name,
		Arguments: params,
		Target:    target,
	}
	if execCtx != nil {
		req.Cwd = execCtx.WorkingDir
		req.RunID = execCtx.RunID
	}

	return manager.RequestApproval(ctx, req)
}

// permissionTarget derives the permission target from well-known
// parameters: the path for file tools, the full command string for
// shell tools, the tool name otherwise.
func permissionTarget(tool *ToolDefinition, params map[string]interface{}) string {
	switch tool.Category {
	case CategoryRead, CategoryWrite:
		if path, ok := params["path"].(string); ok {
			return path
		}
	case CategoryShell:
		command, _ := params["command"].(string)
		parts := []string{strings.TrimSpace(command)}
		if rawArgs, ok := params["args"].([]interface{}); ok {
			for _, a := range rawArgs {
				if s, ok := a.(string); ok && s != "" {
					parts = append(parts, s)
				}
			}
		}
		return strings.Join(parts, " ")
	}
	return tool.Name
}

// validateToolDefinition validates a tool definition
func (te *ToolExecutor) validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}
	if def.Category != "" && !IsValidCategory(string(def.Category)) {
		return fmt.Errorf("invalid tool category %q", def.Category)
	}

	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if param.Type == "" {
			return fmt.Errorf("parameter type cannot be empty for %s", param.Name)
		}

		validTypes := map[string]bool{
			"string": true, "number": true, "boolean": true,
			"object": true, "array": true, "integer": true,
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

func schemaMapFromParameters(params []ToolParameter) map[string]interface{} {
	schemaMap := map[string]interface{}{
		"type":       "object",
		"properties": make(map[string]interface{}),
	}

	properties := schemaMap["properties"].(map[string]interface{})
	required := []string{}

	for _, param := range params {
		paramSchema := map[string]interface{}{
			"type": param.Type,
		}
		if param.Description != "" {
			paramSchema["description"] = param.Description
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}

		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	if len(required) > 0 {
		sort.Strings(required)
		schemaMap["required"] = required
	}

	return schemaMap
}

// generateJSONSchema generates a JSON Schema from tool parameters
func (te *ToolExecutor) generateJSONSchema(def ToolDefinition) (*gojsonschema.Schema, error) {
	schemaMap := def.RawSchema
	if schemaMap == nil {
		schemaMap = schemaMapFromParameters(def.Parameters)
	}

	schemaLoader := gojsonschema.NewGoLoader(schemaMap)
	schema, err := gojsonschema.NewSchema(schemaLoader)
	if err != nil {
		return nil, err
	}

	return schema, nil
}

// validateParameters validates parameters against a JSON Schema
func (te *ToolExecutor) validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	paramsLoader := gojsonschema.NewGoLoader(params)
	result, err := schema.Validate(paramsLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		errors := []string{}
		for _, err := range result.Errors() {
			errors = append(errors, err.String())
		}
		return fmt.Errorf("validation errors: %v", errors)
	}

	return nil
}

// truncateOutput truncates output if it exceeds the size limit
func (te *ToolExecutor) truncateOutput(output interface{}) (interface{}, bool) {
	const maxSize = 10 * 1024 // 10KB

	str := fmt.Sprintf("%v", output)
	if len(str) <= maxSize {
		return output, false
	}

	truncated := str[:maxSize] + "\n... [output truncated]"
	log.Warn().
		Int("original", len(str)).
		Int("truncated", maxSize).
		Msg("Output truncated")

	return truncated, true
}
