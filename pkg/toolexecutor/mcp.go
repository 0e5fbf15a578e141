package toolexecutor

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MCP JSON-RPC messages
type mcpRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      interface{} `json:"id,omitempty"`
}

type mcpResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *mcpError       `json:"error,omitempty"`
	ID      interface{}     `json:"id"`
}

type mcpError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// mcpContentBlock is one ordered block of a tool call result.
type mcpContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data string `json:"data,omitempty"`
}

// mcpCallResult is the wire shape of a tools/call response.
type mcpCallResult struct {
	Content []mcpContentBlock `json:"content"`
	IsError bool              `json:"isError"`
}

// MCPServerAdapter speaks the Model Context Protocol to a tool server
// over a stdio JSON-RPC transport.
type MCPServerAdapter struct {
	serverID string
	command  string
	args     []string

	mu      sync.Mutex
	process *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Scanner
	id      int
	pending map[int]chan *mcpResponse
}

// NewMCPServerAdapter creates a new adapter for an MCP server
func NewMCPServerAdapter(serverID, command string, args []string) *MCPServerAdapter {
	return &MCPServerAdapter{
		serverID: serverID,
		command:  command,
		args:     args,
		pending:  make(map[int]chan *mcpResponse),
	}
}

// ServerID returns the configured server name.
func (a *MCPServerAdapter) ServerID() string {
	return a.serverID
}

// Start starts the MCP server process. The process outlives the
// caller's context: its lifetime ends at Stop, not when the context
// that happened to trigger the launch does. Only the initialize
// handshake honors ctx.
func (a *MCPServerAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.process != nil {
		a.mu.Unlock()
		return nil
	}

	cmd := exec.Command(a.command, a.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		a.mu.Unlock()
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		a.mu.Unlock()
		return err
	}

	if err := cmd.Start(); err != nil {
		a.mu.Unlock()
		return err
	}

	a.process = cmd
	a.stdin = stdin
	a.stdout = bufio.NewScanner(stdout)
	a.mu.Unlock()

	// Listen for responses separately
	go a.listen()

	// Perform initialize handshake (simplified)
	if err := a.initialize(ctx); err != nil {
		a.Stop()
		return err
	}
	return nil
}

func (a *MCPServerAdapter) listen() {
	for a.stdout.Scan() {
		var resp mcpResponse
		if err := json.Unmarshal(a.stdout.Bytes(), &resp); err != nil {
			log.Error().Err(err).Str("server", a.serverID).Msg("Failed to unmarshal MCP response")
			continue
		}

		if id, ok := resp.ID.(float64); ok {
			a.mu.Lock()
			ch, exists := a.pending[int(id)]
			if exists {
				delete(a.pending, int(id))
				ch <- &resp
			}
			a.mu.Unlock()
		}
	}
}

func (a *MCPServerAdapter) initialize(ctx context.Context) error {
	params := map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "Kestrel",
			"version": "0.1.0",
		},
	}
	_, err := a.call(ctx, "initialize", params)
	return err
}

func (a *MCPServerAdapter) call(ctx context.Context, method string, params interface{}) (*mcpResponse, error) {
	a.mu.Lock()
	a.id++
	id := a.id
	ch := make(chan *mcpResponse, 1)
	a.pending[id] = ch
	stdin := a.stdin
	a.mu.Unlock()

	req := mcpRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	if _, err := io.WriteString(stdin, string(data)+"\n"); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("MCP error (%d): %s", resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Second):
		return nil, fmt.Errorf("MCP request timeout")
	}
}

// ExecuteTool executes a tool on the MCP server and flattens the ordered
// content blocks into text. A result with isError set comes back as an
// error carrying the flattened text.
func (a *MCPServerAdapter) ExecuteTool(ctx context.Context, name string, params map[string]interface{}) (string, error) {
	if err := a.Start(ctx); err != nil {
		return "", fmt.Errorf("failed to start MCP server: %w", err)
	}

	callParams := map[string]interface{}{
		"name":      name,
		"arguments": params,
	}

	resp, err := a.call(ctx, "tools/call", callParams)
	if err != nil {
		return "", err
	}

	var result mcpCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("failed to decode tool result: %w", err)
	}

	text := flattenContentBlocks(result.Content)
	if result.IsError {
		return "", fmt.Errorf("%s", text)
	}

	return text, nil
}

// flattenContentBlocks joins ordered text and binary blocks into one
// textual result. Binary blocks are summarized, not inlined.
func flattenContentBlocks(blocks []mcpContentBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case "text", "":
			if block.Text != "" {
				parts = append(parts, block.Text)
			}
		default:
			size := len(block.Data)
			if decoded, err := base64.StdEncoding.DecodeString(block.Data); err == nil {
				size = len(decoded)
			}
			parts = append(parts, fmt.Sprintf("[%s content, %d bytes]", block.Type, size))
		}
	}
	return strings.Join(parts, "\n")
}

// GetTools fetches the tool definitions from the MCP server
func (a *MCPServerAdapter) GetTools(ctx context.Context) ([]ToolDefinition, error) {
	if err := a.Start(ctx); err != nil {
		return nil, err
	}

	resp, err := a.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var listResult struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}

	if err := json.Unmarshal(resp.Result, &listResult); err != nil {
		return nil, err
	}

	defs := make([]ToolDefinition, 0, len(listResult.Tools))
	for _, t := range listResult.Tools {
		def := ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			ServerID:    a.serverID,
		}
		if len(t.InputSchema) > 0 {
			var schemaMap map[string]interface{}
			if err := json.Unmarshal(t.InputSchema, &schemaMap); err == nil {
				// The declared schema is passed verbatim to providers
				def.RawSchema = schemaMap
			}
		}
		defs = append(defs, def)
	}

	return defs, nil
}

// Stop stops the MCP server process. A stopped adapter can be started
// again.
func (a *MCPServerAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	proc := a.process
	a.process = nil
	a.stdin = nil

	if proc != nil && proc.Process != nil {
		return proc.Process.Kill()
	}
	return nil
}
