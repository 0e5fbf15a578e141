package agent

// ExecutionMode selects which tool descriptors a run exposes to the model.
type ExecutionMode string

const (
	// ModeLocalOnly exposes local tools only.
	ModeLocalOnly ExecutionMode = "local-only"
	// ModeHybrid exposes local and remote tools.
	ModeHybrid ExecutionMode = "hybrid"
	// ModeRemoteAugmented exposes remote tools only.
	ModeRemoteAugmented ExecutionMode = "remote-augmented"
)

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	StatusDone    RunStatus = "done"
	StatusAborted RunStatus = "aborted"
)

// Message is one conversation turn. The list is append-only within a run.
type Message struct {
	Role       string                 `json:"role"` // system, user, assistant, tool
	Content    string                 `json:"content"`
	ToolCalls  []ToolCall             `json:"tool_calls,omitempty"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
	ToolName   string                 `json:"tool_name,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolExecutionResult is the outcome of one ToolCall. Exactly one result
// is produced per call before the next provider turn.
type ToolExecutionResult struct {
	CallID string `json:"call_id"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// TokenUsage tracks token consumption across a run.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates usage from one provider turn.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// RunConfig configures one run. Immutable once the run starts.
type RunConfig struct {
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	Mode         ExecutionMode `json:"mode"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	MaxTurns     int           `json:"max_turns"`
	AutoApprove  bool          `json:"auto_approve"`
	Temperature  float64       `json:"temperature,omitempty"`
	MaxTokens    int           `json:"max_tokens,omitempty"`
	WorkingDir   string        `json:"working_dir,omitempty"`
}

// RunParams bundles the user request with its run configuration.
type RunParams struct {
	Prompt string    `json:"prompt"`
	Config RunConfig `json:"config"`
	RunID  string    `json:"run_id,omitempty"`
}

// RunResult is the outcome of a completed or aborted run.
type RunResult struct {
	RunID     string     `json:"run_id"`
	Status    RunStatus  `json:"status"`
	Partial   bool       `json:"partial,omitempty"`
	Response  string     `json:"response"`
	Messages  []Message  `json:"messages,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Turns     int        `json:"turns"`
	Usage     TokenUsage `json:"usage"`
}

// DefaultRunConfig returns the baseline run configuration.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Provider:     "anthropic",
		Model:        "claude-sonnet-4-20250514",
		Mode:         ModeHybrid,
		SystemPrompt: "You are a helpful coding agent.",
		MaxTurns:     24,
		MaxTokens:    4096,
	}
}
