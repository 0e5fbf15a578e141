package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harun/kestrel/pkg/toolexecutor"
)

const defaultToolTimeout = 30 * time.Second

// RunSink receives the durable run records. It is written exactly twice
// per run: once before the first provider call and once after the run
// reaches a terminal state. The loop never reads it back.
type RunSink interface {
	RunStarted(runID string, payload map[string]interface{}) error
	RunEnded(runID string, status string, payload map[string]interface{}) error
}

// Runner drives the agent loop: ask model, enforce permissions on every
// requested action, execute or ask approval, feed results back, repeat
// until the model stops requesting tools or the turn budget runs out.
type Runner struct {
	executor        *toolexecutor.ToolExecutor
	sink            RunSink
	providerFactory ProviderCreator
	credentials     map[string]string
	logger          zerolog.Logger

	// Active runs for abort capability
	activeRuns map[string]context.CancelFunc
	runsMu     sync.RWMutex
}

// Config holds runner dependencies.
type Config struct {
	Executor        *toolexecutor.ToolExecutor
	Sink            RunSink
	ProviderFactory ProviderCreator
	Credentials     map[string]string
	Logger          zerolog.Logger
}

// NewRunner creates an agent runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}

	factory := cfg.ProviderFactory
	if factory == nil {
		factory = &ProviderFactory{}
	}

	return &Runner{
		executor:        cfg.Executor,
		sink:            cfg.Sink,
		providerFactory: factory,
		credentials:     cfg.Credentials,
		logger:          cfg.Logger,
		activeRuns:      make(map[string]context.CancelFunc),
	}, nil
}

// Run executes one request to completion or abortion.
func (r *Runner) Run(ctx context.Context, params RunParams) (RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := r.validateConfig(params.Config); err != nil {
		return RunResult{}, fmt.Errorf("invalid run configuration: %w", err)
	}

	runID := params.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := r.logger.With().Str("run_id", runID).Logger()

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.runsMu.Lock()
	r.activeRuns[runID] = cancel
	r.runsMu.Unlock()
	defer func() {
		r.runsMu.Lock()
		delete(r.activeRuns, runID)
		r.runsMu.Unlock()
	}()

	provider, err := r.providerFactory.NewProvider(execCtx, params.Config.Provider, r.credentials[params.Config.Provider])
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to create provider: %w", err)
	}

	r.sinkRunStarted(runID, params, logger)

	result, runErr := r.executeLoop(execCtx, runID, provider, params, logger)
	result.RunID = runID

	r.sinkRunEnded(runID, result, logger)

	return result, runErr
}

// Abort cancels a running execution. The cancellation is observed at
// the next provider call or approval wait.
func (r *Runner) Abort(runID string) error {
	r.runsMu.Lock()
	defer r.runsMu.Unlock()

	cancel, exists := r.activeRuns[runID]
	if !exists {
		r.logger.Debug().Str("run_id", runID).Msg("No active run to abort")
		return nil
	}

	r.logger.Info().Str("run_id", runID).Msg("Aborting run")
	cancel()
	delete(r.activeRuns, runID)
	return nil
}

// IsRunning reports whether a run is currently active.
func (r *Runner) IsRunning(runID string) bool {
	r.runsMu.RLock()
	defer r.runsMu.RUnlock()

	_, exists := r.activeRuns[runID]
	return exists
}

func (r *Runner) validateConfig(config RunConfig) error {
	if config.Provider == "" {
		return fmt.Errorf("provider cannot be empty")
	}
	if config.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if config.MaxTurns <= 0 {
		return fmt.Errorf("max turns must be positive")
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	switch config.Mode {
	case ModeLocalOnly, ModeHybrid, ModeRemoteAugmented:
	case "":
		return fmt.Errorf("execution mode cannot be empty")
	default:
		return fmt.Errorf("unknown execution mode: %s", config.Mode)
	}
	return nil
}

// executeLoop runs the turn cycle until Done, Aborted, or turn budget
// exhaustion.
func (r *Runner) executeLoop(ctx context.Context, runID string, provider Provider, params RunParams, logger zerolog.Logger) (RunResult, error) {
	cfg := params.Config

	// Init: seed the message list and fetch the mode-filtered catalog.
	messages := []Message{
		{Role: "system", Content: cfg.SystemPrompt},
		{Role: "user", Content: params.Prompt},
	}
	tools := r.descriptorsForMode(cfg.Mode)

	var (
		usage        TokenUsage
		allToolCalls []ToolCall
		lastText     string
	)

	for turn := 1; turn <= cfg.MaxTurns; turn++ {
		response, err := r.converseWithRetry(ctx, provider, ConverseRequest{
			Model:        cfg.Model,
			Messages:     messages,
			Tools:        tools,
			SystemPrompt: cfg.SystemPrompt,
			Temperature:  cfg.Temperature,
			MaxTokens:    cfg.MaxTokens,
		}, logger)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info().Int("turn", turn).Msg("Run cancelled during provider call")
				return r.abortedResult(messages, allToolCalls, usage, lastText, turn-1), nil
			}
			logger.Error().Err(err).Int("turn", turn).Msg("Provider call failed")
			result := r.abortedResult(messages, allToolCalls, usage, lastText, turn-1)
			return result, err
		}

		usage.Add(response.Usage)

		if response.Text != "" || len(response.ToolCalls) > 0 {
			messages = append(messages, Message{
				Role:      "assistant",
				Content:   response.Text,
				ToolCalls: response.ToolCalls,
			})
		}
		if response.Text != "" {
			lastText = response.Text
		}

		// Zero tool calls is the sole success-terminal condition.
		if len(response.ToolCalls) == 0 {
			logger.Info().Int("turns", turn).Msg("Run completed")
			return RunResult{
				Status:    StatusDone,
				Response:  response.Text,
				Messages:  messages,
				ToolCalls: allToolCalls,
				Turns:     turn,
				Usage:     usage,
			}, nil
		}

		// Dispatch in the order returned; every call gets exactly one
		// result appended before the next turn. Individual denials and
		// failures become error results, never run aborts.
		results, cancelled := r.dispatchToolCalls(ctx, runID, response.ToolCalls, cfg, logger)
		for i, result := range results {
			content := result.Output
			if result.Error != "" {
				content = result.Error
			}
			messages = append(messages, Message{
				Role:       "tool",
				Content:    content,
				ToolCallID: result.CallID,
				ToolName:   response.ToolCalls[i].Name,
			})
		}

		// Cancellation during an approval wait aborts the run; calls
		// that completed before it keep their results and side effects,
		// the interrupted call gets none.
		if cancelled {
			allToolCalls = append(allToolCalls, response.ToolCalls[:len(results)]...)
			logger.Info().Int("turn", turn).Msg("Run cancelled during approval wait")
			return r.abortedResult(messages, allToolCalls, usage, lastText, turn), nil
		}

		allToolCalls = append(allToolCalls, response.ToolCalls...)
	}

	// Turn budget exhausted: aborted with partial completion, prior
	// messages and already-applied side effects remain.
	logger.Warn().Int("max_turns", cfg.MaxTurns).Msg("Turn budget exhausted")
	return r.abortedResult(messages, allToolCalls, usage, lastText, cfg.MaxTurns), nil
}

func (r *Runner) abortedResult(messages []Message, toolCalls []ToolCall, usage TokenUsage, lastText string, turns int) RunResult {
	return RunResult{
		Status:    StatusAborted,
		Partial:   true,
		Response:  lastText,
		Messages:  messages,
		ToolCalls: toolCalls,
		Turns:     turns,
		Usage:     usage,
	}
}

// descriptorsForMode filters the tool catalog by execution mode.
func (r *Runner) descriptorsForMode(mode ExecutionMode) []toolexecutor.ToolDescriptor {
	switch mode {
	case ModeLocalOnly:
		return r.executor.Descriptors(false)
	case ModeRemoteAugmented:
		all := r.executor.Descriptors(true)
		remote := make([]toolexecutor.ToolDescriptor, 0, len(all))
		for _, d := range all {
			if d.Remote {
				remote = append(remote, d)
			}
		}
		return remote
	default:
		return r.executor.Descriptors(true)
	}
}

// dispatchToolCalls executes a turn's calls sequentially in order. It
// returns true when a cancelled approval wait interrupted the turn;
// remaining calls are not dispatched and the interrupted call produces
// no result.
func (r *Runner) dispatchToolCalls(ctx context.Context, runID string, calls []ToolCall, cfg RunConfig, logger zerolog.Logger) ([]ToolExecutionResult, bool) {
	results := make([]ToolExecutionResult, 0, len(calls))

	for _, call := range calls {
		toolResult := r.executor.Execute(ctx, call.Name, call.Arguments, &toolexecutor.ExecutionContext{
			RunID:       runID,
			WorkingDir:  cfg.WorkingDir,
			Timeout:     defaultToolTimeout,
			AutoApprove: cfg.AutoApprove,
		})
		if toolResult.Cancelled() {
			return results, true
		}

		result := ToolExecutionResult{CallID: call.ID}
		if toolResult.Success {
			result.Output = fmt.Sprintf("%v", toolResult.Output)
		} else {
			result.Error = toolResult.Error
			logger.Debug().
				Str("tool", call.Name).
				Str("error", toolResult.Error).
				Msg("Tool call failed")
		}
		results = append(results, result)
	}

	return results, false
}

// converseWithRetry calls the provider, retrying once with backoff when
// the failure is a transient transport error.
func (r *Runner) converseWithRetry(ctx context.Context, provider Provider, request ConverseRequest, logger zerolog.Logger) (*ConverseResponse, error) {
	response, err := provider.Converse(ctx, request)
	if err == nil {
		return response, nil
	}

	var te *TransportError
	if !errors.As(err, &te) || !te.Transient() {
		return nil, err
	}

	logger.Warn().Err(err).Msg("Transient transport error, retrying once")

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Second):
	}

	return provider.Converse(ctx, request)
}

func (r *Runner) sinkRunStarted(runID string, params RunParams, logger zerolog.Logger) {
	if r.sink == nil {
		return
	}
	err := r.sink.RunStarted(runID, map[string]interface{}{
		"provider": params.Config.Provider,
		"model":    params.Config.Model,
		"mode":     string(params.Config.Mode),
		"prompt":   params.Prompt,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to write run-start record")
	}
}

func (r *Runner) sinkRunEnded(runID string, result RunResult, logger zerolog.Logger) {
	if r.sink == nil {
		return
	}
	err := r.sink.RunEnded(runID, string(result.Status), map[string]interface{}{
		"partial":       result.Partial,
		"turns":         result.Turns,
		"input_tokens":  result.Usage.InputTokens,
		"output_tokens": result.Usage.OutputTokens,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to write run-end record")
	}
}
