package toolexecutor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ApprovalRequest presents a pending action to the operator.
type ApprovalRequest struct {
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments"`
	Target    string                 `json:"target,omitempty"`
	Cwd       string                 `json:"cwd,omitempty"`
	RunID     string                 `json:"run_id,omitempty"`
	Timeout   time.Duration          `json:"timeout,omitempty"`
}

// ApprovalResponse represents the operator's decision.
type ApprovalResponse struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// ApprovalHandler handles approval requests
type ApprovalHandler interface {
	RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error)
}

// ApprovalManager manages the approval workflow. It blocks on a response
// channel until a decision arrives; it is the single place where
// cancellation during an approval wait is observable.
type ApprovalManager struct {
	handler        ApprovalHandler
	defaultTimeout time.Duration
}

// NewApprovalManager creates a new approval manager
func NewApprovalManager(handler ApprovalHandler) *ApprovalManager {
	return &ApprovalManager{
		handler:        handler,
		defaultTimeout: 5 * time.Minute,
	}
}

// RequestApproval requests a decision for a pending action.
// It returns (approved, reason, err); err is set only when the request
// itself fails, not on an ordinary denial. Cancellation of ctx is
// surfaced as the context error so callers can tell an interrupted
// wait apart from an elapsed timeout.
func (am *ApprovalManager) RequestApproval(ctx context.Context, req ApprovalRequest) (bool, string, error) {
	if am.handler == nil {
		return false, "", fmt.Errorf("no approval handler configured")
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = am.defaultTimeout
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info().
		Str("tool", req.Tool).
		Str("target", req.Target).
		Msg("Requesting approval")

	responseChan := make(chan ApprovalResponse, 1)
	errorChan := make(chan error, 1)

	go func() {
		response, err := am.handler.RequestApproval(timeoutCtx, req)
		if err != nil {
			errorChan <- err
		} else {
			responseChan <- response
		}
	}()

	select {
	case response := <-responseChan:
		if response.Approved {
			log.Info().
				Str("tool", req.Tool).
				Str("reason", response.Reason).
				Msg("Approval granted")
		} else {
			log.Warn().
				Str("tool", req.Tool).
				Str("reason", response.Reason).
				Msg("Approval denied")
		}
		return response.Approved, response.Reason, nil

	case err := <-errorChan:
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			log.Info().Str("tool", req.Tool).Msg("Approval wait cancelled")
			return false, "", ctx.Err()
		}
		log.Error().
			Err(err).
			Str("tool", req.Tool).
			Msg("Approval request failed")
		return false, "", fmt.Errorf("approval request failed: %w", err)

	case <-timeoutCtx.Done():
		// The parent context going away is a cancellation, not a
		// timed-out wait.
		if ctx.Err() != nil {
			log.Info().Str("tool", req.Tool).Msg("Approval wait cancelled")
			return false, "", ctx.Err()
		}
		log.Warn().
			Str("tool", req.Tool).
			Dur("timeout", timeout).
			Msg("Approval request timed out")
		return false, "", fmt.Errorf("approval request timed out after %v", timeout)
	}
}

// SetDefaultTimeout sets the default timeout for approval requests
func (am *ApprovalManager) SetDefaultTimeout(timeout time.Duration) {
	am.defaultTimeout = timeout
}

// SetHandler sets the approval handler
func (am *ApprovalManager) SetHandler(handler ApprovalHandler) {
	am.handler = handler
}

// MockApprovalHandler is a mock handler for testing
type MockApprovalHandler struct {
	Response ApprovalResponse
	Delay    time.Duration
	Error    error

	Requests []ApprovalRequest
}

// RequestApproval implements ApprovalHandler
func (m *MockApprovalHandler) RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error) {
	m.Requests = append(m.Requests, req)

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ApprovalResponse{}, ctx.Err()
		}
	}

	if m.Error != nil {
		return ApprovalResponse{}, m.Error
	}

	return m.Response, nil
}
