package toolexecutor

import (
	"context"
	"fmt"
)

// AutoApproveHandler approves every request without user interaction,
// except tools matching its hard-deny patterns. It backs non-interactive
// runs where no operator is present to answer prompts.
type AutoApproveHandler struct {
	// HardDeny lists tool-name patterns that are refused even in
	// non-interactive mode.
	HardDeny []string
}

// RequestApproval implements ApprovalHandler.
func (h AutoApproveHandler) RequestApproval(_ context.Context, req ApprovalRequest) (ApprovalResponse, error) {
	for _, pattern := range h.HardDeny {
		if wildcardMatch(pattern, req.Tool) {
			return ApprovalResponse{
				Approved: false,
				Reason:   fmt.Sprintf("tool %q is on the non-interactive deny list", req.Tool),
			}, nil
		}
	}
	return ApprovalResponse{Approved: true, Reason: "auto-approved"}, nil
}
