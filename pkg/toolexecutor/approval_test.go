package toolexecutor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestApprovalManager_RequestApproval_Granted tests the approve path
func TestApprovalManager_RequestApproval_Granted(t *testing.T) {
	handler := &MockApprovalHandler{Response: ApprovalResponse{Approved: true, Reason: "looks fine"}}
	am := NewApprovalManager(handler)

	approved, reason, err := am.RequestApproval(context.Background(), ApprovalRequest{Tool: "write_file"})
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Equal(t, "looks fine", reason)
}

// TestApprovalManager_RequestApproval_Denied tests that denial is not an error
func TestApprovalManager_RequestApproval_Denied(t *testing.T) {
	handler := &MockApprovalHandler{Response: ApprovalResponse{Approved: false, Reason: "too risky"}}
	am := NewApprovalManager(handler)

	approved, reason, err := am.RequestApproval(context.Background(), ApprovalRequest{Tool: "shell_execute"})
	require.NoError(t, err)
	assert.False(t, approved)
	assert.Equal(t, "too risky", reason)
}

// TestApprovalManager_RequestApproval_Timeout tests timeout produces an error
func TestApprovalManager_RequestApproval_Timeout(t *testing.T) {
	handler := &MockApprovalHandler{Delay: time.Second, Response: ApprovalResponse{Approved: true}}
	am := NewApprovalManager(handler)

	approved, _, err := am.RequestApproval(context.Background(), ApprovalRequest{
		Tool:    "shell_execute",
		Timeout: 20 * time.Millisecond,
	})
	require.Error(t, err)
	assert.False(t, approved)
	assert.Contains(t, err.Error(), "timed out")
	assert.NotErrorIs(t, err, context.Canceled)
}

// TestApprovalManager_RequestApproval_Cancellation tests cancel during a wait
// surfaces the context error rather than a timeout
func TestApprovalManager_RequestApproval_Cancellation(t *testing.T) {
	handler := &MockApprovalHandler{Delay: time.Second, Response: ApprovalResponse{Approved: true}}
	am := NewApprovalManager(handler)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	approved, _, err := am.RequestApproval(ctx, ApprovalRequest{Tool: "shell_execute"})
	require.Error(t, err)
	assert.False(t, approved)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, err.Error(), "timed out")
}

// TestApprovalManager_NoHandler tests a missing handler is an error
func TestApprovalManager_NoHandler(t *testing.T) {
	am := NewApprovalManager(nil)

	_, _, err := am.RequestApproval(context.Background(), ApprovalRequest{Tool: "x"})
	assert.Error(t, err)
}

// TestAutoApproveHandler_HardDeny tests non-interactive mode honors the hard-deny list
func TestAutoApproveHandler_HardDeny(t *testing.T) {
	handler := AutoApproveHandler{HardDeny: []string{"shell_execute", "mcp_*"}}

	resp, err := handler.RequestApproval(context.Background(), ApprovalRequest{Tool: "write_file"})
	require.NoError(t, err)
	assert.True(t, resp.Approved)

	resp, err = handler.RequestApproval(context.Background(), ApprovalRequest{Tool: "shell_execute"})
	require.NoError(t, err)
	assert.False(t, resp.Approved)

	resp, err = handler.RequestApproval(context.Background(), ApprovalRequest{Tool: "mcp_files_delete"})
	require.NoError(t, err)
	assert.False(t, resp.Approved)
}

// TestCLIApprovalHandler_Approve tests the yes path
func TestCLIApprovalHandler_Approve(t *testing.T) {
	out := &strings.Builder{}
	handler := NewCLIApprovalHandler(strings.NewReader("y\n"), out)

	resp, err := handler.RequestApproval(context.Background(), ApprovalRequest{
		Tool:   "write_file",
		Target: "notes.txt",
	})
	require.NoError(t, err)
	assert.True(t, resp.Approved)
	assert.Contains(t, out.String(), "APPROVAL REQUIRED")
	assert.Contains(t, out.String(), "notes.txt")
}

// TestCLIApprovalHandler_DefaultDeny tests empty and invalid input deny
func TestCLIApprovalHandler_DefaultDeny(t *testing.T) {
	for _, input := range []string{"\n", "maybe\n", "n\n"} {
		handler := NewCLIApprovalHandler(strings.NewReader(input), &strings.Builder{})

		resp, err := handler.RequestApproval(context.Background(), ApprovalRequest{Tool: "shell_execute"})
		require.NoError(t, err)
		assert.False(t, resp.Approved, "input %q must deny", input)
	}
}
