package toolexecutor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// CLIApprovalHandler handles approval requests via CLI prompts
type CLIApprovalHandler struct {
	reader io.Reader
	writer io.Writer
}

// NewCLIApprovalHandler creates a new CLI approval handler
func NewCLIApprovalHandler(reader io.Reader, writer io.Writer) *CLIApprovalHandler {
	return &CLIApprovalHandler{
		reader: reader,
		writer: writer,
	}
}

// RequestApproval prompts the user for approval via CLI
func (c *CLIApprovalHandler) RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error) {
	c.displayApprovalRequest(req)

	responseChan := make(chan ApprovalResponse, 1)
	errorChan := make(chan error, 1)

	go func() {
		response, err := c.readUserInput(req)
		if err != nil {
			errorChan <- err
		} else {
			responseChan <- response
		}
	}()

	select {
	case response := <-responseChan:
		return response, nil

	case err := <-errorChan:
		return ApprovalResponse{}, err

	case <-ctx.Done():
		fmt.Fprintln(c.writer, "")
		fmt.Fprintln(c.writer, "  approval request cancelled")
		return ApprovalResponse{
			Approved: false,
			Reason:   "cancelled",
		}, ctx.Err()
	}
}

// displayApprovalRequest displays the approval request to the user
func (c *CLIApprovalHandler) displayApprovalRequest(req ApprovalRequest) {
	fmt.Fprintln(c.writer, "")
	fmt.Fprintln(c.writer, "╔════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(c.writer, "║                    APPROVAL REQUIRED                           ║")
	fmt.Fprintln(c.writer, "╚════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(c.writer, "")
	fmt.Fprintf(c.writer, "  Tool:       %s\n", req.Tool)

	if req.Target != "" {
		fmt.Fprintf(c.writer, "  Target:     %s\n", req.Target)
	}

	if len(req.Arguments) > 0 {
		if args, err := json.MarshalIndent(req.Arguments, "              ", "  "); err == nil {
			fmt.Fprintf(c.writer, "  Arguments:  %s\n", string(args))
		}
	}

	if req.Cwd != "" {
		fmt.Fprintf(c.writer, "  Directory:  %s\n", req.Cwd)
	}

	fmt.Fprintln(c.writer, "")
	fmt.Fprint(c.writer, "  Approve this action? [y/N]: ")
}

// readUserInput reads and parses user input
func (c *CLIApprovalHandler) readUserInput(req ApprovalRequest) (ApprovalResponse, error) {
	scanner := bufio.NewScanner(c.reader)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return ApprovalResponse{}, fmt.Errorf("failed to read input: %w", err)
		}
		// EOF or no input
		return ApprovalResponse{
			Approved: false,
			Reason:   "no input provided",
		}, nil
	}

	input := strings.TrimSpace(strings.ToLower(scanner.Text()))

	var response ApprovalResponse
	switch input {
	case "y", "yes":
		response = ApprovalResponse{
			Approved: true,
			Reason:   "approved by user",
		}
		fmt.Fprintln(c.writer, "")
		fmt.Fprintln(c.writer, "  action approved")

		log.Info().
			Str("tool", req.Tool).
			Msg("Action approved via CLI")

	case "n", "no", "":
		response = ApprovalResponse{
			Approved: false,
			Reason:   "denied by user",
		}
		fmt.Fprintln(c.writer, "")
		fmt.Fprintln(c.writer, "  action denied")

		log.Info().
			Str("tool", req.Tool).
			Msg("Action denied via CLI")

	default:
		// Anything unrecognized defaults to deny
		response = ApprovalResponse{
			Approved: false,
			Reason:   fmt.Sprintf("invalid input: %s", input),
		}
		fmt.Fprintln(c.writer, "")
		fmt.Fprintf(c.writer, "  invalid input %q (defaulting to deny)\n", input)

		log.Warn().
			Str("tool", req.Tool).
			Str("input", input).
			Msg("Invalid input for approval")
	}

	return response, nil
}
