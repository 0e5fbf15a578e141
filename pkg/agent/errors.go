package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TransportKind classifies provider call failures so the loop can apply
// different recovery per kind.
type TransportKind string

const (
	// TransportUnreachable covers network failures and 5xx responses.
	TransportUnreachable TransportKind = "unreachable"
	// TransportRateLimited covers 429 and quota responses.
	TransportRateLimited TransportKind = "rate_limited"
	// TransportDecode covers responses whose payload cannot be decoded,
	// including tool arguments that are not valid JSON.
	TransportDecode TransportKind = "decode"
)

// TransportError wraps a provider call failure with its classification.
type TransportError struct {
	Kind TransportKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s): %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is worth one retry with backoff.
// A malformed response counts: the model may well produce a decodable
// one on the next attempt.
func (e *TransportError) Transient() bool {
	switch e.Kind {
	case TransportUnreachable, TransportRateLimited, TransportDecode:
		return true
	}
	return false
}

// newDecodeError wraps an undecodable-payload failure.
func newDecodeError(err error) *TransportError {
	return &TransportError{Kind: TransportDecode, Err: err}
}

// classifyProviderError maps an SDK call failure onto the transport
// taxonomy. Cancellation is passed through untouched so the loop can
// tell an abort from a network fault.
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota") {
		return &TransportError{Kind: TransportRateLimited, Err: err}
	}
	return &TransportError{Kind: TransportUnreachable, Err: err}
}
