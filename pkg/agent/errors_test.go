package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTransportError_Transient tests the retry gate per failure kind
func TestTransportError_Transient(t *testing.T) {
	for _, kind := range []TransportKind{TransportUnreachable, TransportRateLimited, TransportDecode} {
		err := &TransportError{Kind: kind, Err: fmt.Errorf("boom")}
		assert.True(t, err.Transient(), "kind %s must be transient", kind)
	}

	unknown := &TransportError{Kind: "something-else", Err: fmt.Errorf("boom")}
	assert.False(t, unknown.Transient())
}

// TestClassifyProviderError_RateLimit tests 429-shaped errors classify as rate limited
func TestClassifyProviderError_RateLimit(t *testing.T) {
	for _, msg := range []string{"status 429", "rate limit exceeded", "quota exhausted"} {
		err := classifyProviderError(fmt.Errorf("%s", msg))

		var te *TransportError
		require.ErrorAs(t, err, &te, "message %q", msg)
		assert.Equal(t, TransportRateLimited, te.Kind)
	}
}

// TestClassifyProviderError_Network tests unknown failures default to unreachable
func TestClassifyProviderError_Network(t *testing.T) {
	err := classifyProviderError(fmt.Errorf("connection refused"))

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, TransportUnreachable, te.Kind)
}

// TestClassifyProviderError_CancellationPassthrough tests aborts are not reclassified
func TestClassifyProviderError_CancellationPassthrough(t *testing.T) {
	err := classifyProviderError(context.Canceled)
	assert.True(t, errors.Is(err, context.Canceled))

	var te *TransportError
	assert.False(t, errors.As(err, &te))
}

// TestClassifyProviderError_PreservesExistingClassification tests wrapped transport errors pass through
func TestClassifyProviderError_PreservesExistingClassification(t *testing.T) {
	original := newDecodeError(fmt.Errorf("bad json"))
	err := classifyProviderError(fmt.Errorf("wrapped: %w", original))

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, TransportDecode, te.Kind)
}
