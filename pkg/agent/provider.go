package agent

import (
	"context"
	"fmt"

	"github.com/harun/kestrel/pkg/toolexecutor"
)

// Provider normalizes one conversational backend into the shared
// request/response shape. All per-backend shaping lives inside the
// adapter; the loop never branches on provider identity.
type Provider interface {
	// Converse makes one model call with full history and tool
	// descriptors. It must not mutate the caller's message slice.
	Converse(ctx context.Context, request ConverseRequest) (*ConverseResponse, error)

	// Name returns the provider name.
	Name() string
}

// ConverseRequest contains the inputs for one provider turn.
type ConverseRequest struct {
	Model        string
	Messages     []Message
	Tools        []toolexecutor.ToolDescriptor
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// ConverseResponse is the normalized provider output. Text is an empty
// string, never absent, on turns that contain only tool calls.
type ConverseResponse struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
	Usage      TokenUsage
}

// ProviderCreator creates providers by name.
type ProviderCreator interface {
	NewProvider(ctx context.Context, name string, apiKey string) (Provider, error)
}

// ProviderFactory is the default ProviderCreator.
type ProviderFactory struct{}

// NewProvider creates an adapter for one of the supported backends.
func (f *ProviderFactory) NewProvider(ctx context.Context, name string, apiKey string) (Provider, error) {
	switch name {
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	case "gemini":
		return NewGeminiProvider(ctx, apiKey)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
