package agent

import (
	"context"
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"google.golang.org/genai"

	"github.com/harun/kestrel/pkg/toolexecutor"
)

// GeminiProvider implements Provider for Google Gemini.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a new Gemini adapter.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Converse makes one call to the GenerateContent API.
func (p *GeminiProvider) Converse(ctx context.Context, request ConverseRequest) (*ConverseResponse, error) {
	contents := toGeminiContents(request.Messages)

	config := &genai.GenerateContentConfig{}
	if request.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(request.SystemPrompt)},
		}
	}
	if request.Temperature > 0 {
		temp := float32(request.Temperature)
		config.Temperature = &temp
	}
	if request.MaxTokens > 0 {
		config.MaxOutputTokens = int32(request.MaxTokens)
	}
	if len(request.Tools) > 0 {
		config.Tools = toGeminiTools(request.Tools)
	}

	response, err := p.client.Models.GenerateContent(ctx, request.Model, contents, config)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return nil, newDecodeError(fmt.Errorf("no candidates in response"))
	}
	candidate := response.Candidates[0]

	text := ""
	toolCalls := []ToolCall{}

	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
		if part.FunctionCall != nil {
			// Gemini does not assign call IDs; synthesize them so
			// results can be correlated like the other backends.
			id, err := gonanoid.New()
			if err != nil {
				return nil, fmt.Errorf("failed to generate call id: %w", err)
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:        "call_" + id,
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		}
	}

	usage := TokenUsage{}
	if response.UsageMetadata != nil {
		usage.InputTokens = int(response.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(response.UsageMetadata.CandidatesTokenCount)
	}

	return &ConverseResponse{
		Text:       text,
		ToolCalls:  toolCalls,
		StopReason: string(candidate.FinishReason),
		Usage:      usage,
	}, nil
}

// toGeminiContents converts the shared message shape to Gemini contents.
// System messages are hoisted into the config, not the content list.
func toGeminiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			continue

		case "user":
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
			})

		case "assistant":
			parts := make([]*genai.Part, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						Name: tc.Name,
						Args: tc.Arguments,
					},
				})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})

		case "tool":
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						Name: msg.ToolName,
						Response: map[string]interface{}{
							"content": msg.Content,
						},
					},
				}},
			})
		}
	}

	return contents
}

// toGeminiTools converts tool descriptors to function declarations.
func toGeminiTools(tools []toolexecutor.ToolDescriptor) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  toGeminiSchema(tool.InputSchema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toGeminiSchema converts a JSON-schema-shaped map to a Gemini schema.
func toGeminiSchema(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return nil
	}

	out := &genai.Schema{Type: genai.TypeObject}

	if typeStr, ok := schema["type"].(string); ok {
		out.Type = toGeminiType(typeStr)
	}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}

	if props, ok := schema["properties"].(map[string]interface{}); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if propMap, ok := raw.(map[string]interface{}); ok {
				out.Properties[name] = toGeminiSchema(propMap)
			}
		}
	}

	if items, ok := schema["items"].(map[string]interface{}); ok {
		out.Items = toGeminiSchema(items)
	}

	if required, ok := schema["required"].([]interface{}); ok {
		for _, v := range required {
			if s, ok := v.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	} else if required, ok := schema["required"].([]string); ok {
		out.Required = required
	}

	if enum, ok := schema["enum"].([]interface{}); ok {
		for _, v := range enum {
			if s, ok := v.(string); ok {
				out.Enum = append(out.Enum, s)
			}
		}
	}

	return out
}

// toGeminiType converts a JSON schema type name to a Gemini type.
func toGeminiType(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// classifyGeminiError maps SDK errors onto the transport taxonomy using
// the API status code when one is available.
func classifyGeminiError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return &TransportError{Kind: TransportRateLimited, Err: err}
		case 400:
			return newDecodeError(err)
		default:
			return &TransportError{Kind: TransportUnreachable, Err: err}
		}
	}

	return classifyProviderError(err)
}
