package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// TestToGeminiContents_SystemHoisted tests system messages stay out of the content list
func TestToGeminiContents_SystemHoisted(t *testing.T) {
	contents := toGeminiContents([]Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})

	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
}

// TestToGeminiContents_ToolRoundTrip tests calls and results map to function parts
func TestToGeminiContents_ToolRoundTrip(t *testing.T) {
	contents := toGeminiContents([]Message{
		{Role: "user", Content: "list files"},
		{Role: "assistant", ToolCalls: []ToolCall{
			{ID: "call_1", Name: "read_file", Arguments: map[string]interface{}{"path": "a.txt"}},
		}},
		{Role: "tool", ToolCallID: "call_1", ToolName: "read_file", Content: "file body"},
	})

	require.Len(t, contents, 3)

	model := contents[1]
	require.Len(t, model.Parts, 1)
	require.NotNil(t, model.Parts[0].FunctionCall)
	assert.Equal(t, "read_file", model.Parts[0].FunctionCall.Name)

	result := contents[2]
	require.Len(t, result.Parts, 1)
	require.NotNil(t, result.Parts[0].FunctionResponse)
	assert.Equal(t, "read_file", result.Parts[0].FunctionResponse.Name)
	assert.Equal(t, "file body", result.Parts[0].FunctionResponse.Response["content"])
}

// TestToGeminiSchema_NestedConversion tests JSON-schema maps convert recursively
func TestToGeminiSchema_NestedConversion(t *testing.T) {
	schema := toGeminiSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "File path",
			},
			"tags": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"depth": map[string]interface{}{"type": "integer"},
		},
		"required": []interface{}{"path"},
	})

	require.NotNil(t, schema)
	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.Equal(t, []string{"path"}, schema.Required)

	require.Contains(t, schema.Properties, "path")
	assert.Equal(t, genai.TypeString, schema.Properties["path"].Type)
	assert.Equal(t, "File path", schema.Properties["path"].Description)

	require.Contains(t, schema.Properties, "tags")
	assert.Equal(t, genai.TypeArray, schema.Properties["tags"].Type)
	require.NotNil(t, schema.Properties["tags"].Items)
	assert.Equal(t, genai.TypeString, schema.Properties["tags"].Items.Type)

	assert.Equal(t, genai.TypeInteger, schema.Properties["depth"].Type)
}

// TestToGeminiType_UnknownDefaultsToString tests unrecognized type names
func TestToGeminiType_UnknownDefaultsToString(t *testing.T) {
	assert.Equal(t, genai.TypeString, toGeminiType("mystery"))
}
