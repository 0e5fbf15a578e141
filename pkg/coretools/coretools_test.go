package coretools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/kestrel/pkg/toolexecutor"
)

func newTestExecutor(t *testing.T, workspace string) *toolexecutor.ToolExecutor {
	t.Helper()
	te := toolexecutor.New()
	require.NoError(t, RegisterCoreTools(te, Options{WorkspaceRoot: workspace}))
	return te
}

// TestRegisterCoreTools_RegistersAll tests the baseline tool set is present
func TestRegisterCoreTools_RegistersAll(t *testing.T) {
	te := newTestExecutor(t, t.TempDir())

	names := te.ListTools()
	assert.Contains(t, names, "read_file")
	assert.Contains(t, names, "write_file")
	assert.Contains(t, names, "edit_file")
	assert.Contains(t, names, "shell_execute")
}

// TestReadFileTool_ReadsContent tests a plain read
func TestReadFileTool_ReadsContent(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "hello.txt"), []byte("hello world"), 0644))

	te := newTestExecutor(t, workspace)
	result := te.Execute(context.Background(), "read_file",
		map[string]interface{}{"path": "hello.txt"}, &toolexecutor.ExecutionContext{WorkingDir: workspace})

	require.True(t, result.Success, result.Error)
	output := result.Output.(map[string]interface{})
	assert.Equal(t, "hello world", output["content"])
	assert.Equal(t, false, output["truncated"])
}

// TestReadFileTool_TruncatesAtLimit tests the byte limit sets the truncation flag
func TestReadFileTool_TruncatesAtLimit(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "big.txt"), []byte(strings.Repeat("a", 100)), 0644))

	te := newTestExecutor(t, workspace)
	result := te.Execute(context.Background(), "read_file",
		map[string]interface{}{"path": "big.txt", "max_bytes": float64(10)},
		&toolexecutor.ExecutionContext{WorkingDir: workspace})

	require.True(t, result.Success, result.Error)
	output := result.Output.(map[string]interface{})
	assert.Equal(t, strings.Repeat("a", 10), output["content"])
	assert.Equal(t, true, output["truncated"])
}

// TestWriteFileTool_CreatesParentDirs tests writes create missing directories
func TestWriteFileTool_CreatesParentDirs(t *testing.T) {
	workspace := t.TempDir()
	te := newTestExecutor(t, workspace)

	result := te.Execute(context.Background(), "write_file",
		map[string]interface{}{"path": "a/b/c.txt", "content": "nested"},
		&toolexecutor.ExecutionContext{WorkingDir: workspace})

	require.True(t, result.Success, result.Error)
	data, err := os.ReadFile(filepath.Join(workspace, "a", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested", string(data))
}

// TestWriteFileTool_Append tests append mode keeps existing content
func TestWriteFileTool_Append(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "log.txt"), []byte("one\n"), 0644))

	te := newTestExecutor(t, workspace)
	result := te.Execute(context.Background(), "write_file",
		map[string]interface{}{"path": "log.txt", "content": "two\n", "append": true},
		&toolexecutor.ExecutionContext{WorkingDir: workspace})

	require.True(t, result.Success, result.Error)
	data, err := os.ReadFile(filepath.Join(workspace, "log.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}

// TestEditFileTool_UniqueReplacement tests a single exact match is replaced
func TestEditFileTool_UniqueReplacement(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "main.go"), []byte("port := 8080\n"), 0644))

	te := newTestExecutor(t, workspace)
	result := te.Execute(context.Background(), "edit_file",
		map[string]interface{}{"path": "main.go", "old_text": "8080", "new_text": "9090"},
		&toolexecutor.ExecutionContext{WorkingDir: workspace})

	require.True(t, result.Success, result.Error)
	data, err := os.ReadFile(filepath.Join(workspace, "main.go"))
	require.NoError(t, err)
	assert.Equal(t, "port := 9090\n", string(data))
}

// TestEditFileTool_AmbiguousMatchFails tests multiple matches are rejected
func TestEditFileTool_AmbiguousMatchFails(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "dup.txt"), []byte("x x"), 0644))

	te := newTestExecutor(t, workspace)
	result := te.Execute(context.Background(), "edit_file",
		map[string]interface{}{"path": "dup.txt", "old_text": "x", "new_text": "y"},
		&toolexecutor.ExecutionContext{WorkingDir: workspace})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unique")
}

// TestResolvePathInWorkspace_EscapeRejected tests the workspace confinement helper
func TestResolvePathInWorkspace_EscapeRejected(t *testing.T) {
	workspace := t.TempDir()

	_, err := resolvePathInWorkspace(workspace, "../outside.txt")
	assert.Error(t, err)

	_, err = resolvePathInWorkspace(workspace, "nested/../../escape.txt")
	assert.Error(t, err)

	resolved, err := resolvePathInWorkspace(workspace, "nested/../inside.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workspace, "inside.txt"), resolved)
}

// TestExecTool_CapturesOutputAndExitCode tests stdout and a nonzero exit
func TestExecTool_CapturesOutputAndExitCode(t *testing.T) {
	workspace := t.TempDir()
	te := newTestExecutor(t, workspace)

	result := te.Execute(context.Background(), "shell_execute",
		map[string]interface{}{"command": "sh", "args": []interface{}{"-c", "echo hi; exit 3"}},
		&toolexecutor.ExecutionContext{WorkingDir: workspace, AutoApprove: true})

	require.True(t, result.Success, result.Error)
	output := result.Output.(map[string]interface{})
	assert.Equal(t, "hi\n", output["stdout"])
	assert.Equal(t, 3, output["exit_code"])
}

// TestExecTool_Stdin tests standard input is piped to the command
func TestExecTool_Stdin(t *testing.T) {
	workspace := t.TempDir()
	te := newTestExecutor(t, workspace)

	result := te.Execute(context.Background(), "shell_execute",
		map[string]interface{}{"command": "cat", "stdin": "piped"},
		&toolexecutor.ExecutionContext{WorkingDir: workspace, AutoApprove: true})

	require.True(t, result.Success, result.Error)
	output := result.Output.(map[string]interface{})
	assert.Equal(t, "piped", output["stdout"])
}

// TestParseDurationSeconds tests timeout coercion from JSON numbers
func TestParseDurationSeconds(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseDurationSeconds(float64(5), 30*time.Second))
	assert.Equal(t, 30*time.Second, parseDurationSeconds(nil, 30*time.Second))
	assert.Equal(t, 30*time.Second, parseDurationSeconds(float64(-1), 30*time.Second))
}
