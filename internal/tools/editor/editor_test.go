package editor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usamanadeem786/iiagentd/internal/sandbox"
)

func newTestTool(t *testing.T) *Tool {
	t.Helper()
	root := t.TempDir()
	return New(sandbox.Workspace{Root: root})
}

func TestCreateThenView(t *testing.T) {
	tool := newTestTool(t)
	ctx := context.Background()

	_, err := tool.Call(ctx, map[string]any{"command": "create", "path": "a.txt", "file_text": "line1\nline2\nline3\n"})
	require.NoError(t, err)

	res, err := tool.Call(ctx, map[string]any{"command": "view", "path": "a.txt"})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "line1")
	assert.Contains(t, res.Text, "line2")
	assert.Contains(t, res.Text, "Total lines in file: 3")
}

func TestCreateFailsWhenTargetExistsAndNonEmpty(t *testing.T) {
	tool := newTestTool(t)
	ctx := context.Background()
	require.NoError(t, must(tool.Call(ctx, map[string]any{"command": "create", "path": "a.txt", "file_text": "hello\n"})))

	_, err := tool.Call(ctx, map[string]any{"command": "create", "path": "a.txt", "file_text": "clobber\n"})
	assert.Error(t, err)

	data, err := os.ReadFile(filepath.Join(tool.workspace.Root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestCreateThenUndoRestoresEmpty(t *testing.T) {
	tool := newTestTool(t)
	ctx := context.Background()
	require.NoError(t, must(tool.Call(ctx, map[string]any{"command": "create", "path": "a.txt", "file_text": "hello\n"})))

	_, err := tool.Call(ctx, map[string]any{"command": "undo_edit", "path": "a.txt"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(tool.workspace.Root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "", string(data))
}

func TestViewDirectoryListsNonHiddenTwoLevelsDeep(t *testing.T) {
	tool := newTestTool(t)
	ctx := context.Background()
	root := tool.workspace.Root
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "child.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "nested", "grandchild.txt"), []byte("x"), 0o644))

	res, err := tool.Call(ctx, map[string]any{"command": "view", "path": "."})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "top.txt")
	assert.Contains(t, res.Text, filepath.Join("sub", "child.txt"))
	assert.NotContains(t, res.Text, ".hidden")
	assert.NotContains(t, res.Text, "grandchild.txt")
}

func TestStrReplaceRequiresUniqueMatch(t *testing.T) {
	tool := newTestTool(t)
	ctx := context.Background()
	require.NoError(t, must(tool.Call(ctx, map[string]any{"command": "create", "path": "a.txt", "file_text": "foo\nfoo\n"})))

	_, err := tool.Call(ctx, map[string]any{"command": "str_replace", "path": "a.txt", "old_str": "foo", "new_str": "bar"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "[1 2]")
}

func TestStrReplaceZeroOccurrencesReportsDidNotAppear(t *testing.T) {
	tool := newTestTool(t)
	ctx := context.Background()
	require.NoError(t, must(tool.Call(ctx, map[string]any{"command": "create", "path": "a.txt", "file_text": "hello\n"})))

	_, err := tool.Call(ctx, map[string]any{"command": "str_replace", "path": "a.txt", "old_str": "missing", "new_str": "x"})
	assert.ErrorContains(t, err, "did not appear")
}

func TestStrReplaceBlankOldStrOnlyAllowedOnEmptyFile(t *testing.T) {
	tool := newTestTool(t)
	ctx := context.Background()
	require.NoError(t, must(tool.Call(ctx, map[string]any{"command": "create", "path": "a.txt", "file_text": ""})))

	_, err := tool.Call(ctx, map[string]any{"command": "str_replace", "path": "a.txt", "old_str": "", "new_str": "seeded\n"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(tool.workspace.Root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "seeded\n", string(data))
}

func TestStrReplaceIgnoringIndentationReindents(t *testing.T) {
	tool := newTestTool(t)
	ctx := context.Background()
	require.NoError(t, must(tool.Call(ctx, map[string]any{"command": "create", "path": "a.txt", "file_text": "func f() {\n    return 1\n}\n"})))

	// old_str carries the wrong (8-space) indentation, so it is not a
	// literal substring of the file and must fall back to the
	// indentation-ignoring match, reindenting new_str by the file's own
	// (4-space) indentation rather than whatever old_str/new_str used.
	_, err := tool.Call(ctx, map[string]any{"command": "str_replace", "path": "a.txt", "old_str": "        return 1", "new_str": "return 2"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(tool.workspace.Root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "func f() {\n    return 2\n}\n", string(data))
}

func TestStrReplaceAndUndo(t *testing.T) {
	tool := newTestTool(t)
	ctx := context.Background()
	require.NoError(t, must(tool.Call(ctx, map[string]any{"command": "create", "path": "a.txt", "file_text": "hello world\n"})))

	_, err := tool.Call(ctx, map[string]any{"command": "str_replace", "path": "a.txt", "old_str": "world", "new_str": "there"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(tool.workspace.Root, "a.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello there")

	_, err = tool.Call(ctx, map[string]any{"command": "undo_edit", "path": "a.txt"})
	require.NoError(t, err)

	data, err = os.ReadFile(filepath.Join(tool.workspace.Root, "a.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello world")
}

func TestPathEscapeRejected(t *testing.T) {
	tool := newTestTool(t)
	_, err := tool.Call(context.Background(), map[string]any{"command": "view", "path": "../../etc/passwd"})
	assert.Error(t, err)
}

func must(_ any, err error) error { return err }
