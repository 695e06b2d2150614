package shell

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usamanadeem786/iiagentd/internal/sandbox"
)

func TestRunEchoCommand(t *testing.T) {
	tool := New(Config{Timeout: 5 * time.Second}, sandbox.Workspace{Root: t.TempDir()})
	defer tool.Close()

	res, err := tool.Call(context.Background(), map[string]any{"command": "echo hello"})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "hello")
}

func TestStatePersistsAcrossCalls(t *testing.T) {
	tool := New(Config{Timeout: 5 * time.Second}, sandbox.Workspace{Root: t.TempDir()})
	defer tool.Close()

	_, err := tool.Call(context.Background(), map[string]any{"command": "export FOO=bar"})
	require.NoError(t, err)

	res, err := tool.Call(context.Background(), map[string]any{"command": "echo $FOO"})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "bar")
}

func TestBannedSubstringRejected(t *testing.T) {
	tool := New(Config{Timeout: 5 * time.Second, BannedSubstrings: []string{"git init"}}, sandbox.Workspace{Root: t.TempDir()})
	defer tool.Close()

	_, err := tool.Call(context.Background(), map[string]any{"command": "git init"})
	assert.Error(t, err)
}

func TestConfirmationCanRejectCommand(t *testing.T) {
	tool := New(Config{
		Timeout:        5 * time.Second,
		RequireConfirm: true,
		Confirm:        func(context.Context, string) (bool, error) { return false, nil },
	}, sandbox.Workspace{Root: t.TempDir()})
	defer tool.Close()

	res, err := tool.Call(context.Background(), map[string]any{"command": "echo hi"})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "rejected")
}
