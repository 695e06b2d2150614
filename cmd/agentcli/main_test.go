package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/usamanadeem786/iiagentd/internal/config"
	"github.com/usamanadeem786/iiagentd/internal/persistence"
)

func newTestStore(t *testing.T) *persistence.Store {
	t.Helper()
	store, err := persistence.Open(context.Background(), filepath.Join(t.TempDir(), "agentd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestResolveSessionCreatesNewSessionUnderWorkspaceRoot(t *testing.T) {
	store := newTestStore(t)
	cfg := config.Config{WorkspaceRoot: t.TempDir()}

	id, workspaceDir, err := resolveSession(context.Background(), store, cfg, "")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)
	require.Equal(t, filepath.Join(cfg.WorkspaceRoot, id.String()), workspaceDir)

	sess, err := store.GetSession(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "cli", sess.DeviceID)
}

func TestResolveSessionResumesExistingSession(t *testing.T) {
	store := newTestStore(t)
	cfg := config.Config{WorkspaceRoot: t.TempDir()}

	existing := persistence.Session{ID: uuid.New(), WorkspaceDir: t.TempDir(), CreatedAt: time.Now(), DeviceID: "cli"}
	require.NoError(t, store.CreateSession(context.Background(), existing))

	id, workspaceDir, err := resolveSession(context.Background(), store, cfg, existing.ID.String())
	require.NoError(t, err)
	require.Equal(t, existing.ID, id)
	require.Equal(t, existing.WorkspaceDir, workspaceDir)
}

func TestResolveSessionRejectsInvalidResumeID(t *testing.T) {
	store := newTestStore(t)
	cfg := config.Config{WorkspaceRoot: t.TempDir()}

	_, _, err := resolveSession(context.Background(), store, cfg, "not-a-uuid")
	require.Error(t, err)
}
