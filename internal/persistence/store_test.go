package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/usamanadeem786/iiagentd/internal/event"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentd.db")
	store, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedSession(t *testing.T, store *Store, deviceID string) Session {
	t.Helper()
	sess := Session{
		ID:           uuid.New(),
		WorkspaceDir: filepath.Join(t.TempDir(), "workspace"),
		CreatedAt:    time.Now(),
		DeviceID:     deviceID,
	}
	require.NoError(t, store.CreateSession(context.Background(), sess))
	return sess
}

func TestCreateAndGetSessionRoundTrips(t *testing.T) {
	store := newTestStore(t)
	sess := seedSession(t, store, "device-1")

	got, err := store.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.ID, got.ID)
	require.Equal(t, sess.WorkspaceDir, got.WorkspaceDir)
	require.Equal(t, "device-1", got.DeviceID)
}

func TestGetSessionMissingReturnsPersistenceError(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetSession(context.Background(), uuid.New())
	require.Error(t, err)
}

func TestListSessionsForDeviceOrdersDescendingWithFirstMessage(t *testing.T) {
	store := newTestStore(t)
	es := NewEventStore(store)
	ctx := context.Background()

	older := seedSession(t, store, "device-1")
	time.Sleep(5 * time.Millisecond)
	newer := seedSession(t, store, "device-1")

	require.NoError(t, es.AppendEvent(ctx, older.ID, event.New(event.TypeUserMessage, map[string]any{"text": "hello from older"})))
	require.NoError(t, es.AppendEvent(ctx, newer.ID, event.New(event.TypeUserMessage, map[string]any{"text": "hello from newer"})))

	summaries, err := store.ListSessionsForDevice(ctx, "device-1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, newer.ID, summaries[0].ID)
	require.Equal(t, older.ID, summaries[1].ID)
}

func TestAppendAndListEventsOrdersAscending(t *testing.T) {
	store := newTestStore(t)
	es := NewEventStore(store)
	ctx := context.Background()
	sess := seedSession(t, store, "")

	require.NoError(t, es.AppendEvent(ctx, sess.ID, event.New(event.TypeUserMessage, map[string]any{"text": "hi"})))
	require.NoError(t, es.AppendEvent(ctx, sess.ID, event.New(event.TypeAgentResponse, map[string]any{"text": "hello"})))

	events, err := es.ListEvents(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, event.TypeUserMessage, events[0].Event.Type)
	require.Equal(t, event.TypeAgentResponse, events[1].Event.Type)
}

func TestDeleteEventsFromLastToUserMessageTruncatesTail(t *testing.T) {
	store := newTestStore(t)
	es := NewEventStore(store)
	ctx := context.Background()
	sess := seedSession(t, store, "")

	require.NoError(t, es.AppendEvent(ctx, sess.ID, event.New(event.TypeUserMessage, map[string]any{"text": "first"})))
	require.NoError(t, es.AppendEvent(ctx, sess.ID, event.New(event.TypeAgentResponse, map[string]any{"text": "reply 1"})))
	require.NoError(t, es.AppendEvent(ctx, sess.ID, event.New(event.TypeUserMessage, map[string]any{"text": "edited"})))
	require.NoError(t, es.AppendEvent(ctx, sess.ID, event.New(event.TypeAgentResponse, map[string]any{"text": "reply 2"})))

	require.NoError(t, es.DeleteEventsFromLastToUserMessage(ctx, sess.ID))

	remaining, err := es.ListEvents(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	require.Equal(t, "first", remaining[0].Event.Content["text"])
	require.Equal(t, "reply 1", remaining[1].Event.Content["text"])
}

func TestDeleteEventsFromLastToUserMessageNoopWithoutUserMessage(t *testing.T) {
	store := newTestStore(t)
	es := NewEventStore(store)
	ctx := context.Background()
	sess := seedSession(t, store, "")

	require.NoError(t, es.AppendEvent(ctx, sess.ID, event.New(event.TypeSystem, map[string]any{"text": "boot"})))
	require.NoError(t, es.DeleteEventsFromLastToUserMessage(ctx, sess.ID))

	remaining, err := es.ListEvents(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
}

func TestCascadeDeletesEventsWhenSessionDeleted(t *testing.T) {
	store := newTestStore(t)
	es := NewEventStore(store)
	ctx := context.Background()
	sess := seedSession(t, store, "")
	require.NoError(t, es.AppendEvent(ctx, sess.ID, event.New(event.TypeSystem, nil)))

	_, err := store.db.ExecContext(ctx, `DELETE FROM session WHERE id = ?`, sess.ID.String())
	require.NoError(t, err)

	remaining, err := es.ListEvents(ctx, sess.ID)
	require.NoError(t, err)
	require.Empty(t, remaining)
}
