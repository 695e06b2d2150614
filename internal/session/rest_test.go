package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/usamanadeem786/iiagentd/internal/config"
	"github.com/usamanadeem786/iiagentd/internal/event"
	"github.com/usamanadeem786/iiagentd/internal/persistence"
)

func testSystemEvent(text string) event.RealtimeEvent {
	return event.New(event.TypeSystem, map[string]any{"text": text})
}

func newTestServer(t *testing.T) (*Server, *persistence.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := persistence.Open(context.Background(), filepath.Join(dir, "agentd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Config{WorkspaceRoot: dir, LLMProvider: "anthropic", Model: "test-model"}
	return New(cfg, store), store
}

func seedTestSession(t *testing.T, store *persistence.Store, deviceID string) persistence.Session {
	t.Helper()
	sess := persistence.Session{
		ID:           uuid.New(),
		WorkspaceDir: t.TempDir(),
		CreatedAt:    time.Now(),
		DeviceID:     deviceID,
	}
	require.NoError(t, store.CreateSession(context.Background(), sess))
	return sess
}

func TestHandleUploadWritesPlainTextFile(t *testing.T) {
	srv, store := newTestServer(t)
	sess := seedTestSession(t, store, "device-1")

	body, err := json.Marshal(uploadRequest{
		SessionID: sess.ID.String(),
		File:      uploadFile{Path: "notes.txt", Content: "hello world"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data, err := os.ReadFile(filepath.Join(sess.WorkspaceDir, "uploads", "notes.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func TestHandleUploadDecodesBase64DataURL(t *testing.T) {
	srv, store := newTestServer(t)
	sess := seedTestSession(t, store, "device-1")

	encoded := base64.StdEncoding.EncodeToString([]byte("binary payload"))
	body, err := json.Marshal(uploadRequest{
		SessionID: sess.ID.String(),
		File:      uploadFile{Path: "blob.bin", Content: "data:application/octet-stream;base64," + encoded},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data, err := os.ReadFile(filepath.Join(sess.WorkspaceDir, "uploads", "blob.bin"))
	require.NoError(t, err)
	require.Equal(t, "binary payload", string(data))
}

func TestHandleUploadRenamesOnCollision(t *testing.T) {
	srv, store := newTestServer(t)
	sess := seedTestSession(t, store, "device-1")

	for _, want := range []string{"note.txt", "note_1.txt", "note_2.txt"} {
		body, _ := json.Marshal(uploadRequest{
			SessionID: sess.ID.String(),
			File:      uploadFile{Path: "note.txt", Content: "v"},
		})
		req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, filepath.Join("uploads", want), resp["path"])
	}
}

func TestHandleListSessionsOrdersDescending(t *testing.T) {
	srv, store := newTestServer(t)
	older := seedTestSession(t, store, "device-1")
	time.Sleep(5 * time.Millisecond)
	newer := seedTestSession(t, store, "device-1")

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/device-1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Sessions []persistence.SessionSummary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 2)
	require.Equal(t, newer.ID, resp.Sessions[0].ID)
	require.Equal(t, older.ID, resp.Sessions[1].ID)
}

func TestHandleListEventsAscending(t *testing.T) {
	srv, store := newTestServer(t)
	sess := seedTestSession(t, store, "device-1")
	es := persistence.NewEventStore(store)
	require.NoError(t, es.AppendEvent(context.Background(), sess.ID, testSystemEvent("first")))
	require.NoError(t, es.AppendEvent(context.Background(), sess.ID, testSystemEvent("second")))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+sess.ID.String()+"/events", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Events []persistence.StoredEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 2)
	require.Equal(t, "first", resp.Events[0].Event.Content["text"])
	require.Equal(t, "second", resp.Events[1].Event.Content["text"])
}
