package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Matches the teacher's internal/httpapi/handlers.go respondJSON/
// respondError pair exactly.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

// uploadFile is the content.file payload of spec.md §6's POST /api/upload.
type uploadFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type uploadRequest struct {
	SessionID string     `json:"session_id"`
	File      uploadFile `json:"file"`
}

// handleUpload implements POST /api/upload: the file is written into
// <workspace>/uploads/, renaming on collision to name_{n}.ext.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid session_id"))
		return
	}
	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}

	data, err := decodeUploadContent(req.File.Content)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	uploadsDir := filepath.Join(sess.WorkspaceDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	name := filepath.Base(req.File.Path)
	finalPath, err := avoidCollision(uploadsDir, name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if err := os.WriteFile(finalPath, data, 0o644); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	rel, _ := filepath.Rel(sess.WorkspaceDir, finalPath)
	respondJSON(w, http.StatusOK, map[string]any{"path": rel})
}

// decodeUploadContent accepts either a data: URL (base64) or plain text,
// per spec.md §6's "content may be a data URL (base64) or plain text".
func decodeUploadContent(content string) ([]byte, error) {
	if strings.HasPrefix(content, "data:") {
		idx := strings.Index(content, ",")
		if idx < 0 {
			return nil, errors.New("malformed data URL")
		}
		meta, payload := content[:idx], content[idx+1:]
		if strings.Contains(meta, ";base64") {
			return base64.StdEncoding.DecodeString(payload)
		}
		return []byte(payload), nil
	}
	return []byte(content), nil
}

// avoidCollision renames to base_{n}.ext if name already exists in dir.
func avoidCollision(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate, nil
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, n, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
}

// handleListSessions implements GET /api/sessions/{device_id}.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	summaries, err := s.store.ListSessionsForDevice(r.Context(), deviceID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

// handleListEvents implements GET /api/sessions/{session_id}/events.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("session_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid session_id"))
		return
	}
	events, err := s.eventStore.ListEvents(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}
