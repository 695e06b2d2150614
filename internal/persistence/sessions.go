package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/usamanadeem786/iiagentd/internal/agenterrors"
)

// Session mirrors spec.md §4.2's Session value and the session table row.
type Session struct {
	ID           uuid.UUID
	WorkspaceDir string
	CreatedAt    time.Time
	DeviceID     string // empty when unset
}

// SessionSummary is one row of GET /api/sessions/{device_id}: the session
// plus the text of its first user message, for a session picker UI.
type SessionSummary struct {
	Session
	FirstMessage string
}

// CreateSession inserts a new session row at connection init, per
// spec.md §4.2's "session created at connection init".
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	var deviceID sql.NullString
	if sess.DeviceID != "" {
		deviceID = sql.NullString{String: sess.DeviceID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session (id, workspace_dir, created_at, device_id) VALUES (?, ?, ?, ?)`,
		sess.ID.String(), sess.WorkspaceDir, sess.CreatedAt.UTC(), deviceID,
	)
	if err != nil {
		s.logPersistenceError(ctx, "create_session", err)
		return fmt.Errorf("%w: create session: %v", agenterrors.ErrPersistence, err)
	}
	return nil
}

// GetSession loads a session by id, for session resumption.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	var (
		sess     Session
		rawID    string
		deviceID sql.NullString
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_dir, created_at, device_id FROM session WHERE id = ?`, id.String())
	if err := row.Scan(&rawID, &sess.WorkspaceDir, &sess.CreatedAt, &deviceID); err != nil {
		if err == sql.ErrNoRows {
			return Session{}, fmt.Errorf("%w: session %s not found", agenterrors.ErrPersistence, id)
		}
		return Session{}, fmt.Errorf("%w: get session: %v", agenterrors.ErrPersistence, err)
	}
	sess.ID, _ = uuid.Parse(rawID)
	sess.DeviceID = deviceID.String
	return sess, nil
}

// ListSessionsForDevice implements GET /api/sessions/{device_id}: sessions
// descending by created_at, each annotated with the text of its first
// user-message event for display in a session picker.
func (s *Store) ListSessionsForDevice(ctx context.Context, deviceID string) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.workspace_dir, s.created_at, s.device_id,
		       COALESCE((
		           SELECT json_extract(e.event_payload, '$.content.text')
		           FROM event e
		           WHERE e.session_id = s.id AND e.event_type = 'user-message'
		           ORDER BY e.seq ASC LIMIT 1
		       ), '')
		FROM session s
		WHERE s.device_id = ?
		ORDER BY s.created_at DESC`, deviceID)
	if err != nil {
		s.logPersistenceError(ctx, "list_sessions", err)
		return nil, fmt.Errorf("%w: list sessions: %v", agenterrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			sum      SessionSummary
			rawID    string
			devID    sql.NullString
			firstMsg sql.NullString
		)
		if err := rows.Scan(&rawID, &sum.WorkspaceDir, &sum.CreatedAt, &devID, &firstMsg); err != nil {
			return nil, fmt.Errorf("%w: scan session row: %v", agenterrors.ErrPersistence, err)
		}
		sum.ID, _ = uuid.Parse(rawID)
		sum.DeviceID = devID.String
		sum.FirstMessage = firstMsg.String
		out = append(out, sum)
	}
	return out, rows.Err()
}
