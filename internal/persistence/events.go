package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/usamanadeem786/iiagentd/internal/agenterrors"
	"github.com/usamanadeem786/iiagentd/internal/event"
)

// EventStore adapts a Store to eventbus.Store: the bus's drain worker
// calls AppendEvent for every RealtimeEvent once a session id is set.
type EventStore struct {
	store *Store
}

// NewEventStore wraps store for use as an eventbus.Store.
func NewEventStore(store *Store) *EventStore {
	return &EventStore{store: store}
}

// StoredEvent is one row of the event table, as returned to REST callers.
type StoredEvent struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Timestamp time.Time
	Event     event.RealtimeEvent
}

// AppendEvent inserts one event row. Errors are wrapped in
// agenterrors.ErrPersistence; per spec.md §4.6/§7 the caller (the event
// bus) logs and continues rather than aborting the turn loop.
func (es *EventStore) AppendEvent(ctx context.Context, sessionID uuid.UUID, e event.RealtimeEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: marshal event payload: %v", agenterrors.ErrPersistence, err)
	}
	_, err = es.store.db.ExecContext(ctx,
		`INSERT INTO event (id, session_id, timestamp, event_type, event_payload) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID.String(), time.Now().UTC(), string(e.Type), string(payload),
	)
	if err != nil {
		es.store.logPersistenceError(ctx, "append_event", err)
		return fmt.Errorf("%w: append event: %v", agenterrors.ErrPersistence, err)
	}
	return nil
}

// ListEvents implements GET /api/sessions/{session_id}/events: in
// insertion order (seq ascending).
func (es *EventStore) ListEvents(ctx context.Context, sessionID uuid.UUID) ([]StoredEvent, error) {
	rows, err := es.store.db.QueryContext(ctx,
		`SELECT id, session_id, timestamp, event_payload FROM event
		 WHERE session_id = ? ORDER BY seq ASC`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: list events: %v", agenterrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var (
			rawID, rawSession, rawPayload string
			ts                            time.Time
		)
		if err := rows.Scan(&rawID, &rawSession, &ts, &rawPayload); err != nil {
			return nil, fmt.Errorf("%w: scan event row: %v", agenterrors.ErrPersistence, err)
		}
		var re event.RealtimeEvent
		if err := json.Unmarshal([]byte(rawPayload), &re); err != nil {
			return nil, fmt.Errorf("%w: unmarshal event payload: %v", agenterrors.ErrPersistence, err)
		}
		id, _ := uuid.Parse(rawID)
		sid, _ := uuid.Parse(rawSession)
		out = append(out, StoredEvent{ID: id, SessionID: sid, Timestamp: ts, Event: re})
	}
	return out, rows.Err()
}

// DeleteEventsFromLastToUserMessage implements spec.md §4.7's edit_query
// handler: it finds the most recent user-message event for the session
// and deletes it and everything after it, mirroring
// history.ClearFromLastToUserMessage's truncation on the in-memory side.
// A session with no user-message event yet is a no-op.
func (es *EventStore) DeleteEventsFromLastToUserMessage(ctx context.Context, sessionID uuid.UUID) error {
	var lastSeq sql.NullInt64
	row := es.store.db.QueryRowContext(ctx, `
		SELECT seq FROM event
		WHERE session_id = ? AND event_type = ?
		ORDER BY seq DESC LIMIT 1`, sessionID.String(), string(event.TypeUserMessage))
	if err := row.Scan(&lastSeq); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("%w: find last user message: %v", agenterrors.ErrPersistence, err)
	}
	if !lastSeq.Valid {
		return nil
	}
	_, err := es.store.db.ExecContext(ctx,
		`DELETE FROM event WHERE session_id = ? AND seq >= ?`, sessionID.String(), lastSeq.Int64)
	if err != nil {
		es.store.logPersistenceError(ctx, "delete_events_from_last_user_message", err)
		return fmt.Errorf("%w: delete events: %v", agenterrors.ErrPersistence, err)
	}
	return nil
}
