package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deeplearn-app/deeplearn/internal/model"
)

// InsertEvent stores a telemetry event received by the collector. Events are keyed
// by event ID, so a redelivered event is absorbed; inserted reports whether a new
// row was written.
func (s *Store) InsertEvent(ctx context.Context, ev model.TelemetryEvent) (inserted bool, err error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return false, fmt.Errorf("marshal event: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO telemetry_events
		 (event_id, session_id, user_id, session_tag, group_index, group_title, correct, payload, event_time, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(event_id) DO NOTHING`,
		ev.EventID, ev.SessionID, ev.UserID, ev.SessionTag, ev.GroupIndex, ev.GroupTitle, ev.Correct,
		string(payload), ev.Timestamp, time.Now(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListEvents returns stored events in arrival order. An empty userID lists all users.
func (s *Store) ListEvents(ctx context.Context, userID string) ([]model.TelemetryEvent, error) {
	query := `SELECT payload FROM telemetry_events`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []model.TelemetryEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev model.TelemetryEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode stored event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// EventCount returns the number of stored events.
func (s *Store) EventCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM telemetry_events`).Scan(&count)
	return count, err
}
