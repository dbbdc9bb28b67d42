package model

import "time"

// EventExport is the top-level JSON structure for collected telemetry export.
type EventExport struct {
	Collector  string        `json:"collector"`
	ExportedAt time.Time     `json:"exported_at"`
	NumEvents  int           `json:"num_events"`
	Users      []UserResults `json:"users"`
}

// UserResults holds one user's collected events for export.
type UserResults struct {
	UserID   string          `json:"user_id"`
	Sessions []SessionResult `json:"sessions"`
}

// SessionResult summarizes one session tag's events for a user.
type SessionResult struct {
	SessionTag SessionTag       `json:"session_tag"`
	NumCorrect int              `json:"num_correct"`
	NumEvents  int              `json:"num_events"`
	Events     []TelemetryEvent `json:"events"`
}
