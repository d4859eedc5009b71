package domain

import "time"

// SnapshotEvent announces that a new snapshot was published. It is the
// payload of reload notifications.
type SnapshotEvent struct {
	SnapshotID  string    `json:"snapshot_id"`
	LoadedAt    time.Time `json:"loaded_at"`
	LatestSeen  string    `json:"latest_seen,omitempty"`
	Records     int       `json:"records"`
	ActiveCount int       `json:"active_count"`
	Lines       int       `json:"lines"`
}
