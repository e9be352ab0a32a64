// Package events defines the payloads exchanged over the message bus.
package events

import "time"

// Topic names. TopicFileSynced carries raw container bytes with user_id and
// filename headers; the rest carry JSON payloads from this package.
const (
	TopicFileSynced       = "device_file_synced"
	TopicActivityIngested = "activity_ingested"
)

// Header keys on TopicFileSynced messages.
const (
	HeaderUserID   = "user_id"
	HeaderFilename = "filename"
	HeaderGearID   = "gear_id"
)

// ActivityIngested is published after an activity bundle commits. Consumers
// use it to trigger derived-analytics recomputation.
type ActivityIngested struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	SportType  string    `json:"sport_type"`
	StartDate  time.Time `json:"start_date"`
	DurationS  float64   `json:"duration_s"`
	DistanceM  float64   `json:"distance_m"`
	IngestedAt time.Time `json:"ingested_at"`
}
