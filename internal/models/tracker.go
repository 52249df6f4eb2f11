package models

import (
	"time"
)

// Tracker is a physical GPS collar identity. Trackers are global: they are
// not owned by any tenant and outlive every link made to them.
type Tracker struct {
	ID        string    `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// LocationFix is the current known position of a tracker. There is exactly
// one row per tracker; every accepted fix overwrites it (last writer wins
// by arrival). It is a cache of latest state, not a log.
type LocationFix struct {
	TrackerID string    `json:"trackerId" db:"tracker_id"`
	Position  Point     `json:"position" db:"position"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	SpeedMps  *float64  `json:"speedMps,omitempty" db:"speed_mps"`
	AccuracyM *float64  `json:"accuracyM,omitempty" db:"accuracy_m"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
