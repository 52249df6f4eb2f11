package models

import (
	"time"
)

// DeviceLink associates a tenant with a tracker. Many tenants may link the
// same tracker, but each (tenant, tracker) pair is unique. Deleting a link
// removes only the association, never the tracker or its position.
type DeviceLink struct {
	TenantModel

	TrackerID string `json:"trackerId" db:"tracker_id"`

	// Tenant-specific metadata
	Name      string   `json:"name" db:"name"`
	AgeMonths *int     `json:"ageMonths,omitempty" db:"age_months"`
	WeightKg  *float64 `json:"weightKg,omitempty" db:"weight_kg"`
	Batch     string   `json:"batch,omitempty" db:"batch"`

	// Derived runtime state. Active is asserted by the synchronizer on
	// every fix and decayed only by the staleness sweeper.
	LastPosition *Point     `json:"lastPosition,omitempty" db:"last_position"`
	LastSeenAt   *time.Time `json:"lastSeenAt,omitempty" db:"last_seen_at"`
	Active       bool       `json:"active" db:"active"`
}
