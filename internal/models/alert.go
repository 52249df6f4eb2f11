package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertType represents alert types
type AlertType string

const (
	// AlertTypeOutOfZone is the only engine-managed alert type; other
	// types may be written by external collaborators.
	AlertTypeOutOfZone AlertType = "OUT_OF_ZONE"
)

// Alert belongs to one device link. At most one active alert may exist per
// (device link, type); the storage layer enforces this with a uniqueness
// constraint, not application logic.
//
// ClearCandidateAt is the hysteresis timestamp: non-null means the device
// has re-entered a zone and the alert will be cleared once it has stayed
// inside for the full hold duration.
type Alert struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	TenantID     uuid.UUID `json:"tenantId" db:"tenant_id"`
	DeviceLinkID uuid.UUID `json:"deviceLinkId" db:"device_link_id"`

	Type             AlertType  `json:"type" db:"type"`
	Active           bool       `json:"active" db:"active"`
	ClearCandidateAt *time.Time `json:"clearCandidateAt,omitempty" db:"clear_candidate_at"`

	// Relations
	Link *DeviceLink `json:"link,omitempty"`
}
