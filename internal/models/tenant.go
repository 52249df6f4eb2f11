package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents an isolated account. Tenants own geofences, device
// links and alerts; nothing tenant-owned is ever visible across tenants.
type Tenant struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`

	// Limits
	MaxLinkCount int `json:"maxLinkCount" db:"max_link_count"`

	// Status
	IsActive    bool       `json:"isActive" db:"is_active"`
	SuspendedAt *time.Time `json:"suspendedAt,omitempty" db:"suspended_at"`
}
