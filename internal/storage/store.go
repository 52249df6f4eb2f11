package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/herdguard/herdguard-server/internal/models"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey signals a uniqueness conflict: an existing
	// (tenant, tracker) link or an already-active alert for the same
	// (link, type). Callers treat it as "keep existing state".
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
	// ErrPermissionDenied signals that the row exists but belongs to a
	// different tenant. Zero rows are touched when it is returned.
	ErrPermissionDenied = errors.New("permission denied")
)

// Store defines the storage interface. Methods that read or mutate
// tenant-owned rows take the acting tenant's id and are scoped to it;
// a cross-tenant attempt returns ErrPermissionDenied.
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// Tenant methods
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	UpdateTenant(ctx context.Context, tenant *models.Tenant) error
	DeleteTenant(ctx context.Context, id uuid.UUID) error
	ListTenants(ctx context.Context, limit, offset int) ([]*models.Tenant, int64, error)

	// Tracker and location fix methods. Trackers are global and the fix
	// is a single current-state row per tracker.
	EnsureTracker(ctx context.Context, trackerID string) error
	UpsertLocationFix(ctx context.Context, fix *models.LocationFix) error
	GetLocationFix(ctx context.Context, trackerID string) (*models.LocationFix, error)

	// Device link methods
	CreateDeviceLink(ctx context.Context, link *models.DeviceLink) error
	GetDeviceLink(ctx context.Context, tenantID, linkID uuid.UUID) (*models.DeviceLink, error)
	GetDeviceLinkByTracker(ctx context.Context, tenantID uuid.UUID, trackerID string) (*models.DeviceLink, error)
	ListDeviceLinks(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.DeviceLink, int64, error)
	ListDeviceLinksByTracker(ctx context.Context, trackerID string) ([]*models.DeviceLink, error)
	UpdateDeviceLink(ctx context.Context, link *models.DeviceLink) error
	UpdateDeviceLinkState(ctx context.Context, linkID uuid.UUID, pos models.Point, seenAt time.Time) error
	DeactivateStaleLinks(ctx context.Context, seenBefore time.Time) (int64, error)
	DeleteDeviceLink(ctx context.Context, tenantID, linkID uuid.UUID) error

	// Geofence methods
	CreateGeofence(ctx context.Context, zone *models.Geofence) error
	GetGeofence(ctx context.Context, tenantID, zoneID uuid.UUID) (*models.Geofence, error)
	ListGeofences(ctx context.Context, tenantID uuid.UUID) ([]*models.Geofence, error)
	UpdateGeofence(ctx context.Context, zone *models.Geofence) error
	DeleteGeofence(ctx context.Context, tenantID, zoneID uuid.UUID) error

	// Alert methods. CreateAlert rides the partial unique index on
	// (device_link_id, type) WHERE active: a concurrent duplicate
	// resolves to ErrDuplicateKey, never a broken invariant.
	CreateAlert(ctx context.Context, alert *models.Alert) error
	GetActiveAlert(ctx context.Context, linkID uuid.UUID, alertType models.AlertType) (*models.Alert, error)
	SetAlertClearCandidate(ctx context.Context, alertID uuid.UUID, at time.Time) error
	ResetAlertClearCandidate(ctx context.Context, alertID uuid.UUID) error
	ListClearCandidates(ctx context.Context, before time.Time) ([]*models.Alert, error)
	// ClearAlert deletes the alert only if it is still an elapsed clear
	// candidate at execution time (compare-and-act; safe under races
	// with ingestion). Reports whether a row was deleted.
	ClearAlert(ctx context.Context, alertID uuid.UUID, cutoff time.Time) (bool, error)
	ListActiveAlerts(ctx context.Context, tenantID uuid.UUID) ([]*models.Alert, error)

	// Close the store
	Close() error
}
