package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/herdguard/herdguard-server/internal/models"
)

func seedTenant(t *testing.T, store *MemoryStore, name string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{Name: name, IsActive: true}
	require.NoError(t, store.CreateTenant(context.Background(), tenant))
	return tenant
}

func seedLink(t *testing.T, store *MemoryStore, tenant *models.Tenant, trackerID, name string) *models.DeviceLink {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.EnsureTracker(ctx, trackerID))
	link := &models.DeviceLink{
		TenantModel: models.TenantModel{TenantID: tenant.ID},
		TrackerID:   trackerID,
		Name:        name,
	}
	require.NoError(t, store.CreateDeviceLink(ctx, link))
	return link
}

func TestDeviceLinkUniquePerTenant(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tenant := seedTenant(t, store, "farm-a")
	seedLink(t, store, tenant, "collar-001", "Bella")

	dup := &models.DeviceLink{
		TenantModel: models.TenantModel{TenantID: tenant.ID},
		TrackerID:   "collar-001",
		Name:        "Bella again",
	}
	require.ErrorIs(t, store.CreateDeviceLink(ctx, dup), ErrDuplicateKey)
}

func TestDeviceLinkSharedAcrossTenants(t *testing.T) {
	store := NewMemoryStore()
	a := seedTenant(t, store, "farm-a")
	b := seedTenant(t, store, "farm-b")

	seedLink(t, store, a, "collar-001", "Bella")
	seedLink(t, store, b, "collar-001", "Bella (leased)")

	links, err := store.ListDeviceLinksByTracker(context.Background(), "collar-001")
	require.NoError(t, err)
	require.Len(t, links, 2)
}

func TestCrossTenantAccessIsDenied(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a := seedTenant(t, store, "farm-a")
	b := seedTenant(t, store, "farm-b")
	link := seedLink(t, store, a, "collar-001", "Bella")

	_, err := store.GetDeviceLink(ctx, b.ID, link.ID)
	require.ErrorIs(t, err, ErrPermissionDenied)

	err = store.DeleteDeviceLink(ctx, b.ID, link.ID)
	require.ErrorIs(t, err, ErrPermissionDenied)

	// The row is untouched for its owner.
	got, err := store.GetDeviceLink(ctx, a.ID, link.ID)
	require.NoError(t, err)
	require.Equal(t, "Bella", got.Name)
}

func TestMissingRowIsNotFound(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a := seedTenant(t, store, "farm-a")

	_, err := store.GetDeviceLink(ctx, a.ID, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestActiveAlertUniquePerLinkAndType(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tenant := seedTenant(t, store, "farm-a")
	link := seedLink(t, store, tenant, "collar-001", "Bella")

	alert := &models.Alert{
		TenantID:     tenant.ID,
		DeviceLinkID: link.ID,
		Type:         models.AlertTypeOutOfZone,
	}
	require.NoError(t, store.CreateAlert(ctx, alert))

	dup := &models.Alert{
		TenantID:     tenant.ID,
		DeviceLinkID: link.ID,
		Type:         models.AlertTypeOutOfZone,
	}
	require.ErrorIs(t, store.CreateAlert(ctx, dup), ErrDuplicateKey)
}

func TestClearAlertIsGuarded(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tenant := seedTenant(t, store, "farm-a")
	link := seedLink(t, store, tenant, "collar-001", "Bella")

	alert := &models.Alert{
		TenantID:     tenant.ID,
		DeviceLinkID: link.ID,
		Type:         models.AlertTypeOutOfZone,
	}
	require.NoError(t, store.CreateAlert(ctx, alert))

	now := time.Now()

	// No candidate set: nothing to clear.
	cleared, err := store.ClearAlert(ctx, alert.ID, now)
	require.NoError(t, err)
	require.False(t, cleared)

	require.NoError(t, store.SetAlertClearCandidate(ctx, alert.ID, now))

	// Candidate newer than the cutoff: still holding.
	cleared, err = store.ClearAlert(ctx, alert.ID, now.Add(-time.Second))
	require.NoError(t, err)
	require.False(t, cleared)

	// A reset voids the pending clear.
	require.NoError(t, store.ResetAlertClearCandidate(ctx, alert.ID))
	cleared, err = store.ClearAlert(ctx, alert.ID, now.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, cleared)

	require.NoError(t, store.SetAlertClearCandidate(ctx, alert.ID, now))
	cleared, err = store.ClearAlert(ctx, alert.ID, now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, cleared)

	_, err = store.GetActiveAlert(ctx, link.ID, models.AlertTypeOutOfZone)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetClearCandidateKeepsFirstTimestamp(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tenant := seedTenant(t, store, "farm-a")
	link := seedLink(t, store, tenant, "collar-001", "Bella")

	alert := &models.Alert{
		TenantID:     tenant.ID,
		DeviceLinkID: link.ID,
		Type:         models.AlertTypeOutOfZone,
	}
	require.NoError(t, store.CreateAlert(ctx, alert))

	first := time.Now()
	require.NoError(t, store.SetAlertClearCandidate(ctx, alert.ID, first))
	require.NoError(t, store.SetAlertClearCandidate(ctx, alert.ID, first.Add(time.Minute)))

	got, err := store.GetActiveAlert(ctx, link.ID, models.AlertTypeOutOfZone)
	require.NoError(t, err)
	require.True(t, got.ClearCandidateAt.Equal(first))
}

func TestDeleteLinkRemovesItsAlerts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tenant := seedTenant(t, store, "farm-a")
	link := seedLink(t, store, tenant, "collar-001", "Bella")

	alert := &models.Alert{
		TenantID:     tenant.ID,
		DeviceLinkID: link.ID,
		Type:         models.AlertTypeOutOfZone,
	}
	require.NoError(t, store.CreateAlert(ctx, alert))

	require.NoError(t, store.DeleteDeviceLink(ctx, tenant.ID, link.ID))

	alerts, err := store.ListActiveAlerts(ctx, tenant.ID)
	require.NoError(t, err)
	require.Empty(t, alerts)
}

func TestGeofenceTenantIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a := seedTenant(t, store, "farm-a")
	b := seedTenant(t, store, "farm-b")

	zone := &models.Geofence{
		TenantModel: models.TenantModel{TenantID: a.ID},
		Name:        "home pasture",
		InnerBoundary: models.Ring{
			{7.5940, 51.9682},
			{7.5972, 51.9682},
			{7.5972, 51.9702},
			{7.5940, 51.9702},
			{7.5940, 51.9682},
		},
	}
	require.NoError(t, store.CreateGeofence(ctx, zone))

	_, err := store.GetGeofence(ctx, b.ID, zone.ID)
	require.ErrorIs(t, err, ErrPermissionDenied)

	zones, err := store.ListGeofences(ctx, b.ID)
	require.NoError(t, err)
	require.Empty(t, zones)
}
