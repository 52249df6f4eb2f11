package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/herdguard/herdguard-server/internal/models"
)

// ========== Geofence Methods ==========

// CreateGeofence creates a new geofence zone
func (s *PostgresStore) CreateGeofence(ctx context.Context, zone *models.Geofence) error {
	if zone.ID == uuid.Nil {
		zone.ID = uuid.New()
	}

	now := time.Now()
	zone.CreatedAt = now
	zone.UpdatedAt = now

	query := `
        INSERT INTO geofences (id, created_at, updated_at, tenant_id, name,
                               inner_boundary, buffer_meters, outer_boundary)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.getDB().ExecContext(ctx, query,
		zone.ID, zone.CreatedAt, zone.UpdatedAt, zone.TenantID, zone.Name,
		zone.InnerBoundary, zone.BufferMeters, zone.OuterBoundary,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetGeofence gets a geofence scoped to the acting tenant.
func (s *PostgresStore) GetGeofence(ctx context.Context, tenantID, zoneID uuid.UUID) (*models.Geofence, error) {
	query := `
        SELECT id, created_at, updated_at, tenant_id, name,
               inner_boundary, buffer_meters, outer_boundary
        FROM geofences
        WHERE id = $1 AND tenant_id = $2`

	zone := &models.Geofence{}
	err := s.getDB().QueryRowContext(ctx, query, zoneID, tenantID).Scan(
		&zone.ID, &zone.CreatedAt, &zone.UpdatedAt, &zone.TenantID, &zone.Name,
		&zone.InnerBoundary, &zone.BufferMeters, &zone.OuterBoundary,
	)

	if err == sql.ErrNoRows {
		return nil, s.authorizeRow(ctx, "geofences", zoneID)
	}
	if err != nil {
		return nil, err
	}

	return zone, nil
}

// ListGeofences lists a tenant's geofences. No paging: the evaluator
// loads the full zone set on every fix.
func (s *PostgresStore) ListGeofences(ctx context.Context, tenantID uuid.UUID) ([]*models.Geofence, error) {
	query := `
        SELECT id, created_at, updated_at, tenant_id, name,
               inner_boundary, buffer_meters, outer_boundary
        FROM geofences
        WHERE tenant_id = $1
        ORDER BY created_at`

	rows, err := s.getDB().QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []*models.Geofence
	for rows.Next() {
		zone := &models.Geofence{}
		err := rows.Scan(
			&zone.ID, &zone.CreatedAt, &zone.UpdatedAt, &zone.TenantID, &zone.Name,
			&zone.InnerBoundary, &zone.BufferMeters, &zone.OuterBoundary,
		)
		if err != nil {
			return nil, err
		}
		zones = append(zones, zone)
	}

	return zones, rows.Err()
}

// UpdateGeofence updates a geofence scoped to its tenant.
func (s *PostgresStore) UpdateGeofence(ctx context.Context, zone *models.Geofence) error {
	zone.UpdatedAt = time.Now()

	query := `
        UPDATE geofences SET
            updated_at = $3, name = $4,
            inner_boundary = $5, buffer_meters = $6, outer_boundary = $7
        WHERE id = $1 AND tenant_id = $2`

	result, err := s.getDB().ExecContext(ctx, query,
		zone.ID, zone.TenantID, zone.UpdatedAt, zone.Name,
		zone.InnerBoundary, zone.BufferMeters, zone.OuterBoundary,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.authorizeRow(ctx, "geofences", zone.ID)
	}

	return nil
}

// DeleteGeofence deletes a geofence scoped to its tenant.
func (s *PostgresStore) DeleteGeofence(ctx context.Context, tenantID, zoneID uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx,
		"DELETE FROM geofences WHERE id = $1 AND tenant_id = $2", zoneID, tenantID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.authorizeRow(ctx, "geofences", zoneID)
	}

	return nil
}
