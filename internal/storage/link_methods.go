package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/herdguard/herdguard-server/internal/models"
)

const deviceLinkColumns = `id, created_at, updated_at, tenant_id, tracker_id,
               name, age_months, weight_kg, batch,
               last_position, last_seen_at, active`

// ========== Device Link Methods ==========

// CreateDeviceLink creates a new device link. The (tenant_id, tracker_id)
// uniqueness constraint turns a re-link into ErrDuplicateKey.
func (s *PostgresStore) CreateDeviceLink(ctx context.Context, link *models.DeviceLink) error {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}

	now := time.Now()
	link.CreatedAt = now
	link.UpdatedAt = now

	query := `
        INSERT INTO device_links (id, created_at, updated_at, tenant_id, tracker_id,
                                  name, age_months, weight_kg, batch, active)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.getDB().ExecContext(ctx, query,
		link.ID, link.CreatedAt, link.UpdatedAt, link.TenantID, link.TrackerID,
		link.Name, link.AgeMonths, link.WeightKg, link.Batch, link.Active,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetDeviceLink gets a device link scoped to the acting tenant.
func (s *PostgresStore) GetDeviceLink(ctx context.Context, tenantID, linkID uuid.UUID) (*models.DeviceLink, error) {
	query := `
        SELECT ` + deviceLinkColumns + `
        FROM device_links
        WHERE id = $1 AND tenant_id = $2`

	link := &models.DeviceLink{}
	err := s.getDB().QueryRowContext(ctx, query, linkID, tenantID).Scan(
		&link.ID, &link.CreatedAt, &link.UpdatedAt, &link.TenantID, &link.TrackerID,
		&link.Name, &link.AgeMonths, &link.WeightKg, &link.Batch,
		&link.LastPosition, &link.LastSeenAt, &link.Active,
	)

	if err == sql.ErrNoRows {
		return nil, s.authorizeRow(ctx, "device_links", linkID)
	}
	if err != nil {
		return nil, err
	}

	return link, nil
}

// GetDeviceLinkByTracker gets the tenant's link on a tracker, if any.
func (s *PostgresStore) GetDeviceLinkByTracker(ctx context.Context, tenantID uuid.UUID, trackerID string) (*models.DeviceLink, error) {
	query := `
        SELECT ` + deviceLinkColumns + `
        FROM device_links
        WHERE tenant_id = $1 AND tracker_id = $2`

	link := &models.DeviceLink{}
	err := s.getDB().QueryRowContext(ctx, query, tenantID, trackerID).Scan(
		&link.ID, &link.CreatedAt, &link.UpdatedAt, &link.TenantID, &link.TrackerID,
		&link.Name, &link.AgeMonths, &link.WeightKg, &link.Batch,
		&link.LastPosition, &link.LastSeenAt, &link.Active,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return link, nil
}

// ListDeviceLinks lists a tenant's device links
func (s *PostgresStore) ListDeviceLinks(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.DeviceLink, int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM device_links WHERE tenant_id = $1", tenantID,
	).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `
        SELECT ` + deviceLinkColumns + `
        FROM device_links
        WHERE tenant_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`

	rows, err := s.getDB().QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	links, err := scanDeviceLinks(rows)
	if err != nil {
		return nil, 0, err
	}

	return links, count, nil
}

// ListDeviceLinksByTracker lists every link on a tracker, across tenants.
// This is the synchronizer's fan-out query, not an API read path.
func (s *PostgresStore) ListDeviceLinksByTracker(ctx context.Context, trackerID string) ([]*models.DeviceLink, error) {
	query := `
        SELECT ` + deviceLinkColumns + `
        FROM device_links
        WHERE tracker_id = $1
        ORDER BY created_at`

	rows, err := s.getDB().QueryContext(ctx, query, trackerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDeviceLinks(rows)
}

// UpdateDeviceLink updates a link's tenant metadata, scoped to its tenant.
func (s *PostgresStore) UpdateDeviceLink(ctx context.Context, link *models.DeviceLink) error {
	link.UpdatedAt = time.Now()

	query := `
        UPDATE device_links SET
            updated_at = $3, name = $4, age_months = $5, weight_kg = $6, batch = $7
        WHERE id = $1 AND tenant_id = $2`

	result, err := s.getDB().ExecContext(ctx, query,
		link.ID, link.TenantID, link.UpdatedAt,
		link.Name, link.AgeMonths, link.WeightKg, link.Batch,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.authorizeRow(ctx, "device_links", link.ID)
	}

	return nil
}

// UpdateDeviceLinkState writes the derived runtime fields for one link:
// last position, last seen and the active flag. Active is only ever set
// true here; the sweeper is the sole path that sets it false.
func (s *PostgresStore) UpdateDeviceLinkState(ctx context.Context, linkID uuid.UUID, pos models.Point, seenAt time.Time) error {
	query := `
        UPDATE device_links SET
            last_position = $2, last_seen_at = $3, active = true, updated_at = $4
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query, linkID, pos, seenAt, time.Now())
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// DeactivateStaleLinks clears the active flag on every link not seen since
// the cutoff. Idempotent: re-sweeping already-inactive links touches zero
// rows.
func (s *PostgresStore) DeactivateStaleLinks(ctx context.Context, seenBefore time.Time) (int64, error) {
	query := `
        UPDATE device_links SET active = false, updated_at = $2
        WHERE active = true AND last_seen_at <= $1`

	result, err := s.getDB().ExecContext(ctx, query, seenBefore, time.Now())
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// DeleteDeviceLink deletes a device link scoped to its tenant. Alerts on
// the link go with it; the tracker and its fix are untouched.
func (s *PostgresStore) DeleteDeviceLink(ctx context.Context, tenantID, linkID uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx,
		"DELETE FROM device_links WHERE id = $1 AND tenant_id = $2", linkID, tenantID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.authorizeRow(ctx, "device_links", linkID)
	}

	return nil
}

func scanDeviceLinks(rows *sql.Rows) ([]*models.DeviceLink, error) {
	var links []*models.DeviceLink
	for rows.Next() {
		link := &models.DeviceLink{}
		err := rows.Scan(
			&link.ID, &link.CreatedAt, &link.UpdatedAt, &link.TenantID, &link.TrackerID,
			&link.Name, &link.AgeMonths, &link.WeightKg, &link.Batch,
			&link.LastPosition, &link.LastSeenAt, &link.Active,
		)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}
