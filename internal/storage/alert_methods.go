package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/herdguard/herdguard-server/internal/models"
)

// ========== Alert Methods ==========

// CreateAlert raises an alert. The partial unique index on
// (device_link_id, type) WHERE active makes the duplicate case a clean
// ErrDuplicateKey even when two evaluations race.
func (s *PostgresStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}

	alert.CreatedAt = time.Now()
	alert.Active = true

	query := `
        INSERT INTO alerts (id, created_at, tenant_id, device_link_id, type, active)
        VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.getDB().ExecContext(ctx, query,
		alert.ID, alert.CreatedAt, alert.TenantID,
		alert.DeviceLinkID, alert.Type, alert.Active,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetActiveAlert gets the active alert of the given type for a link
func (s *PostgresStore) GetActiveAlert(ctx context.Context, linkID uuid.UUID, alertType models.AlertType) (*models.Alert, error) {
	query := `
        SELECT id, created_at, tenant_id, device_link_id, type, active, clear_candidate_at
        FROM alerts
        WHERE device_link_id = $1 AND type = $2 AND active = true`

	alert := &models.Alert{}
	err := s.getDB().QueryRowContext(ctx, query, linkID, alertType).Scan(
		&alert.ID, &alert.CreatedAt, &alert.TenantID, &alert.DeviceLinkID,
		&alert.Type, &alert.Active, &alert.ClearCandidateAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return alert, nil
}

// SetAlertClearCandidate starts the clear hold at the given instant. A
// no-op when the hold is already running: the first in-zone fix wins,
// later ones must not push the deadline out.
func (s *PostgresStore) SetAlertClearCandidate(ctx context.Context, alertID uuid.UUID, at time.Time) error {
	query := `
        UPDATE alerts SET clear_candidate_at = $2
        WHERE id = $1 AND active = true AND clear_candidate_at IS NULL`

	_, err := s.getDB().ExecContext(ctx, query, alertID, at)
	return err
}

// ResetAlertClearCandidate cancels a running clear hold.
func (s *PostgresStore) ResetAlertClearCandidate(ctx context.Context, alertID uuid.UUID) error {
	query := `
        UPDATE alerts SET clear_candidate_at = NULL
        WHERE id = $1 AND active = true`

	_, err := s.getDB().ExecContext(ctx, query, alertID)
	return err
}

// ListClearCandidates lists active alerts whose clear hold started at or
// before the cutoff, with the owning link preloaded for the re-check.
func (s *PostgresStore) ListClearCandidates(ctx context.Context, before time.Time) ([]*models.Alert, error) {
	query := `
        SELECT a.id, a.created_at, a.tenant_id, a.device_link_id, a.type, a.active, a.clear_candidate_at,
               ` + prefixColumns("l", deviceLinkColumns) + `
        FROM alerts a
        JOIN device_links l ON l.id = a.device_link_id
        WHERE a.active = true AND a.clear_candidate_at IS NOT NULL AND a.clear_candidate_at <= $1
        ORDER BY a.clear_candidate_at`

	rows, err := s.getDB().QueryContext(ctx, query, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAlertsWithLink(rows)
}

// ClearAlert deletes the alert only while it is still an elapsed clear
// candidate. Returns false when a racing out-of-zone fix reset the hold
// first; the caller treats that as "alert stays up".
func (s *PostgresStore) ClearAlert(ctx context.Context, alertID uuid.UUID, cutoff time.Time) (bool, error) {
	query := `
        DELETE FROM alerts
        WHERE id = $1 AND active = true
          AND clear_candidate_at IS NOT NULL AND clear_candidate_at <= $2`

	result, err := s.getDB().ExecContext(ctx, query, alertID, cutoff)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

// ListActiveAlerts lists a tenant's active alerts with their links.
func (s *PostgresStore) ListActiveAlerts(ctx context.Context, tenantID uuid.UUID) ([]*models.Alert, error) {
	query := `
        SELECT a.id, a.created_at, a.tenant_id, a.device_link_id, a.type, a.active, a.clear_candidate_at,
               ` + prefixColumns("l", deviceLinkColumns) + `
        FROM alerts a
        JOIN device_links l ON l.id = a.device_link_id
        WHERE a.tenant_id = $1 AND a.active = true
        ORDER BY a.created_at DESC`

	rows, err := s.getDB().QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAlertsWithLink(rows)
}

func scanAlertsWithLink(rows *sql.Rows) ([]*models.Alert, error) {
	var alerts []*models.Alert
	for rows.Next() {
		alert := &models.Alert{Link: &models.DeviceLink{}}
		link := alert.Link
		err := rows.Scan(
			&alert.ID, &alert.CreatedAt, &alert.TenantID, &alert.DeviceLinkID,
			&alert.Type, &alert.Active, &alert.ClearCandidateAt,
			&link.ID, &link.CreatedAt, &link.UpdatedAt, &link.TenantID, &link.TrackerID,
			&link.Name, &link.AgeMonths, &link.WeightKg, &link.Batch,
			&link.LastPosition, &link.LastSeenAt, &link.Active,
		)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// prefixColumns qualifies each column in a comma-separated list with a
// table alias, for join selects.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
