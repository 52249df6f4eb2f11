package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/herdguard/herdguard-server/internal/models"
)

// ========== Tracker Methods ==========

// EnsureTracker inserts the tracker identity if it is not known yet.
// Trackers are global rows; re-ensuring an existing one is a no-op.
func (s *PostgresStore) EnsureTracker(ctx context.Context, trackerID string) error {
	query := `
        INSERT INTO trackers (id, created_at)
        VALUES ($1, $2)
        ON CONFLICT (id) DO NOTHING`

	_, err := s.getDB().ExecContext(ctx, query, trackerID, time.Now())
	return err
}

// ========== Location Fix Methods ==========

// UpsertLocationFix overwrites the single current-position row for the
// tracker. Last writer wins by arrival: an out-of-order late fix still
// overwrites, this is a cache of latest state, not a log.
func (s *PostgresStore) UpsertLocationFix(ctx context.Context, fix *models.LocationFix) error {
	fix.UpdatedAt = time.Now()

	query := `
        INSERT INTO location_fixes (tracker_id, position, timestamp, speed_mps, accuracy_m, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (tracker_id) DO UPDATE SET
            position = EXCLUDED.position,
            timestamp = EXCLUDED.timestamp,
            speed_mps = EXCLUDED.speed_mps,
            accuracy_m = EXCLUDED.accuracy_m,
            updated_at = EXCLUDED.updated_at`

	_, err := s.getDB().ExecContext(ctx, query,
		fix.TrackerID, fix.Position, fix.Timestamp,
		fix.SpeedMps, fix.AccuracyM, fix.UpdatedAt,
	)
	return err
}

// GetLocationFix gets the current fix for a tracker
func (s *PostgresStore) GetLocationFix(ctx context.Context, trackerID string) (*models.LocationFix, error) {
	query := `
        SELECT tracker_id, position, timestamp, speed_mps, accuracy_m, updated_at
        FROM location_fixes
        WHERE tracker_id = $1`

	fix := &models.LocationFix{}
	err := s.getDB().QueryRowContext(ctx, query, trackerID).Scan(
		&fix.TrackerID, &fix.Position, &fix.Timestamp,
		&fix.SpeedMps, &fix.AccuracyM, &fix.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return fix, nil
}
