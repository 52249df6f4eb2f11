package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/herdguard/herdguard-server/internal/models"
	"github.com/herdguard/herdguard-server/internal/storage"
)

// AlertEvent is the payload published on alert raise and clear.
type AlertEvent struct {
	AlertID      uuid.UUID        `json:"alert_id"`
	TenantID     uuid.UUID        `json:"tenant_id"`
	DeviceLinkID uuid.UUID        `json:"device_link_id"`
	TrackerID    string           `json:"tracker_id"`
	LinkName     string           `json:"link_name"`
	Type         models.AlertType `json:"type"`
	At           time.Time        `json:"at"`
	Position     *models.Point    `json:"position,omitempty"`
}

// handleLeftAllZones drives the out-of-zone side of the alert state
// machine: raise when no alert exists, cancel a running clear hold when
// one does. The uniqueness constraint makes the raise race-free; losing
// the race just means somebody else already raised it.
func (p *Pipeline) handleLeftAllZones(ctx context.Context, link *models.DeviceLink, pos models.Point) error {
	alert := &models.Alert{
		TenantID:     link.TenantID,
		DeviceLinkID: link.ID,
		Type:         models.AlertTypeOutOfZone,
	}

	err := p.store.CreateAlert(ctx, alert)
	if err == nil {
		alertsRaised.Inc()
		p.publishAlertEvent("raised", alert, link, &pos)
		return nil
	}
	if !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("create alert: %w", err)
	}

	// Already active. An out-of-zone fix during the clear hold means the
	// animal came back out: the hold is void.
	existing, err := p.store.GetActiveAlert(ctx, link.ID, models.AlertTypeOutOfZone)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Cleared between our insert attempt and the lookup. The
			// next fix will re-raise if it is still outside.
			return nil
		}
		return fmt.Errorf("get active alert: %w", err)
	}
	if existing.ClearCandidateAt != nil {
		if err := p.store.ResetAlertClearCandidate(ctx, existing.ID); err != nil {
			return fmt.Errorf("reset clear candidate: %w", err)
		}
	}
	return nil
}

// handleInZone drives the in-zone side: an active alert becomes a clear
// candidate, stamped with the current time. Clearing itself is the
// sweeper's job once the hold elapses.
func (p *Pipeline) handleInZone(ctx context.Context, link *models.DeviceLink) error {
	alert, err := p.store.GetActiveAlert(ctx, link.ID, models.AlertTypeOutOfZone)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get active alert: %w", err)
	}

	if alert.ClearCandidateAt == nil {
		if err := p.store.SetAlertClearCandidate(ctx, alert.ID, p.now()); err != nil {
			return fmt.Errorf("set clear candidate: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) publishAlertEvent(kind string, alert *models.Alert, link *models.DeviceLink, pos *models.Point) {
	publishAlertEvent(p.pub, kind, alert, link, pos, p.now())
}

func publishAlertEvent(pub Publisher, kind string, alert *models.Alert, link *models.DeviceLink, pos *models.Point, at time.Time) {
	if pub == nil {
		return
	}

	event := AlertEvent{
		AlertID:      alert.ID,
		TenantID:     alert.TenantID,
		DeviceLinkID: alert.DeviceLinkID,
		TrackerID:    link.TrackerID,
		LinkName:     link.Name,
		Type:         alert.Type,
		At:           at,
		Position:     pos,
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Marshal alert event failed")
		return
	}

	subject := fmt.Sprintf("tenant.%s.alert.%s", alert.TenantID, kind)
	if err := pub.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Publish alert event failed")
	}
}
