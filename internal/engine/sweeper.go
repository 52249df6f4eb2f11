package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/herdguard/herdguard-server/internal/models"
	"github.com/herdguard/herdguard-server/internal/storage"
)

// Sweeper runs the periodic maintenance pass: it retires elapsed clear
// candidates and marks silent links inactive. Every step is
// compare-and-act against the stored state, so overlapping or repeated
// sweeps are harmless.
type Sweeper struct {
	store storage.Store
	pub   Publisher
	cfg   Config
	now   func() time.Time
}

// NewSweeper creates a sweeper on the given store and event publisher.
func NewSweeper(store storage.Store, pub Publisher, cfg Config) *Sweeper {
	return &Sweeper{
		store: store,
		pub:   pub,
		cfg:   cfg,
		now:   time.Now,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", s.cfg.SweepInterval).
		Dur("activity_timeout", s.cfg.ActivityTimeout).
		Dur("clear_hold", s.cfg.ClearHold).
		Msg("Sweeper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one maintenance pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.sweepClearCandidates(ctx)
	s.sweepStaleLinks(ctx)
}

// sweepClearCandidates finishes the clear hold for alerts whose candidate
// window has elapsed. The link's last known position is re-checked first:
// clearing is only for animals that are verifiably back inside.
func (s *Sweeper) sweepClearCandidates(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.ClearHold)

	candidates, err := s.store.ListClearCandidates(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("List clear candidates failed")
		return
	}

	for _, alert := range candidates {
		if err := s.finalizeClear(ctx, alert, cutoff); err != nil {
			log.Error().Err(err).
				Str("alert_id", alert.ID.String()).
				Msg("Finalize clear failed")
		}
	}
}

func (s *Sweeper) finalizeClear(ctx context.Context, alert *models.Alert, cutoff time.Time) error {
	link := alert.Link

	contained := false
	if link != nil && link.LastPosition != nil {
		zones, err := s.store.ListGeofences(ctx, alert.TenantID)
		if err != nil {
			return err
		}
		inside, decided := Evaluate(zones, *link.LastPosition)
		contained = decided && inside
	}

	if !contained {
		// The re-check failed: the position is no longer inside (or the
		// zone set changed under us). Treat it like a fresh out-of-zone
		// observation and keep the alert up.
		return s.store.ResetAlertClearCandidate(ctx, alert.ID)
	}

	cleared, err := s.store.ClearAlert(ctx, alert.ID, cutoff)
	if err != nil {
		return err
	}
	if !cleared {
		// An out-of-zone fix reset the hold while we were re-checking.
		return nil
	}

	alertsCleared.Inc()
	publishAlertEvent(s.pub, "cleared", alert, link, link.LastPosition, s.now())
	log.Info().
		Str("alert_id", alert.ID.String()).
		Str("tenant_id", alert.TenantID.String()).
		Str("link_id", alert.DeviceLinkID.String()).
		Msg("Alert cleared")
	return nil
}

// sweepStaleLinks marks links inactive once they have been silent for the
// activity timeout.
func (s *Sweeper) sweepStaleLinks(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.ActivityTimeout)

	n, err := s.store.DeactivateStaleLinks(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Deactivate stale links failed")
		return
	}
	if n > 0 {
		linksDeactivated.Add(float64(n))
		log.Info().Int64("count", n).Msg("Stale links deactivated")
	}
}
