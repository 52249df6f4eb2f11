// Package engine implements the tracking pipeline: fix ingestion, the
// per-link fan-out, zone containment evaluation and the alert lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/herdguard/herdguard-server/internal/models"
	"github.com/herdguard/herdguard-server/internal/storage"
)

// ErrInvalidFix is returned when a submitted fix fails validation. It is
// the only error the ingest path reports back to the producer.
var ErrInvalidFix = errors.New("invalid location fix")

// Config holds the engine timing knobs.
type Config struct {
	// ActivityTimeout is how long a link may go without a fix before the
	// sweeper marks it inactive.
	ActivityTimeout time.Duration
	// SweepInterval is the sweeper tick period.
	SweepInterval time.Duration
	// ClearHold is how long a link must stay in-zone before its alert is
	// cleared.
	ClearHold time.Duration
}

// DefaultConfig returns the production timing defaults.
func DefaultConfig() Config {
	return Config{
		ActivityTimeout: 30 * time.Second,
		SweepInterval:   5 * time.Second,
		ClearHold:       5 * time.Second,
	}
}

// Publisher sends an event to a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// FixInput is a raw location report from a tracker.
type FixInput struct {
	TrackerID string    `json:"tracker_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
	SpeedMps  *float64  `json:"speed_mps,omitempty"`
	AccuracyM *float64  `json:"accuracy_m,omitempty"`
}

// Validate checks the fix's own fields, nothing about the world.
func (f FixInput) Validate() error {
	if f.TrackerID == "" {
		return fmt.Errorf("%w: tracker id is required", ErrInvalidFix)
	}
	if f.Lat < -90 || f.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidFix, f.Lat)
	}
	if f.Lng < -180 || f.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidFix, f.Lng)
	}
	if f.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidFix)
	}
	return nil
}

// Pipeline processes incoming fixes end to end.
type Pipeline struct {
	store storage.Store
	pub   Publisher
	cfg   Config
	now   func() time.Time
}

// NewPipeline creates a pipeline on the given store and event publisher.
func NewPipeline(store storage.Store, pub Publisher, cfg Config) *Pipeline {
	return &Pipeline{
		store: store,
		pub:   pub,
		cfg:   cfg,
		now:   time.Now,
	}
}

// SubmitFix ingests one location fix. The fix is validated and persisted
// first; only those two steps can fail the call. Everything downstream of
// the stored fix (link state, containment, alerts) is best-effort per
// link: a failure there is logged and counted, never surfaced to the
// producer, so a broken zone or a slow alert write cannot stall the
// ingest stream.
func (p *Pipeline) SubmitFix(ctx context.Context, in FixInput) error {
	if err := in.Validate(); err != nil {
		fixesReceived.WithLabelValues("invalid").Inc()
		return err
	}

	if err := p.store.EnsureTracker(ctx, in.TrackerID); err != nil {
		fixesReceived.WithLabelValues("error").Inc()
		return fmt.Errorf("ensure tracker: %w", err)
	}

	fix := &models.LocationFix{
		TrackerID: in.TrackerID,
		Position:  models.Point{Lng: in.Lng, Lat: in.Lat},
		Timestamp: in.Timestamp,
		SpeedMps:  in.SpeedMps,
		AccuracyM: in.AccuracyM,
	}
	if err := p.store.UpsertLocationFix(ctx, fix); err != nil {
		fixesReceived.WithLabelValues("error").Inc()
		return fmt.Errorf("upsert fix: %w", err)
	}

	fixesReceived.WithLabelValues("ok").Inc()
	p.syncLinks(ctx, fix)
	return nil
}

// syncLinks fans the stored fix out to every link on the tracker. Links
// are independent: one tenant's failure never touches another's.
func (p *Pipeline) syncLinks(ctx context.Context, fix *models.LocationFix) {
	links, err := p.store.ListDeviceLinksByTracker(ctx, fix.TrackerID)
	if err != nil {
		linkSyncErrors.Inc()
		log.Error().Err(err).Str("tracker_id", fix.TrackerID).Msg("List device links failed")
		return
	}

	for _, link := range links {
		if err := p.syncLink(ctx, link, fix); err != nil {
			linkSyncErrors.Inc()
			log.Error().Err(err).
				Str("tracker_id", fix.TrackerID).
				Str("link_id", link.ID.String()).
				Str("tenant_id", link.TenantID.String()).
				Msg("Link sync failed")
		}
	}
}

// syncLink updates one link's runtime state and runs the containment
// evaluation against the owning tenant's zones. A panic anywhere below
// is turned into an error so a single bad link cannot take the ingest
// loop down with it.
func (p *Pipeline) syncLink(ctx context.Context, link *models.DeviceLink, fix *models.LocationFix) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("link sync panicked: %v", r)
		}
	}()

	if err := p.store.UpdateDeviceLinkState(ctx, link.ID, fix.Position, fix.Timestamp); err != nil {
		return fmt.Errorf("update link state: %w", err)
	}

	zones, err := p.store.ListGeofences(ctx, link.TenantID)
	if err != nil {
		return fmt.Errorf("list geofences: %w", err)
	}

	contained, decided := Evaluate(zones, fix.Position)
	if !decided {
		// No zones configured for this tenant: nothing to say about
		// containment, existing alert state stands.
		return nil
	}

	if contained {
		return p.handleInZone(ctx, link)
	}
	return p.handleLeftAllZones(ctx, link, fix.Position)
}
