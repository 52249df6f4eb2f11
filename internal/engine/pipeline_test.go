package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/herdguard/herdguard-server/internal/models"
	"github.com/herdguard/herdguard-server/internal/storage"
)

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

// testClock is a settable clock shared by pipeline and sweeper.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func pastureRing() models.Ring {
	return models.Ring{
		{7.5940, 51.9682},
		{7.5972, 51.9682},
		{7.5972, 51.9702},
		{7.5940, 51.9702},
		{7.5940, 51.9682},
	}
}

const (
	insideLng  = 7.5956
	insideLat  = 51.9692
	outsideLng = 7.5910
	outsideLat = 51.9692
)

type testEnv struct {
	store    *storage.MemoryStore
	pub      *recordingPublisher
	clock    *testClock
	pipeline *Pipeline
	sweeper  *Sweeper
	tenantID uuid.UUID
	linkID   uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := storage.NewMemoryStore()
	pub := &recordingPublisher{}
	clock := newTestClock()
	cfg := DefaultConfig()

	pipeline := NewPipeline(store, pub, cfg)
	pipeline.now = clock.Now
	sweeper := NewSweeper(store, pub, cfg)
	sweeper.now = clock.Now

	ctx := context.Background()

	tenant := &models.Tenant{Name: "north-farm", IsActive: true}
	require.NoError(t, store.CreateTenant(ctx, tenant))

	require.NoError(t, store.EnsureTracker(ctx, "collar-001"))
	link := &models.DeviceLink{
		TenantModel: models.TenantModel{TenantID: tenant.ID},
		TrackerID:   "collar-001",
		Name:        "Bella",
	}
	require.NoError(t, store.CreateDeviceLink(ctx, link))

	zone := &models.Geofence{
		TenantModel:   models.TenantModel{TenantID: tenant.ID},
		Name:          "home pasture",
		InnerBoundary: pastureRing(),
	}
	require.NoError(t, store.CreateGeofence(ctx, zone))

	return &testEnv{
		store:    store,
		pub:      pub,
		clock:    clock,
		pipeline: pipeline,
		sweeper:  sweeper,
		tenantID: tenant.ID,
		linkID:   link.ID,
	}
}

func (e *testEnv) submit(t *testing.T, lng, lat float64) {
	t.Helper()
	err := e.pipeline.SubmitFix(context.Background(), FixInput{
		TrackerID: "collar-001",
		Lng:       lng,
		Lat:       lat,
		Timestamp: e.clock.Now(),
	})
	require.NoError(t, err)
}

func TestSubmitFixRejectsInvalid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []FixInput{
		{TrackerID: "", Lng: 7.59, Lat: 51.96, Timestamp: env.clock.Now()},
		{TrackerID: "collar-001", Lng: 7.59, Lat: 95, Timestamp: env.clock.Now()},
		{TrackerID: "collar-001", Lng: 190, Lat: 51.96, Timestamp: env.clock.Now()},
		{TrackerID: "collar-001", Lng: 7.59, Lat: 51.96},
	}
	for _, in := range cases {
		require.ErrorIs(t, env.pipeline.SubmitFix(ctx, in), ErrInvalidFix)
	}
}

func TestSubmitFixUpdatesLinkState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.submit(t, insideLng, insideLat)

	link, err := env.store.GetDeviceLink(ctx, env.tenantID, env.linkID)
	require.NoError(t, err)
	require.True(t, link.Active)
	require.NotNil(t, link.LastPosition)
	require.Equal(t, insideLng, link.LastPosition.Lng)
	require.Equal(t, insideLat, link.LastPosition.Lat)

	fix, err := env.store.GetLocationFix(ctx, "collar-001")
	require.NoError(t, err)
	require.Equal(t, insideLat, fix.Position.Lat)
}

func TestLastWriterWinsOnFix(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.submit(t, insideLng, insideLat)
	env.submit(t, outsideLng, outsideLat)

	fix, err := env.store.GetLocationFix(ctx, "collar-001")
	require.NoError(t, err)
	require.Equal(t, outsideLng, fix.Position.Lng)
}

func TestOutOfZoneRaisesAlertOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.submit(t, outsideLng, outsideLat)
	env.submit(t, outsideLng, outsideLat)
	env.submit(t, outsideLng, outsideLat)

	alerts, err := env.store.ListActiveAlerts(ctx, env.tenantID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, models.AlertTypeOutOfZone, alerts[0].Type)

	raised := 0
	for _, subject := range env.pub.published() {
		if subject == "tenant."+env.tenantID.String()+".alert.raised" {
			raised++
		}
	}
	require.Equal(t, 1, raised)
}

func TestInZoneFixStartsClearHold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.submit(t, outsideLng, outsideLat)
	env.submit(t, insideLng, insideLat)

	alert, err := env.store.GetActiveAlert(ctx, env.linkID, models.AlertTypeOutOfZone)
	require.NoError(t, err)
	require.NotNil(t, alert.ClearCandidateAt)
	require.Equal(t, env.clock.Now(), *alert.ClearCandidateAt)
}

func TestFirstInZoneFixOwnsTheHold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.submit(t, outsideLng, outsideLat)
	env.submit(t, insideLng, insideLat)
	started := env.clock.Now()

	env.clock.Advance(2 * time.Second)
	env.submit(t, insideLng, insideLat)

	alert, err := env.store.GetActiveAlert(ctx, env.linkID, models.AlertTypeOutOfZone)
	require.NoError(t, err)
	require.NotNil(t, alert.ClearCandidateAt)
	require.Equal(t, started, *alert.ClearCandidateAt)
}

func TestOutOfZoneDuringHoldResets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.submit(t, outsideLng, outsideLat)
	env.submit(t, insideLng, insideLat)
	env.clock.Advance(3 * time.Second)
	env.submit(t, outsideLng, outsideLat)

	alert, err := env.store.GetActiveAlert(ctx, env.linkID, models.AlertTypeOutOfZone)
	require.NoError(t, err)
	require.Nil(t, alert.ClearCandidateAt)

	// Even a full hold later nothing clears: the hold was voided.
	env.clock.Advance(10 * time.Second)
	env.sweeper.Sweep(ctx)

	_, err = env.store.GetActiveAlert(ctx, env.linkID, models.AlertTypeOutOfZone)
	require.NoError(t, err)
}

func TestNoZonesMeansNoDecision(t *testing.T) {
	store := storage.NewMemoryStore()
	pub := &recordingPublisher{}
	clock := newTestClock()
	pipeline := NewPipeline(store, pub, DefaultConfig())
	pipeline.now = clock.Now
	ctx := context.Background()

	tenant := &models.Tenant{Name: "zoneless", IsActive: true}
	require.NoError(t, store.CreateTenant(ctx, tenant))
	require.NoError(t, store.EnsureTracker(ctx, "collar-009"))
	link := &models.DeviceLink{
		TenantModel: models.TenantModel{TenantID: tenant.ID},
		TrackerID:   "collar-009",
		Name:        "Rosie",
	}
	require.NoError(t, store.CreateDeviceLink(ctx, link))

	err := pipeline.SubmitFix(ctx, FixInput{
		TrackerID: "collar-009",
		Lng:       outsideLng,
		Lat:       outsideLat,
		Timestamp: clock.Now(),
	})
	require.NoError(t, err)

	alerts, err := store.ListActiveAlerts(ctx, tenant.ID)
	require.NoError(t, err)
	require.Empty(t, alerts)
}

func TestUnionAcrossZones(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A second zone west of the first, covering the "outside" probe.
	west := &models.Geofence{
		TenantModel: models.TenantModel{TenantID: env.tenantID},
		Name:        "west pasture",
		InnerBoundary: models.Ring{
			{7.5900, 51.9682},
			{7.5930, 51.9682},
			{7.5930, 51.9702},
			{7.5900, 51.9702},
			{7.5900, 51.9682},
		},
	}
	require.NoError(t, env.store.CreateGeofence(ctx, west))

	env.submit(t, outsideLng, outsideLat)

	alerts, err := env.store.ListActiveAlerts(ctx, env.tenantID)
	require.NoError(t, err)
	require.Empty(t, alerts, "inside any zone counts as contained")
}

// failingZoneStore breaks zone listing for one tenant to exercise
// per-link failure isolation.
type failingZoneStore struct {
	storage.Store
	failTenant uuid.UUID
}

func (s *failingZoneStore) ListGeofences(ctx context.Context, tenantID uuid.UUID) ([]*models.Geofence, error) {
	if tenantID == s.failTenant {
		return nil, errors.New("boom")
	}
	return s.Store.ListGeofences(ctx, tenantID)
}

func TestFanOutIsolatesTenantFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A second tenant shares the tracker; its zone lookups fail.
	other := &models.Tenant{Name: "south-farm", IsActive: true}
	require.NoError(t, env.store.CreateTenant(ctx, other))
	otherLink := &models.DeviceLink{
		TenantModel: models.TenantModel{TenantID: other.ID},
		TrackerID:   "collar-001",
		Name:        "Bella (leased)",
	}
	require.NoError(t, env.store.CreateDeviceLink(ctx, otherLink))

	env.pipeline.store = &failingZoneStore{Store: env.store, failTenant: other.ID}

	env.submit(t, outsideLng, outsideLat)

	// The healthy tenant still got its evaluation and alert.
	alerts, err := env.store.ListActiveAlerts(ctx, env.tenantID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	// And the broken tenant's link state was still synchronized before
	// the evaluation failed.
	got, err := env.store.GetDeviceLink(ctx, other.ID, otherLink.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastPosition)
}

// panickingZoneStore panics on zone listing for one tenant.
type panickingZoneStore struct {
	storage.Store
	panicTenant uuid.UUID
}

func (s *panickingZoneStore) ListGeofences(ctx context.Context, tenantID uuid.UUID) ([]*models.Geofence, error) {
	if tenantID == s.panicTenant {
		panic("zone cache corrupted")
	}
	return s.Store.ListGeofences(ctx, tenantID)
}

func TestIngestSurvivesDownstreamPanic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A second tenant shares the tracker; its zone lookups panic.
	other := &models.Tenant{Name: "south-farm", IsActive: true}
	require.NoError(t, env.store.CreateTenant(ctx, other))
	otherLink := &models.DeviceLink{
		TenantModel: models.TenantModel{TenantID: other.ID},
		TrackerID:   "collar-001",
		Name:        "Bella (leased)",
	}
	require.NoError(t, env.store.CreateDeviceLink(ctx, otherLink))

	env.pipeline.store = &panickingZoneStore{Store: env.store, panicTenant: other.ID}

	err := env.pipeline.SubmitFix(ctx, FixInput{
		TrackerID: "collar-001",
		Lng:       outsideLng,
		Lat:       outsideLat,
		Timestamp: env.clock.Now(),
	})
	require.NoError(t, err, "a panic in one link's sync never reaches the producer")

	// The fix landed and the healthy tenant still got its alert.
	fix, err := env.store.GetLocationFix(ctx, "collar-001")
	require.NoError(t, err)
	require.Equal(t, outsideLng, fix.Position.Lng)

	alerts, err := env.store.ListActiveAlerts(ctx, env.tenantID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
}

func TestIngestSurvivesDownstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.pipeline.store = &failingZoneStore{Store: env.store, failTenant: env.tenantID}

	err := env.pipeline.SubmitFix(ctx, FixInput{
		TrackerID: "collar-001",
		Lng:       outsideLng,
		Lat:       outsideLat,
		Timestamp: env.clock.Now(),
	})
	require.NoError(t, err, "downstream failures never reach the producer")

	fix, err := env.store.GetLocationFix(ctx, "collar-001")
	require.NoError(t, err)
	require.Equal(t, outsideLng, fix.Position.Lng)
}
