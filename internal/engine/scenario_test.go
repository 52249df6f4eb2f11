package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/herdguard/herdguard-server/internal/models"
	"github.com/herdguard/herdguard-server/internal/storage"
)

// TestAlertLifecycleTimeline walks one collar through the full alert
// lifecycle: escape, dedup while still outside, re-entry starting the
// hold, and the sweep that finally clears.
func TestAlertLifecycleTimeline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// t=0s: outside the pasture. Alert raised.
	env.submit(t, outsideLng, outsideLat)
	alert, err := env.store.GetActiveAlert(ctx, env.linkID, models.AlertTypeOutOfZone)
	require.NoError(t, err)
	require.Nil(t, alert.ClearCandidateAt)

	// t=2s: still outside. Same alert, still no candidate.
	env.clock.Advance(2 * time.Second)
	env.submit(t, outsideLng, outsideLat)
	alerts, err := env.store.ListActiveAlerts(ctx, env.tenantID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, alert.ID, alerts[0].ID)
	require.Nil(t, alerts[0].ClearCandidateAt)

	// t=3s: back inside. The clear hold starts.
	env.clock.Advance(1 * time.Second)
	env.submit(t, insideLng, insideLat)
	reentered := env.clock.Now()
	got, err := env.store.GetActiveAlert(ctx, env.linkID, models.AlertTypeOutOfZone)
	require.NoError(t, err)
	require.NotNil(t, got.ClearCandidateAt)
	require.Equal(t, reentered, *got.ClearCandidateAt)

	// t=7s: still inside; a sweep before the hold elapses changes
	// nothing.
	env.clock.Advance(4 * time.Second)
	env.submit(t, insideLng, insideLat)
	env.sweeper.Sweep(ctx)
	got, err = env.store.GetActiveAlert(ctx, env.linkID, models.AlertTypeOutOfZone)
	require.NoError(t, err)
	require.Equal(t, reentered, *got.ClearCandidateAt)

	// t=9s: the hold has elapsed, the re-check confirms containment,
	// the alert is gone.
	env.clock.Advance(2 * time.Second)
	env.sweeper.Sweep(ctx)
	_, err = env.store.GetActiveAlert(ctx, env.linkID, models.AlertTypeOutOfZone)
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Sweeping again is a no-op, and no second clear event is sent.
	env.sweeper.Sweep(ctx)
	cleared := 0
	for _, subject := range env.pub.published() {
		if subject == "tenant."+env.tenantID.String()+".alert.cleared" {
			cleared++
		}
	}
	require.Equal(t, 1, cleared)
}

// TestHysteresisResetDiscardsPartialDwell covers the flapping case: two
// in-zone dwells of 4.9 seconds separated by an exit never clear the
// alert, because the hold restarts from zero on every exit.
func TestHysteresisResetDiscardsPartialDwell(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.submit(t, outsideLng, outsideLat)

	env.submit(t, insideLng, insideLat)
	env.clock.Advance(4900 * time.Millisecond)
	env.sweeper.Sweep(ctx)
	env.submit(t, outsideLng, outsideLat)

	env.submit(t, insideLng, insideLat)
	env.clock.Advance(4900 * time.Millisecond)
	env.sweeper.Sweep(ctx)

	alert, err := env.store.GetActiveAlert(ctx, env.linkID, models.AlertTypeOutOfZone)
	require.NoError(t, err)
	require.True(t, alert.Active, "neither dwell reached the full hold")
}
