package engine

import (
	"github.com/herdguard/herdguard-server/internal/geometry"
	"github.com/herdguard/herdguard-server/internal/models"
)

// Evaluate checks a position against a tenant's zone set. A point is
// contained when it lies inside any zone's inner boundary; the zones form
// a union, never an intersection. When the zone set is empty there is no
// basis for a decision and decided is false.
func Evaluate(zones []*models.Geofence, pos models.Point) (contained, decided bool) {
	if len(zones) == 0 {
		return false, false
	}

	pt := pos.Orb()
	for _, zone := range zones {
		if geometry.ContainsPoint(zone.InnerBoundary.Orb(), pt) {
			return true, true
		}
	}
	return false, true
}
