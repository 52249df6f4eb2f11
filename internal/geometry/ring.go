// Package geometry implements the spatial primitives of the geofence
// engine: boundary validation, point containment and geodesic buffering.
// All rings are WGS84 lon/lat; buffering is done in a local distance-true
// projection because degrees of longitude are not meters.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Common errors
var (
	ErrInvalidGeometry  = errors.New("invalid geometry")
	ErrBufferOutOfRange = errors.New("buffer distance out of range")
)

// MaxBufferMeters is the largest buffer distance a geofence may carry.
const MaxBufferMeters = 50

// metersPerDegree is the length of one degree of latitude. Longitude is
// corrected by cos(lat) in the local projection.
const metersPerDegree = 111320.0

// ValidateRing checks that a ring is a usable simple polygon boundary:
// closed, at least three distinct vertices, in-range coordinates, non-zero
// area and no self-intersections.
func ValidateRing(ring orb.Ring) error {
	if len(ring) < 4 {
		return fmt.Errorf("%w: ring needs at least 4 vertices, got %d", ErrInvalidGeometry, len(ring))
	}
	if ring[0] != ring[len(ring)-1] {
		return fmt.Errorf("%w: ring is not closed", ErrInvalidGeometry)
	}
	for i, pt := range ring {
		if pt[0] < -180 || pt[0] > 180 || pt[1] < -90 || pt[1] > 90 {
			return fmt.Errorf("%w: vertex %d out of coordinate range", ErrInvalidGeometry, i)
		}
	}
	if signedArea(ring) == 0 {
		return fmt.Errorf("%w: ring has zero area", ErrInvalidGeometry)
	}
	if i, j, ok := findSelfIntersection(ring); ok {
		return fmt.Errorf("%w: edges %d and %d intersect", ErrInvalidGeometry, i, j)
	}
	return nil
}

// ContainsPoint reports whether the point lies inside or on the ring.
func ContainsPoint(ring orb.Ring, pt orb.Point) bool {
	return planar.RingContains(ring, pt)
}

// signedArea is the shoelace area of the ring: positive for
// counter-clockwise winding, negative for clockwise.
func signedArea(ring orb.Ring) float64 {
	var sum float64
	for i := 0; i < len(ring)-1; i++ {
		sum += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	return sum / 2
}

// centroid is the vertex average, which is accurate enough to anchor the
// local projection.
func centroid(ring orb.Ring) orb.Point {
	var x, y float64
	n := len(ring) - 1 // skip the closing vertex
	for i := 0; i < n; i++ {
		x += ring[i][0]
		y += ring[i][1]
	}
	return orb.Point{x / float64(n), y / float64(n)}
}

// findSelfIntersection scans all non-adjacent edge pairs. Rings are small
// (hand-drawn zones), so the quadratic scan is fine.
func findSelfIntersection(ring orb.Ring) (int, int, bool) {
	n := len(ring) - 1 // number of edges
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			// The first and last edge share the closing vertex.
			if i == 0 && j == n-1 {
				continue
			}
			if segmentsIntersect(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func segmentsIntersect(a, b, c, d orb.Point) bool {
	d1 := cross(c, d, a)
	d2 := cross(c, d, b)
	d3 := cross(a, b, c)
	d4 := cross(a, b, d)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	// Collinear overlaps count as intersections too.
	if d1 == 0 && onSegment(c, d, a) {
		return true
	}
	if d2 == 0 && onSegment(c, d, b) {
		return true
	}
	if d3 == 0 && onSegment(a, b, c) {
		return true
	}
	if d4 == 0 && onSegment(a, b, d) {
		return true
	}
	return false
}

func cross(a, b, p orb.Point) float64 {
	return (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}
