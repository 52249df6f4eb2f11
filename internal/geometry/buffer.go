package geometry

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// arcStep is the angular resolution of round joins, ~15 degrees.
const arcStep = math.Pi / 12

// Buffer returns the outer boundary obtained by expanding the ring outward
// by the given distance in meters. A distance of zero returns the input
// ring unchanged. The expansion is computed in a local equirectangular
// projection in meters and yields a single closed outer ring: round joins
// at convex vertices, miter joins at reflex vertices.
func Buffer(inner orb.Ring, meters int) (orb.Ring, error) {
	if err := ValidateRing(inner); err != nil {
		return nil, err
	}
	if meters < 0 || meters > MaxBufferMeters {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrBufferOutOfRange, meters, MaxBufferMeters)
	}
	if meters == 0 {
		return inner, nil
	}

	proj := newLocalProjection(centroid(inner))

	// Project to an open vertex list, dropping the closing vertex and any
	// consecutive duplicates.
	pts := make([]orb.Point, 0, len(inner)-1)
	for i := 0; i < len(inner)-1; i++ {
		pt := proj.project(inner[i])
		if len(pts) > 0 && pt == pts[len(pts)-1] {
			continue
		}
		pts = append(pts, pt)
	}
	if planarArea(pts) < 0 {
		reverse(pts)
	}

	offset := offsetCCW(pts, float64(meters))

	ring := make(orb.Ring, 0, len(offset)+1)
	for _, pt := range offset {
		ring = append(ring, proj.unproject(pt))
	}
	ring = append(ring, ring[0])
	return ring, nil
}

// offsetCCW expands a counter-clockwise polygon outward by d.
func offsetCCW(pts []orb.Point, d float64) []orb.Point {
	n := len(pts)
	out := make([]orb.Point, 0, n*3)

	for i := 0; i < n; i++ {
		prev := pts[(i-1+n)%n]
		cur := pts[i]
		next := pts[(i+1)%n]

		n1 := outwardNormal(prev, cur)
		n2 := outwardNormal(cur, next)

		a := orb.Point{cur[0] + n1[0]*d, cur[1] + n1[1]*d}
		b := orb.Point{cur[0] + n2[0]*d, cur[1] + n2[1]*d}

		turn := (cur[0]-prev[0])*(next[1]-cur[1]) - (cur[1]-prev[1])*(next[0]-cur[0])
		if turn > 0 {
			// Convex: walk the arc from a to b around the vertex.
			out = append(out, arcPoints(cur, d, n1, n2)...)
		} else if turn < 0 {
			// Reflex: the offset edges cross behind the vertex; the
			// miter point is where the two offset edge lines meet.
			e1 := orb.Point{cur[0] - prev[0], cur[1] - prev[1]}
			e2 := orb.Point{next[0] - cur[0], next[1] - cur[1]}
			if m, ok := lineIntersection(a, e1, b, e2); ok {
				out = append(out, m)
			} else {
				out = append(out, a)
			}
		} else {
			// Collinear: a == b up to rounding.
			out = append(out, a)
		}
	}
	return out
}

// arcPoints samples the circular arc of radius d around center, sweeping
// counter-clockwise from normal n1 to normal n2, endpoints included.
func arcPoints(center orb.Point, d float64, n1, n2 orb.Point) []orb.Point {
	a1 := math.Atan2(n1[1], n1[0])
	a2 := math.Atan2(n2[1], n2[0])
	for a2 < a1 {
		a2 += 2 * math.Pi
	}
	steps := int(math.Ceil((a2 - a1) / arcStep))
	if steps < 1 {
		steps = 1
	}
	pts := make([]orb.Point, 0, steps+1)
	for k := 0; k <= steps; k++ {
		angle := a1 + (a2-a1)*float64(k)/float64(steps)
		pts = append(pts, orb.Point{
			center[0] + d*math.Cos(angle),
			center[1] + d*math.Sin(angle),
		})
	}
	return pts
}

// outwardNormal is the unit normal of edge p->q pointing away from the
// interior of a counter-clockwise polygon.
func outwardNormal(p, q orb.Point) orb.Point {
	dx := q[0] - p[0]
	dy := q[1] - p[1]
	length := math.Hypot(dx, dy)
	if length == 0 {
		return orb.Point{0, 0}
	}
	return orb.Point{dy / length, -dx / length}
}

// lineIntersection solves p1 + t*d1 == p2 + s*d2.
func lineIntersection(p1, d1, p2, d2 orb.Point) (orb.Point, bool) {
	denom := d1[0]*d2[1] - d1[1]*d2[0]
	if math.Abs(denom) < 1e-12 {
		return orb.Point{}, false
	}
	t := ((p2[0]-p1[0])*d2[1] - (p2[1]-p1[1])*d2[0]) / denom
	return orb.Point{p1[0] + t*d1[0], p1[1] + t*d1[1]}, true
}

func planarArea(pts []orb.Point) float64 {
	var sum float64
	n := len(pts)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += pts[i][0]*pts[j][1] - pts[j][0]*pts[i][1]
	}
	return sum / 2
}

func reverse(pts []orb.Point) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}

// localProjection maps lon/lat to a plane in meters around an origin. It
// is distance-true at the scales a geofence buffer works with (tens of
// meters over zones a few hundred meters across).
type localProjection struct {
	origin orb.Point
	cosLat float64
}

func newLocalProjection(origin orb.Point) localProjection {
	return localProjection{
		origin: origin,
		cosLat: math.Cos(origin[1] * math.Pi / 180),
	}
}

func (p localProjection) project(pt orb.Point) orb.Point {
	return orb.Point{
		(pt[0] - p.origin[0]) * metersPerDegree * p.cosLat,
		(pt[1] - p.origin[1]) * metersPerDegree,
	}
}

func (p localProjection) unproject(pt orb.Point) orb.Point {
	return orb.Point{
		p.origin[0] + pt[0]/(metersPerDegree*p.cosLat),
		p.origin[1] + pt[1]/metersPerDegree,
	}
}
