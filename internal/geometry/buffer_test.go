package geometry

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

// eastOf shifts a point east by the given number of meters.
func eastOf(pt orb.Point, meters float64) orb.Point {
	return orb.Point{
		pt[0] + meters/(metersPerDegree*math.Cos(pt[1]*math.Pi/180)),
		pt[1],
	}
}

func TestBufferZeroIsIdentity(t *testing.T) {
	inner := square()

	out, err := Buffer(inner, 0)
	require.NoError(t, err)
	require.Equal(t, inner, out)
}

func TestBufferOutOfRange(t *testing.T) {
	inner := square()

	_, err := Buffer(inner, -1)
	require.ErrorIs(t, err, ErrBufferOutOfRange)

	_, err = Buffer(inner, MaxBufferMeters+1)
	require.ErrorIs(t, err, ErrBufferOutOfRange)
}

func TestBufferInvalidRing(t *testing.T) {
	ring := square()
	ring[len(ring)-1] = orb.Point{7.0, 51.0}

	_, err := Buffer(ring, 10)
	require.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestBufferIsValidClosedRing(t *testing.T) {
	out, err := Buffer(square(), 25)
	require.NoError(t, err)
	require.NoError(t, ValidateRing(out))
}

func TestBufferContainsOriginal(t *testing.T) {
	inner := square()

	out, err := Buffer(inner, 20)
	require.NoError(t, err)

	for _, pt := range inner {
		require.True(t, ContainsPoint(out, pt), "vertex %v should be inside the buffered ring", pt)
	}
}

func TestBufferDistance(t *testing.T) {
	inner := square()
	// Midpoint of the eastern edge.
	edgeMid := orb.Point{7.5972, 51.9692}

	out, err := Buffer(inner, 25)
	require.NoError(t, err)

	require.True(t, ContainsPoint(out, eastOf(edgeMid, 20)),
		"20m east of the edge should be inside a 25m buffer")
	require.False(t, ContainsPoint(out, eastOf(edgeMid, 32)),
		"32m east of the edge should be outside a 25m buffer")
}

func TestBufferMonotonic(t *testing.T) {
	inner := square()
	edgeMid := orb.Point{7.5972, 51.9692}
	probe := eastOf(edgeMid, 20)

	small, err := Buffer(inner, 10)
	require.NoError(t, err)
	large, err := Buffer(inner, 30)
	require.NoError(t, err)

	require.False(t, ContainsPoint(small, probe))
	require.True(t, ContainsPoint(large, probe))
}

func TestBufferRoundsConvexCorners(t *testing.T) {
	inner := square()
	corner := orb.Point{7.5972, 51.9702}

	out, err := Buffer(inner, 30)
	require.NoError(t, err)

	// Straight past the corner the boundary sits at the full distance.
	require.True(t, ContainsPoint(out, eastOf(corner, 25)))

	// Diagonally the round join cuts the miter: 30m along both axes is
	// sqrt(2)*30 ~ 42m from the corner, well past the 30m radius.
	diag := eastOf(corner, 30)
	diag[1] += 30 / metersPerDegree
	require.False(t, ContainsPoint(out, diag))
}
