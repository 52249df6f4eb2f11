package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Orb converts the point to its orb representation.
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// PointFromOrb converts an orb point back to the storage representation.
func PointFromOrb(pt orb.Point) Point {
	return Point{Lng: pt[0], Lat: pt[1]}
}

// Value implements driver.Valuer
func (p Point) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner
func (p *Point) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, p)
	case string:
		return json.Unmarshal([]byte(data), p)
	default:
		return fmt.Errorf("cannot scan %T into Point", value)
	}
}

// Ring is a closed polygon boundary: an ordered list of [lng, lat] vertex
// pairs where the first and last vertex are identical. No holes.
type Ring [][2]float64

// Orb converts the ring to its orb representation.
func (r Ring) Orb() orb.Ring {
	ring := make(orb.Ring, len(r))
	for i, v := range r {
		ring[i] = orb.Point{v[0], v[1]}
	}
	return ring
}

// RingFromOrb converts an orb ring back to the exchange representation.
func RingFromOrb(ring orb.Ring) Ring {
	r := make(Ring, len(ring))
	for i, pt := range ring {
		r[i] = [2]float64{pt[0], pt[1]}
	}
	return r
}

// Equal reports whether both rings have identical vertices in order.
func (r Ring) Equal(other Ring) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if r[i] != other[i] {
			return false
		}
	}
	return true
}

// Value implements driver.Valuer
func (r Ring) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner
func (r *Ring) Scan(value interface{}) error {
	if value == nil {
		*r = nil
		return nil
	}
	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, r)
	case string:
		return json.Unmarshal([]byte(data), r)
	default:
		return fmt.Errorf("cannot scan %T into Ring", value)
	}
}
