package models

// Geofence is a tenant-owned safe zone. The inner boundary is the drawn
// polygon; the outer boundary is derived from it by buffering and is
// recomputed whenever BufferMeters changes. With BufferMeters == 0 the
// outer boundary equals the inner boundary exactly.
type Geofence struct {
	TenantModel

	Name          string `json:"name" db:"name"`
	InnerBoundary Ring   `json:"innerBoundary" db:"inner_boundary"`
	BufferMeters  int    `json:"bufferMeters" db:"buffer_meters"`
	OuterBoundary Ring   `json:"outerBoundary" db:"outer_boundary"`
}
