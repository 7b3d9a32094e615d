package geo

// Region is a map viewport: a center point plus span deltas in degrees.
type Region struct {
	Center   Point   `json:"center"`
	LatDelta float64 `json:"latitudeDelta"`
	LngDelta float64 `json:"longitudeDelta"`
}

// Recentered returns a copy of the region moved to a new center, keeping the
// span.
func (r Region) Recentered(center Point) Region {
	r.Center = center
	return r
}
