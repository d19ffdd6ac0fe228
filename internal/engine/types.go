package engine

import (
	"time"

	"backend-waytrack/internal/shared/geo"
)

// Fix is a single raw GPS sample as delivered by a location source.
type Fix struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	SpeedMps   float64   `json:"speed_mps"`
	Heading    float64   `json:"heading"`
	AccuracyM  float64   `json:"accuracy_m"`
	RecordedAt time.Time `json:"recorded_at"`
}

// TrackedPoint is a fix that survived filtering and was classified as
// genuine movement. These are what get buffered for road snapping.
type TrackedPoint struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	SpeedMps   float64   `json:"speed_mps"`
	Heading    float64   `json:"heading"`
	AccuracyM  float64   `json:"accuracy_m"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Snapshot is the read surface exposed to UI and persistence collaborators.
type Snapshot struct {
	Lat             float64     `json:"lat"`
	Lon             float64     `json:"lon"`
	DisplaySpeedKmh float64     `json:"display_speed_kmh"`
	DistanceKm      float64     `json:"distance_km"`
	MovingTimeSec   float64     `json:"moving_time_sec"`
	MaxSpeedKmh     float64     `json:"max_speed_kmh"`
	AvgSpeedKmh     float64     `json:"avg_speed_kmh"`
	Moving          bool        `json:"moving"`
	Dwelling        bool        `json:"dwelling"`
	Path            []geo.Point `json:"path,omitempty"`
}
