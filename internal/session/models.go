package session

import "time"

type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Status    string    `json:"status"`
}

type Summary struct {
	SessionID     string  `json:"session_id"`
	DistanceKm    float64 `json:"distance_km"`
	MovingTimeSec float64 `json:"moving_time_sec"`
	MaxSpeedKmh   float64 `json:"max_speed_kmh"`
	AvgSpeedKmh   float64 `json:"avg_speed_kmh"`
	PointCount    int     `json:"point_count"`
}
