package engine

import (
	"time"

	"backend-waytrack/internal/shared/geo"
)

type windowSample struct {
	pos geo.Point
	at  time.Time
}

// SpeedEstimator derives instantaneous speed from a sliding window of
// smoothed positions rather than trusting any single reading. Estimates
// are gated on both elapsed time and displacement: over a short window at
// low true speed, positional error alone can exceed the implied movement.
type SpeedEstimator struct {
	cfg    Config
	window []windowSample
}

func NewSpeedEstimator(cfg Config) *SpeedEstimator {
	return &SpeedEstimator{cfg: cfg}
}

// Estimate appends the smoothed position to the window, prunes stale
// samples, and returns the speed in m/s. When the window cannot support a
// trustworthy estimate but the fix accuracy is excellent, the device's own
// speed reading is used instead.
func (e *SpeedEstimator) Estimate(pos geo.Point, accuracyM, deviceMps float64, at time.Time) float64 {
	e.window = append(e.window, windowSample{pos: pos, at: at})
	cutoff := at.Add(-e.cfg.SpeedWindow)
	for len(e.window) > 0 && e.window[0].at.Before(cutoff) {
		e.window = e.window[1:]
	}

	var est float64
	if len(e.window) >= 2 {
		oldest := e.window[0]
		newest := e.window[len(e.window)-1]
		elapsed := newest.at.Sub(oldest.at)
		distM := geo.HaversineKm(oldest.pos.Lat, oldest.pos.Lon, newest.pos.Lat, newest.pos.Lon) * 1000

		if elapsed >= e.cfg.MinWindowElapsed && distM >= e.cfg.MinDisplacementM {
			est = distM / elapsed.Seconds()
		}
		if est*3.6 > e.cfg.SpeedCeilingKmh {
			est = 0
		}
		// Stationary with drift: barely any displacement over a long
		// stretch means the apparent motion is noise.
		if distM < e.cfg.DriftDistanceM && elapsed > e.cfg.DriftElapsed {
			est = 0
		}
	}

	if est == 0 && accuracyM < e.cfg.DeviceSpeedAccuracyM && deviceMps > 0 &&
		deviceMps*3.6 <= e.cfg.SpeedCeilingKmh {
		est = deviceMps
	}
	return est
}

func (e *SpeedEstimator) Reset() {
	e.window = e.window[:0]
}
