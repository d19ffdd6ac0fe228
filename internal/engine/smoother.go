package engine

import "backend-waytrack/internal/shared/geo"

// PositionSmoother exponentially smooths incoming coordinates so downstream
// math never sees raw GPS jitter. The first fix of a session seeds the state
// unsmoothed.
type PositionSmoother struct {
	alpha  float64
	seeded bool
	pos    geo.Point
}

func NewPositionSmoother(alpha float64) *PositionSmoother {
	return &PositionSmoother{alpha: alpha}
}

func (s *PositionSmoother) Update(lat, lon float64) geo.Point {
	if !s.seeded {
		s.pos = geo.Point{Lat: lat, Lon: lon}
		s.seeded = true
		return s.pos
	}
	s.pos.Lat += s.alpha * (lat - s.pos.Lat)
	s.pos.Lon += s.alpha * (lon - s.pos.Lon)
	return s.pos
}

func (s *PositionSmoother) Reset() {
	s.seeded = false
	s.pos = geo.Point{}
}

// DisplaySmoother shapes the speed shown to the user. Smoothing is
// asymmetric: a zero reading decays the displayed value quickly toward a
// hard stop, while non-zero readings are blended, with heavier smoothing at
// low speed where relative GPS error is largest.
type DisplaySmoother struct {
	cfg   Config
	value float64
}

func NewDisplaySmoother(cfg Config) *DisplaySmoother {
	return &DisplaySmoother{cfg: cfg}
}

// Update consumes the filtered speed in m/s and returns the value to display.
func (d *DisplaySmoother) Update(filteredMps float64) float64 {
	if filteredMps <= 0 {
		if d.value < d.cfg.DisplayZeroSnapMps {
			d.value = 0
			return 0
		}
		d.value *= d.cfg.DisplayDecay
		if d.value < d.cfg.DisplayZeroSnapMps {
			d.value = 0
		}
		return d.value
	}

	factor := d.cfg.DisplayHighFactor
	if filteredMps < d.cfg.DisplayLowSpeedMps {
		factor = d.cfg.DisplayLowFactor
	}
	d.value += factor * (filteredMps - d.value)
	return d.value
}

func (d *DisplaySmoother) Value() float64 { return d.value }

func (d *DisplaySmoother) Reset() { d.value = 0 }
