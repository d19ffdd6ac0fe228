package engine

import "sort"

// MaxSpeedTracker records the session's top speed, but a single high
// reading is never trusted on its own: a candidate must be corroborated by
// at least one additional consistent sample before the record moves, and
// the record is set to the median of the agreeing samples rather than the
// raw spike.
type MaxSpeedTracker struct {
	cfg    Config
	maxKmh float64
	high   []float64
}

func NewMaxSpeedTracker(cfg Config) *MaxSpeedTracker {
	return &MaxSpeedTracker{cfg: cfg}
}

// Observe feeds one filtered speed in km/h and returns the current record.
func (t *MaxSpeedTracker) Observe(speedKmh float64) float64 {
	if speedKmh <= 0 {
		return t.maxKmh
	}
	if t.maxKmh > 0 && speedKmh < t.maxKmh/2 {
		t.high = t.high[:0]
		return t.maxKmh
	}

	if speedKmh >= t.cfg.HighSampleBand*t.maxKmh || speedKmh > t.cfg.HighSpeedFloorKmh {
		t.high = append(t.high, speedKmh)
		if len(t.high) > t.cfg.HighSampleCap {
			t.high = t.high[1:]
		}
	}

	if speedKmh <= t.maxKmh {
		return t.maxKmh
	}

	var agreeing []float64
	for _, s := range t.high {
		if s >= t.cfg.CorroborationBand*speedKmh {
			agreeing = append(agreeing, s)
		}
	}
	if len(agreeing) >= 2 {
		t.maxKmh = median(agreeing)
	}
	return t.maxKmh
}

func (t *MaxSpeedTracker) MaxKmh() float64 { return t.maxKmh }

func (t *MaxSpeedTracker) Reset() {
	t.maxKmh = 0
	t.high = t.high[:0]
}

func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
