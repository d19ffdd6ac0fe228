package engine

import "time"

// DwellDetector distinguishes a genuine stop (traffic light, photo break)
// from brief near-zero noise. Only a continuous sub-threshold run lasting
// the configured duration flips the session into dwelling; any at-threshold
// reading clears it immediately.
type DwellDetector struct {
	cfg      Config
	timing   bool
	since    time.Time
	dwelling bool
}

func NewDwellDetector(cfg Config) *DwellDetector {
	return &DwellDetector{cfg: cfg}
}

// Observe feeds one speed reading and reports whether the session is dwelling.
func (d *DwellDetector) Observe(speedMps float64, at time.Time) bool {
	if speedMps >= d.cfg.StationaryThresholdMps {
		d.timing = false
		d.dwelling = false
		return false
	}
	if !d.timing {
		d.timing = true
		d.since = at
		return d.dwelling
	}
	if !d.dwelling && at.Sub(d.since) >= d.cfg.DwellAfter {
		d.dwelling = true
	}
	return d.dwelling
}

func (d *DwellDetector) Dwelling() bool { return d.dwelling }

func (d *DwellDetector) Reset() {
	d.timing = false
	d.dwelling = false
	d.since = time.Time{}
}
