package engine

import "time"

// Config holds the pipeline tuning knobs. The defaults were tuned against
// real recordings; treat them as adjustable configuration, not derived
// constants.
type Config struct {
	// AccuracyCeilingM rejects fixes with a worse reported accuracy.
	AccuracyCeilingM float64
	// PositionAlpha is the EWMA weight applied to incoming lat/lon.
	PositionAlpha float64

	// SpeedWindow bounds the position window used for speed estimation.
	SpeedWindow time.Duration
	// MinWindowElapsed and MinDisplacementM gate the estimate: below either,
	// positional error alone can fake movement, so the estimate is zero.
	MinWindowElapsed time.Duration
	MinDisplacementM float64
	// SpeedCeilingKmh rejects physically implausible estimates.
	SpeedCeilingKmh float64
	// DriftDistanceM / DriftElapsed catch the stationary-with-drift case.
	DriftDistanceM float64
	DriftElapsed   time.Duration
	// DeviceSpeedAccuracyM gates the device-reported speed fallback.
	DeviceSpeedAccuracyM float64

	// StationaryThresholdMps is the minimum credible moving speed.
	StationaryThresholdMps float64
	// DwellAfter is how long speed must stay sub-threshold before the
	// session is considered truly stationary.
	DwellAfter time.Duration

	// Display smoothing.
	DisplayDecay       float64
	DisplayZeroSnapMps float64
	DisplayLowFactor   float64
	DisplayHighFactor  float64
	DisplayLowSpeedMps float64

	// Top-speed corroboration.
	HighSampleCap     int
	HighSampleBand    float64
	CorroborationBand float64
	HighSpeedFloorKmh float64

	// Buffer flush triggers and snap call budget.
	FlushSize     int
	FlushInterval time.Duration
	SnapTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		AccuracyCeilingM: 30,
		PositionAlpha:    0.3,

		SpeedWindow:          5 * time.Second,
		MinWindowElapsed:     2 * time.Second,
		MinDisplacementM:     3,
		SpeedCeilingKmh:      250,
		DriftDistanceM:       5,
		DriftElapsed:         5 * time.Second,
		DeviceSpeedAccuracyM: 15,

		StationaryThresholdMps: 1.5,
		DwellAfter:             5 * time.Second,

		DisplayDecay:       0.3,
		DisplayZeroSnapMps: 0.5,
		DisplayLowFactor:   0.2,
		DisplayHighFactor:  0.4,
		DisplayLowSpeedMps: 3,

		HighSampleCap:     5,
		HighSampleBand:    0.9,
		CorroborationBand: 0.85,
		HighSpeedFloorKmh: 50,

		FlushSize:     10,
		FlushInterval: 30 * time.Second,
		SnapTimeout:   10 * time.Second,
	}
}
