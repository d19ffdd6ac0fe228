package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"backend-waytrack/internal/shared/geo"
)

// Snapper maps an ordered point sequence onto a plausible path. The road
// snapping implementation lives in internal/snap; a passthrough is used
// when no service credential is configured.
type Snapper interface {
	Snap(ctx context.Context, points []geo.Point) ([]geo.Point, error)
}

// Engine owns the entire mutable state of one tracking session: the
// smoothers, the dwell machine, the sample buffer and every accumulator.
// All mutation is serialized behind one mutex so a fix is never processed
// against partially-reset state and the reset contract stays mechanically
// checkable.
type Engine struct {
	cfg     Config
	snapper Snapper

	mu      sync.Mutex
	enabled bool
	// gen invalidates in-flight snap calls across Start/Stop edges so a
	// slow response can never bleed into the next session.
	gen uint64

	pos     *PositionSmoother
	est     *SpeedEstimator
	dwell   *DwellDetector
	display *DisplaySmoother
	top     *MaxSpeedTracker

	live         Fix
	displayMps   float64
	distanceKm   float64
	movingTime   time.Duration
	moving       bool
	lastMovement time.Time

	buffer    []TrackedPoint
	path      []geo.Point
	lastFlush time.Time
	flushing  bool
}

func New(cfg Config, snapper Snapper) *Engine {
	return &Engine{
		cfg:     cfg,
		snapper: snapper,
		pos:     NewPositionSmoother(cfg.PositionAlpha),
		est:     NewSpeedEstimator(cfg),
		dwell:   NewDwellDetector(cfg),
		display: NewDisplaySmoother(cfg),
		top:     NewMaxSpeedTracker(cfg),
	}
}

// Start enables tracking. On the rising edge every accumulator and every
// piece of smoother state is zeroed atomically; a repeated Start while
// already enabled is a no-op.
func (e *Engine) Start(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enabled {
		return
	}
	e.enabled = true
	e.reset(now)
}

func (e *Engine) reset(now time.Time) {
	e.gen++
	e.pos.Reset()
	e.est.Reset()
	e.dwell.Reset()
	e.display.Reset()
	e.top.Reset()
	e.live = Fix{}
	e.displayMps = 0
	e.distanceKm = 0
	e.movingTime = 0
	e.moving = false
	e.lastMovement = time.Time{}
	e.buffer = nil
	e.path = nil
	e.lastFlush = now
	e.flushing = false
}

// Stop disables tracking and performs one final synchronous flush of any
// buffered points. The caller must have unsubscribed from the location
// source first so no fix arrives after this returns. If the snap service
// fails on this last exchange the raw points are accumulated directly;
// there is no later trigger left to retry on.
func (e *Engine) Stop(ctx context.Context) Snapshot {
	e.mu.Lock()
	if !e.enabled {
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap
	}
	e.enabled = false
	e.gen++
	pts := pointsOf(e.buffer)
	e.buffer = nil
	e.mu.Unlock()

	if len(pts) > 0 {
		snapped, err := e.snapper.Snap(ctx, pts)
		if err != nil {
			log.Printf("final road snap failed, using raw points: %v", err)
			snapped = pts
		}
		e.mu.Lock()
		e.distanceKm += geo.PathKm(snapped)
		e.appendPath(snapped)
		e.mu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// ProcessFix runs one raw fix through the whole pipeline: accuracy filter,
// position smoothing, speed estimation, dwell detection, display smoothing,
// top-speed tracking, moving-time accrual and movement buffering.
func (e *Engine) ProcessFix(f Fix) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return
	}
	if f.AccuracyM > e.cfg.AccuracyCeilingM {
		return
	}

	e.live = f

	pos := e.pos.Update(f.Lat, f.Lon)
	inst := e.est.Estimate(pos, f.AccuracyM, f.SpeedMps, f.RecordedAt)
	dwelling := e.dwell.Observe(inst, f.RecordedAt)

	filtered := inst
	if filtered < e.cfg.StationaryThresholdMps {
		filtered = 0
	}
	if dwelling {
		filtered = 0
	}

	e.displayMps = e.display.Update(filtered)
	if filtered > 0 {
		e.top.Observe(filtered * 3.6)
	}

	now := f.RecordedAt
	if filtered > 0 && !dwelling {
		if !e.moving {
			e.moving = true
			e.lastMovement = now
		} else {
			e.movingTime += now.Sub(e.lastMovement)
			e.lastMovement = now
		}
		e.buffer = append(e.buffer, TrackedPoint{
			Lat:        pos.Lat,
			Lon:        pos.Lon,
			SpeedMps:   filtered,
			Heading:    f.Heading,
			AccuracyM:  f.AccuracyM,
			RecordedAt: now,
		})
	} else {
		e.moving = false
	}

	e.maybeFlush(now)
}

// maybeFlush launches an asynchronous snap exchange when the buffer is
// large enough or has gone stale. Overlapping exchanges are suppressed; a
// slow or failed response never blocks fix processing.
func (e *Engine) maybeFlush(now time.Time) {
	if e.flushing || len(e.buffer) == 0 {
		return
	}
	if len(e.buffer) < e.cfg.FlushSize && now.Sub(e.lastFlush) <= e.cfg.FlushInterval {
		return
	}
	sent := len(e.buffer)
	pts := pointsOf(e.buffer)
	e.flushing = true
	gen := e.gen
	go e.flush(gen, pts, sent, now)
}

// now is the triggering fix's timestamp: flush age is tracked on the fix
// clock, not the server wall clock, so client-stamped streams cannot skew
// the staleness trigger.
func (e *Engine) flush(gen uint64, pts []geo.Point, sent int, now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SnapTimeout)
	defer cancel()
	snapped, err := e.snapper.Snap(ctx, pts)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		// Session was reset or stopped while the call was in flight.
		return
	}
	e.flushing = false
	e.lastFlush = now
	if err != nil {
		// Points stay buffered; the next trigger retries.
		log.Printf("road snap failed, retaining %d points: %v", sent, err)
		return
	}
	e.distanceKm += geo.PathKm(snapped)
	e.appendPath(snapped)
	// Keep the last sent point as the continuity seed for the next segment.
	e.buffer = e.buffer[sent-1:]
}

// appendPath joins a snapped segment onto the path. Each segment re-sends
// the previous segment's last point as its continuity seed; its snapped twin
// is dropped here so the exposed path carries no duplicate seam points.
func (e *Engine) appendPath(segment []geo.Point) {
	if n := len(e.path); n > 0 && len(segment) > 0 && segment[0] == e.path[n-1] {
		segment = segment[1:]
	}
	e.path = append(e.path, segment...)
}

// Snapshot returns the current read surface.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	avg := 0.0
	if e.movingTime > 0 {
		avg = e.distanceKm / e.movingTime.Hours()
	}
	path := make([]geo.Point, len(e.path))
	copy(path, e.path)
	return Snapshot{
		Lat:             e.live.Lat,
		Lon:             e.live.Lon,
		DisplaySpeedKmh: e.displayMps * 3.6,
		DistanceKm:      e.distanceKm,
		MovingTimeSec:   e.movingTime.Seconds(),
		MaxSpeedKmh:     e.top.MaxKmh(),
		AvgSpeedKmh:     avg,
		Moving:          e.moving,
		Dwelling:        e.dwell.Dwelling(),
		Path:            path,
	}
}

// BufferLen reports the number of points awaiting a snap exchange.
func (e *Engine) BufferLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffer)
}

func pointsOf(buf []TrackedPoint) []geo.Point {
	pts := make([]geo.Point, len(buf))
	for i, p := range buf {
		pts[i] = geo.Point{Lat: p.Lat, Lon: p.Lon}
	}
	return pts
}
