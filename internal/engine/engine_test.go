package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"backend-waytrack/internal/shared/geo"
)

type stubSnapper struct {
	mu     sync.Mutex
	calls  int
	fail   bool
	result []geo.Point
	block  chan struct{}
}

func (s *stubSnapper) Snap(_ context.Context, points []geo.Point) ([]geo.Point, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	block := s.block
	s.mu.Unlock()

	if first && block != nil {
		<-block
	}
	if s.fail {
		return nil, errors.New("snap unavailable")
	}
	if s.result != nil {
		return s.result, nil
	}
	return points, nil
}

func (s *stubSnapper) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// movingFix builds a fix n*20 meters north of the origin, 2s apart,
// at roughly 10 m/s.
func movingFix(t0 time.Time, n int) Fix {
	return Fix{
		Lat:        float64(n) * 20 * latPerMeter,
		Lon:        0,
		AccuracyM:  5,
		RecordedAt: t0.Add(time.Duration(n) * 2 * time.Second),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestEngineDropsLowAccuracyFixes(t *testing.T) {
	e := New(DefaultConfig(), &stubSnapper{})
	t0 := time.Now()
	e.Start(t0)

	e.ProcessFix(Fix{Lat: 10, Lon: 10, AccuracyM: 31, RecordedAt: t0})
	snap := e.Snapshot()
	if snap.Lat != 0 || snap.Lon != 0 {
		t.Fatalf("rejected fix must not touch the live location: %+v", snap)
	}
	if snap.DistanceKm != 0 || snap.MovingTimeSec != 0 || e.BufferLen() != 0 {
		t.Fatalf("rejected fix must leave accumulators untouched")
	}
	if len(e.est.window) != 0 {
		t.Fatalf("rejected fix must not enter the speed window")
	}
}

func TestEngineIgnoresFixesWhileDisabled(t *testing.T) {
	e := New(DefaultConfig(), &stubSnapper{})
	e.ProcessFix(movingFix(time.Now(), 0))
	snap := e.Snapshot()
	if snap.Lat != 0 || snap.DistanceKm != 0 || e.BufferLen() != 0 {
		t.Fatalf("disabled engine must ignore fixes")
	}
}

func TestEngineMovementAccrual(t *testing.T) {
	e := New(DefaultConfig(), &stubSnapper{})
	t0 := time.Now()
	e.Start(t0)

	for n := 0; n < 6; n++ {
		e.ProcessFix(movingFix(t0, n))
	}
	snap := e.Snapshot()
	if !snap.Moving {
		t.Fatalf("expected moving state")
	}
	if snap.Dwelling {
		t.Fatalf("must not dwell while moving")
	}
	if snap.MovingTimeSec <= 0 {
		t.Fatalf("expected moving time accrual, got %v", snap.MovingTimeSec)
	}
	if snap.DisplaySpeedKmh <= 0 {
		t.Fatalf("expected non-zero display speed")
	}
	if e.BufferLen() == 0 {
		t.Fatalf("expected buffered movement points")
	}
}

func TestEngineStationaryDriftStaysZero(t *testing.T) {
	e := New(DefaultConfig(), &stubSnapper{})
	t0 := time.Now()
	e.Start(t0)

	// oscillate within ~3 m for 10 s with no true displacement
	for i := 0; i <= 10; i++ {
		lat := 0.0
		if i%2 == 1 {
			lat = 3 * latPerMeter
		}
		e.ProcessFix(Fix{Lat: lat, AccuracyM: 8, RecordedAt: t0.Add(time.Duration(i) * time.Second)})
	}

	snap := e.Snapshot()
	if snap.MovingTimeSec != 0 {
		t.Fatalf("drift must not accrue moving time: %v", snap.MovingTimeSec)
	}
	if snap.DisplaySpeedKmh != 0 {
		t.Fatalf("drift must not register display speed: %v", snap.DisplaySpeedKmh)
	}
	if !snap.Dwelling {
		t.Fatalf("expected dwelling within 5s of oscillation onset")
	}
	if e.BufferLen() != 0 {
		t.Fatalf("drift must not buffer points")
	}
}

func TestEngineImplausibleSpeedDoesNotSetRecord(t *testing.T) {
	e := New(DefaultConfig(), &stubSnapper{})
	t0 := time.Now()
	e.Start(t0)

	// two fixes 2s apart, 167m apart: ~300 km/h, beyond the ceiling
	e.ProcessFix(Fix{AccuracyM: 5, RecordedAt: t0})
	e.ProcessFix(Fix{Lat: 167 * latPerMeter, AccuracyM: 5, RecordedAt: t0.Add(2 * time.Second)})
	if snap := e.Snapshot(); snap.MaxSpeedKmh != 0 {
		t.Fatalf("implausible reading must not set max speed: %v", snap.MaxSpeedKmh)
	}

	// repeating it once more must still not promote
	e.ProcessFix(Fix{Lat: 334 * latPerMeter, AccuracyM: 5, RecordedAt: t0.Add(4 * time.Second)})
	if snap := e.Snapshot(); snap.MaxSpeedKmh != 0 {
		t.Fatalf("repeated implausible reading must still not promote: %v", snap.MaxSpeedKmh)
	}
}

func TestEngineDeviceSpeedAboveCeilingRejected(t *testing.T) {
	e := New(DefaultConfig(), &stubSnapper{})
	t0 := time.Now()
	e.Start(t0)

	// accurate fixes whose device-reported speed claims 300 km/h while the
	// window cannot estimate yet
	e.ProcessFix(Fix{SpeedMps: 300 / 3.6, AccuracyM: 5, RecordedAt: t0})
	e.ProcessFix(Fix{SpeedMps: 300 / 3.6, AccuracyM: 5, RecordedAt: t0.Add(time.Second)})

	snap := e.Snapshot()
	if snap.MaxSpeedKmh != 0 {
		t.Fatalf("implausible device speed must not set max speed: %v", snap.MaxSpeedKmh)
	}
	if snap.MovingTimeSec != 0 || e.BufferLen() != 0 {
		t.Fatalf("implausible device speed must not register movement")
	}
}

func TestEngineFlushAtBufferSize(t *testing.T) {
	snapper := &stubSnapper{}
	e := New(DefaultConfig(), snapper)
	t0 := time.Now()
	e.Start(t0)

	// the first fix only seeds the pipeline; the next ten buffer, and the
	// tenth buffered point triggers the flush
	for n := 0; n <= 10; n++ {
		e.ProcessFix(movingFix(t0, n))
	}

	waitFor(t, func() bool { return snapper.callCount() == 1 })
	waitFor(t, func() bool { return e.BufferLen() == 1 })

	snap := e.Snapshot()
	if snap.DistanceKm <= 0 {
		t.Fatalf("expected distance after flush")
	}
	if len(snap.Path) == 0 {
		t.Fatalf("expected snapped path after flush")
	}
}

func TestEngineFlushFailureRetainsPoints(t *testing.T) {
	snapper := &stubSnapper{fail: true}
	e := New(DefaultConfig(), snapper)
	t0 := time.Now()
	e.Start(t0)

	for n := 0; n <= 10; n++ {
		e.ProcessFix(movingFix(t0, n))
	}
	buffered := e.BufferLen()

	waitFor(t, func() bool { return snapper.callCount() == 1 })
	time.Sleep(20 * time.Millisecond)

	if e.BufferLen() != buffered {
		t.Fatalf("failed flush must retain points: had %d, now %d", buffered, e.BufferLen())
	}
	if snap := e.Snapshot(); snap.DistanceKm != 0 {
		t.Fatalf("failed flush must not accrue distance")
	}
}

func TestEngineDistanceMatchesSnappedPath(t *testing.T) {
	snapped := []geo.Point{
		{Lat: 0, Lon: 0},
		{Lat: 100 * latPerMeter, Lon: 0},
		{Lat: 200 * latPerMeter, Lon: 0},
	}
	snapper := &stubSnapper{result: snapped}
	e := New(DefaultConfig(), snapper)
	t0 := time.Now()
	e.Start(t0)

	for n := 0; n <= 10; n++ {
		e.ProcessFix(movingFix(t0, n))
	}
	waitFor(t, func() bool { return e.BufferLen() == 1 })

	want := geo.PathKm(snapped)
	got := e.Snapshot().DistanceKm
	if got < want*0.99 || got > want*1.01 {
		t.Fatalf("distance %v does not match snapped path %v", got, want)
	}
}

func TestEngineFlushIntervalUsesFixClock(t *testing.T) {
	snapper := &stubSnapper{}
	e := New(DefaultConfig(), snapper)
	// the stream is stamped by the client, hours behind the server clock
	t0 := time.Now().Add(-10 * time.Hour)
	e.Start(t0)

	for n := 0; n <= 10; n++ {
		e.ProcessFix(movingFix(t0, n))
	}
	waitFor(t, func() bool { return e.BufferLen() == 1 })

	// one fix right after the flush, then a gap past the 30s interval in
	// fix time; the second must fire the staleness trigger
	e.ProcessFix(movingFix(t0, 11))
	e.ProcessFix(movingFix(t0, 26))
	waitFor(t, func() bool { return snapper.callCount() == 2 })
}

func TestEnginePathHasNoDuplicateSeam(t *testing.T) {
	snapper := &stubSnapper{}
	e := New(DefaultConfig(), snapper)
	t0 := time.Now()
	e.Start(t0)

	for n := 0; n <= 10; n++ {
		e.ProcessFix(movingFix(t0, n))
	}
	waitFor(t, func() bool { return e.BufferLen() == 1 })

	// the final flush re-sends the continuity seed; joining the segments
	// must not duplicate it in the exposed path
	e.ProcessFix(movingFix(t0, 11))
	snap := e.Stop(context.Background())
	for i := 1; i < len(snap.Path); i++ {
		if snap.Path[i] == snap.Path[i-1] {
			t.Fatalf("duplicate path point at %d: %+v", i, snap.Path[i])
		}
	}
	if len(snap.Path) != 11 {
		t.Fatalf("expected 11 distinct path points, got %d", len(snap.Path))
	}
}

func TestEngineStopFinalFlush(t *testing.T) {
	snapper := &stubSnapper{}
	e := New(DefaultConfig(), snapper)
	t0 := time.Now()
	e.Start(t0)

	for n := 0; n < 6; n++ {
		e.ProcessFix(movingFix(t0, n))
	}
	if e.BufferLen() == 0 {
		t.Fatalf("expected buffered points before stop")
	}

	snap := e.Stop(context.Background())
	if snap.DistanceKm <= 0 {
		t.Fatalf("expected distance from final flush")
	}
	if e.BufferLen() != 0 {
		t.Fatalf("final flush must drain the buffer")
	}
	if e.Enabled() {
		t.Fatalf("expected engine disabled after stop")
	}
}

func TestEngineStopFinalFlushFallsBackToRaw(t *testing.T) {
	snapper := &stubSnapper{fail: true}
	e := New(DefaultConfig(), snapper)
	t0 := time.Now()
	e.Start(t0)

	for n := 0; n < 6; n++ {
		e.ProcessFix(movingFix(t0, n))
	}
	snap := e.Stop(context.Background())
	if snap.DistanceKm <= 0 {
		t.Fatalf("final flush must degrade to raw points, got distance %v", snap.DistanceKm)
	}
}

func TestEngineSessionIsolation(t *testing.T) {
	snapper := &stubSnapper{}
	e := New(DefaultConfig(), snapper)
	t0 := time.Now()
	e.Start(t0)

	for n := 0; n < 8; n++ {
		e.ProcessFix(movingFix(t0, n))
	}
	first := e.Stop(context.Background())
	if first.DistanceKm <= 0 {
		t.Fatalf("expected distance in first session")
	}

	e.Start(t0.Add(time.Hour))
	snap := e.Snapshot()
	if snap.DistanceKm != 0 || snap.MovingTimeSec != 0 || snap.MaxSpeedKmh != 0 {
		t.Fatalf("second session must start from zero: %+v", snap)
	}
	if len(snap.Path) != 0 {
		t.Fatalf("second session must start with an empty path")
	}
}

func TestEngineStaleFlushDiscardedAfterStop(t *testing.T) {
	snapper := &stubSnapper{block: make(chan struct{})}
	e := New(DefaultConfig(), snapper)
	t0 := time.Now()
	e.Start(t0)

	for n := 0; n <= 10; n++ {
		e.ProcessFix(movingFix(t0, n))
	}
	// first snap call is now blocked in flight
	waitFor(t, func() bool { return snapper.callCount() == 1 })

	// stop performs the final flush on the unblocked second call
	snap := e.Stop(context.Background())
	want := snap.DistanceKm
	if want <= 0 {
		t.Fatalf("expected distance from final flush")
	}

	// releasing the stale call must not double-count
	close(snapper.block)
	time.Sleep(50 * time.Millisecond)
	if got := e.Snapshot().DistanceKm; got != want {
		t.Fatalf("stale flush bled into stopped session: %v != %v", got, want)
	}
}

func TestEngineMonotonicDistance(t *testing.T) {
	snapper := &stubSnapper{}
	e := New(DefaultConfig(), snapper)
	t0 := time.Now()
	e.Start(t0)

	prev := 0.0
	for n := 0; n < 40; n++ {
		e.ProcessFix(movingFix(t0, n))
		d := e.Snapshot().DistanceKm
		if d < prev {
			t.Fatalf("distance regressed: %v -> %v", prev, d)
		}
		prev = d
	}
}

func TestEngineAvgSpeedGuardsDivisionByZero(t *testing.T) {
	e := New(DefaultConfig(), &stubSnapper{})
	e.Start(time.Now())
	if snap := e.Snapshot(); snap.AvgSpeedKmh != 0 {
		t.Fatalf("avg speed must be zero with no moving time")
	}
}

func TestEngineStartWhileEnabledIsNoop(t *testing.T) {
	e := New(DefaultConfig(), &stubSnapper{})
	t0 := time.Now()
	e.Start(t0)
	for n := 0; n < 6; n++ {
		e.ProcessFix(movingFix(t0, n))
	}
	moved := e.Snapshot().MovingTimeSec

	e.Start(t0.Add(time.Minute))
	if e.Snapshot().MovingTimeSec != moved {
		t.Fatalf("start on an already-enabled engine must not reset state")
	}
}
