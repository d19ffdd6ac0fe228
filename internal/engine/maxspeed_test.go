package engine

import (
	"math"
	"testing"
)

func TestMaxSpeedIgnoresSingleSpike(t *testing.T) {
	tr := NewMaxSpeedTracker(DefaultConfig())
	for i := 0; i < 5; i++ {
		tr.Observe(20)
	}
	base := tr.MaxKmh()

	// one reading of 100 km/h with nothing to corroborate it
	if v := tr.Observe(100); v != base {
		t.Fatalf("single spike must not promote, got %v", v)
	}
}

func TestMaxSpeedPromotesOnCorroboration(t *testing.T) {
	tr := NewMaxSpeedTracker(DefaultConfig())
	tr.Observe(60)
	if tr.MaxKmh() != 0 {
		t.Fatalf("first high sample alone must not set the record")
	}
	tr.Observe(58)
	got := tr.MaxKmh()
	if math.Abs(got-59) > 1e-9 {
		t.Fatalf("expected median of corroborating samples (59), got %v", got)
	}
}

func TestMaxSpeedMedianNotSpike(t *testing.T) {
	tr := NewMaxSpeedTracker(DefaultConfig())
	tr.Observe(90)
	tr.Observe(92)
	tr.Observe(100)
	got := tr.MaxKmh()
	if got >= 100 {
		t.Fatalf("record must be the median, not the raw spike: %v", got)
	}
	if got < 90 {
		t.Fatalf("unexpected record %v", got)
	}
}

func TestMaxSpeedClearsBelowHalf(t *testing.T) {
	tr := NewMaxSpeedTracker(DefaultConfig())
	tr.Observe(60)
	tr.Observe(60)
	if tr.MaxKmh() != 60 {
		t.Fatalf("expected record 60, got %v", tr.MaxKmh())
	}

	// dropping below half the record clears the high-sample list
	tr.Observe(20)
	if len(tr.high) != 0 {
		t.Fatalf("expected high samples cleared")
	}
	// a fresh 70 after the clear has no corroboration
	tr.Observe(70)
	if tr.MaxKmh() != 60 {
		t.Fatalf("uncorroborated reading after clear must not promote, got %v", tr.MaxKmh())
	}
}

func TestMaxSpeedListCapacity(t *testing.T) {
	tr := NewMaxSpeedTracker(DefaultConfig())
	for i := 0; i < 10; i++ {
		tr.Observe(60)
	}
	if len(tr.high) > 5 {
		t.Fatalf("high sample list exceeded capacity: %d", len(tr.high))
	}
}

func TestMaxSpeedIgnoresZero(t *testing.T) {
	tr := NewMaxSpeedTracker(DefaultConfig())
	if v := tr.Observe(0); v != 0 {
		t.Fatalf("zero reading must be ignored")
	}
}

func TestMaxSpeedReset(t *testing.T) {
	tr := NewMaxSpeedTracker(DefaultConfig())
	tr.Observe(60)
	tr.Observe(60)
	tr.Reset()
	if tr.MaxKmh() != 0 || len(tr.high) != 0 {
		t.Fatalf("expected clean state after reset")
	}
}
