package location

import (
	"errors"
	"sync"
	"time"

	"backend-waytrack/internal/engine"
)

// ErrPermissionDenied is a terminal condition: the caller must not assume
// any further fixes will arrive for the session.
var ErrPermissionDenied = errors.New("location permission denied")

var (
	errNotSubscribed = errors.New("location source not subscribed")
	errBufferFull    = errors.New("location source buffer full")
)

// Options mirror what a platform location subsystem accepts.
type Options struct {
	AccuracyTier string
	MinInterval  time.Duration
	MinDistanceM float64
}

// Source delivers a stream of raw fixes. Unsubscribe halts delivery and
// closes the stream; consumers tear down only after the channel closes, so
// no fix can arrive against torn-down state.
type Source interface {
	Subscribe(opts Options) (<-chan engine.Fix, error)
	Unsubscribe()
}

// PushSource is a channel-backed Source fed by an external caller, the
// server-side equivalent of a platform location callback.
type PushSource struct {
	mu         sync.Mutex
	ch         chan engine.Fix
	subscribed bool
	closed     bool
	denied     bool
}

func NewPushSource(buffer int) *PushSource {
	return &PushSource{ch: make(chan engine.Fix, buffer)}
}

func (s *PushSource) Subscribe(_ Options) (<-chan engine.Fix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied {
		return nil, ErrPermissionDenied
	}
	if s.closed {
		return nil, errNotSubscribed
	}
	s.subscribed = true
	return s.ch, nil
}

// Push delivers one fix to the subscriber. Fixes pushed before Subscribe or
// after Unsubscribe are rejected.
func (s *PushSource) Push(f engine.Fix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied {
		return ErrPermissionDenied
	}
	if !s.subscribed || s.closed {
		return errNotSubscribed
	}
	select {
	case s.ch <- f:
		return nil
	default:
		return errBufferFull
	}
}

func (s *PushSource) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Deny marks the source permission-denied and closes the stream. The
// condition is terminal: every later Push or Subscribe reports
// ErrPermissionDenied.
func (s *PushSource) Deny() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied = true
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
