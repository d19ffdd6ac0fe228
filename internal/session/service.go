package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"backend-waytrack/internal/db"
	"backend-waytrack/internal/engine"
	"backend-waytrack/internal/location"
	"backend-waytrack/internal/stream"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// Service owns one tracking engine per active session. Fixes arrive through
// a per-session push source, flow through the engine on a single consumer
// goroutine, and every resulting snapshot is broadcast to live subscribers.
// On stop the final summary and snapped path are persisted.
type Service struct {
	db      db.Querier
	hub     *stream.Hub
	snapper engine.Snapper
	tuning  engine.Config

	mu     sync.Mutex
	active map[string]*activeSession
}

type activeSession struct {
	eng  *engine.Engine
	src  *location.PushSource
	done chan struct{}
}

func NewService(db db.Querier, hub *stream.Hub, snapper engine.Snapper, tuning engine.Config) *Service {
	return &Service{
		db:      db,
		hub:     hub,
		snapper: snapper,
		tuning:  tuning,
		active:  map[string]*activeSession{},
	}
}

// Start opens a new tracking session: persists the session row, resets a
// fresh engine and begins consuming the fix stream.
func (s *Service) Start(ctx context.Context) (Session, error) {
	sess := Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Status:    "active",
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO track_sessions (id, started_at, status)
		VALUES ($1,$2,$3)
		RETURNING started_at, status
	`, sess.ID, sess.StartedAt, sess.Status)
	if err := row.Scan(&sess.StartedAt, &sess.Status); err != nil {
		return Session{}, err
	}

	eng := engine.New(s.tuning, s.snapper)
	eng.Start(sess.StartedAt)

	src := location.NewPushSource(64)
	fixes, err := src.Subscribe(location.Options{MinInterval: 2 * time.Second, MinDistanceM: 5})
	if err != nil {
		return Session{}, err
	}

	as := &activeSession{eng: eng, src: src, done: make(chan struct{})}
	go s.consume(sess.ID, as, fixes)

	s.mu.Lock()
	s.active[sess.ID] = as
	s.mu.Unlock()

	return sess, nil
}

// consume is the single writer for the session's engine state.
func (s *Service) consume(sessionID string, as *activeSession, fixes <-chan engine.Fix) {
	defer close(as.done)
	for f := range fixes {
		as.eng.ProcessFix(f)
		if s.hub != nil {
			payload, err := json.Marshal(as.eng.Snapshot())
			if err != nil {
				log.Printf("snapshot marshal error: %v", err)
				continue
			}
			s.hub.Broadcast(sessionID, payload)
		}
	}
}

// PushFix delivers one raw fix into the session's location stream.
func (s *Service) PushFix(sessionID string, f engine.Fix) error {
	as, ok := s.lookup(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if f.RecordedAt.IsZero() {
		f.RecordedAt = time.Now()
	}
	return as.src.Push(f)
}

// DenyLocation records a terminal permission denial for the session's
// location stream. Fixes already buffered still drain through the engine;
// every later push reports location.ErrPermissionDenied. The session itself
// stays stoppable so the summary is not lost.
func (s *Service) DenyLocation(sessionID string) error {
	as, ok := s.lookup(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	as.src.Deny()
	return nil
}

// Snapshot returns the session's live read surface.
func (s *Service) Snapshot(sessionID string) (engine.Snapshot, error) {
	as, ok := s.lookup(sessionID)
	if !ok {
		return engine.Snapshot{}, ErrSessionNotFound
	}
	return as.eng.Snapshot(), nil
}

// Stop tears a session down in order: unsubscribe the location stream,
// drain the consumer, run the engine's final flush, then persist the
// summary and snapped path.
func (s *Service) Stop(ctx context.Context, sessionID string) (Summary, error) {
	s.mu.Lock()
	as, ok := s.active[sessionID]
	if ok {
		delete(s.active, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return Summary{}, ErrSessionNotFound
	}

	as.src.Unsubscribe()
	<-as.done

	snap := as.eng.Stop(ctx)
	summary := Summary{
		SessionID:     sessionID,
		DistanceKm:    snap.DistanceKm,
		MovingTimeSec: snap.MovingTimeSec,
		MaxSpeedKmh:   snap.MaxSpeedKmh,
		AvgSpeedKmh:   snap.AvgSpeedKmh,
		PointCount:    len(snap.Path),
	}

	path, err := json.Marshal(snap.Path)
	if err != nil {
		return Summary{}, err
	}
	_, err = s.db.Exec(ctx, `
		UPDATE track_sessions
		SET ended_at=$2, status='finished',
		    distance_km=$3, moving_time_sec=$4, max_speed_kmh=$5, avg_speed_kmh=$6,
		    snapped_path=$7
		WHERE id=$1
	`, sessionID, time.Now(), summary.DistanceKm, summary.MovingTimeSec, summary.MaxSpeedKmh, summary.AvgSpeedKmh, path)
	if err != nil {
		return Summary{}, err
	}
	return summary, nil
}

func (s *Service) lookup(sessionID string) (*activeSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	as, ok := s.active[sessionID]
	return as, ok
}
