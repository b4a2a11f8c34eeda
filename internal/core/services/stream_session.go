package services

import (
	"context"
	"sync"
	"time"

	"faceview/internal/core/domain"
	"faceview/internal/core/ports"
	apperrors "faceview/pkg/errors"

	"go.uber.org/zap"
)

// StreamSession owns one camera's viewing connection: its state machine, its
// media handle and its quality cap. At most one live media handle exists per
// session; every exit path releases it.
type StreamSession struct {
	camera    domain.Camera
	transport ports.MediaTransport
	logger    *zap.SugaredLogger

	mu         sync.Mutex
	state      domain.SessionState
	handle     ports.MediaHandle
	profile    *domain.QualityProfile
	lastErr    error
	generation uint64
	listeners  []func(domain.StateChange)
	pending    []domain.StateChange

	// notifyMu serializes listener delivery so transitions are observed in
	// the order they happened.
	notifyMu sync.Mutex
}

// NewStreamSession creates a session in Idle. Nothing connects until Start.
func NewStreamSession(camera domain.Camera, transport ports.MediaTransport, logger *zap.SugaredLogger) *StreamSession {
	return &StreamSession{
		camera:    camera,
		transport: transport,
		logger:    logger.With("camera_id", camera.ID),
		state:     domain.SessionIdle,
	}
}

// Camera returns the immutable camera identity this session serves.
func (s *StreamSession) Camera() domain.Camera {
	return s.camera
}

// State returns the current connection state.
func (s *StreamSession) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error of the most recent failed transition, if any.
func (s *StreamSession) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// OnStateChange registers a transition listener. Listeners run outside the
// session lock and may call back into the session.
func (s *StreamSession) OnStateChange(fn func(domain.StateChange)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Start connects the session. Valid only from Idle or Closed; a Start while
// Negotiating, Connected or Degraded fails with domain.ErrSessionActive and
// is never interleaved with the one in flight. On failure the session lands
// in Closed carrying the classified error and no open handle.
func (s *StreamSession) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case domain.SessionIdle, domain.SessionClosed:
	default:
		s.mu.Unlock()
		return domain.ErrSessionActive
	}
	s.generation++
	gen := s.generation
	s.transitionLocked(domain.SessionNegotiating, nil)
	s.mu.Unlock()
	s.flush()

	handle, err := s.transport.Open(ctx, s.camera.ID)
	if err != nil {
		s.mu.Lock()
		if gen == s.generation && s.state == domain.SessionNegotiating {
			s.transitionLocked(domain.SessionClosed, err)
		}
		s.mu.Unlock()
		s.flush()
		return err
	}

	// Register before announcing Connected so an immediate link drop is not
	// missed.
	handle.OnLinkState(func(ls domain.LinkState, cause error) {
		s.onLinkState(gen, ls, cause)
	})

	s.mu.Lock()
	if gen != s.generation || s.state != domain.SessionNegotiating {
		// Stopped while the exchange was in flight: the handle must not
		// outlive the closed session.
		s.mu.Unlock()
		_ = handle.Close()
		return nil
	}
	s.handle = handle
	s.transitionLocked(domain.SessionConnected, nil)
	s.mu.Unlock()
	s.flush()

	s.logger.Infow("session connected")
	return nil
}

// Stop closes the session from any state and releases the media handle.
// Idempotent; an in-flight Start observes the closure and releases its own
// handle.
func (s *StreamSession) Stop() {
	s.mu.Lock()
	if s.state == domain.SessionIdle || s.state == domain.SessionClosed {
		s.mu.Unlock()
		return
	}
	handle := s.handle
	s.handle = nil
	s.profile = nil
	s.generation++
	s.transitionLocked(domain.SessionClosed, nil)
	s.mu.Unlock()

	if handle != nil {
		if err := handle.Close(); err != nil {
			s.logger.Warnw("error closing media handle", "error", err)
		}
	}
	s.flush()
	s.logger.Infow("session stopped")
}

// ApplyQuality caps the inbound encoding. It is a no-op returning nil unless
// the session is Connected; nothing observable changes otherwise.
func (s *StreamSession) ApplyQuality(profile domain.QualityProfile) error {
	s.mu.Lock()
	if s.state != domain.SessionConnected || s.handle == nil {
		s.mu.Unlock()
		return nil
	}
	handle := s.handle
	s.profile = &profile
	s.mu.Unlock()

	if err := handle.ApplyBitrateCap(profile.MaxBitrateBps); err != nil {
		s.logger.Warnw("failed to apply bitrate cap",
			"level", profile.Level,
			"max_bitrate_bps", profile.MaxBitrateBps,
			"error", err,
		)
		return err
	}

	s.logger.Infow("quality applied",
		"level", profile.Level,
		"max_bitrate_bps", profile.MaxBitrateBps,
	)
	return nil
}

// Profile returns the quality cap of the current connection, nil while none
// is applied.
func (s *StreamSession) Profile() *domain.QualityProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Counters exposes the transport receive counters for the stats sampler.
func (s *StreamSession) Counters() (domain.TransportCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return domain.TransportCounters{}, domain.ErrNotConnected
	}
	return s.handle.Counters(), nil
}

// RTT exposes the transport round-trip estimate for the stats sampler.
func (s *StreamSession) RTT() (time.Duration, bool) {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	if handle == nil {
		return 0, false
	}
	return handle.RTT()
}

func (s *StreamSession) onLinkState(gen uint64, ls domain.LinkState, cause error) {
	s.mu.Lock()
	if gen != s.generation {
		// Stale callback from a handle that has already been replaced.
		s.mu.Unlock()
		return
	}

	switch ls {
	case domain.LinkDegraded:
		if s.state == domain.SessionConnected {
			s.transitionLocked(domain.SessionDegraded, nil)
		}
	case domain.LinkUp:
		if s.state == domain.SessionDegraded {
			s.transitionLocked(domain.SessionConnected, nil)
		}
	case domain.LinkDown:
		if s.state == domain.SessionConnected || s.state == domain.SessionDegraded {
			handle := s.handle
			s.handle = nil
			s.profile = nil
			s.generation++
			s.transitionLocked(domain.SessionClosed, apperrors.NewTransportError("media link lost", cause))
			s.mu.Unlock()
			if handle != nil {
				_ = handle.Close()
			}
			s.flush()
			return
		}
	}
	s.mu.Unlock()
	s.flush()
}

// transitionLocked records a transition; callers must hold s.mu and flush()
// after unlocking.
func (s *StreamSession) transitionLocked(state domain.SessionState, err error) {
	s.state = state
	s.lastErr = err
	s.pending = append(s.pending, domain.StateChange{
		CameraID: s.camera.ID,
		State:    state,
		Err:      err,
		At:       time.Now(),
	})
}

func (s *StreamSession) flush() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		change := s.pending[0]
		s.pending = s.pending[1:]
		listeners := make([]func(domain.StateChange), len(s.listeners))
		copy(listeners, s.listeners)
		s.mu.Unlock()

		for _, fn := range listeners {
			fn(change)
		}
	}
}
