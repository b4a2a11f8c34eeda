package services

import (
	"sync"
	"time"

	"faceview/internal/core/domain"
	apperrors "faceview/pkg/errors"

	"go.uber.org/zap"
)

// ReconnectSupervisor is policy, not state: it watches session transitions
// and schedules at most one pending retry per camera. Permission failures
// never retry; explicit teardown cancels whatever is pending.
type ReconnectSupervisor struct {
	delay  time.Duration
	logger *zap.SugaredLogger

	mu      sync.Mutex
	retries map[domain.CameraID]func()
	timers  map[domain.CameraID]*time.Timer
	down    map[domain.CameraID]bool
}

// NewReconnectSupervisor creates a supervisor with the given retry delay.
func NewReconnectSupervisor(delay time.Duration, logger *zap.SugaredLogger) *ReconnectSupervisor {
	return &ReconnectSupervisor{
		delay:   delay,
		logger:  logger,
		retries: make(map[domain.CameraID]func()),
		timers:  make(map[domain.CameraID]*time.Timer),
		down:    make(map[domain.CameraID]bool),
	}
}

// Enroll enables auto-reconnect for a camera. retry is invoked once per
// scheduled attempt; it must tolerate the session already being active.
func (rs *ReconnectSupervisor) Enroll(cameraID domain.CameraID, retry func()) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.retries[cameraID] = retry
}

// Forget disables auto-reconnect and cancels any pending retry. Called on
// explicit stop and on teardown.
func (rs *ReconnectSupervisor) Forget(cameraID domain.CameraID) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.retries, cameraID)
	delete(rs.down, cameraID)
	if t, ok := rs.timers[cameraID]; ok {
		t.Stop()
		delete(rs.timers, cameraID)
	}
}

// Observe consumes a session transition. Closed-with-recoverable-error
// schedules one retry; a second failure while a timer is pending never
// stacks a second one.
func (rs *ReconnectSupervisor) Observe(change domain.StateChange) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if change.State == domain.SessionConnected {
		delete(rs.down, change.CameraID)
		return
	}
	if change.State != domain.SessionClosed || change.Err == nil {
		return
	}
	if _, enrolled := rs.retries[change.CameraID]; !enrolled {
		return
	}
	if !apperrors.IsRecoverable(change.Err) {
		rs.logger.Warnw("session failed terminally, not retrying",
			"camera_id", change.CameraID,
			"error", change.Err,
		)
		return
	}

	rs.down[change.CameraID] = true
	if _, exists := rs.timers[change.CameraID]; exists {
		return
	}

	cameraID := change.CameraID
	rs.timers[cameraID] = time.AfterFunc(rs.delay, func() {
		rs.fire(cameraID)
	})
	rs.logger.Infow("reconnect scheduled",
		"camera_id", cameraID,
		"delay", rs.delay,
		"error", change.Err,
	)
}

// Notify fires pending retries immediately and re-attempts cameras that are
// down without a timer. Called when visibility or network comes back.
func (rs *ReconnectSupervisor) Notify(reason domain.WakeReason) {
	rs.mu.Lock()
	var fires []func()
	fired := make(map[domain.CameraID]bool)

	for cameraID, t := range rs.timers {
		t.Stop()
		delete(rs.timers, cameraID)
		if retry, ok := rs.retries[cameraID]; ok {
			fires = append(fires, retry)
			fired[cameraID] = true
		}
	}
	for cameraID := range rs.down {
		if fired[cameraID] {
			continue
		}
		if retry, ok := rs.retries[cameraID]; ok {
			fires = append(fires, retry)
		}
	}
	rs.mu.Unlock()

	if len(fires) > 0 {
		rs.logger.Infow("waking pending reconnects", "reason", reason, "count", len(fires))
	}
	for _, retry := range fires {
		retry()
	}
}

// Pending reports whether a retry timer is currently scheduled for the
// camera.
func (rs *ReconnectSupervisor) Pending(cameraID domain.CameraID) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	_, ok := rs.timers[cameraID]
	return ok
}

func (rs *ReconnectSupervisor) fire(cameraID domain.CameraID) {
	rs.mu.Lock()
	delete(rs.timers, cameraID)
	retry, ok := rs.retries[cameraID]
	rs.mu.Unlock()

	if !ok {
		return
	}
	rs.logger.Infow("retrying session", "camera_id", cameraID)
	retry()
}
