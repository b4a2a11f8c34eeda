package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"faceview/internal/core/domain"
	"faceview/internal/core/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AlertDeduplicator turns the raw detection stream into edge-triggered
// alerts: one alert when an unknown face appears on a camera, nothing while
// it stays visible, re-armed once it disappears. An optional minimum
// inter-alert interval hardens against flapping; edge-triggering remains the
// primary rule.
type AlertDeduplicator struct {
	minInterval time.Duration
	logger      *zap.SugaredLogger

	mu       sync.Mutex
	states   map[domain.CameraID]*domain.AlertState
	limiters map[domain.CameraID]*rate.Limiter
	sinks    []ports.AlertSink
}

// NewAlertDeduplicator creates a deduplicator. minInterval of zero disables
// the time-based cool-down.
func NewAlertDeduplicator(minInterval time.Duration, logger *zap.SugaredLogger) *AlertDeduplicator {
	return &AlertDeduplicator{
		minInterval: minInterval,
		logger:      logger,
		states:      make(map[domain.CameraID]*domain.AlertState),
		limiters:    make(map[domain.CameraID]*rate.Limiter),
	}
}

// AddSink registers a sink for emitted alerts. Not safe to call concurrently
// with Process; wire sinks before the pipeline starts.
func (ad *AlertDeduplicator) AddSink(sink ports.AlertSink) {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	ad.sinks = append(ad.sinks, sink)
}

// Process consumes one detection batch and emits at most one alert.
func (ad *AlertDeduplicator) Process(ctx context.Context, batch *domain.DetectionBatch) {
	hasUnknown := batch.HasUnknown()

	ad.mu.Lock()
	st, ok := ad.states[batch.CameraID]
	if !ok {
		st = &domain.AlertState{}
		ad.states[batch.CameraID] = st
	}

	if !hasUnknown {
		// Falling edge re-arms; it never emits.
		st.UnknownPresent = false
		ad.mu.Unlock()
		return
	}
	if st.UnknownPresent {
		// Same incident still visible.
		ad.mu.Unlock()
		return
	}

	st.UnknownPresent = true
	if ad.minInterval > 0 {
		lim, ok := ad.limiters[batch.CameraID]
		if !ok {
			lim = rate.NewLimiter(rate.Every(ad.minInterval), 1)
			ad.limiters[batch.CameraID] = lim
		}
		if !lim.Allow() {
			ad.mu.Unlock()
			ad.logger.Debugw("alert suppressed by cool-down",
				"camera_id", batch.CameraID,
				"min_interval", ad.minInterval,
			)
			return
		}
	}

	now := time.Now()
	st.LastRaisedAt = now
	alert := &domain.Alert{
		ID:         uuid.NewString(),
		CameraID:   batch.CameraID,
		CameraName: batch.CameraName,
		Message:    fmt.Sprintf("unknown face detected on %s", batch.CameraName),
		Severity:   domain.SeverityWarning,
		Timestamp:  now,
	}
	sinks := make([]ports.AlertSink, len(ad.sinks))
	copy(sinks, ad.sinks)
	ad.mu.Unlock()

	ad.logger.Warnw("alert raised",
		"camera_id", alert.CameraID,
		"camera_name", alert.CameraName,
		"alert_id", alert.ID,
	)
	for _, sink := range sinks {
		if err := sink.PublishAlert(ctx, alert); err != nil {
			ad.logger.Errorw("alert sink failed",
				"alert_id", alert.ID,
				"error", err,
			)
		}
	}
}

// Forget drops the per-camera state so closed tiles leave nothing behind.
func (ad *AlertDeduplicator) Forget(cameraID domain.CameraID) {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	delete(ad.states, cameraID)
	delete(ad.limiters, cameraID)
}
