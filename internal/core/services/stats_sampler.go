package services

import (
	"sync"
	"time"

	"faceview/internal/core/domain"

	"go.uber.org/zap"
)

// StatsSource is the slice of a session the sampler reads. *StreamSession
// satisfies it.
type StatsSource interface {
	Camera() domain.Camera
	State() domain.SessionState
	Counters() (domain.TransportCounters, error)
	RTT() (time.Duration, bool)
}

// StatsSampler derives per-second health metrics from a session's transport
// counters while the session is Connected. Sampling failures are logged and
// never surface as session errors.
type StatsSampler struct {
	source   StatsSource
	interval time.Duration
	onSample func(*domain.StatsSnapshot)
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	last     *domain.TransportCounters
	lastAt   time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStatsSampler creates a sampler. Run must be called on its own
// goroutine; onSample receives every snapshot.
func NewStatsSampler(source StatsSource, interval time.Duration, onSample func(*domain.StatsSnapshot), logger *zap.SugaredLogger) *StatsSampler {
	return &StatsSampler{
		source:   source,
		interval: interval,
		onSample: onSample,
		logger:   logger.With("camera_id", source.Camera().ID),
		stopCh:   make(chan struct{}),
	}
}

// Run samples on the configured interval until Stop is called. Ticks while
// the session is not Connected reset the baseline and produce no snapshot.
func (ss *StatsSampler) Run() {
	ticker := time.NewTicker(ss.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ss.stopCh:
			return
		case <-ticker.C:
			ss.sample()
		}
	}
}

// Stop halts sampling. Idempotent.
func (ss *StatsSampler) Stop() {
	ss.stopOnce.Do(func() {
		close(ss.stopCh)
	})
}

func (ss *StatsSampler) sample() {
	if ss.source.State() != domain.SessionConnected {
		ss.resetBaseline()
		return
	}

	counters, err := ss.source.Counters()
	if err != nil {
		ss.logger.Debugw("stats sampling skipped", "error", err)
		ss.resetBaseline()
		return
	}

	now := time.Now()

	ss.mu.Lock()
	last := ss.last
	lastAt := ss.lastAt
	ss.last = &counters
	ss.lastAt = now
	ss.mu.Unlock()

	if last == nil {
		// First sample after (re)connect establishes the baseline.
		return
	}
	if counters.BytesReceived < last.BytesReceived || counters.FramesReceived < last.FramesReceived {
		// Counter reset: a new handle started counting from zero.
		return
	}

	elapsed := now.Sub(lastAt).Seconds()
	if elapsed <= 0 {
		return
	}

	snap := &domain.StatsSnapshot{
		CameraID:       ss.source.Camera().ID,
		At:             now,
		BitrateBps:     float64(counters.BytesReceived-last.BytesReceived) * 8 / elapsed,
		FrameRate:      float64(counters.FramesReceived-last.FramesReceived) / elapsed,
		BytesReceived:  counters.BytesReceived,
		FramesReceived: counters.FramesReceived,
	}
	if rtt, ok := ss.source.RTT(); ok {
		snap.RTT = rtt
	}

	if ss.onSample != nil {
		ss.onSample(snap)
	}
}

func (ss *StatsSampler) resetBaseline() {
	ss.mu.Lock()
	ss.last = nil
	ss.mu.Unlock()
}
