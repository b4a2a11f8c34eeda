package services

import (
	"sync"
	"testing"
	"time"

	"faceview/internal/core/domain"

	"go.uber.org/zap/zaptest"
)

type fakeStatsSource struct {
	mu       sync.Mutex
	camera   domain.Camera
	state    domain.SessionState
	counters domain.TransportCounters
	countErr error
	rtt      time.Duration
	rttOK    bool
}

func (f *fakeStatsSource) Camera() domain.Camera {
	return f.camera
}

func (f *fakeStatsSource) State() domain.SessionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeStatsSource) Counters() (domain.TransportCounters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters, f.countErr
}

func (f *fakeStatsSource) RTT() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rtt, f.rttOK
}

func (f *fakeStatsSource) set(state domain.SessionState, counters domain.TransportCounters) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.counters = counters
}

type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []*domain.StatsSnapshot
}

func (r *snapshotRecorder) record(snap *domain.StatsSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *snapshotRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *snapshotRecorder) last() *domain.StatsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return nil
	}
	return r.snaps[len(r.snaps)-1]
}

func newTestSampler(t *testing.T, src *fakeStatsSource, rec *snapshotRecorder) *StatsSampler {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	return NewStatsSampler(src, 10*time.Millisecond, rec.record, logger)
}

func TestStatsSampler_DerivesRates(t *testing.T) {
	src := &fakeStatsSource{
		camera: testCamera(),
		state:  domain.SessionConnected,
		rtt:    25 * time.Millisecond,
		rttOK:  true,
	}
	rec := &snapshotRecorder{}
	ss := newTestSampler(t, src, rec)

	// Seed the baseline one second in the past so the delta math is
	// deterministic up to scheduling skew.
	src.set(domain.SessionConnected, domain.TransportCounters{BytesReceived: 1_000, FramesReceived: 10})
	ss.mu.Lock()
	ss.last = &domain.TransportCounters{BytesReceived: 1_000, FramesReceived: 10}
	ss.lastAt = time.Now().Add(-time.Second)
	ss.mu.Unlock()

	src.set(domain.SessionConnected, domain.TransportCounters{BytesReceived: 251_000, FramesReceived: 40})
	ss.sample()

	snap := rec.last()
	if snap == nil {
		t.Fatal("no snapshot produced")
	}
	// 250000 bytes over ~1s is ~2 Mbit/s; allow 5% for clock skew.
	if snap.BitrateBps < 1_900_000 || snap.BitrateBps > 2_100_000 {
		t.Errorf("BitrateBps = %f, want ~2000000", snap.BitrateBps)
	}
	if snap.FrameRate < 28.5 || snap.FrameRate > 31.5 {
		t.Errorf("FrameRate = %f, want ~30", snap.FrameRate)
	}
	if snap.RTT != 25*time.Millisecond {
		t.Errorf("RTT = %v, want 25ms", snap.RTT)
	}
	if snap.CameraID != "cam-1" {
		t.Errorf("CameraID = %v, want cam-1", snap.CameraID)
	}
}

func TestStatsSampler_FirstSampleIsBaseline(t *testing.T) {
	src := &fakeStatsSource{camera: testCamera(), state: domain.SessionConnected}
	rec := &snapshotRecorder{}
	ss := newTestSampler(t, src, rec)

	src.set(domain.SessionConnected, domain.TransportCounters{BytesReceived: 5_000, FramesReceived: 50})
	ss.sample()

	if got := rec.count(); got != 0 {
		t.Errorf("snapshots after first sample = %d, want 0", got)
	}
	ss.mu.Lock()
	baseline := ss.last
	ss.mu.Unlock()
	if baseline == nil || baseline.BytesReceived != 5_000 {
		t.Errorf("baseline = %+v, want bytes 5000", baseline)
	}
}

func TestStatsSampler_NotConnectedResetsBaseline(t *testing.T) {
	src := &fakeStatsSource{camera: testCamera(), state: domain.SessionConnected}
	rec := &snapshotRecorder{}
	ss := newTestSampler(t, src, rec)

	src.set(domain.SessionConnected, domain.TransportCounters{BytesReceived: 5_000, FramesReceived: 50})
	ss.sample()

	src.set(domain.SessionClosed, domain.TransportCounters{})
	ss.sample()

	if got := rec.count(); got != 0 {
		t.Errorf("snapshots = %d, want 0", got)
	}
	ss.mu.Lock()
	baseline := ss.last
	ss.mu.Unlock()
	if baseline != nil {
		t.Errorf("baseline after disconnect = %+v, want nil", baseline)
	}
}

func TestStatsSampler_CounterRegressionSkipped(t *testing.T) {
	src := &fakeStatsSource{camera: testCamera(), state: domain.SessionConnected}
	rec := &snapshotRecorder{}
	ss := newTestSampler(t, src, rec)

	ss.mu.Lock()
	ss.last = &domain.TransportCounters{BytesReceived: 900_000, FramesReceived: 900}
	ss.lastAt = time.Now().Add(-time.Second)
	ss.mu.Unlock()

	// A replacement handle restarts its counters from zero.
	src.set(domain.SessionConnected, domain.TransportCounters{BytesReceived: 4_000, FramesReceived: 4})
	ss.sample()

	if got := rec.count(); got != 0 {
		t.Errorf("snapshots after counter regression = %d, want 0", got)
	}
}

func TestStatsSampler_CountersErrorLoggedNotFatal(t *testing.T) {
	src := &fakeStatsSource{
		camera:   testCamera(),
		state:    domain.SessionConnected,
		countErr: domain.ErrNotConnected,
	}
	rec := &snapshotRecorder{}
	ss := newTestSampler(t, src, rec)

	ss.sample()
	if got := rec.count(); got != 0 {
		t.Errorf("snapshots = %d, want 0", got)
	}
}

func TestStatsSampler_RunUntilStop(t *testing.T) {
	src := &fakeStatsSource{camera: testCamera(), state: domain.SessionConnected}
	rec := &snapshotRecorder{}
	ss := newTestSampler(t, src, rec)

	done := make(chan struct{})
	go func() {
		ss.Run()
		close(done)
	}()

	// Keep the counters moving so every tick after the first produces a
	// snapshot.
	go func() {
		for i := uint64(1); i <= 20; i++ {
			src.set(domain.SessionConnected, domain.TransportCounters{
				BytesReceived:  i * 12_500,
				FramesReceived: i * 3,
			})
			time.Sleep(5 * time.Millisecond)
		}
	}()

	waitFor(t, 2*time.Second, "sampled snapshot", func() bool {
		return rec.count() >= 1
	})

	ss.Stop()
	ss.Stop() // idempotent

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
