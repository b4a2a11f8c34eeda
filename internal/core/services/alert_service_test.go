package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"faceview/internal/core/domain"

	"go.uber.org/zap/zaptest"
)

type collectingSink struct {
	mu     sync.Mutex
	alerts []*domain.Alert
}

func (s *collectingSink) PublishAlert(ctx context.Context, alert *domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *collectingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func (s *collectingSink) last() *domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.alerts) == 0 {
		return nil
	}
	return s.alerts[len(s.alerts)-1]
}

type failingSink struct{}

func (failingSink) PublishAlert(ctx context.Context, alert *domain.Alert) error {
	return errors.New("bus unavailable")
}

func strPtr(s string) *string {
	return &s
}

func detectionBatch(cameraID domain.CameraID, names ...*string) *domain.DetectionBatch {
	batch := &domain.DetectionBatch{
		CameraID:   cameraID,
		CameraName: "Lobby Entrance",
		ReceivedAt: time.Now(),
	}
	for i, name := range names {
		batch.Faces = append(batch.Faces, domain.Detection{
			ID:         "face-" + string(rune('a'+i)),
			Name:       name,
			Confidence: 0.92,
			Box:        domain.BoundingBox{X: 100, Y: 100, Width: 200, Height: 200},
		})
	}
	return batch
}

func newTestDeduplicator(t *testing.T, minInterval time.Duration) (*AlertDeduplicator, *collectingSink) {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	ad := NewAlertDeduplicator(minInterval, logger)
	sink := &collectingSink{}
	ad.AddSink(sink)
	return ad, sink
}

func TestAlertDeduplicator_EdgeTriggered(t *testing.T) {
	ad, sink := newTestDeduplicator(t, 0)
	ctx := context.Background()

	// hasUnknown per batch: F, T, T, T, F, T. Edges at the second and the
	// last batch.
	sequence := []*domain.DetectionBatch{
		detectionBatch("cam-1", strPtr("Alice")),
		detectionBatch("cam-1", nil),
		detectionBatch("cam-1", nil, strPtr("Bob")),
		detectionBatch("cam-1", nil),
		detectionBatch("cam-1"),
		detectionBatch("cam-1", nil),
	}
	for _, batch := range sequence {
		ad.Process(ctx, batch)
	}

	if got := sink.count(); got != 2 {
		t.Errorf("alerts = %d, want 2", got)
	}
}

func TestAlertDeduplicator_AlertFields(t *testing.T) {
	ad, sink := newTestDeduplicator(t, 0)

	ad.Process(context.Background(), detectionBatch("cam-1", nil))

	alert := sink.last()
	if alert == nil {
		t.Fatal("no alert emitted")
	}
	if alert.ID == "" {
		t.Error("alert ID is empty")
	}
	if alert.CameraID != "cam-1" || alert.CameraName != "Lobby Entrance" {
		t.Errorf("alert camera = %s/%s, want cam-1/Lobby Entrance", alert.CameraID, alert.CameraName)
	}
	if alert.Severity != domain.SeverityWarning {
		t.Errorf("severity = %v, want %v", alert.Severity, domain.SeverityWarning)
	}
	if alert.Message == "" {
		t.Error("alert message is empty")
	}
	if alert.Timestamp.IsZero() {
		t.Error("alert timestamp is zero")
	}
}

func TestAlertDeduplicator_FallingEdgeEmitsNothing(t *testing.T) {
	ad, sink := newTestDeduplicator(t, 0)
	ctx := context.Background()

	ad.Process(ctx, detectionBatch("cam-1", nil))
	ad.Process(ctx, detectionBatch("cam-1", strPtr("Alice")))

	if got := sink.count(); got != 1 {
		t.Errorf("alerts = %d, want 1", got)
	}
}

func TestAlertDeduplicator_PerCameraState(t *testing.T) {
	ad, sink := newTestDeduplicator(t, 0)
	ctx := context.Background()

	ad.Process(ctx, detectionBatch("cam-1", nil))
	ad.Process(ctx, detectionBatch("cam-2", nil))
	ad.Process(ctx, detectionBatch("cam-1", nil))
	ad.Process(ctx, detectionBatch("cam-2", nil))

	// One incident per camera; the repeats are the same incidents.
	if got := sink.count(); got != 2 {
		t.Errorf("alerts = %d, want 2", got)
	}
}

func TestAlertDeduplicator_CoolDownSuppressesRapidEdges(t *testing.T) {
	ad, sink := newTestDeduplicator(t, time.Minute)
	ctx := context.Background()

	// Rising edge emits, the falling edge re-arms, and the second rising
	// edge lands inside the cool-down window.
	ad.Process(ctx, detectionBatch("cam-1", nil))
	ad.Process(ctx, detectionBatch("cam-1", strPtr("Alice")))
	ad.Process(ctx, detectionBatch("cam-1", nil))
	ad.Process(ctx, detectionBatch("cam-1", nil))

	if got := sink.count(); got != 1 {
		t.Errorf("alerts = %d, want 1", got)
	}
}

func TestAlertDeduplicator_ForgetResetsState(t *testing.T) {
	ad, sink := newTestDeduplicator(t, 0)
	ctx := context.Background()

	ad.Process(ctx, detectionBatch("cam-1", nil))
	ad.Forget("cam-1")
	ad.Process(ctx, detectionBatch("cam-1", nil))

	if got := sink.count(); got != 2 {
		t.Errorf("alerts = %d, want 2", got)
	}
}

func TestAlertDeduplicator_SinkFailureDoesNotBlockOthers(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	ad := NewAlertDeduplicator(0, logger)

	good := &collectingSink{}
	ad.AddSink(failingSink{})
	ad.AddSink(good)

	ad.Process(context.Background(), detectionBatch("cam-1", nil))

	if got := good.count(); got != 1 {
		t.Errorf("alerts through healthy sink = %d, want 1", got)
	}
}
