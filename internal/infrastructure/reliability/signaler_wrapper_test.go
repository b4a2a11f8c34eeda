package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"faceview/internal/core/domain"
	"faceview/pkg/circuitbreaker"
	apperrors "faceview/pkg/errors"
)

type scriptedSignaler struct {
	offerErr   error
	listErr    error
	offerCalls int
	listCalls  int
}

func (s *scriptedSignaler) Offer(ctx context.Context, cameraID domain.CameraID, offerSDP string) (string, error) {
	s.offerCalls++
	if s.offerErr != nil {
		return "", s.offerErr
	}
	return "answer-sdp", nil
}

func (s *scriptedSignaler) SendCandidate(ctx context.Context, cameraID domain.CameraID, candidate string) error {
	return s.offerErr
}

func (s *scriptedSignaler) ListCameras(ctx context.Context) ([]domain.Camera, error) {
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return []domain.Camera{{ID: "cam-1", Name: "Lobby Entrance", Type: domain.CameraTypeFacial}}, nil
}

func testBreakerConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		OpenTimeout:         time.Minute,
		MaxRequestsHalfOpen: 1,
	}
}

func TestOfferPassesThrough(t *testing.T) {
	inner := &scriptedSignaler{}
	w := NewSignalerWrapper(inner, testBreakerConfig(), zap.NewNop().Sugar())

	answer, err := w.Offer(context.Background(), "cam-1", "offer-sdp")

	require.NoError(t, err)
	assert.Equal(t, "answer-sdp", answer)
	assert.Equal(t, 1, inner.offerCalls)
}

func TestRepeatedTransportFailuresOpenCameraBreaker(t *testing.T) {
	inner := &scriptedSignaler{offerErr: apperrors.NewTransportError("connection refused", nil)}
	w := NewSignalerWrapper(inner, testBreakerConfig(), zap.NewNop().Sugar())

	for i := 0; i < 2; i++ {
		_, err := w.Offer(context.Background(), "cam-1", "offer-sdp")
		require.Error(t, err)
	}

	_, err := w.Offer(context.Background(), "cam-1", "offer-sdp")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 2, inner.offerCalls, "open breaker must stop reaching the service")

	stats, ok := w.CameraBreakerStats("cam-1")
	require.True(t, ok)
	assert.Equal(t, circuitbreaker.StateOpen, stats.State)
}

func TestBreakersAreIsolatedPerCamera(t *testing.T) {
	inner := &scriptedSignaler{offerErr: apperrors.NewTransportError("connection refused", nil)}
	w := NewSignalerWrapper(inner, testBreakerConfig(), zap.NewNop().Sugar())

	for i := 0; i < 2; i++ {
		w.Offer(context.Background(), "cam-1", "offer-sdp")
	}

	inner.offerErr = nil
	answer, err := w.Offer(context.Background(), "cam-2", "offer-sdp")

	require.NoError(t, err)
	assert.Equal(t, "answer-sdp", answer)
}

func TestPermissionRefusalsDoNotOpenBreaker(t *testing.T) {
	inner := &scriptedSignaler{offerErr: apperrors.NewPermissionError("camera access denied")}
	w := NewSignalerWrapper(inner, testBreakerConfig(), zap.NewNop().Sugar())

	for i := 0; i < 5; i++ {
		_, err := w.Offer(context.Background(), "cam-1", "offer-sdp")
		require.Error(t, err)
		assert.NotErrorIs(t, err, circuitbreaker.ErrOpen)
	}
	assert.Equal(t, 5, inner.offerCalls)

	stats, ok := w.CameraBreakerStats("cam-1")
	require.True(t, ok)
	assert.Equal(t, circuitbreaker.StateClosed, stats.State)
}

func TestOfferErrorKeepsItsClassification(t *testing.T) {
	inner := &scriptedSignaler{offerErr: apperrors.NewPermissionError("camera access denied")}
	w := NewSignalerWrapper(inner, testBreakerConfig(), zap.NewNop().Sugar())

	_, err := w.Offer(context.Background(), "cam-1", "offer-sdp")

	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodePermission, appErr.Code)
	assert.False(t, apperrors.IsRecoverable(err))
}

func TestListCamerasThroughInventoryBreaker(t *testing.T) {
	inner := &scriptedSignaler{listErr: errors.New("connection reset")}
	w := NewSignalerWrapper(inner, testBreakerConfig(), zap.NewNop().Sugar())

	for i := 0; i < 2; i++ {
		_, err := w.ListCameras(context.Background())
		require.Error(t, err)
	}

	_, err := w.ListCameras(context.Background())
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, circuitbreaker.StateOpen, w.InventoryBreakerStats().State)

	// The camera breakers are untouched by inventory failures.
	inner.offerErr = nil
	_, err = w.Offer(context.Background(), "cam-1", "offer-sdp")
	assert.NoError(t, err)
}
