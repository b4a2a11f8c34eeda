package reliability

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"faceview/internal/core/domain"
	"faceview/internal/core/ports"
	"faceview/pkg/circuitbreaker"
	apperrors "faceview/pkg/errors"
)

// SignalerWrapper guards the negotiation service with circuit breakers: one
// for the inventory endpoint and one per camera for negotiation, so a single
// broken camera cannot shut off the rest of the wall.
//
// Transient retry stays inside the REST client. The wrapper only decides
// whether calls are allowed to reach it at all.
type SignalerWrapper struct {
	signaler ports.Signaler
	logger   *zap.SugaredLogger

	config    circuitbreaker.Config
	inventory *circuitbreaker.CircuitBreaker

	mu             sync.Mutex
	cameraBreakers map[domain.CameraID]*circuitbreaker.CircuitBreaker
}

// NewSignalerWrapper wraps a Signaler. When config carries no classifier,
// permission refusals do not count against the breakers; a definitive 403
// proves the service is answering.
func NewSignalerWrapper(signaler ports.Signaler, config circuitbreaker.Config, logger *zap.SugaredLogger) *SignalerWrapper {
	if config.IsFailure == nil {
		config.IsFailure = apperrors.IsRecoverable
	}

	w := &SignalerWrapper{
		signaler:       signaler,
		logger:         logger,
		config:         config,
		inventory:      circuitbreaker.New(config),
		cameraBreakers: make(map[domain.CameraID]*circuitbreaker.CircuitBreaker),
	}

	w.inventory.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("signaling circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})
	return w
}

func (w *SignalerWrapper) cameraBreaker(cameraID domain.CameraID) *circuitbreaker.CircuitBreaker {
	w.mu.Lock()
	defer w.mu.Unlock()

	if cb, ok := w.cameraBreakers[cameraID]; ok {
		return cb
	}

	cb := circuitbreaker.New(w.config)
	cb.OnStateChange(func(from, to circuitbreaker.State) {
		w.logger.Infow("camera circuit breaker state changed",
			"camera_id", cameraID,
			"from", from.String(),
			"to", to.String(),
		)
	})
	w.cameraBreakers[cameraID] = cb
	return cb
}

func (w *SignalerWrapper) ListCameras(ctx context.Context) ([]domain.Camera, error) {
	return circuitbreaker.Do(w.inventory, ctx, func() ([]domain.Camera, error) {
		return w.signaler.ListCameras(ctx)
	})
}

func (w *SignalerWrapper) Offer(ctx context.Context, cameraID domain.CameraID, offerSDP string) (string, error) {
	return circuitbreaker.Do(w.cameraBreaker(cameraID), ctx, func() (string, error) {
		return w.signaler.Offer(ctx, cameraID, offerSDP)
	})
}

func (w *SignalerWrapper) SendCandidate(ctx context.Context, cameraID domain.CameraID, candidate string) error {
	return w.cameraBreaker(cameraID).Execute(ctx, func() error {
		return w.signaler.SendCandidate(ctx, cameraID, candidate)
	})
}

// InventoryBreakerStats reports the inventory breaker for health surfaces.
func (w *SignalerWrapper) InventoryBreakerStats() circuitbreaker.Stats {
	return w.inventory.GetStats()
}

// CameraBreakerStats reports the breaker for one camera. ok is false when the
// camera has never been negotiated through this wrapper.
func (w *SignalerWrapper) CameraBreakerStats(cameraID domain.CameraID) (circuitbreaker.Stats, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cb, ok := w.cameraBreakers[cameraID]
	if !ok {
		return circuitbreaker.Stats{}, false
	}
	return cb.GetStats(), true
}
