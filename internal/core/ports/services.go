package ports

import (
	"context"

	"faceview/internal/core/domain"
)

// ViewerService is the orchestrating facade the HTTP layer wires against.
type ViewerService interface {
	// Watch mounts a camera tile: creates the per-camera session entry and
	// starts connecting. A second Watch for the same camera fails with
	// domain.ErrSessionActive.
	Watch(ctx context.Context, cameraID domain.CameraID) error

	// Unwatch tears the tile down: cancels any pending reconnect, stops
	// sampling, unsubscribes from the router and releases the media handle.
	Unwatch(ctx context.Context, cameraID domain.CameraID) error

	// ApplyQuality caps the inbound encoding of a connected session. It is a
	// no-op unless the session is Connected.
	ApplyQuality(ctx context.Context, cameraID domain.CameraID, level domain.QualityLevel) error

	// Wake signals regained visibility or network connectivity so pending
	// reconnects fire immediately.
	Wake(ctx context.Context, reason domain.WakeReason)

	Cameras(ctx context.Context) ([]domain.CameraStatus, error)
	Stats(ctx context.Context, cameraID domain.CameraID) (*domain.StatsSnapshot, error)
	Alerts(ctx context.Context, limit int) ([]*domain.Alert, error)

	// Overlay computes the current overlay frame for a watched camera from
	// its most recent detection batch, scaled from source to display space.
	Overlay(ctx context.Context, cameraID domain.CameraID, srcW, srcH, dstW, dstH int) (domain.OverlayFrame, error)

	ChannelHealthy() bool
}

// AlertSink receives every emitted alert. Implementations must not block the
// dispatching goroutine.
type AlertSink interface {
	PublishAlert(ctx context.Context, alert *domain.Alert) error
}
