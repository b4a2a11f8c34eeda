package ports

import (
	"context"

	"faceview/internal/core/domain"
)

// ChannelClient is one connection to the shared detection event channel.
// The router is its only caller: only the router dials, reads and closes.
// Injecting the client keeps the router testable without a live socket.
type ChannelClient interface {
	// Dial establishes the connection. Safe to call again after Close.
	Dial(ctx context.Context) error

	// ReadMessage blocks until the next raw message arrives or the
	// connection breaks.
	ReadMessage() ([]byte, error)

	Close() error
}

// DetectionRouter fans detection batches out to per-camera subscribers.
type DetectionRouter interface {
	// Subscribe registers fn for one camera's batches. Dispatch is
	// synchronous and in registration order. The returned func removes the
	// subscription; it is idempotent.
	Subscribe(cameraID domain.CameraID, fn func(*domain.DetectionBatch)) (unsubscribe func())

	// SubscribeChannelHealth registers fn on the reserved channel health
	// topic. Parse failures and connection changes land here, never on a
	// camera subscription.
	SubscribeChannelHealth(fn func(domain.ChannelEvent)) (unsubscribe func())

	// Healthy reports whether the shared channel connection is up.
	Healthy() bool
}
