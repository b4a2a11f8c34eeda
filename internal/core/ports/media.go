package ports

import (
	"context"
	"time"

	"faceview/internal/core/domain"
)

// Signaler drives the offer/answer/candidate exchange against the
// negotiation service and exposes the camera inventory it serves.
type Signaler interface {
	Offer(ctx context.Context, cameraID domain.CameraID, offerSDP string) (answerSDP string, err error)
	SendCandidate(ctx context.Context, cameraID domain.CameraID, candidate string) error
	ListCameras(ctx context.Context) ([]domain.Camera, error)
}

// MediaHandle is one live media link for one camera. The owning session must
// Close it on every exit path; Close is idempotent.
type MediaHandle interface {
	// OnLinkState registers the link health callback. The transport
	// serializes invocations.
	OnLinkState(fn func(domain.LinkState, error))

	// Counters returns the raw receive counters accumulated so far.
	Counters() domain.TransportCounters

	// RTT reports the round-trip time of the most recent succeeded candidate
	// pair. ok is false while no pair has succeeded.
	RTT() (rtt time.Duration, ok bool)

	// ApplyBitrateCap asks the remote sender to stay under maxBitrateBps.
	ApplyBitrateCap(maxBitrateBps int) error

	Close() error
}

// MediaTransport opens media links. Open blocks through the whole
// negotiation and either returns a connected handle or an error; it never
// leaks a handle on the failure path.
type MediaTransport interface {
	Open(ctx context.Context, cameraID domain.CameraID) (MediaHandle, error)
}
