package signaling

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"faceview/internal/core/domain"
	apperrors "faceview/pkg/errors"
	"faceview/pkg/retry"
	"faceview/pkg/utils"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// maxCameraNameLength caps what a dashboard tile will render.
const maxCameraNameLength = 80

// sessionDescription is the negotiation payload. Type is "offer" on the way
// out and "answer" on the way back.
type sessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type candidatePayload struct {
	Candidate string `json:"candidate"`
}

type cameraPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// RestClient talks to the negotiation service: camera inventory, offer and
// candidate exchange. Offers and inventory fetches retry transient
// failures; permission refusals fail immediately.
type RestClient struct {
	http   *resty.Client
	retry  retry.Config
	logger *zap.SugaredLogger
}

// NewRestClient creates a client for the signaling service at baseURL.
func NewRestClient(baseURL string, requestTimeout time.Duration, retryAttempts int, logger *zap.SugaredLogger) *RestClient {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetHeader("Accept", "application/json")

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = retryAttempts
	retryCfg.ShouldRetry = apperrors.IsRecoverable
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warnw("signaling request failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	}

	return &RestClient{
		http:   httpClient,
		retry:  retryCfg,
		logger: logger,
	}
}

// ListCameras fetches the camera inventory.
func (c *RestClient) ListCameras(ctx context.Context) ([]domain.Camera, error) {
	return retry.RetryWithResult(ctx, c.retry, func() ([]domain.Camera, error) {
		var payload []cameraPayload
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&payload).
			Get("/cameras")
		if err != nil {
			return nil, apperrors.NewTransportError("camera inventory fetch failed", err)
		}
		if resp.IsError() {
			return nil, apperrors.NewTransportError(
				fmt.Sprintf("camera inventory fetch returned %d", resp.StatusCode()), nil)
		}

		cameras := make([]domain.Camera, 0, len(payload))
		for _, p := range payload {
			// Upstream names are display text; scrub them and fall
			// back to the ID when nothing printable is left.
			name := utils.TruncateString(utils.SanitizeString(p.Name), maxCameraNameLength)
			if utils.IsEmpty(name) {
				name = p.ID
			}
			cameras = append(cameras, domain.Camera{
				ID:   domain.CameraID(p.ID),
				Name: name,
				Type: domain.CameraType(p.Type),
			})
		}
		return cameras, nil
	})
}

// Offer posts the local session description and returns the remote answer.
func (c *RestClient) Offer(ctx context.Context, cameraID domain.CameraID, offerSDP string) (string, error) {
	return retry.RetryWithResult(ctx, c.retry, func() (string, error) {
		var answer sessionDescription
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(sessionDescription{Type: "offer", SDP: offerSDP}).
			SetResult(&answer).
			Post(fmt.Sprintf("/cameras/%s/offer", cameraID))
		if err != nil {
			return "", apperrors.NewNegotiationError("offer exchange failed", err)
		}
		switch {
		case resp.StatusCode() == http.StatusForbidden:
			return "", apperrors.NewPermissionError(
				fmt.Sprintf("camera %s refused access", cameraID))
		case resp.IsError():
			return "", apperrors.NewNegotiationError(
				fmt.Sprintf("offer for camera %s returned %d", cameraID, resp.StatusCode()), nil)
		}
		if answer.SDP == "" {
			return "", apperrors.NewNegotiationError(
				fmt.Sprintf("empty answer for camera %s", cameraID), nil)
		}
		return answer.SDP, nil
	})
}

// SendCandidate posts one local ICE candidate. Fire and forget: the
// exchange continues even if a single candidate is lost, so there is no
// retry here.
func (c *RestClient) SendCandidate(ctx context.Context, cameraID domain.CameraID, candidate string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(candidatePayload{Candidate: candidate}).
		Post(fmt.Sprintf("/cameras/%s/ice", cameraID))
	if err != nil {
		return apperrors.NewNegotiationError("candidate delivery failed", err)
	}
	if resp.IsError() {
		return apperrors.NewNegotiationError(
			fmt.Sprintf("candidate for camera %s returned %d", cameraID, resp.StatusCode()), nil)
	}
	return nil
}
