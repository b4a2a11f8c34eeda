package channel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"faceview/internal/core/domain"
	"faceview/internal/core/ports"
	apperrors "faceview/pkg/errors"
	"faceview/pkg/retry"
	"faceview/pkg/tracing"
)

const messageTypeFaceDetection = "face_detection"

// wireMessage is the event channel envelope. Anything whose type is not
// face_detection is ignored by this subsystem.
type wireMessage struct {
	Type       string             `json:"type"`
	CameraID   string             `json:"cameraId"`
	CameraName string             `json:"cameraName"`
	Faces      []domain.Detection `json:"faces"`
}

type subscriber struct {
	id int
	fn func(*domain.DetectionBatch)
}

type healthSubscriber struct {
	id int
	fn func(domain.ChannelEvent)
}

// Router owns the single shared event channel connection and fans detection
// batches out to per-camera subscribers. Only Run's goroutine reads from or
// closes the connection.
type Router struct {
	client ports.ChannelClient
	url    string
	redial retry.Config
	logger *zap.SugaredLogger

	mu         sync.Mutex
	subs       map[domain.CameraID][]subscriber
	healthSubs []healthSubscriber
	nextID     int
	healthy    bool
}

func NewRouter(client ports.ChannelClient, url string, maxAttempts int, initialDelay, maxDelay time.Duration, logger *zap.SugaredLogger) *Router {
	r := &Router{
		client: client,
		url:    url,
		logger: logger,
		subs:   make(map[domain.CameraID][]subscriber),
	}

	r.redial = retry.DefaultConfig()
	r.redial.MaxAttempts = maxAttempts
	r.redial.InitialDelay = initialDelay
	r.redial.MaxDelay = maxDelay
	r.redial.ShouldRetry = apperrors.IsRecoverable
	r.redial.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warnw("retrying event channel dial",
			"attempt", attempt,
			"delay", delay,
			"error", err)
	}

	return r
}

// Run drives the connection until ctx is cancelled or the redial budget is
// exhausted. Each disconnection starts a fresh capped-retry cycle; when the
// budget runs out a gave_up event is published and Run returns the dial error.
func (r *Router) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			r.client.Close()
		case <-stop:
		}
	}()

	for {
		if err := r.dial(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Errorw("event channel dial attempts exhausted", "error", err)
			r.publishHealth(domain.ChannelEvent{Kind: domain.ChannelGaveUp, Err: err, At: time.Now()})
			return err
		}

		r.setHealthy(true)
		r.publishHealth(domain.ChannelEvent{Kind: domain.ChannelConnected, At: time.Now()})

		err := r.readLoop()

		r.setHealthy(false)
		r.client.Close()

		if ctx.Err() != nil {
			return nil
		}
		r.logger.Warnw("event channel disconnected", "error", err)
		r.publishHealth(domain.ChannelEvent{Kind: domain.ChannelDisconnected, Err: err, At: time.Now()})
	}
}

// Subscribe registers fn for one camera's batches. The returned func removes
// the registration; calling it more than once is harmless.
func (r *Router) Subscribe(cameraID domain.CameraID, fn func(*domain.DetectionBatch)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[cameraID] = append(r.subs[cameraID], subscriber{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.subs[cameraID]
		for i, s := range list {
			if s.id == id {
				r.subs[cameraID] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(r.subs[cameraID]) == 0 {
			delete(r.subs, cameraID)
		}
	}
}

// SubscribeChannelHealth registers fn on the reserved channel health topic.
func (r *Router) SubscribeChannelHealth(fn func(domain.ChannelEvent)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.healthSubs = append(r.healthSubs, healthSubscriber{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, s := range r.healthSubs {
			if s.id == id {
				r.healthSubs = append(r.healthSubs[:i:i], r.healthSubs[i+1:]...)
				break
			}
		}
	}
}

func (r *Router) Healthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.healthy
}

func (r *Router) dial(ctx context.Context) error {
	return retry.Retry(ctx, r.redial, func() error {
		dialCtx, span := tracing.TraceChannelDial(ctx, r.url)
		defer span.End()

		if err := r.client.Dial(dialCtx); err != nil {
			span.RecordError(err)
			return err
		}
		return nil
	})
}

func (r *Router) readLoop() error {
	for {
		data, err := r.client.ReadMessage()
		if err != nil {
			return err
		}
		r.handleMessage(data)
	}
}

func (r *Router) handleMessage(data []byte) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		r.logger.Warnw("dropping malformed channel message", "error", err)
		r.publishHealth(domain.ChannelEvent{
			Kind: domain.ChannelParseError,
			Err:  apperrors.NewParseError("malformed channel message", err),
			At:   time.Now(),
		})
		return
	}
	if msg.Type != messageTypeFaceDetection {
		return
	}

	batch := &domain.DetectionBatch{
		CameraID:   domain.CameraID(msg.CameraID),
		CameraName: msg.CameraName,
		ReceivedAt: time.Now(),
		Faces:      msg.Faces,
	}
	r.dispatch(batch)
}

// dispatch invokes the camera's subscribers in registration order, holding
// the lock so an unsubscribe that has returned can never see a late batch.
// A camera with no subscribers drops its batch on the floor.
func (r *Router) dispatch(batch *domain.DetectionBatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs[batch.CameraID] {
		s.fn(batch)
	}
}

func (r *Router) publishHealth(ev domain.ChannelEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.healthSubs {
		s.fn(ev)
	}
}

func (r *Router) setHealthy(v bool) {
	r.mu.Lock()
	r.healthy = v
	r.mu.Unlock()
}
