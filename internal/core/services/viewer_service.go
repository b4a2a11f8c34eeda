package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"faceview/internal/core/domain"
	"faceview/internal/core/ports"

	"go.uber.org/zap"
)

// ViewerConfig carries the pipeline tunables the viewer service needs.
type ViewerConfig struct {
	ReconnectDelay   time.Duration
	StatsInterval    time.Duration
	DefaultQuality   string
	AlertMinInterval time.Duration
}

// watchEntry is the per-camera arena slot: the session plus everything that
// must be torn down with it.
type watchEntry struct {
	session *StreamSession
	sampler *StatsSampler
	ctx     context.Context
	cancel  context.CancelFunc
	unsub   func()

	mu        sync.Mutex
	desired   *domain.QualityProfile
	lastBatch *domain.DetectionBatch
}

// ViewerService owns the registry of watched cameras and orchestrates the
// whole viewing pipeline: sessions, reconnect policy, stats sampling,
// detection routing and alerting. The HTTP layer talks only to this facade.
type ViewerService struct {
	cfg        ViewerConfig
	signaler   ports.Signaler
	transport  ports.MediaTransport
	router     ports.DetectionRouter
	cameraRepo ports.CameraRepository
	alertRepo  ports.AlertRepository
	statsRepo  ports.StatsRepository
	logger     *zap.SugaredLogger

	supervisor *ReconnectSupervisor
	dedup      *AlertDeduplicator
	overlay    *OverlayRenderer

	mu             sync.Mutex
	entries        map[domain.CameraID]*watchEntry
	stateListeners []func(domain.StateChange)
}

// repoAlertSink stores every emitted alert so the history endpoint can serve
// it.
type repoAlertSink struct {
	repo ports.AlertRepository
}

func (s repoAlertSink) PublishAlert(ctx context.Context, alert *domain.Alert) error {
	return s.repo.Add(ctx, alert)
}

func NewViewerService(
	cfg ViewerConfig,
	signaler ports.Signaler,
	transport ports.MediaTransport,
	router ports.DetectionRouter,
	cameraRepo ports.CameraRepository,
	alertRepo ports.AlertRepository,
	statsRepo ports.StatsRepository,
	logger *zap.SugaredLogger,
) *ViewerService {
	vs := &ViewerService{
		cfg:        cfg,
		signaler:   signaler,
		transport:  transport,
		router:     router,
		cameraRepo: cameraRepo,
		alertRepo:  alertRepo,
		statsRepo:  statsRepo,
		logger:     logger,
		supervisor: NewReconnectSupervisor(cfg.ReconnectDelay, logger),
		dedup:      NewAlertDeduplicator(cfg.AlertMinInterval, logger),
		overlay:    NewOverlayRenderer(),
		entries:    make(map[domain.CameraID]*watchEntry),
	}
	vs.dedup.AddSink(repoAlertSink{repo: alertRepo})
	return vs
}

// AddAlertSink registers an additional alert destination, e.g. the
// distributed alert bus. Wire sinks before watching begins.
func (vs *ViewerService) AddAlertSink(sink ports.AlertSink) {
	vs.dedup.AddSink(sink)
}

// OnSessionChange registers a listener for every session transition across
// all cameras. Listeners must be quick; they run on the transition path.
func (vs *ViewerService) OnSessionChange(fn func(domain.StateChange)) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.stateListeners = append(vs.stateListeners, fn)
}

// RefreshInventory pulls the camera list from the signaling service into the
// local repository.
func (vs *ViewerService) RefreshInventory(ctx context.Context) error {
	cameras, err := vs.signaler.ListCameras(ctx)
	if err != nil {
		return err
	}
	if err := vs.cameraRepo.Put(ctx, cameras); err != nil {
		return err
	}
	vs.logger.Infow("camera inventory refreshed", "count", len(cameras))
	return nil
}

// Watch mounts a camera tile. The session entry is registered synchronously;
// the connection itself is established in the background so a slow
// negotiation never blocks the caller.
func (vs *ViewerService) Watch(ctx context.Context, cameraID domain.CameraID) error {
	camera, err := vs.lookupCamera(ctx, cameraID)
	if err != nil {
		return err
	}

	vs.mu.Lock()
	if _, exists := vs.entries[cameraID]; exists {
		vs.mu.Unlock()
		return domain.ErrSessionActive
	}

	entryCtx, cancel := context.WithCancel(context.Background())
	entry := &watchEntry{
		session: NewStreamSession(*camera, vs.transport, vs.logger),
		ctx:     entryCtx,
		cancel:  cancel,
		desired: vs.defaultProfile(),
	}
	entry.session.OnStateChange(func(change domain.StateChange) {
		vs.handleTransition(entry, change)
	})
	entry.unsub = vs.router.Subscribe(cameraID, func(batch *domain.DetectionBatch) {
		entry.mu.Lock()
		entry.lastBatch = batch
		entry.mu.Unlock()
		vs.dedup.Process(entry.ctx, batch)
	})
	entry.sampler = NewStatsSampler(entry.session, vs.cfg.StatsInterval, func(snap *domain.StatsSnapshot) {
		if err := vs.statsRepo.Put(entry.ctx, snap); err != nil {
			vs.logger.Debugw("failed to store stats snapshot", "camera_id", cameraID, "error", err)
		}
	}, vs.logger)
	vs.entries[cameraID] = entry
	vs.mu.Unlock()

	vs.supervisor.Enroll(cameraID, func() {
		go vs.startSession(entry, cameraID)
	})

	go entry.sampler.Run()
	go vs.startSession(entry, cameraID)

	vs.logger.Infow("camera watched", "camera_id", cameraID)
	return nil
}

// Unwatch tears a tile down: reconnect timer, stats sampling, router
// subscription and media handle all go in one pass, whatever state the
// session was in.
func (vs *ViewerService) Unwatch(ctx context.Context, cameraID domain.CameraID) error {
	vs.mu.Lock()
	entry, ok := vs.entries[cameraID]
	if !ok {
		vs.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	delete(vs.entries, cameraID)
	vs.mu.Unlock()

	vs.supervisor.Forget(cameraID)
	entry.cancel()
	entry.unsub()
	entry.sampler.Stop()
	entry.session.Stop()
	vs.dedup.Forget(cameraID)
	if err := vs.statsRepo.Delete(ctx, cameraID); err != nil {
		vs.logger.Debugw("failed to drop stats", "camera_id", cameraID, "error", err)
	}

	vs.logger.Infow("camera unwatched", "camera_id", cameraID)
	return nil
}

// ApplyQuality switches a watched camera to a fixed quality tier. The cap
// takes effect immediately when the session is Connected and is re-applied
// after every reconnect.
func (vs *ViewerService) ApplyQuality(ctx context.Context, cameraID domain.CameraID, level domain.QualityLevel) error {
	profile, ok := domain.ProfileFor(level)
	if !ok {
		return domain.ErrUnknownQuality
	}

	entry, ok := vs.entryFor(cameraID)
	if !ok {
		return domain.ErrSessionNotFound
	}

	entry.mu.Lock()
	entry.desired = &profile
	entry.mu.Unlock()

	return entry.session.ApplyQuality(profile)
}

// Wake fires pending reconnects immediately, e.g. when the dashboard tab
// regains visibility or the network comes back.
func (vs *ViewerService) Wake(ctx context.Context, reason domain.WakeReason) {
	vs.supervisor.Notify(reason)
}

// Cameras returns the inventory with each camera's live session state.
func (vs *ViewerService) Cameras(ctx context.Context) ([]domain.CameraStatus, error) {
	cameras, err := vs.cameraRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(cameras) == 0 {
		if err := vs.RefreshInventory(ctx); err != nil {
			vs.logger.Warnw("inventory refresh failed", "error", err)
		} else if cameras, err = vs.cameraRepo.List(ctx); err != nil {
			return nil, err
		}
	}

	statuses := make([]domain.CameraStatus, 0, len(cameras))
	for _, cam := range cameras {
		status := domain.CameraStatus{Camera: cam, State: domain.SessionIdle}
		if entry, ok := vs.entryFor(cam.ID); ok {
			status.State = entry.session.State()
			if lastErr := entry.session.LastError(); lastErr != nil {
				status.LastError = lastErr.Error()
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Stats returns the most recent sampled snapshot for a camera.
func (vs *ViewerService) Stats(ctx context.Context, cameraID domain.CameraID) (*domain.StatsSnapshot, error) {
	if _, ok := vs.entryFor(cameraID); !ok {
		return nil, domain.ErrSessionNotFound
	}
	return vs.statsRepo.Latest(ctx, cameraID)
}

// Alerts returns the newest alerts, most recent first.
func (vs *ViewerService) Alerts(ctx context.Context, limit int) ([]*domain.Alert, error) {
	return vs.alertRepo.Recent(ctx, limit)
}

// Overlay projects the camera's most recent detection batch into display
// space. A camera with no batch yet yields an empty frame.
func (vs *ViewerService) Overlay(ctx context.Context, cameraID domain.CameraID, srcW, srcH, dstW, dstH int) (domain.OverlayFrame, error) {
	entry, ok := vs.entryFor(cameraID)
	if !ok {
		return domain.OverlayFrame{}, domain.ErrSessionNotFound
	}

	entry.mu.Lock()
	batch := entry.lastBatch
	entry.mu.Unlock()
	if batch == nil {
		batch = &domain.DetectionBatch{CameraID: cameraID}
	}

	frame, err := vs.overlay.Compute(batch, srcW, srcH, dstW, dstH)
	if err != nil {
		return domain.OverlayFrame{}, err
	}
	return *frame, nil
}

// ChannelHealthy reports whether the shared detection channel is connected.
func (vs *ViewerService) ChannelHealthy() bool {
	return vs.router.Healthy()
}

// Renderer exposes the overlay rasterizer for the debug drawing endpoint.
func (vs *ViewerService) Renderer() *OverlayRenderer {
	return vs.overlay
}

// Close unwatches every camera. Called on shutdown.
func (vs *ViewerService) Close() {
	vs.mu.Lock()
	ids := make([]domain.CameraID, 0, len(vs.entries))
	for id := range vs.entries {
		ids = append(ids, id)
	}
	vs.mu.Unlock()

	for _, id := range ids {
		if err := vs.Unwatch(context.Background(), id); err != nil {
			vs.logger.Warnw("unwatch during shutdown failed", "camera_id", id, "error", err)
		}
	}
}

func (vs *ViewerService) lookupCamera(ctx context.Context, cameraID domain.CameraID) (*domain.Camera, error) {
	camera, err := vs.cameraRepo.GetByID(ctx, cameraID)
	if err == nil {
		return camera, nil
	}
	if !errors.Is(err, domain.ErrCameraNotFound) {
		return nil, err
	}
	// The tile may have mounted before the first inventory refresh.
	if refreshErr := vs.RefreshInventory(ctx); refreshErr != nil {
		return nil, err
	}
	return vs.cameraRepo.GetByID(ctx, cameraID)
}

func (vs *ViewerService) entryFor(cameraID domain.CameraID) (*watchEntry, bool) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	entry, ok := vs.entries[cameraID]
	return entry, ok
}

func (vs *ViewerService) defaultProfile() *domain.QualityProfile {
	if vs.cfg.DefaultQuality == "" || vs.cfg.DefaultQuality == "auto" {
		return nil
	}
	if p, ok := domain.ProfileFor(domain.QualityLevel(vs.cfg.DefaultQuality)); ok {
		return &p
	}
	return nil
}

func (vs *ViewerService) startSession(entry *watchEntry, cameraID domain.CameraID) {
	if err := entry.session.Start(entry.ctx); err != nil {
		if errors.Is(err, domain.ErrSessionActive) {
			return
		}
		vs.logger.Warnw("session start failed", "camera_id", cameraID, "error", err)
	}
}

func (vs *ViewerService) handleTransition(entry *watchEntry, change domain.StateChange) {
	vs.supervisor.Observe(change)

	if change.State == domain.SessionConnected {
		entry.mu.Lock()
		desired := entry.desired
		entry.mu.Unlock()
		if desired != nil {
			if err := entry.session.ApplyQuality(*desired); err != nil {
				vs.logger.Warnw("failed to apply quality after connect",
					"camera_id", change.CameraID,
					"level", desired.Level,
					"error", err,
				)
			}
		}
	}

	vs.mu.Lock()
	listeners := make([]func(domain.StateChange), len(vs.stateListeners))
	copy(listeners, vs.stateListeners)
	vs.mu.Unlock()
	for _, fn := range listeners {
		fn(change)
	}
}
