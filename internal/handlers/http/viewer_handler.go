package http

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"faceview/internal/core/domain"
	"faceview/internal/core/ports"
	"faceview/internal/core/services"
	"faceview/pkg/cache"
	"faceview/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Overlay projection defaults match the reference dashboard tile.
const (
	defaultSourceWidth   = 1280
	defaultSourceHeight  = 720
	defaultDisplayWidth  = 640
	defaultDisplayHeight = 360
)

// overlayRenderTTL bounds how stale a cached PNG render may get.
const overlayRenderTTL = time.Second

type ViewerHandler struct {
	viewerService ports.ViewerService
	renderer      *services.OverlayRenderer
	pngCache      *cache.Cache[[]byte]
	logger        *zap.SugaredLogger
}

func NewViewerHandler(
	viewerService ports.ViewerService,
	renderer *services.OverlayRenderer,
	logger *zap.SugaredLogger,
) *ViewerHandler {
	return &ViewerHandler{
		viewerService: viewerService,
		renderer:      renderer,
		pngCache:      cache.New[[]byte](overlayRenderTTL),
		logger:        logger,
	}
}

// Close releases the render cache.
func (h *ViewerHandler) Close() {
	h.pngCache.Stop()
}

func (h *ViewerHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/cameras", h.ListCameras)
	api.POST("/cameras/:id/watch", h.WatchCamera)
	api.DELETE("/cameras/:id/watch", h.UnwatchCamera)
	api.PUT("/cameras/:id/quality", h.SetQuality)
	api.GET("/cameras/:id/stats", h.GetCameraStats)
	api.GET("/cameras/:id/overlay", h.GetOverlay)
	api.GET("/cameras/:id/overlay.png", h.RenderOverlay)
	api.GET("/alerts", h.ListAlerts)
	api.POST("/wake", h.Wake)
}

func (h *ViewerHandler) ListCameras(c *gin.Context) {
	cameras, err := h.viewerService.Cameras(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cameras":         cameras,
		"channel_healthy": h.viewerService.ChannelHealthy(),
	})
}

func (h *ViewerHandler) WatchCamera(c *gin.Context) {
	cameraID, ok := cameraIDParam(c)
	if !ok {
		return
	}

	if err := h.viewerService.Watch(c.Request.Context(), cameraID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"camera_id": cameraID,
		"status":    "watching",
	})
}

func (h *ViewerHandler) UnwatchCamera(c *gin.Context) {
	cameraID, ok := cameraIDParam(c)
	if !ok {
		return
	}

	if err := h.viewerService.Unwatch(c.Request.Context(), cameraID); err != nil {
		c.Error(err)
		return
	}

	// Cached renders for this camera are stale now.
	h.pngCache.InvalidatePrefix(string(cameraID) + "|")

	c.JSON(http.StatusOK, gin.H{
		"camera_id": cameraID,
		"status":    "unwatched",
	})
}

func (h *ViewerHandler) SetQuality(c *gin.Context) {
	cameraID, ok := cameraIDParam(c)
	if !ok {
		return
	}

	var req struct {
		Level domain.QualityLevel `json:"level" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.viewerService.ApplyQuality(c.Request.Context(), cameraID, req.Level); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"camera_id": cameraID,
		"level":     req.Level,
		"status":    "applied",
	})
}

func (h *ViewerHandler) GetCameraStats(c *gin.Context) {
	cameraID, ok := cameraIDParam(c)
	if !ok {
		return
	}

	stats, err := h.viewerService.Stats(c.Request.Context(), cameraID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats": stats,
	})
}

func (h *ViewerHandler) GetOverlay(c *gin.Context) {
	cameraID, proj, ok := h.projectionQuery(c)
	if !ok {
		return
	}

	frame, err := h.viewerService.Overlay(c.Request.Context(), cameraID, proj.srcW, proj.srcH, proj.dstW, proj.dstH)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"overlay": frame,
	})
}

// RenderOverlay rasterizes the overlay to a PNG so operators can eyeball box
// placement without the dashboard. Renders are cached briefly, keyed by
// camera and projection.
func (h *ViewerHandler) RenderOverlay(c *gin.Context) {
	cameraID, proj, ok := h.projectionQuery(c)
	if !ok {
		return
	}

	key := fmt.Sprintf("%s|%dx%d|%dx%d", cameraID, proj.srcW, proj.srcH, proj.dstW, proj.dstH)
	data, err := h.pngCache.GetOrSet(c.Request.Context(), key, 0, func(ctx context.Context) ([]byte, error) {
		frame, err := h.viewerService.Overlay(ctx, cameraID, proj.srcW, proj.srcH, proj.dstW, proj.dstH)
		if err != nil {
			return nil, err
		}

		img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
		h.renderer.Draw(&frame, img)

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.Data(http.StatusOK, "image/png", data)
}

func (h *ViewerHandler) ListAlerts(c *gin.Context) {
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alerts, err := h.viewerService.Alerts(c.Request.Context(), limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
	})
}

func (h *ViewerHandler) Wake(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reason := domain.WakeReason(req.Reason)
	switch reason {
	case domain.WakeVisibilityRegained, domain.WakeNetworkRestored:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown wake reason"})
		return
	}

	h.viewerService.Wake(c.Request.Context(), reason)

	c.JSON(http.StatusOK, gin.H{
		"status": "wake_processed",
	})
}

// projection holds the overlay coordinate transform dimensions.
type projection struct {
	srcW, srcH, dstW, dstH int
}

// projectionQuery parses the projection query parameters. It writes the
// error response itself and reports success via ok.
func (h *ViewerHandler) projectionQuery(c *gin.Context) (domain.CameraID, projection, bool) {
	cameraID, ok := cameraIDParam(c)
	if !ok {
		return "", projection{}, false
	}

	var (
		proj projection
		err  error
	)
	if proj.srcW, err = intQuery(c, "src_w", defaultSourceWidth); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", projection{}, false
	}
	if proj.srcH, err = intQuery(c, "src_h", defaultSourceHeight); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", projection{}, false
	}
	if proj.dstW, err = intQuery(c, "w", defaultDisplayWidth); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", projection{}, false
	}
	if proj.dstH, err = intQuery(c, "h", defaultDisplayHeight); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", projection{}, false
	}
	return cameraID, proj, true
}

// cameraIDParam validates the :id path parameter. It writes the error
// response itself and reports success via ok.
func cameraIDParam(c *gin.Context) (domain.CameraID, bool) {
	id := c.Param("id")
	if err := validation.ValidateCameraID(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return domain.CameraID(id), true
}

// intQuery reads a positive integer query parameter, falling back when the
// parameter is absent.
func intQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return v, nil
}
