package camsim

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"faceview/internal/core/domain"
)

type sessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type candidateRequest struct {
	Candidate string `json:"candidate"`
}

type cameraResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Simulator serves the negotiation API and the event feed for a fixed fleet
// of synthetic cameras, on the single port viewers expect both on.
type Simulator struct {
	cameras    []domain.Camera
	restricted map[domain.CameraID]bool
	publishers *PublisherPool
	feed       *DetectionFeed
	logger     *zap.SugaredLogger
}

func NewSimulator(
	cameras []domain.Camera,
	restricted map[domain.CameraID]bool,
	publishers *PublisherPool,
	feed *DetectionFeed,
	logger *zap.SugaredLogger,
) *Simulator {
	return &Simulator{
		cameras:    cameras,
		restricted: restricted,
		publishers: publishers,
		feed:       feed,
		logger:     logger,
	}
}

func (s *Simulator) SetupRoutes(engine *gin.Engine) {
	engine.GET("/cameras", s.ListCameras)
	engine.POST("/cameras/:id/offer", s.HandleOffer)
	engine.POST("/cameras/:id/ice", s.HandleCandidate)
	engine.GET("/events", gin.WrapF(s.feed.HandleEvents))
	engine.GET("/health", s.HealthCheck)
}

func (s *Simulator) ListCameras(c *gin.Context) {
	response := make([]cameraResponse, 0, len(s.cameras))
	for _, cam := range s.cameras {
		response = append(response, cameraResponse{
			ID:   string(cam.ID),
			Name: cam.Name,
			Type: string(cam.Type),
		})
	}
	c.JSON(http.StatusOK, response)
}

func (s *Simulator) HandleOffer(c *gin.Context) {
	cameraID := domain.CameraID(c.Param("id"))
	if !s.knownCamera(cameraID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return
	}
	if s.restricted[cameraID] {
		c.JSON(http.StatusForbidden, gin.H{"error": "camera access denied"})
		return
	}

	var req sessionDescription
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SDP == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sdp is required"})
		return
	}

	answerSDP, err := s.publishers.Answer(cameraID, req.SDP)
	if err != nil {
		s.logger.Errorw("offer negotiation failed", "camera_id", cameraID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, sessionDescription{Type: "answer", SDP: answerSDP})
}

func (s *Simulator) HandleCandidate(c *gin.Context) {
	cameraID := domain.CameraID(c.Param("id"))

	var req candidateRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.publishers.AddCandidate(cameraID, req.Candidate); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (s *Simulator) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"cameras":  len(s.cameras),
		"viewers":  s.feed.ConnectionCount(),
		"sessions": s.publishers.SessionCount(),
	})
}

func (s *Simulator) knownCamera(id domain.CameraID) bool {
	for _, cam := range s.cameras {
		if cam.ID == id {
			return true
		}
	}
	return false
}
