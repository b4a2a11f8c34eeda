package camsim

import (
	"context"
	"fmt"
	"time"

	"faceview/internal/core/domain"

	"go.uber.org/zap"
)

// scriptLength is one full rotation for a camera: an empty frame, an
// enrolled face, enrolled plus stranger, the stranger lingering alone for
// two beats, then empty again.
const scriptLength = 6

var enrolledRoster = []struct {
	id   string
	name string
}{
	{"person-001", "Alice Hart"},
	{"person-002", "Marcus Webb"},
	{"person-003", "Priya Nair"},
}

// detectionMessage matches the envelope the viewer's router consumes.
type detectionMessage struct {
	Type       string             `json:"type"`
	CameraID   string             `json:"cameraId"`
	CameraName string             `json:"cameraName"`
	Faces      []domain.Detection `json:"faces"`
}

// Scenario replays a scripted rotation of recognizer events for a fixed
// camera fleet.
type Scenario struct {
	feed     *DetectionFeed
	cameras  []domain.Camera
	interval time.Duration
	logger   *zap.SugaredLogger
}

func NewScenario(feed *DetectionFeed, cameras []domain.Camera, interval time.Duration, logger *zap.SugaredLogger) *Scenario {
	return &Scenario{
		feed:     feed,
		cameras:  cameras,
		interval: interval,
		logger:   logger,
	}
}

// Run broadcasts one beat per interval until the context is cancelled.
// Cameras are phase-shifted so their scripts do not line up, and every
// seventh beat carries a foreign event type that viewers must ignore.
func (s *Scenario) Run(ctx context.Context) {
	s.logger.Infow("detection scenario started", "cameras", len(s.cameras), "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	step := 0
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("detection scenario stopped")
			return
		case <-ticker.C:
			for i, cam := range s.cameras {
				s.feed.Broadcast(s.beat(cam, i, step))
			}
			if step%7 == 3 {
				s.feed.Broadcast(map[string]interface{}{
					"type":     "motion_detection",
					"cameraId": string(s.cameras[step%len(s.cameras)].ID),
					"zones":    []string{"entrance"},
				})
			}
			step++
		}
	}
}

func (s *Scenario) beat(cam domain.Camera, index, step int) detectionMessage {
	phase := (step + index*2) % scriptLength
	cycle := (step + index*2) / scriptLength

	msg := detectionMessage{
		Type:       "face_detection",
		CameraID:   string(cam.ID),
		CameraName: cam.Name,
	}

	switch phase {
	case 1:
		msg.Faces = []domain.Detection{s.enrolledFace(index, step)}
	case 2:
		msg.Faces = []domain.Detection{s.enrolledFace(index, step), s.strangerFace(cam, cycle, step)}
	case 3, 4:
		msg.Faces = []domain.Detection{s.strangerFace(cam, cycle, step)}
	}
	return msg
}

func (s *Scenario) enrolledFace(index, step int) domain.Detection {
	person := enrolledRoster[index%len(enrolledRoster)]
	name := person.name
	return domain.Detection{
		ID:         person.id,
		Name:       &name,
		Confidence: 0.90 + float64(step%8)/100,
		Box:        wanderBox(120, 90, step),
	}
}

// strangerFace keeps the same face ID for a whole cycle so the stranger
// reads as one continuous presence, not a new face every beat.
func (s *Scenario) strangerFace(cam domain.Camera, cycle, step int) domain.Detection {
	return domain.Detection{
		ID:         fmt.Sprintf("stranger-%s-%d", cam.ID, cycle),
		Name:       nil,
		Confidence: 0.55 + float64(step%6)/100,
		Box:        wanderBox(760, 140, step),
	}
}

// wanderBox drifts a face-sized box around a base position. Coordinates are
// in the 1280x720 source frame the publisher advertises.
func wanderBox(baseX, baseY float64, step int) domain.BoundingBox {
	return domain.BoundingBox{
		X:      baseX + float64((step%5)*12),
		Y:      baseY + float64((step%3)*9),
		Width:  150,
		Height: 180,
	}
}
