package domain

import "time"

// BoundingBox is in source video pixel space, not display space. The overlay
// scales it when the display resolution differs.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one face found in a frame. Name is nil when the recognizer
// could not match the face against the enrolled set.
type Detection struct {
	ID         string      `json:"id"`
	Name       *string     `json:"name"`
	Confidence float64     `json:"confidence"` // [0,1]
	Box        BoundingBox `json:"boundingBox"`
}

// Known reports whether the face matched an enrolled identity.
func (d Detection) Known() bool {
	return d.Name != nil
}

// DetectionBatch is one event-channel message for one camera. The router
// hands it to subscribers by reference; it must not be mutated after
// dispatch.
type DetectionBatch struct {
	CameraID   CameraID
	CameraName string
	ReceivedAt time.Time
	Faces      []Detection
}

// HasUnknown reports whether any face in the batch is unrecognized.
func (b *DetectionBatch) HasUnknown() bool {
	for _, f := range b.Faces {
		if !f.Known() {
			return true
		}
	}
	return false
}
