package domain

import "time"

type AlertSeverity string

const (
	SeverityWarning AlertSeverity = "warning"
)

// Alert is one user-facing notification about an unknown face.
type Alert struct {
	ID         string        `json:"id"`
	CameraID   CameraID      `json:"camera_id"`
	CameraName string        `json:"camera_name"`
	Message    string        `json:"message"`
	Severity   AlertSeverity `json:"severity"`
	Timestamp  time.Time     `json:"timestamp"`
}

// AlertState tracks the edge-trigger condition for one camera: whether an
// unknown face is currently considered present, and when the last alert was
// raised.
type AlertState struct {
	UnknownPresent bool
	LastRaisedAt   time.Time
}
