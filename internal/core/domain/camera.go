package domain

type CameraID string

type CameraType string

const (
	CameraTypeFacial   CameraType = "facial"
	CameraTypeSecurity CameraType = "security"
)

// Camera is the immutable identity of one camera as supplied by the
// inventory service.
type Camera struct {
	ID   CameraID   `json:"id"`
	Name string     `json:"name"`
	Type CameraType `json:"type"`
}

// CameraStatus pairs a camera with the live state of its viewing session.
type CameraStatus struct {
	Camera    Camera       `json:"camera"`
	State     SessionState `json:"state"`
	LastError string       `json:"last_error,omitempty"`
}
