package domain

// OverlayStyle selects the box styling. Known faces and unknown faces render
// differently so operators can tell them apart at a glance.
type OverlayStyle string

const (
	StyleKnown   OverlayStyle = "known"
	StyleUnknown OverlayStyle = "unknown"
)

// OverlayBox is one detection rectangle in display pixel space.
type OverlayBox struct {
	X      float64      `json:"x"`
	Y      float64      `json:"y"`
	Width  float64      `json:"width"`
	Height float64      `json:"height"`
	Label  string       `json:"label"`
	Style  OverlayStyle `json:"style"`
}

// OverlayFrame is the complete overlay for one camera tile. Each frame fully
// replaces the previous one; boxes never accumulate across frames.
type OverlayFrame struct {
	CameraID CameraID     `json:"camera_id"`
	Width    int          `json:"width"`
	Height   int          `json:"height"`
	Boxes    []OverlayBox `json:"boxes"`
}
