package domain

// QualityLevel names one tier of the constant profile table.
type QualityLevel string

const (
	QualityLow    QualityLevel = "low"
	QualityMedium QualityLevel = "medium"
	QualityHigh   QualityLevel = "high"
)

// QualityProfile caps the inbound encoding of one session.
type QualityProfile struct {
	Level         QualityLevel `json:"level"`
	MaxBitrateBps int          `json:"max_bitrate_bps"`
	MaxFrameRate  int          `json:"max_frame_rate"`
}

// QualityProfiles is the immutable tier table. Callers must treat entries as
// constants.
var QualityProfiles = map[QualityLevel]QualityProfile{
	QualityLow:    {Level: QualityLow, MaxBitrateBps: 400_000, MaxFrameRate: 15},
	QualityMedium: {Level: QualityMedium, MaxBitrateBps: 1_000_000, MaxFrameRate: 24},
	QualityHigh:   {Level: QualityHigh, MaxBitrateBps: 2_500_000, MaxFrameRate: 30},
}

// ProfileFor resolves a tier name, reporting false for unknown levels.
func ProfileFor(level QualityLevel) (QualityProfile, bool) {
	p, ok := QualityProfiles[level]
	return p, ok
}
