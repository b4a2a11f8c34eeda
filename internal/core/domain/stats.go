package domain

import "time"

// TransportCounters are the raw monotonic counters a media transport exposes
// for one link. The sampler derives rates from deltas between reads.
type TransportCounters struct {
	BytesReceived  uint64
	FramesReceived uint64
}

// StatsSnapshot is a read-only health sample for one connected session.
type StatsSnapshot struct {
	CameraID       CameraID      `json:"camera_id"`
	At             time.Time     `json:"at"`
	BitrateBps     float64       `json:"bitrate_bps"`
	FrameRate      float64       `json:"frame_rate"`
	RTT            time.Duration `json:"rtt"`
	BytesReceived  uint64        `json:"bytes_received"`
	FramesReceived uint64        `json:"frames_received"`
}
