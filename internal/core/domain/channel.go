package domain

import "time"

// ChannelEventKind classifies events on the shared detection channel's
// health topic. These never target a specific camera.
type ChannelEventKind string

const (
	ChannelConnected    ChannelEventKind = "connected"
	ChannelDisconnected ChannelEventKind = "disconnected"
	ChannelParseError   ChannelEventKind = "parse_error"
	ChannelGaveUp       ChannelEventKind = "gave_up"
)

// ChannelEvent is one entry on the channel health topic.
type ChannelEvent struct {
	Kind ChannelEventKind
	Err  error
	At   time.Time
}
