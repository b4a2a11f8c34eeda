package domain

import "errors"

var (
	ErrCameraNotFound  = errors.New("camera not found")
	ErrSessionActive   = errors.New("session already active")
	ErrSessionNotFound = errors.New("session not found")
	ErrNotConnected    = errors.New("session not connected")
	ErrChannelClosed   = errors.New("event channel closed")
	ErrUnknownQuality  = errors.New("unknown quality level")
)
