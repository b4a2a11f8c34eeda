package domain

import "time"

type SessionState string

const (
	SessionIdle        SessionState = "idle"
	SessionNegotiating SessionState = "negotiating"
	SessionConnected   SessionState = "connected"
	SessionDegraded    SessionState = "degraded"
	SessionClosed      SessionState = "closed"
)

// StateChange is one observed session transition. Err is set only when the
// session lands in Closed because of a failure.
type StateChange struct {
	CameraID CameraID
	State    SessionState
	Err      error
	At       time.Time
}

// LinkState is the transport-level view of an established media link. The
// session maps it onto its own state machine: degraded links keep the
// session alive, a down link closes it.
type LinkState string

const (
	LinkUp       LinkState = "up"
	LinkDegraded LinkState = "degraded"
	LinkDown     LinkState = "down"
)

// WakeReason identifies an external signal that may trigger an immediate
// reconnect attempt instead of waiting out the pending retry delay.
type WakeReason string

const (
	WakeVisibilityRegained WakeReason = "visibility_regained"
	WakeNetworkRestored    WakeReason = "network_restored"
)
