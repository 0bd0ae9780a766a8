package session

// State is the lifecycle state of a session.
type State int

const (
	// StateIdle means no transport has been attached yet.
	StateIdle State = iota

	// StateConnecting means a connect has been issued and has not resolved.
	StateConnecting

	// StateOpen means the transport is connected and the heartbeat is armed.
	StateOpen

	// StateReconnecting means the transport errored or closed uncleanly and
	// a reconnect attempt is scheduled.
	StateReconnecting

	// StateDisconnected means the session ended with a clean close and no
	// recovery is scheduled. A fresh Connect starts a new lifecycle.
	StateDisconnected
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
