package types

// ConnectionState is the supervisor's view of the executor channel.
type ConnectionState int

const (
	// StateDisconnected means no channel is open.
	StateDisconnected ConnectionState = iota
	// StateConnecting means a channel open is in flight.
	StateConnecting
	// StateConnected means the channel is open and heartbeats are healthy.
	StateConnected
	// StateDegraded means the channel is open but the last heartbeat
	// round-trip missed its deadline. A warning state, not yet a failure.
	StateDegraded
)

// String returns the lowercase state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}
