package connection

// State is the lifecycle position of a connection
type State int32

const (
	StateConnecting State = iota
	StateReady
	StateReconnectPending
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateReconnectPending:
		return "reconnect_pending"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
