// Package session owns the connection lifecycle to one warmer: waiting for
// the radio, connecting with a timeout, discovery, disconnect handling and
// reconnection.
package session

// State is the lifecycle state of a Session.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Disconnected
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// EventKind is an input to the state machine.
type EventKind int

const (
	EvConnectRequested EventKind = iota
	EvPowerOn
	EvConnectSucceeded
	EvConnectFailed
	EvDisconnected
	EvReconnectStarted
	EvClosed
)

func (k EventKind) String() string {
	switch k {
	case EvConnectRequested:
		return "connect-requested"
	case EvPowerOn:
		return "power-on"
	case EvConnectSucceeded:
		return "connect-succeeded"
	case EvConnectFailed:
		return "connect-failed"
	case EvDisconnected:
		return "disconnected"
	case EvReconnectStarted:
		return "reconnect-started"
	case EvClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transition returns the state reached from s on ev. ok is false when ev
// is not meaningful in s; the state is then returned unchanged.
func Transition(s State, ev EventKind) (next State, ok bool) {
	if ev == EvClosed {
		return Disconnected, s != Disconnected
	}
	switch s {
	case Idle:
		if ev == EvConnectRequested {
			return Connecting, true
		}
	case Connecting:
		switch ev {
		case EvPowerOn:
			return Connecting, true
		case EvConnectSucceeded:
			return Connected, true
		case EvConnectFailed:
			return Failed, true
		}
	case Connected:
		if ev == EvDisconnected {
			return Disconnected, true
		}
	case Disconnected:
		if ev == EvReconnectStarted {
			return Connecting, true
		}
	}
	return s, false
}
