package peer

// EventKind classifies session notifications delivered by Manager.Events.
type EventKind int

const (
	SessionConnecting EventKind = iota + 1
	SessionConnected
	SessionFailed
	SessionClosed
	SessionMessage
)

func (k EventKind) String() string {
	switch k {
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	case SessionFailed:
		return "failed"
	case SessionClosed:
		return "closed"
	case SessionMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is a session status change or an application payload received on
// the channel.
type Event struct {
	Peer    PeerID
	Kind    EventKind
	Payload []byte
	Err     error
}
