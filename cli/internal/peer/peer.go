package peer

// PeerID identifies an endpoint for the lifetime of its process.
type PeerID string

// Role is the side a session plays in offer/answer negotiation.
type Role int

const (
	RoleUnknown Role = iota
	RoleInitiator
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

// Phase is the lifecycle position of a NegotiationState.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseNegotiating
	PhaseConnected
	PhaseFailed
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseNegotiating:
		return "negotiating"
	case PhaseConnected:
		return "connected"
	case PhaseFailed:
		return "failed"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Live reports whether the phase can still carry or reach a connection.
func (p Phase) Live() bool {
	return p == PhaseIdle || p == PhaseNegotiating || p == PhaseConnected
}

// Terminal reports whether the entry is a zombie waiting to be reaped.
func (p Phase) Terminal() bool {
	return p == PhaseFailed || p == PhaseClosed
}
