package peer

import "context"

// Transport is the underlying peer link for one session. Every method except
// Send and Close is called only from the owning NegotiationState goroutine.
type Transport interface {
	// OpenChannel creates the reliable application channel in the local
	// role. It is not usable until the transport reports EventChannelOpen.
	OpenChannel(label string) error

	CreateOffer(ctx context.Context) (SessionDescription, error)
	CreateAnswer(ctx context.Context) (SessionDescription, error)
	SetRemoteDescription(ctx context.Context, desc SessionDescription) error
	AddCandidate(ctx context.Context, c Candidate) error

	// Send writes one payload on the open channel. Safe for concurrent use.
	Send(payload []byte) error

	Close() error
}

// TransportEventKind enumerates what a transport reports back to its session.
type TransportEventKind int

const (
	EventLocalCandidate TransportEventKind = iota + 1
	EventChannelOpen
	EventChannelClosed
	EventTransportFailed
	EventTransportClosed
	EventPayload
)

func (k TransportEventKind) String() string {
	switch k {
	case EventLocalCandidate:
		return "local_candidate"
	case EventChannelOpen:
		return "channel_open"
	case EventChannelClosed:
		return "channel_closed"
	case EventTransportFailed:
		return "transport_failed"
	case EventTransportClosed:
		return "transport_closed"
	case EventPayload:
		return "payload"
	default:
		return "unknown"
	}
}

// TransportEvent is posted by a Transport into its session's mailbox.
type TransportEvent struct {
	Kind      TransportEventKind
	Candidate Candidate
	Payload   []byte
}

// EventSink accepts transport events. It never blocks.
type EventSink func(TransportEvent)

// TransportFactory creates the transport for a session. It is invoked lazily
// from the session goroutine, once per negotiation generation.
type TransportFactory interface {
	NewTransport(remote PeerID, sink EventSink) (Transport, error)
}

// TransportFactoryFunc adapts a function to TransportFactory.
type TransportFactoryFunc func(remote PeerID, sink EventSink) (Transport, error)

func (f TransportFactoryFunc) NewTransport(remote PeerID, sink EventSink) (Transport, error) {
	return f(remote, sink)
}

// Relay is the outbound half of the signaling channel. Send is
// fire-and-forget; delivery is not acknowledged.
type Relay interface {
	Send(env Envelope) error
}

// RelayFunc adapts a function to Relay.
type RelayFunc func(env Envelope) error

func (f RelayFunc) Send(env Envelope) error {
	return f(env)
}
