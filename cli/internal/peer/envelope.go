package peer

// Kind tags the variant carried by an Envelope.
type Kind int

const (
	KindSessionDescription Kind = iota + 1
	KindReachabilityCandidate
)

func (k Kind) String() string {
	switch k {
	case KindSessionDescription:
		return "description"
	case KindReachabilityCandidate:
		return "candidate"
	default:
		return "unknown"
	}
}

// DescriptionType distinguishes offers from answers.
type DescriptionType string

const (
	DescriptionOffer  DescriptionType = "offer"
	DescriptionAnswer DescriptionType = "answer"
)

// Signal is the payload of an Envelope. It is implemented only by
// SessionDescription and Candidate.
type Signal interface {
	Kind() Kind
	sealed()
}

// SessionDescription is a local or remote negotiation descriptor.
type SessionDescription struct {
	Type DescriptionType
	SDP  string
}

func (SessionDescription) Kind() Kind { return KindSessionDescription }
func (SessionDescription) sealed()    {}

// Candidate is an opaque reachability descriptor produced by the transport.
type Candidate struct {
	Body []byte
}

func (Candidate) Kind() Kind { return KindReachabilityCandidate }
func (Candidate) sealed()    {}

// Envelope is one signaling message between two peers. The relay forwards it
// unmodified.
type Envelope struct {
	From   PeerID
	To     PeerID
	Signal Signal
}

// NewDescriptionEnvelope builds an envelope carrying a session description.
func NewDescriptionEnvelope(from, to PeerID, desc SessionDescription) Envelope {
	return Envelope{From: from, To: to, Signal: desc}
}

// NewCandidateEnvelope builds an envelope carrying a reachability candidate.
// The body is copied so the envelope stays immutable.
func NewCandidateEnvelope(from, to PeerID, c Candidate) Envelope {
	body := append([]byte(nil), c.Body...)
	return Envelope{From: from, To: to, Signal: Candidate{Body: body}}
}

// Kind returns the variant tag, or 0 for an empty envelope.
func (e Envelope) Kind() Kind {
	if e.Signal == nil {
		return 0
	}
	return e.Signal.Kind()
}
