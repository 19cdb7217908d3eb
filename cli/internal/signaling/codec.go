package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BioHazard786/Warpchat/cli/internal/peer"
)

var ErrInvalidSignal = errors.New("invalid signal payload")

const (
	signalKindDescription = "description"
	signalKindCandidate   = "candidate"
)

// signalPayload is the JSON body of a signal message. Candidates are carried
// as the transport's own JSON so the relay never has to understand them.
type signalPayload struct {
	Kind        string           `json:"kind"`
	Description *descriptionJSON `json:"description,omitempty"`
	Candidate   json.RawMessage  `json:"candidate,omitempty"`
}

type descriptionJSON struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// EncodeEnvelope turns an envelope into a routable signal message.
func EncodeEnvelope(env peer.Envelope) (*Message, error) {
	var p signalPayload
	switch sig := env.Signal.(type) {
	case peer.SessionDescription:
		p = signalPayload{
			Kind:        signalKindDescription,
			Description: &descriptionJSON{Type: string(sig.Type), SDP: sig.SDP},
		}
	case peer.Candidate:
		if !json.Valid(sig.Body) {
			return nil, fmt.Errorf("encode candidate: %w", ErrInvalidSignal)
		}
		p = signalPayload{Kind: signalKindCandidate, Candidate: sig.Body}
	default:
		return nil, fmt.Errorf("encode envelope: %w", ErrInvalidSignal)
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return &Message{
		Type:    MessageTypeSignal,
		From:    string(env.From),
		To:      string(env.To),
		Payload: body,
	}, nil
}

// DecodeEnvelope parses a signal message received from the server.
func DecodeEnvelope(msg *Message) (peer.Envelope, error) {
	if msg.Type != MessageTypeSignal {
		return peer.Envelope{}, fmt.Errorf("decode envelope: unexpected type %q", msg.Type)
	}

	var p signalPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return peer.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}

	from, to := peer.PeerID(msg.From), peer.PeerID(msg.To)
	switch p.Kind {
	case signalKindDescription:
		if p.Description == nil {
			return peer.Envelope{}, fmt.Errorf("decode description: %w", ErrInvalidSignal)
		}
		typ := peer.DescriptionType(p.Description.Type)
		if typ != peer.DescriptionOffer && typ != peer.DescriptionAnswer {
			return peer.Envelope{}, fmt.Errorf("decode description type %q: %w", p.Description.Type, ErrInvalidSignal)
		}
		return peer.NewDescriptionEnvelope(from, to, peer.SessionDescription{Type: typ, SDP: p.Description.SDP}), nil

	case signalKindCandidate:
		if len(p.Candidate) == 0 {
			return peer.Envelope{}, fmt.Errorf("decode candidate: %w", ErrInvalidSignal)
		}
		return peer.NewCandidateEnvelope(from, to, peer.Candidate{Body: p.Candidate}), nil

	default:
		return peer.Envelope{}, fmt.Errorf("decode kind %q: %w", p.Kind, ErrInvalidSignal)
	}
}
