package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BioHazard786/Warpchat/cli/internal/config"
	"github.com/BioHazard786/Warpchat/cli/internal/logging"
	"github.com/BioHazard786/Warpchat/cli/internal/peer"
	"github.com/BioHazard786/Warpchat/cli/internal/utils"
	pion "github.com/pion/webrtc/v4"
)

// FactoryOption customises a Factory.
type FactoryOption func(*Factory)

// WithAPI makes the factory build peer connections from api, e.g. one bound
// to a virtual network.
func WithAPI(api *pion.API) FactoryOption {
	return func(f *Factory) {
		f.api = api
	}
}

// WithLogger sets the logger for transport diagnostics.
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// Factory creates pion-backed transports sharing one ICE configuration.
type Factory struct {
	api           *pion.API
	configuration pion.Configuration
	logger        *slog.Logger
}

// NewFactory builds the ICE configuration from cfg.
func NewFactory(cfg *config.Config, opts ...FactoryOption) *Factory {
	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || utils.ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	f := &Factory{
		configuration: pion.Configuration{
			ICEServers:         iceServers,
			ICETransportPolicy: policy,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.api == nil {
		se := pion.SettingEngine{LoggerFactory: logging.PionLoggerFactory()}
		f.api = pion.NewAPI(pion.WithSettingEngine(se))
	}
	return f
}

// NewTransport implements peer.TransportFactory.
func (f *Factory) NewTransport(remote peer.PeerID, sink peer.EventSink) (peer.Transport, error) {
	pc, err := f.api.NewPeerConnection(f.configuration)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	t := &Transport{
		pc:     pc,
		sink:   sink,
		logger: f.logger.With("peer", string(remote)),
	}
	t.setupHandlers()
	return t, nil
}

// Transport is one pion PeerConnection carrying a single reliable data
// channel.
type Transport struct {
	pc     *pion.PeerConnection
	sink   peer.EventSink
	logger *slog.Logger

	mu sync.Mutex
	dc *pion.DataChannel

	closeOnce sync.Once
	closeErr  error
}

func (t *Transport) setupHandlers() {
	t.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		body, err := json.Marshal(c.ToJSON())
		if err != nil {
			t.logger.Warn("encode local candidate", "error", err)
			return
		}
		t.sink(peer.TransportEvent{Kind: peer.EventLocalCandidate, Candidate: peer.Candidate{Body: body}})
	})

	t.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		t.logger.Debug("connection state changed", "state", state.String())
		switch state {
		case pion.PeerConnectionStateFailed:
			t.sink(peer.TransportEvent{Kind: peer.EventTransportFailed})
		case pion.PeerConnectionStateClosed:
			t.sink(peer.TransportEvent{Kind: peer.EventTransportClosed})
		}
	})

	t.pc.OnDataChannel(func(dc *pion.DataChannel) {
		if dc.Label() != peer.ChannelLabel {
			t.logger.Debug("ignoring data channel", "label", dc.Label())
			return
		}
		t.attach(dc)
	})
}

func (t *Transport) attach(dc *pion.DataChannel) {
	t.mu.Lock()
	t.dc = dc
	t.mu.Unlock()

	dc.OnOpen(func() {
		t.sink(peer.TransportEvent{Kind: peer.EventChannelOpen})
	})
	dc.OnClose(func() {
		t.sink(peer.TransportEvent{Kind: peer.EventChannelClosed})
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		t.sink(peer.TransportEvent{Kind: peer.EventPayload, Payload: msg.Data})
	})
}

// OpenChannel creates the ordered, fully reliable application channel.
func (t *Transport) OpenChannel(label string) error {
	ordered := true
	dc, err := t.pc.CreateDataChannel(label, &pion.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	t.attach(dc)
	return nil
}

func (t *Transport) CreateOffer(ctx context.Context) (peer.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return peer.SessionDescription{}, err
	}
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return peer.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err = t.pc.SetLocalDescription(offer); err != nil {
		return peer.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return fromPion(t.pc.LocalDescription()), nil
}

func (t *Transport) CreateAnswer(ctx context.Context) (peer.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return peer.SessionDescription{}, err
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return peer.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err = t.pc.SetLocalDescription(answer); err != nil {
		return peer.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return fromPion(t.pc.LocalDescription()), nil
}

func (t *Transport) SetRemoteDescription(ctx context.Context, desc peer.SessionDescription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var sdpType pion.SDPType
	switch desc.Type {
	case peer.DescriptionOffer:
		sdpType = pion.SDPTypeOffer
	case peer.DescriptionAnswer:
		sdpType = pion.SDPTypeAnswer
	default:
		return fmt.Errorf("set remote description: unknown type %q", desc.Type)
	}
	if err := t.pc.SetRemoteDescription(pion.SessionDescription{Type: sdpType, SDP: desc.SDP}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (t *Transport) AddCandidate(ctx context.Context, c peer.Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var ice pion.ICECandidateInit
	if err := json.Unmarshal(c.Body, &ice); err != nil {
		return fmt.Errorf("parse ICE candidate: %w", err)
	}
	if err := t.pc.AddICECandidate(ice); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

func (t *Transport) Send(payload []byte) error {
	t.mu.Lock()
	dc := t.dc
	t.mu.Unlock()

	if dc == nil || dc.ReadyState() != pion.DataChannelStateOpen {
		return peer.ErrNotConnected
	}
	return dc.Send(payload)
}

func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.pc.Close()
	})
	return t.closeErr
}

func fromPion(desc *pion.SessionDescription) peer.SessionDescription {
	if desc == nil {
		return peer.SessionDescription{}
	}
	typ := peer.DescriptionOffer
	if desc.Type == pion.SDPTypeAnswer {
		typ = peer.DescriptionAnswer
	}
	return peer.SessionDescription{Type: typ, SDP: desc.SDP}
}
