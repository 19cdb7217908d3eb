package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var (
	errFakeClosed   = errors.New("fake transport closed")
	errFakeRejected = errors.New("fake transport rejected input")
	errFakeNotOpen  = errors.New("fake channel not open")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeNet links fake transports whose descriptions match, the way two real
// peer connections would after a completed offer/answer exchange.
type fakeNet struct {
	mu  sync.Mutex
	seq int
	all []*fakeTransport
}

func (n *fakeNet) linkLocked(t *fakeTransport) {
	if t.localDesc == "" || t.remoteDesc == "" || t.closes > 0 {
		return
	}
	for _, o := range n.all {
		if o == t || o.closes > 0 || o.local != t.remote || o.remote != t.local {
			continue
		}
		if o.localDesc == t.remoteDesc && o.remoteDesc == t.localDesc {
			t.peer, o.peer = o, t
			t.open, o.open = true, true
			t.sink(TransportEvent{Kind: EventChannelOpen})
			o.sink(TransportEvent{Kind: EventChannelOpen})
			return
		}
	}
}

type fakeTransport struct {
	net    *fakeNet
	local  PeerID
	remote PeerID
	sink   EventSink

	offerGate    chan struct{}
	offerEntered chan struct{}

	// guarded by net.mu
	label      string
	localDesc  string
	remoteDesc string
	calls      []string
	applied    []string
	closes     int
	open       bool
	peer       *fakeTransport
}

func (t *fakeTransport) OpenChannel(label string) error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	t.label = label
	t.calls = append(t.calls, "open:"+label)
	return nil
}

func (t *fakeTransport) CreateOffer(ctx context.Context) (SessionDescription, error) {
	if t.offerGate != nil {
		if t.offerEntered != nil {
			select {
			case t.offerEntered <- struct{}{}:
			default:
			}
		}
		select {
		case <-t.offerGate:
		case <-ctx.Done():
			return SessionDescription{}, ctx.Err()
		}
	}
	return t.describe(DescriptionOffer)
}

func (t *fakeTransport) CreateAnswer(ctx context.Context) (SessionDescription, error) {
	return t.describe(DescriptionAnswer)
}

func (t *fakeTransport) describe(typ DescriptionType) (SessionDescription, error) {
	n := t.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if t.closes > 0 {
		return SessionDescription{}, errFakeClosed
	}
	n.seq++
	t.localDesc = fmt.Sprintf("%s/%s/%d", typ, t.local, n.seq)
	t.calls = append(t.calls, "create:"+string(typ))
	t.sink(TransportEvent{
		Kind:      EventLocalCandidate,
		Candidate: Candidate{Body: []byte("cand/" + t.localDesc)},
	})
	n.linkLocked(t)
	return SessionDescription{Type: typ, SDP: t.localDesc}, nil
}

func (t *fakeTransport) SetRemoteDescription(ctx context.Context, desc SessionDescription) error {
	n := t.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if t.closes > 0 {
		return errFakeClosed
	}
	t.calls = append(t.calls, "remote:"+string(desc.Type))
	if desc.SDP == "bad" {
		return errFakeRejected
	}
	t.remoteDesc = desc.SDP
	n.linkLocked(t)
	return nil
}

func (t *fakeTransport) AddCandidate(ctx context.Context, c Candidate) error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	if t.closes > 0 {
		return errFakeClosed
	}
	t.calls = append(t.calls, "candidate:"+string(c.Body))
	if string(c.Body) == "bad" {
		return errFakeRejected
	}
	t.applied = append(t.applied, string(c.Body))
	return nil
}

func (t *fakeTransport) Send(payload []byte) error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	if !t.open || t.peer == nil {
		return errFakeNotOpen
	}
	t.peer.sink(TransportEvent{Kind: EventPayload, Payload: append([]byte(nil), payload...)})
	return nil
}

func (t *fakeTransport) Close() error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	t.closes++
	if t.closes > 1 {
		return nil
	}
	t.calls = append(t.calls, "close")
	if t.open {
		t.open = false
		if p := t.peer; p != nil && p.open {
			p.open = false
			p.sink(TransportEvent{Kind: EventChannelClosed})
		}
	}
	return nil
}

// fail simulates the local transport dropping without telling the remote.
func (t *fakeTransport) fail() {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	t.open = false
	t.sink(TransportEvent{Kind: EventTransportFailed})
}

func (t *fakeTransport) callLog() []string {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	return append([]string(nil), t.calls...)
}

func (t *fakeTransport) appliedCandidates() []string {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	return append([]string(nil), t.applied...)
}

func (t *fakeTransport) closeCount() int {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	return t.closes
}

type fakeFactory struct {
	net   *fakeNet
	local PeerID

	mu           sync.Mutex
	transports   []*fakeTransport
	block        chan struct{}
	entered      chan struct{}
	offerGate    chan struct{}
	offerEntered chan struct{}
}

func newFakeFactory(net *fakeNet, local PeerID) *fakeFactory {
	return &fakeFactory{net: net, local: local}
}

func (f *fakeFactory) NewTransport(remote PeerID, sink EventSink) (Transport, error) {
	f.mu.Lock()
	block, entered := f.block, f.entered
	gate, gateEntered := f.offerGate, f.offerEntered
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}

	t := &fakeTransport{
		net:          f.net,
		local:        f.local,
		remote:       remote,
		sink:         sink,
		offerGate:    gate,
		offerEntered: gateEntered,
	}
	f.net.mu.Lock()
	f.net.all = append(f.net.all, t)
	f.net.mu.Unlock()

	f.mu.Lock()
	f.transports = append(f.transports, t)
	f.mu.Unlock()
	return t, nil
}

func (f *fakeFactory) created() []*fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTransport(nil), f.transports...)
}

// recordingRelay keeps every envelope and delivers none.
type recordingRelay struct {
	mu   sync.Mutex
	envs []Envelope
}

func (r *recordingRelay) Send(env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return nil
}

func (r *recordingRelay) sent() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.envs...)
}

func (r *recordingRelay) count(kind Kind) int {
	n := 0
	for _, env := range r.sent() {
		if env.Kind() == kind {
			n++
		}
	}
	return n
}

// fakeSignaling delivers envelopes between managers in global send order on
// a single goroutine. Delivery can be paused to line up concurrent offers.
type fakeSignaling struct {
	mu       sync.Mutex
	managers map[PeerID]*Manager
	sent     []Envelope
	gate     chan struct{}

	queue *mailbox[Envelope]
	stop  chan struct{}
}

func newFakeSignaling(t *testing.T) *fakeSignaling {
	t.Helper()
	open := make(chan struct{})
	close(open)
	s := &fakeSignaling{
		managers: make(map[PeerID]*Manager),
		gate:     open,
		queue:    newMailbox[Envelope](),
		stop:     make(chan struct{}),
	}
	go s.dispatch()
	t.Cleanup(func() { close(s.stop) })
	return s
}

func (s *fakeSignaling) join(t *testing.T, id PeerID, net *fakeNet, opts ...Option) (*Manager, *fakeFactory) {
	t.Helper()
	f := newFakeFactory(net, id)
	relay := RelayFunc(func(env Envelope) error {
		s.mu.Lock()
		s.sent = append(s.sent, env)
		s.mu.Unlock()
		s.queue.Post(env)
		return nil
	})
	m := newTestManager(t, id, relay, f, opts...)
	s.mu.Lock()
	s.managers[id] = m
	s.mu.Unlock()
	return m, f
}

func (s *fakeSignaling) pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
}

func (s *fakeSignaling) resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.gate)
}

func (s *fakeSignaling) countDescriptions(typ DescriptionType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, env := range s.sent {
		if desc, ok := env.Signal.(SessionDescription); ok && desc.Type == typ {
			n++
		}
	}
	return n
}

func (s *fakeSignaling) dispatch() {
	for {
		select {
		case <-s.stop:
			return
		case <-s.queue.Ready():
			for _, env := range s.queue.Drain() {
				s.mu.Lock()
				gate := s.gate
				s.mu.Unlock()
				select {
				case <-gate:
				case <-s.stop:
					return
				}

				s.mu.Lock()
				m := s.managers[env.To]
				s.mu.Unlock()
				if m != nil {
					_ = m.HandleInboundSignal(env)
				}
			}
		}
	}
}

func newTestManager(t *testing.T, id PeerID, relay Relay, factory TransportFactory, opts ...Option) *Manager {
	t.Helper()
	base := []Option{WithLogger(discardLogger()), WithReapInterval(0)}
	m := NewManager(id, relay, factory, append(base, opts...)...)
	t.Cleanup(m.Close)
	return m
}

const waitTimeout = 2 * time.Second

// nextEvent returns the next event from m.
func nextEvent(t *testing.T, m *Manager) Event {
	t.Helper()
	select {
	case ev, ok := <-m.Events():
		if !ok {
			t.Fatalf("events channel closed")
		}
		return ev
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

// waitEvent skips events until one for peer with kind arrives.
func waitEvent(t *testing.T, m *Manager, peer PeerID, kind EventKind) Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev, ok := <-m.Events():
			if !ok {
				t.Fatalf("events channel closed waiting for %s from %s", kind, peer)
			}
			if ev.Peer == peer && ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s from %s", kind, peer)
		}
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met: %s", msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitDone(t *testing.T, s *NegotiationState) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("session goroutine did not exit")
	}
}
