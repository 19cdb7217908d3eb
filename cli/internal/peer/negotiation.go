package peer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ChannelLabel is the label of the reliable application channel opened by
// the initiator.
const ChannelLabel = "chat"

type commandKind int

const (
	cmdOffer commandKind = iota + 1
	cmdSignal
	cmdTransport
	cmdTimeout
)

// command is one unit of work for a session goroutine.
type command struct {
	kind       commandKind
	generation uint64
	signal     Signal
	event      TransportEvent
}

// stateConfig carries the collaborators a NegotiationState needs.
type stateConfig struct {
	local   PeerID
	remote  PeerID
	factory TransportFactory
	relay   Relay
	logger  *slog.Logger
	notify  func(Event)
	timeout time.Duration
}

// NegotiationState drives one remote peer's session. All transitions run on
// a single goroutine fed by an unbounded mailbox, so signals for the same
// peer are applied strictly in arrival order. The mutex only guards fields
// read from other goroutines.
type NegotiationState struct {
	local   PeerID
	remote  PeerID
	factory TransportFactory
	relay   Relay
	logger  *slog.Logger
	notify  func(Event)
	timeout time.Duration

	// queue is touched only by the session goroutine.
	queue CandidateQueue
	inbox *mailbox[command]

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu                   sync.Mutex
	phase                Phase
	role                 Role
	hasRemoteDescription bool
	channelOpen          bool
	transport            Transport
	generation           uint64
	timer                *time.Timer
	lastErr              error
}

// SessionInfo is a point-in-time view of a session for status displays.
type SessionInfo struct {
	Peer                 PeerID
	Role                 Role
	Phase                Phase
	HasRemoteDescription bool
	ChannelOpen          bool
	Err                  error
}

func newNegotiationState(cfg stateConfig, role Role) *NegotiationState {
	ctx, cancel := context.WithCancel(context.Background())
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	notify := cfg.notify
	if notify == nil {
		notify = func(Event) {}
	}

	s := &NegotiationState{
		local:   cfg.local,
		remote:  cfg.remote,
		factory: cfg.factory,
		relay:   cfg.relay,
		logger:  logger.With("peer", string(cfg.remote)),
		notify:  notify,
		timeout: cfg.timeout,
		inbox:   newMailbox[command](),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		phase:   PhaseIdle,
		role:    role,
	}

	// A responder entry that never sees an offer must not linger forever.
	if role == RoleResponder {
		s.mu.Lock()
		s.armTimeoutLocked()
		s.mu.Unlock()
	}

	go s.run()
	return s
}

// Remote returns the peer this session belongs to.
func (s *NegotiationState) Remote() PeerID {
	return s.remote
}

// Phase returns the current phase.
func (s *NegotiationState) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Role returns the negotiation role.
func (s *NegotiationState) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Info returns a snapshot of the session.
func (s *NegotiationState) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		Peer:                 s.remote,
		Role:                 s.role,
		Phase:                s.phase,
		HasRemoteDescription: s.hasRemoteDescription,
		ChannelOpen:          s.channelOpen,
		Err:                  s.lastErr,
	}
}

// Done is closed once the session goroutine has exited.
func (s *NegotiationState) Done() <-chan struct{} {
	return s.done
}

// beginOffer moves an idle session to Negotiating(Initiator) and schedules
// the offer. The phase flips synchronously so a second ensure cannot
// schedule a second offer.
func (s *NegotiationState) beginOffer() bool {
	s.mu.Lock()
	if s.phase != PhaseIdle {
		s.mu.Unlock()
		return false
	}
	s.phase = PhaseNegotiating
	s.role = RoleInitiator
	s.armTimeoutLocked()
	gen := s.generation
	s.mu.Unlock()

	s.inbox.Post(command{kind: cmdOffer, generation: gen})
	s.notify(Event{Peer: s.remote, Kind: SessionConnecting})
	return true
}

// deliver queues an inbound signal. Signals posted after Close are dropped.
func (s *NegotiationState) deliver(sig Signal) bool {
	return s.inbox.Post(command{kind: cmdSignal, signal: sig})
}

// send writes payload on the open channel.
func (s *NegotiationState) send(payload []byte) error {
	s.mu.Lock()
	if s.phase != PhaseConnected || !s.channelOpen || s.transport == nil {
		phase := s.phase
		s.mu.Unlock()
		return WrapError("send", s.remote, ErrNotConnected, phase.String())
	}
	t := s.transport
	s.mu.Unlock()

	if err := t.Send(payload); err != nil {
		return NewError("send", s.remote, err)
	}
	return nil
}

// Close marks the session Closed immediately and releases the transport
// exactly once. Work still in flight completes as a no-op.
func (s *NegotiationState) Close() {
	s.releaseTransport(s.retire())
}

// retire marks the session Closed and publishes SessionClosed without
// touching the transport, which it returns for the caller to release. It
// never blocks, so the registry calls it under its lock. Only the first
// call returns a transport.
func (s *NegotiationState) retire() Transport {
	var t Transport
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.phase = PhaseClosed
		s.channelOpen = false
		t = s.transport
		s.transport = nil
		if s.timer != nil {
			s.timer.Stop()
		}
		s.mu.Unlock()

		s.cancel()
		s.inbox.Close()
		s.notify(Event{Peer: s.remote, Kind: SessionClosed})
	})
	return t
}

func (s *NegotiationState) releaseTransport(t Transport) {
	if t == nil {
		return
	}
	if err := t.Close(); err != nil {
		s.logger.Debug("closing transport", "error", err)
	}
}

func (s *NegotiationState) closed() bool {
	return s.ctx.Err() != nil
}

func (s *NegotiationState) run() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.inbox.Ready():
			for _, cmd := range s.inbox.Drain() {
				if s.closed() {
					return
				}
				s.handle(cmd)
			}
		}
	}
}

func (s *NegotiationState) handle(cmd command) {
	switch cmd.kind {
	case cmdOffer:
		if cmd.generation != s.currentGeneration() {
			return
		}
		s.startOffer()

	case cmdSignal:
		switch sig := cmd.signal.(type) {
		case SessionDescription:
			s.handleDescription(sig)
		case Candidate:
			s.handleCandidate(sig)
		}

	case cmdTransport:
		if cmd.generation != s.currentGeneration() {
			s.logger.Debug("dropping event from replaced transport", "event", cmd.event.Kind.String())
			return
		}
		s.handleTransportEvent(cmd.event)

	case cmdTimeout:
		s.mu.Lock()
		stale := cmd.generation != s.generation || (s.phase != PhaseIdle && s.phase != PhaseNegotiating)
		s.mu.Unlock()
		if stale {
			return
		}
		s.fail(NewError("negotiate", s.remote, ErrNegotiationTimeout))
	}
}

// startOffer runs the Idle -> Negotiating(Initiator) side effects.
func (s *NegotiationState) startOffer() {
	t, err := s.ensureTransport()
	if err != nil {
		s.failUnlessClosed("create transport", err)
		return
	}

	if err := t.OpenChannel(ChannelLabel); err != nil {
		s.failUnlessClosed("open channel", err)
		return
	}

	offer, err := t.CreateOffer(s.ctx)
	if err != nil {
		s.applyFailed("create offer", err)
		return
	}
	if s.closed() {
		return
	}

	s.logger.Info("offer created", "role", RoleInitiator.String())
	s.emit(NewDescriptionEnvelope(s.local, s.remote, offer))
}

func (s *NegotiationState) handleDescription(desc SessionDescription) {
	switch desc.Type {
	case DescriptionOffer:
		s.handleOffer(desc)
	case DescriptionAnswer:
		s.handleAnswer(desc)
	default:
		s.dropSignal("apply description", "unknown description type "+string(desc.Type))
	}
}

func (s *NegotiationState) handleOffer(offer SessionDescription) {
	s.mu.Lock()
	phase, role, hasRemote := s.phase, s.role, s.hasRemoteDescription
	s.mu.Unlock()

	switch {
	case phase.Terminal():
		s.dropSignal("apply offer", "session "+phase.String())
		return

	case phase == PhaseNegotiating && role == RoleInitiator && !hasRemote:
		// Both sides offered. The smaller id keeps the initiator role.
		if s.local < s.remote {
			s.logger.Info("glare: keeping local offer")
			return
		}
		s.logger.Info("glare: yielding to remote offer")
		s.resetTransport()

	case hasRemote:
		s.logger.Info("remote restarted negotiation", "phase", phase.String())
		s.resetTransport()
	}

	if !s.enterResponder() {
		return
	}

	t, err := s.ensureTransport()
	if err != nil {
		s.failUnlessClosed("create transport", err)
		return
	}

	if err := t.SetRemoteDescription(s.ctx, offer); err != nil {
		s.applyFailed("set remote offer", err)
		return
	}
	if !s.markRemoteDescription() {
		return
	}
	s.flushCandidates(t)

	answer, err := t.CreateAnswer(s.ctx)
	if err != nil {
		s.applyFailed("create answer", err)
		return
	}
	if s.closed() {
		return
	}

	s.logger.Info("answer created", "role", RoleResponder.String())
	s.emit(NewDescriptionEnvelope(s.local, s.remote, answer))
}

func (s *NegotiationState) handleAnswer(answer SessionDescription) {
	s.mu.Lock()
	phase, role, hasRemote, t := s.phase, s.role, s.hasRemoteDescription, s.transport
	s.mu.Unlock()

	if phase != PhaseNegotiating || role != RoleInitiator || hasRemote || t == nil {
		s.dropSignal("apply answer", "unexpected in "+phase.String()+"/"+role.String())
		return
	}

	if err := t.SetRemoteDescription(s.ctx, answer); err != nil {
		s.applyFailed("set remote answer", err)
		return
	}
	if !s.markRemoteDescription() {
		return
	}
	s.flushCandidates(t)
}

func (s *NegotiationState) handleCandidate(c Candidate) {
	s.mu.Lock()
	phase, hasRemote, t := s.phase, s.hasRemoteDescription, s.transport
	s.mu.Unlock()

	if phase.Terminal() {
		s.dropSignal("apply candidate", "session "+phase.String())
		return
	}
	if !hasRemote || t == nil {
		s.queue.Enqueue(c)
		s.logger.Debug("candidate buffered", "pending", s.queue.Len())
		return
	}
	s.applyCandidate(t, c)
}

func (s *NegotiationState) flushCandidates(t Transport) {
	s.mu.Lock()
	ready := s.hasRemoteDescription
	s.mu.Unlock()

	for _, c := range s.queue.DrainIfReady(ready) {
		if s.closed() {
			return
		}
		s.applyCandidate(t, c)
	}
}

// applyCandidate never fails the session; a bad candidate is logged and
// dropped while the others may still succeed.
func (s *NegotiationState) applyCandidate(t Transport, c Candidate) {
	if err := t.AddCandidate(s.ctx, c); err != nil {
		s.applyFailed("add candidate", err)
	}
}

func (s *NegotiationState) handleTransportEvent(ev TransportEvent) {
	switch ev.Kind {
	case EventLocalCandidate:
		if s.Phase().Terminal() {
			return
		}
		s.emit(NewCandidateEnvelope(s.local, s.remote, ev.Candidate))

	case EventChannelOpen:
		s.mu.Lock()
		if s.phase != PhaseNegotiating {
			s.mu.Unlock()
			return
		}
		s.channelOpen = true
		s.phase = PhaseConnected
		s.lastErr = nil
		if s.timer != nil {
			s.timer.Stop()
		}
		role := s.role
		s.mu.Unlock()

		s.logger.Info("session connected", "role", role.String())
		s.notify(Event{Peer: s.remote, Kind: SessionConnected})

	case EventChannelClosed, EventTransportFailed, EventTransportClosed:
		s.fail(WrapError("transport", s.remote, ErrTransportFailed, ev.Kind.String()))

	case EventPayload:
		if s.Phase() != PhaseConnected {
			return
		}
		payload := append([]byte(nil), ev.Payload...)
		s.notify(Event{Peer: s.remote, Kind: SessionMessage, Payload: payload})
	}
}

// ensureTransport returns the current transport, creating it on first use.
func (s *NegotiationState) ensureTransport() (Transport, error) {
	s.mu.Lock()
	if s.phase == PhaseClosed {
		s.mu.Unlock()
		return nil, NewError("create transport", s.remote, ErrManagerClosed)
	}
	if s.transport != nil {
		t := s.transport
		s.mu.Unlock()
		return t, nil
	}
	gen := s.generation
	s.mu.Unlock()

	t, err := s.factory.NewTransport(s.remote, s.sinkFor(gen))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.phase == PhaseClosed || s.generation != gen {
		s.mu.Unlock()
		_ = t.Close()
		return nil, NewError("create transport", s.remote, ErrManagerClosed)
	}
	s.transport = t
	s.mu.Unlock()
	return t, nil
}

// sinkFor tags transport events with the generation that produced them so
// callbacks from a replaced or closed transport are ignored.
func (s *NegotiationState) sinkFor(gen uint64) EventSink {
	return func(ev TransportEvent) {
		s.inbox.Post(command{kind: cmdTransport, generation: gen, event: ev})
	}
}

// resetTransport discards the current transport and starts a new generation.
func (s *NegotiationState) resetTransport() {
	s.mu.Lock()
	old := s.transport
	s.transport = nil
	s.generation++
	s.hasRemoteDescription = false
	s.channelOpen = false
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			s.logger.Debug("closing replaced transport", "error", err)
		}
	}
}

func (s *NegotiationState) enterResponder() bool {
	s.mu.Lock()
	if s.phase.Terminal() {
		s.mu.Unlock()
		return false
	}
	prev := s.phase
	s.phase = PhaseNegotiating
	s.role = RoleResponder
	s.armTimeoutLocked()
	s.mu.Unlock()

	if prev != PhaseNegotiating {
		s.notify(Event{Peer: s.remote, Kind: SessionConnecting})
	}
	return true
}

func (s *NegotiationState) markRemoteDescription() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.Terminal() {
		return false
	}
	s.hasRemoteDescription = true
	return true
}

func (s *NegotiationState) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *NegotiationState) armTimeoutLocked() {
	if s.timeout <= 0 {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	gen := s.generation
	s.timer = time.AfterFunc(s.timeout, func() {
		s.inbox.Post(command{kind: cmdTimeout, generation: gen})
	})
}

// fail moves a live session to Failed and reports it.
func (s *NegotiationState) fail(err error) {
	s.mu.Lock()
	if !s.phase.Live() {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseFailed
	s.channelOpen = false
	s.lastErr = err
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	s.logger.Warn("session failed", "error", err)
	s.notify(Event{Peer: s.remote, Kind: SessionFailed, Err: err})
}

func (s *NegotiationState) failUnlessClosed(op string, err error) {
	if s.closed() {
		return
	}
	s.fail(WrapError(op, s.remote, ErrTransportFailed, err.Error()))
}

func (s *NegotiationState) applyFailed(op string, err error) {
	if s.closed() {
		return
	}
	s.logger.Warn("signal dropped",
		"op", op,
		"error", WrapError(op, s.remote, ErrSignalApplyFailed, err.Error()),
	)
}

func (s *NegotiationState) dropSignal(op, reason string) {
	s.logger.Debug("signal ignored", "op", op, "reason", reason)
}

func (s *NegotiationState) emit(env Envelope) {
	if err := s.relay.Send(env); err != nil {
		s.logger.Warn("relay send failed", "kind", env.Kind().String(), "error", err)
	}
}
