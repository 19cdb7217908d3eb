package peer

import (
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultNegotiationTimeout = 30 * time.Second
	DefaultReapInterval       = 3 * time.Second

	eventBufferSize = 256
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used by the manager and its sessions.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithNegotiationTimeout bounds how long a session may stay Negotiating.
// Zero disables the timeout.
func WithNegotiationTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithReapInterval sets how often zombie sessions are removed. Zero
// disables periodic reaping; zombies are then only replaced on demand.
func WithReapInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.reapInterval = d
	}
}

// Manager owns every session of the local peer. It creates sessions on
// demand, routes inbound envelopes to them, and reports status changes and
// received payloads on Events.
type Manager struct {
	local   PeerID
	relay   Relay
	factory TransportFactory
	logger  *slog.Logger

	timeout      time.Duration
	reapInterval time.Duration

	registry *Registry
	pending  *mailbox[Event]
	events   chan Event

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewManager creates a manager for local that sends envelopes through relay
// and builds transports with factory.
func NewManager(local PeerID, relay Relay, factory TransportFactory, opts ...Option) *Manager {
	m := &Manager{
		local:        local,
		relay:        relay,
		factory:      factory,
		logger:       slog.Default(),
		timeout:      DefaultNegotiationTimeout,
		reapInterval: DefaultReapInterval,
		pending:      newMailbox[Event](),
		events:       make(chan Event, eventBufferSize),
		closed:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("local", string(local))
	m.registry = NewRegistry(m.spawn, m.logger)

	m.wg.Add(1)
	go m.pumpEvents()

	if m.reapInterval > 0 {
		m.wg.Add(1)
		go m.reapLoop()
	}
	return m
}

func (m *Manager) spawn(remote PeerID, role Role) *NegotiationState {
	return newNegotiationState(stateConfig{
		local:   m.local,
		remote:  remote,
		factory: m.factory,
		relay:   m.relay,
		logger:  m.logger,
		notify:  m.publish,
		timeout: m.timeout,
	}, role)
}

// LocalID returns the local peer id.
func (m *Manager) LocalID() PeerID {
	return m.local
}

// Events delivers session notifications in the order sessions produced
// them. The channel is closed after Close.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// EnsureSession returns a handle to the session with remote, starting
// negotiation as initiator if no live session exists. Repeated calls while
// a session is live have no further effect.
func (m *Manager) EnsureSession(remote PeerID) (*Handle, error) {
	if m.isClosed() {
		return nil, NewError("ensure session", remote, ErrManagerClosed)
	}
	if err := m.validatePeer("ensure session", remote); err != nil {
		return nil, err
	}

	s, created := m.registry.Ensure(remote, RoleInitiator)
	if created {
		m.logger.Debug("session created", "peer", string(remote), "role", s.Role().String())
	}
	return &Handle{manager: m, remote: remote}, nil
}

// HandleInboundSignal routes an envelope received from the relay to the
// session for its sender, creating a responder session when needed.
func (m *Manager) HandleInboundSignal(env Envelope) error {
	if m.isClosed() {
		return NewError("handle signal", env.From, ErrManagerClosed)
	}
	if env.To != m.local {
		m.logger.Warn("dropping misaddressed envelope", "from", string(env.From), "to", string(env.To))
		return WrapError("handle signal", env.From, ErrMisaddressed, "to "+string(env.To))
	}
	if err := m.validatePeer("handle signal", env.From); err != nil {
		return err
	}
	if env.Signal == nil {
		return WrapError("handle signal", env.From, ErrSignalApplyFailed, "empty envelope")
	}

	s, created := m.registry.Ensure(env.From, RoleResponder)
	if created {
		m.logger.Debug("session created", "peer", string(env.From), "role", RoleResponder.String(), "kind", env.Kind().String())
	}
	s.deliver(env.Signal)
	return nil
}

// Send writes payload to remote's open channel.
func (m *Manager) Send(remote PeerID, payload []byte) error {
	s, ok := m.registry.Get(remote)
	if !ok {
		return NewError("send", remote, ErrNotConnected)
	}
	return s.send(payload)
}

// CloseSession closes and forgets the session with remote.
func (m *Manager) CloseSession(remote PeerID) bool {
	return m.registry.Remove(remote)
}

// Status returns the phase of remote's session.
func (m *Manager) Status(remote PeerID) (Phase, bool) {
	s, ok := m.registry.Get(remote)
	if !ok {
		return PhaseClosed, false
	}
	return s.Phase(), true
}

// Sessions returns a snapshot of every session sorted by peer.
func (m *Manager) Sessions() []SessionInfo {
	return m.registry.Sessions()
}

// Reap removes zombie sessions now instead of waiting for the next tick.
func (m *Manager) Reap() []PeerID {
	return m.registry.Reap()
}

// Close closes every session and stops background work. Events is closed
// once the pending notifications have been dropped.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.registry.CloseAll()
		close(m.closed)
		m.pending.Close()
		m.wg.Wait()
	})
}

func (m *Manager) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

func (m *Manager) validatePeer(op string, remote PeerID) error {
	if remote == "" {
		return WrapError(op, remote, ErrInvalidPeer, "empty id")
	}
	if remote == m.local {
		return WrapError(op, remote, ErrInvalidPeer, "local id")
	}
	return nil
}

// publish never blocks; sessions call it while holding registry locks.
func (m *Manager) publish(ev Event) {
	m.pending.Post(ev)
}

func (m *Manager) pumpEvents() {
	defer m.wg.Done()
	defer close(m.events)

	for {
		select {
		case <-m.closed:
			return
		case <-m.pending.Ready():
			for _, ev := range m.pending.Drain() {
				select {
				case m.events <- ev:
				case <-m.closed:
					return
				}
			}
		}
	}
}

func (m *Manager) reapLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.closed:
			return
		case <-ticker.C:
			if reaped := m.registry.Reap(); len(reaped) > 0 {
				m.logger.Debug("reaped sessions", "count", len(reaped))
			}
		}
	}
}

// Handle is a caller's reference to one remote peer's session.
type Handle struct {
	manager *Manager
	remote  PeerID
}

// Peer returns the remote peer id.
func (h *Handle) Peer() PeerID {
	return h.remote
}

// Phase returns the current phase, or PhaseClosed if the session is gone.
func (h *Handle) Phase() Phase {
	phase, _ := h.manager.Status(h.remote)
	return phase
}

// Send writes payload on the session's channel.
func (h *Handle) Send(payload []byte) error {
	return h.manager.Send(h.remote, payload)
}

// Close closes the session.
func (h *Handle) Close() {
	h.manager.CloseSession(h.remote)
}
