package peer

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry maps remote peers to their sessions. At most one live session
// exists per peer; Failed and Closed entries are zombies that the next
// Ensure or Reap removes.
type Registry struct {
	mu      sync.Mutex
	entries map[PeerID]*NegotiationState
	spawn   func(remote PeerID, role Role) *NegotiationState
	logger  *slog.Logger
}

// NewRegistry creates a registry that builds new sessions with spawn.
func NewRegistry(spawn func(remote PeerID, role Role) *NegotiationState, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[PeerID]*NegotiationState),
		spawn:   spawn,
		logger:  logger,
	}
}

// Get returns the session for remote, if any.
func (r *Registry) Get(remote PeerID) (*NegotiationState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.entries[remote]
	return s, ok
}

// Ensure returns the live session for remote, creating one with role if
// none exists. A zombie entry is replaced atomically with the creation, so
// two concurrent callers cannot both create. The zombie's SessionClosed is
// published before the new session's first event. Ensuring with
// RoleInitiator on an idle entry starts the offer. The bool reports whether
// a new session was created.
func (r *Registry) Ensure(remote PeerID, role Role) (*NegotiationState, bool) {
	var (
		zombie *NegotiationState
		stale  Transport
	)
	defer func() {
		if zombie != nil {
			zombie.releaseTransport(stale)
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.entries[remote]; ok {
		phase := s.Phase()
		if !phase.Terminal() {
			if role == RoleInitiator && phase == PhaseIdle {
				s.beginOffer()
			}
			return s, false
		}
		r.logger.Debug("reaping session", "peer", string(remote), "phase", phase.String())
		delete(r.entries, remote)
		zombie = s
		stale = s.retire()
	}

	s := r.spawn(remote, role)
	r.insertLocked(remote, s)
	if role == RoleInitiator {
		s.beginOffer()
	}
	return s, true
}

// insertLocked panics if a live entry already exists: the caller broke the
// one-session-per-peer rule.
func (r *Registry) insertLocked(remote PeerID, s *NegotiationState) {
	if existing, ok := r.entries[remote]; ok && existing != s {
		panic(NewError("insert session", remote, ErrDuplicateSession))
	}
	r.entries[remote] = s
}

// Remove closes and deletes the session for remote. It reports whether one
// existed.
func (r *Registry) Remove(remote PeerID) bool {
	r.mu.Lock()
	s, ok := r.entries[remote]
	delete(r.entries, remote)
	r.mu.Unlock()

	if ok {
		s.Close()
	}
	return ok
}

// Reap closes and removes every Failed or Closed entry and returns their
// peers.
func (r *Registry) Reap() []PeerID {
	var reaped []*NegotiationState

	r.mu.Lock()
	for id, s := range r.entries {
		if s.Phase().Terminal() {
			delete(r.entries, id)
			reaped = append(reaped, s)
		}
	}
	r.mu.Unlock()

	ids := make([]PeerID, 0, len(reaped))
	for _, s := range reaped {
		s.Close()
		ids = append(ids, s.Remote())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CloseAll closes and removes every entry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*NegotiationState, 0, len(r.entries))
	for id, s := range r.entries {
		all = append(all, s)
		delete(r.entries, id)
	}
	r.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}

// Len returns the number of entries, zombies included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sessions returns a snapshot of every entry sorted by peer.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.Lock()
	states := make([]*NegotiationState, 0, len(r.entries))
	for _, s := range r.entries {
		states = append(states, s)
	}
	r.mu.Unlock()

	infos := make([]SessionInfo, 0, len(states))
	for _, s := range states {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Peer < infos[j].Peer })
	return infos
}
