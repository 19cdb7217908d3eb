package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BioHazard786/Warpchat/cli/internal/config"
	"github.com/BioHazard786/Warpchat/cli/internal/peer"
	"github.com/BioHazard786/Warpchat/cli/internal/signaling"
	"github.com/BioHazard786/Warpchat/cli/internal/webrtc"
)

const (
	eventBuffer = 128
	outboxLimit = 256
)

var (
	ErrNodeClosed   = errors.New("chat node closed")
	ErrOutboxFull   = errors.New("outbox full")
	ErrEmptyMessage = errors.New("empty message")
	ErrNotStarted   = errors.New("chat node not started")
)

// Node ties the rendezvous connection and the peer sessions together into
// one chat participant.
type Node struct {
	cfg     *config.Config
	client  *signaling.Client
	factory peer.TransportFactory
	logger  *slog.Logger

	handler *signaling.Handler
	manager *peer.Manager

	mu       sync.Mutex
	username string
	presence map[peer.PeerID]signaling.PeerInfo
	outbox   map[peer.PeerID][][]byte

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a node. Start must be called before anything is sent.
func New(cfg *config.Config, client *signaling.Client, factory peer.TransportFactory, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{
		cfg:      cfg,
		client:   client,
		factory:  factory,
		logger:   logger,
		username: cfg.Username,
		presence: make(map[peer.PeerID]signaling.PeerInfo),
		outbox:   make(map[peer.PeerID][][]byte),
		events:   make(chan Event, eventBuffer),
		done:     make(chan struct{}),
	}
}

// Start connects to the rendezvous server, registers the username and
// begins dispatching.
func (n *Node) Start(ctx context.Context) error {
	if err := n.client.Connect(ctx); err != nil {
		return err
	}

	n.handler = signaling.NewHandler(n.client, n.logger)
	n.manager = peer.NewManager(
		n.LocalID(),
		n.client.Relay(),
		n.factory,
		peer.WithLogger(n.logger),
		peer.WithNegotiationTimeout(n.cfg.NegotiationTimeout),
		peer.WithReapInterval(n.cfg.ReapInterval),
	)

	n.wg.Add(2)
	go func() {
		defer n.wg.Done()
		n.handler.Start()
	}()
	go n.loop()

	if err := n.client.Register(n.cfg.Username); err != nil {
		n.Close()
		return fmt.Errorf("register: %w", err)
	}
	n.logger.Info("chat node started", "peer_id", n.cfg.PeerID, "username", n.cfg.Username)
	return nil
}

// LocalID returns the id this node is known by.
func (n *Node) LocalID() peer.PeerID {
	return peer.PeerID(n.client.PeerID())
}

// Username returns the display name, as assigned by the server once the
// first presence list arrives.
func (n *Node) Username() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.username
}

// Events returns the chat event stream. It is closed after Close.
func (n *Node) Events() <-chan Event {
	return n.events
}

// Peers returns everyone else currently online, ordered by username.
func (n *Node) Peers() []signaling.PeerInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.peersLocked()
}

func (n *Node) peersLocked() []signaling.PeerInfo {
	out := make([]signaling.PeerInfo, 0, len(n.presence))
	for _, p := range n.presence {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].PeerID < out[j].PeerID
	})
	return out
}

// Status reports the session phase with a peer.
func (n *Node) Status(id peer.PeerID) (peer.Phase, bool) {
	if n.manager == nil {
		return peer.PhaseIdle, false
	}
	return n.manager.Status(id)
}

// Sessions snapshots every live peer session.
func (n *Node) Sessions() []peer.SessionInfo {
	if n.manager == nil {
		return nil
	}
	return n.manager.Sessions()
}

// SendPrivate delivers text to one peer over a direct session, opening the
// session if needed. Lines written before the session connects are held and
// flushed in order once it does.
func (n *Node) SendPrivate(id peer.PeerID, text string) error {
	if text == "" {
		return ErrEmptyMessage
	}
	if n.manager == nil {
		return ErrNotStarted
	}
	if n.isClosed() {
		return ErrNodeClosed
	}

	frame, err := webrtc.EncodeChat(webrtc.ChatPayload{
		Sender:    string(n.LocalID()),
		Username:  n.Username(),
		Content:   text,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode chat: %w", err)
	}

	h, err := n.manager.EnsureSession(id)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.outbox[id]) == 0 && h.Phase() == peer.PhaseConnected {
		if err := h.Send(frame); err == nil {
			return nil
		} else if !errors.Is(err, peer.ErrNotConnected) {
			return err
		}
	}
	if len(n.outbox[id]) >= outboxLimit {
		return ErrOutboxFull
	}
	n.outbox[id] = append(n.outbox[id], frame)
	return nil
}

// SendGlobal posts text to everyone through the rendezvous server.
func (n *Node) SendGlobal(text string) error {
	if text == "" {
		return ErrEmptyMessage
	}
	if n.isClosed() {
		return ErrNodeClosed
	}
	return n.client.SendGlobal(signaling.GlobalPayload{
		Username:  n.Username(),
		Content:   text,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Pending returns how many lines are waiting for a session with id.
func (n *Node) Pending(id peer.PeerID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.outbox[id])
}

// Close tears down every session and the rendezvous connection.
func (n *Node) Close() {
	n.closeOnce.Do(func() {
		close(n.done)
		if n.manager != nil {
			n.manager.Close()
		}
		n.client.Close()
		n.wg.Wait()
		close(n.events)
		n.logger.Info("chat node closed")
	})
}

func (n *Node) isClosed() bool {
	select {
	case <-n.done:
		return true
	default:
		return false
	}
}

func (n *Node) loop() {
	defer n.wg.Done()

	signals := n.handler.Signal
	peerLists := n.handler.PeerList
	globals := n.handler.Global
	errs := n.handler.Error
	sessions := n.manager.Events()

	for {
		select {
		case <-n.done:
			return

		case env, ok := <-signals:
			if !ok {
				n.disconnected()
				return
			}
			if err := n.manager.HandleInboundSignal(env); err != nil {
				n.logger.Warn("inbound signal rejected", "from", env.From, "error", err)
			}

		case list, ok := <-peerLists:
			if !ok {
				peerLists = nil
				continue
			}
			n.updatePresence(list)

		case msg, ok := <-globals:
			if !ok {
				globals = nil
				continue
			}
			n.emit(Event{
				Kind:     EventGlobal,
				Peer:     peer.PeerID(msg.From),
				Username: msg.Username,
				Text:     msg.Content,
				Time:     time.UnixMilli(msg.Timestamp),
			})

		case text, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			n.emit(Event{Kind: EventError, Err: errors.New(text)})

		case ev, ok := <-sessions:
			if !ok {
				sessions = nil
				continue
			}
			n.handleSession(ev)
		}
	}
}

func (n *Node) disconnected() {
	n.logger.Warn("rendezvous connection lost")
	n.emit(Event{Kind: EventDisconnected})
}

// updatePresence replaces the presence list and closes sessions with peers
// that are no longer online.
func (n *Node) updatePresence(list []signaling.PeerInfo) {
	local := n.LocalID()
	self := ""
	next := make(map[peer.PeerID]signaling.PeerInfo, len(list))
	for _, p := range list {
		id := peer.PeerID(p.PeerID)
		if id == local {
			self = p.Username
		}
		if id == "" || id == local {
			continue
		}
		next[id] = p
	}

	n.mu.Lock()
	if self != "" {
		n.username = self
	}
	var gone []peer.PeerID
	for id := range n.presence {
		if _, ok := next[id]; !ok {
			gone = append(gone, id)
			delete(n.outbox, id)
		}
	}
	n.presence = next
	peers := n.peersLocked()
	n.mu.Unlock()

	for _, id := range gone {
		if n.manager.CloseSession(id) {
			n.logger.Info("closed session with departed peer", "peer", id)
		}
	}
	n.emit(Event{Kind: EventPeers, Peers: peers})
}

func (n *Node) handleSession(ev peer.Event) {
	switch ev.Kind {
	case peer.SessionConnected:
		n.flush(ev.Peer)
		n.emitSession(ev.Peer, peer.PhaseConnected, nil)

	case peer.SessionConnecting:
		n.emitSession(ev.Peer, peer.PhaseNegotiating, nil)

	case peer.SessionFailed:
		n.emitSession(ev.Peer, peer.PhaseFailed, ev.Err)

	case peer.SessionClosed:
		n.emitSession(ev.Peer, peer.PhaseClosed, nil)

	case peer.SessionMessage:
		n.handleFrame(ev.Peer, ev.Payload)
	}
}

func (n *Node) flush(id peer.PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()

	queued := n.outbox[id]
	for i, frame := range queued {
		if err := n.manager.Send(id, frame); err != nil {
			n.logger.Warn("outbox flush interrupted", "peer", id, "remaining", len(queued)-i, "error", err)
			n.outbox[id] = queued[i:]
			return
		}
	}
	delete(n.outbox, id)
}

func (n *Node) handleFrame(from peer.PeerID, data []byte) {
	msg, err := webrtc.DecodeMessage(data)
	if err != nil {
		n.logger.Warn("dropping undecodable frame", "peer", from, "error", err)
		return
	}
	switch msg.Type {
	case webrtc.MessageTypePrivateChat:
		var p webrtc.ChatPayload
		if err := msg.DecodePayload(&p); err != nil {
			n.logger.Warn("dropping malformed chat frame", "peer", from, "error", err)
			return
		}
		n.emit(Event{
			Kind:     EventPrivate,
			Peer:     from,
			Username: p.Username,
			Text:     p.Content,
			Time:     p.SentAt(),
		})
	default:
		n.logger.Debug("ignoring frame", "peer", from, "type", msg.Type)
	}
}

func (n *Node) emitSession(id peer.PeerID, phase peer.Phase, err error) {
	n.emit(Event{Kind: EventSession, Peer: id, Phase: phase, Err: err})
}

func (n *Node) emit(ev Event) {
	select {
	case n.events <- ev:
	case <-n.done:
	}
}
