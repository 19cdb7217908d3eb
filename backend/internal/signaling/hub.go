package signaling

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

// Hub is the central brain of the signaling server.
// It tracks connected clients and presence, and routes messages between
// them. All state is owned by the goroutine running Run.
type Hub struct {
	// clients maps peer ids to their live connection.
	clients map[string]*Client

	// presence holds registered peers.
	presence *Presence

	// register is a channel for registering new clients.
	Register chan *Client

	// unregister is a channel for unregistering clients.
	Unregister chan *Client

	// broadcast is a channel for clients to broadcast messages to.
	// The hub will process these messages.
	Broadcast chan *Message

	// names proposes usernames for peers that register without one.
	names func() string

	logger *slog.Logger
	done   chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		presence:   NewPresence(),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *Message),
		names:      petnameSource,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Connect hands a new client to the hub. It reports false once the hub has
// stopped.
func (h *Hub) Connect(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) dispatch(m *Message) bool {
	select {
	case h.Broadcast <- m:
		return true
	case <-h.done:
		return false
	}
}

// Run starts the hub's main processing loop.
// This is the single goroutine that safely manages all state (clients, presence).
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for _, c := range h.clients {
			h.closeClient(c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.handleConnect(client)

		case client := <-h.Unregister:
			h.handleDisconnect(client)

		case message := <-h.Broadcast:
			h.handleMessage(message)
		}
	}
}

func (h *Hub) handleConnect(c *Client) {
	if old, ok := h.clients[c.PeerID]; ok {
		// The same id reconnected; the newer connection wins and takes
		// over the presence entry, so the peer never appears to leave.
		h.logger.Info("replacing connection", "peer", c.PeerID)
		h.closeClient(old)
		if old.registered {
			c.Username = old.Username
			c.registered = true
		}
	}
	h.clients[c.PeerID] = c
	h.logger.Info("client connected", "peer", c.PeerID, "remote", remoteAddr(c))
}

func (h *Hub) handleDisconnect(c *Client) {
	if h.clients[c.PeerID] != c {
		h.closeClient(c)
		return
	}
	h.drop(c)
	h.logger.Info("client disconnected", "peer", c.PeerID)
}

// drop forgets a client and tells everyone if it was registered.
func (h *Hub) drop(c *Client) {
	if h.clients[c.PeerID] == c {
		delete(h.clients, c.PeerID)
	}
	h.closeClient(c)
	if c.registered && h.presence.Remove(c.PeerID) {
		h.broadcastPeerList()
	}
}

func (h *Hub) handleMessage(m *Message) {
	c := m.client
	if c == nil || h.clients[c.PeerID] != c {
		return
	}
	h.logger.Debug("message received", "type", m.Type, "peer", c.PeerID)

	switch m.Type {
	case MessageTypeRegister:
		var p RegisterPayload
		if len(m.Payload) > 0 {
			if err := json.Unmarshal(m.Payload, &p); err != nil {
				h.send(c, errorMessage("invalid register payload"))
				return
			}
		}
		name := strings.TrimSpace(p.Username)
		if name == "" {
			name = h.generateUsername(c.PeerID)
		}
		c.Username = name
		c.registered = true
		h.presence.Add(c.PeerID, name)
		h.logger.Info("peer registered", "peer", c.PeerID, "username", name)
		h.broadcastPeerList()

	case MessageTypeGlobalMsg:
		if !c.registered {
			h.send(c, errorMessage("register first"))
			return
		}
		out := &Message{Type: MessageTypeGlobalMsg, From: c.PeerID, Payload: m.Payload}
		for _, other := range h.clients {
			if other.registered {
				h.send(other, out)
			}
		}

	case MessageTypeSignal:
		if m.To == "" {
			h.send(c, errorMessage("signal without target"))
			return
		}
		target, ok := h.clients[m.To]
		if !ok {
			h.logger.Debug("signal target not found", "from", c.PeerID, "to", m.To)
			h.send(c, errorMessage("peer not found"))
			return
		}
		h.send(target, &Message{Type: MessageTypeSignal, From: c.PeerID, To: m.To, Payload: m.Payload})

	default:
		h.logger.Warn("unknown message type", "type", m.Type, "peer", c.PeerID)
		h.send(c, errorMessage("unknown message type"))
	}
}

func (h *Hub) broadcastPeerList() {
	payload, err := json.Marshal(PeerListPayload{Peers: h.presence.List()})
	if err != nil {
		h.logger.Error("encode peer list", "error", err)
		return
	}
	msg := &Message{Type: MessageTypePeerList, From: SystemSender, Payload: payload}
	for _, c := range h.clients {
		h.send(c, msg)
	}
}

// send never blocks the hub; a client that cannot keep up is dropped.
func (h *Hub) send(c *Client, m *Message) {
	if c.closed {
		return
	}
	select {
	case c.Send <- m:
	default:
		h.logger.Warn("send buffer full, dropping client", "peer", c.PeerID)
		h.drop(c)
	}
}

func (h *Hub) closeClient(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

func remoteAddr(c *Client) string {
	if c.Conn == nil {
		return ""
	}
	return c.Conn.RemoteAddr().String()
}
