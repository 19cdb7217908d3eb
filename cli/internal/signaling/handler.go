package signaling

import (
	"encoding/json"
	"log/slog"

	"github.com/BioHazard786/Warpchat/cli/internal/peer"
)

// Handler routes incoming signaling messages to appropriate channels.
type Handler struct {
	client   *Client
	logger   *slog.Logger
	Signal   chan peer.Envelope
	PeerList chan []PeerInfo
	Global   chan GlobalMessage
	Error    chan string
}

// NewHandler creates a new message handler.
func NewHandler(client *Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		client:   client,
		logger:   logger,
		Signal:   make(chan peer.Envelope, 64),
		PeerList: make(chan []PeerInfo, 4),
		Global:   make(chan GlobalMessage, 32),
		Error:    make(chan string, 8),
	}
}

// Start begins listening to incoming messages and routing them. It returns
// and closes every channel once the connection ends.
func (h *Handler) Start() {
	defer h.close()

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case MessageTypeSignal:
			h.handleSignal(msg)

		case MessageTypePeerList:
			h.handlePeerList(msg)

		case MessageTypeGlobalMsg:
			h.handleGlobal(msg)

		case MessageTypeError:
			h.handleError(msg)

		default:
			h.logger.Debug("ignoring message", "type", msg.Type)
		}
	}
}

// handleSignal decodes a peer envelope and hands it on.
func (h *Handler) handleSignal(msg *Message) {
	env, err := DecodeEnvelope(msg)
	if err != nil {
		h.logger.Warn("dropping signal", "from", msg.From, "error", err)
		return
	}
	select {
	case h.Signal <- env:
	case <-h.client.done:
	}
}

func (h *Handler) handlePeerList(msg *Message) {
	var p PeerListPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		h.logger.Warn("dropping peer list", "error", err)
		return
	}
	select {
	case h.PeerList <- p.Peers:
	case <-h.client.done:
	}
}

func (h *Handler) handleGlobal(msg *Message) {
	var p GlobalPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		h.logger.Warn("dropping global message", "from", msg.From, "error", err)
		return
	}
	select {
	case h.Global <- GlobalMessage{From: msg.From, GlobalPayload: p}:
	case <-h.client.done:
	}
}

// handleError parses the error message and sends it through the Error channel.
func (h *Handler) handleError(msg *Message) {
	text := "Unknown error from server"
	var errPayload ErrorPayload
	if err := json.Unmarshal(msg.Payload, &errPayload); err == nil && errPayload.Error != "" {
		text = errPayload.Error
	}
	select {
	case h.Error <- text:
	case <-h.client.done:
	}
}

func (h *Handler) close() {
	close(h.Signal)
	close(h.PeerList)
	close(h.Global)
	close(h.Error)
}
