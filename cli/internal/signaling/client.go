package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/BioHazard786/Warpchat/cli/internal/dns"
	"github.com/BioHazard786/Warpchat/cli/internal/peer"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	outgoingBuffer = 64
	incomingBuffer = 64
)

var (
	ErrClientClosed   = errors.New("signaling client closed")
	ErrConnectionLost = errors.New("signaling connection lost")
)

// Client manages the WebSocket connection to the signaling server.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	peerID    string
	logger    *slog.Logger

	incoming  chan *Message
	outgoing  chan *Message
	done      chan struct{}
	closeOnce sync.Once

	// dead is closed once either pump has stopped.
	dead     chan struct{}
	deadOnce sync.Once
}

// NewClient creates a new signaling client that identifies as peerID.
func NewClient(serverURL, peerID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		serverURL: serverURL,
		peerID:    peerID,
		logger:    logger,
		incoming:  make(chan *Message, incomingBuffer),
		outgoing:  make(chan *Message, outgoingBuffer),
		done:      make(chan struct{}),
		dead:      make(chan struct{}),
	}
}

// PeerID returns the id this client registered with.
func (c *Client) PeerID() string {
	return c.peerID
}

// Connect establishes WebSocket connection to the server.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	q := u.Query()
	q.Set("peer_id", c.peerID)
	u.RawQuery = q.Encode()

	// Create a custom dialer that uses our robust DNS lookup
	dialer := *websocket.DefaultDialer
	dialer.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		// Use our custom DNS lookup with fallback
		resolvedIP, err := dns.Lookup(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed: %w", err)
		}

		// Dial the resolved IP
		var d net.Dialer
		return d.DialContext(ctx, network, net.JoinHostPort(resolvedIP, port))
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn

	c.conn.SetReadLimit(maxMessageSize)

	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.markDead()
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Debug("signaling read stopped", "error", err)
			}
			return
		}

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.markDead()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Warn("signaling write failed", "type", message.Type, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-c.dead:
			return
		}
	}
}

func (c *Client) markDead() {
	c.deadOnce.Do(func() {
		close(c.dead)
	})
}

// SendMessage queues a message for the server. It fails instead of blocking
// once the client is closed or the connection has dropped.
func (c *Client) SendMessage(msg *Message) error {
	select {
	case <-c.done:
		return ErrClientClosed
	case <-c.dead:
		return c.sendErr()
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClientClosed
	case <-c.dead:
		return c.sendErr()
	}
}

// sendErr prefers ErrClientClosed when the client was closed on purpose.
func (c *Client) sendErr() error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrConnectionLost
	}
}

// SendEnvelope routes a peer signaling envelope through the server.
func (c *Client) SendEnvelope(env peer.Envelope) error {
	msg, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

// Relay exposes the client as the peer package's outbound signaling path.
func (c *Client) Relay() peer.Relay {
	return peer.RelayFunc(c.SendEnvelope)
}

// Register announces username to the server.
func (c *Client) Register(username string) error {
	msg, err := NewMessage(MessageTypeRegister, RegisterPayload{Username: username})
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

// SendGlobal posts a line to the global room.
func (c *Client) SendGlobal(p GlobalPayload) error {
	msg, err := NewMessage(MessageTypeGlobalMsg, p)
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

// Incoming returns the channel for receiving messages.
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
