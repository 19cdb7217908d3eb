package signaling

import "encoding/json"

// Message types exchanged with clients.
const (
	MessageTypeRegister  = "register"
	MessageTypePeerList  = "peer_list"
	MessageTypeGlobalMsg = "global_msg"
	MessageTypeSignal    = "signal"
	MessageTypeError     = "error"
)

// SystemSender is the From value of messages generated by the server.
const SystemSender = "system"

// Message defines the structure for all C2S (Client to Server)
// and S2C (Server to Client) websocket messages.
type Message struct {
	Type    string          `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// client is the client that sent the message.
	// It's used internally by the Hub and not sent over JSON.
	client *Client `json:"-"`
}

// RegisterPayload announces a display name.
type RegisterPayload struct {
	Username string `json:"username"`
}

// PeerInfo describes one registered peer in a peer_list.
type PeerInfo struct {
	PeerID   string `json:"peer_id"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

// PeerListPayload is the body of a peer_list message.
type PeerListPayload struct {
	Peers []PeerInfo `json:"peers"`
}

// ErrorPayload is the body of an error message.
type ErrorPayload struct {
	Error string `json:"error"`
}

func errorMessage(text string) *Message {
	payload, _ := json.Marshal(ErrorPayload{Error: text})
	return &Message{Type: MessageTypeError, From: SystemSender, Payload: payload}
}
