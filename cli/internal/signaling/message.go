package signaling

import "encoding/json"

// Message represents all WebSocket messages between CLI and server.
type Message struct {
	Type    string          `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants.
const (
	MessageTypeRegister  = "register"
	MessageTypeGlobalMsg = "global_msg"
	MessageTypeSignal    = "signal"

	MessageTypePeerList = "peer_list"
	MessageTypeError    = "error"
)

// RegisterPayload announces our display name.
type RegisterPayload struct {
	Username string `json:"username"`
}

// PeerInfo is one entry of the server's presence list.
type PeerInfo struct {
	PeerID   string `json:"peer_id"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

// PeerListPayload is the body of a peer_list message.
type PeerListPayload struct {
	Peers []PeerInfo `json:"peers"`
}

// GlobalPayload is one line of the global room.
type GlobalPayload struct {
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// GlobalMessage is a global line together with the server-stamped sender.
type GlobalMessage struct {
	From string
	GlobalPayload
}

// ErrorPayload represents error messages from server.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewMessage builds a message with a JSON-encoded payload.
func NewMessage(typ string, payload any) (*Message, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Message{Type: typ, Payload: raw}, nil
}
