package webrtc

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Data channel message types
const (
	MessageTypePrivateChat = "private_chat"
)

// Message represents all WebRTC data channel messages
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// ChatPayload is one private chat line
type ChatPayload struct {
	Sender    string `msgpack:"sender"`
	Username  string `msgpack:"username"`
	Content   string `msgpack:"content"`
	Timestamp int64  `msgpack:"timestamp"`
}

// SentAt returns the sender's timestamp.
func (p ChatPayload) SentAt() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// DecodePayload decodes the message payload into the provided struct
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewMessage creates a new Message with the given type and payload
func NewMessage(t string, payload any) (Message, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Type:    t,
		Payload: b,
	}, nil
}

// Encode serialises the message for the data channel.
func (m Message) Encode() ([]byte, error) {
	return msgpack.Marshal(m)
}

// DecodeMessage parses one data channel frame.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	err := msgpack.Unmarshal(data, &m)
	return m, err
}

// EncodeChat builds a private_chat frame.
func EncodeChat(p ChatPayload) ([]byte, error) {
	m, err := NewMessage(MessageTypePrivateChat, p)
	if err != nil {
		return nil, err
	}
	return m.Encode()
}
