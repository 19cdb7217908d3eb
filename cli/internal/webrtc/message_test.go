package webrtc

import "testing"

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	if _, err := DecodeMessage([]byte{0xc1}); err == nil {
		t.Fatalf("DecodeMessage accepted an invalid frame")
	}
}

func TestChatFrame(t *testing.T) {
	frame, err := EncodeChat(ChatPayload{Sender: "peer-a", Content: "hi", Timestamp: 1700000000000})
	if err != nil {
		t.Fatalf("EncodeChat: %v", err)
	}
	msg, err := DecodeMessage(frame)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if msg.Type != MessageTypePrivateChat {
		t.Fatalf("Type = %q", msg.Type)
	}
	var p ChatPayload
	if err := msg.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.Sender != "peer-a" || p.Content != "hi" || p.SentAt().UnixMilli() != 1700000000000 {
		t.Fatalf("payload = %+v", p)
	}
}
