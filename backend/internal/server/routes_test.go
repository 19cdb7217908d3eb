package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Warpchat/backend/internal/signaling"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := signaling.NewHub(logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(hub, logger))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, peerID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?peer_id=" + peerID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", peerID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg signaling.Message) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// expect reads until a message of type typ arrives.
func expect(t *testing.T, conn *websocket.Conn, typ string) signaling.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg signaling.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if msg.Type == typ {
			return msg
		}
	}
}

func register(t *testing.T, conn *websocket.Conn, username string) {
	t.Helper()
	payload, _ := json.Marshal(signaling.RegisterPayload{Username: username})
	send(t, conn, signaling.Message{Type: signaling.MessageTypeRegister, Payload: payload})
}

func peerList(t *testing.T, conn *websocket.Conn, want int) []signaling.PeerInfo {
	t.Helper()
	for {
		msg := expect(t, conn, signaling.MessageTypePeerList)
		var p signaling.PeerListPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			t.Fatalf("decode peer list: %v", err)
		}
		if len(p.Peers) == want {
			return p.Peers
		}
	}
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestServeWsRequiresPeerID(t *testing.T) {
	srv := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("dial without peer_id succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("response = %v, want 400", resp)
	}
}

func TestRegisterBroadcastsPeerList(t *testing.T) {
	srv := newTestServer(t)
	a := dial(t, srv, "peer-a")
	b := dial(t, srv, "peer-b")

	register(t, a, "amber")
	peerList(t, a, 1)
	register(t, b, "")

	peers := peerList(t, a, 2)
	var anonymous string
	for _, p := range peers {
		if p.Status != signaling.StatusOnline {
			t.Fatalf("status = %q", p.Status)
		}
		if p.PeerID == "peer-b" {
			anonymous = p.Username
		}
	}
	if anonymous == "" || !strings.Contains(anonymous, "-") {
		t.Fatalf("generated username = %q", anonymous)
	}

	b.Close()
	peers = peerList(t, a, 1)
	if peers[0].PeerID != "peer-a" || peers[0].Username != "amber" {
		t.Fatalf("remaining peer = %+v", peers[0])
	}
}

func TestSignalRoutedToTarget(t *testing.T) {
	srv := newTestServer(t)
	a := dial(t, srv, "peer-a")
	b := dial(t, srv, "peer-b")
	register(t, a, "amber")
	register(t, b, "birch")
	peerList(t, a, 2)

	payload := json.RawMessage(`{"kind":"candidate","candidate":{"candidate":"x"}}`)
	send(t, a, signaling.Message{Type: signaling.MessageTypeSignal, From: "spoofed", To: "peer-b", Payload: payload})

	msg := expect(t, b, signaling.MessageTypeSignal)
	if msg.From != "peer-a" || msg.To != "peer-b" {
		t.Fatalf("routing = %s -> %s", msg.From, msg.To)
	}
	if string(msg.Payload) != string(payload) {
		t.Fatalf("payload = %s", msg.Payload)
	}

	send(t, a, signaling.Message{Type: signaling.MessageTypeSignal, To: "peer-z", Payload: payload})
	errMsg := expect(t, a, signaling.MessageTypeError)
	var e signaling.ErrorPayload
	if err := json.Unmarshal(errMsg.Payload, &e); err != nil || e.Error != "peer not found" {
		t.Fatalf("error payload = %s (%v)", errMsg.Payload, err)
	}
}

func TestGlobalMessageReachesEveryone(t *testing.T) {
	srv := newTestServer(t)
	a := dial(t, srv, "peer-a")
	b := dial(t, srv, "peer-b")
	register(t, a, "amber")
	register(t, b, "birch")
	peerList(t, b, 2)

	payload := json.RawMessage(`{"text":"hello all"}`)
	send(t, a, signaling.Message{Type: signaling.MessageTypeGlobalMsg, Payload: payload})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := expect(t, conn, signaling.MessageTypeGlobalMsg)
		if msg.From != "peer-a" || string(msg.Payload) != string(payload) {
			t.Fatalf("global message = %+v", msg)
		}
	}
}

func TestDuplicatePeerIDReplacesConnection(t *testing.T) {
	srv := newTestServer(t)
	first := dial(t, srv, "peer-a")
	register(t, first, "amber")
	peerList(t, first, 1)

	second := dial(t, srv, "peer-a")
	register(t, second, "amber-2")
	peers := peerList(t, second, 1)
	if peers[0].Username != "amber-2" {
		t.Fatalf("username = %q", peers[0].Username)
	}

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}
}

func TestDuplicatePeerIDKeepsPresence(t *testing.T) {
	srv := newTestServer(t)
	observer := dial(t, srv, "peer-o")
	register(t, observer, "oak")
	first := dial(t, srv, "peer-a")
	register(t, first, "amber")
	peerList(t, observer, 2)

	second := dial(t, srv, "peer-a")
	register(t, second, "amber-2")

	for {
		msg := expect(t, observer, signaling.MessageTypePeerList)
		var p signaling.PeerListPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			t.Fatalf("decode peer list: %v", err)
		}
		if len(p.Peers) != 2 {
			t.Fatalf("peer list during reconnect = %+v, want peer-a kept", p.Peers)
		}
		if p.Peers[0].PeerID == "peer-a" && p.Peers[0].Username == "amber-2" {
			break
		}
	}

	// The replaced connection closing must not take peer-a offline.
	first.Close()
	payload := json.RawMessage(`{"username":"oak","content":"still there?","timestamp":1}`)
	send(t, observer, signaling.Message{Type: signaling.MessageTypeGlobalMsg, Payload: payload})
	observer.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg signaling.Message
		if err := observer.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for global echo: %v", err)
		}
		switch msg.Type {
		case signaling.MessageTypePeerList:
			var p signaling.PeerListPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil || len(p.Peers) != 2 {
				t.Fatalf("peer list after old connection closed = %s", msg.Payload)
			}
		case signaling.MessageTypeGlobalMsg:
			return
		}
	}
}
