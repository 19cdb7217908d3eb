package ui

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/Warpchat/cli/internal/chat"
	"github.com/BioHazard786/Warpchat/cli/internal/peer"
	"github.com/BioHazard786/Warpchat/cli/internal/signaling"
)

type fakeBackend struct {
	mu      sync.Mutex
	peers   []signaling.PeerInfo
	phases  map[peer.PeerID]peer.Phase
	private map[peer.PeerID][]string
	global  []string
	sendErr error
	events  chan chat.Event
}

func newFakeBackend(peers ...signaling.PeerInfo) *fakeBackend {
	return &fakeBackend{
		peers:   peers,
		phases:  make(map[peer.PeerID]peer.Phase),
		private: make(map[peer.PeerID][]string),
		events:  make(chan chat.Event, 8),
	}
}

func (b *fakeBackend) LocalID() peer.PeerID      { return "peer-self" }
func (b *fakeBackend) Username() string          { return "me" }
func (b *fakeBackend) Events() <-chan chat.Event { return b.events }

func (b *fakeBackend) Peers() []signaling.PeerInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]signaling.PeerInfo(nil), b.peers...)
}

func (b *fakeBackend) Status(id peer.PeerID) (peer.Phase, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.phases[id]
	return p, ok
}

func (b *fakeBackend) SendPrivate(id peer.PeerID, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.private[id] = append(b.private[id], text)
	return nil
}

func (b *fakeBackend) SendGlobal(text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.global = append(b.global, text)
	return nil
}

var (
	birch = signaling.PeerInfo{PeerID: "peer-b", Username: "birch", Status: "online"}
	cedar = signaling.PeerInfo{PeerID: "peer-c", Username: "cedar", Status: "online"}
)

func key(t tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: t}
}

func typeAndSend(m *ChatModel, text string) {
	m.input.SetValue(text)
	m.Update(key(tea.KeyEnter))
}

func TestTabCyclesConversations(t *testing.T) {
	m := NewChatModel(newFakeBackend(birch, cedar))

	want := []peer.PeerID{"peer-b", "peer-c", "", "peer-b"}
	for _, id := range want {
		m.Update(key(tea.KeyTab))
		if got := m.Active(); got != id {
			t.Fatalf("active after tab = %q, want %q", got, id)
		}
	}

	m.Update(key(tea.KeyShiftTab))
	if got := m.Active(); got != "" {
		t.Fatalf("active after shift+tab = %q, want global", got)
	}
}

func TestEnterRoutesByConversation(t *testing.T) {
	b := newFakeBackend(birch)
	m := NewChatModel(b)

	typeAndSend(m, "hello all")
	if len(b.global) != 1 || b.global[0] != "hello all" {
		t.Fatalf("global sends = %v", b.global)
	}
	if m.input.Value() != "" {
		t.Fatalf("input not cleared")
	}

	m.Update(key(tea.KeyTab))
	typeAndSend(m, "  hi birch  ")
	if got := b.private["peer-b"]; len(got) != 1 || got[0] != "hi birch" {
		t.Fatalf("private sends = %v", got)
	}
	if lines := m.transcripts["peer-b"]; len(lines) != 1 || !lines[0].self {
		t.Fatalf("transcript = %+v", lines)
	}

	typeAndSend(m, "   ")
	if len(b.private["peer-b"]) != 1 {
		t.Fatalf("blank line was sent")
	}
}

func TestSendFailureKeepsInput(t *testing.T) {
	b := newFakeBackend(birch)
	b.sendErr = errors.New("outbox full")
	m := NewChatModel(b)

	m.Update(key(tea.KeyTab))
	typeAndSend(m, "retry me")
	if m.input.Value() != "retry me" {
		t.Fatalf("input = %q, want it kept", m.input.Value())
	}
	if !m.statusIsErr || !strings.Contains(m.status, "outbox full") {
		t.Fatalf("status = %q", m.status)
	}
}

func TestIncomingEvents(t *testing.T) {
	b := newFakeBackend(birch)
	m := NewChatModel(b)

	m.Update(chatEventMsg(chat.Event{Kind: chat.EventPrivate, Peer: "peer-b", Username: "birch", Text: "psst", Time: time.Now()}))
	if m.unread["peer-b"] != 1 {
		t.Fatalf("unread = %d", m.unread["peer-b"])
	}

	m.Update(chatEventMsg(chat.Event{Kind: chat.EventGlobal, Peer: "peer-self", Username: "me", Text: "echo", Time: time.Now()}))
	if lines := m.transcripts[""]; len(lines) != 1 || !lines[0].self {
		t.Fatalf("global transcript = %+v", lines)
	}

	m.Update(key(tea.KeyTab))
	if m.unread["peer-b"] != 0 {
		t.Fatalf("unread not cleared on switch")
	}
	if !strings.Contains(m.View(), "psst") {
		t.Fatalf("view does not show the private line")
	}
}

func TestDepartedPeerKeepsHistory(t *testing.T) {
	b := newFakeBackend(birch, cedar)
	m := NewChatModel(b)

	m.Update(chatEventMsg(chat.Event{Kind: chat.EventPrivate, Peer: "peer-b", Username: "birch", Text: "bye", Time: time.Now()}))
	m.Update(key(tea.KeyTab))
	m.Update(chatEventMsg(chat.Event{Kind: chat.EventPeers, Peers: []signaling.PeerInfo{cedar}}))

	if m.Active() != "peer-b" {
		t.Fatalf("active = %q, want the departed peer to stay selected", m.Active())
	}
	var gone bool
	for _, c := range m.convs {
		if c.id == "peer-b" {
			gone = c.gone
		}
	}
	if !gone {
		t.Fatalf("departed conversation not marked gone: %+v", m.convs)
	}
}

func TestSessionStatusInSidebar(t *testing.T) {
	b := newFakeBackend(birch)
	b.phases["peer-b"] = peer.PhaseConnected
	m := NewChatModel(b)
	if !strings.Contains(m.View(), "connected") {
		t.Fatalf("sidebar does not show session status")
	}
}

func TestDisconnectBlocksSending(t *testing.T) {
	b := newFakeBackend()
	m := NewChatModel(b)
	m.Update(chatClosedMsg{})
	typeAndSend(m, "anyone?")
	if len(b.global) != 0 {
		t.Fatalf("sent while disconnected")
	}
}

func TestCtrlCQuits(t *testing.T) {
	m := NewChatModel(newFakeBackend())
	_, cmd := m.Update(key(tea.KeyCtrlC))
	if cmd == nil {
		t.Fatalf("ctrl+c returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("ctrl+c did not quit")
	}
}

func TestPeersTable(t *testing.T) {
	out := PeersTableView("Online", []PeerRow{{Username: "birch", PeerID: "peer-b", Status: "online"}})
	for _, want := range []string{"birch", "peer-b", "online"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(PeersTableView("Online", nil), "No one") {
		t.Fatalf("empty table message missing")
	}
}
