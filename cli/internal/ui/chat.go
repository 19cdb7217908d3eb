package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BioHazard786/Warpchat/cli/internal/chat"
	"github.com/BioHazard786/Warpchat/cli/internal/peer"
	"github.com/BioHazard786/Warpchat/cli/internal/signaling"
)

const (
	sidebarWidth = 30
	chromeHeight = 7
	maxLines     = 500
)

// ChatBackend is what the chat screen drives. *chat.Node satisfies it.
type ChatBackend interface {
	LocalID() peer.PeerID
	Username() string
	Events() <-chan chat.Event
	Peers() []signaling.PeerInfo
	Status(id peer.PeerID) (peer.Phase, bool)
	SendPrivate(id peer.PeerID, text string) error
	SendGlobal(text string) error
}

type chatEventMsg chat.Event

type chatClosedMsg struct{}

type line struct {
	at   time.Time
	from string
	self bool
	text string
	note bool
}

// conversation is a tab; the empty id is the global room.
type conversation struct {
	id    peer.PeerID
	title string
	gone  bool
}

// ChatModel is the Bubble Tea model for the chat screen.
type ChatModel struct {
	backend ChatBackend

	convs       []conversation
	active      int
	transcripts map[peer.PeerID][]line
	unread      map[peer.PeerID]int

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	status       string
	statusIsErr  bool
	disconnected bool
	width        int
	height       int
	quitting     bool
}

// NewChatModel creates the chat screen for backend.
func NewChatModel(backend ChatBackend) *ChatModel {
	in := textinput.New()
	in.Placeholder = "Type a message"
	in.CharLimit = 2000
	in.Prompt = "› "
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	m := &ChatModel{
		backend:     backend,
		convs:       []conversation{{title: "global"}},
		transcripts: make(map[peer.PeerID][]line),
		unread:      make(map[peer.PeerID]int),
		input:       in,
		viewport:    viewport.New(80, 20),
		spinner:     s,
	}
	m.setPeers(backend.Peers())
	return m
}

func (m *ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForEvent())
}

func (m *ChatModel) waitForEvent() tea.Cmd {
	events := m.backend.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return chatClosedMsg{}
		}
		return chatEventMsg(ev)
	}
}

// Active returns the id of the selected conversation, empty for global.
func (m *ChatModel) Active() peer.PeerID {
	return m.convs[m.active].id
}

func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyTab:
			m.switchTo((m.active + 1) % len(m.convs))
			return m, nil
		case tea.KeyShiftTab:
			m.switchTo((m.active - 1 + len(m.convs)) % len(m.convs))
			return m, nil
		case tea.KeyEnter:
			m.submit()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case chatEventMsg:
		m.handleEvent(chat.Event(msg))
		return m, m.waitForEvent()

	case chatClosedMsg:
		m.disconnected = true
		m.setStatus("Disconnected", true)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *ChatModel) resize(width, height int) {
	m.width, m.height = width, height
	m.viewport.Width = max(20, width-sidebarWidth-6)
	m.viewport.Height = max(3, height-chromeHeight)
	m.input.Width = max(10, width-sidebarWidth-8)
	m.refresh()
}

func (m *ChatModel) switchTo(i int) {
	m.active = i
	delete(m.unread, m.Active())
	m.refresh()
}

func (m *ChatModel) submit() {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return
	}
	if m.disconnected {
		m.setStatus("Not connected to the server", true)
		return
	}

	id := m.Active()
	var err error
	if id == "" {
		// The server echoes global lines back to the sender.
		err = m.backend.SendGlobal(text)
	} else {
		err = m.backend.SendPrivate(id, text)
		if err == nil {
			m.appendLine(id, line{at: time.Now(), from: m.backend.Username(), self: true, text: text})
		}
	}
	if err != nil {
		m.setStatus(fmt.Sprintf("Send failed: %v", err), true)
		return
	}
	m.input.Reset()
	m.setStatus("", false)
}

func (m *ChatModel) handleEvent(ev chat.Event) {
	switch ev.Kind {
	case chat.EventPeers:
		m.setPeers(ev.Peers)

	case chat.EventGlobal:
		m.appendLine("", line{
			at:   ev.Time,
			from: ev.Username,
			self: ev.Peer == m.backend.LocalID(),
			text: ev.Text,
		})

	case chat.EventPrivate:
		m.ensureConversation(ev.Peer, ev.Username)
		m.appendLine(ev.Peer, line{at: ev.Time, from: ev.Username, text: ev.Text})

	case chat.EventSession:
		switch ev.Phase {
		case peer.PhaseConnected:
			m.appendLine(ev.Peer, line{at: time.Now(), note: true, text: IconLock + " direct connection established"})
		case peer.PhaseFailed:
			note := "connection failed"
			if ev.Err != nil {
				note = fmt.Sprintf("connection failed: %v", ev.Err)
			}
			m.appendLine(ev.Peer, line{at: time.Now(), note: true, text: note})
		}

	case chat.EventError:
		m.setStatus(ev.Err.Error(), true)

	case chat.EventDisconnected:
		m.disconnected = true
		m.setStatus("Lost connection to the server", true)
	}
	m.refresh()
}

// setPeers rebuilds the tab list from presence. Conversations with history
// outlive their peer and are marked as gone.
func (m *ChatModel) setPeers(peers []signaling.PeerInfo) {
	active := m.Active()
	online := make(map[peer.PeerID]bool, len(peers))

	convs := []conversation{{title: "global"}}
	for _, p := range peers {
		id := peer.PeerID(p.PeerID)
		online[id] = true
		convs = append(convs, conversation{id: id, title: p.Username})
	}
	for _, c := range m.convs[1:] {
		if !online[c.id] && len(m.transcripts[c.id]) > 0 {
			c.gone = true
			convs = append(convs, c)
		}
	}

	m.convs = convs
	m.active = 0
	for i, c := range convs {
		if c.id == active {
			m.active = i
		}
	}
}

func (m *ChatModel) ensureConversation(id peer.PeerID, username string) {
	for i, c := range m.convs {
		if c.id == id {
			if c.title == "" {
				m.convs[i].title = username
			}
			return
		}
	}
	m.convs = append(m.convs, conversation{id: id, title: username})
}

func (m *ChatModel) appendLine(id peer.PeerID, l line) {
	lines := append(m.transcripts[id], l)
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	m.transcripts[id] = lines
	if id != m.Active() && !l.note {
		m.unread[id]++
	}
	m.refresh()
}

func (m *ChatModel) setStatus(s string, isErr bool) {
	m.status, m.statusIsErr = s, isErr
}

func (m *ChatModel) refresh() {
	var b strings.Builder
	wrap := lipgloss.NewStyle().Width(m.viewport.Width)
	for _, l := range m.transcripts[m.Active()] {
		b.WriteString(wrap.Render(renderLine(l)))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func renderLine(l line) string {
	stamp := TimestampStyle.Render(l.at.Format("15:04"))
	if l.note {
		return fmt.Sprintf("%s %s", stamp, MutedStyle.Italic(true).Render(l.text))
	}
	name := PeerNameStyle.Render(l.from)
	if l.self {
		name = SelfNameStyle.Render(l.from)
	}
	return fmt.Sprintf("%s %s: %s", stamp, name, l.text)
}

func (m *ChatModel) View() string {
	if m.quitting {
		return ""
	}

	header := HeaderStyle.Render(fmt.Sprintf("WarpChat · %s", m.backend.Username()))

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		SidebarStyle.Width(sidebarWidth).Height(m.viewport.Height).Render(m.sidebarView()),
		TranscriptStyle.Render(m.viewport.View()),
	)

	footer := FooterStyle.Render("tab/shift+tab switch • enter send • ctrl+c quit")
	if m.status != "" {
		style := MutedStyle
		if m.statusIsErr {
			style = ErrorStyle
		}
		footer = style.Render(m.status) + "  " + footer
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.input.View(), footer)
}

func (m *ChatModel) sidebarView() string {
	var b strings.Builder
	for i, c := range m.convs {
		label := IconGlobal + " " + c.title
		status := ""
		if c.id != "" {
			label = IconPeer + " " + truncate(c.title, sidebarWidth-14)
			status = m.peerStatus(c)
		}
		if n := m.unread[c.id]; n > 0 {
			label += fmt.Sprintf(" (%d)", n)
		}

		style := TabStyle
		if i == m.active {
			style = ActiveTabStyle
		}
		b.WriteString(style.Render(label))
		if status != "" {
			b.WriteString(" " + status)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *ChatModel) peerStatus(c conversation) string {
	if c.gone {
		return MutedStyle.Render("offline")
	}
	phase, ok := m.backend.Status(c.id)
	label := PhaseLabel(phase, ok)
	if ok && (phase == peer.PhaseNegotiating || phase == peer.PhaseIdle) {
		return m.spinner.View() + WarningStyle.Render(label)
	}
	if !ok {
		return MutedStyle.Render(label)
	}
	return PhaseStyle(phase).Render(label)
}

func truncate(s string, n int) string {
	if n <= 1 || len([]rune(s)) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
