package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/BioHazard786/Warpchat/cli/internal/peer"
)

// Color palette
var (
	Primary    = lipgloss.Color("#22d3ee") // Cyan accent
	Secondary  = lipgloss.Color("#7C3AED") // Violet
	Success    = lipgloss.Color("#10B981") // Emerald
	Warning    = lipgloss.Color("#F59E0B") // Amber
	Error      = lipgloss.Color("#EF4444") // Red
	Muted      = lipgloss.Color("#6B7280") // Gray
	Foreground = lipgloss.Color("#F9FAFB") // Light gray
	Panel      = lipgloss.Color("#1F2937")
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	BoldStyle = lipgloss.NewStyle().
			Bold(true)
)

// Chat layout styles
var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			Background(Panel).
			Padding(0, 2)

	SidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Secondary).
			Padding(0, 1)

	TranscriptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(0, 1)

	ActiveTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Foreground).
			Background(Primary).
			Padding(0, 1)

	TabStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Padding(0, 1)

	SelfNameStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	PeerNameStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	TimestampStyle = lipgloss.NewStyle().
			Foreground(Muted)

	FooterStyle = lipgloss.NewStyle().
			Foreground(Muted)
)

// Spinner style
var SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)

// Emoji helpers for consistent iconography
const (
	IconSuccess = "✅"
	IconError   = "❌"
	IconWarning = "⚠️"
	IconInfo    = "ℹ️"
	IconPeer    = "👤"
	IconGlobal  = "🌐"
	IconConnect = "🔌"
	IconWaiting = "⏳"
	IconLock    = "🔒"
)

// PhaseStyle picks the colour used for a session phase.
func PhaseStyle(p peer.Phase) lipgloss.Style {
	switch p {
	case peer.PhaseConnected:
		return SuccessStyle
	case peer.PhaseNegotiating:
		return WarningStyle
	case peer.PhaseFailed:
		return ErrorStyle
	default:
		return MutedStyle
	}
}

// PhaseLabel is the short status shown next to a peer.
func PhaseLabel(p peer.Phase, ok bool) string {
	if !ok {
		return "online"
	}
	switch p {
	case peer.PhaseNegotiating, peer.PhaseIdle:
		return "connecting"
	default:
		return p.String()
	}
}

func PrintError(msg string) {
	fmt.Printf("%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(msg))
}

func PrintErrorf(format string, args ...any) {
	PrintError(fmt.Sprintf(format, args...))
}

func PrintWarning(msg string) {
	fmt.Printf("%s %s\n", WarningStyle.Render(IconWarning), WarningStyle.Render(msg))
}

func PrintSuccess(msg string) {
	fmt.Printf("%s %s\n", SuccessStyle.Render(IconSuccess), msg)
}

func PrintInfo(msg string) {
	fmt.Printf("%s %s\n", IconInfo, msg)
}

func FormatError(err error) string {
	return fmt.Sprintf("%s %s", ErrorStyle.Render(IconError), ErrorStyle.Render(err.Error()))
}
