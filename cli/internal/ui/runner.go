package ui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// RunChat runs the chat screen on the alternate screen until the user quits
// or ctx is cancelled.
func RunChat(ctx context.Context, backend ChatBackend) error {
	p := tea.NewProgram(NewChatModel(backend), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("chat UI: %w", err)
	}
	return nil
}
