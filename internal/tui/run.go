package tui

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

var ErrNoTTY = errors.New("dashboard requires an interactive terminal (TTY)")

// Run shows the dashboard until the batch summary arrives or the event
// stream closes, and returns the final model.
func Run(m Model, opts ...tea.ProgramOption) (Model, error) {
	p := tea.NewProgram(m, opts...)
	final, err := p.Run()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "tty") {
			return m, ErrNoTTY
		}
		return m, err
	}
	if fm, ok := final.(Model); ok {
		return fm, nil
	}
	return m, nil
}
