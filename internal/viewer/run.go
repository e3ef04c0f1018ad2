package viewer

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Run attaches the terminal to link until the user detaches, the session
// ends and the user dismisses the status line, or ctx is cancelled.
func Run(ctx context.Context, link Link, cols, rows int, interval time.Duration, opts ...tea.ProgramOption) (*Model, error) {
	m := New(link, cols, rows, interval)
	opts = append([]tea.ProgramOption{
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	}, opts...)

	_, err := tea.NewProgram(m, opts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = nil
	}
	return m, err
}
