package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrCanceled is returned when the member leaves the picker without choosing.
var ErrCanceled = errors.New("selection canceled")

// Run shows the picker until the member chooses or cancels.
func Run(ctx context.Context, cfg Config, opts ...tea.ProgramOption) (Choice, error) {
	if cfg.Search == nil {
		return Choice{}, fmt.Errorf("search function is required")
	}

	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	final, err := tea.NewProgram(New(cfg), opts...).Run()
	if err != nil {
		if ctx.Err() != nil {
			return Choice{}, ctx.Err()
		}
		return Choice{}, fmt.Errorf("picker failed: %w", err)
	}

	m, ok := final.(Model)
	if !ok {
		return Choice{}, fmt.Errorf("unexpected picker model %T", final)
	}
	choice, done := m.Result()
	if !done {
		return Choice{}, ErrCanceled
	}
	return choice, nil
}
