package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/Veraticus/clanbank/internal/model"
)

// ErrNoMatches is returned when there is nothing to pick from.
var ErrNoMatches = errors.New("no matching items")

// Prompter asks questions on a plain line-oriented terminal. It is the
// fallback when the interactive picker cannot run.
type Prompter struct {
	writer io.Writer
	reader *NonBlockingReader
}

// NewCLIPrompter creates a new CLI prompter with the given reader and writer.
func NewCLIPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}

	return &Prompter{
		reader: NewNonBlockingReader(reader),
		writer: writer,
	}
}

// PickMatch lists matches and asks for one by number. A single match is
// returned without asking.
func (p *Prompter) PickMatch(ctx context.Context, matches []model.CatalogMatch) (model.CatalogMatch, error) {
	switch len(matches) {
	case 0:
		return model.CatalogMatch{}, ErrNoMatches
	case 1:
		return matches[0], nil
	}

	var b strings.Builder
	for i, m := range matches {
		line := fmt.Sprintf("  %2d. %s", i+1, m.DisplayName)
		if m.Available > 0 {
			line += SubtleStyle.Render(fmt.Sprintf(" (%d available)", m.Available))
		}
		if m.Category != "" {
			line += SubtleStyle.Render(" [" + m.Category + "]")
		}
		b.WriteString(line + "\n")
	}
	if _, err := fmt.Fprint(p.writer, b.String()); err != nil {
		return model.CatalogMatch{}, fmt.Errorf("failed to write matches: %w", err)
	}

	for {
		input, err := p.prompt(ctx, fmt.Sprintf("Pick an item [1-%d]", len(matches)))
		if err != nil {
			return model.CatalogMatch{}, err
		}

		n, convErr := strconv.Atoi(input)
		if convErr == nil && n >= 1 && n <= len(matches) {
			return matches[n-1], nil
		}
		p.complain("Invalid choice. Please try again.")
	}
}

// Confirm asks a yes/no question. Anything but y/yes is a no.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	input, err := p.prompt(ctx, question+" [y/N]")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(input) {
	case "y", "yes", "s", "si", "sí":
		return true, nil
	}
	return false, nil
}

func (p *Prompter) prompt(ctx context.Context, text string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if _, err := fmt.Fprint(p.writer, FormatPrompt(text)); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}

	input, err := p.reader.ReadLine(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("input terminated")
		}
		return "", err
	}
	return input, nil
}

func (p *Prompter) complain(message string) {
	if _, err := fmt.Fprintln(p.writer, FormatError(message)); err != nil {
		slog.Warn("Failed to write error message", "error", err)
	}
}
