// Package tui provides the interactive item picker used by the CLI.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/clanbank/internal/ledger"
	"github.com/Veraticus/clanbank/internal/model"
)

// SearchFunc returns the matches for a search term, best first.
type SearchFunc func(term string) []model.CatalogMatch

// Choice is what the member picked.
type Choice struct {
	Match    model.CatalogMatch
	Quantity int
}

// Config configures a picker.
type Config struct {
	Search      SearchFunc
	KeyMap      *KeyMap
	Theme       *Theme
	Title       string
	InitialTerm string
	// AskQuantity adds a quantity step after the item is picked. Matches
	// with an Available count cap the quantity.
	AskQuantity bool
	MaxVisible  int
}

type stage int

const (
	stageSearch stage = iota
	stageQuantity
	stageDone
	stageCanceled
)

// Model is the bubbletea model of the picker.
type Model struct {
	search   SearchFunc
	help     help.Model
	theme    Theme
	keymap   KeyMap
	title    string
	errMsg   string
	term     textinput.Model
	quantity textinput.Model
	matches  []model.CatalogMatch
	choice   Choice
	cursor   int
	visible  int
	stage    stage
	askQty   bool
}

// New creates a picker model.
func New(cfg Config) Model {
	theme := DefaultTheme
	if cfg.Theme != nil {
		theme = *cfg.Theme
	}
	keymap := DefaultKeyMap()
	if cfg.KeyMap != nil {
		keymap = *cfg.KeyMap
	}
	visible := cfg.MaxVisible
	if visible <= 0 {
		visible = 10
	}
	title := cfg.Title
	if title == "" {
		title = "Pick an item"
	}

	term := textinput.New()
	term.Placeholder = "Type to search..."
	term.CharLimit = 50
	term.SetValue(cfg.InitialTerm)
	term.Focus()

	quantity := textinput.New()
	quantity.Placeholder = "e.g. 10"
	quantity.CharLimit = 10

	m := Model{
		search:   cfg.Search,
		help:     help.New(),
		theme:    theme,
		keymap:   keymap,
		title:    title,
		term:     term,
		quantity: quantity,
		visible:  visible,
		askQty:   cfg.AskQuantity,
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		if key.Matches(msg, m.keymap.Quit) {
			m.stage = stageCanceled
			return m, tea.Quit
		}
		switch m.stage {
		case stageSearch:
			return m.updateSearch(msg)
		case stageQuantity:
			return m.updateQuantity(msg)
		}
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Back):
		m.stage = stageCanceled
		return m, tea.Quit
	case key.Matches(msg, m.keymap.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case key.Matches(msg, m.keymap.Down):
		if m.cursor < len(m.matches)-1 {
			m.cursor++
		}
		return m, nil
	case key.Matches(msg, m.keymap.Select):
		if len(m.matches) == 0 {
			m.errMsg = "No matching items."
			return m, nil
		}
		m.choice.Match = m.matches[m.cursor]
		m.errMsg = ""
		if !m.askQty {
			m.stage = stageDone
			return m, tea.Quit
		}
		m.stage = stageQuantity
		m.term.Blur()
		return m, m.quantity.Focus()
	}

	before := m.term.Value()
	var cmd tea.Cmd
	m.term, cmd = m.term.Update(msg)
	if m.term.Value() != before {
		m.refresh()
	}
	return m, cmd
}

func (m Model) updateQuantity(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Back):
		m.stage = stageSearch
		m.errMsg = ""
		m.quantity.SetValue("")
		m.quantity.Blur()
		return m, m.term.Focus()
	case key.Matches(msg, m.keymap.Select):
		qty, err := ledger.ParseQuantity(m.quantity.Value())
		if err != nil {
			m.errMsg = "Enter a positive whole number."
			return m, nil
		}
		if avail := m.choice.Match.Available; avail > 0 && qty > avail {
			m.errMsg = fmt.Sprintf("You only have %d.", avail)
			return m, nil
		}
		m.choice.Quantity = qty
		m.stage = stageDone
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.quantity, cmd = m.quantity.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	m.cursor = 0
	m.errMsg = ""
	if m.search == nil {
		m.matches = nil
		return
	}
	m.matches = m.search(m.term.Value())
}

// Result returns the choice once the member confirmed it.
func (m Model) Result() (Choice, bool) {
	return m.choice, m.stage == stageDone
}

// View implements tea.Model.
func (m Model) View() string {
	if m.stage == stageDone || m.stage == stageCanceled {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.theme.Title.Render(m.title))
	b.WriteString("\n")

	switch m.stage {
	case stageSearch:
		b.WriteString(m.term.View())
		b.WriteString("\n\n")
		b.WriteString(m.renderMatches())
	case stageQuantity:
		b.WriteString(m.theme.Normal.Render("Item: " + m.choice.Match.DisplayName))
		if m.choice.Match.Available > 0 {
			b.WriteString(m.theme.Muted.Render(fmt.Sprintf(" (max %d)", m.choice.Match.Available)))
		}
		b.WriteString("\n")
		b.WriteString("Quantity: " + m.quantity.View())
		b.WriteString("\n")
	}

	if m.errMsg != "" {
		b.WriteString("\n" + m.theme.Error.Render(m.errMsg) + "\n")
	}
	b.WriteString("\n" + m.help.View(m.keymap))
	return m.theme.Box.Render(b.String())
}

func (m Model) renderMatches() string {
	if len(m.matches) == 0 {
		if strings.TrimSpace(m.term.Value()) == "" {
			return m.theme.Muted.Render("Start typing an item name.") + "\n"
		}
		return m.theme.Muted.Render("No matching items.") + "\n"
	}

	start := 0
	if m.cursor >= m.visible {
		start = m.cursor - m.visible + 1
	}
	end := min(start+m.visible, len(m.matches))

	var b strings.Builder
	for i := start; i < end; i++ {
		match := m.matches[i]
		line := match.DisplayName
		if match.Available > 0 {
			line += fmt.Sprintf(" (%d)", match.Available)
		}
		if i == m.cursor {
			b.WriteString(m.theme.Selected.Render("> " + line))
		} else {
			b.WriteString(m.theme.Normal.Render("  " + line))
		}
		if match.Category != "" {
			b.WriteString(m.theme.Subtitle.Render(" " + match.Category))
		}
		b.WriteString("\n")
	}
	if len(m.matches) > end {
		b.WriteString(m.theme.Muted.Render(fmt.Sprintf("  ... %d more", len(m.matches)-end)) + "\n")
	}
	return b.String()
}
