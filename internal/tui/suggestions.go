package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Suggestions provides autocomplete for the command bar. "/" lists commands
// and "@" lists cassette IDs seen in the alarm feed.
type Suggestions struct {
	items        []SuggestionItem
	filtered     []SuggestionItem
	selectedIdx  int
	visible      bool
	prefix       string
	currentInput string
}

// SuggestionItem represents a single autocomplete suggestion
type SuggestionItem struct {
	Text        string
	Description string
	Type        string // "command" or "cassette"
}

var commandSuggestions = []SuggestionItem{
	{Text: "cst", Description: "Show a cassette and its transactions", Type: "command"},
	{Text: "ok", Description: "Submit an OK inspection result", Type: "command"},
	{Text: "ng", Description: "Submit an NG inspection result", Type: "command"},
	{Text: "auto", Description: "Switch ICA to AUTO", Type: "command"},
	{Text: "manual", Description: "Switch ICA to MANUAL", Type: "command"},
	{Text: "alarms", Description: "Back to the alarm feed", Type: "command"},
	{Text: "health", Description: "Show daemon and worker pool health", Type: "command"},
	{Text: "refresh", Description: "Reload the current view", Type: "command"},
	{Text: "quit", Description: "Leave the console", Type: "command"},
}

// NewSuggestions creates a new suggestions handler
func NewSuggestions() *Suggestions {
	return &Suggestions{items: commandSuggestions}
}

// Update updates suggestions based on current input
func (s *Suggestions) Update(input string) {
	s.currentInput = input
	switch {
	case strings.HasPrefix(input, "/"):
		s.prefix = "/"
		s.items = commandSuggestions
	case strings.HasPrefix(input, "@"):
		if s.prefix != "@" {
			s.items = nil
		}
		s.prefix = "@"
	default:
		s.visible = false
		s.filtered = nil
		s.prefix = ""
		return
	}
	s.visible = true
	s.filter(strings.ToLower(input[1:]))
}

// SetCassettes replaces the "@" candidates.
func (s *Suggestions) SetCassettes(ids []string) {
	if s.prefix != "@" {
		return
	}
	s.items = make([]SuggestionItem, len(ids))
	for i, id := range ids {
		s.items[i] = SuggestionItem{Text: id, Description: "Look up this cassette", Type: "cassette"}
	}
	s.filter(strings.ToLower(strings.TrimPrefix(s.currentInput, "@")))
}

// Accept returns the command bar text for the selected suggestion.
func (s *Suggestions) Accept() string {
	sel := s.Selected()
	if sel == nil {
		return s.currentInput
	}
	if sel.Type == "cassette" {
		return "cst " + sel.Text
	}
	return sel.Text + " "
}

func (s *Suggestions) filter(query string) {
	s.selectedIdx = 0
	if query == "" {
		s.filtered = s.items
		return
	}
	s.filtered = nil
	for _, item := range s.items {
		if strings.Contains(strings.ToLower(item.Text), query) {
			s.filtered = append(s.filtered, item)
		}
	}
}

// Next moves to the next suggestion
func (s *Suggestions) Next() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx = (s.selectedIdx + 1) % len(s.filtered)
}

// Prev moves to the previous suggestion
func (s *Suggestions) Prev() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx--
	if s.selectedIdx < 0 {
		s.selectedIdx = len(s.filtered) - 1
	}
}

// Selected returns the currently selected suggestion
func (s *Suggestions) Selected() *SuggestionItem {
	if !s.visible || len(s.filtered) == 0 || s.selectedIdx >= len(s.filtered) {
		return nil
	}
	return &s.filtered[s.selectedIdx]
}

// IsVisible returns whether suggestions are currently visible
func (s *Suggestions) IsVisible() bool {
	return s.visible && len(s.filtered) > 0
}

// Render renders the suggestions dropdown
func (s *Suggestions) Render(width int) string {
	if !s.IsVisible() {
		return ""
	}

	var b strings.Builder

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondaryColor).
		Padding(0, 1).
		Width(max(width-4, 20))

	descStyle := lipgloss.NewStyle().
		Foreground(mutedColor).
		Italic(true)

	header := "Commands"
	if s.prefix == "@" {
		header = "Cassettes"
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render(header))
	b.WriteString("\n")

	const maxVisible = 5
	for i, item := range s.filtered {
		if i >= maxVisible {
			b.WriteString(descStyle.Render(fmt.Sprintf("  ... and %d more", len(s.filtered)-maxVisible)))
			break
		}
		if i == s.selectedIdx {
			b.WriteString(selectedStyle.Render("> " + item.Text + "  " + item.Description))
		} else {
			b.WriteString("  " + item.Text + " " + descStyle.Render(item.Description))
		}
		b.WriteString("\n")
	}

	return boxStyle.Render(b.String())
}
