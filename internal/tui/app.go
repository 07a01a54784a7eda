// Package tui provides the interactive operator console for icad.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/icad/internal/controlplane"
	"github.com/fentz26/icad/internal/models"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	itemStyle = lipgloss.NewStyle().
			Padding(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

// Views.
const (
	viewAlarms   = "alarms"
	viewCassette = "cassette"
	viewHealth   = "health"
)

const (
	alarmFetchLimit = 100
	txFetchLimit    = 50
	pollInterval    = 2 * time.Second
)

// App is the console model.
type App struct {
	client      *Client
	domain      string
	input       textinput.Model
	viewport    viewport.Model
	suggestions *Suggestions
	width       int
	height      int
	view        string
	message     string
	isErr       bool

	alarms      []models.Alarm
	selectedIdx int
	cassette    *models.Cassette
	txs         []models.Transaction
	health      *controlplane.HealthResponse
	mode        models.Mode
	online      bool
}

// New creates a console talking to the API at apiAddr. domain is the mode
// domain toggled by the auto and manual commands.
func New(apiAddr, userID, domain string) *App {
	ti := textinput.New()
	ti.Placeholder = "cst <id> | ok <id> | ng <id> | auto | manual | health | / for commands"
	ti.Focus()
	ti.CharLimit = 128
	ti.Width = 80

	return &App{
		client:      NewClient(apiAddr, userID),
		domain:      domain,
		input:       ti,
		viewport:    viewport.New(80, 10),
		suggestions: NewSuggestions(),
		view:        viewAlarms,
	}
}

// Run starts the console.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.fetchAlarms(),
		a.fetchStatus(),
		a.tickCmd(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit

		case "esc":
			if a.view != viewAlarms {
				a.view = viewAlarms
				a.cassette = nil
				a.txs = nil
				return a, a.fetchAlarms()
			}

		case "up":
			if a.suggestions.IsVisible() {
				a.suggestions.Prev()
			} else if a.view == viewAlarms && a.selectedIdx > 0 {
				a.selectedIdx--
			} else if a.view == viewCassette {
				a.viewport.LineUp(1)
			}
			return a, nil

		case "down":
			if a.suggestions.IsVisible() {
				a.suggestions.Next()
			} else if a.view == viewAlarms && a.selectedIdx < len(a.alarms)-1 {
				a.selectedIdx++
			} else if a.view == viewCassette {
				a.viewport.LineDown(1)
			}
			return a, nil

		case "pgup", "pgdown":
			if a.view == viewCassette {
				var cmd tea.Cmd
				a.viewport, cmd = a.viewport.Update(msg)
				return a, cmd
			}

		case "tab":
			if a.suggestions.IsVisible() {
				a.input.SetValue(a.suggestions.Accept())
				a.input.CursorEnd()
				a.suggestions.Update("")
			}
			return a, nil

		case "enter":
			if a.suggestions.IsVisible() {
				a.input.SetValue(a.suggestions.Accept())
				a.input.CursorEnd()
				a.suggestions.Update("")
				return a, nil
			}
			line := strings.TrimSpace(a.input.Value())
			if line != "" {
				a.input.SetValue("")
				a.suggestions.Update("")
				return a, a.executeCommand(line)
			}
			if a.view == viewAlarms && a.selectedIdx < len(a.alarms) {
				if id := a.alarms[a.selectedIdx].CassetteID; id != "" {
					return a, a.openCassette(id)
				}
			}
			return a, nil
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 6
		a.viewport.Width = msg.Width - 2
		a.viewport.Height = max(msg.Height-cassetteHeaderLines-chromeLines, 3)

	case alarmsLoadedMsg:
		a.alarms = msg.alarms
		if a.selectedIdx >= len(a.alarms) {
			a.selectedIdx = max(0, len(a.alarms)-1)
		}

	case cassetteLoadedMsg:
		a.cassette = msg.cassette
		a.txs = msg.txs
		a.viewport.SetContent(renderTransactions(a.txs))
		a.viewport.GotoTop()

	case statusMsg:
		a.online = msg.err == nil
		a.health = msg.health
		if msg.mode != "" {
			a.mode = msg.mode
		}

	case tickMsg:
		return a, tea.Batch(a.fetchAlarms(), a.fetchStatus(), a.tickCmd())

	case commandResultMsg:
		a.message = msg.message
		a.isErr = msg.isErr
		cmds = append(cmds, a.fetchAlarms(), a.fetchStatus())
		if a.view == viewCassette && a.cassette != nil {
			cmds = append(cmds, a.fetchCassette(a.cassette.ID))
		}
		return a, tea.Batch(cmds...)

	case errMsg:
		a.message = "Error: " + msg.err.Error()
		a.isErr = true
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)

	a.suggestions.Update(a.input.Value())
	if strings.HasPrefix(a.input.Value(), "@") {
		a.suggestions.SetCassettes(a.alarmCassettes())
	}

	return a, tea.Batch(cmds...)
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	b.WriteString(a.renderHeader() + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 1)) + "\n")

	contentHeight := max(a.height-chromeLines, 5)
	switch a.view {
	case viewAlarms:
		b.WriteString(a.renderAlarmList(contentHeight))
	case viewCassette:
		b.WriteString(a.renderCassette())
	case viewHealth:
		b.WriteString(a.renderHealth())
	}

	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if a.isErr {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + msgStyle.Render(a.message))
	} else {
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Render(a.input.View()))
	if a.suggestions.IsVisible() {
		b.WriteString("\n")
		b.WriteString(a.suggestions.Render(a.width))
	}
	b.WriteString("\n")

	var status string
	switch a.view {
	case viewAlarms:
		status = fmt.Sprintf(" Alarms: %d | ↑↓:nav | Enter:open cassette | /:commands | @:cassettes | Ctrl+C:quit", len(a.alarms))
	case viewCassette:
		status = fmt.Sprintf(" Transactions: %d | ↑↓ PgUp PgDn:scroll | Esc:back", len(a.txs))
	default:
		status = " Esc:back | Enter:command | Ctrl+C:quit"
	}
	b.WriteString(statusBarStyle.Width(max(a.width, 1)).Render(status))

	return b.String()
}

// alarmCassettes returns the distinct cassette IDs in the alarm feed.
func (a *App) alarmCassettes() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, al := range a.alarms {
		if al.CassetteID == "" || seen[al.CassetteID] {
			continue
		}
		seen[al.CassetteID] = true
		ids = append(ids, al.CassetteID)
	}
	return ids
}
