package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fentz26/icad/internal/controlplane"
	"github.com/fentz26/icad/internal/models"
	"github.com/google/uuid"
)

type commandResultMsg struct {
	message string
	isErr   bool
}

type errMsg struct {
	err error
}

type alarmsLoadedMsg struct {
	alarms []models.Alarm
}

type cassetteLoadedMsg struct {
	cassette *models.Cassette
	txs      []models.Transaction
}

type statusMsg struct {
	health *controlplane.HealthResponse
	mode   models.Mode
	err    error
}

type tickMsg time.Time

// executeCommand runs one command bar line. View switches happen here on the
// Update goroutine; API calls run in the returned tea.Cmd.
func (a *App) executeCommand(line string) tea.Cmd {
	parts := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(parts) == 0 {
		return nil
	}
	name := strings.ToLower(parts[0])
	args := parts[1:]

	switch name {
	case "q", "quit", "exit":
		return tea.Quit

	case "alarms":
		a.view = viewAlarms
		return a.fetchAlarms()

	case "health":
		a.view = viewHealth
		return a.fetchStatus()

	case "refresh", "r":
		if a.view == viewCassette && a.cassette != nil {
			return tea.Batch(a.fetchCassette(a.cassette.ID), a.fetchStatus())
		}
		return tea.Batch(a.fetchAlarms(), a.fetchStatus())

	case "cst", "cassette":
		if len(args) != 1 {
			return resultCmd("Usage: cst <id>", true)
		}
		return a.openCassette(args[0])

	case "ok", "ng":
		id := a.currentCassetteID()
		if len(args) > 0 {
			id = args[0]
		}
		if id == "" {
			return resultCmd(fmt.Sprintf("Usage: %s <cassette id>", name), true)
		}
		result := strings.ToUpper(name)
		return func() tea.Msg {
			reply, err := a.client.Submit(uuid.NewString(), id, result)
			if err != nil {
				return commandResultMsg{message: "Error: " + err.Error(), isErr: true}
			}
			return commandResultMsg{
				message: fmt.Sprintf("%s %s: %s %s (%s)", id, result, reply.ReturnCode, reply.ReturnCode.Name(), reply.ReturnMsg),
				isErr:   !reply.ReturnCode.OK(),
			}
		}

	case "auto", "manual":
		mode := models.Mode(strings.ToUpper(name))
		domain := a.domain
		return func() tea.Msg {
			got, err := a.client.SetMode(domain, mode)
			if err != nil {
				return commandResultMsg{message: "Error: " + err.Error(), isErr: true}
			}
			return commandResultMsg{message: fmt.Sprintf("%s is now %s", domain, got)}
		}

	default:
		return resultCmd(fmt.Sprintf("Unknown: %s (try: cst, ok, ng, auto, manual, health)", name), true)
	}
}

func resultCmd(message string, isErr bool) tea.Cmd {
	return func() tea.Msg {
		return commandResultMsg{message: message, isErr: isErr}
	}
}

func (a *App) currentCassetteID() string {
	if a.view == viewCassette && a.cassette != nil {
		return a.cassette.ID
	}
	return ""
}

func (a *App) openCassette(id string) tea.Cmd {
	a.view = viewCassette
	a.cassette = nil
	a.txs = nil
	a.message = ""
	return a.fetchCassette(id)
}

func (a *App) fetchAlarms() tea.Cmd {
	return func() tea.Msg {
		alarms, err := a.client.Alarms(alarmFetchLimit)
		if err != nil {
			return errMsg{err}
		}
		return alarmsLoadedMsg{alarms}
	}
}

func (a *App) fetchCassette(id string) tea.Cmd {
	return func() tea.Msg {
		cst, err := a.client.Cassette(id)
		if err != nil {
			return errMsg{err}
		}
		txs, err := a.client.Transactions(id, txFetchLimit)
		if err != nil {
			return errMsg{err}
		}
		return cassetteLoadedMsg{cst, txs}
	}
}

// fetchStatus polls health and the current mode together.
func (a *App) fetchStatus() tea.Cmd {
	domain := a.domain
	return func() tea.Msg {
		health, err := a.client.Health()
		if health == nil {
			return statusMsg{err: err}
		}
		mode, _ := a.client.Mode(domain)
		return statusMsg{health: health, mode: mode, err: err}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
