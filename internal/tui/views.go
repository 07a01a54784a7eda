package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/icad/internal/alarm"
	"github.com/fentz26/icad/internal/models"
)

// Lines taken by the header, message bar, input box and status bar.
const chromeLines = 8

// Lines taken by the cassette panel above the transaction viewport.
const cassetteHeaderLines = 10

func (a *App) renderHeader() string {
	daemon := onlineStyle.Render("● DAEMON")
	if !a.online {
		daemon = offlineStyle.Render("○ DAEMON")
	}

	header := titleStyle.Render("ICA Console") + "  " + daemon
	header += "  " + formatMode(a.domain, a.mode)
	if a.health != nil && a.health.Scheduler != nil {
		s := a.health.Scheduler
		header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(
			fmt.Sprintf("[queued %d | in-flight %d]", s.Queued, s.InFlight))
	}
	return header
}

func formatMode(domain string, mode models.Mode) string {
	switch mode {
	case models.ModeAuto:
		return lipgloss.NewStyle().Foreground(successColor).Bold(true).Render(domain + " AUTO")
	case models.ModeManual:
		return lipgloss.NewStyle().Foreground(warningColor).Bold(true).Render(domain + " MANUAL")
	default:
		return lipgloss.NewStyle().Foreground(mutedColor).Render(domain + " ?")
	}
}

func formatKind(kind string) string {
	style := lipgloss.NewStyle().Foreground(warningColor)
	switch kind {
	case alarm.KindMoveDispatchFail, alarm.KindInternalError:
		style = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	case alarm.KindModeIsManual:
		style = lipgloss.NewStyle().Foreground(secondaryColor)
	}
	return style.Render(fmt.Sprintf("%-22s", kind))
}

func (a *App) renderAlarmList(height int) string {
	if len(a.alarms) == 0 {
		return "\n  " + helpStyle.Render("No alarms raised.") + "\n"
	}

	lines := make([]string, len(a.alarms))
	for i, al := range a.alarms {
		ts := al.RaisedAt.Local().Format("01-02 15:04:05")
		cst := al.CassetteID
		if cst == "" {
			cst = "-"
		}
		msg := truncate(al.Message, max(a.width-60, 20))
		if i == a.selectedIdx {
			lines[i] = selectedStyle.Render(fmt.Sprintf("> %s  %-22s  %-12s  %s", ts, al.Kind, cst, msg))
		} else {
			lines[i] = itemStyle.Render(fmt.Sprintf("  %s  %s  %-12s  %s", ts, formatKind(al.Kind), cst, msg))
		}
	}

	if len(lines) > height {
		start := a.selectedIdx - height/2
		if start < 0 {
			start = 0
		}
		end := start + height
		if end > len(lines) {
			end = len(lines)
			start = max(0, end-height)
		}
		lines = lines[start:end]
	}

	return strings.Join(lines, "\n")
}

func (a *App) renderCassette() string {
	c := a.cassette
	if c == nil {
		return "\n  Loading...\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", lipgloss.NewStyle().Bold(true).Render(c.ID), formatResult(c.ICAResult))
	fmt.Fprintf(&b, "Location: %s (%s)   Registration: %s   Cycle: %s\n", c.Location, c.PortName, c.RegStatus, c.CycleID)
	fmt.Fprintf(&b, "ICA required: %s   Clean required: %s   Unload: %s\n", yesNo(c.ICARequired), yesNo(c.CleanRequired), c.UnloadRequest)
	fmt.Fprintf(&b, "Return: %s   Qty: %s   Damage: %s   QA hold: %s\n", c.ReturnType, c.QtyType, c.Damage, c.QAHold)
	fmt.Fprintf(&b, "Dimension: %s   Capacity: %s   Updated by: %s", c.Dimension, c.Capacity, c.UpdatedBy)

	return panelStyle.Render(b.String()) + "\n" +
		lipgloss.NewStyle().Bold(true).Foreground(cyanColor).Render(" Transactions") + "\n" +
		a.viewport.View()
}

func renderTransactions(txs []models.Transaction) string {
	if len(txs) == 0 {
		return helpStyle.Render("  No transactions recorded.")
	}
	var b strings.Builder
	for _, tx := range txs {
		outcome := lipgloss.NewStyle().Foreground(successColor).Render(string(tx.Outcome))
		if tx.Outcome != models.OutcomeSuccess {
			outcome = lipgloss.NewStyle().Foreground(errorColor).Render(string(tx.Outcome))
		}
		fmt.Fprintf(&b, "  %s  %-14s  %-8s  %-10s  %s\n",
			tx.Timestamp.Local().Format("01-02 15:04:05"), tx.Action, tx.Channel, tx.UserID, outcome)
	}
	return b.String()
}

func formatResult(r models.ICAResult) string {
	switch r {
	case models.ICAResultOK:
		return lipgloss.NewStyle().Foreground(successColor).Bold(true).Render("ICA OK")
	case models.ICAResultNG:
		return lipgloss.NewStyle().Foreground(errorColor).Bold(true).Render("ICA NG")
	default:
		return lipgloss.NewStyle().Foreground(mutedColor).Render("ICA -")
	}
}

func (a *App) renderHealth() string {
	var b strings.Builder

	b.WriteString("\n  Daemon Health\n")
	b.WriteString("  " + strings.Repeat("─", 50) + "\n\n")

	h := a.health
	if h == nil {
		b.WriteString("  " + offlineStyle.Render("Daemon unreachable") + "\n")
		return b.String()
	}

	state := onlineStyle.Render("healthy")
	if !h.OK {
		state = offlineStyle.Render("unhealthy")
	}
	fmt.Fprintf(&b, "  Status:   %s\n", state)
	fmt.Fprintf(&b, "  Database: %s (%s)\n", h.DB, h.Driver)
	fmt.Fprintf(&b, "  Version:  %s\n", h.Version)
	fmt.Fprintf(&b, "  Time:     %s\n\n", h.Time)

	if s := h.Scheduler; s != nil {
		b.WriteString("  Worker Pool:\n")
		fmt.Fprintf(&b, "    Workers:   %d (queue %d each)\n", s.Workers, s.QueueSize)
		fmt.Fprintf(&b, "    Queued:    %d\n", s.Queued)
		fmt.Fprintf(&b, "    In flight: %d\n", s.InFlight)
		fmt.Fprintf(&b, "    Processed: %d\n", s.Processed)
		if s.Panics > 0 {
			fmt.Fprintf(&b, "    Panics:    %s\n", offlineStyle.Render(fmt.Sprint(s.Panics)))
		}
		if s.Stopped {
			b.WriteString("    " + offlineStyle.Render("stopped") + "\n")
		}
	}

	b.WriteString("\n  " + helpStyle.Render("Press Esc to go back") + "\n")
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "Y"
	}
	return "N"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
