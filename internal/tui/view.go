package tui

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"flexfinder/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF7DB")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1)

	okStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F87"))
)

func (m DiscoveryModel) View() string {
	headerText := fmt.Sprintf("flexfinder - Looking for: %s", m.target)
	if m.iface != "" {
		headerText += fmt.Sprintf(" [%s]", m.iface)
	}
	title := titleStyle.Render(headerText)

	status := fmt.Sprintf("%s %s\nElapsed: %s", m.spinner.View(), m.state, m.elapsed.Truncate(100*time.Millisecond))
	if m.done {
		status = m.outcome()
	}
	statusBox := infoStyle.Render(status)

	sweep := fmt.Sprintf("Probed %d/%d\n%s", m.probed, m.total, m.progress.ViewAs(m.percent()))
	sweepBox := infoStyle.Render(sweep)

	respBox := infoStyle.Render(fmt.Sprintf("Responders (%d)\n%s", len(m.responder), m.table.View()))

	row1 := lipgloss.JoinHorizontal(lipgloss.Top, statusBox, sweepBox)
	body := lipgloss.JoinVertical(lipgloss.Left, title, row1, respBox)

	return body + "\nPress q to quit."
}

func (m DiscoveryModel) outcome() string {
	switch {
	case m.err == nil:
		return okStyle.Render(fmt.Sprintf("Found %s at %s", m.target, m.result))
	case errors.Is(m.err, models.ErrScanAborted):
		return failStyle.Render("Sweep ran out of time before the robot answered")
	default:
		return failStyle.Render(m.err.Error())
	}
}
