package tui

import (
	"net/netip"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"flexfinder/internal/models"
	"flexfinder/internal/resolver"
)

// ProbeMsg reports one finished probe.
type ProbeMsg models.ProbeResult

// StateMsg reports a resolver state change.
type StateMsg resolver.State

// DoneMsg ends the program with the resolution outcome.
type DoneMsg struct {
	Addr netip.Addr
	Err  error
}

type TickMsg time.Time

type DiscoveryModel struct {
	target    string
	iface     string
	total     int
	probed    int
	state     resolver.State
	started   time.Time
	elapsed   time.Duration
	responder map[netip.Addr]models.ProbeResult

	table    table.Model
	progress progress.Model
	spinner  spinner.Model

	done   bool
	result netip.Addr
	err    error
}

// NewDiscoveryModel builds the view for a sweep of total candidates looking
// for mac.
func NewDiscoveryModel(mac, iface string, total int) DiscoveryModel {
	columns := []table.Column{
		{Title: "Responder", Width: 18},
		{Title: "MAC", Width: 18},
		{Title: "Port", Width: 6},
		{Title: "Ping", Width: 6},
		{Title: "RTT", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return DiscoveryModel{
		target:    mac,
		iface:     iface,
		total:     total,
		state:     resolver.StateInit,
		started:   time.Now(),
		responder: make(map[netip.Addr]models.ProbeResult),
		table:     t,
		progress:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func (m DiscoveryModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// Result returns the outcome delivered by DoneMsg.
func (m DiscoveryModel) Result() (netip.Addr, error) {
	return m.result, m.err
}

func (m DiscoveryModel) Done() bool {
	return m.done
}

func (m DiscoveryModel) percent() float64 {
	if m.total <= 0 {
		return 0
	}

	return min(float64(m.probed)/float64(m.total), 1)
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
