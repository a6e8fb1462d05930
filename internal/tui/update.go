package tui

import (
	"fmt"
	"net/netip"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"flexfinder/internal/models"
	"flexfinder/internal/resolver"
)

func (m DiscoveryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case ProbeMsg:
		r := models.ProbeResult(msg)

		// ARP replies follow the request that was already counted.
		if r.MAC == "" {
			m.probed++
		}

		if r.Alive() {
			m.responder[r.Addr] = r
			m.table.SetRows(m.rows())
		}

		return m, nil

	case StateMsg:
		m.state = resolver.State(msg)
		return m, nil

	case DoneMsg:
		m.done = true
		m.result = msg.Addr
		m.err = msg.Err
		m.elapsed = time.Since(m.started)

		return m, tea.Quit

	case TickMsg:
		if m.done {
			return m, nil
		}

		m.elapsed = time.Time(msg).Sub(m.started)

		return m, tickCmd()

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m DiscoveryModel) rows() []table.Row {
	addrs := make([]netip.Addr, 0, len(m.responder))
	for addr := range m.responder {
		addrs = append(addrs, addr)
	}

	slices.SortFunc(addrs, func(a, b netip.Addr) int { return a.Compare(b) })

	rows := make([]table.Row, len(addrs))
	for i, addr := range addrs {
		r := m.responder[addr]
		mac := r.MAC
		if mac == "" {
			mac = "-"
		}

		rows[i] = table.Row{addr.String(), mac, mark(r.PortOpen), mark(r.PingOK), fmt.Sprintf("%d ms", r.RTT.Milliseconds())}
	}

	return rows
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}

	return "-"
}
