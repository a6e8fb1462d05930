package tui

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flexfinder/internal/models"
	"flexfinder/internal/resolver"
)

func step(t *testing.T, m DiscoveryModel, msg tea.Msg) (DiscoveryModel, tea.Cmd) {
	t.Helper()

	next, cmd := m.Update(msg)
	dm, ok := next.(DiscoveryModel)
	require.True(t, ok)

	return dm, cmd
}

func TestProbeMessagesFillTable(t *testing.T) {
	m := NewDiscoveryModel("aa:bb:cc:dd:ee:ff", "eth0", 4)

	m, _ = step(t, m, ProbeMsg{Addr: netip.MustParseAddr("10.0.0.9"), PortOpen: true, RTT: 3 * time.Millisecond})
	m, _ = step(t, m, ProbeMsg{Addr: netip.MustParseAddr("10.0.0.2")})
	m, _ = step(t, m, ProbeMsg{Addr: netip.MustParseAddr("10.0.0.3"), PingOK: true})

	assert.Equal(t, 3, m.probed)
	assert.InDelta(t, 0.75, m.percent(), 1e-9)

	rows := m.table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "10.0.0.3", rows[0][0])
	assert.Equal(t, "10.0.0.9", rows[1][0])
	assert.Equal(t, "-", rows[1][1])
	assert.Equal(t, "yes", rows[1][2])
	assert.Equal(t, "3 ms", rows[1][4])
}

func TestARPRepliesFillTableWithoutRecounting(t *testing.T) {
	m := NewDiscoveryModel("aa:bb:cc:dd:ee:ff", "eth0", 2)
	robot := netip.MustParseAddr("10.0.0.42")

	m, _ = step(t, m, ProbeMsg{Addr: netip.MustParseAddr("10.0.0.41")})
	m, _ = step(t, m, ProbeMsg{Addr: robot})
	m, _ = step(t, m, ProbeMsg{Addr: robot, MAC: "aa:bb:cc:dd:ee:ff", RTT: 2 * time.Millisecond})

	assert.Equal(t, 2, m.probed)
	assert.InDelta(t, 1.0, m.percent(), 1e-9)

	rows := m.table.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, table.Row{"10.0.0.42", "aa:bb:cc:dd:ee:ff", "-", "-", "2 ms"}, rows[0])
	assert.Contains(t, m.View(), "Probed 2/2")
}

func TestPercentClamps(t *testing.T) {
	m := NewDiscoveryModel("aa:bb:cc:dd:ee:ff", "", 0)
	assert.Zero(t, m.percent())

	m.total = 1
	m.probed = 2
	assert.InDelta(t, 1.0, m.percent(), 1e-9)
}

func TestStateAndDone(t *testing.T) {
	m := NewDiscoveryModel("aa:bb:cc:dd:ee:ff", "", 254)

	m, _ = step(t, m, StateMsg(resolver.StateScanning))
	assert.Contains(t, m.View(), "SCANNING")

	m, cmd := step(t, m, DoneMsg{Addr: netip.MustParseAddr("10.0.0.42")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.Done())

	addr, err := m.Result()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.42", addr.String())
	assert.Contains(t, m.View(), "Found aa:bb:cc:dd:ee:ff at 10.0.0.42")

	_, cmd = step(t, m, TickMsg(time.Now()))
	assert.Nil(t, cmd)
}

func TestDoneWithError(t *testing.T) {
	m := NewDiscoveryModel("aa:bb:cc:dd:ee:ff", "", 254)

	m, _ = step(t, m, DoneMsg{Err: fmt.Errorf("%w: deadline", models.ErrScanAborted)})
	assert.True(t, strings.Contains(m.View(), "ran out of time"))

	m, _ = step(t, m, DoneMsg{Err: errors.New("no route")})
	assert.Contains(t, m.View(), "no route")
}

func TestQuitKey(t *testing.T) {
	m := NewDiscoveryModel("aa:bb:cc:dd:ee:ff", "", 1)

	_, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
