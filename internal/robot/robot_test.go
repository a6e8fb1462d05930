package robot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flexfinder/internal/models"
)

func serverAddr(t *testing.T, srv *httptest.Server) netip.AddrPort {
	t.Helper()

	addr, err := netip.ParseAddrPort(srv.Listener.Addr().String())
	require.NoError(t, err)

	return addr
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		assert.Equal(t, APIVersion, r.Header.Get(VersionHeader))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"flex-lab-1","robot_model":"OT-3 Standard","api_version":"8.0.0","robot_serial":"FLXA1020231","links":{}}`))
	}))
	defer srv.Close()

	client := NewClient(serverAddr(t, srv), srv.Client())

	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "flex-lab-1", health.Name)
	assert.Equal(t, "OT-3 Standard", health.RobotModel)
	assert.Equal(t, "8.0.0", health.APIVersion)
	assert.Equal(t, "FLXA1020231", health.RobotSerial)
	assert.Equal(t, srv.URL, client.BaseURL())
}

func TestHealthBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(serverAddr(t, srv), nil).Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHealthUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := serverAddr(t, srv)
	srv.Close()

	_, err := NewClient(addr, nil).Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestRegistryRoundTrip(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), "device_config.json"))

	_, err := reg.Load()
	require.ErrorIs(t, err, ErrNotRegistered)

	d, err := reg.Register("flex", "00-14-2D-6E-70-AD")
	require.NoError(t, err)

	loaded, err := reg.Load()
	require.NoError(t, err)
	assert.Equal(t, d, loaded)

	_, ok := loaded.LastAddr()
	assert.False(t, ok)

	require.NoError(t, reg.RememberIP(loaded, netip.MustParseAddr("172.28.24.17")))

	loaded, err = reg.Load()
	require.NoError(t, err)

	addr, ok := loaded.LastAddr()
	require.True(t, ok)
	assert.Equal(t, "172.28.24.17", addr.String())
}

func TestRegisterKeepsLastIPForSameRobot(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), "device_config.json"))

	d, err := reg.Register("flex", "00:14:2d:6e:70:ad")
	require.NoError(t, err)
	require.NoError(t, reg.RememberIP(d, netip.MustParseAddr("172.28.24.17")))

	d, err = reg.Register("flex-2", "00-14-2D-6E-70-AD")
	require.NoError(t, err)
	assert.Equal(t, "flex-2", d.Name)
	assert.Equal(t, "172.28.24.17", d.LastIP)

	loaded, err := reg.Load()
	require.NoError(t, err)
	assert.Equal(t, "172.28.24.17", loaded.LastIP)

	d, err = reg.Register("other", "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Empty(t, d.LastIP)
}

func TestRegistryRejectsBadMAC(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(filepath.Join(dir, "device_config.json"))

	_, err := reg.Register("flex", "00-14-2D")
	require.ErrorIs(t, err, models.ErrInvalidAddress)

	require.NoError(t, os.WriteFile(reg.Path(), []byte(`{"name":"flex","mac":"nope"}`), 0o600))

	_, err = reg.Load()
	require.ErrorIs(t, err, models.ErrInvalidAddress)
}

func TestRegistryReadsFileWithoutLastIP(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), "device_config.json"))
	require.NoError(t, os.WriteFile(reg.Path(), []byte("{\n    \"name\": \"flex\",\n    \"mac\": \"34:6F:24:31:17:EF\"\n}"), 0o600))

	d, err := reg.Load()
	require.NoError(t, err)
	assert.Equal(t, "flex", d.Name)
	assert.Equal(t, "34:6F:24:31:17:EF", d.MAC)
}

func TestDefaultRegistryPath(t *testing.T) {
	assert.Equal(t, DefaultDeviceFile, NewRegistry("").Path())
}
