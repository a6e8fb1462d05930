package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flexfinder/internal/subnet"
)

func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()

	fs := pflag.NewFlagSet("flexfinder", pflag.ContinueOnError)
	Flags(fs)
	require.NoError(t, fs.Parse(args))

	return Load(fs)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, 31950, cfg.Port)
	assert.Equal(t, 750*time.Millisecond, cfg.ProbeTimeout)
	assert.Equal(t, 60*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 128, cfg.Concurrency)
	assert.Equal(t, ModeTCP, cfg.Mode)
	assert.Equal(t, "1-254", cfg.Range.Fourth)
	assert.Empty(t, cfg.Range.Third)
	assert.True(t, cfg.Verify)
	assert.Equal(t, "device_config.json", cfg.DeviceFile)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFlags(t *testing.T) {
	cfg, err := load(t,
		"--mac", "AA-BB-CC-DD-EE-FF",
		"--concurrency", "8",
		"--scan-timeout=-1s",
		"--third", "0-3",
		"--accept-ping",
		"--debug",
	)
	require.NoError(t, err)

	assert.Equal(t, "AA-BB-CC-DD-EE-FF", cfg.MAC)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, -time.Second, cfg.ScanTimeout)
	assert.Equal(t, "0-3", cfg.Range.Third)
	assert.True(t, cfg.AcceptPing)
	assert.True(t, cfg.Log.Debug)
}

func TestLoadFileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flexfinder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mac: aa:bb:cc:dd:ee:ff
concurrency: 16
probe_timeout: 300ms
range:
  third: "10-11"
log:
  level: warn
`), 0o600))

	cfg, err := load(t, "--config", path, "--concurrency", "4")
	require.NoError(t, err)

	assert.Equal(t, "aa:bb:cc:dd:ee:ff", cfg.MAC)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 300*time.Millisecond, cfg.ProbeTimeout)
	assert.Equal(t, "10-11", cfg.Range.Third)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("FLEXFINDER_PORT", "8080")
	t.Setenv("FLEXFINDER_MODE", "arp")
	t.Setenv("FLEXFINDER_INTERFACE", "eth0")

	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ModeARP, cfg.Mode)
	assert.Equal(t, "eth0", cfg.Interface)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := load(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad mode", []string{"--mode", "udp"}},
		{"arp without interface", []string{"--mode", "arp"}},
		{"zero concurrency", []string{"--concurrency", "0"}},
		{"bad port", []string{"--port", "70000"}},
		{"bad mac", []string{"--mac", "not-a-mac"}},
		{"bad ip", []string{"--ip", "fe80::1"}},
		{"reversed range", []string{"--fourth", "200-100"}},
		{"third out of bounds", []string{"--third", "0-256"}},
		{"zero probe timeout", []string{"--probe-timeout", "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.args...)
			require.Error(t, err)
		})
	}
}

func TestPolicy(t *testing.T) {
	local := netip.MustParseAddr("192.168.7.20")

	cfg, err := load(t)
	require.NoError(t, err)

	p, err := cfg.Policy(local)
	require.NoError(t, err)
	assert.Equal(t, subnet.Range{Lo: 7, Hi: 7}, p.Third)
	assert.Equal(t, subnet.Range{Lo: 1, Hi: 254}, p.Fourth)

	cfg, err = load(t, "--third", "0-255", "--fourth", "10-20")
	require.NoError(t, err)

	p, err = cfg.Policy(local)
	require.NoError(t, err)
	assert.Equal(t, 256*11, p.Size())
}

func TestManualIP(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)

	_, ok := cfg.ManualIP()
	assert.False(t, ok)

	cfg, err = load(t, "--ip", "10.0.0.42")
	require.NoError(t, err)

	addr, ok := cfg.ManualIP()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.42", addr.String())
}
