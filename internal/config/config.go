// Package config loads flexfinder settings from flags, environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"flexfinder/internal/logger"
	"flexfinder/internal/macaddr"
	"flexfinder/internal/robot"
	"flexfinder/internal/subnet"
)

const EnvPrefix = "FLEXFINDER"

const (
	ModeTCP = "tcp"
	ModeARP = "arp"
)

var errInvalidConfig = errors.New("invalid configuration")

// Range holds the octet ranges as typed by the user. An empty Third means
// the third octet of the local address.
type Range struct {
	Third  string `mapstructure:"third"`
	Fourth string `mapstructure:"fourth"`
}

type Config struct {
	Name         string        `mapstructure:"name"`
	MAC          string        `mapstructure:"mac"`
	IP           string        `mapstructure:"ip"`
	Interface    string        `mapstructure:"interface"`
	Port         int           `mapstructure:"port"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	ScanTimeout  time.Duration `mapstructure:"scan_timeout"`
	Concurrency  int           `mapstructure:"concurrency"`
	Ping         bool          `mapstructure:"ping"`
	AcceptPing   bool          `mapstructure:"accept_ping"`
	Mode         string        `mapstructure:"mode"`
	Range        Range         `mapstructure:"range"`
	Verify       bool          `mapstructure:"verify"`
	DeviceFile   string        `mapstructure:"device_file"`
	Report       string        `mapstructure:"report"`
	HistoryDSN   string        `mapstructure:"history_dsn"`
	TUI          bool          `mapstructure:"tui"`
	Log          logger.Config `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "flex")
	v.SetDefault("port", robot.Port)
	v.SetDefault("probe_timeout", 750*time.Millisecond)
	v.SetDefault("scan_timeout", 60*time.Second)
	v.SetDefault("concurrency", 128)
	v.SetDefault("mode", ModeTCP)
	v.SetDefault("range.fourth", "1-254")
	v.SetDefault("verify", true)
	v.SetDefault("device_file", robot.DefaultDeviceFile)

	def := logger.DefaultConfig()
	v.SetDefault("log.level", def.Level)
	v.SetDefault("log.output", def.Output)
	v.SetDefault("log.console", def.Console)
}

// Flags registers the command line flags. Flag names use dashes; the keys
// they bind to use underscores and dots.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (yaml or json)")
	fs.String("name", "flex", "name stored with a newly registered robot")
	fs.String("mac", "", "robot MAC address; registers the robot when given")
	fs.String("ip", "", "robot IP address; skips discovery")
	fs.StringP("interface", "i", "", "network interface to sweep from")
	fs.Int("port", robot.Port, "robot HTTP port probed during the sweep")
	fs.Duration("probe-timeout", 750*time.Millisecond, "timeout for a single probe")
	fs.Duration("scan-timeout", 60*time.Second, "deadline for the whole sweep (0 expires at once, negative disables)")
	fs.Int("concurrency", 128, "probes in flight")
	fs.Bool("ping", false, "also send an ICMP echo to each candidate")
	fs.Bool("accept-ping", false, "count ping-only hosts as responders")
	fs.String("mode", ModeTCP, "sweep mode: tcp or arp")
	fs.String("third", "", "third octet range, e.g. 0-255 (default: local octet)")
	fs.String("fourth", "1-254", "fourth octet range")
	fs.Bool("verify", true, "check the robot health endpoint after resolving")
	fs.String("device-file", robot.DefaultDeviceFile, "registered robot file")
	fs.String("report", "", "write an HTML discovery report to this path")
	fs.String("history-dsn", "", "Postgres DSN for discovery history")
	fs.Bool("tui", false, "show sweep progress in a terminal UI")
	fs.String("log-level", "info", "log level")
	fs.Bool("debug", false, "debug logging")
}

var flagKeys = map[string]string{
	"name":          "name",
	"mac":           "mac",
	"ip":            "ip",
	"interface":     "interface",
	"port":          "port",
	"probe-timeout": "probe_timeout",
	"scan-timeout":  "scan_timeout",
	"concurrency":   "concurrency",
	"ping":          "ping",
	"accept-ping":   "accept_ping",
	"mode":          "mode",
	"third":         "range.third",
	"fourth":        "range.fourth",
	"verify":        "verify",
	"device-file":   "device_file",
	"report":        "report",
	"history-dsn":   "history_dsn",
	"tui":           "tui",
	"log-level":     "log.level",
	"debug":         "log.debug",
}

// Load merges defaults, the config file, FLEXFINDER_* variables and the
// flags set on fs, in increasing precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}

		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("binding flag %s: %w", name, err)
		}
	}

	if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not parse configuration file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Mode != ModeTCP && c.Mode != ModeARP {
		errs = append(errs, fmt.Errorf("%w: mode %q is not tcp or arp", errInvalidConfig, c.Mode))
	}

	if c.Mode == ModeARP && c.Interface == "" {
		errs = append(errs, fmt.Errorf("%w: arp mode needs an interface", errInvalidConfig))
	}

	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("%w: concurrency must be at least 1", errInvalidConfig))
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: port %d out of range", errInvalidConfig, c.Port))
	}

	if c.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: probe timeout must be positive", errInvalidConfig))
	}

	if c.MAC != "" {
		if _, err := macaddr.Normalize(c.MAC); err != nil {
			errs = append(errs, err)
		}
	}

	if c.IP != "" {
		if _, err := subnet.ParseLocal(c.IP); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Range.Third != "" {
		if _, err := subnet.ParseRange(c.Range.Third); err != nil {
			errs = append(errs, fmt.Errorf("third octet: %w", err))
		}
	}

	if _, err := subnet.ParseRange(c.Range.Fourth); err != nil {
		errs = append(errs, fmt.Errorf("fourth octet: %w", err))
	}

	return errors.Join(errs...)
}

// Policy builds the sweep policy around local.
func (c *Config) Policy(local netip.Addr) (subnet.Policy, error) {
	p := subnet.ClassC(local)

	if c.Range.Third != "" {
		r, err := subnet.ParseRange(c.Range.Third)
		if err != nil {
			return subnet.Policy{}, err
		}

		p.Third = r
	}

	r, err := subnet.ParseRange(c.Range.Fourth)
	if err != nil {
		return subnet.Policy{}, err
	}

	p.Fourth = r

	return p, nil
}

// ManualIP returns the --ip override, if any.
func (c *Config) ManualIP() (netip.Addr, bool) {
	if c.IP == "" {
		return netip.Addr{}, false
	}

	addr, err := subnet.ParseLocal(c.IP)
	if err != nil {
		return netip.Addr{}, false
	}

	return addr, true
}
