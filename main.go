package main

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"flexfinder/internal/arpscan"
	"flexfinder/internal/config"
	"flexfinder/internal/history"
	"flexfinder/internal/logger"
	"flexfinder/internal/models"
	"flexfinder/internal/neighbor"
	"flexfinder/internal/probe"
	"flexfinder/internal/reporting"
	"flexfinder/internal/resolver"
	"flexfinder/internal/robot"
	"flexfinder/internal/scanner"
	"flexfinder/internal/subnet"
	"flexfinder/internal/tui"
)

const historyTimeout = 5 * time.Second

var (
	okLine   = color.New(color.FgGreen, color.Bold)
	failLine = color.New(color.FgRed, color.Bold)
	hintLine = color.New(color.FgYellow)
)

// progressSource is a sweeper that reports probes as they complete.
type progressSource interface {
	OnProbe(fn func(models.ProbeResult))
}

type outcome struct {
	addr netip.Addr
	err  error
}

func main() {
	fs := pflag.NewFlagSet("flexfinder", pflag.ExitOnError)
	config.Flags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		failLine.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if cfg.TUI {
		// Anything below error would draw over the terminal UI.
		cfg.Log.Level = "error"
		cfg.Log.Debug = false
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		failLine.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	registry := robot.NewRegistry(cfg.DeviceFile)

	device, err := loadDevice(registry, cfg)
	if err != nil {
		failLine.Fprintln(os.Stderr, err)
		if errors.Is(err, robot.ErrNotRegistered) {
			hintLine.Fprintln(os.Stderr, "Register the robot first with --mac <address>.")
		}
		return err
	}

	addr, manual := cfg.ManualIP()
	if manual {
		log.Info().Str("ip", addr.String()).Msg("using manual address, skipping discovery")
	} else {
		addr, err = discover(ctx, cfg, device, log)
		if err != nil {
			failLine.Fprintf(os.Stderr, "Could not find robot %s (%s) on the network: %v\n", device.Name, device.MAC, err)
			hintLine.Fprintln(os.Stderr, "Enter the robot's address manually with --ip <address>.")
			if last, ok := device.LastAddr(); ok {
				hintLine.Fprintf(os.Stderr, "Its last known address was %s.\n", last)
			}
			return err
		}
	}

	client := robot.NewClient(netip.AddrPortFrom(addr, uint16(cfg.Port)), nil)

	if !cfg.Verify {
		okLine.Printf("Robot %s resolved to %s (not verified)\n", device.Name, addr)
		fmt.Println(client.BaseURL())
		return nil
	}

	health, err := client.Health(ctx)
	if err != nil {
		failLine.Fprintf(os.Stderr, "Robot %s at %s is not reachable: %v\n", device.Name, addr, err)
		hintLine.Fprintln(os.Stderr, "Check the robot is powered on, or enter its address manually with --ip <address>.")
		return err
	}

	if err := registry.RememberIP(device, addr); err != nil {
		log.Warn().Err(err).Str("file", registry.Path()).Msg("could not save last address")
	}

	okLine.Printf("Connected to %s (%s, API %s) at %s\n", health.Name, health.RobotModel, health.APIVersion, addr)
	fmt.Println(client.BaseURL())

	return nil
}

func loadDevice(registry *robot.Registry, cfg *config.Config) (*robot.Device, error) {
	if cfg.MAC == "" {
		return registry.Load()
	}

	device, err := registry.Register(cfg.Name, cfg.MAC)
	if err != nil {
		return nil, err
	}

	return device, nil
}

func localAddress(cfg *config.Config) (netip.Addr, error) {
	if cfg.Interface == "" {
		return subnet.LocalIPv4()
	}

	prefix, err := subnet.InterfaceIPv4(cfg.Interface)
	if err != nil {
		return netip.Addr{}, err
	}

	return prefix.Addr(), nil
}

func discover(ctx context.Context, cfg *config.Config, device *robot.Device, log logger.Logger) (netip.Addr, error) {
	local, err := localAddress(cfg)
	if err != nil {
		return netip.Addr{}, err
	}

	policy, err := cfg.Policy(local)
	if err != nil {
		return netip.Addr{}, err
	}

	session, err := resolver.NewSession(device.MAC, resolver.Options{
		Name:     device.Name,
		Local:    local,
		Policy:   policy,
		Deadline: cfg.ScanTimeout,
	})
	if err != nil {
		return netip.Addr{}, err
	}

	var sweeper resolver.Sweeper

	switch cfg.Mode {
	case config.ModeARP:
		arp, err := arpscan.New(cfg.Interface, nil, log)
		if err != nil {
			return netip.Addr{}, err
		}
		sweeper = arp
	default:
		var pinger probe.Pinger
		if cfg.Ping || cfg.AcceptPing {
			pinger = probe.NewPinger()
		}

		sweeper = scanner.New(probe.NewProber(pinger, log), scanner.Config{
			Port:        cfg.Port,
			Timeout:     cfg.ProbeTimeout,
			Concurrency: cfg.Concurrency,
			AcceptPing:  cfg.AcceptPing,
		}, log)
	}

	res := resolver.New(neighbor.System(), sweeper, log)

	var out outcome
	if cfg.TUI {
		out, err = resolveWithTUI(ctx, cfg, res, session, sweeper)
		if err != nil {
			return netip.Addr{}, err
		}
	} else {
		out.addr, out.err = res.Resolve(ctx, session)
	}

	record(ctx, cfg, session, log)

	return out.addr, out.err
}

func resolveWithTUI(ctx context.Context, cfg *config.Config, res *resolver.Resolver, session *resolver.Session, sweeper resolver.Sweeper) (outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := tui.NewDiscoveryModel(session.Target.MAC, cfg.Interface, session.Policy.Size())
	p := tea.NewProgram(model, tea.WithAltScreen())

	if src, ok := sweeper.(progressSource); ok {
		src.OnProbe(func(r models.ProbeResult) { p.Send(tui.ProbeMsg(r)) })
	}
	session.Observe(func(s resolver.State) { p.Send(tui.StateMsg(s)) })

	done := make(chan outcome, 1)
	go func() {
		addr, err := res.Resolve(ctx, session)
		done <- outcome{addr: addr, err: err}
		p.Send(tui.DoneMsg{Addr: addr, Err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return outcome{}, fmt.Errorf("running TUI: %w", err)
	}

	// Quitting early cancels the sweep; the resolver still reports how far it got.
	cancel()

	return <-done, nil
}

func record(ctx context.Context, cfg *config.Config, session *resolver.Session, log logger.Logger) {
	if cfg.Report != "" {
		filename, err := reporting.GenerateSessionReport(session, "html", cfg.Report)
		if err != nil {
			log.Warn().Err(err).Msg("could not write discovery report")
		} else {
			log.Info().Str("file", filename).Msg("discovery report written")
		}
	}

	if cfg.HistoryDSN == "" {
		return
	}

	ctx, cancel := historyContext(ctx)
	defer cancel()

	store, closeDB, err := history.Open(ctx, cfg.HistoryDSN, log)
	if err != nil {
		log.Warn().Err(err).Msg("discovery history unavailable")
		return
	}
	defer closeDB()

	if err := store.Record(ctx, history.FromSession(session)); err != nil {
		log.Warn().Err(err).Msg("could not record discovery history")
	}
}

// historyContext outlives an interrupt so an aborted session is still
// recorded, but bounds the write.
func historyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
}
