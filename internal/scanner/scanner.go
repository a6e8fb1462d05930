// Package scanner sweeps a candidate set with a bounded pool of probes.
package scanner

import (
	"context"
	"iter"
	"net/netip"
	"slices"
	"sync"
	"time"

	"flexfinder/internal/logger"
	"flexfinder/internal/models"
)

const (
	defaultConcurrency           = 128
	defaultConcurrencyMultiplier = 2
	defaultGrace                 = 250 * time.Millisecond
	defaultPort                  = 31950
)

// Prober checks a single host.
type Prober interface {
	Probe(ctx context.Context, addr netip.Addr, port int, timeout time.Duration) (models.ProbeResult, error)
}

// Config tunes a sweep.
type Config struct {
	Port        int
	Timeout     time.Duration
	Concurrency int
	// AcceptPing counts hosts that answer ICMP but not the TCP port.
	AcceptPing bool
	// Grace bounds how long an aborted sweep waits for in-flight probes.
	Grace time.Duration
}

func applyDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	if cfg.Grace <= 0 {
		cfg.Grace = defaultGrace
	}

	return cfg
}

// Scanner fans probes out over a fixed number of workers.
type Scanner struct {
	prober  Prober
	cfg     Config
	logger  logger.Logger
	onProbe func(models.ProbeResult)
}

func New(prober Prober, cfg Config, log logger.Logger) *Scanner {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Scanner{
		prober: prober,
		cfg:    applyDefaults(cfg),
		logger: log.WithComponent("scanner"),
	}
}

// OnProbe registers a callback invoked once per completed probe, from a
// single goroutine.
func (s *Scanner) OnProbe(fn func(models.ProbeResult)) {
	s.onProbe = fn
}

// Config returns the effective configuration.
func (s *Scanner) Config() Config {
	return s.cfg
}

type outcome struct {
	result models.ProbeResult
	err    error
}

type dispatchSummary struct {
	total     int
	exhausted bool
}

// Sweep probes every distinct candidate once. The error is always nil:
// when ctx ends first the report carries what was collected and
// Complete is false.
func (s *Scanner) Sweep(ctx context.Context, candidates iter.Seq[netip.Addr]) (models.ScanReport, error) {
	report := models.ScanReport{Started: time.Now()}

	if ctx.Err() != nil {
		s.logger.Debug().Msg("sweep deadline already passed")

		report.Elapsed = time.Since(report.Started)

		return report, nil
	}

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workCh := make(chan netip.Addr, s.cfg.Concurrency*defaultConcurrencyMultiplier)
	resultCh := make(chan outcome, s.cfg.Concurrency)
	summaryCh := make(chan dispatchSummary, 1)

	var wg sync.WaitGroup

	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			s.worker(scanCtx, workCh, resultCh)
		}()
	}

	go s.dispatch(scanCtx, candidates, workCh, summaryCh)

	go func() {
		wg.Wait()

		close(resultCh)
	}()

	responders := make(map[netip.Addr]struct{})

	aborted := s.collect(ctx, resultCh, responders, &report)
	if aborted {
		cancel()
		s.drain(resultCh, responders, &report)
	}

	var summary dispatchSummary

	select {
	case summary = <-summaryCh:
	default:
	}

	report.Total = summary.total
	report.Complete = !aborted && summary.exhausted && report.Probed == summary.total
	report.Responders = sortedAddrs(responders)
	report.Elapsed = time.Since(report.Started)

	s.logger.Debug().
		Int("probed", report.Probed).
		Int("responders", len(report.Responders)).
		Int("errors", report.Errors).
		Bool("complete", report.Complete).
		Dur("elapsed", report.Elapsed).
		Msg("sweep finished")

	return report, nil
}

func (s *Scanner) dispatch(ctx context.Context, candidates iter.Seq[netip.Addr], workCh chan<- netip.Addr, summaryCh chan<- dispatchSummary) {
	defer close(workCh)

	seen := make(map[netip.Addr]struct{})

	for addr := range candidates {
		if _, dup := seen[addr]; dup {
			continue
		}

		select {
		case <-ctx.Done():
			summaryCh <- dispatchSummary{total: len(seen)}
			return
		case workCh <- addr:
			seen[addr] = struct{}{}
		}
	}

	summaryCh <- dispatchSummary{total: len(seen), exhausted: true}
}

func (s *Scanner) worker(ctx context.Context, workCh <-chan netip.Addr, resultCh chan<- outcome) {
	for addr := range workCh {
		res, err := s.prober.Probe(ctx, addr, s.cfg.Port, s.cfg.Timeout)

		select {
		case <-ctx.Done():
			return
		case resultCh <- outcome{result: res, err: err}:
		}
	}
}

// collect consumes results until the pool finishes or ctx ends. It reports
// whether the sweep was cut short.
func (s *Scanner) collect(ctx context.Context, resultCh <-chan outcome, responders map[netip.Addr]struct{}, report *models.ScanReport) bool {
	for {
		select {
		case out, ok := <-resultCh:
			if !ok {
				return false
			}

			s.record(out, responders, report)
		case <-ctx.Done():
			s.logger.Debug().Err(ctx.Err()).Msg("sweep deadline reached")
			return true
		}
	}
}

// drain keeps recording results for at most the grace period after an
// abort. Workers still running exit on their own once their dial fails.
func (s *Scanner) drain(resultCh <-chan outcome, responders map[netip.Addr]struct{}, report *models.ScanReport) {
	timer := time.NewTimer(s.cfg.Grace)
	defer timer.Stop()

	for {
		select {
		case out, ok := <-resultCh:
			if !ok {
				return
			}

			s.record(out, responders, report)
		case <-timer.C:
			s.logger.Debug().Msg("abandoning in-flight probes")
			return
		}
	}
}

func (s *Scanner) record(out outcome, responders map[netip.Addr]struct{}, report *models.ScanReport) {
	report.Probed++

	if out.err != nil {
		report.Errors++

		s.logger.Debug().Err(out.err).Str("addr", out.result.Addr.String()).Msg("probe failed")
	} else if out.result.PortOpen || (s.cfg.AcceptPing && out.result.PingOK) {
		responders[out.result.Addr] = struct{}{}
	}

	if s.onProbe != nil {
		s.onProbe(out.result)
	}
}

func sortedAddrs(set map[netip.Addr]struct{}) []netip.Addr {
	out := make([]netip.Addr, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}

	slices.SortFunc(out, func(a, b netip.Addr) int { return a.Compare(b) })

	return out
}
