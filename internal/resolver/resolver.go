// Package resolver maps a robot's MAC address to its current IPv4 address.
//
// Resolution is cache first: the OS neighbor table is consulted, and only on
// a miss is the subnet swept once to make the kernel learn new entries,
// after which the table is read again. There is no retry loop; callers
// decide whether to try again.
package resolver

//go:generate mockgen -destination=mock_sweeper.go -package=resolver flexfinder/internal/resolver Sweeper

import (
	"context"
	"fmt"
	"iter"
	"net/netip"
	"time"

	"flexfinder/internal/logger"
	"flexfinder/internal/models"
	"flexfinder/internal/neighbor"
	"flexfinder/internal/subnet"
)

// Sweeper probes a candidate set. A sweep cut short by ctx reports
// Complete=false rather than an error.
type Sweeper interface {
	Sweep(ctx context.Context, candidates iter.Seq[netip.Addr]) (models.ScanReport, error)
}

type Resolver struct {
	table   neighbor.Table
	sweeper Sweeper
	logger  logger.Logger
}

func New(table neighbor.Table, sweeper Sweeper, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Resolver{
		table:   table,
		sweeper: sweeper,
		logger:  log.WithComponent("resolver"),
	}
}

// ResolveRobotAddress resolves mac with a fresh session. It is the single
// call the command layer makes before sending any robot traffic.
func (r *Resolver) ResolveRobotAddress(ctx context.Context, mac string, opts Options) (netip.Addr, error) {
	session, err := NewSession(mac, opts)
	if err != nil {
		return netip.Addr{}, err
	}

	return r.Resolve(ctx, session)
}

// Resolve runs session to a terminal state. Errors are ErrInvalidAddress,
// ErrNotFound, ErrScanAborted, or a wrapped failure to read the table or
// start the sweep.
func (r *Resolver) Resolve(ctx context.Context, s *Session) (netip.Addr, error) {
	s.Started = time.Now()
	log := r.logger.With().Str("session", s.ID.String()).Str("mac", s.Target.MAC).Logger()

	s.transition(StateCheckCache)

	snap, err := neighbor.Read(ctx, r.table)
	if err != nil {
		s.transition(StateFailed)
		return netip.Addr{}, fmt.Errorf("reading neighbor table: %w", err)
	}

	s.Snapshot = snap

	if addr, ok := snap.Lookup(s.Target.MAC); ok {
		log.Info().Str("ip", addr.String()).Msg("found in neighbor table, skipping sweep")
		s.resolve(addr)

		return addr, nil
	}

	s.transition(StateScanning)

	candidates, err := subnet.Candidates(s.Local, s.Policy)
	if err != nil {
		s.transition(StateFailed)
		return netip.Addr{}, err
	}

	scanCtx, cancel := r.scanContext(ctx, s.Deadline)
	defer cancel()

	log.Info().
		Str("local", s.Local.String()).
		Int("candidates", s.Policy.Size()).
		Dur("deadline", s.Deadline).
		Msg("target not cached, sweeping subnet")

	report, err := r.sweeper.Sweep(scanCtx, candidates)
	s.Scanned = true
	s.Report = report

	if err != nil {
		s.transition(StateFailed)
		return netip.Addr{}, fmt.Errorf("sweep failed: %w", err)
	}

	s.transition(StateCheckCacheAgain)

	snap, err = neighbor.Read(ctx, r.table)
	if err != nil {
		s.transition(StateFailed)
		return netip.Addr{}, fmt.Errorf("reading neighbor table: %w", err)
	}

	s.Snapshot = snap.Merge(report.Observed)

	if addr, ok := s.Snapshot.Lookup(s.Target.MAC); ok {
		log.Info().
			Str("ip", addr.String()).
			Int("responders", len(report.Responders)).
			Msg("resolved after sweep")
		s.resolve(addr)

		return addr, nil
	}

	if !report.Complete {
		log.Warn().Int("probed", report.Probed).Int("total", report.Total).Msg("sweep deadline reached before target was seen")
		s.transition(StateScanAborted)

		return netip.Addr{}, fmt.Errorf("%w: %s", models.ErrScanAborted, s.Target.MAC)
	}

	log.Warn().Int("responders", len(report.Responders)).Msg("target not present after sweep")
	s.transition(StateNotFound)

	return netip.Addr{}, fmt.Errorf("%w: %s", models.ErrNotFound, s.Target.MAC)
}

func (r *Resolver) scanContext(ctx context.Context, deadline time.Duration) (context.Context, context.CancelFunc) {
	if deadline < 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, deadline)
}
