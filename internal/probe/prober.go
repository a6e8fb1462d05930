// Package probe checks whether a single host is alive.
package probe

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"flexfinder/internal/logger"
	"flexfinder/internal/models"
)

const defaultTimeout = 750 * time.Millisecond

// Pinger sends one ICMP echo and waits for the reply.
type Pinger interface {
	Ping(ctx context.Context, addr netip.Addr, timeout time.Duration) (time.Duration, error)
}

// Prober runs TCP connect checks and, when a Pinger is set, an ICMP echo.
// It holds no per-probe state and is safe for concurrent use.
type Prober struct {
	pinger Pinger
	logger logger.Logger
}

// NewProber returns a Prober. pinger may be nil to disable ICMP.
func NewProber(pinger Pinger, log logger.Logger) *Prober {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Prober{pinger: pinger, logger: log}
}

// Probe checks addr. Network failures map to false fields; only malformed
// input returns an error.
func (p *Prober) Probe(ctx context.Context, addr netip.Addr, port int, timeout time.Duration) (models.ProbeResult, error) {
	result := models.ProbeResult{Addr: addr, Port: port}

	if err := Validate(addr, port); err != nil {
		return result, err
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var pingCh chan bool

	if p.pinger != nil {
		pingCh = make(chan bool, 1)

		go func() {
			_, err := p.pinger.Ping(ctx, addr, timeout)
			pingCh <- err == nil
		}()
	}

	open, rtt, err := p.checkPort(ctx, addr, port, timeout)
	if err != nil {
		p.logger.Trace().Err(err).Str("addr", addr.String()).Msg("port check failed")
	}

	result.PortOpen = open
	result.RTT = rtt

	if pingCh != nil {
		result.PingOK = <-pingCh
	}

	return result, nil
}

func (p *Prober) checkPort(ctx context.Context, addr netip.Addr, port int, timeout time.Duration) (bool, time.Duration, error) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	var dialer net.Dialer

	conn, err := dialer.DialContext(probeCtx, "tcp4", netip.AddrPortFrom(addr, uint16(port)).String())
	if err != nil {
		if probeCtx.Err() != nil {
			return false, time.Since(start), probeCtx.Err()
		}

		return false, time.Since(start), err
	}

	rtt := time.Since(start)

	if err := conn.Close(); err != nil {
		p.logger.Debug().Err(err).Msg("failed to close connection")
	}

	return true, rtt, nil
}

// Validate rejects addresses and ports no probe could ever reach.
func Validate(addr netip.Addr, port int) error {
	if !addr.Is4() || addr.IsUnspecified() {
		return fmt.Errorf("%w: %s", models.ErrInvalidAddress, addr)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d", models.ErrInvalidAddress, port)
	}

	return nil
}
