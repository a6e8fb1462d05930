package probe

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

var errNoReply = errors.New("no echo reply")

// ICMPPinger pings over an ICMP socket. Unprivileged mode uses the datagram
// socket Linux and macOS expose to ordinary users.
type ICMPPinger struct {
	Privileged bool
}

func (p ICMPPinger) network() string {
	if p.Privileged {
		return "ip4:icmp"
	}

	return "udp4"
}

func (p ICMPPinger) Ping(ctx context.Context, addr netip.Addr, timeout time.Duration) (time.Duration, error) {
	conn, err := icmp.ListenPacket(p.network(), "0.0.0.0")
	if err != nil {
		return 0, fmt.Errorf("failed to open ICMP socket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := conn.SetDeadline(deadline); err != nil {
		return 0, err
	}

	id, seq := rand.IntN(0xffff), rand.IntN(0xffff)

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte("flexfinder")},
	}

	b, err := msg.Marshal(nil)
	if err != nil {
		return 0, err
	}

	var dst net.Addr = &net.UDPAddr{IP: addr.AsSlice()}
	if p.Privileged {
		dst = &net.IPAddr{IP: addr.AsSlice()}
	}

	start := time.Now()

	if _, err := conn.WriteTo(b, dst); err != nil {
		return 0, err
	}

	buf := make([]byte, 1500)

	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return 0, err
		}

		if !matchesPeer(peer, addr) {
			continue
		}

		reply, err := icmp.ParseMessage(ipv4.ICMPTypeEcho.Protocol(), buf[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}

		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq {
			continue
		}

		// The kernel rewrites the ID of datagram sockets to the local port.
		if p.Privileged && echo.ID != id {
			continue
		}

		return time.Since(start), nil
	}
}

func matchesPeer(peer net.Addr, addr netip.Addr) bool {
	var ip net.IP

	switch a := peer.(type) {
	case *net.UDPAddr:
		ip = a.IP
	case *net.IPAddr:
		ip = a.IP
	default:
		return false
	}

	got, ok := netip.AddrFromSlice(ip)

	return ok && got.Unmap() == addr
}

// ExecPinger shells out to the system ping utility. It is the fallback when
// the process may not open ICMP sockets.
type ExecPinger struct{}

func (ExecPinger) Ping(ctx context.Context, addr netip.Addr, timeout time.Duration) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout+500*time.Millisecond)
	defer cancel()

	start := time.Now()

	cmd := exec.CommandContext(ctx, "ping", pingArgs(runtime.GOOS, addr, timeout)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return 0, fmt.Errorf("%w: %v (%s)", errNoReply, err, output)
	}

	return time.Since(start), nil
}

func pingArgs(goos string, addr netip.Addr, timeout time.Duration) []string {
	ms := max(timeout.Milliseconds(), 1)

	switch goos {
	case "windows":
		return []string{"-n", "1", "-w", strconv.FormatInt(ms, 10), addr.String()}
	case "darwin", "freebsd", "openbsd", "netbsd":
		// -W is milliseconds on BSD ping.
		return []string{"-c", "1", "-W", strconv.FormatInt(ms, 10), addr.String()}
	default:
		secs := max((ms+999)/1000, 1)
		return []string{"-c", "1", "-W", strconv.FormatInt(secs, 10), addr.String()}
	}
}

// NewPinger picks a socket pinger when the platform allows one and falls
// back to the ping binary otherwise.
func NewPinger() Pinger {
	for _, p := range []ICMPPinger{{Privileged: false}, {Privileged: true}} {
		conn, err := icmp.ListenPacket(p.network(), "0.0.0.0")
		if err == nil {
			_ = conn.Close()
			return p
		}
	}

	return ExecPinger{}
}
