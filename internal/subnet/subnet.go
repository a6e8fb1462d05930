// Package subnet enumerates candidate IPv4 hosts around the local address.
package subnet

import (
	"errors"
	"fmt"
	"iter"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"flexfinder/internal/models"
)

const maxOctet = 255

// Range is an inclusive octet range.
type Range struct {
	Lo int
	Hi int
}

func (r Range) validate() error {
	if r.Lo < 0 || r.Hi > maxOctet || r.Lo > r.Hi {
		return fmt.Errorf("%w: %d-%d", models.ErrInvalidRange, r.Lo, r.Hi)
	}

	return nil
}

// Size returns the number of octet values in the range.
func (r Range) Size() int {
	if r.Hi < r.Lo {
		return 0
	}

	return r.Hi - r.Lo + 1
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Lo, r.Hi)
}

// ParseRange parses "lo-hi" or a single octet "n".
func ParseRange(s string) (Range, error) {
	lo, hi, found := strings.Cut(strings.TrimSpace(s), "-")
	if !found {
		hi = lo
	}

	l, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", models.ErrInvalidRange, s)
	}

	h, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", models.ErrInvalidRange, s)
	}

	r := Range{Lo: l, Hi: h}

	return r, r.validate()
}

// Policy selects the block to sweep: the first two octets come from the
// local address, the last two from Third and Fourth.
type Policy struct {
	Third  Range
	Fourth Range
}

// Validate checks both ranges.
func (p Policy) Validate() error {
	return errors.Join(p.Third.validate(), p.Fourth.validate())
}

// Size returns the number of candidates the policy yields.
func (p Policy) Size() int {
	return p.Third.Size() * p.Fourth.Size()
}

// ClassC sweeps the local /24, skipping network and broadcast octets.
func ClassC(local netip.Addr) Policy {
	third := 0
	if local.Is4() {
		third = int(local.As4()[2])
	}

	return Policy{
		Third:  Range{Lo: third, Hi: third},
		Fourth: Range{Lo: 1, Hi: 254},
	}
}

// ClassB sweeps the local /16.
func ClassB() Policy {
	return Policy{
		Third:  Range{Lo: 0, Hi: maxOctet},
		Fourth: Range{Lo: 1, Hi: 254},
	}
}

// PolicyForPrefix derives a policy from an interface prefix between /16 and
// /24. Wider prefixes are clamped to the /16 that holds the address.
func PolicyForPrefix(prefix netip.Prefix) (Policy, error) {
	if !prefix.Addr().Is4() {
		return Policy{}, fmt.Errorf("%w: %s is not IPv4", models.ErrInvalidAddress, prefix)
	}

	bits := prefix.Bits()
	if bits > 24 {
		return Policy{}, fmt.Errorf("%w: /%d is narrower than /24", models.ErrInvalidRange, bits)
	}

	if bits <= 16 {
		return ClassB(), nil
	}

	base := int(prefix.Masked().Addr().As4()[2])
	span := 1 << (24 - bits)

	return Policy{
		Third:  Range{Lo: base, Hi: base + span - 1},
		Fourth: Range{Lo: 1, Hi: 254},
	}, nil
}

// Candidates lazily yields every address in the policy's block in ascending
// numeric order.
func Candidates(local netip.Addr, p Policy) (iter.Seq[netip.Addr], error) {
	if !local.Is4() {
		return nil, fmt.Errorf("%w: local address %s is not IPv4", models.ErrInvalidAddress, local)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	octets := local.As4()

	return func(yield func(netip.Addr) bool) {
		for c := p.Third.Lo; c <= p.Third.Hi; c++ {
			for d := p.Fourth.Lo; d <= p.Fourth.Hi; d++ {
				addr := netip.AddrFrom4([4]byte{octets[0], octets[1], byte(c), byte(d)})
				if !yield(addr) {
					return
				}
			}
		}
	}, nil
}

// ParseLocal validates a dotted-quad local address.
func ParseLocal(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil || !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %q", models.ErrInvalidAddress, s)
	}

	return addr, nil
}

// LocalIPv4 returns the address the OS would use to reach the outside world.
// Dialing UDP only consults the routing table; nothing is sent.
func LocalIPv4() (netip.Addr, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return netip.Addr{}, fmt.Errorf("could not determine local address: %w", err)
	}
	defer conn.Close()

	udp, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.Addr{}, errors.New("unexpected local address type")
	}

	addr, ok := netip.AddrFromSlice(udp.IP.To4())
	if !ok {
		return netip.Addr{}, errors.New("no IPv4 address found on default route")
	}

	return addr, nil
}

// InterfaceIPv4 returns the first IPv4 prefix configured on the named interface.
func InterfaceIPv4(name string) (netip.Prefix, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("could not get interface: %w", err)
	}

	addrs, err := iface.Addrs()
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("could not get interface addresses: %w", err)
	}

	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}

		ip4 := ipnet.IP.To4()
		if ip4 == nil {
			continue
		}

		ones, bits := ipnet.Mask.Size()
		if bits == 8*net.IPv6len {
			ones -= 8 * (net.IPv6len - net.IPv4len)
		}

		addr, _ := netip.AddrFromSlice(ip4)

		return netip.PrefixFrom(addr, ones), nil
	}

	return netip.Prefix{}, errors.New("no IPv4 address found on interface")
}
