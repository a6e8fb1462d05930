// Package arpscan sweeps candidates with raw ARP requests over pcap. Unlike
// a TCP sweep it learns each responder's MAC directly from the reply.
package arpscan

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"flexfinder/internal/logger"
	"flexfinder/internal/models"
)

var errNoIPv4 = errors.New("no IPv4 address found on interface")

// Config controls the sweep.
type Config struct {
	// RateLimit introduces a delay between ARP requests to avoid overrunning buffers.
	// Defaults to 50µs if unset or <= 0.
	RateLimit time.Duration
	// IdleWait is how long to wait for late replies after sending requests.
	// Defaults to 500ms if unset or <= 0.
	IdleWait time.Duration
	// Promisc controls whether we open the interface in promiscuous mode.
	// Defaults to false if unset.
	Promisc *bool
}

func applyDefaults(cfg *Config) Config {
	if cfg == nil {
		return Config{
			RateLimit: 50 * time.Microsecond,
			IdleWait:  500 * time.Millisecond,
			Promisc:   ptrBool(false),
		}
	}

	out := *cfg
	if out.RateLimit <= 0 {
		out.RateLimit = 50 * time.Microsecond
	}
	if out.IdleWait <= 0 {
		out.IdleWait = 500 * time.Millisecond
	}
	if out.Promisc == nil {
		out.Promisc = ptrBool(false)
	}
	return out
}

// Sweeper sends ARP requests out of one interface.
type Sweeper struct {
	iface   *net.Interface
	localIP netip.Addr
	cfg     Config
	logger  logger.Logger
	onProbe func(models.ProbeResult)
}

// OnProbe registers a callback invoked once per request sent and once per
// first reply from a requested host. Calls are serialized.
func (s *Sweeper) OnProbe(fn func(models.ProbeResult)) {
	s.onProbe = fn
}

// progress turns sent requests and replies into ProbeResults.
type progress struct {
	mu       sync.Mutex
	fn       func(models.ProbeResult)
	sent     map[netip.Addr]time.Time
	answered map[netip.Addr]struct{}
}

func newProgress(fn func(models.ProbeResult)) *progress {
	return &progress{
		fn:       fn,
		sent:     make(map[netip.Addr]time.Time),
		answered: make(map[netip.Addr]struct{}),
	}
}

func (p *progress) requested(addr netip.Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sent[addr] = time.Now()

	if p.fn != nil {
		p.fn(models.ProbeResult{Addr: addr})
	}
}

// replied reports whether n is the first answer to one of our requests.
func (p *progress) replied(n models.Neighbor) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	at, ok := p.sent[n.IP]
	if !ok {
		return false
	}

	if _, dup := p.answered[n.IP]; dup {
		return false
	}

	p.answered[n.IP] = struct{}{}

	if p.fn != nil {
		p.fn(models.ProbeResult{Addr: n.IP, MAC: n.MAC, RTT: time.Since(at)})
	}

	return true
}

// New binds a Sweeper to the named interface.
func New(interfaceName string, cfg *Config, log logger.Logger) (*Sweeper, error) {
	if log == nil {
		log = logger.NewTestLogger()
	}

	iface, err := net.InterfaceByName(interfaceName)
	if err != nil {
		return nil, fmt.Errorf("could not get interface: %w", err)
	}

	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("could not get interface addresses: %w", err)
	}

	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}

		if ip4, ok := netip.AddrFromSlice(ipnet.IP.To4()); ok {
			return &Sweeper{
				iface:   iface,
				localIP: ip4,
				cfg:     applyDefaults(cfg),
				logger:  log.WithComponent("arpscan"),
			}, nil
		}
	}

	return nil, errNoIPv4
}

// Sweep sends one ARP request per distinct candidate and collects replies
// until IdleWait passes or ctx ends. Only failing to open the capture handle
// is an error.
func (s *Sweeper) Sweep(ctx context.Context, candidates iter.Seq[netip.Addr]) (models.ScanReport, error) {
	report := models.ScanReport{Started: time.Now()}

	if ctx.Err() != nil {
		return report, nil
	}

	handle, err := pcap.OpenLive(s.iface.Name, 65536, *s.cfg.Promisc, pcap.BlockForever)
	if err != nil {
		return report, fmt.Errorf("could not open handle: %w", err)
	}
	defer handle.Close()

	// Only ARP replies matter.
	if err := handle.SetBPFFilter("arp"); err != nil {
		return report, fmt.Errorf("could not set BPF filter: %w", err)
	}

	var (
		mu         sync.Mutex
		discovered = make(map[netip.Addr]models.Neighbor)
		wanted     = make(map[netip.Addr]struct{})
		wg         sync.WaitGroup
	)

	done := make(chan struct{})
	track := newProgress(s.onProbe)

	wg.Add(1)

	go func() {
		defer wg.Done()

		src := gopacket.NewPacketSource(handle, layers.LayerTypeEthernet)
		in := src.Packets()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case packet, ok := <-in:
				if !ok {
					return
				}

				n, ok := parseReply(packet, s.localIP, s.iface.Name)
				if !ok {
					continue
				}

				mu.Lock()
				discovered[n.IP] = n
				mu.Unlock()

				track.replied(n)
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.RateLimit)
	defer ticker.Stop()

	aborted := false

send:
	for addr := range candidates {
		if _, dup := wanted[addr]; dup || addr == s.localIP || !addr.Is4() {
			continue
		}

		select {
		case <-ctx.Done():
			aborted = true
			break send
		case <-ticker.C:
		}

		wanted[addr] = struct{}{}
		track.requested(addr)

		if err := s.sendRequest(handle, addr); err != nil {
			report.Errors++
			s.logger.Debug().Err(err).Str("addr", addr.String()).Msg("failed to send ARP request")
		}

		report.Probed++
	}

	if !aborted {
		waitTimer := time.NewTimer(s.cfg.IdleWait)

		select {
		case <-ctx.Done():
			aborted = true
		case <-waitTimer.C:
		}

		waitTimer.Stop()
	}

	close(done)
	wg.Wait()

	for addr, n := range discovered {
		if _, ok := wanted[addr]; !ok {
			continue
		}

		report.Responders = append(report.Responders, addr)
		report.Observed = append(report.Observed, n)
	}

	slices.SortFunc(report.Responders, func(a, b netip.Addr) int { return a.Compare(b) })
	slices.SortFunc(report.Observed, func(a, b models.Neighbor) int { return a.IP.Compare(b.IP) })

	report.Total = len(wanted)
	report.Complete = !aborted
	report.Elapsed = time.Since(report.Started)

	s.logger.Debug().
		Int("requests", report.Probed).
		Int("replies", len(report.Responders)).
		Bool("complete", report.Complete).
		Msg("ARP sweep finished")

	return report, nil
}

func (s *Sweeper) sendRequest(handle *pcap.Handle, dst netip.Addr) error {
	data, err := buildRequest(s.iface.HardwareAddr, s.localIP, dst)
	if err != nil {
		return err
	}

	return handle.WritePacketData(data)
}

// buildRequest serializes a broadcast ARP who-has for dst.
func buildRequest(srcMAC net.HardwareAddr, src, dst netip.Addr) ([]byte, error) {
	eth := layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	srcIP, dstIP := src.As4(), dst.As4()
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: srcIP[:],
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    dstIP[:],
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &arp); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// parseReply extracts the sender of an ARP reply, ignoring our own traffic.
func parseReply(packet gopacket.Packet, localIP netip.Addr, iface string) (models.Neighbor, bool) {
	arpLayer := packet.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return models.Neighbor{}, false
	}

	arp, ok := arpLayer.(*layers.ARP)
	if !ok || arp.Operation != layers.ARPReply {
		return models.Neighbor{}, false
	}

	ip, ok := netip.AddrFromSlice(arp.SourceProtAddress)
	if !ok || ip == localIP {
		return models.Neighbor{}, false
	}

	return models.Neighbor{
		IP:        ip.Unmap(),
		MAC:       net.HardwareAddr(arp.SourceHwAddress).String(),
		Interface: iface,
	}, true
}

func ptrBool(v bool) *bool {
	return &v
}
