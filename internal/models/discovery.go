package models

import (
	"net/netip"
	"time"
)

// ProbeResult holds the outcome of a single liveness check.
type ProbeResult struct {
	Addr     netip.Addr
	Port     int
	PortOpen bool
	PingOK   bool
	RTT      time.Duration
	// MAC is set when the host answered an ARP request.
	MAC string
}

// Alive reports whether the probe saw the host by any signal.
func (r ProbeResult) Alive() bool {
	return r.PortOpen || r.PingOK || r.MAC != ""
}

// Neighbor is one entry of the OS neighbor (ARP) table.
type Neighbor struct {
	IP        netip.Addr
	MAC       string // Canonical form, e.g. aa:bb:cc:dd:ee:ff
	Interface string
}

// ScanReport summarizes a sweep over a candidate set.
type ScanReport struct {
	Responders []netip.Addr
	// Observed holds MACs the sweep learned on its own (ARP replies).
	Observed []Neighbor
	Probed   int
	Total    int
	Errors   int
	Complete bool
	Started  time.Time
	Elapsed  time.Duration
}

// TargetDevice is the robot a discovery session is looking for.
type TargetDevice struct {
	Name       string
	MAC        string
	ResolvedIP netip.Addr
}

// Resolved reports whether an address has been assigned.
func (d *TargetDevice) Resolved() bool {
	return d.ResolvedIP.IsValid()
}
