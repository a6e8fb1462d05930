// Package neighbor reads the operating system's IPv4 neighbor (ARP) cache.
//
// The table is only ever read. Entries appear as a side effect of the kernel
// handling probe traffic.
package neighbor

import (
	"context"
	"errors"
	"net/netip"
	"slices"
	"time"

	"flexfinder/internal/macaddr"
	"flexfinder/internal/models"
)

var errUnsupportedPlatform = errors.New("neighbor table not supported on this platform")

// Table returns the current contents of a neighbor cache.
type Table interface {
	Entries(ctx context.Context) ([]models.Neighbor, error)
}

// Snapshot is a cleaned, read-only copy of the table at one point in time.
type Snapshot struct {
	entries []models.Neighbor
	taken   time.Time
}

// Read takes a snapshot of t.
func Read(ctx context.Context, t Table) (Snapshot, error) {
	entries, err := t.Entries(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	return NewSnapshot(entries), nil
}

// NewSnapshot drops entries that cannot identify a host (incomplete, zero,
// broadcast or multicast MACs, non-IPv4 addresses) and canonicalizes MACs.
// When an IP appears twice the later entry wins and takes the later position.
func NewSnapshot(entries []models.Neighbor) Snapshot {
	seen := make(map[netip.Addr]struct{}, len(entries))
	cleaned := make([]models.Neighbor, 0, len(entries))

	for i := len(entries) - 1; i >= 0; i-- {
		n, ok := clean(entries[i])
		if !ok {
			continue
		}

		if _, dup := seen[n.IP]; dup {
			continue
		}

		seen[n.IP] = struct{}{}
		cleaned = append(cleaned, n)
	}

	slices.Reverse(cleaned)

	return Snapshot{entries: cleaned, taken: time.Now()}
}

func clean(e models.Neighbor) (models.Neighbor, bool) {
	ip := e.IP.Unmap()
	if !ip.Is4() || ip.IsUnspecified() {
		return models.Neighbor{}, false
	}

	hw, err := macaddr.Parse(e.MAC)
	if err != nil || macaddr.IsZero(e.MAC) || hw[0]&0x01 != 0 {
		return models.Neighbor{}, false
	}

	return models.Neighbor{IP: ip, MAC: hw.String(), Interface: e.Interface}, true
}

// Lookup returns the address whose MAC matches mac. If several addresses
// carry the MAC, the last one listed wins.
func (s Snapshot) Lookup(mac string) (netip.Addr, bool) {
	want, err := macaddr.Normalize(mac)
	if err != nil {
		return netip.Addr{}, false
	}

	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].MAC == want {
			return s.entries[i].IP, true
		}
	}

	return netip.Addr{}, false
}

// Merge returns a snapshot with extra appended after the existing entries.
func (s Snapshot) Merge(extra []models.Neighbor) Snapshot {
	if len(extra) == 0 {
		return s
	}

	merged := make([]models.Neighbor, 0, len(s.entries)+len(extra))
	merged = append(merged, s.entries...)
	merged = append(merged, extra...)

	out := NewSnapshot(merged)
	out.taken = s.taken

	return out
}

// Entries returns a copy of the snapshot's entries.
func (s Snapshot) Entries() []models.Neighbor {
	out := make([]models.Neighbor, len(s.entries))
	copy(out, s.entries)

	return out
}

func (s Snapshot) Len() int {
	return len(s.entries)
}

func (s Snapshot) Taken() time.Time {
	return s.taken
}

// Static is a fixed table, used for manual overrides and tests.
type Static []models.Neighbor

func (s Static) Entries(context.Context) ([]models.Neighbor, error) {
	out := make([]models.Neighbor, len(s))
	copy(out, s)

	return out, nil
}
