//go:build linux

package neighbor

// System returns the host's neighbor table.
func System() Table {
	return fileTable{path: "/proc/net/arp", parse: ParseProcNetARP}
}
