//go:build windows

package neighbor

// System returns the host's neighbor table.
func System() Table {
	return commandTable{name: "arp", args: []string{"-a"}, parse: ParseWindowsArp}
}
