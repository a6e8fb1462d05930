//go:build darwin || freebsd || openbsd || netbsd

package neighbor

// System returns the host's neighbor table.
func System() Table {
	return commandTable{name: "arp", args: []string{"-an"}, parse: ParseBSDArp}
}
