package neighbor

import (
	"bufio"
	"io"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"flexfinder/internal/models"
)

// atfComplete is the ATF_COM flag in /proc/net/arp.
const atfComplete = 0x2

// ParseProcNetARP parses the Linux /proc/net/arp format:
//
//	IP address       HW type     Flags       HW address            Mask     Device
//	192.168.1.1      0x1         0x2         aa:bb:cc:dd:ee:ff     *        eth0
func ParseProcNetARP(r io.Reader) ([]models.Neighbor, error) {
	var out []models.Neighbor

	sc := bufio.NewScanner(r)
	header := true

	for sc.Scan() {
		if header {
			header = false
			continue
		}

		fields := strings.Fields(sc.Text())
		if len(fields) < 6 {
			continue
		}

		flags, err := strconv.ParseUint(strings.TrimPrefix(fields[2], "0x"), 16, 32)
		if err != nil || flags&atfComplete == 0 {
			continue
		}

		ip, err := netip.ParseAddr(fields[0])
		if err != nil {
			continue
		}

		out = append(out, models.Neighbor{IP: ip, MAC: fields[3], Interface: fields[5]})
	}

	return out, sc.Err()
}

// bsdLine matches `arp -an` output on macOS and the BSDs:
//
//	? (192.168.1.2) at ab:cd:ef:ab:cd:ef on en0 ifscope [ethernet]
var bsdLine = regexp.MustCompile(`^\S+ \(([^)]+)\) at (\S+)(?: on (\S+))?`)

// ParseBSDArp parses `arp -an` output. Incomplete entries are skipped.
func ParseBSDArp(r io.Reader) ([]models.Neighbor, error) {
	var out []models.Neighbor

	sc := bufio.NewScanner(r)

	for sc.Scan() {
		m := bsdLine.FindStringSubmatch(strings.TrimSpace(sc.Text()))
		if m == nil || m[2] == "(incomplete)" {
			continue
		}

		ip, err := netip.ParseAddr(m[1])
		if err != nil {
			continue
		}

		out = append(out, models.Neighbor{IP: ip, MAC: m[2], Interface: m[3]})
	}

	return out, sc.Err()
}

// ParseWindowsArp parses `arp -a` output:
//
//	Interface: 192.168.1.10 --- 0xb
//	  Internet Address      Physical Address      Type
//	  192.168.1.1           aa-bb-cc-dd-ee-ff     dynamic
func ParseWindowsArp(r io.Reader) ([]models.Neighbor, error) {
	var (
		out   []models.Neighbor
		iface string
	)

	sc := bufio.NewScanner(r)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		if rest, ok := strings.CutPrefix(line, "Interface:"); ok {
			if f := strings.Fields(rest); len(f) > 0 {
				iface = f[0]
			}

			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}

		ip, err := netip.ParseAddr(fields[0])
		if err != nil {
			continue
		}

		out = append(out, models.Neighbor{IP: ip, MAC: fields[1], Interface: iface})
	}

	return out, sc.Err()
}
