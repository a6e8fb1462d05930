// Package macaddr normalizes hardware addresses so they can be compared
// regardless of case or separator style.
package macaddr

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"flexfinder/internal/models"
)

const ethernetLen = 6

// Normalize returns the canonical lowercase colon form of s.
//
// Accepted inputs: AA:BB:CC:DD:EE:FF, aa-bb-cc-dd-ee-ff, aabb.ccdd.eeff,
// aabbccddeeff and the unpadded a:b:c:d:e:f form printed by BSD arp.
func Normalize(s string) (string, error) {
	hw, err := Parse(s)
	if err != nil {
		return "", err
	}

	return hw.String(), nil
}

// Parse decodes a 48-bit hardware address.
func Parse(s string) (net.HardwareAddr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty MAC", models.ErrInvalidAddress)
	}

	if hw, err := net.ParseMAC(s); err == nil {
		if len(hw) != ethernetLen {
			return nil, fmt.Errorf("%w: %q is not a 48-bit MAC", models.ErrInvalidAddress, s)
		}

		return hw, nil
	}

	if len(s) == 2*ethernetLen {
		b, err := hex.DecodeString(s)
		if err == nil {
			return net.HardwareAddr(b), nil
		}
	}

	if hw, ok := parseUnpadded(s); ok {
		return hw, nil
	}

	return nil, fmt.Errorf("%w: %q", models.ErrInvalidAddress, s)
}

// Equal compares two MACs in any accepted format.
func Equal(a, b string) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}

	nb, err := Normalize(b)
	if err != nil {
		return false
	}

	return na == nb
}

// IsZero reports whether s is the all-zero address used for incomplete entries.
func IsZero(s string) bool {
	hw, err := Parse(s)
	if err != nil {
		return false
	}

	for _, b := range hw {
		if b != 0 {
			return false
		}
	}

	return true
}

func parseUnpadded(s string) (net.HardwareAddr, bool) {
	sep := ":"
	if strings.Contains(s, "-") {
		sep = "-"
	}

	parts := strings.Split(s, sep)
	if len(parts) != ethernetLen {
		return nil, false
	}

	hw := make(net.HardwareAddr, ethernetLen)

	for i, p := range parts {
		if len(p) == 0 || len(p) > 2 {
			return nil, false
		}

		if len(p) == 1 {
			p = "0" + p
		}

		b, err := hex.DecodeString(p)
		if err != nil {
			return nil, false
		}

		hw[i] = b[0]
	}

	return hw, true
}
