package subnet

import (
	"net/netip"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flexfinder/internal/models"
)

func collect(t *testing.T, local string, p Policy) []netip.Addr {
	t.Helper()

	seq, err := Candidates(netip.MustParseAddr(local), p)
	require.NoError(t, err)

	return slices.Collect(seq)
}

func TestCandidatesClassC(t *testing.T) {
	local := netip.MustParseAddr("192.168.7.23")
	got := collect(t, local.String(), ClassC(local))

	require.Len(t, got, 254)
	assert.Equal(t, netip.MustParseAddr("192.168.7.1"), got[0])
	assert.Equal(t, netip.MustParseAddr("192.168.7.254"), got[253])
	assert.Contains(t, got, local)
}

func TestCandidatesStrictlyIncreasing(t *testing.T) {
	policies := []Policy{
		ClassB(),
		{Third: Range{Lo: 4, Hi: 6}, Fourth: Range{Lo: 0, Hi: 255}},
		{Third: Range{Lo: 255, Hi: 255}, Fourth: Range{Lo: 250, Hi: 255}},
		{Third: Range{Lo: 0, Hi: 0}, Fourth: Range{Lo: 9, Hi: 9}},
	}

	for _, p := range policies {
		t.Run(p.Third.String()+"/"+p.Fourth.String(), func(t *testing.T) {
			got := collect(t, "10.20.30.40", p)
			require.Len(t, got, p.Size())

			for i := 1; i < len(got); i++ {
				require.Equal(t, -1, got[i-1].Compare(got[i]), "%s !< %s", got[i-1], got[i])
			}

			for _, a := range got {
				b := a.As4()
				assert.Equal(t, byte(10), b[0])
				assert.Equal(t, byte(20), b[1])
			}
		})
	}
}

func TestCandidatesStopsEarly(t *testing.T) {
	seq, err := Candidates(netip.MustParseAddr("10.0.0.1"), ClassB())
	require.NoError(t, err)

	n := 0
	for range seq {
		n++
		if n == 3 {
			break
		}
	}

	assert.Equal(t, 3, n)
}

func TestCandidatesRejectsBadInput(t *testing.T) {
	_, err := Candidates(netip.MustParseAddr("fe80::1"), ClassB())
	require.ErrorIs(t, err, models.ErrInvalidAddress)

	_, err = Candidates(netip.Addr{}, ClassB())
	require.ErrorIs(t, err, models.ErrInvalidAddress)

	_, err = Candidates(netip.MustParseAddr("10.0.0.1"), Policy{
		Third:  Range{Lo: 0, Hi: 256},
		Fourth: Range{Lo: 1, Hi: 2},
	})
	require.ErrorIs(t, err, models.ErrInvalidRange)

	_, err = Candidates(netip.MustParseAddr("10.0.0.1"), Policy{
		Third:  Range{Lo: 5, Hi: 4},
		Fourth: Range{Lo: 1, Hi: 2},
	})
	require.ErrorIs(t, err, models.ErrInvalidRange)
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("1-254")
	require.NoError(t, err)
	assert.Equal(t, Range{Lo: 1, Hi: 254}, r)

	r, err = ParseRange(" 7 ")
	require.NoError(t, err)
	assert.Equal(t, Range{Lo: 7, Hi: 7}, r)

	for _, bad := range []string{"", "a-b", "3-1", "-1-4", "0-300"} {
		_, err := ParseRange(bad)
		assert.ErrorIs(t, err, models.ErrInvalidRange, bad)
	}
}

func TestPolicyForPrefix(t *testing.T) {
	p, err := PolicyForPrefix(netip.MustParsePrefix("172.28.24.9/24"))
	require.NoError(t, err)
	assert.Equal(t, Range{Lo: 24, Hi: 24}, p.Third)

	p, err = PolicyForPrefix(netip.MustParsePrefix("172.28.25.9/22"))
	require.NoError(t, err)
	assert.Equal(t, Range{Lo: 24, Hi: 27}, p.Third)

	p, err = PolicyForPrefix(netip.MustParsePrefix("172.28.24.9/16"))
	require.NoError(t, err)
	assert.Equal(t, ClassB(), p)

	_, err = PolicyForPrefix(netip.MustParsePrefix("172.28.24.9/30"))
	require.ErrorIs(t, err, models.ErrInvalidRange)
}

func TestParseLocal(t *testing.T) {
	addr, err := ParseLocal("192.168.1.10")
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("192.168.1.10"), addr)

	for _, bad := range []string{"192.168.1", "192.168.1.256", "::1", "host"} {
		_, err := ParseLocal(bad)
		assert.ErrorIs(t, err, models.ErrInvalidAddress, bad)
	}
}
