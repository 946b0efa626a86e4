package addr_test

import (
	"testing"

	"github.com/d4ckard/spray/internal/addr"
	"github.com/stretchr/testify/require"
)

func TestLoadRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		load addr.Load
		d    addr.Dbg
	}{
		{"non-pie", 0, 0x401136},
		{"pie", 0x555555554000, 0x1136},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := tc.load.Real(tc.d)
			require.Equal(t, addr.Real(uint64(tc.d)+uint64(tc.load)), r)
			require.Equal(t, tc.d, tc.load.Dbg(r))
		})
	}
}

func TestNonPIELoadAddressIsIdentity(t *testing.T) {
	var load addr.Load
	d := addr.Dbg(0xdeadbeef)
	require.Equal(t, addr.Real(d), load.Real(d))
}
