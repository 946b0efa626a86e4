package tracee

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// The rest of this package needs a live traced child process to exercise,
// and no test in this repository spawns one. These cover the pure bits: the
// DWARF register lookup table and word codecs.

func TestDwarfRegMapsSystemVNumbering(t *testing.T) {
	raw := unix.PtraceRegs{Rax: 1, Rdx: 2, Rcx: 3, Rbx: 4, Rsi: 5, Rdi: 6, Rbp: 7, Rsp: 8, R8: 9, Rip: 10}
	r := Regs(raw)

	v, err := r.DwarfReg(0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), v)

	v, err = r.DwarfReg(6)
	require.NoError(t, err)
	require.Equal(t, uint64(7), v)

	v, err = r.DwarfReg(16)
	require.NoError(t, err)
	require.Equal(t, uint64(10), v)

	_, err = r.DwarfReg(99)
	require.Error(t, err)
}

func TestLeBytesRoundTrip(t *testing.T) {
	want := uint64(0x0102030405060708)
	require.Equal(t, want, leUint64(leBytes(want)))
}
