package breakpoint_test

import (
	"testing"

	"github.com/d4ckard/spray/internal/addr"
	"github.com/d4ckard/spray/internal/breakpoint"
	"github.com/stretchr/testify/require"
)

// fakeMemory is an in-process stand-in for a tracee's memory: a flat byte
// array addressed by addr.Real, read/written 8 bytes at a time the same way
// ptrace's PEEKDATA/POKEDATA do.
type fakeMemory struct {
	data map[addr.Real]uint64
}

func newFakeMemory() *fakeMemory { return &fakeMemory{data: make(map[addr.Real]uint64)} }

func (f *fakeMemory) PeekWord(a addr.Real) (uint64, error) { return f.data[a], nil }
func (f *fakeMemory) PokeWord(a addr.Real, word uint64) error {
	f.data[a] = word
	return nil
}

func TestEnableDisableRoundTrip(t *testing.T) {
	mem := newFakeMemory()
	const a = addr.Dbg(0x1000)
	mem.data[addr.Real(a)] = 0x1122334455667788

	eng := breakpoint.NewEngine(mem, 0)

	_, err := eng.Enable(a)
	require.NoError(t, err)
	require.Equal(t, uint64(0x11223344556677CC), mem.data[addr.Real(a)])

	require.NoError(t, eng.Disable(a))
	require.Equal(t, uint64(0x1122334455667788), mem.data[addr.Real(a)])
}

func TestEnableIsIdempotent(t *testing.T) {
	mem := newFakeMemory()
	const a = addr.Dbg(0x2000)
	mem.data[addr.Real(a)] = 0xdeadbeefcafebabe

	eng := breakpoint.NewEngine(mem, 0)
	_, err := eng.Enable(a)
	require.NoError(t, err)
	_, err = eng.Enable(a)
	require.NoError(t, err)

	require.NoError(t, eng.Disable(a))
	require.Equal(t, uint64(0xdeadbeefcafebabe), mem.data[addr.Real(a)])
}

func TestDisableIsIdempotent(t *testing.T) {
	mem := newFakeMemory()
	const a = addr.Dbg(0x3000)
	mem.data[addr.Real(a)] = 0xaabbccddeeff0011

	eng := breakpoint.NewEngine(mem, 0)
	require.NoError(t, eng.Disable(a)) // no record yet: no-op

	_, err := eng.Enable(a)
	require.NoError(t, err)
	require.NoError(t, eng.Disable(a))
	require.NoError(t, eng.Disable(a))
	require.Equal(t, uint64(0xaabbccddeeff0011), mem.data[addr.Real(a)])
}

func TestLookupOnlyReportsEnabled(t *testing.T) {
	mem := newFakeMemory()
	const a = addr.Dbg(0x4000)
	mem.data[addr.Real(a)] = 0

	eng := breakpoint.NewEngine(mem, 0)
	_, ok := eng.Lookup(a)
	require.False(t, ok)

	_, err := eng.Enable(a)
	require.NoError(t, err)
	rec, ok := eng.Lookup(a)
	require.True(t, ok)
	require.Equal(t, a, rec.Addr)

	require.NoError(t, eng.Disable(a))
	_, ok = eng.Lookup(a)
	require.False(t, ok)
}

func TestLoadAddressOffsetsRealAccess(t *testing.T) {
	mem := newFakeMemory()
	const load = addr.Load(0x555500000000)
	const d = addr.Dbg(0x1136)
	mem.data[load.Real(d)] = 0x9988776655443322

	eng := breakpoint.NewEngine(mem, load)
	_, err := eng.Enable(d)
	require.NoError(t, err)
	require.Equal(t, uint64(0x99887766554433CC), mem.data[load.Real(d)])
	require.Zero(t, mem.data[addr.Real(d)]) // never touched the debugger-view address directly
}

func TestOnlyLowByteLaneIsDisturbed(t *testing.T) {
	mem := newFakeMemory()
	const a = addr.Dbg(0x5000)
	mem.data[addr.Real(a)] = 0x0102030405060708

	eng := breakpoint.NewEngine(mem, 0)
	_, err := eng.Enable(a)
	require.NoError(t, err)
	require.Equal(t, uint64(0x01020304050607CC), mem.data[addr.Real(a)])
}
