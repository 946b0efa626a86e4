package locexpr

import (
	"errors"
	"testing"

	"github.com/d4ckard/spray/internal/addr"
	"github.com/stretchr/testify/require"
)

type fakeMemory struct {
	words map[addr.Real]uint64
}

func (f fakeMemory) PeekWord(a addr.Real) (uint64, error) {
	v, ok := f.words[a]
	if !ok {
		return 0, errors.New("no such address")
	}
	return v, nil
}

type fakeRegisters struct {
	vals map[int]uint64
}

func (f fakeRegisters) DwarfReg(n int) (uint64, error) {
	v, ok := f.vals[n]
	if !ok {
		return 0, errors.New("no such register")
	}
	return v, nil
}

func TestEvalAddrOpcodeAppliesLoadAddress(t *testing.T) {
	expr := append([]byte{opAddr}, leBytesForTest(0x1000)...)
	loc, err := Eval(expr, Context{Load: addr.Load(0x400000)})
	require.NoError(t, err)
	require.Equal(t, LocMemory, loc.Kind)
	require.Equal(t, addr.Real(0x401000), loc.Address)
}

func TestEvalBregYieldsRegisterPlusOffset(t *testing.T) {
	// DW_OP_breg6 (rbp) -8
	expr := []byte{opBreg0 + 6, 0x78} // sleb128(-8) == 0x78
	regs := fakeRegisters{vals: map[int]uint64{6: 0x7fffffffe000}}
	loc, err := Eval(expr, Context{Regs: regs})
	require.NoError(t, err)
	require.Equal(t, LocMemory, loc.Kind)
	require.Equal(t, addr.Real(0x7fffffffdff8), loc.Address)
}

func TestEvalRegOpcodeYieldsRegister(t *testing.T) {
	expr := []byte{opReg0 + 3} // rbx
	loc, err := Eval(expr, Context{})
	require.NoError(t, err)
	require.Equal(t, LocRegister, loc.Kind)
	require.Equal(t, 3, loc.Register)
	require.Equal(t, "rbx", loc.String())
}

func TestEvalFbregRecursesThroughFrameBase(t *testing.T) {
	// frame base: DW_OP_breg6 16 (rbp+16); variable: DW_OP_fbreg -4
	frameBase := []byte{opBreg0 + 6, 0x10}
	expr := []byte{opFbreg, 0x7c} // sleb128(-4) == 0x7c
	regs := fakeRegisters{vals: map[int]uint64{6: 0x1000}}
	loc, err := Eval(expr, Context{Regs: regs, FrameBaseExpr: frameBase})
	require.NoError(t, err)
	require.Equal(t, LocMemory, loc.Kind)
	require.Equal(t, addr.Real(0x1000+16-4), loc.Address)
}

func TestEvalDerefReadsMemory(t *testing.T) {
	expr := append([]byte{opAddr}, leBytesForTest(0x2000)...)
	expr = append(expr, opDeref)
	mem := fakeMemory{words: map[addr.Real]uint64{0x2000: 0xdeadbeef}}
	loc, err := Eval(expr, Context{Mem: mem})
	require.NoError(t, err)
	require.Equal(t, addr.Real(0xdeadbeef), loc.Address)
}

func TestEvalStackValueIsUnsupported(t *testing.T) {
	expr := []byte{opLit0 + 5, opStackValue}
	_, err := Eval(expr, Context{})
	var unsupported *UnsupportedError
	require.ErrorAs(t, err, &unsupported)
	require.Equal(t, byte(opStackValue), unsupported.Opcode)
}

func TestEvalEmptyStackIsFailure(t *testing.T) {
	_, err := Eval([]byte{opDeref}, Context{Mem: fakeMemory{words: map[addr.Real]uint64{}}})
	var failed *FailedError
	require.ErrorAs(t, err, &failed)
}

func TestListSelectMatchesCoveringRange(t *testing.T) {
	list := List{Entries: []Entry{
		{Range: Range{Low: 0x10, High: 0x20}, Expr: []byte{opLit0}},
		{Range: Range{Low: 0x20, High: 0x30}, Expr: []byte{opLit0 + 1}},
	}}
	expr, ok := list.Select(0x25)
	require.True(t, ok)
	require.Equal(t, []byte{opLit0 + 1}, expr)

	_, ok = list.Select(0x05)
	require.False(t, ok)
}

func TestParseLocListHandlesBaseAddressSelection(t *testing.T) {
	var raw []byte
	// base-address-selection entry: begin=all-ones, end=new base 0x5000
	raw = append(raw, allOnesForTest()...)
	raw = append(raw, leBytesForTest(0x5000)...)
	// entry relative to new base: [0x10, 0x18)
	raw = append(raw, leBytesForTest(0x10)...)
	raw = append(raw, leBytesForTest(0x18)...)
	raw = append(raw, 0x01, 0x00) // 1-byte expression
	raw = append(raw, opLit0)
	// terminator
	raw = append(raw, leBytesForTest(0)...)
	raw = append(raw, leBytesForTest(0)...)

	list, err := ParseLocList(raw, 0, 0x1000)
	require.NoError(t, err)
	require.Len(t, list.Entries, 1)
	require.Equal(t, addr.Dbg(0x5010), list.Entries[0].Range.Low)
	require.Equal(t, addr.Dbg(0x5018), list.Entries[0].Range.High)
}

func leBytesForTest(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func allOnesForTest() []byte {
	return []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
}
