package stepper

import (
	"errors"
	"testing"

	"github.com/d4ckard/spray/internal/addr"
	"github.com/d4ckard/spray/internal/breakpoint"
	"github.com/d4ckard/spray/internal/tracee"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fakeMemory struct {
	data map[addr.Real]uint64
}

func (f *fakeMemory) PeekWord(a addr.Real) (uint64, error) {
	v, ok := f.data[a]
	if !ok {
		return 0, errors.New("no such address")
	}
	return v, nil
}

func (f *fakeMemory) PokeWord(a addr.Real, word uint64) error {
	f.data[a] = word
	return nil
}

type fakeController struct {
	pc         addr.Real
	rbp        uint64
	instrLen   uint64
	steps      int
	contTarget addr.Real
	stopKind   tracee.StopKind
	signal     unix.Signal
	mem        *fakeMemory
}

func (f *fakeController) ReadRegs() (*tracee.Regs, error) {
	var r tracee.Regs
	r.Rip = uint64(f.pc)
	r.Rbp = f.rbp
	return &r, nil
}

func (f *fakeController) WriteRegs(r *tracee.Regs) error {
	f.pc = addr.Real(r.Rip)
	return nil
}

func (f *fakeController) SingleStep() (tracee.StopReason, error) {
	f.pc += addr.Real(f.instrLen)
	f.steps++
	return tracee.StopReason{Kind: tracee.StopStopped, Signal: unix.SIGTRAP}, nil
}

func (f *fakeController) Cont() (tracee.StopReason, error) {
	f.pc = f.contTarget
	return tracee.StopReason{Kind: f.stopKind, Signal: f.signal}, nil
}

func (f *fakeController) PeekWord(a addr.Real) (uint64, error) {
	return f.mem.PeekWord(a)
}

func TestStepOverBreakpointDisablesStepsAndReenables(t *testing.T) {
	mem := &fakeMemory{data: map[addr.Real]uint64{0x1000: 0x1122334455667788}}
	engine := breakpoint.NewEngine(mem, addr.Load(0))
	_, err := engine.Enable(addr.Dbg(0x1000))
	require.NoError(t, err)

	ctl := &fakeController{pc: 0x1000, instrLen: 1, mem: mem}
	s := &Stepper{Ctl: ctl, Bps: engine, Load: addr.Load(0)}

	_, err = s.StepOverBreakpoint()
	require.NoError(t, err)
	require.Equal(t, 1, ctl.steps)
	require.Equal(t, addr.Real(0x1001), ctl.pc)

	_, ok := engine.Lookup(addr.Dbg(0x1000))
	require.True(t, ok, "breakpoint must be re-enabled after stepping over it")
	require.Equal(t, uint64(0x11223344556677CC), mem.data[0x1000])
}

func TestStepOverBreakpointWithNoBreakpointJustSteps(t *testing.T) {
	mem := &fakeMemory{data: map[addr.Real]uint64{}}
	engine := breakpoint.NewEngine(mem, addr.Load(0))
	ctl := &fakeController{pc: 0x500, instrLen: 4, mem: mem}
	s := &Stepper{Ctl: ctl, Bps: engine, Load: addr.Load(0)}

	_, err := s.StepOverBreakpoint()
	require.NoError(t, err)
	require.Equal(t, addr.Real(0x504), ctl.pc)
}

func TestContinueRewindsPCPastBreakpoint(t *testing.T) {
	mem := &fakeMemory{data: map[addr.Real]uint64{0x2000: 0x1122334455667788}}
	engine := breakpoint.NewEngine(mem, addr.Load(0))
	_, err := engine.Enable(addr.Dbg(0x2000))
	require.NoError(t, err)

	ctl := &fakeController{
		pc: 0x1000, instrLen: 1, mem: mem,
		contTarget: 0x2001, stopKind: tracee.StopStopped, signal: unix.SIGTRAP,
	}
	s := &Stepper{Ctl: ctl, Bps: engine, Load: addr.Load(0)}

	sr, err := s.Continue()
	require.NoError(t, err)
	require.Equal(t, tracee.StopStopped, sr.Kind)
	require.Equal(t, addr.Real(0x2000), ctl.pc)
}

func TestContinueLeavesPCAloneWhenNotAtBreakpoint(t *testing.T) {
	mem := &fakeMemory{data: map[addr.Real]uint64{}}
	engine := breakpoint.NewEngine(mem, addr.Load(0))

	ctl := &fakeController{
		pc: 0x1000, instrLen: 1, mem: mem,
		contTarget: 0x3000, stopKind: tracee.StopExited, signal: 0,
	}
	s := &Stepper{Ctl: ctl, Bps: engine, Load: addr.Load(0)}

	sr, err := s.Continue()
	require.NoError(t, err)
	require.Equal(t, tracee.StopExited, sr.Kind)
	require.Equal(t, addr.Real(0x3000), ctl.pc)
}

func TestStepOutSetsAndRemovesTemporaryBreakpoint(t *testing.T) {
	retAddr := addr.Real(0x1122334455667788)
	mem := &fakeMemory{data: map[addr.Real]uint64{
		0x5008:  uint64(retAddr), // the word at rbp+8: the return address
		retAddr: 0xaabbccddeeff0011,
	}}
	engine := breakpoint.NewEngine(mem, addr.Load(0))

	ctl := &fakeController{
		pc: 0x1000, rbp: 0x5000, instrLen: 1, mem: mem,
		contTarget: retAddr, stopKind: tracee.StopStopped, signal: unix.SIGTRAP,
	}
	s := &Stepper{Ctl: ctl, Bps: engine, Load: addr.Load(0)}

	_, err := s.StepOut()
	require.NoError(t, err)

	_, stillSet := engine.Get(addr.Dbg(retAddr))
	require.False(t, stillSet, "temporary step-out breakpoint must be removed after the stop")
}
