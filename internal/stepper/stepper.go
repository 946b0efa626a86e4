// Package stepper implements the debug event loop (§4.F): single-step past
// breakpoints, continue with breakpoint-address rewind, and step-in /
// step-over / step-out at source-statement granularity. Every exported
// operation returns with the tracee stopped or exited, never mid-flight.
//
// Grounded in proctl_linux_amd64.go's Next/Step/Continue methods
// (DebuggedProcess), generalized from single-stepping raw machine
// instructions to the source-statement granularity the DWARF line table
// provides.
package stepper

import (
	"github.com/d4ckard/spray/internal/addr"
	"github.com/d4ckard/spray/internal/breakpoint"
	"github.com/d4ckard/spray/internal/dwarfsym"
	"github.com/d4ckard/spray/internal/tracee"
	"golang.org/x/sys/unix"
)

// Controller is the tracee control surface the stepper needs. tracee.Tracee
// satisfies it; tests substitute a fake.
type Controller interface {
	Cont() (tracee.StopReason, error)
	SingleStep() (tracee.StopReason, error)
	ReadRegs() (*tracee.Regs, error)
	WriteRegs(*tracee.Regs) error
	PeekWord(a addr.Real) (uint64, error)
}

// DWARFQuerier is the symbolication surface the stepper needs.
// *dwarfsym.Handle satisfies it.
type DWARFQuerier interface {
	LineEntryFromPC(pc addr.Real) (dwarfsym.LineEntry, error)
	FunctionAt(pc addr.Real) (name string, low, high addr.Dbg, err error)
	ForEachLine(fnName, filepath string, cb func(dwarfsym.LineEntry) error) error
	FilepathFromPC(pc addr.Real) (string, error)
}

// Stepper bundles the collaborators every stepping operation needs.
type Stepper struct {
	Ctl   Controller
	Bps   *breakpoint.Engine
	DWARF DWARFQuerier
	Load  addr.Load
}

// StepOverBreakpoint is the universal stepping primitive. If the PC sits on
// an enabled breakpoint, it disables the trap, executes exactly one
// instruction, then re-enables it; otherwise it just executes one
// instruction. Every other operation in this package is built from this one.
func (s *Stepper) StepOverBreakpoint() (tracee.StopReason, error) {
	regs, err := s.Ctl.ReadRegs()
	if err != nil {
		return tracee.StopReason{}, err
	}
	d := s.Load.Dbg(regs.PC())

	if _, ok := s.Bps.Lookup(d); !ok {
		return s.Ctl.SingleStep()
	}

	if err := s.Bps.Disable(d); err != nil {
		return tracee.StopReason{}, err
	}
	sr, err := s.Ctl.SingleStep()
	if err != nil {
		return sr, err
	}
	if _, err := s.Bps.Enable(d); err != nil {
		return sr, err
	}
	return sr, nil
}

// Continue resumes the tracee until its next stop. On a SIGTRAP stop one
// byte past an enabled breakpoint, it rewinds the instruction pointer so the
// user observes being "at" the breakpoint rather than just past it.
func (s *Stepper) Continue() (tracee.StopReason, error) {
	if _, err := s.StepOverBreakpoint(); err != nil {
		return tracee.StopReason{}, err
	}

	sr, err := s.Ctl.Cont()
	if err != nil {
		return sr, err
	}
	if sr.Kind != tracee.StopStopped || sr.Signal != unix.SIGTRAP {
		return sr, nil
	}

	regs, err := s.Ctl.ReadRegs()
	if err != nil {
		return sr, err
	}
	pc := regs.PC()
	if pc == 0 {
		return sr, nil
	}
	candidate := addr.Real(uint64(pc) - 1)
	d := s.Load.Dbg(candidate)
	if _, ok := s.Bps.Lookup(d); !ok {
		return sr, nil
	}

	regs.SetPC(candidate)
	if err := s.Ctl.WriteRegs(regs); err != nil {
		return sr, err
	}
	return sr, nil
}

// StepIn executes instructions at source-statement granularity, stopping
// either on the next new-statement line in the current function or on the
// first line of a callee just entered.
func (s *Stepper) StepIn() (dwarfsym.LineEntry, tracee.StopReason, error) {
	regs, err := s.Ctl.ReadRegs()
	if err != nil {
		return dwarfsym.LineEntry{}, tracee.StopReason{}, err
	}
	start := regs.PC()

	l0, err := s.DWARF.LineEntryFromPC(start)
	if err != nil {
		return dwarfsym.LineEntry{}, tracee.StopReason{}, err
	}
	_, fnLow, fnHigh, err := s.DWARF.FunctionAt(start)
	if err != nil {
		return dwarfsym.LineEntry{}, tracee.StopReason{}, err
	}

	for {
		sr, err := s.StepOverBreakpoint()
		if err != nil {
			return dwarfsym.LineEntry{}, sr, err
		}
		if sr.Kind != tracee.StopStopped {
			return dwarfsym.LineEntry{}, sr, nil
		}

		regs, err := s.Ctl.ReadRegs()
		if err != nil {
			return dwarfsym.LineEntry{}, sr, err
		}
		pc := regs.PC()
		d := s.Load.Dbg(pc)

		if d < fnLow || d >= fnHigh {
			// Left the starting function: keep stepping until we land on a
			// statement boundary, i.e. we've entered a callee and reached
			// its first line.
			le, err := s.DWARF.LineEntryFromPC(pc)
			if err == nil && le.IsExact && le.IsNewStatement {
				return le, sr, nil
			}
			continue
		}

		le, err := s.DWARF.LineEntryFromPC(pc)
		if err != nil {
			continue
		}
		if le.Addr != l0.Addr && le.IsNewStatement && le.IsExact {
			return le, sr, nil
		}
	}
}

// StepOut runs until the enclosing function returns, by setting a temporary
// breakpoint on the return address found at rbp+8 (System V AMD64: callers
// built with -fomit-frame-pointer are out of scope).
func (s *Stepper) StepOut() (tracee.StopReason, error) {
	regs, err := s.Ctl.ReadRegs()
	if err != nil {
		return tracee.StopReason{}, err
	}

	retWord, err := s.Ctl.PeekWord(addr.Real(regs.Rbp + 8))
	if err != nil {
		return tracee.StopReason{}, err
	}
	retReal := addr.Real(retWord)
	retDbg := s.Load.Dbg(retReal)

	_, alreadySet := s.Bps.Get(retDbg)
	if !alreadySet {
		if _, err := s.Bps.Enable(retDbg); err != nil {
			return tracee.StopReason{}, err
		}
		defer s.Bps.Remove(retDbg)
	}

	return s.Continue()
}

// StepOver runs the current source line to completion without descending
// into calls it makes: every other statement in the enclosing function, plus
// the return address, gets a temporary breakpoint; the first one hit wins.
func (s *Stepper) StepOver() (tracee.StopReason, error) {
	regs, err := s.Ctl.ReadRegs()
	if err != nil {
		return tracee.StopReason{}, err
	}
	pc := regs.PC()

	fnName, _, _, err := s.DWARF.FunctionAt(pc)
	if err != nil {
		return tracee.StopReason{}, err
	}
	filepath, err := s.DWARF.FilepathFromPC(pc)
	if err != nil {
		return tracee.StopReason{}, err
	}

	curD := s.Load.Dbg(pc)
	var temps []addr.Dbg

	err = s.DWARF.ForEachLine(fnName, filepath, func(le dwarfsym.LineEntry) error {
		if le.Addr == curD {
			return nil
		}
		if _, ok := s.Bps.Get(le.Addr); ok {
			return nil
		}
		if _, err := s.Bps.Enable(le.Addr); err != nil {
			return err
		}
		temps = append(temps, le.Addr)
		return nil
	})
	if err != nil {
		for _, t := range temps {
			s.Bps.Remove(t)
		}
		return tracee.StopReason{}, err
	}

	retWord, err := s.Ctl.PeekWord(addr.Real(regs.Rbp + 8))
	var retDbg addr.Dbg
	haveRet := err == nil
	if haveRet {
		retDbg = s.Load.Dbg(addr.Real(retWord))
		if _, ok := s.Bps.Get(retDbg); !ok {
			if _, err := s.Bps.Enable(retDbg); err == nil {
				temps = append(temps, retDbg)
			}
		}
	}

	sr, contErr := s.Continue()

	for _, t := range temps {
		s.Bps.Remove(t)
	}
	return sr, contErr
}
