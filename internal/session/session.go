// Package session is the top-level record binding the tracee, ELF view,
// DWARF handle, breakpoint engine, and execution stepper, plus a
// command-history collaborator (§4.G). It orchestrates a request/response
// loop over a stopped tracee; the REPL/command parser itself is an external
// collaborator (cmd/sdb).
//
// Grounded in proctl_linux_amd64.go's DebuggedProcess (construction order:
// spawn, open ELF, open DWARF) and in original_source/spray.h's Debugger
// struct field order (program_path, tracee_pid, breakpoints, elf,
// load_address, dwarf_handle, source_file_cache, history).
package session

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/d4ckard/spray/internal/addr"
	"github.com/d4ckard/spray/internal/breakpoint"
	"github.com/d4ckard/spray/internal/dwarfsym"
	"github.com/d4ckard/spray/internal/elfview"
	"github.com/d4ckard/spray/internal/locexpr"
	"github.com/d4ckard/spray/internal/stepper"
	"github.com/d4ckard/spray/internal/tracee"
)

var (
	fileLineRe = regexp.MustCompile(`^[^:]+:[0-9]+$`)
	funcNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// ParseError is the PARSE_ERR error kind: malformed user input.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string { return fmt.Sprintf("could not parse %q", e.Input) }

// Session is the session state of §3: it owns the tracee's lifetime, and
// destroying it detaches/kills the tracee and releases DWARF/ELF resources.
type Session struct {
	ProgramPath string

	Tracee      *tracee.Tracee
	Breakpoints *breakpoint.Engine
	ELF         *elfview.View
	LoadAddr    addr.Load
	DWARF       *dwarfsym.Handle

	SourceFileCache map[string][]string
	History         History

	Step *stepper.Stepper
}

// Start spawns the tracee, opens its ELF image and DWARF debug information,
// and continues to main's first post-prologue statement, per §4.G.
func Start(programPath string, args []string) (*Session, StopEvent, error) {
	argv := append([]string{programPath}, args...)
	tr, _, err := tracee.Spawn(argv, nil)
	if err != nil {
		return nil, StopEvent{}, err
	}

	view, err := elfview.Open(tr.Pid)
	if err != nil {
		return nil, StopEvent{}, err
	}

	var load addr.Load
	if view.IsPIE() {
		load, err = discoverLoadAddress(tr.Pid)
		if err != nil {
			view.Close()
			return nil, StopEvent{}, err
		}
	}

	abbrev, info, str, line, ranges, lineStr, locLists, rngLists, strOffsets, addrSec, loc := view.RawDWARFSections()
	dw, err := dwarfsym.Open(dwarfsym.Sections{
		Abbrev: abbrev, Info: info, Str: str, Line: line, Ranges: ranges,
		LineStr: lineStr, LocLists: locLists, RngLists: rngLists, StrOffsets: strOffsets, Addr: addrSec,
		Loc: loc,
	}, load)
	if err != nil {
		view.Close()
		return nil, StopEvent{}, err
	}

	bps := breakpoint.NewEngine(tr, load)
	st := &stepper.Stepper{Ctl: tr, Bps: bps, DWARF: dw, Load: load}

	s := &Session{
		ProgramPath:     programPath,
		Tracee:          tr,
		Breakpoints:     bps,
		ELF:             view,
		LoadAddr:        load,
		DWARF:           dw,
		SourceFileCache: map[string][]string{},
		Step:            st,
	}

	ev, err := s.continueToMain()
	if err != nil {
		return s, StopEvent{}, err
	}
	return s, ev, nil
}

// continueToMain resolves main's PC range from the ELF symbol table (the
// DWARF subprogram DIE is not consulted), sets a temporary breakpoint at its
// effective (post-prologue) start address, and continues there.
func (s *Session) continueToMain() (StopEvent, error) {
	sym, ok := s.ELF.Symbol("main")
	if !ok {
		return StopEvent{}, &dwarfsym.NoSuchSymbolError{What: "main"}
	}
	low := addr.Dbg(sym.Value)
	high := addr.Dbg(sym.Value + sym.Size)

	start, err := s.DWARF.EffectiveStartAddr(low, high)
	if err != nil {
		return StopEvent{}, err
	}

	if _, err := s.Breakpoints.Enable(start); err != nil {
		return StopEvent{}, err
	}
	sr, err := s.Step.Continue()
	s.Breakpoints.Remove(start)
	if err != nil {
		return StopEvent{}, err
	}
	if sr.Kind != tracee.StopStopped {
		return StopEvent{}, fmt.Errorf("tracee did not reach main (%+v)", sr)
	}

	return s.describeStop(CauseEntry)
}

// describeStop builds a StopEvent from the tracee's current PC.
func (s *Session) describeStop(cause StopCause) (StopEvent, error) {
	regs, err := s.Tracee.ReadRegs()
	if err != nil {
		return StopEvent{}, err
	}
	pc := regs.PC()

	le, lerr := s.DWARF.LineEntryFromPC(pc)
	fnName, _, _, ferr := s.DWARF.FunctionAt(pc)

	ev := StopEvent{Cause: cause, Addr: pc}
	if lerr == nil {
		ev.File = le.File
		ev.Line = le.Line
		ev.Column = le.Column
	}
	if ferr == nil {
		ev.Function = fnName
	}
	return ev, nil
}

// ResolveLocation parses a breakpoint spec -- a hex address, a file:line
// pair, or a bare function name -- into a debugger-view address.
func (s *Session) ResolveLocation(spec string) (addr.Dbg, error) {
	switch {
	case strings.HasPrefix(spec, "0x") || strings.HasPrefix(spec, "0X"):
		v, err := strconv.ParseUint(spec[2:], 16, 64)
		if err != nil {
			return 0, &ParseError{Input: spec}
		}
		return addr.Dbg(v), nil

	case fileLineRe.MatchString(spec):
		file, lineStr, _ := strings.Cut(spec, ":")
		line, err := strconv.Atoi(lineStr)
		if err != nil {
			return 0, &ParseError{Input: spec}
		}
		le, err := s.DWARF.LineEntryAt(file, line)
		if err != nil {
			return 0, err
		}
		return le.Addr, nil

	case funcNameRe.MatchString(spec):
		sym, ok := s.ELF.Symbol(spec)
		if !ok {
			return 0, &dwarfsym.NoSuchSymbolError{What: spec}
		}
		low := addr.Dbg(sym.Value)
		high := addr.Dbg(sym.Value + sym.Size)
		return s.DWARF.EffectiveStartAddr(low, high)

	default:
		return 0, &ParseError{Input: spec}
	}
}

// Enable places a breakpoint at spec (address, file:line, or function),
// rejecting addresses outside the loaded text segment (BP_OOB, §7).
func (s *Session) Enable(spec string) error {
	d, err := s.ResolveLocation(spec)
	if err != nil {
		return err
	}
	if !s.ELF.InText(d) {
		return &breakpoint.OOBError{Addr: d}
	}
	_, err = s.Breakpoints.Enable(d)
	return err
}

// Disable removes a breakpoint at spec.
func (s *Session) Disable(spec string) error {
	d, err := s.ResolveLocation(spec)
	if err != nil {
		return err
	}
	return s.Breakpoints.Disable(d)
}

// Continue resumes the tracee and reports the resulting stop or termination.
func (s *Session) Continue() (StopEvent, *TerminationEvent, error) {
	sr, err := s.Step.Continue()
	if err != nil {
		return StopEvent{}, nil, err
	}
	if te, done := terminationFrom(sr); done {
		return StopEvent{}, te, nil
	}
	ev, err := s.describeStop(CauseBreakpoint)
	return ev, nil, err
}

// StepInstruction executes exactly one machine instruction.
func (s *Session) StepInstruction() (StopEvent, *TerminationEvent, error) {
	sr, err := s.Step.StepOverBreakpoint()
	if err != nil {
		return StopEvent{}, nil, err
	}
	if te, done := terminationFrom(sr); done {
		return StopEvent{}, te, nil
	}
	ev, err := s.describeStop(CauseStep)
	return ev, nil, err
}

// StepIn steps at source-statement granularity, descending into calls.
func (s *Session) StepIn() (StopEvent, *TerminationEvent, error) {
	le, sr, err := s.Step.StepIn()
	if err != nil {
		return StopEvent{}, nil, err
	}
	if te, done := terminationFrom(sr); done {
		return StopEvent{}, te, nil
	}
	return s.stopFromLine(le), nil, nil
}

// StepOver steps at source-statement granularity without descending into
// calls made from the current line.
func (s *Session) StepOver() (StopEvent, *TerminationEvent, error) {
	sr, err := s.Step.StepOver()
	if err != nil {
		return StopEvent{}, nil, err
	}
	if te, done := terminationFrom(sr); done {
		return StopEvent{}, te, nil
	}
	ev, err := s.describeStop(CauseStep)
	return ev, nil, err
}

// StepOut runs until the enclosing function returns.
func (s *Session) StepOut() (StopEvent, *TerminationEvent, error) {
	sr, err := s.Step.StepOut()
	if err != nil {
		return StopEvent{}, nil, err
	}
	if te, done := terminationFrom(sr); done {
		return StopEvent{}, te, nil
	}
	ev, err := s.describeStop(CauseStep)
	return ev, nil, err
}

func (s *Session) stopFromLine(le dwarfsym.LineEntry) StopEvent {
	ev := StopEvent{Cause: CauseStep, File: le.File, Line: le.Line, Column: le.Column}
	if regs, err := s.Tracee.ReadRegs(); err == nil {
		ev.Addr = regs.PC()
		if name, _, _, err := s.DWARF.FunctionAt(ev.Addr); err == nil {
			ev.Function = name
		}
	}
	return ev
}

func terminationFrom(sr tracee.StopReason) (*TerminationEvent, bool) {
	switch sr.Kind {
	case tracee.StopExited:
		return &TerminationEvent{Exited: true, ExitCode: sr.ExitCode}, true
	case tracee.StopSignalled:
		return &TerminationEvent{Exited: false, SignalName: sr.Signal.String()}, true
	default:
		return nil, false
	}
}

// Variable resolves the runtime location of a variable live at the current
// PC and evaluates it to a concrete Location.
func (s *Session) Variable(name string) (dwarfsym.VarAttr, locexpr.Location, error) {
	regs, err := s.Tracee.ReadRegs()
	if err != nil {
		return dwarfsym.VarAttr{}, locexpr.Location{}, err
	}
	pc := regs.PC()

	va, err := s.DWARF.RuntimeVariable(pc, name)
	if err != nil {
		return dwarfsym.VarAttr{}, locexpr.Location{}, err
	}

	expr, err := s.selectExpr(va.Loc, pc)
	if err != nil {
		return va, locexpr.Location{}, err
	}

	fb, _ := s.DWARF.FrameBaseAttr(pc)
	fbExpr, _ := s.selectExpr(fb, pc)

	loc, err := locexpr.Eval(expr, locexpr.Context{
		Mem:           s.Tracee,
		Regs:          regs,
		Load:          s.LoadAddr,
		FrameBaseExpr: fbExpr,
	})
	return va, loc, err
}

// selectExpr resolves a LocAttr into the expression bytes applicable at pc,
// parsing the classic-format .debug_loc section when the attribute is a
// loclist offset rather than a single-location expression.
func (s *Session) selectExpr(attr dwarfsym.LocAttr, pc addr.Real) ([]byte, error) {
	if attr.Loc {
		return attr.Raw, nil
	}
	if len(attr.Raw) < 8 {
		return nil, &dwarfsym.NoSuchSymbolError{What: "malformed location-list offset"}
	}
	offset := int(leUint64(attr.Raw))

	cuLow, err := s.DWARF.CULowPC(pc)
	if err != nil {
		return nil, err
	}
	list, err := locexpr.ParseLocList(s.DWARF.LocSection, offset, cuLow)
	if err != nil {
		return nil, err
	}
	d := s.LoadAddr.Dbg(pc)
	expr, ok := list.Select(d)
	if !ok {
		return nil, &dwarfsym.NoSuchSymbolError{What: "no location-list range covers current pc"}
	}
	return expr, nil
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// MemRead reads size bytes from the tracee's memory at a real address.
func (s *Session) MemRead(a addr.Real, size int) ([]byte, error) {
	return s.Tracee.ReadMem(a, size)
}

// MemWrite writes an 8-byte word to the tracee's memory at a real address.
func (s *Session) MemWrite(a addr.Real, word uint64) error {
	return s.Tracee.PokeWord(a, word)
}

// Close detaches the tracee and releases DWARF/ELF resources, in that
// order: the DWARF handle must be finalized before the ELF view it was
// built from is closed (§5's resource-scoping note).
func (s *Session) Close() error {
	var firstErr error
	if err := s.Tracee.Detach(); err != nil {
		firstErr = err
	}
	s.DWARF = nil
	if err := s.ELF.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
