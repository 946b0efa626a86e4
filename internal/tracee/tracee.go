// Package tracee wraps the kernel's process-tracing facility: attach,
// continue, single-step, peek/poke memory and registers, and wait for stop.
// Each primitive is synchronous and requires the tracee to already be
// stopped; there is exactly one tracee and one tracer (§5 of the spec), so
// no locking is necessary here beyond the OS-thread pinning main() does.
//
// Grounded in proctl_linux_amd64.go's DebuggedProcess, generalized from the
// teacher's raw syscall.Ptrace* calls to golang.org/x/sys/unix, the way
// golang-debug (x/debug) makes the same substitution.
package tracee

import (
	"fmt"

	"github.com/d4ckard/spray/internal/addr"
	"golang.org/x/sys/unix"
)

// StopKind classifies why wait_stop returned.
type StopKind int

const (
	StopStopped StopKind = iota
	StopExited
	StopSignalled
)

// StopReason is the decoded result of wait_stop.
type StopReason struct {
	Kind     StopKind
	ExitCode int
	Signal   unix.Signal
}

// Error is the TRACEE_FAILED error kind from §7: a kernel trace operation
// was refused. The original errno/signal is attached for reporting.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("tracee: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Tracee is a single traced child process.
type Tracee struct {
	Pid int
}

// Spawn forks and execs argv[0], requesting that it be traced, and waits for
// the initial SIGTRAP stop raised on exec. Mirrors spawn_and_trace in §4.A.
func Spawn(argv []string, attr *unix.SysProcAttr) (*Tracee, StopReason, error) {
	if attr == nil {
		attr = &unix.SysProcAttr{}
	}
	attr.Ptrace = true

	pid, err := unix.ForkExec(argv[0], argv, &unix.ProcAttr{
		Sys: attr,
	})
	if err != nil {
		return nil, StopReason{}, &Error{"forkexec", err}
	}

	t := &Tracee{Pid: pid}
	sr, err := t.WaitStop()
	if err != nil {
		return nil, StopReason{}, err
	}
	return t, sr, nil
}

// Attach attaches to an already-running process by pid.
func Attach(pid int) (*Tracee, StopReason, error) {
	if err := unix.PtraceAttach(pid); err != nil {
		return nil, StopReason{}, &Error{"attach", err}
	}
	t := &Tracee{Pid: pid}
	sr, err := t.WaitStop()
	if err != nil {
		return nil, StopReason{}, err
	}
	return t, sr, nil
}

// Detach releases the tracee, leaving it to run freely.
func (t *Tracee) Detach() error {
	if err := unix.PtraceDetach(t.Pid); err != nil {
		return &Error{"detach", err}
	}
	return nil
}

// Cont resumes the tracee until its next stop.
func (t *Tracee) Cont() (StopReason, error) {
	if err := unix.PtraceCont(t.Pid, 0); err != nil {
		return StopReason{}, &Error{"cont", err}
	}
	return t.WaitStop()
}

// SingleStep executes exactly one instruction, then stops.
func (t *Tracee) SingleStep() (StopReason, error) {
	if err := unix.PtraceSingleStep(t.Pid); err != nil {
		return StopReason{}, &Error{"singlestep", err}
	}
	return t.WaitStop()
}

// Regs is the x86-64 user register file.
type Regs unix.PtraceRegs

// PC returns the instruction pointer.
func (r *Regs) PC() addr.Real { return addr.Real(r.Rip) }

// SetPC overwrites the instruction pointer.
func (r *Regs) SetPC(pc addr.Real) { r.Rip = uint64(pc) }

// DwarfReg returns the value of the x86-64 DWARF-numbered register n (System
// V ABI table 3.36), satisfying locexpr.Registers. unix.PtraceRegs is laid
// out as the kernel's user_regs_struct, not DWARF order, so this is a
// straight lookup table rather than arithmetic on the struct.
func (r *Regs) DwarfReg(n int) (uint64, error) {
	switch n {
	case 0:
		return r.Rax, nil
	case 1:
		return r.Rdx, nil
	case 2:
		return r.Rcx, nil
	case 3:
		return r.Rbx, nil
	case 4:
		return r.Rsi, nil
	case 5:
		return r.Rdi, nil
	case 6:
		return r.Rbp, nil
	case 7:
		return r.Rsp, nil
	case 8:
		return r.R8, nil
	case 9:
		return r.R9, nil
	case 10:
		return r.R10, nil
	case 11:
		return r.R11, nil
	case 12:
		return r.R12, nil
	case 13:
		return r.R13, nil
	case 14:
		return r.R14, nil
	case 15:
		return r.R15, nil
	case 16:
		return r.Rip, nil
	default:
		return 0, fmt.Errorf("no such DWARF register number %d", n)
	}
}

// ReadRegs fetches the current register file.
func (t *Tracee) ReadRegs() (*Regs, error) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(t.Pid, &regs); err != nil {
		return nil, &Error{"getregs", err}
	}
	r := Regs(regs)
	return &r, nil
}

// WriteRegs overwrites the register file.
func (t *Tracee) WriteRegs(r *Regs) error {
	regs := unix.PtraceRegs(*r)
	if err := unix.PtraceSetRegs(t.Pid, &regs); err != nil {
		return &Error{"setregs", err}
	}
	return nil
}

// PeekWord reads the 8-byte word at a real address.
func (t *Tracee) PeekWord(a addr.Real) (uint64, error) {
	buf := make([]byte, 8)
	if _, err := unix.PtracePeekData(t.Pid, uintptr(a), buf); err != nil {
		return 0, &Error{"peekdata", err}
	}
	return leUint64(buf), nil
}

// PokeWord writes the 8-byte word at a real address.
func (t *Tracee) PokeWord(a addr.Real, word uint64) error {
	buf := leBytes(word)
	if _, err := unix.PtracePokeData(t.Pid, uintptr(a), buf); err != nil {
		return &Error{"pokedata", err}
	}
	return nil
}

// ReadMem reads an arbitrary-length byte range from the tracee.
func (t *Tracee) ReadMem(a addr.Real, size int) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := unix.PtracePeekData(t.Pid, uintptr(a), buf); err != nil {
		return nil, &Error{"peekdata", err}
	}
	return buf, nil
}

// WaitStop blocks until the tracee changes state and decodes why.
func (t *Tracee) WaitStop() (StopReason, error) {
	var ws unix.WaitStatus
	_, err := unix.Wait4(t.Pid, &ws, 0, nil)
	if err != nil {
		return StopReason{}, &Error{"wait4", err}
	}

	switch {
	case ws.Exited():
		return StopReason{Kind: StopExited, ExitCode: ws.ExitStatus()}, nil
	case ws.Signaled():
		return StopReason{Kind: StopSignalled, Signal: ws.Signal()}, nil
	case ws.Stopped():
		return StopReason{Kind: StopStopped, Signal: ws.StopSignal()}, nil
	default:
		return StopReason{}, &Error{"wait4", fmt.Errorf("unrecognized wait status %#v", ws)}
	}
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func leBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
