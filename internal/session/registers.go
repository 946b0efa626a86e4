package session

import (
	"fmt"

	"github.com/d4ckard/spray/internal/tracee"
)

// ReadRegister returns the named x86-64 general-purpose register's current
// value ("rax", "rip", etc, case-sensitive, matching GDB/objdump spelling).
func (s *Session) ReadRegister(name string) (uint64, error) {
	regs, err := s.Tracee.ReadRegs()
	if err != nil {
		return 0, err
	}
	return registerField(regs, name)
}

// SetRegister overwrites the named register and writes the register file
// back to the tracee.
func (s *Session) SetRegister(name string, value uint64) error {
	regs, err := s.Tracee.ReadRegs()
	if err != nil {
		return err
	}
	if err := setRegisterField(regs, name, value); err != nil {
		return err
	}
	return s.Tracee.WriteRegs(regs)
}

func registerField(r *tracee.Regs, name string) (uint64, error) {
	switch name {
	case "rax":
		return r.Rax, nil
	case "rbx":
		return r.Rbx, nil
	case "rcx":
		return r.Rcx, nil
	case "rdx":
		return r.Rdx, nil
	case "rsi":
		return r.Rsi, nil
	case "rdi":
		return r.Rdi, nil
	case "rbp":
		return r.Rbp, nil
	case "rsp":
		return r.Rsp, nil
	case "r8":
		return r.R8, nil
	case "r9":
		return r.R9, nil
	case "r10":
		return r.R10, nil
	case "r11":
		return r.R11, nil
	case "r12":
		return r.R12, nil
	case "r13":
		return r.R13, nil
	case "r14":
		return r.R14, nil
	case "r15":
		return r.R15, nil
	case "rip":
		return r.Rip, nil
	case "eflags":
		return r.Eflags, nil
	default:
		return 0, fmt.Errorf("no such register %q", name)
	}
}

func setRegisterField(r *tracee.Regs, name string, v uint64) error {
	switch name {
	case "rax":
		r.Rax = v
	case "rbx":
		r.Rbx = v
	case "rcx":
		r.Rcx = v
	case "rdx":
		r.Rdx = v
	case "rsi":
		r.Rsi = v
	case "rdi":
		r.Rdi = v
	case "rbp":
		r.Rbp = v
	case "rsp":
		r.Rsp = v
	case "r8":
		r.R8 = v
	case "r9":
		r.R9 = v
	case "r10":
		r.R10 = v
	case "r11":
		r.R11 = v
	case "r12":
		r.R12 = v
	case "r13":
		r.R13 = v
	case "r14":
		r.R14 = v
	case "r15":
		r.R15 = v
	case "rip":
		r.Rip = v
	case "eflags":
		r.Eflags = v
	default:
		return fmt.Errorf("no such register %q", name)
	}
	return nil
}
