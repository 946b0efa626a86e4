package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/d4ckard/spray/internal/addr"
	"github.com/d4ckard/spray/internal/session"
)

// parseCommand splits a raw REPL line into a command name and its
// whitespace-separated arguments.
func parseCommand(line string) (string, []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// dispatch runs one command against sess, returning done=true once the
// session has ended (tracee exited/signalled).
func dispatch(sess *session.Session, name string, args []string) (bool, error) {
	switch name {
	case "enable", "break":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: enable <addr|file:line|function>")
		}
		return false, sess.Enable(args[0])

	case "disable":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: disable <addr|file:line|function>")
		}
		return false, sess.Disable(args[0])

	case "continue", "c":
		ev, term, err := sess.Continue()
		return reportStep(ev, term, err)

	case "step", "s":
		ev, term, err := sess.StepIn()
		return reportStep(ev, term, err)

	case "next", "n":
		ev, term, err := sess.StepOver()
		return reportStep(ev, term, err)

	case "stepi":
		ev, term, err := sess.StepInstruction()
		return reportStep(ev, term, err)

	case "finish":
		ev, term, err := sess.StepOut()
		return reportStep(ev, term, err)

	case "print", "p":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: print <register|variable>")
		}
		return false, printValue(sess, args[0])

	case "set":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: set <register> <value>")
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(args[1], "0x"), 16, 64)
		if err != nil {
			return false, fmt.Errorf("set: %w", err)
		}
		return false, sess.SetRegister(args[0], v)

	case "memread":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: memread <hex-addr>")
		}
		a, err := parseHexAddr(args[0])
		if err != nil {
			return false, err
		}
		word, err := sess.Tracee.PeekWord(a)
		if err != nil {
			return false, err
		}
		fmt.Printf("%#016x\n", word)
		return false, nil

	case "memwrite":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: memwrite <hex-addr> <hex-word>")
		}
		a, err := parseHexAddr(args[0])
		if err != nil {
			return false, err
		}
		word, err := strconv.ParseUint(strings.TrimPrefix(args[1], "0x"), 16, 64)
		if err != nil {
			return false, err
		}
		return false, sess.MemWrite(a, word)

	case "backtrace", "bt":
		return false, printBacktrace(sess)

	default:
		return false, fmt.Errorf("unknown command %q", name)
	}
}

func parseHexAddr(s string) (addr.Real, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return addr.Real(v), nil
}

func reportStep(ev session.StopEvent, term *session.TerminationEvent, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	if term != nil {
		printTermination(*term)
		return true, nil
	}
	printStop(ev)
	return false, nil
}

func printValue(sess *session.Session, name string) error {
	if v, err := sess.ReadRegister(name); err == nil {
		fmt.Printf("%s = %#x\n", name, v)
		return nil
	}
	va, loc, err := sess.Variable(name)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s @ %s (declared at %s:%d)\n", name, va.Type.String(), loc.String(), va.DeclFile, va.DeclLine)
	return nil
}

func printBacktrace(sess *session.Session) error {
	regs, err := sess.Tracee.ReadRegs()
	if err != nil {
		return err
	}
	pc := regs.PC()
	bp := regs.Rbp

	for i := 0; i < 64; i++ {
		name, _, _, ferr := sess.DWARF.FunctionAt(pc)
		if ferr != nil {
			name = "???"
		}
		fmt.Printf("#%d  %s (%s)\n", i, name, pc)

		if bp == 0 {
			break
		}
		ret, err := sess.Tracee.PeekWord(addr.Real(bp + 8))
		if err != nil {
			break
		}
		savedBP, err := sess.Tracee.PeekWord(addr.Real(bp))
		if err != nil {
			break
		}
		if ret == 0 {
			break
		}
		pc = addr.Real(ret)
		bp = savedBP
	}
	return nil
}

func printStop(ev session.StopEvent) {
	c := color.New(color.FgGreen)
	c.Printf("stopped (%s) at %s:%d:%d in %s [%s]\n", ev.Cause, ev.File, ev.Line, ev.Column, ev.Function, ev.Addr)
}

func printTermination(t session.TerminationEvent) {
	if t.Exited {
		color.New(color.FgYellow).Printf("program exited with code %d\n", t.ExitCode)
		return
	}
	color.New(color.FgRed).Printf("program terminated by signal %s\n", t.SignalName)
}
