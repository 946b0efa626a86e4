// Package addr distinguishes debugger-view addresses (as written in the
// ELF/DWARF, relative to the image's preferred base) from real addresses
// (the tracee's actual runtime virtual address). The two differ by the
// load address, which is zero for a non-PIE executable.
//
// Keeping these as distinct types instead of a single uint64 is a type-system
// discipline: every place that mixes the two views has to go through Real or
// Dbg below, which is the only place the load address is added or
// subtracted.
package addr

import "fmt"

// Dbg is an address as it appears in the ELF/DWARF, before relocation.
type Dbg uint64

// Real is an address in the tracee's actual virtual memory.
type Real uint64

// Load is the runtime-minus-link-time delta of a position-independent
// executable. Zero for a non-PIE.
type Load uint64

// Real converts a debugger-view address to the address it corresponds to in
// the running tracee.
func (l Load) Real(d Dbg) Real {
	return Real(uint64(d) + uint64(l))
}

// Dbg converts a real, running-tracee address back to its debugger view.
func (l Load) Dbg(r Real) Dbg {
	return Dbg(uint64(r) - uint64(l))
}

func (d Dbg) String() string  { return fmt.Sprintf("dbg:%#x", uint64(d)) }
func (r Real) String() string { return fmt.Sprintf("real:%#x", uint64(r)) }
