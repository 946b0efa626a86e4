// Package breakpoint implements the software breakpoint engine (§4.C):
// placing and removing 0xCC traps in a tracee's text segment by byte
// substitution, through 8-byte peek/poke so only the target lane is
// disturbed.
//
// Grounded in proctl_linux_amd64.go's Break/Clear, generalized to the
// enabled/disabled two-state record the spec requires (the teacher only
// ever has "present" or "absent"; here Disable keeps the record around with
// enabled=false rather than deleting it, so the original byte survives a
// later Enable of the same address).
package breakpoint

import (
	"fmt"

	"github.com/d4ckard/spray/internal/addr"
)

const int3 = 0xCC

// Memory is the narrow peek/poke surface the engine needs. tracee.Tracee
// satisfies it; tests use a fake.
type Memory interface {
	PeekWord(a addr.Real) (uint64, error)
	PokeWord(a addr.Real, word uint64) error
}

// Record is a single breakpoint, keyed by its debugger-view address.
type Record struct {
	Addr      addr.Dbg
	Enabled   bool
	SavedByte byte
}

// OOBError is the BP_OOB error kind: the address falls outside any loaded
// segment. Callers that can validate this (module B's text bounds) should
// check before calling Enable and return this themselves; Engine does not
// have enough information to detect it on its own.
type OOBError struct {
	Addr addr.Dbg
}

func (e OOBError) Error() string { return fmt.Sprintf("breakpoint address %s out of bounds", e.Addr) }

// Engine owns the address -> breakpoint map for one session.
type Engine struct {
	mem  Memory
	load addr.Load
	recs map[addr.Dbg]*Record
}

func NewEngine(mem Memory, load addr.Load) *Engine {
	return &Engine{mem: mem, load: load, recs: make(map[addr.Dbg]*Record)}
}

// Enable installs a breakpoint at a, creating its record if necessary.
// Idempotent: enabling an already-enabled breakpoint is a no-op.
func (e *Engine) Enable(a addr.Dbg) (*Record, error) {
	rec, ok := e.recs[a]
	if ok && rec.Enabled {
		return rec, nil
	}

	real := e.load.Real(a)
	word, err := e.mem.PeekWord(real)
	if err != nil {
		return nil, err
	}
	saved := byte(word)

	patched := (word &^ 0xff) | int3
	if err := e.mem.PokeWord(real, patched); err != nil {
		return nil, err
	}

	if ok {
		rec.Enabled = true
	} else {
		rec = &Record{Addr: a, Enabled: true, SavedByte: saved}
		e.recs[a] = rec
	}
	return rec, nil
}

// Disable removes the trap, restoring the saved byte. Idempotent.
func (e *Engine) Disable(a addr.Dbg) error {
	rec, ok := e.recs[a]
	if !ok || !rec.Enabled {
		return nil
	}

	real := e.load.Real(a)
	word, err := e.mem.PeekWord(real)
	if err != nil {
		return err
	}
	restored := (word &^ 0xff) | uint64(rec.SavedByte)
	if err := e.mem.PokeWord(real, restored); err != nil {
		return err
	}

	rec.Enabled = false
	return nil
}

// Remove disables (if necessary) and forgets the breakpoint entirely.
func (e *Engine) Remove(a addr.Dbg) error {
	if err := e.Disable(a); err != nil {
		return err
	}
	delete(e.recs, a)
	return nil
}

// Lookup reports whether an enabled breakpoint exists at a, and the record.
func (e *Engine) Lookup(a addr.Dbg) (*Record, bool) {
	rec, ok := e.recs[a]
	if !ok || !rec.Enabled {
		return nil, false
	}
	return rec, true
}

// Get returns the record at a regardless of enabled state.
func (e *Engine) Get(a addr.Dbg) (*Record, bool) {
	rec, ok := e.recs[a]
	return rec, ok
}

// Iter visits every known record, enabled or not. Used to re-apply
// breakpoints on module reload (future use per §4.C).
func (e *Engine) Iter(fn func(*Record)) {
	for _, rec := range e.recs {
		fn(rec)
	}
}

// Count returns the number of tracked records (enabled or disabled).
func (e *Engine) Count() int { return len(e.recs) }
