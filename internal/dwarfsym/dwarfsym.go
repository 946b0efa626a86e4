// Package dwarfsym is the DWARF-backed symbolication layer (§4.D): it maps
// between program counters, source file/line positions, function names, and
// variable declarations, and builds the flat type-node sequence used to
// render a variable's declared type.
//
// It is built directly on the standard library's debug/dwarf, per the
// DOMAIN STACK note in SPEC_FULL.md: the teacher (jackc-delve) vendors a
// fork of debug/dwarf under vendor/dwarf because, at the time, upstream
// debug/dwarf didn't yet expose a line-number program reader or PC-indexed
// DIE lookup; both of those now exist upstream (Reader.SeekPC,
// Data.LineReader, LineReader.SeekPC), so the fork is unnecessary and we use
// debug/dwarf directly instead of re-vendoring it.
package dwarfsym

import (
	"debug/dwarf"
	"fmt"

	"github.com/d4ckard/spray/internal/addr"
)

// NoDebugInfoError is the NO_DEBUG_INFO error kind (§7): a required DWARF
// section is absent. Fatal at setup, non-fatal per query.
type NoDebugInfoError struct {
	Section string
}

func (e *NoDebugInfoError) Error() string {
	return fmt.Sprintf("no debug info: missing %s section", e.Section)
}

// NoSuchSymbolError is the NO_SUCH_SYMBOL error kind: a name or file:line
// could not be resolved via DWARF.
type NoSuchSymbolError struct {
	What string
}

func (e *NoSuchSymbolError) Error() string { return fmt.Sprintf("no such symbol: %s", e.What) }

// Handle is the opened DWARF debug information for one executable.
type Handle struct {
	Data *dwarf.Data
	Load addr.Load

	// LocSection is the raw .debug_loc section, kept for locexpr.ParseLocList.
	LocSection []byte
}

// Sections bundles the raw DWARF section contents read out of an ELF file
// (§6: ".debug_info", ".debug_line", ".debug_loclists"/".debug_loc",
// ".debug_abbrev", ".debug_str"/".debug_line_str"). Missing required
// sections surface as NoDebugInfoError.
type Sections struct {
	Abbrev, Info, Str, Line, Ranges []byte

	// DWARF5 split sections; optional, added via Data.AddSection when present.
	LineStr, LocLists, RngLists, StrOffsets, Addr []byte

	// Loc is the classic-format (DWARF<=4) location-list section. debug/dwarf
	// doesn't parse it (DW_AT_location just yields its raw offset into this
	// section), so it's kept on Handle for locexpr.ParseLocList instead of
	// being handed to dwarf.New.
	Loc []byte
}

// Open parses the DWARF sections already read out of an ELF file. Callers
// get the raw []byte sections from elfview.View's section table and hand
// them here so this package has no ELF dependency of its own beyond what
// debug/dwarf needs.
func Open(sec Sections, load addr.Load) (*Handle, error) {
	if len(sec.Info) == 0 {
		return nil, &NoDebugInfoError{Section: ".debug_info"}
	}
	if len(sec.Line) == 0 {
		return nil, &NoDebugInfoError{Section: ".debug_line"}
	}

	data, err := dwarf.New(sec.Abbrev, nil, nil, sec.Info, sec.Line, nil, sec.Ranges, sec.Str)
	if err != nil {
		return nil, err
	}

	for name, contents := range map[string][]byte{
		".debug_line_str":    sec.LineStr,
		".debug_loclists":    sec.LocLists,
		".debug_rnglists":    sec.RngLists,
		".debug_str_offsets": sec.StrOffsets,
		".debug_addr":        sec.Addr,
	} {
		if len(contents) == 0 {
			continue
		}
		if err := data.AddSection(name, contents); err != nil {
			return nil, err
		}
	}

	return &Handle{Data: data, Load: load, LocSection: sec.Loc}, nil
}

// die positions a fresh reader at off and returns the entry there.
func (h *Handle) die(off dwarf.Offset) (*dwarf.Entry, error) {
	r := h.Data.Reader()
	r.Seek(off)
	return r.Next()
}

// cuFor returns the compile-unit DIE whose PC range contains the
// debugger-view address d.
func (h *Handle) cuFor(d addr.Dbg) (*dwarf.Entry, error) {
	r := h.Data.Reader()
	e, err := r.SeekPC(uint64(d))
	if err != nil {
		return nil, &NoSuchSymbolError{What: fmt.Sprintf("no compilation unit covers pc %s", d)}
	}
	return e, nil
}

// entryRange extracts [low, high) from a DIE carrying AttrLowpc/AttrHighpc,
// handling both the DWARF2-4 "highpc is an address" form and the DWARF4+
// "highpc is an unsigned offset from lowpc" form.
func entryRange(e *dwarf.Entry) (low, high uint64, ok bool) {
	lowVal := e.Val(dwarf.AttrLowpc)
	low64, isLow := lowVal.(uint64)
	if !isLow {
		return 0, 0, false
	}

	field := e.AttrField(dwarf.AttrHighpc)
	if field == nil {
		return 0, 0, false
	}

	switch v := field.Val.(type) {
	case uint64:
		if field.Class == dwarf.ClassAddress {
			return low64, v, true
		}
		// ClassConstant: offset from low pc.
		return low64, low64 + v, true
	case int64:
		return low64, low64 + uint64(v), true
	default:
		return 0, 0, false
	}
}

func contains(low, high, pc uint64) bool { return pc >= low && pc < high }
