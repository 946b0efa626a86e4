// Package elfview exposes the load address, text-section bounds, and symbol
// table of a tracee's executable image (§4.B). It is consumed by the
// session, which reads the raw DWARF sections out of it for the DWARF
// symbolication, uses it to decide whether a binary is a PIE, and checks
// breakpoint addresses against its text bounds; the symbolication and
// location-evaluator packages do not import it.
//
// Grounded in proctl_linux_amd64.go's findExecutable/obtainGoSymbols, which
// open /proc/<pid>/exe. The teacher vendors its own elf package
// (vendor/elf); we use debug/elf directly per the DOMAIN STACK note in
// SPEC_FULL.md.
package elfview

import (
	"debug/elf"
	"fmt"
	"os"

	"github.com/d4ckard/spray/internal/addr"
)

// View is a parsed ELF executable plus the load address computed for it.
type View struct {
	File *elf.File

	TextLow  addr.Dbg
	TextHigh addr.Dbg

	symbols []elf.Symbol
	backing *os.File
}

// Open parses the ELF image backing a running tracee, via /proc/<pid>/exe.
func Open(pid int) (*View, error) {
	path := fmt.Sprintf("/proc/%d/exe", pid)
	return OpenPath(path)
}

// OpenPath parses an ELF image directly from a filesystem path, used both by
// Open and by tests that don't have a live tracee.
func OpenPath(path string) (*View, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	v := &View{File: ef, backing: f}

	if text := ef.Section(".text"); text != nil {
		v.TextLow = addr.Dbg(text.Addr)
		v.TextHigh = addr.Dbg(text.Addr + text.Size)
	}

	syms, err := ef.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return nil, err
	}
	v.symbols = syms

	return v, nil
}

// IsPIE reports whether the image is an ET_DYN executable (PIE), meaning a
// nonzero load address must be discovered once the tracee is running.
func (v *View) IsPIE() bool {
	return v.File.Type == elf.ET_DYN
}

// InText reports whether a debugger-view address falls within the text
// section's bounds, per the BP_OOB error kind in §7.
func (v *View) InText(d addr.Dbg) bool {
	return d >= v.TextLow && d < v.TextHigh
}

// Symbol looks up a function symbol by name.
func (v *View) Symbol(name string) (elf.Symbol, bool) {
	for _, s := range v.symbols {
		if s.Name == name && elf.ST_TYPE(s.Info) == elf.STT_FUNC {
			return s, true
		}
	}
	return elf.Symbol{}, false
}

// Close releases the underlying file.
func (v *View) Close() error {
	if err := v.File.Close(); err != nil {
		return err
	}
	return v.backing.Close()
}

// sectionBytes returns a section's raw contents, or nil if the section is
// absent (optional DWARF5 sections commonly are).
func (v *View) sectionBytes(name string) []byte {
	sec := v.File.Section(name)
	if sec == nil {
		return nil
	}
	data, err := sec.Data()
	if err != nil {
		return nil
	}
	return data
}

// RawDWARFSections gathers the section contents dwarfsym.Open needs,
// keeping dwarfsym itself free of any ELF dependency beyond the bytes.
func (v *View) RawDWARFSections() (abbrev, info, str, line, ranges, lineStr, locLists, rngLists, strOffsets, addrSec, loc []byte) {
	return v.sectionBytes(".debug_abbrev"),
		v.sectionBytes(".debug_info"),
		v.sectionBytes(".debug_str"),
		v.sectionBytes(".debug_line"),
		v.sectionBytes(".debug_ranges"),
		v.sectionBytes(".debug_line_str"),
		v.sectionBytes(".debug_loclists"),
		v.sectionBytes(".debug_rnglists"),
		v.sectionBytes(".debug_str_offsets"),
		v.sectionBytes(".debug_addr"),
		v.sectionBytes(".debug_loc")
}
