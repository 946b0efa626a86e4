package locexpr

import (
	"fmt"
	"strings"

	"github.com/d4ckard/spray/internal/addr"
)

// Range is the PC range over which an Entry's expression applies. Always
// is set for a single-location expression (DW_FORM_exprloc/_block), which
// has no encoded range and applies for the variable's whole lifetime.
type Range struct {
	Always   bool
	Low, High addr.Dbg
}

func (r Range) contains(pc addr.Dbg) bool {
	return r.Always || (pc >= r.Low && pc < r.High)
}

// Entry pairs a Range with the DWARF expression that applies over it.
type Entry struct {
	Range Range
	Expr  []byte
}

// List is a DWARF location list: one or more (range, expression) pairs.
// Selected per pc by Select. Preserved as its own type from
// original_source/spray_dwarf.h's loclist model rather than spec.md's
// simplification to a single opaque blob, since a variable whose location
// changes across its lifetime (common once a compiler optimizes) needs
// more than one expression.
type List struct {
	Entries []Entry
}

// NewSingleLocation wraps a single-location expression (the common case for
// unoptimized code: DW_AT_location stored as DW_FORM_exprloc) as a List with
// one always-applicable entry.
func NewSingleLocation(expr []byte) List {
	return List{Entries: []Entry{{Range: Range{Always: true}, Expr: expr}}}
}

// ParseLocList decodes a classic-format (DWARF<=4) location list out of
// raw (the full contents of .debug_loc), starting at offset, relative to
// cuLowPC as the initial base address. Grounded in
// other_examples/8de50349_ConradIrwin-go-dwarf__loclist.go's loclist
// decoder, which walks the same begin/end/expr triples.
//
// DWARF5's .debug_loclists uses a different, opcode-tagged encoding
// (DW_LLE_*) that this parser does not decode, and nothing else in this
// repository decodes it either.
func ParseLocList(raw []byte, offset int, cuLowPC uint64) (List, error) {
	var list List
	base := cuLowPC
	i := offset

	for {
		if i+16 > len(raw) {
			return List{}, &FailedError{Reason: "location list truncated"}
		}
		begin := leUint64(raw[i : i+8])
		end := leUint64(raw[i+8 : i+16])
		i += 16

		if begin == 0 && end == 0 {
			break
		}
		if begin == ^uint64(0) {
			base = end
			continue
		}

		if i+2 > len(raw) {
			return List{}, &FailedError{Reason: "location list truncated before expression length"}
		}
		exprLen := int(leUint16(raw[i : i+2]))
		i += 2
		if i+exprLen > len(raw) {
			return List{}, &FailedError{Reason: "location list truncated expression"}
		}
		expr := raw[i : i+exprLen]
		i += exprLen

		list.Entries = append(list.Entries, Entry{
			Range: Range{Low: addr.Dbg(base + begin), High: addr.Dbg(base + end)},
			Expr:  expr,
		})
	}

	return list, nil
}

// Select returns the expression whose range covers pc (debugger-view
// address), if any.
func (l List) Select(pc addr.Dbg) ([]byte, bool) {
	for _, e := range l.Entries {
		if e.Range.contains(pc) {
			return e.Expr, true
		}
	}
	return nil, false
}

// String renders the location list the way original_source's
// print_loclist does: one line per entry, "always" or the covered range,
// followed by the raw expression byte length.
func (l List) String() string {
	var b strings.Builder
	for _, e := range l.Entries {
		if e.Range.Always {
			fmt.Fprintf(&b, "always: %d bytes\n", len(e.Expr))
		} else {
			fmt.Fprintf(&b, "[%s, %s): %d bytes\n", e.Range.Low, e.Range.High, len(e.Expr))
		}
	}
	return b.String()
}
