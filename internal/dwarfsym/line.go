package dwarfsym

import (
	"debug/dwarf"
	"fmt"
	"sort"

	"github.com/d4ckard/spray/internal/addr"
)

// LineEntry is one row of a compilation unit's line-number program (§3).
type LineEntry struct {
	File           string
	Line           int
	Column         int
	Addr           addr.Dbg
	IsNewStatement bool
	IsPrologueEnd  bool
	// IsExact is true only when the PC used to look this entry up equaled
	// Addr exactly, distinguishing "we're on line L" from "we're somewhere
	// within the instruction range belonging to line L".
	IsExact bool
}

// fromDwarf converts a raw debug/dwarf line entry into our LineEntry. DWARF
// line-table addresses live in the same space as DW_AT_low_pc/high_pc: the
// debugger view, before the load address is applied. load is accepted for
// API symmetry with callers but is not used to convert le.Address itself.
func fromDwarf(le dwarf.LineEntry, load addr.Load, exact bool) LineEntry {
	name := ""
	if le.File != nil {
		name = le.File.Name
	}
	return LineEntry{
		File:           name,
		Line:           le.Line,
		Column:         le.Column,
		Addr:           addr.Dbg(le.Address),
		IsNewStatement: le.IsStmt,
		IsPrologueEnd:  le.PrologueEnd,
		IsExact:        exact,
	}
}

// FilepathFromPC locates the compilation unit whose PC range contains pc and
// returns its primary source file (DW_AT_name of the CU).
func (h *Handle) FilepathFromPC(pc addr.Real) (string, error) {
	d := h.Load.Dbg(pc)
	cu, err := h.cuFor(d)
	if err != nil {
		return "", err
	}
	name, ok := cu.Val(dwarf.AttrName).(string)
	if !ok {
		return "", &NoSuchSymbolError{What: "compilation unit has no DW_AT_name"}
	}
	return name, nil
}

// LineEntryFromPC scans the CU's line-number program and selects the entry
// with the largest address <= pc, setting IsExact iff the address equaled
// pc exactly.
func (h *Handle) LineEntryFromPC(pc addr.Real) (LineEntry, error) {
	d := h.Load.Dbg(pc)
	cu, err := h.cuFor(d)
	if err != nil {
		return LineEntry{}, err
	}

	lr, err := h.Data.LineReader(cu)
	if err != nil {
		return LineEntry{}, err
	}
	if lr == nil {
		return LineEntry{}, &NoSuchSymbolError{What: "compilation unit has no line table"}
	}

	var le dwarf.LineEntry
	if err := lr.SeekPC(uint64(d), &le); err != nil {
		return LineEntry{}, &NoSuchSymbolError{What: fmt.Sprintf("no line entry covers pc %s", d)}
	}

	return fromDwarf(le, h.Load, le.Address == uint64(d)), nil
}

// LineEntryAt is the inverse lookup: the first new-statement entry in
// filepath whose line equals lineno. Ties (multiple statements on one
// line, e.g. inlines) are broken by lowest address.
func (h *Handle) LineEntryAt(filepath string, lineno int) (LineEntry, error) {
	var matches []LineEntry

	r := h.Data.Reader()
	for {
		cu, err := r.Next()
		if err != nil {
			return LineEntry{}, err
		}
		if cu == nil {
			break
		}
		if cu.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}

		lr, err := h.Data.LineReader(cu)
		if err != nil {
			return LineEntry{}, err
		}
		if lr == nil {
			r.SkipChildren()
			continue
		}

		var le dwarf.LineEntry
		for {
			if err := lr.Next(&le); err != nil {
				break
			}
			if le.EndSequence || !le.IsStmt {
				continue
			}
			if le.Line != lineno {
				continue
			}
			if le.File == nil || !matchesFile(le.File.Name, filepath) {
				continue
			}
			matches = append(matches, fromDwarf(le, h.Load, false))
		}

		r.SkipChildren()
	}

	if len(matches) == 0 {
		return LineEntry{}, &NoSuchSymbolError{What: fmt.Sprintf("%s:%d", filepath, lineno)}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Addr < matches[j].Addr })
	return matches[0], nil
}

// matchesFile compares a line-table file name against a user-supplied path,
// allowing the user to give either the full path DWARF recorded or just the
// base name (the common case when breaking with "file.c:N").
func matchesFile(recorded, want string) bool {
	if recorded == want {
		return true
	}
	rb, wb := baseName(recorded), baseName(want)
	return rb == wb
}

func baseName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

// ForEachLine enumerates every new-statement line entry whose address lies
// within the named subprogram's PC range. filepath disambiguates when a
// name repeats across CUs.
func (h *Handle) ForEachLine(fnName, filepath string, cb func(LineEntry) error) error {
	sub, cu, err := h.findSubprogram(fnName, filepath)
	if err != nil {
		return err
	}
	low, high, ok := entryRange(sub)
	if !ok {
		return &NoSuchSymbolError{What: fmt.Sprintf("subprogram %s has no PC range", fnName)}
	}

	lr, err := h.Data.LineReader(cu)
	if err != nil {
		return err
	}
	if lr == nil {
		return &NoSuchSymbolError{What: "compilation unit has no line table"}
	}

	var le dwarf.LineEntry
	for {
		if err := lr.Next(&le); err != nil {
			break
		}
		if le.EndSequence || !le.IsStmt {
			continue
		}
		if !contains(low, high, le.Address) {
			continue
		}
		if err := cb(fromDwarf(le, h.Load, false)); err != nil {
			return err
		}
	}
	return nil
}

// findSubprogram locates the DW_TAG_subprogram DIE named fnName, optionally
// disambiguated by the compilation unit whose name matches filepath, and
// returns it together with its owning CU DIE.
func (h *Handle) findSubprogram(fnName, filepath string) (sub, cu *dwarf.Entry, err error) {
	r := h.Data.Reader()
	var curCU *dwarf.Entry
	for {
		e, err := r.Next()
		if err != nil {
			return nil, nil, err
		}
		if e == nil {
			break
		}
		if e.Tag == dwarf.TagCompileUnit {
			curCU = e
			if filepath != "" {
				name, _ := e.Val(dwarf.AttrName).(string)
				if !matchesFile(name, filepath) {
					r.SkipChildren()
				}
			}
			continue
		}
		if e.Tag != dwarf.TagSubprogram {
			continue
		}
		name, _ := e.Val(dwarf.AttrName).(string)
		if name == fnName {
			return e, curCU, nil
		}
	}
	return nil, nil, &NoSuchSymbolError{What: fmt.Sprintf("function %s", fnName)}
}

// EffectiveStartAddr walks line entries within [prologueStart, functionEnd)
// to find the first whose PrologueEnd flag is true, or, failing that, the
// second new-statement entry (the first being the call-site epilogue marker
// at entry). This fallback is source-compiler-defined best-effort, per the
// open question in §9.
func (h *Handle) EffectiveStartAddr(prologueStart, functionEnd addr.Dbg) (addr.Dbg, error) {
	cu, err := h.cuFor(prologueStart)
	if err != nil {
		return 0, err
	}
	lr, err := h.Data.LineReader(cu)
	if err != nil {
		return 0, err
	}
	if lr == nil {
		return 0, &NoSuchSymbolError{What: "compilation unit has no line table"}
	}

	var le dwarf.LineEntry
	var stmtCount int
	var firstStmtAddr, secondStmtAddr addr.Dbg

	for {
		if err := lr.Next(&le); err != nil {
			break
		}
		if le.EndSequence || !le.IsStmt {
			continue
		}
		if !contains(uint64(prologueStart), uint64(functionEnd), le.Address) {
			continue
		}
		if le.PrologueEnd {
			return addr.Dbg(le.Address), nil
		}
		stmtCount++
		switch stmtCount {
		case 1:
			firstStmtAddr = addr.Dbg(le.Address)
		case 2:
			secondStmtAddr = addr.Dbg(le.Address)
		}
	}

	switch {
	case stmtCount >= 2:
		return secondStmtAddr, nil
	case stmtCount == 1:
		return firstStmtAddr, nil
	}
	return prologueStart, nil
}
