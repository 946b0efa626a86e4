package dwarfsym

import (
	"debug/dwarf"

	"github.com/d4ckard/spray/internal/addr"
)

// FrameBaseAttr returns the raw DW_AT_frame_base location attribute of the
// subprogram enclosing pc, for the location evaluator's DW_OP_fbreg support.
func (h *Handle) FrameBaseAttr(pc addr.Real) (LocAttr, error) {
	d := h.Load.Dbg(pc)
	cu, err := h.cuFor(d)
	if err != nil {
		return LocAttr{}, err
	}
	sub, err := h.subprogramContaining(cu, d)
	if err != nil {
		return LocAttr{}, err
	}
	return locAttrFromDieField(sub, dwarf.AttrFrameBase)
}

// CULowPC returns the DW_AT_low_pc of the compilation unit enclosing pc, the
// base address a classic-format location list's range pairs are relative to.
func (h *Handle) CULowPC(pc addr.Real) (uint64, error) {
	d := h.Load.Dbg(pc)
	cu, err := h.cuFor(d)
	if err != nil {
		return 0, err
	}
	low, ok := cu.Val(dwarf.AttrLowpc).(uint64)
	if !ok {
		return 0, &NoSuchSymbolError{What: "compilation unit has no DW_AT_low_pc"}
	}
	return low, nil
}

// FunctionAt returns the name and PC range of the subprogram enclosing the
// real address pc. Used by the execution stepper to detect when a step has
// left the function it started in, and to drive for_each_line during
// step-over.
func (h *Handle) FunctionAt(pc addr.Real) (name string, low, high addr.Dbg, err error) {
	d := h.Load.Dbg(pc)

	cu, err := h.cuFor(d)
	if err != nil {
		return "", 0, 0, err
	}
	sub, err := h.subprogramContaining(cu, d)
	if err != nil {
		return "", 0, 0, err
	}

	lowPC, highPC, ok := entryRange(sub)
	if !ok {
		return "", 0, 0, &NoSuchSymbolError{What: "subprogram has no PC range"}
	}

	return dieName(sub), addr.Dbg(lowPC), addr.Dbg(highPC), nil
}
