package locexpr

import "github.com/d4ckard/spray/internal/addr"

// Memory is the subset of tracee access the evaluator needs: reading a word
// out of the traced process's address space for DW_OP_deref.
type Memory interface {
	PeekWord(a addr.Real) (uint64, error)
}

// Registers is the subset of tracee access the evaluator needs for
// DW_OP_bregN/bregx: the current value of DWARF register number n (the
// DWARF register numbering for x86-64, not the struct field order of
// unix.PtraceRegs -- see dwarfRegNames in regmap.go).
type Registers interface {
	DwarfReg(n int) (uint64, error)
}

// regResult marks that an expression terminated in a register rather than
// at a memory address (DW_OP_regN/regx): the variable lives entirely in
// that register, with no address to read or write through.
type regResult struct {
	reg int
}

// machine is the operand-stack interpreter driving one expression
// evaluation. Grounded in
// other_examples/8de50349_ConradIrwin-go-dwarf__loclist.go's evaluator,
// which holds an explicit []uint64 stack rather than relying on recursion.
type machine struct {
	stack    []uint64
	mem      Memory
	regs     Registers
	loadAddr addr.Load

	// frameBaseExpr is the enclosing subprogram's DW_AT_frame_base
	// expression, evaluated on demand (and at most once, memoized in
	// frameBaseVal) by DW_OP_fbreg and DW_OP_call_frame_cfa.
	frameBaseExpr []byte
	frameBaseVal  *addr.Real
	depth         int

	result *regResult
}

func (vm *machine) push(v uint64) { vm.stack = append(vm.stack, v) }

func (vm *machine) pop() (uint64, error) {
	if len(vm.stack) == 0 {
		return 0, &FailedError{Reason: "operand stack underflow"}
	}
	top := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return top, nil
}

func (vm *machine) regValue(n int) (uint64, error) {
	if vm.regs == nil {
		return 0, &FailedError{Reason: "no register context available"}
	}
	v, err := vm.regs.DwarfReg(n)
	if err != nil {
		return 0, &FailedError{Reason: err.Error()}
	}
	return v, nil
}

// frameBase evaluates the enclosing subprogram's DW_AT_frame_base
// expression against the same tracee context, per §4.E: "frame base is
// obtained by recursively evaluating the enclosing subprogram's
// DW_AT_frame_base expression". A depth guard turns a malformed
// self-referential frame_base expression into a FailedError instead of a
// stack overflow.
func (vm *machine) frameBase() (addr.Real, error) {
	if vm.frameBaseVal != nil {
		return *vm.frameBaseVal, nil
	}
	if len(vm.frameBaseExpr) == 0 {
		return 0, &FailedError{Reason: "no DW_AT_frame_base available"}
	}
	if vm.depth > 4 {
		return 0, &FailedError{Reason: "frame base expression recursed too deeply"}
	}

	sub := &machine{
		mem:      vm.mem,
		regs:     vm.regs,
		loadAddr: vm.loadAddr,
		depth:    vm.depth + 1,
	}
	loc, err := evalOps(sub, decodeOps(vm.frameBaseExpr))
	if err != nil {
		return 0, err
	}
	real, ok := loc.(memoryResult)
	if !ok {
		return 0, &FailedError{Reason: "frame base expression did not yield a memory address"}
	}
	v := addr.Real(real)
	vm.frameBaseVal = &v
	return v, nil
}

type memoryResult uint64
