package locexpr

import "github.com/d4ckard/spray/internal/addr"

// LocationKind discriminates the two variants of Location, matching
// original_source/spray_dwarf.h's SdLocation tagged union (LOC_ADDR /
// LOC_REG).
type LocationKind int

const (
	LocMemory LocationKind = iota
	LocRegister
)

// Location is where a variable currently lives: either at a memory address
// or entirely inside a register, never both.
type Location struct {
	Kind     LocationKind
	Address  addr.Real
	Register int
}

func (l Location) String() string {
	switch l.Kind {
	case LocRegister:
		return registerName(l.Register)
	default:
		return l.Address.String()
	}
}

// Context is everything the evaluator needs beyond the expression bytes
// themselves: memory and register access into the live tracee, the load
// address for PIE relocation, and the enclosing subprogram's frame-base
// expression for DW_OP_fbreg. Mirrors original_source/spray_dwarf.h's
// SdLocEvalCtx.
type Context struct {
	Mem           Memory
	Regs          Registers
	Load          addr.Load
	FrameBaseExpr []byte
}

// Eval interprets expr (one DWARF location expression's raw bytes, already
// selected out of a List for the current pc) against ctx and returns the
// resulting Location.
func Eval(expr []byte, ctx Context) (Location, error) {
	vm := &machine{
		mem:           ctx.Mem,
		regs:          ctx.Regs,
		loadAddr:      ctx.Load,
		frameBaseExpr: ctx.FrameBaseExpr,
	}
	res, err := evalOps(vm, decodeOps(expr))
	if err != nil {
		return Location{}, err
	}
	switch v := res.(type) {
	case memoryResult:
		return Location{Kind: LocMemory, Address: addr.Real(v)}, nil
	case regResult:
		return Location{Kind: LocRegister, Register: v.reg}, nil
	default:
		return Location{}, &FailedError{Reason: "expression produced no result"}
	}
}

// evalOps runs ops to completion against vm's stack. The result is a
// register (set by a regN/regx opcode, which must be the final operation in
// a valid expression) or the top of the operand stack interpreted as a
// memory address.
func evalOps(vm *machine, ops []Op) (interface{}, error) {
	for _, op := range ops {
		handler, ok := opTable[op.Code]
		if !ok {
			return nil, &UnsupportedError{Opcode: op.Code}
		}
		if err := handler(vm, op); err != nil {
			return nil, err
		}
		if vm.result != nil {
			return *vm.result, nil
		}
	}
	top, err := vm.pop()
	if err != nil {
		return nil, &FailedError{Reason: "expression yielded no address: " + err.Error()}
	}
	return memoryResult(top), nil
}
