// Package locexpr is the location evaluator (§4.E): it interprets a DWARF
// location list against the current PC to yield a concrete live location,
// either a register or a memory address.
//
// The opcode table below is a data-driven dispatch (map[byte]opHandler)
// rather than a long switch, per the design note in §9 ("favor a
// data-driven table... it makes the supported-opcode set declarative and
// testable"). Grounded directly in
// other_examples/8de50349_ConradIrwin-go-dwarf__loclist.go (a standalone
// DW_OP_* interpreter over a byte stream with an operand stack) and in
// JetSetIlly-Gopher2600/coprocessor/developer/dwarf/dwarf_loclist_operations.go
// (a decodeLoclistOperation dispatcher keyed by opcode byte).
package locexpr

import "github.com/d4ckard/spray/internal/addr"

// DWARF expression opcodes (DWARF5 §7.7.1). Named the way
// other_examples/8de50349_ConradIrwin-go-dwarf__loclist.go does, since
// debug/dwarf does not export these as a public opcode table.
const (
	opAddr        = 0x03
	opDeref       = 0x06
	opConst1u     = 0x08
	opConst1s     = 0x09
	opConst2u     = 0x0a
	opConst2s     = 0x0b
	opConst4u     = 0x0c
	opConst4s     = 0x0d
	opConst8u     = 0x0e
	opConst8s     = 0x0f
	opConstu      = 0x10
	opConsts      = 0x11
	opPlusUconst  = 0x23
	opLit0        = 0x30
	opLit31       = 0x4f
	opReg0        = 0x50
	opReg31       = 0x6f
	opBreg0       = 0x70
	opBreg31      = 0x8f
	opRegx        = 0x90
	opFbreg       = 0x91
	opBregx       = 0x92
	opStackValue  = 0x9f
	opCallFrameCfa = 0x9c
)

// Op is one decoded operation in a DWARF expression: an opcode and up to
// two operands (DW_OP_bregx uses both). It has no third operand slot; none
// of the opcodes decodeOps understands carries one. Modeled on
// original_source/spray_dwarf.h's SdOperation.
type Op struct {
	Code     byte
	Operand1 int64
	Operand2 int64
}

// opHandler executes one operation against the interpreter's stack/state.
// It returns an error for any condition the interpreter can't recover from;
// LOC_EVAL_UNSUPPORTED and LOC_EVAL_FAILED are both surfaced this way, one
// level up, by Eval.
type opHandler func(vm *machine, op Op) error

// opTable maps opcode -> handler. The 32-wide opcode families (lit0..31,
// reg0..31, breg0..31) are installed programmatically in init below rather
// than listed 96 times over; regx and bregx are listed in the table itself.
//
// The table is filled in init rather than by a package-level initializer:
// the fbreg and call_frame_cfa handlers reach evalOps through frameBase, and
// evalOps reads opTable, which would otherwise be an initialization cycle.
var opTable map[byte]opHandler

func init() {
	opTable = map[byte]opHandler{
		opAddr: func(vm *machine, op Op) error {
			vm.push(uint64(op.Operand1) + uint64(vm.loadAddr))
			return nil
		},
		opDeref: func(vm *machine, op Op) error {
			a, err := vm.pop()
			if err != nil {
				return err
			}
			word, err := vm.mem.PeekWord(addr.Real(a))
			if err != nil {
				return &FailedError{Reason: err.Error()}
			}
			vm.push(word)
			return nil
		},
		opConst1u: constHandler(),
		opConst1s: constHandler(),
		opConst2u: constHandler(),
		opConst2s: constHandler(),
		opConst4u: constHandler(),
		opConst4s: constHandler(),
		opConst8u: constHandler(),
		opConst8s: constHandler(),
		opConstu:  constHandler(),
		opConsts:  constHandler(),
		opPlusUconst: func(vm *machine, op Op) error {
			v, err := vm.pop()
			if err != nil {
				return err
			}
			vm.push(v + uint64(op.Operand1))
			return nil
		},
		opFbreg: func(vm *machine, op Op) error {
			base, err := vm.frameBase()
			if err != nil {
				return err
			}
			vm.push(uint64(int64(base) + op.Operand1))
			return nil
		},
		opRegx: func(vm *machine, op Op) error {
			vm.result = &regResult{reg: int(op.Operand1)}
			return nil
		},
		opBregx: func(vm *machine, op Op) error {
			v, err := vm.regValue(int(op.Operand1))
			if err != nil {
				return err
			}
			vm.push(uint64(int64(v) + op.Operand2))
			return nil
		},
		opCallFrameCfa: func(vm *machine, op Op) error {
			cfa, err := vm.frameBase()
			if err != nil {
				return err
			}
			vm.push(uint64(cfa))
			return nil
		},
		opStackValue: func(vm *machine, op Op) error {
			return &UnsupportedError{Opcode: opStackValue}
		},
	}
}

func constHandler() opHandler {
	return func(vm *machine, op Op) error {
		vm.push(uint64(op.Operand1))
		return nil
	}
}

func init() {
	for i := byte(0); i <= 31; i++ {
		i := i
		opTable[opLit0+i] = func(vm *machine, op Op) error {
			vm.push(uint64(i))
			return nil
		}
		opTable[opReg0+i] = func(vm *machine, op Op) error {
			vm.result = &regResult{reg: int(i)}
			return nil
		}
		opTable[opBreg0+i] = func(vm *machine, op Op) error {
			v, err := vm.regValue(int(i))
			if err != nil {
				return err
			}
			vm.push(uint64(int64(v) + op.Operand1))
			return nil
		}
	}
}
