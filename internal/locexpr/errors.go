package locexpr

import "fmt"

// UnsupportedError is the LOC_EVAL_UNSUPPORTED error kind (§7): the
// expression uses an opcode this evaluator deliberately doesn't implement
// (e.g. DW_OP_stack_value, whose result is a value with no address).
type UnsupportedError struct {
	Opcode byte
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported DWARF expression opcode %#x", e.Opcode)
}

// FailedError is the LOC_EVAL_FAILED error kind: the expression is
// malformed, references a register, memory word or stack slot that doesn't
// exist, or a classic location list is truncated. A list in which no range
// covers the pc is not reported through this type (List.Select returns
// false instead).
type FailedError struct {
	Reason string
}

func (e *FailedError) Error() string { return fmt.Sprintf("location evaluation failed: %s", e.Reason) }
