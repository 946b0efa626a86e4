package locexpr

// x86-64 DWARF register numbering (System V ABI, table 3.36). DW_OP_regN /
// DW_OP_bregN and their x forms carry these numbers, not the field order of
// unix.PtraceRegs -- an adapter in the tracee-facing layer translates
// between the two (see tracee.Regs.DwarfReg in internal/tracee).
var dwarfRegNames = map[int]string{
	0: "rax", 1: "rdx", 2: "rcx", 3: "rbx", 4: "rsi", 5: "rdi", 6: "rbp", 7: "rsp",
	8: "r8", 9: "r9", 10: "r10", 11: "r11", 12: "r12", 13: "r13", 14: "r14", 15: "r15",
	16: "rip",
}

func registerName(n int) string {
	if name, ok := dwarfRegNames[n]; ok {
		return name
	}
	return "reg" + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
