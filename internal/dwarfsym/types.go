package dwarfsym

import (
	"debug/dwarf"
	"fmt"
)

// DWARF DW_ATE_* encoding codes (DWARF5 §7.8, table 7.11). Not exported by
// debug/dwarf, so declared here the way spray_dwarf.h pulls them in from
// <dwarf.h>.
const (
	dwAteAddress      = 0x01
	dwAteBoolean      = 0x02
	dwAteFloat        = 0x04
	dwAteSigned       = 0x05
	dwAteSignedChar   = 0x06
	dwAteUnsigned     = 0x07
	dwAteUnsignedChar = 0x08
)

// BaseTag classifies a DW_TAG_base_type DIE by its C spelling (§3).
type BaseTag int

const (
	BaseChar BaseTag = iota
	BaseSignedChar
	BaseUnsignedChar
	BaseShort
	BaseUnsignedShort
	BaseInt
	BaseUnsignedInt
	BaseLong
	BaseUnsignedLong
	BaseLongLong
	BaseUnsignedLongLong
	BaseFloat
	BaseDouble
	BaseLongDouble
)

func (b BaseTag) String() string {
	switch b {
	case BaseChar:
		return "char"
	case BaseSignedChar:
		return "signed char"
	case BaseUnsignedChar:
		return "unsigned char"
	case BaseShort:
		return "short"
	case BaseUnsignedShort:
		return "unsigned short"
	case BaseInt:
		return "int"
	case BaseUnsignedInt:
		return "unsigned int"
	case BaseLong:
		return "long"
	case BaseUnsignedLong:
		return "unsigned long"
	case BaseLongLong:
		return "long long"
	case BaseUnsignedLongLong:
		return "unsigned long long"
	case BaseFloat:
		return "float"
	case BaseDouble:
		return "double"
	case BaseLongDouble:
		return "long double"
	default:
		return "?"
	}
}

// BaseType is a base-type type node: a tag plus its byte size.
type BaseType struct {
	Tag  BaseTag
	Size int64
}

// Modifier is a modifier type node: atomic, const, pointer, restrict, or
// volatile, qualifying the node that follows it.
type Modifier int

const (
	ModAtomic Modifier = iota
	ModConst
	ModPointer
	ModRestrict
	ModVolatile
)

func (m Modifier) String() string {
	switch m {
	case ModAtomic:
		return "_Atomic"
	case ModConst:
		return "const"
	case ModPointer:
		return "*"
	case ModRestrict:
		return "restrict"
	case ModVolatile:
		return "volatile"
	default:
		return "?"
	}
}

// NodeTag discriminates the variants of a TypeNode.
type NodeTag int

const (
	NodeBaseType NodeTag = iota
	NodeModifier
	NodeUnspecified
	NodeTypedef
)

// TypeNode is one node of the flat type-node sequence described in §3.
// Node n+1 qualifies node n: the sequence [Modifier(pointer), BaseType(int)]
// reads as "pointer to int".
type TypeNode struct {
	Tag      NodeTag
	Base     BaseType
	Modifier Modifier
	Name     string // typedef name, when Tag == NodeTypedef
}

// Type is the flat sequence of TypeNodes produced by walking a DW_AT_type
// chain. Owned by the caller that requested it.
type Type struct {
	Nodes []TypeNode
}

func (t Type) String() string {
	s := ""
	for _, n := range t.Nodes {
		switch n.Tag {
		case NodeModifier:
			if n.Modifier == ModPointer {
				s += "*"
			} else {
				s += n.Modifier.String() + " "
			}
		case NodeTypedef:
			s += n.Name + " "
		case NodeUnspecified:
			s += "void"
		case NodeBaseType:
			s += n.Base.Tag.String()
		}
	}
	return s
}

// unsupportedCompoundError marks the explicitly out-of-scope case (§4.D):
// compound/aggregate types (struct, union, array, enum, function pointer,
// etc.) are not modeled by this core.
type unsupportedCompoundError struct {
	Tag dwarf.Tag
}

func (e *unsupportedCompoundError) Error() string {
	return fmt.Sprintf("compound/aggregate types are unsupported: %s", e.Tag)
}

// BuildType walks the DW_AT_type chain starting at off, unwrapping
// typedef/const/pointer/volatile/restrict/atomic as modifier nodes and
// terminating at a base type or an unspecified type.
func (h *Handle) BuildType(off dwarf.Offset) (Type, error) {
	var t Type
	cur := off

	for {
		die, err := h.die(cur)
		if err != nil {
			return Type{}, err
		}
		if die == nil {
			return Type{}, &NoSuchSymbolError{What: "dangling DW_AT_type reference"}
		}

		switch die.Tag {
		case dwarf.TagTypedef:
			name, _ := die.Val(dwarf.AttrName).(string)
			t.Nodes = append(t.Nodes, TypeNode{Tag: NodeTypedef, Name: name})

		case dwarf.TagConstType:
			t.Nodes = append(t.Nodes, TypeNode{Tag: NodeModifier, Modifier: ModConst})
		case dwarf.TagPointerType:
			t.Nodes = append(t.Nodes, TypeNode{Tag: NodeModifier, Modifier: ModPointer})
		case dwarf.TagVolatileType:
			t.Nodes = append(t.Nodes, TypeNode{Tag: NodeModifier, Modifier: ModVolatile})
		case dwarf.TagRestrictType:
			t.Nodes = append(t.Nodes, TypeNode{Tag: NodeModifier, Modifier: ModRestrict})
		case dwarf.TagAtomicType:
			t.Nodes = append(t.Nodes, TypeNode{Tag: NodeModifier, Modifier: ModAtomic})

		case dwarf.TagBaseType:
			name, _ := die.Val(dwarf.AttrName).(string)
			enc, _ := die.Val(dwarf.AttrEncoding).(int64)
			size, _ := die.Val(dwarf.AttrByteSize).(int64)
			t.Nodes = append(t.Nodes, TypeNode{Tag: NodeBaseType, Base: BaseType{Tag: classifyBaseType(name, enc, size), Size: size}})
			return t, nil

		case dwarf.TagUnspecifiedType:
			t.Nodes = append(t.Nodes, TypeNode{Tag: NodeUnspecified})
			return t, nil

		default:
			return Type{}, &unsupportedCompoundError{Tag: die.Tag}
		}

		next, ok := die.Val(dwarf.AttrType).(dwarf.Offset)
		if !ok {
			// e.g. "pointer to void": a pointer/modifier DIE with no
			// DW_AT_type terminates the chain implicitly.
			t.Nodes = append(t.Nodes, TypeNode{Tag: NodeUnspecified})
			return t, nil
		}
		cur = next
	}
}

// classifyBaseType maps a DW_TAG_base_type's name, DW_AT_encoding and
// DW_AT_byte_size to one of the 14 C base-type tags. The DWARF name is
// authoritative where it's one of the standard spellings GCC/Clang emit
// (it is the only way to distinguish "char" from "signed char", which share
// an encoding on x86-64); encoding+size is the fallback for unusual names.
func classifyBaseType(name string, encoding, size int64) BaseTag {
	switch name {
	case "char":
		return BaseChar
	case "signed char":
		return BaseSignedChar
	case "unsigned char":
		return BaseUnsignedChar
	case "short", "short int":
		return BaseShort
	case "unsigned short", "short unsigned int":
		return BaseUnsignedShort
	case "int":
		return BaseInt
	case "unsigned int", "unsigned":
		return BaseUnsignedInt
	case "long", "long int":
		return BaseLong
	case "unsigned long", "long unsigned int":
		return BaseUnsignedLong
	case "long long", "long long int":
		return BaseLongLong
	case "unsigned long long", "long long unsigned int":
		return BaseUnsignedLongLong
	case "float":
		return BaseFloat
	case "double":
		return BaseDouble
	case "long double":
		return BaseLongDouble
	}

	switch encoding {
	case dwAteFloat:
		switch size {
		case 4:
			return BaseFloat
		case 8:
			return BaseDouble
		default:
			return BaseLongDouble
		}
	case dwAteSignedChar:
		return BaseSignedChar
	case dwAteUnsignedChar:
		return BaseUnsignedChar
	case dwAteUnsigned, dwAteBoolean, dwAteAddress:
		switch size {
		case 2:
			return BaseUnsignedShort
		case 4:
			return BaseUnsignedInt
		default:
			return BaseUnsignedLong
		}
	default: // dwAteSigned and anything unrecognized
		switch size {
		case 2:
			return BaseShort
		case 4:
			return BaseInt
		default:
			return BaseLong
		}
	}
}
