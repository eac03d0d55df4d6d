package ir

import "fmt"

// Value identifies a definition in the instruction graph.
type Value uint32

// ValueInvalid is an invalid Value.
const ValueInvalid Value = 0xffffffff

// Valid reports whether v is valid.
func (v Value) Valid() bool { return v != ValueInvalid }

// String implements fmt.Stringer.
func (v Value) String() string {
	if !v.Valid() {
		return "v?"
	}
	return fmt.Sprintf("v%d", uint32(v))
}

// Representation says how a value is materialized in registers.
type Representation byte

const (
	// RepTagged is a smi or heap pointer in a general register.
	RepTagged Representation = iota
	RepUnboxedDouble
	RepUnboxedFloat32x4
	RepUnboxedFloat64x2
	RepUnboxedInt32x4
)

// IsFloat reports whether the representation lives in a vector
// register.
func (r Representation) IsFloat() bool { return r != RepTagged }

// String implements fmt.Stringer.
func (r Representation) String() string {
	switch r {
	case RepTagged:
		return "tagged"
	case RepUnboxedDouble:
		return "double"
	case RepUnboxedFloat32x4:
		return "float32x4"
	case RepUnboxedFloat64x2:
		return "float64x2"
	case RepUnboxedInt32x4:
		return "int32x4"
	}
	panic("BUG: invalid representation")
}

// ConstKind discriminates Constant payloads.
type ConstKind byte

const (
	ConstSmi ConstKind = iota
	ConstDouble
	ConstNull
	ConstTrue
	ConstFalse
	// ConstObject is a reference to an arbitrary heap object pinned by
	// the caller for the lifetime of the code.
	ConstObject
)

// Constant is a compile-time constant bound to a Value by a constant
// instruction.
type Constant struct {
	Kind ConstKind
	I64  int64
	F64  float64
	Obj  uintptr
}

// IsSmi reports whether the constant is a smi.
func (c Constant) IsSmi() bool { return c.Kind == ConstSmi }

// String implements fmt.Stringer.
func (c Constant) String() string {
	switch c.Kind {
	case ConstSmi:
		return fmt.Sprintf("#%d", c.I64)
	case ConstDouble:
		return fmt.Sprintf("#%g", c.F64)
	case ConstNull:
		return "null"
	case ConstTrue:
		return "true"
	case ConstFalse:
		return "false"
	case ConstObject:
		return fmt.Sprintf("obj@%#x", c.Obj)
	}
	panic("BUG: invalid constant kind")
}

// DeoptID ties a guard site to its deoptimization metadata.
type DeoptID int32

// DeoptIDNone marks instructions that cannot deoptimize.
const DeoptIDNone DeoptID = -1

// Valid reports whether the id refers to a real deopt site.
func (d DeoptID) Valid() bool { return d >= 0 }

// After returns the id of the environment after the instruction, used
// by calls that may lazily deoptimize on return.
func (d DeoptID) After() DeoptID { return d + 1 }

// SourcePos is a source position token recorded in pc descriptors.
type SourcePos int32

// SourcePosNone marks synthetic code with no source attribution.
const SourcePosNone SourcePos = -1
