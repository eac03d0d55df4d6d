// Package regalloc defines the register model shared by the backend
// and the external register allocator. The allocator itself is not
// part of this module: it consumes location summaries and writes
// bindings back through the backend's assignment API.
package regalloc

import (
	"fmt"

	"github.com/driftvm/drift/internal/ir"
)

// RealReg represents a physical register.
type RealReg byte

const RealRegInvalid RealReg = 0

// String implements fmt.Stringer.
func (r RealReg) String() string {
	switch r {
	case RealRegInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("r%d", r)
	}
}

// RegType represents the type of a register.
type RegType byte

const (
	RegTypeInvalid RegType = iota
	RegTypeInt
	RegTypeFloat
	NumRegType
)

// String implements fmt.Stringer.
func (r RegType) String() string {
	switch r {
	case RegTypeInt:
		return "int"
	case RegTypeFloat:
		return "float"
	default:
		return "invalid"
	}
}

// RegTypeOf returns the RegType for values of the given representation.
func RegTypeOf(rep ir.Representation) RegType {
	if rep.IsFloat() {
		return RegTypeFloat
	}
	return RegTypeInt
}
