// Package backend holds the target-independent half of the code
// generator: operand locations, per-instruction location summaries, and
// the metadata tables generated code is registered with.
package backend

import (
	"fmt"

	"github.com/driftvm/drift/internal/backend/regalloc"
)

// LocationKind discriminates Location payloads.
type LocationKind byte

const (
	LocInvalid LocationKind = iota
	// LocUnallocated is a constraint awaiting an allocator binding.
	LocUnallocated
	// LocConstant refers to the unit's constant table; no register is
	// consumed.
	LocConstant
	LocRegister
	LocFpuRegister
	LocStackSlot
	LocDoubleStackSlot
	LocPair
)

// Policy refines an unallocated constraint.
type Policy byte

const (
	// PolicyAny admits a register, stack slot or constant.
	PolicyAny Policy = iota
	PolicyPrefersRegister
	PolicyRequiresRegister
	PolicyRequiresFpuRegister
	// PolicyWritableRegister demands a register the emitter may
	// clobber without affecting other uses of the value.
	PolicyWritableRegister
	// PolicySameAsFirstInput ties the output register to input 0.
	PolicySameAsFirstInput
)

// Location is either a constraint handed to the register allocator or
// a concrete operand binding read back by the emitter.
type Location struct {
	kind   LocationKind
	policy Policy
	reg    regalloc.RealReg
	index  int32
	pair   *PairLocation
}

// PairLocation carries the two halves of a pair-producing definition.
type PairLocation struct {
	Lo, Hi Location
}

// Constraint constructors.

func Any() Location             { return Location{kind: LocUnallocated, policy: PolicyAny} }
func PrefersRegister() Location { return Location{kind: LocUnallocated, policy: PolicyPrefersRegister} }
func RequiresRegister() Location {
	return Location{kind: LocUnallocated, policy: PolicyRequiresRegister}
}
func RequiresFpuRegister() Location {
	return Location{kind: LocUnallocated, policy: PolicyRequiresFpuRegister}
}
func WritableRegister() Location {
	return Location{kind: LocUnallocated, policy: PolicyWritableRegister}
}
func SameAsFirstInput() Location {
	return Location{kind: LocUnallocated, policy: PolicySameAsFirstInput}
}

// Concrete constructors.

// RegisterLocation pins a general-purpose register.
func RegisterLocation(r regalloc.RealReg) Location {
	return Location{kind: LocRegister, reg: r}
}

// FpuRegisterLocation pins a vector register.
func FpuRegisterLocation(r regalloc.RealReg) Location {
	return Location{kind: LocFpuRegister, reg: r}
}

// ConstantLocation refers to constant table entry idx.
func ConstantLocation(idx int32) Location {
	return Location{kind: LocConstant, index: idx}
}

// StackSlot is a word-sized spill slot.
func StackSlot(idx int32) Location {
	return Location{kind: LocStackSlot, index: idx}
}

// DoubleStackSlot is an 8-byte fpu spill slot.
func DoubleStackSlot(idx int32) Location {
	return Location{kind: LocDoubleStackSlot, index: idx}
}

// PairLocationOf combines two locations. Unallocated halves are legal
// in a constraint; a binding must pair concrete locations.
func PairLocationOf(lo, hi Location) Location {
	return Location{kind: LocPair, pair: &PairLocation{Lo: lo, Hi: hi}}
}

// Accessors.

func (l Location) Kind() LocationKind { return l.kind }
func (l Location) Policy() Policy {
	if l.kind != LocUnallocated {
		panic("BUG: Policy on allocated location")
	}
	return l.policy
}

func (l Location) IsInvalid() bool     { return l.kind == LocInvalid }
func (l Location) IsUnallocated() bool { return l.kind == LocUnallocated }
func (l Location) IsConstant() bool    { return l.kind == LocConstant }
func (l Location) IsRegister() bool    { return l.kind == LocRegister }
func (l Location) IsFpuRegister() bool { return l.kind == LocFpuRegister }
func (l Location) IsStackSlot() bool {
	return l.kind == LocStackSlot || l.kind == LocDoubleStackSlot
}
func (l Location) IsPair() bool { return l.kind == LocPair }

// IsConcrete reports whether l is a materialized operand binding rather
// than a constraint still awaiting the allocator.
func (l Location) IsConcrete() bool {
	switch l.kind {
	case LocInvalid, LocUnallocated:
		return false
	case LocPair:
		return l.pair.Lo.IsConcrete() && l.pair.Hi.IsConcrete()
	}
	return true
}

// Reg returns the bound general-purpose register.
func (l Location) Reg() regalloc.RealReg {
	if l.kind != LocRegister {
		panic("BUG: Reg on non-register location")
	}
	return l.reg
}

// FpuReg returns the bound vector register.
func (l Location) FpuReg() regalloc.RealReg {
	if l.kind != LocFpuRegister {
		panic("BUG: FpuReg on non-fpu location")
	}
	return l.reg
}

// ConstIdx returns the constant table index.
func (l Location) ConstIdx() int32 {
	if l.kind != LocConstant {
		panic("BUG: ConstIdx on non-constant location")
	}
	return l.index
}

// StackIndex returns the spill slot index.
func (l Location) StackIndex() int32 {
	if !l.IsStackSlot() {
		panic("BUG: StackIndex on non-stack location")
	}
	return l.index
}

// Pair returns both halves of a pair location.
func (l Location) Pair() *PairLocation {
	if l.kind != LocPair {
		panic("BUG: Pair on non-pair location")
	}
	return l.pair
}

// Equals reports structural equality of two concrete locations.
func (l Location) Equals(o Location) bool {
	if l.kind != o.kind {
		return false
	}
	if l.kind == LocPair {
		return l.pair.Lo.Equals(o.pair.Lo) && l.pair.Hi.Equals(o.pair.Hi)
	}
	return l.policy == o.policy && l.reg == o.reg && l.index == o.index
}

// String implements fmt.Stringer.
func (l Location) String() string {
	switch l.kind {
	case LocInvalid:
		return "invalid"
	case LocUnallocated:
		switch l.policy {
		case PolicyAny:
			return "any"
		case PolicyPrefersRegister:
			return "prefers_reg"
		case PolicyRequiresRegister:
			return "requires_reg"
		case PolicyRequiresFpuRegister:
			return "requires_fpu"
		case PolicyWritableRegister:
			return "writable_reg"
		case PolicySameAsFirstInput:
			return "same_as_in0"
		}
	case LocConstant:
		return fmt.Sprintf("const#%d", l.index)
	case LocRegister:
		return l.reg.String()
	case LocFpuRegister:
		return fmt.Sprintf("f%d", l.reg)
	case LocStackSlot:
		return fmt.Sprintf("slot#%d", l.index)
	case LocDoubleStackSlot:
		return fmt.Sprintf("dslot#%d", l.index)
	case LocPair:
		return fmt.Sprintf("(%s, %s)", l.pair.Lo, l.pair.Hi)
	}
	panic("BUG: invalid location kind")
}

// RegisterSet is a set of physical registers, recorded in summaries as
// the live caller-saved registers at a slow-path call.
type RegisterSet struct {
	bits [4]uint64
}

// Add inserts r.
func (s *RegisterSet) Add(r regalloc.RealReg) {
	s.bits[r/64] |= 1 << (r % 64)
}

// Remove deletes r.
func (s *RegisterSet) Remove(r regalloc.RealReg) {
	s.bits[r/64] &^= 1 << (r % 64)
}

// Has reports membership of r.
func (s *RegisterSet) Has(r regalloc.RealReg) bool {
	return s.bits[r/64]&(1<<(r%64)) != 0
}

// IsEmpty reports whether the set is empty.
func (s *RegisterSet) IsEmpty() bool {
	return s.bits == [4]uint64{}
}

// Count returns the number of registers in the set.
func (s *RegisterSet) Count() int {
	n := 0
	s.Range(func(regalloc.RealReg) { n++ })
	return n
}

// Range calls f for each register in ascending order.
func (s *RegisterSet) Range(f func(regalloc.RealReg)) {
	for w := 0; w < len(s.bits); w++ {
		for b := 0; b < 64; b++ {
			if s.bits[w]&(1<<b) != 0 {
				f(regalloc.RealReg(w*64 + b))
			}
		}
	}
}
