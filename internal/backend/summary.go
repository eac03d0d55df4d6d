package backend

import "fmt"

// ContainsCall classifies how an instruction interacts with the
// register allocator's notion of calls.
type ContainsCall byte

const (
	// CallNone never leaves the generated code.
	CallNone ContainsCall = iota
	// CallOnSlowPath calls out only on its slow path; registers live
	// across it are saved there, not at the allocation level.
	CallOnSlowPath
	// CallFull is an unconditional call: allocatable registers are
	// clobbered and inputs/outputs use fixed calling-convention
	// locations.
	CallFull
)

// String implements fmt.Stringer.
func (c ContainsCall) String() string {
	switch c {
	case CallNone:
		return "no_call"
	case CallOnSlowPath:
		return "call_on_slow_path"
	case CallFull:
		return "call"
	}
	panic("BUG: invalid ContainsCall")
}

type summarySlot struct {
	constraint Location
	bound      Location
	isBound    bool
}

// LocationSummary carries the operand constraints of one instruction to
// the register allocator, and the allocator's bindings back to the
// emitter. Constraints are written during summary construction;
// bindings exactly once per slot; the emitter reads only bindings.
type LocationSummary struct {
	ins   []summarySlot
	temps []summarySlot
	out   summarySlot

	call ContainsCall

	// live is the set of caller-saved registers holding live values at
	// this instruction, filled in by the allocator for slow-path
	// saving.
	live RegisterSet
}

// NewLocationSummary returns a summary with numIn input slots and
// numTemp scratch slots.
func NewLocationSummary(numIn, numTemp int, call ContainsCall) *LocationSummary {
	return &LocationSummary{
		ins:   make([]summarySlot, numIn),
		temps: make([]summarySlot, numTemp),
		call:  call,
	}
}

// ContainsCall returns the call classification.
func (s *LocationSummary) ContainsCall() ContainsCall { return s.call }

// NumInputs returns the number of input slots.
func (s *LocationSummary) NumInputs() int { return len(s.ins) }

// NumTemps returns the number of scratch slots.
func (s *LocationSummary) NumTemps() int { return len(s.temps) }

// setSlot installs a constraint. Concrete constraints (fixed registers,
// constants) double as their own binding.
func setSlot(sl *summarySlot, c Location) {
	sl.constraint = c
	if c.IsConcrete() {
		sl.bound, sl.isBound = c, true
	}
}

// SetIn installs the constraint for input i.
func (s *LocationSummary) SetIn(i int, c Location) { setSlot(&s.ins[i], c) }

// SetTemp installs the constraint for temp i.
func (s *LocationSummary) SetTemp(i int, c Location) { setSlot(&s.temps[i], c) }

// SetOut installs the output constraint.
func (s *LocationSummary) SetOut(c Location) { setSlot(&s.out, c) }

// InConstraint returns the constraint of input i, for the allocator.
func (s *LocationSummary) InConstraint(i int) Location { return s.ins[i].constraint }

// TempConstraint returns the constraint of temp i.
func (s *LocationSummary) TempConstraint(i int) Location { return s.temps[i].constraint }

// OutConstraint returns the output constraint.
func (s *LocationSummary) OutConstraint() Location { return s.out.constraint }

func assign(sl *summarySlot, l Location, what string) {
	if sl.isBound {
		panic(fmt.Sprintf("BUG: %s bound twice", what))
	}
	if !l.IsConcrete() {
		panic(fmt.Sprintf("BUG: binding %s to non-concrete location %s", what, l))
	}
	switch sl.constraint.Kind() {
	case LocUnallocated:
		switch sl.constraint.Policy() {
		case PolicyRequiresRegister, PolicyWritableRegister:
			if !l.IsRegister() {
				panic(fmt.Sprintf("BUG: %s requires a register, got %s", what, l))
			}
		case PolicyRequiresFpuRegister:
			if !l.IsFpuRegister() {
				panic(fmt.Sprintf("BUG: %s requires an fpu register, got %s", what, l))
			}
		}
	case LocPair:
		if !l.IsPair() {
			panic(fmt.Sprintf("BUG: %s requires a pair, got %s", what, l))
		}
	case LocInvalid:
		panic(fmt.Sprintf("BUG: binding %s with no constraint", what))
	default:
		panic(fmt.Sprintf("BUG: %s was concrete, cannot rebind", what))
	}
	sl.bound, sl.isBound = l, true
}

// AssignIn binds input i. The binding must satisfy the constraint.
func (s *LocationSummary) AssignIn(i int, l Location) { assign(&s.ins[i], l, fmt.Sprintf("in(%d)", i)) }

// AssignTemp binds temp i.
func (s *LocationSummary) AssignTemp(i int, l Location) {
	assign(&s.temps[i], l, fmt.Sprintf("temp(%d)", i))
}

// AssignOut binds the output.
func (s *LocationSummary) AssignOut(l Location) { assign(&s.out, l, "out") }

func bound(sl *summarySlot, what string) Location {
	if !sl.isBound {
		panic(fmt.Sprintf("BUG: reading unbound %s", what))
	}
	return sl.bound
}

// In returns the binding of input i. Panics when unbound.
func (s *LocationSummary) In(i int) Location { return bound(&s.ins[i], fmt.Sprintf("in(%d)", i)) }

// Temp returns the binding of temp i.
func (s *LocationSummary) Temp(i int) Location { return bound(&s.temps[i], fmt.Sprintf("temp(%d)", i)) }

// Out returns the output binding.
func (s *LocationSummary) Out() Location { return bound(&s.out, "out") }

// HasOut reports whether an output slot exists at all.
func (s *LocationSummary) HasOut() bool { return !s.out.constraint.IsInvalid() }

// LiveRegisters returns the mutable live caller-saved register set.
func (s *LocationSummary) LiveRegisters() *RegisterSet { return &s.live }
