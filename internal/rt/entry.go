package rt

// RuntimeEntry identifies a C runtime function callable from generated
// code. The set is closed; the native address of each entry is
// published in the thread state block (see ThreadEntryOffset).
type RuntimeEntry uint8

const (
	EntryThrow RuntimeEntry = iota
	EntryReThrow
	EntryNonBoolTypeError
	EntryStackOverflow
	EntryUpdateFieldGuard
	EntryInstantiateType
	EntryInstantiateTypeArgs
	EntryAllocateContext
	EntryCloneContext
	EntryDoubleToInteger
	EntryInstanceOf

	NumRuntimeEntries
)

// ArgCount returns the number of arguments the entry pops from the
// native argument area.
func (e RuntimeEntry) ArgCount() int {
	switch e {
	case EntryThrow, EntryDoubleToInteger:
		return 1
	case EntryReThrow, EntryUpdateFieldGuard, EntryInstantiateType,
		EntryInstantiateTypeArgs, EntryCloneContext:
		return 2
	case EntryInstanceOf:
		return 3
	case EntryNonBoolTypeError:
		return 1
	case EntryStackOverflow, EntryAllocateContext:
		return 1
	}
	panic("BUG: unknown runtime entry")
}

// Returns reports whether the entry comes back to the call site. Throw
// and re-throw unwind instead.
func (e RuntimeEntry) Returns() bool {
	return e != EntryThrow && e != EntryReThrow
}

// String implements fmt.Stringer.
func (e RuntimeEntry) String() string {
	switch e {
	case EntryThrow:
		return "throw"
	case EntryReThrow:
		return "re_throw"
	case EntryNonBoolTypeError:
		return "non_bool_type_error"
	case EntryStackOverflow:
		return "stack_overflow"
	case EntryUpdateFieldGuard:
		return "update_field_guard"
	case EntryInstantiateType:
		return "instantiate_type"
	case EntryInstantiateTypeArgs:
		return "instantiate_type_args"
	case EntryAllocateContext:
		return "allocate_context"
	case EntryCloneContext:
		return "clone_context"
	case EntryDoubleToInteger:
		return "double_to_integer"
	case EntryInstanceOf:
		return "instance_of"
	}
	panic("BUG: unknown runtime entry")
}

// StubResolver resolves shared code stubs to their native entry points.
// Stub addresses are stable for the lifetime of the generated code, so
// calls embed them directly.
type StubResolver interface {
	// AllocationStub returns the allocation stub entry for cid.
	AllocationStub(cid ClassID) uintptr
	// ArrayAllocationStub returns the entry of the array allocation
	// stub, which takes length and type arguments in registers.
	ArrayAllocationStub() uintptr
	// CallStub returns the shared instance-call (IC lookup) stub.
	CallStub() uintptr
	// MegamorphicStub returns the megamorphic lookup stub.
	MegamorphicStub() uintptr
	// NativeCallStub returns the trampoline for native (C) functions,
	// wrapping or not depending on the bootstrap flag.
	NativeCallStub(bootstrap bool) uintptr
}
