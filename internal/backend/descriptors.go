package backend

import (
	"github.com/driftvm/drift/internal/ir"
	"github.com/driftvm/drift/internal/rt"
)

// PCDescKind classifies a pc descriptor entry.
type PCDescKind byte

const (
	PCDeopt PCDescKind = iota
	PCIcCall
	PCStaticCall
	PCClosureCall
	PCRuntimeCall
	PCOsrEntry
	PCOther
)

// String implements fmt.Stringer.
func (k PCDescKind) String() string {
	switch k {
	case PCDeopt:
		return "deopt"
	case PCIcCall:
		return "ic_call"
	case PCStaticCall:
		return "static_call"
	case PCClosureCall:
		return "closure_call"
	case PCRuntimeCall:
		return "runtime_call"
	case PCOsrEntry:
		return "osr_entry"
	case PCOther:
		return "other"
	}
	panic("BUG: invalid pc descriptor kind")
}

// PCDescriptor attributes one code offset back to the graph: which
// deopt environment applies there and where it came from in the source.
type PCDescriptor struct {
	Offset  uint32
	Kind    PCDescKind
	DeoptID ir.DeoptID
	Pos     ir.SourcePos
}

// SafepointRecord marks a call return address together with the
// registers holding live tagged values there, for the GC.
type SafepointRecord struct {
	Offset uint32
	Live   RegisterSet
}

// RelocationRecord marks an embedded call target for patching when the
// callee moves.
type RelocationRecord struct {
	Offset uint32
	Target uintptr
	Name   string
}

// DeoptStubRecord describes one materialized deopt stub.
type DeoptStubRecord struct {
	// Offset of the stub entry within the code.
	Offset  uint32
	DeoptID ir.DeoptID
	Reason  rt.DeoptReason
}

// ExceptionHandler maps a try region to its handler entry.
type ExceptionHandler struct {
	TryIndex     int32
	HandlerStart uint32
}

// Metadata aggregates the side tables produced alongside the code.
type Metadata struct {
	PCDescriptors []PCDescriptor
	Safepoints    []SafepointRecord
	Relocations   []RelocationRecord
	DeoptStubs    []DeoptStubRecord
	Handlers      []ExceptionHandler
}

// CompileConfig carries the per-unit compilation switches.
type CompileConfig struct {
	// Optimizing selects the speculative tier: guards deoptimize
	// instead of updating descriptors inline.
	Optimizing bool
	// OSREnabled allows loop entries to transfer into this code.
	OSREnabled bool
	// OSRThreshold is the base loop counter threshold, scaled by loop
	// depth at each check site.
	OSRThreshold int64
	// UsageCounterAddr is the address of the unit's usage counter
	// cell, read at loop polls to decide whether to request promotion.
	// Zero disables the counter check.
	UsageCounterAddr uintptr
	// DisableStackCheck elides stack overflow polls. Leaf-only units
	// set this.
	DisableStackCheck bool
}
