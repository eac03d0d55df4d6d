// Package arm64 lowers the instruction graph to arm64 machine code.
// Lowering is two-phase: ComputeSummaries declares every instruction's
// operand constraints for the external register allocator, and Compile
// consumes the bound locations to emit code, out-of-line slow paths and
// deoptimization stubs, plus the metadata side tables.
package arm64

import (
	"fmt"
	"math"
	"strings"

	"github.com/driftvm/drift/internal/asm"
	a64 "github.com/driftvm/drift/internal/asm/arm64"
	"github.com/driftvm/drift/internal/backend"
	"github.com/driftvm/drift/internal/backend/regalloc"
	"github.com/driftvm/drift/internal/ir"
	"github.com/driftvm/drift/internal/rt"
)

// Machine lowers one compilation unit. It owns a private assembler,
// label namespace and metadata tables; units never share state, so
// independent Machines may run on parallel goroutines.
type Machine struct {
	fn    *ir.Function
	cfg   backend.CompileConfig
	stubs rt.StubResolver
	asm   *a64.Assembler

	summaries map[*ir.Instruction]*backend.LocationSummary

	blockLabels []a64.Label
	// nextBlock is the fall-through block during emission, consulted by
	// branch emission.
	nextBlock *ir.Block
	curBlock  *ir.Block

	deoptStubs []*deoptStub
	deoptIndex map[deoptKey]*deoptStub
	slowPaths  []slowPath

	meta backend.Metadata
}

type deoptKey struct {
	id     ir.DeoptID
	reason rt.DeoptReason
}

type deoptStub struct {
	id     ir.DeoptID
	reason rt.DeoptReason
	entry  a64.Label
}

// NewMachine returns a machine emitting into buf.
func NewMachine(fn *ir.Function, cfg backend.CompileConfig, stubs rt.StubResolver, buf asm.Buffer) *Machine {
	return &Machine{
		fn:         fn,
		cfg:        cfg,
		stubs:      stubs,
		asm:        a64.NewAssembler(buf),
		summaries:  map[*ir.Instruction]*backend.LocationSummary{},
		deoptIndex: map[deoptKey]*deoptStub{},
	}
}

// Assembler exposes the unit's assembler, mainly so callers can toggle
// listing capture.
func (m *Machine) Assembler() *a64.Assembler { return m.asm }

// ComputeSummaries builds the location summary of every instruction in
// the unit. The result feeds the external register allocator; emission
// may not start before every summary it reads is bound.
func (m *Machine) ComputeSummaries() {
	for _, b := range m.fn.Blocks() {
		for i := b.Root(); i != nil; i = i.Next() {
			m.summaries[i] = m.computeLocationSummary(i)
		}
	}
}

// SummaryFor returns i's summary. For a branch this is the summary of
// its fused comparison.
func (m *Machine) SummaryFor(i *ir.Instruction) *backend.LocationSummary {
	s, ok := m.summaries[i]
	if !ok {
		panic(fmt.Sprintf("BUG: no location summary for %s", i))
	}
	return s
}

// Compile emits the whole unit: main-line code in block layout order,
// then slow paths, then deopt stubs, then the label fix-up pass. The
// returned metadata references offsets in the unit's buffer.
//
// An instruction variant that cannot be lowered aborts the unit with an
// error; no partial code is ever handed back.
func (m *Machine) Compile() (*backend.Metadata, error) {
	blocks := m.fn.Blocks()
	m.blockLabels = make([]a64.Label, len(blocks))
	for i := range blocks {
		m.blockLabels[i] = m.asm.AllocateLabel()
	}

	for bi, b := range blocks {
		m.asm.Bind(m.blockLabels[bi])
		if try, ok := b.CatchEntry(); ok {
			m.meta.Handlers = append(m.meta.Handlers, backend.ExceptionHandler{
				TryIndex: try, HandlerStart: m.asm.Offset(),
			})
		}
		if b.IsOSREntry() {
			// Interpreted frames transfer in here once the runtime
			// grants a promotion request.
			m.recordDescriptor(backend.PCOsrEntry, ir.DeoptIDNone, ir.SourcePosNone)
		}
		m.curBlock = b
		m.nextBlock = nil
		if bi+1 < len(blocks) {
			m.nextBlock = blocks[bi+1]
		}
		for i := b.Root(); i != nil; i = i.Next() {
			if err := m.emitInstr(i); err != nil {
				return nil, fmt.Errorf("%s: %w", m.fn.Name, err)
			}
		}
	}

	for _, sp := range m.slowPaths {
		sp.EmitNativeCode(m)
	}
	m.emitDeoptStubs()
	m.asm.ResolveLabels()
	return &m.meta, nil
}

// Format returns the captured listing, one instruction per line. Only
// meaningful when listing capture was enabled before Compile.
func (m *Machine) Format() string {
	return strings.Join(m.asm.Listing(), "\n")
}

func (m *Machine) blockLabel(b *ir.Block) a64.Label {
	return m.blockLabels[b.ID()]
}

// deoptLabel registers (or reuses) the bailout stub for the given site
// and reason and returns its entry label.
func (m *Machine) deoptLabel(id ir.DeoptID, reason rt.DeoptReason) a64.Label {
	if !id.Valid() {
		panic(fmt.Sprintf("BUG: deopt guard requested without a deopt id (%s)", reason))
	}
	k := deoptKey{id: id, reason: reason}
	if s, ok := m.deoptIndex[k]; ok {
		return s.entry
	}
	s := &deoptStub{id: id, reason: reason, entry: m.asm.AllocateLabel()}
	m.deoptIndex[k] = s
	m.deoptStubs = append(m.deoptStubs, s)
	return s.entry
}

// emitDeoptStubs materializes the registered bailout stubs in order of
// first use. Each stub hands the (id, reason) pair to the runtime's
// deopt entry, which rebuilds the unoptimized frame and never returns
// here.
func (m *Machine) emitDeoptStubs() {
	for _, s := range m.deoptStubs {
		m.asm.Bind(s.entry)
		off := uint32(m.asm.LabelOffset(s.entry))
		m.meta.DeoptStubs = append(m.meta.DeoptStubs, backend.DeoptStubRecord{
			Offset: off, DeoptID: s.id, Reason: s.reason,
		})
		m.meta.PCDescriptors = append(m.meta.PCDescriptors, backend.PCDescriptor{
			Offset: off, Kind: backend.PCDeopt, DeoptID: s.id, Pos: ir.SourcePosNone,
		})
		m.asm.LoadImmediate(a64.TMP, int64(s.id)<<16|int64(s.reason))
		m.asm.Load(a64.TMP2, a64.THR, rt.ThreadDeoptEntryOffset.I64(), a64.MemX, regalloc.RealRegInvalid)
		m.asm.Br(a64.TMP2)
	}
}

// recordDescriptor attributes the current offset (the return address of
// a just-emitted call, typically) to a deopt environment.
func (m *Machine) recordDescriptor(kind backend.PCDescKind, deoptID ir.DeoptID, pos ir.SourcePos) {
	m.meta.PCDescriptors = append(m.meta.PCDescriptors, backend.PCDescriptor{
		Offset: m.asm.Offset(), Kind: kind, DeoptID: deoptID, Pos: pos,
	})
}

func (m *Machine) recordSafepoint(locs *backend.LocationSummary) {
	m.meta.Safepoints = append(m.meta.Safepoints, backend.SafepointRecord{
		Offset: m.asm.Offset(), Live: *locs.LiveRegisters(),
	})
}

// emitCallTo calls an embedded code entry. The entry address is
// materialized inline and recorded for relocation, so moving the callee
// only needs a constant patch, not re-lowering.
func (m *Machine) emitCallTo(entry uintptr, name string, kind backend.PCDescKind, deoptID ir.DeoptID, pos ir.SourcePos, locs *backend.LocationSummary) {
	m.meta.Relocations = append(m.meta.Relocations, backend.RelocationRecord{
		Offset: m.asm.Offset(), Target: entry, Name: name,
	})
	m.asm.LoadImmediate(a64.TMP, int64(entry))
	m.asm.Blr(a64.TMP)
	m.recordSafepoint(locs)
	m.recordDescriptor(kind, deoptID, pos)
}

// emitRuntimeCall calls a runtime entry through the thread state block.
func (m *Machine) emitRuntimeCall(e rt.RuntimeEntry, deoptID ir.DeoptID, pos ir.SourcePos, locs *backend.LocationSummary) {
	m.asm.Load(a64.TMP, a64.THR, rt.ThreadEntryOffset(e).I64(), a64.MemX, regalloc.RealRegInvalid)
	m.asm.Blr(a64.TMP)
	m.recordSafepoint(locs)
	m.recordDescriptor(backend.PCRuntimeCall, deoptID, pos)
}

// regOf returns the general or fpu register bound at l.
func regOf(l backend.Location) regalloc.RealReg {
	if l.IsFpuRegister() {
		return l.FpuReg()
	}
	return l.Reg()
}

// constantAt resolves a constant-bound location against the unit's
// constant table.
func (m *Machine) constantAt(l backend.Location) ir.Constant {
	return m.fn.ConstantAt(int64(l.ConstIdx()))
}

// materializeConstant loads c into rd, which may be a vector register
// for double constants.
func (m *Machine) materializeConstant(c ir.Constant, rd regalloc.RealReg) {
	switch c.Kind {
	case ir.ConstSmi:
		m.asm.LoadImmediate(rd, rt.TagSmi(c.I64))
	case ir.ConstNull:
		m.asm.LoadNull(rd)
	case ir.ConstTrue:
		m.asm.LoadBool(rd, true)
	case ir.ConstFalse:
		m.asm.LoadBool(rd, false)
	case ir.ConstObject:
		m.asm.LoadImmediate(rd, int64(c.Obj))
	case ir.ConstDouble:
		if !a64.IsFpu(rd) {
			panic("BUG: double constant into a general register")
		}
		m.asm.LoadImmediate(a64.TMP, int64(math.Float64bits(c.F64)))
		m.asm.FmovFromGeneral(rd, a64.TMP)
	default:
		panic("BUG: invalid constant kind")
	}
}
