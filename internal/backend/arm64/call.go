package arm64

import (
	a64 "github.com/driftvm/drift/internal/asm/arm64"
	"github.com/driftvm/drift/internal/backend"
	"github.com/driftvm/drift/internal/backend/regalloc"
	"github.com/driftvm/drift/internal/ir"
	"github.com/driftvm/drift/internal/rt"
)

// callDeoptID returns the id attributed to the return address of a
// call: the site's own id names the state before the call, re-entry
// after a lazy deopt uses the one past it.
func callDeoptID(i *ir.Instruction) ir.DeoptID {
	if i.DeoptID().Valid() {
		return i.DeoptID().After()
	}
	return ir.DeoptIDNone
}

func (m *Machine) emitPushArgument(i *ir.Instruction) {
	s := m.SummaryFor(i)
	if v := s.In(0); v.IsConstant() {
		m.materializeConstant(m.constantAt(v), a64.TMP)
		m.asm.Push(a64.TMP)
	} else {
		m.asm.Push(v.Reg())
	}
}

func (m *Machine) emitReturn(i *ir.Instruction) {
	// The value is pinned to the return register by the summary.
	m.asm.Ret()
}

func (m *Machine) emitStaticCall(i *ir.Instruction) {
	s := m.SummaryFor(i)
	t := i.Target()
	m.asm.LoadImmediate(argsDescReg, int64(t.ArgsDesc))
	m.emitCallTo(t.Entry, t.Name, backend.PCStaticCall, callDeoptID(i), i.Pos(), s)
}

func (m *Machine) emitInstanceCall(i *ir.Instruction) {
	s := m.SummaryFor(i)
	m.asm.LoadImmediate(icDataReg, int64(i.Addr()))
	m.emitCallTo(m.stubs.CallStub(), i.Name(), backend.PCIcCall, callDeoptID(i), i.Pos(), s)
}

// emitPolymorphicCall dispatches on the receiver's class through an
// inline chain of compare-and-call, ordered as given (callers sort by
// observed frequency). A receiver outside the chain deoptimizes, or
// falls back to the megamorphic stub once the chain is deemed complete
// enough not to.
func (m *Machine) emitPolymorphicCall(i *ir.Instruction) {
	s := m.SummaryFor(i)
	receiver := s.In(0).Reg()
	targets := i.CidTargets()
	done := m.asm.AllocateLabel()

	var miss a64.Label
	if i.CanDeoptimize() {
		miss = m.deoptLabel(i.DeoptID(), rt.DeoptPolymorphicCall)
	} else {
		miss = m.asm.AllocateLabel()
	}

	m.asm.LoadValueCid(a64.TMP, receiver)
	for n, t := range targets {
		last := n == len(targets)-1
		m.asm.CompareImmediate(a64.TMP, int64(t.Cid), a64.TMP2)
		if last {
			m.asm.BCond(a64.NE, miss)
			m.asm.LoadImmediate(argsDescReg, int64(t.Target.ArgsDesc))
			m.emitCallTo(t.Target.Entry, t.Target.Name, backend.PCStaticCall, callDeoptID(i), i.Pos(), s)
			break
		}
		next := m.asm.AllocateLabel()
		m.asm.BCond(a64.NE, next)
		m.asm.LoadImmediate(argsDescReg, int64(t.Target.ArgsDesc))
		m.emitCallTo(t.Target.Entry, t.Target.Name, backend.PCStaticCall, callDeoptID(i), i.Pos(), s)
		m.asm.B(done)
		m.asm.Bind(next)
	}
	if !i.CanDeoptimize() {
		m.asm.B(done)
		m.asm.Bind(miss)
		m.emitCallTo(m.stubs.MegamorphicStub(), i.Name(), backend.PCIcCall, callDeoptID(i), i.Pos(), s)
	}
	m.asm.Bind(done)
}

func (m *Machine) emitClosureCall(i *ir.Instruction) {
	s := m.SummaryFor(i)
	fn := s.In(0).Reg()
	m.asm.LoadImmediate(argsDescReg, int64(i.Addr()))
	m.asm.Load(a64.TMP, fn, rt.ClosureFunctionOffset.I64()-rt.HeapObjectTag, a64.MemX, regalloc.RealRegInvalid)
	m.asm.Load(a64.TMP, a64.TMP, rt.FunctionEntryPointOffset.I64()-rt.HeapObjectTag, a64.MemX, regalloc.RealRegInvalid)
	m.asm.Blr(a64.TMP)
	m.recordSafepoint(s)
	m.recordDescriptor(backend.PCClosureCall, callDeoptID(i), i.Pos())
}

func (m *Machine) emitNativeCall(i *ir.Instruction) {
	s := m.SummaryFor(i)
	// Trampoline convention: argument count in the descriptor register,
	// the native function itself in the cache register.
	m.asm.LoadImmediate(argsDescReg, int64(i.ArgCount()))
	m.asm.LoadImmediate(icDataReg, int64(i.Addr()))
	m.emitCallTo(m.stubs.NativeCallStub(i.Bootstrap()), i.Name(), backend.PCOther, ir.DeoptIDNone, i.Pos(), s)
}

func (m *Machine) emitAllocateObject(i *ir.Instruction) {
	s := m.SummaryFor(i)
	m.emitCallTo(m.stubs.AllocationStub(i.Class()), i.Class().String(), backend.PCOther, callDeoptID(i), i.Pos(), s)
}

func (m *Machine) emitCreateArray(i *ir.Instruction) {
	// Type arguments and length ride in their dedicated registers per
	// the array stub's convention; the summary pins them.
	s := m.SummaryFor(i)
	m.emitCallTo(m.stubs.ArrayAllocationStub(), "new_array", backend.PCOther, callDeoptID(i), i.Pos(), s)
}

func (m *Machine) emitAllocateContext(i *ir.Instruction) {
	s := m.SummaryFor(i)
	m.asm.LoadImmediate(arg0Reg, i.U1())
	m.emitRuntimeCall(rt.EntryAllocateContext, callDeoptID(i), i.Pos(), s)
}

func (m *Machine) emitCloneContext(i *ir.Instruction) {
	s := m.SummaryFor(i)
	// arg0 is pinned to the context by the summary; its variable count
	// rides along so the entry sizes the copy without re-reading.
	m.asm.Load(arg1Reg, arg0Reg, rt.ContextNumVarsOffset.I64()-rt.HeapObjectTag, a64.MemX, regalloc.RealRegInvalid)
	m.emitRuntimeCall(rt.EntryCloneContext, callDeoptID(i), i.Pos(), s)
}

func (m *Machine) emitInstantiateType(i *ir.Instruction) {
	s := m.SummaryFor(i)
	m.asm.LoadImmediate(arg0Reg, int64(i.Addr()))
	e := rt.EntryInstantiateType
	if i.Kind() == ir.OpInstantiateTypeArgs {
		e = rt.EntryInstantiateTypeArgs
	}
	m.emitRuntimeCall(e, callDeoptID(i), i.Pos(), s)
}

// emitInstanceOf asks the runtime to run the full type test. The entry
// takes the value, the instantiator type arguments and the type object
// and answers with the true or the false object.
func (m *Machine) emitInstanceOf(i *ir.Instruction) {
	s := m.SummaryFor(i)
	m.asm.LoadImmediate(arg2Reg, int64(i.Addr()))
	m.emitRuntimeCall(rt.EntryInstanceOf, callDeoptID(i), i.Pos(), s)
	if i.Negated() {
		// The entry answers the positive test; swap the booleans.
		m.asm.Load(a64.TMP, a64.THR, rt.ThreadTrueOffset.I64(), a64.MemX, regalloc.RealRegInvalid)
		m.asm.Load(a64.TMP2, a64.THR, rt.ThreadFalseOffset.I64(), a64.MemX, regalloc.RealRegInvalid)
		m.asm.Cmp(returnReg, a64.TMP)
		m.asm.Csel(returnReg, a64.TMP2, a64.TMP, a64.EQ)
	}
}

// emitAssertBoolean lets true and false through and reports anything
// else to the runtime as a type error.
func (m *Machine) emitAssertBoolean(i *ir.Instruction) {
	s := m.SummaryFor(i)
	done := m.asm.AllocateLabel()
	m.asm.Load(a64.TMP, a64.THR, rt.ThreadTrueOffset.I64(), a64.MemX, regalloc.RealRegInvalid)
	m.asm.Cmp(arg0Reg, a64.TMP)
	m.asm.BCond(a64.EQ, done)
	m.asm.Load(a64.TMP, a64.THR, rt.ThreadFalseOffset.I64(), a64.MemX, regalloc.RealRegInvalid)
	m.asm.Cmp(arg0Reg, a64.TMP)
	m.asm.BCond(a64.EQ, done)
	m.emitRuntimeCall(rt.EntryNonBoolTypeError, callDeoptID(i), i.Pos(), s)
	m.asm.Bind(done)
}

func (m *Machine) emitThrow(i *ir.Instruction) {
	s := m.SummaryFor(i)
	m.asm.Pop(arg0Reg)
	m.emitRuntimeCall(rt.EntryThrow, callDeoptID(i), i.Pos(), s)
	// The runtime unwinds; anything past here is unreachable.
	m.asm.Brk(0)
}

func (m *Machine) emitReThrow(i *ir.Instruction) {
	s := m.SummaryFor(i)
	m.asm.Pop(arg1Reg) // stack trace
	m.asm.Pop(arg0Reg) // exception
	m.emitRuntimeCall(rt.EntryReThrow, callDeoptID(i), i.Pos(), s)
	m.asm.Brk(0)
}
