package arm64

import (
	a64 "github.com/driftvm/drift/internal/asm/arm64"
	"github.com/driftvm/drift/internal/backend"
	"github.com/driftvm/drift/internal/backend/regalloc"
	"github.com/driftvm/drift/internal/ir"
	"github.com/driftvm/drift/internal/rt"
)

// slowPath is out-of-line code jumped to from the main line, emitted
// after the last block so the hot path stays straight.
type slowPath interface {
	EmitNativeCode(m *Machine)
}

// saveLive pushes the live registers around a slow-path call and
// returns them in push order. Registers the slow path itself defines
// are excluded by the caller.
func (m *Machine) saveLive(live backend.RegisterSet) []regalloc.RealReg {
	var regs []regalloc.RealReg
	live.Range(func(r regalloc.RealReg) {
		regs = append(regs, r)
	})
	for _, r := range regs {
		m.asm.Push(r)
	}
	return regs
}

func (m *Machine) restoreLive(regs []regalloc.RealReg) {
	for n := len(regs) - 1; n >= 0; n-- {
		m.asm.Pop(regs[n])
	}
}

func (m *Machine) recordSlowPathSafepoint(live backend.RegisterSet) {
	m.meta.Safepoints = append(m.meta.Safepoints, backend.SafepointRecord{
		Offset: m.asm.Offset(), Live: live,
	})
}

// boxAllocateSlowPath allocates a numeric box through the allocation
// stub when the inline bump allocation misses.
type boxAllocateSlowPath struct {
	cls   rt.ClassID
	out   regalloc.RealReg
	live  backend.RegisterSet
	entry a64.Label
	cont  a64.Label
}

func (sp *boxAllocateSlowPath) EmitNativeCode(m *Machine) {
	m.asm.Bind(sp.entry)
	live := sp.live
	live.Remove(sp.out)
	saved := m.saveLive(live)
	m.meta.Relocations = append(m.meta.Relocations, backend.RelocationRecord{
		Offset: m.asm.Offset(), Target: m.stubs.AllocationStub(sp.cls), Name: sp.cls.String(),
	})
	m.asm.LoadImmediate(a64.TMP, int64(m.stubs.AllocationStub(sp.cls)))
	m.asm.Blr(a64.TMP)
	m.recordSlowPathSafepoint(live)
	m.recordDescriptor(backend.PCOther, ir.DeoptIDNone, ir.SourcePosNone)
	if sp.out != returnReg {
		m.asm.MovReg(sp.out, returnReg)
	}
	m.restoreLive(saved)
	m.asm.B(sp.cont)
}

// stackOverflowSlowPath calls the stack-overflow runtime entry. With
// on-stack replacement enabled the same entry doubles as the hot-loop
// promotion trigger, so the return address gets an OSR descriptor.
type stackOverflowSlowPath struct {
	deoptID   ir.DeoptID
	pos       ir.SourcePos
	loopDepth int64
	live      backend.RegisterSet
	entry     a64.Label
	cont      a64.Label
}

func (sp *stackOverflowSlowPath) EmitNativeCode(m *Machine) {
	m.asm.Bind(sp.entry)
	saved := m.saveLive(sp.live)
	osr := m.cfg.OSREnabled && sp.loopDepth > 0 && !m.cfg.Optimizing &&
		m.cfg.OSRThreshold > 0 && m.cfg.UsageCounterAddr != 0
	if osr {
		// Request promotion only once the unit got hot. The bar rises
		// with nesting depth since inner polls run more often.
		m.asm.LoadImmediate(a64.TMP, int64(m.cfg.UsageCounterAddr))
		m.asm.Load(a64.TMP, a64.TMP, 0, a64.MemX, regalloc.RealRegInvalid)
		m.asm.CompareImmediate(a64.TMP, m.cfg.OSRThreshold*sp.loopDepth, a64.TMP2)
		m.asm.Cset(arg0Reg, a64.GE)
	} else {
		m.asm.LoadImmediate(arg0Reg, 0)
	}
	m.asm.Load(a64.TMP, a64.THR, rt.ThreadEntryOffset(rt.EntryStackOverflow).I64(), a64.MemX, regalloc.RealRegInvalid)
	m.asm.Blr(a64.TMP)
	m.recordSlowPathSafepoint(sp.live)
	m.recordDescriptor(backend.PCRuntimeCall, sp.deoptID, sp.pos)
	if osr {
		m.recordDescriptor(backend.PCOsrEntry, sp.deoptID, sp.pos)
	}
	m.restoreLive(saved)
	m.asm.B(sp.cont)
}

// guardFieldSlowPath lets the runtime fold the observed store into the
// field descriptor's guard state.
type guardFieldSlowPath struct {
	field   *rt.FieldDesc
	value   regalloc.RealReg
	deoptID ir.DeoptID
	pos     ir.SourcePos
	live    backend.RegisterSet
	entry   a64.Label
	cont    a64.Label
}

func (sp *guardFieldSlowPath) EmitNativeCode(m *Machine) {
	m.asm.Bind(sp.entry)
	saved := m.saveLive(sp.live)
	if sp.value != arg1Reg {
		m.asm.MovReg(arg1Reg, sp.value)
	}
	m.asm.LoadImmediate(arg0Reg, int64(sp.field.DescAddr))
	m.asm.Load(a64.TMP, a64.THR, rt.ThreadEntryOffset(rt.EntryUpdateFieldGuard).I64(), a64.MemX, regalloc.RealRegInvalid)
	m.asm.Blr(a64.TMP)
	m.recordSlowPathSafepoint(sp.live)
	m.recordDescriptor(backend.PCRuntimeCall, sp.deoptID, sp.pos)
	m.restoreLive(saved)
	m.asm.B(sp.cont)
}
