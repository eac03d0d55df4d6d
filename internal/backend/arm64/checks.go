package arm64

import (
	a64 "github.com/driftvm/drift/internal/asm/arm64"
	"github.com/driftvm/drift/internal/backend/regalloc"
	"github.com/driftvm/drift/internal/ir"
	"github.com/driftvm/drift/internal/rt"
)

func (m *Machine) emitCheckSmi(i *ir.Instruction) {
	s := m.SummaryFor(i)
	m.asm.BranchIfNotSmi(s.In(0).Reg(), m.deoptLabel(i.DeoptID(), rt.DeoptCheckSmi))
}

func (m *Machine) emitCheckClass(i *ir.Instruction) {
	s := m.SummaryFor(i)
	value := s.In(0).Reg()
	reason := rt.DeoptCheckClass
	if i.Hoisted() {
		// A check licm moved ahead of the loop may fail before the
		// loop would have run it; the runtime reoptimizes differently
		// on that reason.
		reason = rt.DeoptHoistedCheckClass
	}
	deopt := m.deoptLabel(i.DeoptID(), reason)
	cids := i.Classes()

	// Smi never passes a class check; the id chain below only reads
	// heap headers.
	m.asm.BranchIfSmi(value, deopt)
	m.asm.LoadClassID(a64.TMP, value)
	ok := m.asm.AllocateLabel()
	for n, cid := range cids {
		m.asm.CompareImmediate(a64.TMP, int64(cid), a64.TMP2)
		if n == len(cids)-1 {
			m.asm.BCond(a64.NE, deopt)
		} else {
			m.asm.BCond(a64.EQ, ok)
		}
	}
	m.asm.Bind(ok)
}

func (m *Machine) emitCheckEitherNonSmi(i *ir.Instruction) {
	s := m.SummaryFor(i)
	// Both operands smi means the operation should have stayed on the
	// smi path; the ORed tag bits are zero exactly then.
	m.asm.Orr(a64.TMP, s.In(0).Reg(), s.In(1).Reg())
	m.asm.BranchIfSmi(a64.TMP, m.deoptLabel(i.DeoptID(), rt.DeoptBinaryDoubleOp))
}

func (m *Machine) emitCheckArrayBound(i *ir.Instruction) {
	s := m.SummaryFor(i)
	length, index := s.In(0), s.In(1)
	// The label registers a deopt stub, so it must only be requested on
	// the paths that actually branch to it.
	deopt := func() a64.Label { return m.deoptLabel(i.DeoptID(), rt.DeoptCheckArrayBound) }

	switch {
	case length.IsConstant() && index.IsConstant():
		iv := m.constantAt(index).I64
		lv := m.constantAt(length).I64
		if iv < 0 || iv >= lv {
			m.asm.B(deopt())
		}
	case index.IsConstant():
		iv := m.constantAt(index).I64
		m.asm.CompareImmediate(length.Reg(), rt.TagSmi(iv), a64.TMP)
		m.asm.BCond(a64.LS, deopt())
	case length.IsConstant():
		lv := m.constantAt(length).I64
		// Unsigned compare rejects negative indexes in the same branch.
		m.asm.CompareImmediate(index.Reg(), rt.TagSmi(lv), a64.TMP)
		m.asm.BCond(a64.CS, deopt())
	default:
		m.asm.Cmp(index.Reg(), length.Reg())
		m.asm.BCond(a64.CS, deopt())
	}
}

// emitCheckStackOverflow polls the stack limit published in the thread
// state block and escapes to a slow path past it. Inside loops of
// optimizable code the same poll doubles as the on-stack-replacement
// trigger.
func (m *Machine) emitCheckStackOverflow(i *ir.Instruction) {
	if m.cfg.DisableStackCheck {
		return
	}
	loopDepth := i.U1()
	if d := int64(m.curBlock.LoopDepth()); d > loopDepth {
		loopDepth = d
	}
	sp := &stackOverflowSlowPath{
		deoptID:   i.DeoptID(),
		pos:       i.Pos(),
		loopDepth: loopDepth,
		live:      *m.SummaryFor(i).LiveRegisters(),
		entry:     m.asm.AllocateLabel(),
		cont:      m.asm.AllocateLabel(),
	}
	m.slowPaths = append(m.slowPaths, sp)
	m.asm.Load(a64.TMP, a64.THR, rt.ThreadStackLimitOffset.I64(), a64.MemX, regalloc.RealRegInvalid)
	m.asm.CmpSP(a64.TMP)
	m.asm.BCond(a64.LS, sp.entry)
	m.asm.Bind(sp.cont)
}
