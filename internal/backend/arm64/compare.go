package arm64

import (
	"fmt"

	a64 "github.com/driftvm/drift/internal/asm/arm64"
	"github.com/driftvm/drift/internal/backend"
	"github.com/driftvm/drift/internal/backend/regalloc"
	"github.com/driftvm/drift/internal/ir"
	"github.com/driftvm/drift/internal/rt"
)

func relationCond(rel ir.Relation) a64.Cond {
	switch rel {
	case ir.RelEq:
		return a64.EQ
	case ir.RelNe:
		return a64.NE
	case ir.RelLt:
		return a64.LT
	case ir.RelLe:
		return a64.LE
	case ir.RelGt:
		return a64.GT
	case ir.RelGe:
		return a64.GE
	}
	panic("BUG: invalid relation")
}

func isDoubleCompare(cmp *ir.Instruction) bool {
	switch cmp.Kind() {
	case ir.OpEqualityCompare, ir.OpRelationalOp:
		return cmp.Class() == rt.ClassDouble
	}
	return false
}

// emitCompareFlags emits the flag-setting half of a comparison and
// returns the condition that means the comparison holds. For double
// comparisons the caller still has to route the unordered (VS) case;
// NaN operands satisfy only != there.
func (m *Machine) emitCompareFlags(cmp *ir.Instruction, s *backend.LocationSummary) a64.Cond {
	switch cmp.Kind() {
	case ir.OpEqualityCompare, ir.OpRelationalOp:
		if cmp.Class() == rt.ClassDouble {
			m.asm.Fcmp(s.In(0).FpuReg(), s.In(1).FpuReg())
			return relationCond(cmp.Relation())
		}
		if left := s.In(0); left.IsConstant() {
			// x < 2 and 2 > x set the same flags, so a constant left
			// operand mirrors the relation instead of materializing.
			c := m.constantAt(left)
			if !c.IsSmi() {
				panic("BUG: non-smi constant in smi comparison")
			}
			m.asm.CompareImmediate(s.In(1).Reg(), rt.TagSmi(c.I64), a64.TMP)
			return relationCond(cmp.Relation().Flip())
		}
		left := s.In(0).Reg()
		if right := s.In(1); right.IsConstant() {
			c := m.constantAt(right)
			if !c.IsSmi() {
				panic("BUG: non-smi constant in smi comparison")
			}
			m.asm.CompareImmediate(left, rt.TagSmi(c.I64), a64.TMP)
		} else {
			m.asm.Cmp(left, right.Reg())
		}
		return relationCond(cmp.Relation())

	case ir.OpStrictCompare:
		left := s.In(0).Reg()
		if right := s.In(1); right.IsConstant() {
			m.emitCompareWithConstant(left, m.constantAt(right))
		} else {
			m.asm.Cmp(left, right.Reg())
		}
		return relationCond(cmp.Relation())

	case ir.OpTestSmi:
		left := s.In(0).Reg()
		if right := s.In(1); right.IsConstant() {
			c := m.constantAt(right)
			m.asm.TestImmediate(left, rt.TagSmi(c.I64), a64.TMP)
		} else {
			m.asm.Tst(left, right.Reg())
		}
		return relationCond(cmp.Relation())
	}
	panic(fmt.Sprintf("BUG: %s does not set flags", cmp))
}

// emitCompareWithConstant compares an identity against a constant
// without materializing it into an allocated register. Singletons come
// out of the thread state block, so the comparison is pointer equality
// there too.
func (m *Machine) emitCompareWithConstant(left regalloc.RealReg, c ir.Constant) {
	switch c.Kind {
	case ir.ConstSmi:
		m.asm.CompareImmediate(left, rt.TagSmi(c.I64), a64.TMP)
	case ir.ConstNull:
		m.asm.LoadNull(a64.TMP)
		m.asm.Cmp(left, a64.TMP)
	case ir.ConstTrue:
		m.asm.LoadBool(a64.TMP, true)
		m.asm.Cmp(left, a64.TMP)
	case ir.ConstFalse:
		m.asm.LoadBool(a64.TMP, false)
		m.asm.Cmp(left, a64.TMP)
	case ir.ConstObject:
		m.asm.LoadImmediate(a64.TMP, int64(c.Obj))
		m.asm.Cmp(left, a64.TMP)
	default:
		panic("BUG: invalid constant kind in comparison")
	}
}

// emitBranchOnCondition branches to t when the last comparison holds
// and to f otherwise, eliding whichever branch falls through to the
// next block in layout order.
func (m *Machine) emitBranchOnCondition(cond a64.Cond, t, f *ir.Block) {
	if t == m.nextBlock {
		m.asm.BCond(cond.Invert(), m.blockLabel(f))
		return
	}
	m.asm.BCond(cond, m.blockLabel(t))
	if f != m.nextBlock {
		m.asm.B(m.blockLabel(f))
	}
}

func (m *Machine) emitBranch(i *ir.Instruction) {
	cmp := i.Comparison()
	s := m.SummaryFor(i)
	t, f := i.TrueBlock(), i.FalseBlock()

	if cmp.Kind() == ir.OpTestClassIDs {
		m.emitTestCidsBranch(cmp, s, m.blockLabel(t), m.blockLabel(f))
		if f != m.nextBlock {
			m.asm.B(m.blockLabel(f))
		}
		return
	}

	cond := m.emitCompareFlags(cmp, s)
	if isDoubleCompare(cmp) {
		// NaN operands take the false edge, except that NaN != x holds.
		nan := f
		if cmp.Relation() == ir.RelNe {
			nan = t
		}
		m.asm.BCond(a64.VS, m.blockLabel(nan))
	}
	m.emitBranchOnCondition(cond, t, f)
}

// emitTestCidsBranch lowers the class-id chain of a test_cids against
// explicit true/false targets. The chain falls through to the deopt
// stub when the receiver's class is not listed, or to the false target
// when the test cannot deoptimize.
func (m *Machine) emitTestCidsBranch(cmp *ir.Instruction, s *backend.LocationSummary, ifTrue, ifFalse a64.Label) {
	value := s.In(0).Reg()
	results := cmp.CidResults()

	pick := func(res bool) a64.Label {
		if res {
			return ifTrue
		}
		return ifFalse
	}

	// Smis carry no header; their entry must be consulted before the
	// class id load.
	smiTarget := ifFalse
	if cmp.CanDeoptimize() {
		smiTarget = m.deoptLabel(cmp.DeoptID(), rt.DeoptTestClass)
	}
	for _, r := range results {
		if r.Cid == rt.ClassSmi {
			smiTarget = pick(r.Result)
			break
		}
	}
	m.asm.BranchIfSmi(value, smiTarget)

	m.asm.LoadClassID(a64.TMP, value)
	for _, r := range results {
		if r.Cid == rt.ClassSmi {
			continue
		}
		m.asm.CompareImmediate(a64.TMP, int64(r.Cid), a64.TMP2)
		m.asm.BCond(a64.EQ, pick(r.Result))
	}
	if cmp.CanDeoptimize() {
		m.asm.B(m.deoptLabel(cmp.DeoptID(), rt.DeoptTestClass))
	}
	// Otherwise fall through toward the false edge; the caller decides
	// whether an explicit jump is needed.
}

// emitComparisonValue materializes a comparison result as a boolean
// singleton.
func (m *Machine) emitComparisonValue(i *ir.Instruction) {
	s := m.SummaryFor(i)
	out := s.Out().Reg()

	if i.Kind() == ir.OpTestClassIDs {
		isTrue := m.asm.AllocateLabel()
		isFalse := m.asm.AllocateLabel()
		done := m.asm.AllocateLabel()
		m.emitTestCidsBranch(i, s, isTrue, isFalse)
		m.asm.Bind(isFalse)
		m.asm.LoadBool(out, false)
		m.asm.B(done)
		m.asm.Bind(isTrue)
		m.asm.LoadBool(out, true)
		m.asm.Bind(done)
		return
	}

	cond := m.emitCompareFlags(i, s)
	if isDoubleCompare(i) {
		nan := m.asm.AllocateLabel()
		done := m.asm.AllocateLabel()
		m.asm.BCond(a64.VS, nan)
		m.asm.LoadBool(a64.TMP, true)
		m.asm.LoadBool(a64.TMP2, false)
		m.asm.Csel(out, a64.TMP, a64.TMP2, cond)
		m.asm.B(done)
		m.asm.Bind(nan)
		m.asm.LoadBool(out, i.Relation() == ir.RelNe)
		m.asm.Bind(done)
		return
	}
	m.asm.LoadBool(a64.TMP, true)
	m.asm.LoadBool(a64.TMP2, false)
	m.asm.Csel(out, a64.TMP, a64.TMP2, cond)
}

// emitIfThenElse selects one of two smi constants without branching.
func (m *Machine) emitIfThenElse(i *ir.Instruction) error {
	cmp := i.Comparison()
	if isDoubleCompare(cmp) || cmp.Kind() == ir.OpTestClassIDs {
		return fmt.Errorf("if_then_else cannot fuse %s", cmp)
	}
	s := m.SummaryFor(i)
	out := s.Out().Reg()
	cond := m.emitCompareFlags(cmp, s)

	tv := rt.TagSmi(i.U1())
	fv := rt.TagSmi(i.U2())
	switch {
	case fv == 0 && tv > 0 && rt.IsPowerOfTwo(tv):
		m.asm.Cset(out, cond)
		if sh := rt.ShiftForPowerOfTwo(tv); sh > 0 {
			m.asm.LslImm(out, out, uint32(sh))
		}
	case tv == 0 && fv > 0 && rt.IsPowerOfTwo(fv):
		m.asm.Cset(out, cond.Invert())
		if sh := rt.ShiftForPowerOfTwo(fv); sh > 0 {
			m.asm.LslImm(out, out, uint32(sh))
		}
	default:
		m.asm.LoadImmediate(a64.TMP, tv)
		m.asm.LoadImmediate(a64.TMP2, fv)
		m.asm.Csel(out, a64.TMP, a64.TMP2, cond)
	}
	return nil
}
