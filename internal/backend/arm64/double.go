package arm64

import (
	"fmt"

	a64 "github.com/driftvm/drift/internal/asm/arm64"
	"github.com/driftvm/drift/internal/backend/regalloc"
	"github.com/driftvm/drift/internal/ir"
	"github.com/driftvm/drift/internal/rt"
)

const quietNaNBits = int64(0x7ff8000000000000)

func boxPayloadOffset(cls rt.ClassID) (int64, a64.MemKind, error) {
	switch cls {
	case rt.ClassDouble:
		return rt.DoubleValueOffset.I64(), a64.MemD, nil
	case rt.ClassFloat32x4:
		return rt.Float32x4ValueOffset.I64(), a64.MemQ, nil
	case rt.ClassFloat64x2:
		return rt.Float64x2ValueOffset.I64(), a64.MemQ, nil
	}
	return 0, 0, fmt.Errorf("%s is not a box class", cls)
}

// emitBox moves an unboxed value into a fresh heap box. Allocation
// happens inline against the bump pointer; the slow path calls the
// allocation stub with the live registers saved around it.
func (m *Machine) emitBox(i *ir.Instruction) error {
	s := m.SummaryFor(i)
	value := s.In(0).FpuReg()
	out := s.Out().Reg()
	cls := i.Class()
	off, kind, err := boxPayloadOffset(cls)
	if err != nil {
		return err
	}

	sp := &boxAllocateSlowPath{
		cls:   cls,
		out:   out,
		live:  *s.LiveRegisters(),
		entry: m.asm.AllocateLabel(),
		cont:  m.asm.AllocateLabel(),
	}
	m.slowPaths = append(m.slowPaths, sp)

	m.asm.TryAllocate(cls, rt.BoxSizeFor(cls), sp.entry, out, a64.TMP, a64.TMP2)
	m.asm.Bind(sp.cont)
	m.asm.Store(value, out, off-rt.HeapObjectTag, kind, regalloc.RealRegInvalid)
	return nil
}

func (m *Machine) emitUnbox(i *ir.Instruction) error {
	s := m.SummaryFor(i)
	value := s.In(0).Reg()
	out := s.Out().FpuReg()
	cls := i.Class()
	off, kind, err := boxPayloadOffset(cls)
	if err != nil {
		return err
	}

	switch input := i.InputClass(); {
	case input == cls:
		m.asm.Load(out, value, off-rt.HeapObjectTag, kind, regalloc.RealRegInvalid)
	case cls == rt.ClassDouble && input == rt.ClassSmi:
		m.asm.SmiUntag(a64.TMP, value)
		m.asm.Scvtf(out, a64.TMP)
	case i.CanDeoptimize():
		deopt := m.deoptLabel(i.DeoptID(), rt.DeoptUnbox)
		if cls == rt.ClassDouble {
			// Smi input converts in place of deoptimizing.
			smi := m.asm.AllocateLabel()
			done := m.asm.AllocateLabel()
			m.asm.BranchIfSmi(value, smi)
			m.asm.CompareClassID(value, cls, a64.TMP)
			m.asm.BCond(a64.NE, deopt)
			m.asm.Load(out, value, off-rt.HeapObjectTag, kind, regalloc.RealRegInvalid)
			m.asm.B(done)
			m.asm.Bind(smi)
			m.asm.SmiUntag(a64.TMP, value)
			m.asm.Scvtf(out, a64.TMP)
			m.asm.Bind(done)
		} else {
			m.asm.BranchIfSmi(value, deopt)
			m.asm.CompareClassID(value, cls, a64.TMP)
			m.asm.BCond(a64.NE, deopt)
			m.asm.Load(out, value, off-rt.HeapObjectTag, kind, regalloc.RealRegInvalid)
		}
	default:
		return fmt.Errorf("unbox of %s from unproven %s input cannot deoptimize", cls, i.InputClass())
	}
	return nil
}

func (m *Machine) emitBinaryDoubleOp(i *ir.Instruction) error {
	s := m.SummaryFor(i)
	left, right := s.In(0).FpuReg(), s.In(1).FpuReg()
	out := s.Out().FpuReg()
	switch i.Op() {
	case ir.OpAdd:
		m.asm.Fadd(out, left, right)
	case ir.OpSub:
		m.asm.Fsub(out, left, right)
	case ir.OpMul:
		m.asm.Fmul(out, left, right)
	case ir.OpDiv:
		m.asm.Fdiv(out, left, right)
	default:
		return fmt.Errorf("binary double op %s is not lowerable", i.Op())
	}
	return nil
}

func (m *Machine) emitUnaryDoubleOp(i *ir.Instruction) {
	s := m.SummaryFor(i)
	if i.Op() != ir.OpNeg {
		panic(fmt.Sprintf("BUG: unary double op %s", i.Op()))
	}
	m.asm.Fneg(s.Out().FpuReg(), s.In(0).FpuReg())
}

func (m *Machine) emitMathUnary(i *ir.Instruction) error {
	s := m.SummaryFor(i)
	value, out := s.In(0).FpuReg(), s.Out().FpuReg()
	switch i.Op() {
	case ir.OpSqrt:
		m.asm.Fsqrt(out, value)
	case ir.OpMul:
		m.asm.Fmul(out, value, value)
	default:
		return fmt.Errorf("math unary %s is not lowerable", i.Op())
	}
	return nil
}

// emitDoubleToInteger hands the conversion to the runtime, which
// allocates whatever integer the value needs. The deoptimizing
// truncation handles only the smi range.
func (m *Machine) emitDoubleToInteger(i *ir.Instruction) {
	s := m.SummaryFor(i)
	m.emitRuntimeCall(rt.EntryDoubleToInteger, callDeoptID(i), i.Pos(), s)
}

func (m *Machine) emitSmiToDouble(i *ir.Instruction) {
	s := m.SummaryFor(i)
	m.asm.SmiUntag(a64.TMP, s.In(0).Reg())
	m.asm.Scvtf(s.Out().FpuReg(), a64.TMP)
}

// emitDoubleToSmi truncates toward zero. NaN input deoptimizes, and so
// does any value whose truncation leaves the smi range; re-tagging with
// the overflow check catches the saturated conversions in that second
// guard.
func (m *Machine) emitDoubleToSmi(i *ir.Instruction) {
	s := m.SummaryFor(i)
	value := s.In(0).FpuReg()
	out := s.Out().Reg()
	deopt := m.deoptLabel(i.DeoptID(), rt.DeoptDoubleToSmi)

	m.asm.Fcmp(value, value)
	m.asm.BCond(a64.VS, deopt)
	m.asm.Fcvtzs(a64.TMP, value)
	m.asm.Adds(out, a64.TMP, a64.TMP)
	m.asm.BCond(a64.VS, deopt)
}

func (m *Machine) emitDoubleToFloat(i *ir.Instruction) {
	s := m.SummaryFor(i)
	m.asm.FcvtDtoS(s.Out().FpuReg(), s.In(0).FpuReg())
}

func (m *Machine) emitFloatToDouble(i *ir.Instruction) {
	s := m.SummaryFor(i)
	m.asm.FcvtStoD(s.Out().FpuReg(), s.In(0).FpuReg())
}

func (m *Machine) emitMathMinMax(i *ir.Instruction) {
	s := m.SummaryFor(i)
	isMin := i.Op() == ir.OpMin

	if i.Class() != rt.ClassDouble {
		out := s.Out().Reg()
		right := s.In(1).Reg()
		cond := a64.GT
		if isMin {
			cond = a64.LT
		}
		m.asm.Cmp(out, right)
		m.asm.Csel(out, out, right, cond)
		return
	}

	// Doubles need three extra cases the integer version does not have:
	// a NaN operand poisons the result, +-0.0 compare equal but differ,
	// and the losing operand must not be returned.
	out := s.Out().FpuReg()
	right := s.In(1).FpuReg()
	nan := m.asm.AllocateLabel()
	equal := m.asm.AllocateLabel()
	pickRight := m.asm.AllocateLabel()
	done := m.asm.AllocateLabel()

	m.asm.Fcmp(out, right)
	m.asm.BCond(a64.VS, nan)
	m.asm.BCond(a64.EQ, equal)
	if isMin {
		m.asm.BCond(a64.GT, pickRight)
	} else {
		m.asm.BCond(a64.LT, pickRight)
	}
	m.asm.B(done)

	m.asm.Bind(pickRight)
	m.asm.Fmovdd(out, right)
	m.asm.B(done)

	// min(-0.0, 0.0) is -0.0 and max is 0.0; merging the sign bits
	// through the integer file gets both right.
	m.asm.Bind(equal)
	m.asm.FmovToGeneral(a64.TMP, out)
	m.asm.FmovToGeneral(a64.TMP2, right)
	if isMin {
		m.asm.Orr(a64.TMP, a64.TMP, a64.TMP2)
	} else {
		m.asm.And(a64.TMP, a64.TMP, a64.TMP2)
	}
	m.asm.FmovFromGeneral(out, a64.TMP)
	m.asm.B(done)

	m.asm.Bind(nan)
	m.asm.LoadImmediate(a64.TMP, quietNaNBits)
	m.asm.FmovFromGeneral(out, a64.TMP)
	m.asm.Bind(done)
}
