package arm64

import (
	"fmt"

	a64 "github.com/driftvm/drift/internal/asm/arm64"
	"github.com/driftvm/drift/internal/backend/regalloc"
	"github.com/driftvm/drift/internal/ir"
	"github.com/driftvm/drift/internal/rt"
)

// smiDivOverflowQuotient is the only quotient sdiv can produce that
// does not fit a smi: MinInt64 / -1, untagged.
const smiDivOverflowQuotient = int64(0x4000000000000000)

func (m *Machine) emitBinarySmiOp(i *ir.Instruction) error {
	s := m.SummaryFor(i)
	left := s.In(0).Reg()
	out := s.Out().Reg()

	if right := s.In(1); right.IsConstant() {
		return m.emitBinarySmiOpConstant(i, left, m.constantAt(right).I64, out)
	}
	right := s.In(1).Reg()

	// A truncating op keeps the wrapped result even when a deopt id is
	// attached, so the overflow guards drop out.
	guarded := i.CanDeoptimize() && !i.Truncating()
	var deopt a64.Label
	if guarded {
		deopt = m.deoptLabel(i.DeoptID(), rt.DeoptBinarySmiOp)
	}

	switch i.Op() {
	case ir.OpAdd:
		if guarded {
			m.asm.Adds(out, left, right)
			m.asm.BCond(a64.VS, deopt)
		} else {
			m.asm.Add(out, left, right)
		}
	case ir.OpSub:
		if guarded {
			m.asm.Subs(out, left, right)
			m.asm.BCond(a64.VS, deopt)
		} else {
			m.asm.Sub(out, left, right)
		}
	case ir.OpMul:
		// One untagged operand keeps the product tagged.
		m.asm.SmiUntag(a64.TMP, left)
		if guarded {
			m.asm.Mul(a64.TMP2, a64.TMP, right)
			m.asm.SmulH(a64.TMP, a64.TMP, right)
			// The high half of an in-range product replicates the sign
			// of the low half.
			m.asm.CmpShiftedASR(a64.TMP, a64.TMP2, 63)
			m.asm.BCond(a64.NE, deopt)
			m.asm.MovReg(out, a64.TMP2)
		} else {
			m.asm.Mul(out, a64.TMP, right)
		}
	case ir.OpBitAnd:
		m.asm.And(out, left, right)
	case ir.OpBitOr:
		m.asm.Orr(out, left, right)
	case ir.OpBitXor:
		m.asm.Eor(out, left, right)
	case ir.OpTruncDiv:
		// Division always guards against a zero divisor.
		d := m.deoptLabel(i.DeoptID(), rt.DeoptBinarySmiOp)
		m.asm.Cbz(right, d)
		m.asm.SmiUntag(a64.TMP, left)
		m.asm.SmiUntag(a64.TMP2, right)
		m.asm.Sdiv(out, a64.TMP, a64.TMP2)
		m.asm.CompareImmediate(out, smiDivOverflowQuotient, a64.TMP)
		m.asm.BCond(a64.EQ, d)
		m.asm.SmiTag(out, out)
	case ir.OpMod:
		d := m.deoptLabel(i.DeoptID(), rt.DeoptBinarySmiOp)
		m.asm.Cbz(right, d)
		m.asm.SmiUntag(a64.TMP, left)
		m.asm.SmiUntag(a64.TMP2, right)
		m.asm.Sdiv(out, a64.TMP, a64.TMP2)
		m.asm.Msub(out, out, a64.TMP2, a64.TMP)
		m.emitModSignFix(out)
		m.asm.SmiTag(out, out)
	case ir.OpShl:
		if guarded {
			// Count above 63 reads as huge unsigned for negative smis
			// too, so one unsigned compare guards both.
			m.asm.CompareImmediate(right, rt.TagSmi(63), a64.TMP)
			m.asm.BCond(a64.HI, deopt)
			m.asm.SmiUntag(a64.TMP, right)
			m.asm.Lslv(a64.TMP2, left, a64.TMP)
			m.asm.Asrv(a64.TMP, a64.TMP2, a64.TMP)
			m.asm.Cmp(a64.TMP, left)
			m.asm.BCond(a64.NE, deopt)
			m.asm.MovReg(out, a64.TMP2)
		} else {
			m.asm.SmiUntag(a64.TMP, right)
			m.asm.Lslv(out, left, a64.TMP)
			m.asm.CompareImmediate(a64.TMP, 63, a64.TMP2)
			m.asm.Csel(out, a64.XZR, out, a64.HI)
		}
	case ir.OpShr:
		if i.CanDeoptimize() {
			m.asm.CompareImmediate(right, 0, regalloc.RealRegInvalid)
			m.asm.BCond(a64.LT, deopt)
		}
		// Arithmetic shifts saturate at 63; higher counts only repeat
		// the sign bit.
		m.asm.SmiUntag(a64.TMP, right)
		m.asm.LoadImmediate(a64.TMP2, 63)
		m.asm.Cmp(a64.TMP, a64.TMP2)
		m.asm.Csel(a64.TMP, a64.TMP2, a64.TMP, a64.GT)
		m.asm.SmiUntag(a64.TMP2, left)
		m.asm.Asrv(a64.TMP2, a64.TMP2, a64.TMP)
		m.asm.SmiTag(out, a64.TMP2)
	default:
		return fmt.Errorf("binary smi op %s is not lowerable", i.Op())
	}
	return nil
}

// emitModSignFix folds a negative euclidean-style remainder back into
// range: res += |right|. The untagged divisor is expected in TMP2 and
// gets read only when the fix applies.
func (m *Machine) emitModSignFix(res regalloc.RealReg) {
	done := m.asm.AllocateLabel()
	m.asm.CompareImmediate(res, 0, regalloc.RealRegInvalid)
	m.asm.BCond(a64.GE, done)
	m.asm.CompareImmediate(a64.TMP2, 0, regalloc.RealRegInvalid)
	m.asm.Sub(a64.TMP, res, a64.TMP2)
	m.asm.Add(res, res, a64.TMP2)
	m.asm.Csel(res, a64.TMP, res, a64.LT)
	m.asm.Bind(done)
}

func (m *Machine) emitBinarySmiOpConstant(i *ir.Instruction, left regalloc.RealReg, v int64, out regalloc.RealReg) error {
	guarded := i.CanDeoptimize() && !i.Truncating()
	var deopt a64.Label
	if guarded {
		deopt = m.deoptLabel(i.DeoptID(), rt.DeoptBinarySmiOp)
	}
	tagged := rt.TagSmi(v)

	switch i.Op() {
	case ir.OpAdd:
		if guarded {
			m.asm.AddsImmediate(out, left, tagged, a64.TMP)
			m.asm.BCond(a64.VS, deopt)
		} else {
			m.asm.AddImmediate(out, left, tagged, a64.TMP)
		}
	case ir.OpSub:
		if guarded {
			m.asm.SubsImmediate(out, left, tagged, a64.TMP)
			m.asm.BCond(a64.VS, deopt)
		} else {
			m.asm.AddImmediate(out, left, -tagged, a64.TMP)
		}
	case ir.OpMul:
		m.asm.LoadImmediate(a64.TMP, v)
		if guarded {
			m.asm.Mul(a64.TMP2, left, a64.TMP)
			m.asm.SmulH(a64.TMP, left, a64.TMP)
			m.asm.CmpShiftedASR(a64.TMP, a64.TMP2, 63)
			m.asm.BCond(a64.NE, deopt)
			m.asm.MovReg(out, a64.TMP2)
		} else {
			m.asm.Mul(out, left, a64.TMP)
		}
	case ir.OpBitAnd:
		m.asm.AndImmediate(out, left, tagged, a64.TMP)
	case ir.OpBitOr:
		m.asm.OrrImmediate(out, left, tagged, a64.TMP)
	case ir.OpBitXor:
		m.asm.EorImmediate(out, left, tagged, a64.TMP)
	case ir.OpTruncDiv:
		m.emitTruncDivByConstant(i, left, v, out)
	case ir.OpShl:
		switch {
		case v < 0:
			m.asm.B(m.deoptLabel(i.DeoptID(), rt.DeoptBinarySmiOp))
		case v >= 64:
			if guarded {
				m.asm.CompareImmediate(left, 0, regalloc.RealRegInvalid)
				m.asm.BCond(a64.NE, deopt)
			}
			m.asm.LoadImmediate(out, 0)
		case guarded:
			m.asm.LslImm(a64.TMP, left, uint32(v))
			m.asm.CmpShiftedASR(left, a64.TMP, uint32(v))
			m.asm.BCond(a64.NE, deopt)
			m.asm.MovReg(out, a64.TMP)
		case v == 0:
			m.asm.MovReg(out, left)
		default:
			m.asm.LslImm(out, left, uint32(v))
		}
	case ir.OpShr:
		if v < 0 {
			m.asm.B(m.deoptLabel(i.DeoptID(), rt.DeoptBinarySmiOp))
			break
		}
		// Shifting the tagged word by count+1 untags and shifts in one
		// step; re-tagging drops the shifted-in sign copies.
		total := v + 1
		if total > 63 {
			total = 63
		}
		m.asm.AsrImm(a64.TMP, left, uint32(total))
		m.asm.SmiTag(out, a64.TMP)
	default:
		return fmt.Errorf("binary smi op %s with constant operand is not lowerable", i.Op())
	}
	return nil
}

// emitTruncDivByConstant strength-reduces division by powers of two
// into shifts with round-toward-zero bias.
func (m *Machine) emitTruncDivByConstant(i *ir.Instruction, left regalloc.RealReg, v int64, out regalloc.RealReg) {
	switch {
	case v == 0:
		m.asm.B(m.deoptLabel(i.DeoptID(), rt.DeoptBinarySmiOp))
	case v == 1:
		m.asm.MovReg(out, left)
	case v == -1:
		if i.CanDeoptimize() {
			m.asm.Negs(out, left)
			m.asm.BCond(a64.VS, m.deoptLabel(i.DeoptID(), rt.DeoptBinarySmiOp))
		} else {
			m.asm.Neg(out, left)
		}
	case rt.IsPowerOfTwo(abs64(v)):
		// Bias negative dividends by divisor-1 so the arithmetic shift
		// rounds toward zero. The shift count includes the tag bit.
		sh := uint32(rt.ShiftForPowerOfTwo(abs64(v)) + rt.SmiTagShift)
		m.asm.AsrImm(a64.TMP, left, 63)
		m.asm.AddShiftedLSR(a64.TMP, left, a64.TMP, 64-sh)
		m.asm.AsrImm(out, a64.TMP, sh)
		if v < 0 {
			m.asm.Neg(out, out)
		}
		m.asm.SmiTag(out, out)
	default:
		m.asm.SmiUntag(a64.TMP, left)
		m.asm.LoadImmediate(a64.TMP2, v)
		m.asm.Sdiv(out, a64.TMP, a64.TMP2)
		m.asm.SmiTag(out, out)
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func (m *Machine) emitUnarySmiOp(i *ir.Instruction) {
	s := m.SummaryFor(i)
	value := s.In(0).Reg()
	out := s.Out().Reg()
	switch i.Op() {
	case ir.OpNeg:
		if i.CanDeoptimize() {
			m.asm.Negs(out, value)
			m.asm.BCond(a64.VS, m.deoptLabel(i.DeoptID(), rt.DeoptUnarySmiOp))
		} else {
			m.asm.Neg(out, value)
		}
	case ir.OpBitNot:
		m.asm.Mvn(out, value)
		// Flipping the word sets the tag bit; clear it back.
		m.asm.AndImmediate(out, out, ^int64(rt.SmiTagMask), a64.TMP)
	default:
		panic(fmt.Sprintf("BUG: unary smi op %s", i.Op()))
	}
}

// emitTruncDivMod produces quotient and remainder from one sdiv,
// defining a register pair.
func (m *Machine) emitTruncDivMod(i *ir.Instruction) {
	s := m.SummaryFor(i)
	left := s.In(0).Reg()
	right := s.In(1).Reg()
	pair := s.Out().Pair()
	div, mod := pair.Lo.Reg(), pair.Hi.Reg()
	deopt := m.deoptLabel(i.DeoptID(), rt.DeoptBinarySmiOp)

	m.asm.Cbz(right, deopt)
	m.asm.SmiUntag(a64.TMP, left)
	m.asm.SmiUntag(a64.TMP2, right)
	m.asm.Sdiv(div, a64.TMP, a64.TMP2)
	m.asm.Msub(mod, div, a64.TMP2, a64.TMP)
	m.asm.CompareImmediate(div, smiDivOverflowQuotient, a64.TMP)
	m.asm.BCond(a64.EQ, deopt)
	m.emitModSignFix(mod)
	m.asm.SmiTag(div, div)
	m.asm.SmiTag(mod, mod)
}

func (m *Machine) emitExtractNthOutput(i *ir.Instruction) {
	s := m.SummaryFor(i)
	pair := s.In(0).Pair()
	src := pair.Lo.Reg()
	if i.U1() == 1 {
		src = pair.Hi.Reg()
	}
	out := s.Out().Reg()
	if out != src {
		m.asm.MovReg(out, src)
	}
}
