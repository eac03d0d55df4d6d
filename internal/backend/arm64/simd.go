package arm64

import (
	"fmt"

	a64 "github.com/driftvm/drift/internal/asm/arm64"
	"github.com/driftvm/drift/internal/ir"
)

// Lane-wise arithmetic on unboxed simd values. Both widths share the
// emitters; only the arrangement differs.

func (m *Machine) emitBinarySimdOp(i *ir.Instruction) error {
	s := m.SummaryFor(i)
	left, right := s.In(0).FpuReg(), s.In(1).FpuReg()
	out := s.Out().FpuReg()
	arr := a64.Vec4S
	if i.Kind() == ir.OpBinaryFloat64x2Op {
		arr = a64.Vec2D
	}
	switch i.Op() {
	case ir.OpAdd:
		m.asm.FaddVec(out, left, right, arr)
	case ir.OpSub:
		m.asm.FsubVec(out, left, right, arr)
	case ir.OpMul:
		m.asm.FmulVec(out, left, right, arr)
	case ir.OpDiv:
		m.asm.FdivVec(out, left, right, arr)
	default:
		return fmt.Errorf("binary simd op %s is not lowerable", i.Op())
	}
	return nil
}
