package arm64

import (
	"fmt"

	"github.com/driftvm/drift/internal/ir"
)

func (m *Machine) emitInstr(i *ir.Instruction) error {
	switch i.Kind() {
	case ir.OpConstant:
		m.emitConstant(i)
	case ir.OpEqualityCompare, ir.OpRelationalOp, ir.OpStrictCompare,
		ir.OpTestSmi, ir.OpTestClassIDs:
		m.emitComparisonValue(i)
	case ir.OpBranch:
		m.emitBranch(i)
	case ir.OpGoto:
		if t := i.TrueBlock(); t != m.nextBlock {
			m.asm.B(m.blockLabel(t))
		}
	case ir.OpIfThenElse:
		return m.emitIfThenElse(i)
	case ir.OpCheckSmi:
		m.emitCheckSmi(i)
	case ir.OpCheckClass:
		m.emitCheckClass(i)
	case ir.OpCheckEitherNonSmi:
		m.emitCheckEitherNonSmi(i)
	case ir.OpCheckArrayBound:
		m.emitCheckArrayBound(i)
	case ir.OpGuardField:
		m.emitGuardField(i)
	case ir.OpBinarySmiOp:
		return m.emitBinarySmiOp(i)
	case ir.OpUnarySmiOp:
		m.emitUnarySmiOp(i)
	case ir.OpTruncDivMod:
		m.emitTruncDivMod(i)
	case ir.OpBox:
		return m.emitBox(i)
	case ir.OpUnbox:
		return m.emitUnbox(i)
	case ir.OpBinaryDoubleOp:
		return m.emitBinaryDoubleOp(i)
	case ir.OpUnaryDoubleOp:
		m.emitUnaryDoubleOp(i)
	case ir.OpSmiToDouble:
		m.emitSmiToDouble(i)
	case ir.OpDoubleToSmi:
		m.emitDoubleToSmi(i)
	case ir.OpDoubleToFloat:
		m.emitDoubleToFloat(i)
	case ir.OpFloatToDouble:
		m.emitFloatToDouble(i)
	case ir.OpMathMinMax:
		m.emitMathMinMax(i)
	case ir.OpMathUnary:
		return m.emitMathUnary(i)
	case ir.OpDoubleToInteger:
		m.emitDoubleToInteger(i)
	case ir.OpBinaryFloat32x4Op, ir.OpBinaryFloat64x2Op:
		return m.emitBinarySimdOp(i)
	case ir.OpLoadIndexed:
		return m.emitLoadIndexed(i)
	case ir.OpStoreIndexed:
		return m.emitStoreIndexed(i)
	case ir.OpLoadField:
		return m.emitLoadField(i)
	case ir.OpStoreInstanceField:
		return m.emitStoreInstanceField(i)
	case ir.OpLoadStaticField:
		m.emitLoadStaticField(i)
	case ir.OpStoreStaticField:
		m.emitStoreStaticField(i)
	case ir.OpStaticCall:
		m.emitStaticCall(i)
	case ir.OpInstanceCall:
		m.emitInstanceCall(i)
	case ir.OpPolymorphicCall:
		m.emitPolymorphicCall(i)
	case ir.OpClosureCall:
		m.emitClosureCall(i)
	case ir.OpNativeCall:
		m.emitNativeCall(i)
	case ir.OpPushArgument:
		m.emitPushArgument(i)
	case ir.OpReturn:
		m.emitReturn(i)
	case ir.OpAllocateObject:
		m.emitAllocateObject(i)
	case ir.OpCreateArray:
		m.emitCreateArray(i)
	case ir.OpAllocateContext:
		m.emitAllocateContext(i)
	case ir.OpCloneContext:
		m.emitCloneContext(i)
	case ir.OpInstantiateType, ir.OpInstantiateTypeArgs:
		m.emitInstantiateType(i)
	case ir.OpInstanceOf:
		m.emitInstanceOf(i)
	case ir.OpAssertBoolean:
		m.emitAssertBoolean(i)
	case ir.OpThrow:
		m.emitThrow(i)
	case ir.OpReThrow:
		m.emitReThrow(i)
	case ir.OpCheckStackOverflow:
		m.emitCheckStackOverflow(i)
	case ir.OpExtractNthOutput:
		m.emitExtractNthOutput(i)
	default:
		return fmt.Errorf("no lowering for %s", i)
	}
	return nil
}

// emitConstant materializes a constant definition. A constant whose
// uses were all bound inline costs nothing here.
func (m *Machine) emitConstant(i *ir.Instruction) {
	s := m.SummaryFor(i)
	out := s.Out()
	if out.IsConstant() {
		return
	}
	m.materializeConstant(m.fn.ConstantAt(i.U1()), regOf(out))
}
