package arm64

import (
	"fmt"

	"github.com/driftvm/drift/internal/backend"
	"github.com/driftvm/drift/internal/ir"
	"github.com/driftvm/drift/internal/rt"
)

// regOrConstant binds an inlinable constant directly, otherwise demands
// a register.
func (m *Machine) regOrConstant(v ir.Value) backend.Location {
	if idx, ok := m.fn.ConstantIndexFor(v); ok {
		return backend.ConstantLocation(idx)
	}
	return backend.RequiresRegister()
}

func outFor(rep ir.Representation) backend.Location {
	if rep.IsFloat() {
		return backend.RequiresFpuRegister()
	}
	return backend.RequiresRegister()
}

// computeLocationSummary declares i's operand constraints. Branches and
// if-then-else carry the summary of the comparison they fuse.
func (m *Machine) computeLocationSummary(i *ir.Instruction) *backend.LocationSummary {
	switch i.Kind() {
	case ir.OpConstant:
		s := backend.NewLocationSummary(0, 0, backend.CallNone)
		s.SetOut(outFor(m.fn.RepOf(i.Def())))
		return s

	case ir.OpEqualityCompare, ir.OpRelationalOp, ir.OpStrictCompare,
		ir.OpTestSmi, ir.OpTestClassIDs:
		return m.comparisonSummary(i, false)

	case ir.OpBranch:
		return m.comparisonSummary(i.Comparison(), true)

	case ir.OpGoto:
		return backend.NewLocationSummary(0, 0, backend.CallNone)

	case ir.OpIfThenElse:
		s := m.comparisonSummary(i.Comparison(), true)
		s.SetOut(backend.RequiresRegister())
		return s

	case ir.OpCheckSmi, ir.OpCheckClass:
		s := backend.NewLocationSummary(1, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresRegister())
		return s

	case ir.OpCheckEitherNonSmi:
		s := backend.NewLocationSummary(2, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresRegister())
		s.SetIn(1, backend.RequiresRegister())
		return s

	case ir.OpCheckArrayBound:
		s := backend.NewLocationSummary(2, 0, backend.CallNone)
		s.SetIn(0, m.regOrConstant(i.Input(0)))
		s.SetIn(1, m.regOrConstant(i.Input(1)))
		return s

	case ir.OpGuardField:
		// The learning regime calls the guard updater from its slow
		// path; the deopt regime never leaves generated code.
		call := backend.CallOnSlowPath
		if m.cfg.Optimizing {
			call = backend.CallNone
		}
		s := backend.NewLocationSummary(1, 0, call)
		s.SetIn(0, backend.RequiresRegister())
		return s

	case ir.OpBinarySmiOp:
		s := backend.NewLocationSummary(2, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresRegister())
		s.SetIn(1, m.regOrConstant(i.Input(1)))
		s.SetOut(backend.RequiresRegister())
		return s

	case ir.OpUnarySmiOp:
		s := backend.NewLocationSummary(1, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresRegister())
		s.SetOut(backend.RequiresRegister())
		return s

	case ir.OpTruncDivMod:
		s := backend.NewLocationSummary(2, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresRegister())
		s.SetIn(1, backend.RequiresRegister())
		s.SetOut(backend.PairLocationOf(backend.RequiresRegister(), backend.RequiresRegister()))
		return s

	case ir.OpBox:
		s := backend.NewLocationSummary(1, 0, backend.CallOnSlowPath)
		s.SetIn(0, backend.RequiresFpuRegister())
		s.SetOut(backend.RequiresRegister())
		return s

	case ir.OpUnbox:
		s := backend.NewLocationSummary(1, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresRegister())
		s.SetOut(backend.RequiresFpuRegister())
		return s

	case ir.OpBinaryDoubleOp:
		s := backend.NewLocationSummary(2, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresFpuRegister())
		s.SetIn(1, backend.RequiresFpuRegister())
		s.SetOut(backend.RequiresFpuRegister())
		return s

	case ir.OpBinaryFloat32x4Op, ir.OpBinaryFloat64x2Op:
		s := backend.NewLocationSummary(2, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresFpuRegister())
		s.SetIn(1, backend.RequiresFpuRegister())
		s.SetOut(backend.RequiresFpuRegister())
		return s

	case ir.OpUnaryDoubleOp, ir.OpDoubleToFloat, ir.OpFloatToDouble, ir.OpMathUnary:
		s := backend.NewLocationSummary(1, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresFpuRegister())
		s.SetOut(backend.RequiresFpuRegister())
		return s

	case ir.OpDoubleToInteger:
		s := backend.NewLocationSummary(1, 0, backend.CallFull)
		s.SetIn(0, backend.RegisterLocation(arg0Reg))
		s.SetOut(backend.RegisterLocation(returnReg))
		return s

	case ir.OpInstanceOf:
		s := backend.NewLocationSummary(2, 0, backend.CallFull)
		s.SetIn(0, backend.RegisterLocation(arg0Reg))
		s.SetIn(1, backend.RegisterLocation(arg1Reg))
		s.SetOut(backend.RegisterLocation(returnReg))
		return s

	case ir.OpAssertBoolean:
		s := backend.NewLocationSummary(1, 0, backend.CallFull)
		s.SetIn(0, backend.RegisterLocation(arg0Reg))
		s.SetOut(backend.RegisterLocation(arg0Reg))
		return s

	case ir.OpSmiToDouble:
		s := backend.NewLocationSummary(1, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresRegister())
		s.SetOut(backend.RequiresFpuRegister())
		return s

	case ir.OpDoubleToSmi:
		s := backend.NewLocationSummary(1, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresFpuRegister())
		s.SetOut(backend.RequiresRegister())
		return s

	case ir.OpMathMinMax:
		s := backend.NewLocationSummary(2, 0, backend.CallNone)
		if i.Class() == rt.ClassDouble {
			s.SetIn(0, backend.RequiresFpuRegister())
			s.SetIn(1, backend.RequiresFpuRegister())
		} else {
			s.SetIn(0, backend.RequiresRegister())
			s.SetIn(1, backend.RequiresRegister())
		}
		s.SetOut(backend.SameAsFirstInput())
		return s

	case ir.OpLoadIndexed:
		s := backend.NewLocationSummary(2, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresRegister())
		s.SetIn(1, m.regOrConstant(i.Input(1)))
		s.SetOut(outFor(m.fn.RepOf(i.Def())))
		return s

	case ir.OpStoreIndexed:
		temps := 0
		if i.Class() == rt.ClassBufUint8Clamped || i.Class() == rt.ClassExtUint8Clamped {
			// Clamping burns both scratches on the value; the element
			// address needs a register of its own.
			temps = 1
		}
		s := backend.NewLocationSummary(3, temps, backend.CallNone)
		if temps == 1 {
			s.SetTemp(0, backend.RequiresRegister())
		}
		s.SetIn(0, backend.RequiresRegister())
		s.SetIn(1, m.regOrConstant(i.Input(1)))
		if m.fn.RepOf(i.Input(2)).IsFloat() {
			s.SetIn(2, backend.RequiresFpuRegister())
		} else if i.NeedsBarrier() {
			s.SetIn(2, backend.RequiresRegister())
		} else {
			s.SetIn(2, m.regOrConstant(i.Input(2)))
		}
		return s

	case ir.OpLoadField:
		if m.fn.RepOf(i.Def()).IsFloat() {
			s := backend.NewLocationSummary(1, 0, backend.CallNone)
			s.SetIn(0, backend.RequiresRegister())
			s.SetOut(backend.RequiresFpuRegister())
			return s
		}
		if f := i.Field(); !m.cfg.Optimizing && f.IsPotentialUnboxed() {
			// The unboxed branches of the runtime dispatch rebox the
			// payload; the box allocation runs on a slow path.
			s := backend.NewLocationSummary(1, 1, backend.CallOnSlowPath)
			s.SetIn(0, backend.RequiresRegister())
			s.SetTemp(0, backend.RequiresRegister())
			s.SetOut(backend.RequiresRegister())
			return s
		} else if m.cfg.Optimizing && f.IsUnboxed() {
			// A tagged use of a settled unboxed field reboxes the
			// payload into a fresh box.
			s := backend.NewLocationSummary(1, 0, backend.CallOnSlowPath)
			s.SetIn(0, backend.RequiresRegister())
			s.SetOut(backend.RequiresRegister())
			return s
		}
		s := backend.NewLocationSummary(1, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresRegister())
		s.SetOut(backend.RequiresRegister())
		return s

	case ir.OpStoreInstanceField:
		if m.fn.RepOf(i.Input(1)).IsFloat() {
			call := backend.CallNone
			temps := 0
			if i.IsInitialization() {
				// The first store allocates the field's mutable box.
				call = backend.CallOnSlowPath
				temps = 1
			}
			s := backend.NewLocationSummary(2, temps, call)
			s.SetIn(0, backend.RequiresRegister())
			s.SetIn(1, backend.RequiresFpuRegister())
			if temps == 1 {
				s.SetTemp(0, backend.RequiresRegister())
			}
			return s
		}
		if f := i.Field(); !m.cfg.Optimizing && f.IsPotentialUnboxed() {
			call := backend.CallNone
			if i.IsInitialization() {
				call = backend.CallOnSlowPath
			}
			s := backend.NewLocationSummary(2, 1, call)
			s.SetIn(0, backend.RequiresRegister())
			s.SetIn(1, backend.RequiresRegister())
			s.SetTemp(0, backend.RequiresRegister())
			return s
		} else if m.cfg.Optimizing && f.IsUnboxed() {
			// A tagged store to a settled unboxed field copies the
			// incoming box's payload into the field's private box.
			s := backend.NewLocationSummary(2, 0, backend.CallNone)
			s.SetIn(0, backend.RequiresRegister())
			s.SetIn(1, backend.RequiresRegister())
			return s
		}
		s := backend.NewLocationSummary(2, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresRegister())
		if i.NeedsBarrier() {
			s.SetIn(1, backend.RequiresRegister())
		} else {
			s.SetIn(1, m.regOrConstant(i.Input(1)))
		}
		return s

	case ir.OpLoadStaticField:
		s := backend.NewLocationSummary(0, 0, backend.CallNone)
		s.SetOut(backend.RequiresRegister())
		return s

	case ir.OpStoreStaticField:
		s := backend.NewLocationSummary(1, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresRegister())
		return s

	case ir.OpStaticCall, ir.OpInstanceCall, ir.OpNativeCall,
		ir.OpAllocateObject, ir.OpAllocateContext:
		s := backend.NewLocationSummary(0, 0, backend.CallFull)
		s.SetOut(backend.RegisterLocation(returnReg))
		return s

	case ir.OpPolymorphicCall, ir.OpClosureCall:
		s := backend.NewLocationSummary(1, 0, backend.CallFull)
		s.SetIn(0, backend.RequiresRegister())
		s.SetOut(backend.RegisterLocation(returnReg))
		return s

	case ir.OpCreateArray:
		s := backend.NewLocationSummary(2, 0, backend.CallFull)
		s.SetIn(0, backend.RegisterLocation(arrayTypeArgsReg))
		s.SetIn(1, backend.RegisterLocation(arrayLengthReg))
		s.SetOut(backend.RegisterLocation(returnReg))
		return s

	case ir.OpCloneContext:
		s := backend.NewLocationSummary(1, 0, backend.CallFull)
		s.SetIn(0, backend.RegisterLocation(arg0Reg))
		s.SetOut(backend.RegisterLocation(returnReg))
		return s

	case ir.OpInstantiateType, ir.OpInstantiateTypeArgs:
		s := backend.NewLocationSummary(1, 0, backend.CallFull)
		s.SetIn(0, backend.RegisterLocation(arg1Reg))
		s.SetOut(backend.RegisterLocation(returnReg))
		return s

	case ir.OpThrow, ir.OpReThrow:
		return backend.NewLocationSummary(0, 0, backend.CallFull)

	case ir.OpPushArgument:
		s := backend.NewLocationSummary(1, 0, backend.CallNone)
		s.SetIn(0, m.regOrConstant(i.Input(0)))
		return s

	case ir.OpReturn:
		s := backend.NewLocationSummary(1, 0, backend.CallNone)
		s.SetIn(0, backend.RegisterLocation(returnReg))
		return s

	case ir.OpCheckStackOverflow:
		return backend.NewLocationSummary(0, 0, backend.CallOnSlowPath)

	case ir.OpExtractNthOutput:
		s := backend.NewLocationSummary(1, 0, backend.CallNone)
		s.SetIn(0, backend.Any())
		s.SetOut(backend.RequiresRegister())
		return s
	}
	panic(fmt.Sprintf("BUG: no location summary rule for %s", i))
}

// comparisonSummary covers the five comparison opcodes. Fused
// comparisons feed flags to a branch or select and define no value.
func (m *Machine) comparisonSummary(cmp *ir.Instruction, fused bool) *backend.LocationSummary {
	var s *backend.LocationSummary
	switch cmp.Kind() {
	case ir.OpEqualityCompare, ir.OpRelationalOp:
		s = backend.NewLocationSummary(2, 0, backend.CallNone)
		if cmp.Class() == rt.ClassDouble {
			s.SetIn(0, backend.RequiresFpuRegister())
			s.SetIn(1, backend.RequiresFpuRegister())
		} else {
			// At most one side stays a constant; a constant left
			// operand compares through the mirrored relation.
			s.SetIn(1, m.regOrConstant(cmp.Input(1)))
			if s.InConstraint(1).IsConstant() {
				s.SetIn(0, backend.RequiresRegister())
			} else {
				s.SetIn(0, m.regOrConstant(cmp.Input(0)))
			}
		}
	case ir.OpStrictCompare:
		s = backend.NewLocationSummary(2, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresRegister())
		s.SetIn(1, m.regOrConstant(cmp.Input(1)))
	case ir.OpTestSmi:
		s = backend.NewLocationSummary(2, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresRegister())
		s.SetIn(1, m.regOrConstant(cmp.Input(1)))
	case ir.OpTestClassIDs:
		s = backend.NewLocationSummary(1, 0, backend.CallNone)
		s.SetIn(0, backend.RequiresRegister())
	default:
		panic(fmt.Sprintf("BUG: %s is not a comparison", cmp))
	}
	if !fused {
		s.SetOut(backend.RequiresRegister())
	}
	return s
}
