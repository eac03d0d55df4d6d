package ir

import (
	"fmt"
	"strings"

	"github.com/driftvm/drift/internal/rt"
)

// Opcode determines the behavior of an Instruction. The set is closed:
// every backend dispatch over it is an exhaustive switch that panics on
// anything it does not know.
type Opcode byte

const (
	opInvalid Opcode = iota

	OpConstant

	// Comparisons. Usable either as a definition materializing a
	// boolean or fused into a Branch.
	OpEqualityCompare
	OpRelationalOp
	OpStrictCompare
	OpTestSmi
	OpTestClassIDs

	// Control flow.
	OpBranch
	OpGoto
	OpIfThenElse

	// Guards.
	OpCheckSmi
	OpCheckClass
	OpCheckEitherNonSmi
	OpCheckArrayBound
	OpGuardField

	// Smi arithmetic.
	OpBinarySmiOp
	OpUnarySmiOp
	OpTruncDivMod

	// Numeric lowering.
	OpBox
	OpUnbox
	OpBinaryDoubleOp
	OpUnaryDoubleOp
	OpSmiToDouble
	OpDoubleToSmi
	OpDoubleToFloat
	OpFloatToDouble
	OpMathMinMax
	OpMathUnary
	OpDoubleToInteger
	OpBinaryFloat32x4Op
	OpBinaryFloat64x2Op

	// Memory.
	OpLoadIndexed
	OpStoreIndexed
	OpLoadField
	OpStoreInstanceField
	OpLoadStaticField
	OpStoreStaticField

	// Calls and allocation.
	OpStaticCall
	OpInstanceCall
	OpPolymorphicCall
	OpClosureCall
	OpNativeCall
	OpPushArgument
	OpReturn
	OpAllocateObject
	OpCreateArray
	OpAllocateContext
	OpCloneContext
	OpInstantiateType
	OpInstantiateTypeArgs
	OpInstanceOf
	OpAssertBoolean
	OpThrow
	OpReThrow

	OpCheckStackOverflow
	OpExtractNthOutput

	numOpcodes
)

var opcodeNames = [numOpcodes]string{
	OpConstant:            "constant",
	OpEqualityCompare:     "equality_compare",
	OpRelationalOp:        "relational_op",
	OpStrictCompare:       "strict_compare",
	OpTestSmi:             "test_smi",
	OpTestClassIDs:        "test_cids",
	OpBranch:              "branch",
	OpGoto:                "goto",
	OpIfThenElse:          "if_then_else",
	OpCheckSmi:            "check_smi",
	OpCheckClass:          "check_class",
	OpCheckEitherNonSmi:   "check_either_non_smi",
	OpCheckArrayBound:     "check_array_bound",
	OpGuardField:          "guard_field",
	OpBinarySmiOp:         "binary_smi_op",
	OpUnarySmiOp:          "unary_smi_op",
	OpTruncDivMod:         "trunc_div_mod",
	OpBox:                 "box",
	OpUnbox:               "unbox",
	OpBinaryDoubleOp:      "binary_double_op",
	OpUnaryDoubleOp:       "unary_double_op",
	OpSmiToDouble:         "smi_to_double",
	OpDoubleToSmi:         "double_to_smi",
	OpDoubleToFloat:       "double_to_float",
	OpFloatToDouble:       "float_to_double",
	OpMathMinMax:          "math_min_max",
	OpMathUnary:           "math_unary",
	OpDoubleToInteger:     "double_to_integer",
	OpBinaryFloat32x4Op:   "binary_float32x4_op",
	OpBinaryFloat64x2Op:   "binary_float64x2_op",
	OpLoadIndexed:         "load_indexed",
	OpStoreIndexed:        "store_indexed",
	OpLoadField:           "load_field",
	OpStoreInstanceField:  "store_instance_field",
	OpLoadStaticField:     "load_static_field",
	OpStoreStaticField:    "store_static_field",
	OpStaticCall:          "static_call",
	OpInstanceCall:        "instance_call",
	OpPolymorphicCall:     "polymorphic_call",
	OpClosureCall:         "closure_call",
	OpNativeCall:          "native_call",
	OpPushArgument:        "push_argument",
	OpReturn:              "return",
	OpAllocateObject:      "allocate_object",
	OpCreateArray:         "create_array",
	OpAllocateContext:     "allocate_context",
	OpCloneContext:        "clone_context",
	OpInstantiateType:     "instantiate_type",
	OpInstantiateTypeArgs: "instantiate_type_args",
	OpInstanceOf:          "instance_of",
	OpAssertBoolean:       "assert_boolean",
	OpThrow:               "throw",
	OpReThrow:             "re_throw",
	OpCheckStackOverflow:  "check_stack_overflow",
	OpExtractNthOutput:    "extract_nth_output",
}

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if int(o) < len(opcodeNames) && opcodeNames[o] != "" {
		return opcodeNames[o]
	}
	panic("BUG: unknown opcode")
}

// Op is an arithmetic sub-opcode.
type Op byte

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpTruncDiv
	OpMod
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
	OpNeg
	OpBitNot
	OpMin
	OpMax
	OpSqrt
)

// String implements fmt.Stringer.
func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpTruncDiv:
		return "truncdiv"
	case OpMod:
		return "mod"
	case OpBitAnd:
		return "and"
	case OpBitOr:
		return "or"
	case OpBitXor:
		return "xor"
	case OpShl:
		return "shl"
	case OpShr:
		return "shr"
	case OpNeg:
		return "neg"
	case OpBitNot:
		return "not"
	case OpMin:
		return "min"
	case OpMax:
		return "max"
	case OpSqrt:
		return "sqrt"
	}
	panic("BUG: unknown op")
}

// Relation is the condition of a comparison instruction.
type Relation byte

const (
	RelEq Relation = iota
	RelNe
	RelLt
	RelLe
	RelGt
	RelGe
)

// Flip returns the relation with operands swapped.
func (r Relation) Flip() Relation {
	switch r {
	case RelLt:
		return RelGt
	case RelLe:
		return RelGe
	case RelGt:
		return RelLt
	case RelGe:
		return RelLe
	}
	return r
}

// Negate returns the complementary relation.
func (r Relation) Negate() Relation {
	switch r {
	case RelEq:
		return RelNe
	case RelNe:
		return RelEq
	case RelLt:
		return RelGe
	case RelLe:
		return RelGt
	case RelGt:
		return RelLe
	case RelGe:
		return RelLt
	}
	panic("BUG: unknown relation")
}

// String implements fmt.Stringer.
func (r Relation) String() string {
	switch r {
	case RelEq:
		return "=="
	case RelNe:
		return "!="
	case RelLt:
		return "<"
	case RelLe:
		return "<="
	case RelGt:
		return ">"
	case RelGe:
		return ">="
	}
	panic("BUG: unknown relation")
}

// CidResult is one entry of a class-id test: receivers of Cid answer
// Result without falling through to the guard.
type CidResult struct {
	Cid    rt.ClassID
	Result bool
}

// CallTarget is a resolved static call destination.
type CallTarget struct {
	Name     string
	Entry    uintptr
	ArgsDesc uintptr
}

// CidTarget binds one receiver class to a target in a polymorphic call.
type CidTarget struct {
	Cid    rt.ClassID
	Target CallTarget
	Count  int64
}

// Instruction is a node of the instruction graph. One flat struct
// serves every opcode; the as* constructors below populate the fields
// each opcode reads and the backend never touches anything else.
type Instruction struct {
	prev, next *Instruction
	id         int32

	kind Opcode
	op   Op
	rel  Relation

	v1, v2, v3 Value
	rets       [2]Value

	u1, u2 int64
	class  rt.ClassID

	classes    []rt.ClassID
	cidResults []CidResult
	cidTargets []CidTarget

	field  *rt.FieldDesc
	target CallTarget
	cmp    *Instruction

	blkTrue, blkFalse *Block

	deoptID DeoptID
	pos     SourcePos

	name string
	addr uintptr
	argc int32

	truncating   bool
	needsBarrier bool
	isInit       bool
	bootstrap    bool
	negated      bool
	hoisted      bool
}

// Accessors. The backend reads instructions exclusively through these.

func (i *Instruction) Kind() Opcode             { return i.kind }
func (i *Instruction) Op() Op                   { return i.op }
func (i *Instruction) Relation() Relation       { return i.rel }
func (i *Instruction) DeoptID() DeoptID         { return i.deoptID }
func (i *Instruction) Pos() SourcePos           { return i.pos }
func (i *Instruction) Class() rt.ClassID        { return i.class }
func (i *Instruction) Classes() []rt.ClassID    { return i.classes }
func (i *Instruction) CidResults() []CidResult  { return i.cidResults }
func (i *Instruction) CidTargets() []CidTarget  { return i.cidTargets }
func (i *Instruction) Field() *rt.FieldDesc     { return i.field }
func (i *Instruction) Target() CallTarget       { return i.target }
func (i *Instruction) Comparison() *Instruction { return i.cmp }
func (i *Instruction) TrueBlock() *Block        { return i.blkTrue }
func (i *Instruction) FalseBlock() *Block       { return i.blkFalse }
func (i *Instruction) Name() string             { return i.name }
func (i *Instruction) Addr() uintptr            { return i.addr }
func (i *Instruction) ArgCount() int32          { return i.argc }
func (i *Instruction) Truncating() bool         { return i.truncating }
func (i *Instruction) NeedsBarrier() bool       { return i.needsBarrier }
func (i *Instruction) IsInitialization() bool   { return i.isInit }
func (i *Instruction) Bootstrap() bool          { return i.bootstrap }
func (i *Instruction) Negated() bool            { return i.negated }
func (i *Instruction) Hoisted() bool            { return i.hoisted }
func (i *Instruction) U1() int64                { return i.u1 }
func (i *Instruction) U2() int64                { return i.u2 }
func (i *Instruction) ID() int32                { return i.id }
func (i *Instruction) Next() *Instruction       { return i.next }
func (i *Instruction) Prev() *Instruction       { return i.prev }

// MarkTruncating records that only the low bits of the result are
// observed, so lowering may skip the overflow guards.
func (i *Instruction) MarkTruncating() { i.truncating = true }

// MarkHoisted tags a check moved out of a loop by the optimizer; its
// deopt stub reports the hoisted reason so the runtime re-enters
// conservatively.
func (i *Instruction) MarkHoisted() { i.hoisted = true }

// NumInputs returns the number of value inputs.
func (i *Instruction) NumInputs() int {
	switch {
	case i.v3.Valid():
		return 3
	case i.v2.Valid():
		return 2
	case i.v1.Valid():
		return 1
	}
	return 0
}

// Input returns the n-th value input.
func (i *Instruction) Input(n int) Value {
	switch n {
	case 0:
		return i.v1
	case 1:
		return i.v2
	case 2:
		return i.v3
	}
	panic(fmt.Sprintf("BUG: Input(%d) on %s", n, i.kind))
}

// Def returns the defined value, or ValueInvalid for pure effects.
func (i *Instruction) Def() Value { return i.rets[0] }

// PairDef returns both defined values of a pair-producing instruction.
func (i *Instruction) PairDef() (Value, Value) { return i.rets[0], i.rets[1] }

// CanDeoptimize reports whether the instruction owns a deopt guard.
func (i *Instruction) CanDeoptimize() bool { return i.deoptID.Valid() }

// Constructors.

func (i *Instruction) asConstant(out Value, constIdx int64) *Instruction {
	i.kind = OpConstant
	i.rets[0] = out
	i.u1 = constIdx
	return i
}

// AsEqualityCompare compares two values of a proven numeric class.
func (i *Instruction) AsEqualityCompare(rel Relation, operandClass rt.ClassID, left, right, out Value) *Instruction {
	i.kind, i.rel, i.class = OpEqualityCompare, rel, operandClass
	i.v1, i.v2, i.rets[0] = left, right, out
	return i
}

func (i *Instruction) AsRelationalOp(rel Relation, operandClass rt.ClassID, left, right, out Value) *Instruction {
	i.kind, i.rel, i.class = OpRelationalOp, rel, operandClass
	i.v1, i.v2, i.rets[0] = left, right, out
	return i
}

// AsStrictCompare compares by identity, with no number semantics.
func (i *Instruction) AsStrictCompare(rel Relation, left, right, out Value) *Instruction {
	if rel != RelEq && rel != RelNe {
		panic("BUG: strict compare must be == or !=")
	}
	i.kind, i.rel = OpStrictCompare, rel
	i.v1, i.v2, i.rets[0] = left, right, out
	return i
}

// AsTestSmi tests (left & right) against zero. Branch fusion only.
func (i *Instruction) AsTestSmi(rel Relation, left, right Value) *Instruction {
	if rel != RelEq && rel != RelNe {
		panic("BUG: test_smi must be == or !=")
	}
	i.kind, i.rel = OpTestSmi, rel
	i.v1, i.v2 = left, right
	return i
}

// AsTestClassIDs answers per-class results and deopts on any class not
// listed.
func (i *Instruction) AsTestClassIDs(value Value, results []CidResult, deoptID DeoptID, out Value) *Instruction {
	i.kind = OpTestClassIDs
	i.v1, i.cidResults, i.deoptID, i.rets[0] = value, results, deoptID, out
	return i
}

// AsBranch fuses cmp into a two-way branch. cmp is owned by the branch
// and does not appear in the block's instruction list.
func (i *Instruction) AsBranch(cmp *Instruction, ifTrue, ifFalse *Block) *Instruction {
	i.kind = OpBranch
	i.cmp, i.blkTrue, i.blkFalse = cmp, ifTrue, ifFalse
	return i
}

func (i *Instruction) AsGoto(target *Block) *Instruction {
	i.kind = OpGoto
	i.blkTrue = target
	return i
}

// AsIfThenElse materializes one of two smi constants from a fused
// comparison.
func (i *Instruction) AsIfThenElse(cmp *Instruction, ifTrue, ifFalse int64, out Value) *Instruction {
	i.kind = OpIfThenElse
	i.cmp, i.u1, i.u2, i.rets[0] = cmp, ifTrue, ifFalse, out
	return i
}

func (i *Instruction) AsCheckSmi(value Value, deoptID DeoptID) *Instruction {
	i.kind = OpCheckSmi
	i.v1, i.deoptID = value, deoptID
	return i
}

func (i *Instruction) AsCheckClass(value Value, cids []rt.ClassID, deoptID DeoptID) *Instruction {
	if len(cids) == 0 {
		panic("BUG: check_class with no classes")
	}
	i.kind = OpCheckClass
	i.v1, i.classes, i.deoptID = value, cids, deoptID
	return i
}

func (i *Instruction) AsCheckEitherNonSmi(left, right Value, deoptID DeoptID) *Instruction {
	i.kind = OpCheckEitherNonSmi
	i.v1, i.v2, i.deoptID = left, right, deoptID
	return i
}

// AsCheckArrayBound guards index against length.
func (i *Instruction) AsCheckArrayBound(length, index Value, deoptID DeoptID) *Instruction {
	i.kind = OpCheckArrayBound
	i.v1, i.v2, i.deoptID = length, index, deoptID
	return i
}

func (i *Instruction) AsGuardField(value Value, field *rt.FieldDesc, deoptID DeoptID) *Instruction {
	i.kind = OpGuardField
	i.v1, i.field, i.deoptID = value, field, deoptID
	return i
}

// AsBinarySmiOp performs op on two tagged smis. An invalid deoptID
// means the result is known to fit and no overflow guard is emitted.
func (i *Instruction) AsBinarySmiOp(op Op, left, right Value, deoptID DeoptID, out Value) *Instruction {
	i.kind, i.op = OpBinarySmiOp, op
	i.v1, i.v2, i.deoptID, i.rets[0] = left, right, deoptID, out
	i.truncating = !deoptID.Valid()
	return i
}

func (i *Instruction) AsUnarySmiOp(op Op, value Value, deoptID DeoptID, out Value) *Instruction {
	if op != OpNeg && op != OpBitNot {
		panic("BUG: unary smi op must be neg or not")
	}
	i.kind, i.op = OpUnarySmiOp, op
	i.v1, i.deoptID, i.rets[0] = value, deoptID, out
	return i
}

// AsTruncDivMod computes quotient and remainder in one instruction,
// defining a pair.
func (i *Instruction) AsTruncDivMod(left, right Value, deoptID DeoptID, outDiv, outMod Value) *Instruction {
	i.kind = OpTruncDivMod
	i.v1, i.v2, i.deoptID = left, right, deoptID
	i.rets[0], i.rets[1] = outDiv, outMod
	return i
}

// AsBox boxes an unboxed value into a fresh heap object of boxClass.
func (i *Instruction) AsBox(boxClass rt.ClassID, value, out Value) *Instruction {
	i.kind, i.class = OpBox, boxClass
	i.v1, i.rets[0] = value, out
	return i
}

// AsUnbox unboxes a tagged value. inputClass is what earlier passes
// proved about the input; ClassDynamic means a guard is required.
func (i *Instruction) AsUnbox(boxClass, inputClass rt.ClassID, value Value, deoptID DeoptID, out Value) *Instruction {
	i.kind, i.class = OpUnbox, boxClass
	i.u1 = int64(inputClass)
	i.v1, i.deoptID, i.rets[0] = value, deoptID, out
	return i
}

// InputClass returns the proven class of an unbox input.
func (i *Instruction) InputClass() rt.ClassID { return rt.ClassID(i.u1) }

func (i *Instruction) AsBinaryDoubleOp(op Op, left, right, out Value) *Instruction {
	i.kind, i.op = OpBinaryDoubleOp, op
	i.v1, i.v2, i.rets[0] = left, right, out
	return i
}

func (i *Instruction) AsUnaryDoubleOp(op Op, value, out Value) *Instruction {
	i.kind, i.op = OpUnaryDoubleOp, op
	i.v1, i.rets[0] = value, out
	return i
}

func (i *Instruction) AsSmiToDouble(value, out Value) *Instruction {
	i.kind = OpSmiToDouble
	i.v1, i.rets[0] = value, out
	return i
}

// AsDoubleToSmi truncates toward zero; NaN and out-of-range deopt.
func (i *Instruction) AsDoubleToSmi(value Value, deoptID DeoptID, out Value) *Instruction {
	i.kind = OpDoubleToSmi
	i.v1, i.deoptID, i.rets[0] = value, deoptID, out
	return i
}

func (i *Instruction) AsDoubleToFloat(value, out Value) *Instruction {
	i.kind = OpDoubleToFloat
	i.v1, i.rets[0] = value, out
	return i
}

func (i *Instruction) AsFloatToDouble(value, out Value) *Instruction {
	i.kind = OpFloatToDouble
	i.v1, i.rets[0] = value, out
	return i
}

func (i *Instruction) AsMathMinMax(op Op, operandClass rt.ClassID, left, right, out Value) *Instruction {
	if op != OpMin && op != OpMax {
		panic("BUG: math_min_max must be min or max")
	}
	i.kind, i.op, i.class = OpMathMinMax, op, operandClass
	i.v1, i.v2, i.rets[0] = left, right, out
	return i
}

// AsMathUnary is sqrt, or the square when op is OpMul.
func (i *Instruction) AsMathUnary(op Op, value, out Value) *Instruction {
	if op != OpSqrt && op != OpMul {
		panic("BUG: math_unary must be sqrt or mul")
	}
	i.kind, i.op = OpMathUnary, op
	i.v1, i.rets[0] = value, out
	return i
}

// AsDoubleToInteger converts through the runtime, which covers the
// range a deoptimizing truncation cannot.
func (i *Instruction) AsDoubleToInteger(value Value, deoptID DeoptID, pos SourcePos, out Value) *Instruction {
	i.kind = OpDoubleToInteger
	i.v1, i.deoptID, i.pos, i.rets[0] = value, deoptID, pos, out
	return i
}

// AsBinaryFloat32x4Op operates lane-wise on two unboxed 4-lane floats.
func (i *Instruction) AsBinaryFloat32x4Op(op Op, left, right, out Value) *Instruction {
	i.kind, i.op = OpBinaryFloat32x4Op, op
	i.v1, i.v2, i.rets[0] = left, right, out
	return i
}

// AsBinaryFloat64x2Op operates lane-wise on two unboxed 2-lane doubles.
func (i *Instruction) AsBinaryFloat64x2Op(op Op, left, right, out Value) *Instruction {
	i.kind, i.op = OpBinaryFloat64x2Op, op
	i.v1, i.v2, i.rets[0] = left, right, out
	return i
}

// AsLoadIndexed loads array[index]. index is a tagged smi.
func (i *Instruction) AsLoadIndexed(arrayClass rt.ClassID, array, index, out Value) *Instruction {
	i.kind, i.class = OpLoadIndexed, arrayClass
	i.v1, i.v2, i.rets[0] = array, index, out
	return i
}

func (i *Instruction) AsStoreIndexed(arrayClass rt.ClassID, array, index, value Value, needsBarrier bool) *Instruction {
	i.kind, i.class = OpStoreIndexed, arrayClass
	i.v1, i.v2, i.v3 = array, index, value
	i.needsBarrier = needsBarrier
	return i
}

func (i *Instruction) AsLoadField(instance Value, field *rt.FieldDesc, out Value) *Instruction {
	i.kind = OpLoadField
	i.v1, i.field, i.rets[0] = instance, field, out
	return i
}

// AsStoreInstanceField stores value into instance's field slot.
// isInit marks the first store into a freshly allocated instance, where
// the unboxed slot may not exist yet.
func (i *Instruction) AsStoreInstanceField(instance, value Value, field *rt.FieldDesc, needsBarrier, isInit bool) *Instruction {
	i.kind = OpStoreInstanceField
	i.v1, i.v2, i.field = instance, value, field
	i.needsBarrier, i.isInit = needsBarrier, isInit
	return i
}

func (i *Instruction) AsLoadStaticField(field *rt.FieldDesc, out Value) *Instruction {
	i.kind = OpLoadStaticField
	i.field, i.rets[0] = field, out
	return i
}

func (i *Instruction) AsStoreStaticField(value Value, field *rt.FieldDesc) *Instruction {
	i.kind = OpStoreStaticField
	i.v1, i.field = value, field
	return i
}

func (i *Instruction) AsStaticCall(target CallTarget, argc int32, deoptID DeoptID, pos SourcePos, out Value) *Instruction {
	i.kind = OpStaticCall
	i.target, i.argc, i.deoptID, i.pos, i.rets[0] = target, argc, deoptID, pos, out
	return i
}

// AsInstanceCall performs an IC-dispatched call; icData is the address
// of the call-site cache consulted by the call stub.
func (i *Instruction) AsInstanceCall(name string, icData uintptr, argc int32, deoptID DeoptID, pos SourcePos, out Value) *Instruction {
	i.kind = OpInstanceCall
	i.name, i.addr, i.argc = name, icData, argc
	i.deoptID, i.pos, i.rets[0] = deoptID, pos, out
	return i
}

func (i *Instruction) AsPolymorphicCall(name string, receiver Value, targets []CidTarget, argc int32, deoptID DeoptID, pos SourcePos, out Value) *Instruction {
	if len(targets) == 0 {
		panic("BUG: polymorphic call with no targets")
	}
	i.kind = OpPolymorphicCall
	i.name, i.v1, i.cidTargets, i.argc = name, receiver, targets, argc
	i.deoptID, i.pos, i.rets[0] = deoptID, pos, out
	return i
}

// AsClosureCall calls through a function object. argsDesc describes the
// argument shape to the callee.
func (i *Instruction) AsClosureCall(function Value, argsDesc uintptr, argc int32, deoptID DeoptID, pos SourcePos, out Value) *Instruction {
	i.kind = OpClosureCall
	i.v1, i.addr, i.argc = function, argsDesc, argc
	i.deoptID, i.pos, i.rets[0] = deoptID, pos, out
	return i
}

func (i *Instruction) AsNativeCall(name string, native uintptr, bootstrap bool, argc int32, pos SourcePos, out Value) *Instruction {
	i.kind = OpNativeCall
	i.name, i.addr, i.bootstrap, i.argc = name, native, bootstrap, argc
	i.pos, i.rets[0] = pos, out
	return i
}

func (i *Instruction) AsPushArgument(value Value) *Instruction {
	i.kind = OpPushArgument
	i.v1 = value
	return i
}

func (i *Instruction) AsReturn(value Value) *Instruction {
	i.kind = OpReturn
	i.v1 = value
	return i
}

func (i *Instruction) AsAllocateObject(cid rt.ClassID, deoptID DeoptID, pos SourcePos, out Value) *Instruction {
	i.kind, i.class = OpAllocateObject, cid
	i.deoptID, i.pos, i.rets[0] = deoptID, pos, out
	return i
}

func (i *Instruction) AsCreateArray(typeArgs, length Value, deoptID DeoptID, pos SourcePos, out Value) *Instruction {
	i.kind = OpCreateArray
	i.v1, i.v2 = typeArgs, length
	i.deoptID, i.pos, i.rets[0] = deoptID, pos, out
	return i
}

func (i *Instruction) AsAllocateContext(numVars int64, deoptID DeoptID, pos SourcePos, out Value) *Instruction {
	i.kind = OpAllocateContext
	i.u1, i.deoptID, i.pos, i.rets[0] = numVars, deoptID, pos, out
	return i
}

func (i *Instruction) AsCloneContext(context Value, deoptID DeoptID, pos SourcePos, out Value) *Instruction {
	i.kind = OpCloneContext
	i.v1, i.deoptID, i.pos, i.rets[0] = context, deoptID, pos, out
	return i
}

func (i *Instruction) AsInstantiateType(instantiator Value, typeObj uintptr, deoptID DeoptID, pos SourcePos, out Value) *Instruction {
	i.kind = OpInstantiateType
	i.v1, i.addr = instantiator, typeObj
	i.deoptID, i.pos, i.rets[0] = deoptID, pos, out
	return i
}

// AsInstanceOf asks the runtime whether value is an instance of the
// type object, given the instantiator's type arguments. negated
// selects the complementary answer.
func (i *Instruction) AsInstanceOf(value, typeArgs Value, typeObj uintptr, negated bool, deoptID DeoptID, pos SourcePos, out Value) *Instruction {
	i.kind = OpInstanceOf
	i.v1, i.v2, i.addr, i.negated = value, typeArgs, typeObj, negated
	i.deoptID, i.pos, i.rets[0] = deoptID, pos, out
	return i
}

// AsAssertBoolean raises a type error unless value is the true or the
// false object. The checked value passes through as the result.
func (i *Instruction) AsAssertBoolean(value Value, deoptID DeoptID, pos SourcePos, out Value) *Instruction {
	i.kind = OpAssertBoolean
	i.v1, i.deoptID, i.pos, i.rets[0] = value, deoptID, pos, out
	return i
}

func (i *Instruction) AsInstantiateTypeArgs(instantiator Value, typeObj uintptr, deoptID DeoptID, pos SourcePos, out Value) *Instruction {
	i.kind = OpInstantiateTypeArgs
	i.v1, i.addr = instantiator, typeObj
	i.deoptID, i.pos, i.rets[0] = deoptID, pos, out
	return i
}

// AsThrow throws the exception pushed by a preceding PushArgument.
func (i *Instruction) AsThrow(deoptID DeoptID, pos SourcePos) *Instruction {
	i.kind = OpThrow
	i.deoptID, i.pos = deoptID, pos
	return i
}

func (i *Instruction) AsReThrow(catchTryIndex int64, deoptID DeoptID, pos SourcePos) *Instruction {
	i.kind = OpReThrow
	i.u1, i.deoptID, i.pos = catchTryIndex, deoptID, pos
	return i
}

// AsCheckStackOverflow polls the stack limit. loopDepth scales the
// on-stack-replacement trigger for nested loops.
func (i *Instruction) AsCheckStackOverflow(loopDepth int64, deoptID DeoptID, pos SourcePos) *Instruction {
	i.kind = OpCheckStackOverflow
	i.u1, i.deoptID, i.pos = loopDepth, deoptID, pos
	return i
}

// AsExtractNthOutput projects one half of a pair definition.
func (i *Instruction) AsExtractNthOutput(pair Value, n int64, out Value) *Instruction {
	i.kind = OpExtractNthOutput
	i.v1, i.u1, i.rets[0] = pair, n, out
	return i
}

// String implements fmt.Stringer.
func (i *Instruction) String() string {
	var sb strings.Builder
	if i.rets[0].Valid() {
		sb.WriteString(i.rets[0].String())
		if i.rets[1].Valid() {
			sb.WriteString(", ")
			sb.WriteString(i.rets[1].String())
		}
		sb.WriteString(" = ")
	}
	sb.WriteString(i.kind.String())
	for n := 0; n < i.NumInputs(); n++ {
		if n == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(i.Input(n).String())
	}
	if i.deoptID.Valid() {
		fmt.Fprintf(&sb, " [deopt %d]", i.deoptID)
	}
	return sb.String()
}
