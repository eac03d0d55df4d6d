package rt

// DeoptReason says why optimized code bailed out to the unoptimized
// tier. The reason is materialized at the deopt stub so the runtime can
// attribute the bailout when deciding whether to re-optimize.
type DeoptReason uint32

const (
	DeoptUnknown DeoptReason = iota
	DeoptBinarySmiOp
	DeoptUnarySmiOp
	DeoptCheckSmi
	DeoptCheckClass
	DeoptHoistedCheckClass
	DeoptDoubleToSmi
	DeoptBinaryDoubleOp
	DeoptGuardField
	DeoptCheckArrayBound
	DeoptTestClass
	DeoptPolymorphicCall
	DeoptUnbox

	numDeoptReasons
)

// String implements fmt.Stringer.
func (r DeoptReason) String() string {
	switch r {
	case DeoptUnknown:
		return "unknown"
	case DeoptBinarySmiOp:
		return "binary_smi_op"
	case DeoptUnarySmiOp:
		return "unary_smi_op"
	case DeoptCheckSmi:
		return "check_smi"
	case DeoptCheckClass:
		return "check_class"
	case DeoptHoistedCheckClass:
		return "hoisted_check_class"
	case DeoptDoubleToSmi:
		return "double_to_smi"
	case DeoptBinaryDoubleOp:
		return "binary_double_op"
	case DeoptGuardField:
		return "guard_field"
	case DeoptCheckArrayBound:
		return "check_array_bound"
	case DeoptTestClass:
		return "test_class"
	case DeoptPolymorphicCall:
		return "polymorphic_call"
	case DeoptUnbox:
		return "unbox"
	}
	panic("BUG: unknown deopt reason")
}
