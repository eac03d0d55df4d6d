package arm64

// Cond is an arm64 condition code. The constant values are the
// hardware encodings.
type Cond byte

const (
	EQ Cond = iota
	NE
	CS
	CC
	MI
	PL
	VS
	VC
	HI
	LS
	GE
	LT
	GT
	LE
	AL
	NV
)

// Invert returns the complementary condition.
func (c Cond) Invert() Cond {
	if c >= AL {
		panic("BUG: cannot invert al/nv")
	}
	// Hardware pairs differ in the lowest bit.
	return c ^ 1
}

// Flip returns the condition with compared operands swapped.
func (c Cond) Flip() Cond {
	switch c {
	case LT:
		return GT
	case GT:
		return LT
	case LE:
		return GE
	case GE:
		return LE
	case CC:
		return HI
	case HI:
		return CC
	case CS:
		return LS
	case LS:
		return CS
	}
	return c
}

// String implements fmt.Stringer.
func (c Cond) String() string {
	switch c {
	case EQ:
		return "eq"
	case NE:
		return "ne"
	case CS:
		return "hs"
	case CC:
		return "lo"
	case MI:
		return "mi"
	case PL:
		return "pl"
	case VS:
		return "vs"
	case VC:
		return "vc"
	case HI:
		return "hi"
	case LS:
		return "ls"
	case GE:
		return "ge"
	case LT:
		return "lt"
	case GT:
		return "gt"
	case LE:
		return "le"
	case AL:
		return "al"
	case NV:
		return "nv"
	}
	panic("BUG: invalid condition")
}
