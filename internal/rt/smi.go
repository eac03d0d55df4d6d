package rt

import "math"

// Small integers ("smis") are stored as the integer shifted left by one
// with a zero low bit, so heap pointers and smis are distinguished by
// bit zero alone. All constants below assume 64-bit words.
const (
	SmiTagShift = 1
	SmiTagMask  = 1
	SmiTagSmi   = 0

	SmiMin int64 = -(1 << 62)
	SmiMax int64 = (1 << 62) - 1
)

// FitsInSmi reports whether v is representable as a tagged smi.
func FitsInSmi(v int64) bool {
	return v >= SmiMin && v <= SmiMax
}

// TagSmi returns the tagged representation of v. v must fit in a smi.
func TagSmi(v int64) int64 {
	if !FitsInSmi(v) {
		panic("BUG: TagSmi on out-of-range value")
	}
	return v << SmiTagShift
}

// UntagSmi returns the integer value of a tagged smi.
func UntagSmi(tagged int64) int64 {
	return tagged >> SmiTagShift
}

// IsSmi reports whether the tagged word holds a smi rather than a heap
// pointer.
func IsSmi(word int64) bool {
	return word&SmiTagMask == SmiTagSmi
}

// AddOverflows reports whether a+b wraps in 64-bit two's complement.
// The generated code performs the same check through the V flag; this
// model is what the emission tests and the constant folder agree on.
func AddOverflows(a, b int64) bool {
	s := a + b
	return (a >= 0) == (b >= 0) && (s >= 0) != (a >= 0)
}

// SubOverflows reports whether a-b wraps in 64-bit two's complement.
func SubOverflows(a, b int64) bool {
	d := a - b
	return (a >= 0) != (b >= 0) && (d >= 0) != (a >= 0)
}

// MulOverflows reports whether a*b wraps in 64-bit two's complement.
// Mirrors the smulh high-bits check emitted for smi multiplication.
func MulOverflows(a, b int64) bool {
	if a == 0 || b == 0 {
		return false
	}
	if a == math.MinInt64 || b == math.MinInt64 {
		// MinInt64 times anything but 1 wraps; the division check below
		// cannot see MinInt64 * -1.
		return a != 1 && b != 1
	}
	p := a * b
	return p/b != a
}

// IsPowerOfTwo reports whether v is a positive power of two. Used for
// division strength reduction and select lowering.
func IsPowerOfTwo(v int64) bool {
	return v > 0 && v&(v-1) == 0
}

// ShiftForPowerOfTwo returns log2(v) for a positive power of two.
func ShiftForPowerOfTwo(v int64) int {
	if !IsPowerOfTwo(v) {
		panic("BUG: ShiftForPowerOfTwo on non-power-of-two")
	}
	n := 0
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

// ClampUint8 clamps v to [0, 255]. Clamped byte stores apply this to
// constants at compile time; register operands get the csel sequence.
func ClampUint8(v int64) int64 {
	if v < 0 {
		return 0
	}
	if v > 0xFF {
		return 0xFF
	}
	return v
}
