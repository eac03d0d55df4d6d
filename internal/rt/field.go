package rt

// Guarded list length states. Non-negative values are an actual
// observed fixed length.
const (
	// NoFixedLength means the guarded class admits no length guard, or
	// conflicting lengths were observed.
	NoFixedLength int64 = -1
	// UnknownFixedLength means no store has been observed yet.
	UnknownFixedLength int64 = -2
)

// FieldDesc describes an instance or static field together with its
// guard state. The guard state is what optimized code specializes
// against: a store that contradicts it either deoptimizes (optimized
// code) or updates the descriptor through the runtime (unoptimized
// code).
type FieldDesc struct {
	Name string
	// Offset of the field slot within the instance, un-biased.
	Offset Offset

	// GuardedClass is ClassNone until the first store, ClassDynamic
	// once contradicting classes were seen.
	GuardedClass      ClassID
	IsNullable        bool
	GuardedListLength int64

	IsFinal bool

	// DescAddr is the address of the runtime descriptor object, passed
	// to the guard-update entry from unoptimized code.
	DescAddr uintptr

	// Static fields store through an off-heap cell.
	IsStatic   bool
	StaticAddr uintptr
}

// Runtime descriptor object layout, used by the inline learning path of
// unoptimized field guards.
const (
	FieldDescGuardedClassOffset  Offset = 8
	FieldDescNullableOffset      Offset = 16
	FieldDescGuardedLengthOffset Offset = 24
)

// NewFieldDesc returns a descriptor in the pristine, nothing-observed
// state.
func NewFieldDesc(name string, offset Offset) *FieldDesc {
	return &FieldDesc{
		Name:              name,
		Offset:            offset,
		GuardedClass:      ClassNone,
		GuardedListLength: UnknownFixedLength,
	}
}

// Guarded reports whether stores to the field are constrained at all.
func (f *FieldDesc) Guarded() bool {
	return f.GuardedClass != ClassDynamic
}

// NeedsLengthGuard reports whether a concrete list length is being
// guarded in addition to the class.
func (f *FieldDesc) NeedsLengthGuard() bool {
	return f.GuardedListLength >= 0
}

// IsUnboxed reports whether values of the field are stored in unboxed
// form inside the instance. Requires a proven non-nullable numeric
// class.
func (f *FieldDesc) IsUnboxed() bool {
	if f.IsStatic || f.IsNullable || f.IsFinal {
		return false
	}
	switch f.GuardedClass {
	case ClassDouble, ClassFloat32x4, ClassFloat64x2:
		return true
	}
	return false
}

// IsPotentialUnboxed reports whether the field may be holding its value
// in unboxed form by the time unoptimized code runs: the guard is still
// learning (or has settled on a numeric class), so a load or store must
// consult the descriptor's current class and nullability at runtime and
// branch between the tagged and the in-place payload protocol.
func (f *FieldDesc) IsPotentialUnboxed() bool {
	if f.IsStatic || f.IsFinal {
		return false
	}
	switch f.GuardedClass {
	case ClassNone, ClassDouble, ClassFloat32x4, ClassFloat64x2:
		return true
	}
	return false
}

// admitsFixedLength reports whether the class carries a length worth
// guarding.
func admitsFixedLength(cid ClassID) bool {
	return cid == ClassArray || cid == ClassImmutableArray || cid.IsTypedBuffer()
}

// ObserveStore folds one observed store into the guard state and
// reports whether the state changed. This is the model both the inline
// learning path and the guard-update runtime entry implement; emission
// tests check generated sequences against it.
func (f *FieldDesc) ObserveStore(valueCid ClassID, listLength int64) (changed bool) {
	if f.GuardedClass == ClassDynamic {
		return false
	}
	if valueCid == ClassNull {
		if !f.IsNullable {
			f.IsNullable = true
			changed = true
		}
		return changed
	}
	switch f.GuardedClass {
	case ClassNone:
		f.GuardedClass = valueCid
		if admitsFixedLength(valueCid) && listLength >= 0 {
			f.GuardedListLength = listLength
		} else {
			f.GuardedListLength = NoFixedLength
		}
		return true
	case valueCid:
		if f.GuardedListLength >= 0 && f.GuardedListLength != listLength {
			f.GuardedListLength = NoFixedLength
			return true
		}
		return false
	default:
		f.GuardedClass = ClassDynamic
		f.IsNullable = true
		f.GuardedListLength = NoFixedLength
		return true
	}
}
