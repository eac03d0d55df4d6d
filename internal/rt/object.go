package rt

import "fmt"

// Offset is a byte offset into a heap object or the thread state block.
type Offset int32

// I64 returns the offset as int64, the form the assembler consumes.
func (o Offset) I64() int64 { return int64(o) }

// U32 returns the offset as uint32.
func (o Offset) U32() uint32 { return uint32(o) }

const (
	WordSize     = 8
	WordSizeLog2 = 3

	// Heap pointers are biased by one so that bit zero distinguishes
	// them from smis. Field offsets below are un-biased; emission
	// subtracts HeapObjectTag when addressing through a tagged pointer.
	HeapObjectTag = 1

	HeaderSize = WordSize
)

// Header word layout. The class id lives in the upper half so the GC
// bits and the size class stay in one load for the barrier fast path.
const (
	TagsClassIDShift = 16
	TagsClassIDBits  = 16

	// TagsNewBit is set on objects residing in new space.
	TagsNewBit = 1 << 0
	// TagsRememberedBit is set on old objects already in the store
	// buffer, so the write barrier can skip re-adding them.
	TagsRememberedBit = 1 << 1
)

// MakeTags builds the header word written by inline allocation.
func MakeTags(cid ClassID, sizeInBytes int64) uint64 {
	return uint64(cid)<<TagsClassIDShift | uint64(sizeInBytes)<<2&0xfffc | TagsNewBit
}

// Fixed object layouts. Offsets are un-biased; see HeapObjectTag.
const (
	ArrayLengthOffset   Offset = 8
	ArrayTypeArgsOffset Offset = 16
	ArrayDataOffset     Offset = 24

	TypedBufLengthOffset Offset = 8
	TypedBufDataOffset   Offset = 16

	// External buffers keep a raw pointer to off-heap storage instead
	// of interior data.
	ExtBufLengthOffset   Offset = 8
	ExtBufDataAddrOffset Offset = 16

	StringLengthOffset Offset = 8
	StringDataOffset   Offset = 16

	DoubleValueOffset    Offset = 8
	Float32x4ValueOffset Offset = 8
	Float64x2ValueOffset Offset = 8

	GrowableArrayLengthOffset  Offset = 8
	GrowableArrayBackingOffset Offset = 16

	ContextNumVarsOffset Offset = 8
	ContextParentOffset  Offset = 16
	contextVarsOffset    Offset = 24

	ClosureFunctionOffset Offset = 8
	ClosureContextOffset  Offset = 16

	FunctionEntryPointOffset Offset = 16
)

// ContextVariableOffset returns the offset of the i-th context slot.
func ContextVariableOffset(i int) Offset {
	return contextVarsOffset + Offset(i*WordSize)
}

// DataOffsetFor returns the offset of the first element of an indexable
// object. External buffers address through the raw data pointer, so the
// offset is zero there and the pointer load happens separately.
func DataOffsetFor(cid ClassID) Offset {
	switch {
	case cid == ClassArray || cid == ClassImmutableArray:
		return ArrayDataOffset
	case cid == ClassString:
		return StringDataOffset
	case cid.IsExternalBuffer():
		return 0
	case cid.IsTypedBuffer():
		return TypedBufDataOffset
	}
	panic(fmt.Sprintf("BUG: DataOffsetFor(%s)", cid))
}

// LengthOffsetFor returns the offset of the length slot of any
// container that supports bounds and length guards. Arrays, strings and
// typed buffers all answer here so guard emission has a single path.
func LengthOffsetFor(cid ClassID) Offset {
	switch {
	case cid == ClassArray || cid == ClassImmutableArray:
		return ArrayLengthOffset
	case cid == ClassGrowableArray:
		return GrowableArrayLengthOffset
	case cid == ClassString:
		return StringLengthOffset
	case cid.IsExternalBuffer():
		return ExtBufLengthOffset
	case cid.IsTypedBuffer():
		return TypedBufLengthOffset
	}
	panic(fmt.Sprintf("BUG: LengthOffsetFor(%s)", cid))
}

// BoxSizeFor returns the allocation size of the box object for an
// unboxed representation's class.
func BoxSizeFor(cid ClassID) int64 {
	switch cid {
	case ClassDouble:
		return HeaderSize + 8
	case ClassFloat32x4, ClassFloat64x2, ClassInt32x4:
		return HeaderSize + 16
	}
	panic(fmt.Sprintf("BUG: BoxSizeFor(%s)", cid))
}

// Thread state block layout. Generated code keeps the thread pointer in
// a pinned register and reaches runtime state exclusively through these
// slots, so emitted code carries no absolute runtime addresses.
const (
	ThreadStackLimitOffset        Offset = 8
	ThreadTopOffset               Offset = 16
	ThreadEndOffset               Offset = 24
	ThreadNullOffset              Offset = 32
	ThreadTrueOffset              Offset = 40
	ThreadFalseOffset             Offset = 48
	ThreadWriteBarrierEntryOffset Offset = 56
	ThreadDeoptEntryOffset        Offset = 64
	threadRuntimeEntriesOffset    Offset = 72
)

// ThreadEntryOffset returns the thread slot holding the native address
// of the given runtime entry.
func ThreadEntryOffset(e RuntimeEntry) Offset {
	return threadRuntimeEntriesOffset + Offset(int(e)*WordSize)
}
