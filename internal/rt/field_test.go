package rt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFieldGuardLearnsFirstStore(t *testing.T) {
	f := NewFieldDesc("x", 16)
	require.Equal(t, ClassNone, f.GuardedClass)

	changed := f.ObserveStore(ClassSmi, NoFixedLength)
	require.True(t, changed)
	require.Equal(t, ClassSmi, f.GuardedClass)
	require.False(t, f.IsNullable)

	// Same class again: stable.
	require.False(t, f.ObserveStore(ClassSmi, NoFixedLength))
}

func TestFieldGuardContradictionGoesDynamic(t *testing.T) {
	f := NewFieldDesc("x", 16)
	f.ObserveStore(ClassSmi, NoFixedLength)

	changed := f.ObserveStore(ClassDouble, NoFixedLength)
	require.True(t, changed)
	require.Equal(t, ClassDynamic, f.GuardedClass)
	require.True(t, f.IsNullable)
	require.False(t, f.Guarded())

	// Dynamic is terminal.
	require.False(t, f.ObserveStore(ClassBool, NoFixedLength))
}

func TestFieldGuardNullOnlyWidensNullability(t *testing.T) {
	f := NewFieldDesc("x", 16)
	f.ObserveStore(ClassDouble, NoFixedLength)

	changed := f.ObserveStore(ClassNull, NoFixedLength)
	require.True(t, changed)
	require.Equal(t, ClassDouble, f.GuardedClass)
	require.True(t, f.IsNullable)

	require.False(t, f.ObserveStore(ClassNull, NoFixedLength))
}

func TestFieldGuardListLength(t *testing.T) {
	f := NewFieldDesc("buf", 24)
	f.ObserveStore(ClassBufFloat64, 8)
	require.Equal(t, int64(8), f.GuardedListLength)
	require.True(t, f.NeedsLengthGuard())

	// Same length: no change.
	require.False(t, f.ObserveStore(ClassBufFloat64, 8))

	// Different length drops the length guard, keeps the class.
	require.True(t, f.ObserveStore(ClassBufFloat64, 9))
	require.Equal(t, NoFixedLength, f.GuardedListLength)
	require.Equal(t, ClassBufFloat64, f.GuardedClass)
	require.False(t, f.NeedsLengthGuard())
}

func TestFieldUnboxedRequiresNonNullableNumeric(t *testing.T) {
	f := NewFieldDesc("d", 8)
	f.ObserveStore(ClassDouble, NoFixedLength)
	require.True(t, f.IsUnboxed())

	f.ObserveStore(ClassNull, NoFixedLength)
	require.False(t, f.IsUnboxed())

	g := NewFieldDesc("s", 8)
	g.ObserveStore(ClassSmi, NoFixedLength)
	require.False(t, g.IsUnboxed())
}

func TestContainerLengthOffsetsAgree(t *testing.T) {
	// Arrays and typed buffers share one length lookup path.
	require.Equal(t, ArrayLengthOffset, LengthOffsetFor(ClassArray))
	require.Equal(t, TypedBufLengthOffset, LengthOffsetFor(ClassBufUint8))
	require.Equal(t, ExtBufLengthOffset, LengthOffsetFor(ClassExtUint8))
	require.Equal(t, StringLengthOffset, LengthOffsetFor(ClassString))
	require.Panics(t, func() { LengthOffsetFor(ClassDouble) })
}

func TestDataOffsetFor(t *testing.T) {
	require.Equal(t, ArrayDataOffset, DataOffsetFor(ClassArray))
	require.Equal(t, TypedBufDataOffset, DataOffsetFor(ClassBufInt32))
	// External buffers address through the raw pointer directly.
	require.Equal(t, Offset(0), DataOffsetFor(ClassExtInt32))
}
