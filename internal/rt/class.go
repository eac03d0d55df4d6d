package rt

import "fmt"

// ClassID identifies the runtime class of a heap object. Smis carry a
// pseudo class id so that class-based dispatch can treat them uniformly
// with heap classes.
type ClassID uint32

const (
	ClassIllegal ClassID = iota
	ClassObject
	ClassNull
	ClassBool
	ClassSmi
	ClassDouble
	ClassString
	ClassClosure
	ClassContext
	ClassTypeArguments
	ClassArray
	ClassImmutableArray
	ClassGrowableArray
	ClassFloat32x4
	ClassInt32x4
	ClassFloat64x2

	// Typed buffers with on-heap backing stores.
	ClassBufInt8
	ClassBufUint8
	ClassBufUint8Clamped
	ClassBufInt16
	ClassBufUint16
	ClassBufInt32
	ClassBufUint32
	ClassBufInt64
	ClassBufFloat32
	ClassBufFloat64
	ClassBufFloat32x4
	ClassBufFloat64x2

	// Typed buffers whose backing store lives outside the heap. Same
	// element kinds as above, but the data pointer is the first word of
	// the header rather than an interior offset.
	ClassExtInt8
	ClassExtUint8
	ClassExtUint8Clamped
	ClassExtInt16
	ClassExtUint16
	ClassExtInt32
	ClassExtUint32
	ClassExtInt64
	ClassExtFloat32
	ClassExtFloat64
	ClassExtFloat32x4
	ClassExtFloat64x2

	NumPredefinedClasses

	// ClassDynamic marks an unguarded field or an unknown receiver.
	ClassDynamic ClassID = 0xffff
	// ClassNone marks a field no store has been observed for yet.
	ClassNone ClassID = 0xfffe
)

// IsTypedBuffer reports whether cid is a typed buffer class, internal
// or external.
func (cid ClassID) IsTypedBuffer() bool {
	return cid >= ClassBufInt8 && cid <= ClassExtFloat64x2
}

// IsExternalBuffer reports whether cid's backing store lives outside
// the heap.
func (cid ClassID) IsExternalBuffer() bool {
	return cid >= ClassExtInt8 && cid <= ClassExtFloat64x2
}

// IsIndexable reports whether cid supports indexed loads and stores.
func (cid ClassID) IsIndexable() bool {
	switch cid {
	case ClassArray, ClassImmutableArray, ClassString:
		return true
	}
	return cid.IsTypedBuffer()
}

// ElementSizeLog2 returns log2 of the element size in bytes for an
// indexable class.
func (cid ClassID) ElementSizeLog2() int {
	switch cid {
	case ClassBufInt8, ClassBufUint8, ClassBufUint8Clamped,
		ClassExtInt8, ClassExtUint8, ClassExtUint8Clamped:
		return 0
	case ClassBufInt16, ClassBufUint16, ClassExtInt16, ClassExtUint16, ClassString:
		return 1
	case ClassBufInt32, ClassBufUint32, ClassBufFloat32,
		ClassExtInt32, ClassExtUint32, ClassExtFloat32:
		return 2
	case ClassBufInt64, ClassBufFloat64, ClassExtInt64, ClassExtFloat64,
		ClassArray, ClassImmutableArray:
		return 3
	case ClassBufFloat32x4, ClassBufFloat64x2, ClassExtFloat32x4, ClassExtFloat64x2:
		return 4
	}
	panic(fmt.Sprintf("BUG: ElementSizeLog2 on non-indexable class %s", cid))
}

// String implements fmt.Stringer.
func (cid ClassID) String() string {
	switch cid {
	case ClassIllegal:
		return "illegal"
	case ClassObject:
		return "object"
	case ClassNull:
		return "null"
	case ClassBool:
		return "bool"
	case ClassSmi:
		return "smi"
	case ClassDouble:
		return "double"
	case ClassString:
		return "string"
	case ClassClosure:
		return "closure"
	case ClassContext:
		return "context"
	case ClassTypeArguments:
		return "type_args"
	case ClassArray:
		return "array"
	case ClassImmutableArray:
		return "immutable_array"
	case ClassGrowableArray:
		return "growable_array"
	case ClassFloat32x4:
		return "float32x4"
	case ClassInt32x4:
		return "int32x4"
	case ClassFloat64x2:
		return "float64x2"
	case ClassDynamic:
		return "dynamic"
	case ClassNone:
		return "none"
	default:
		if cid.IsTypedBuffer() {
			return fmt.Sprintf("buf%d", uint32(cid))
		}
		return fmt.Sprintf("cid%d", uint32(cid))
	}
}
