// Package asm provides the byte buffer native code is emitted into and
// the executable memory segment it is published to.
package asm

import (
	"encoding/binary"
	"unsafe"
)

var zero [16]byte

// CodeSegment is a growable region where native instructions are
// written. A segment backed by Map holds memory the garbage collector
// does not manage; callers must release it with Unmap. The zero value
// is a valid empty segment backed by ordinary heap memory, which is
// what tests and listing-only compilations use.
type CodeSegment struct {
	code   []byte
	size   int
	mapped bool
}

// NewCodeSegment constructs a heap-backed segment over code.
func NewCodeSegment(code []byte) *CodeSegment {
	return &CodeSegment{code: code, size: len(code)}
}

// Addr returns the address of the beginning of the segment.
func (seg *CodeSegment) Addr() uintptr {
	if len(seg.code) > 0 {
		return uintptr(unsafe.Pointer(&seg.code[0]))
	}
	return 0
}

// Len returns the number of bytes written to the segment.
func (seg *CodeSegment) Len() int { return seg.size }

// Bytes returns the written part of the segment. The slice remains
// valid until the next write or Unmap.
func (seg *CodeSegment) Bytes() []byte { return seg.code[:seg.size] }

// Next returns a buffer positioned at the end of the segment, aligned
// to a 16 byte boundary, for the next unit's code.
func (seg *CodeSegment) Next() Buffer {
	seg.write(zero[:(16-seg.size&15)&15])
	return Buffer{seg: seg, off: seg.size}
}

func (seg *CodeSegment) append(n int) []byte {
	i := seg.size
	j := seg.size + n
	if j > len(seg.code) {
		seg.grow(n)
	}
	seg.size = j
	return seg.code[i:j:j]
}

func (seg *CodeSegment) write(b []byte) {
	copy(seg.append(len(b)), b)
}

func (seg *CodeSegment) writeUint32(u uint32) {
	seg.size += 4
	if seg.size > len(seg.code) {
		seg.grow(0)
	}
	binary.LittleEndian.PutUint32(seg.code[seg.size-4:seg.size], u)
}

func (seg *CodeSegment) grow(n int) {
	size := len(seg.code)
	want := seg.size + n
	if size >= want {
		return
	}
	if size == 0 {
		size = 65536
	}
	for size < want {
		size *= 2
	}
	if !seg.mapped {
		b := make([]byte, size)
		copy(b, seg.code)
		seg.code = b
		return
	}
	b, err := remapCode(seg.code, size)
	if err != nil {
		// Growing only fails when the process is out of address
		// space; treat like any other allocation failure.
		panic(err)
	}
	seg.code = b
}

// Buffer is a view at the tail of a code segment where one unit's
// instructions are written. Buffers are passed by value but share the
// underlying segment.
type Buffer struct {
	seg *CodeSegment
	off int
}

// NewBuffer returns a buffer over a fresh heap-backed segment.
func NewBuffer() Buffer {
	return Buffer{seg: &CodeSegment{}}
}

// Len returns the number of bytes written through this buffer.
func (buf Buffer) Len() int { return buf.seg.size - buf.off }

// Bytes returns the bytes written through this buffer.
func (buf Buffer) Bytes() []byte {
	i := buf.off
	j := buf.seg.size
	return buf.seg.code[i:j:j]
}

// Reset drops everything written through this buffer.
func (buf Buffer) Reset() { buf.seg.size = buf.off }

// Append reserves n bytes and returns them for writing.
func (buf Buffer) Append(n int) []byte { return buf.seg.append(n) }

// Write implements io.Writer.
func (buf Buffer) Write(b []byte) (int, error) {
	buf.seg.write(b)
	return len(b), nil
}

// WriteUint32 appends one little-endian 32-bit word, the unit of arm64
// instruction encoding.
func (buf Buffer) WriteUint32(u uint32) { buf.seg.writeUint32(u) }

// Uint32At reads back the word at byte offset off, for fix-up passes.
func (buf Buffer) Uint32At(off int) uint32 {
	return binary.LittleEndian.Uint32(buf.seg.code[buf.off+off:])
}

// PatchUint32 overwrites the word at byte offset off.
func (buf Buffer) PatchUint32(off int, u uint32) {
	binary.LittleEndian.PutUint32(buf.seg.code[buf.off+off:], u)
}
