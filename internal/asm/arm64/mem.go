package arm64

import (
	"fmt"

	"github.com/driftvm/drift/internal/backend/regalloc"
)

// MemKind selects the access width and extension of a load or store.
type MemKind byte

const (
	MemB MemKind = iota
	MemSB
	MemH
	MemSH
	MemW
	MemSW
	MemX
	MemS
	MemD
	MemQ

	numMemKinds
)

type memKindInfo struct {
	size, v        uint32
	ldOpc, stOpc   uint32
	scaleLog2      uint32
	ldName, stName string
	fpSize         int
}

var memKinds = [numMemKinds]memKindInfo{
	MemB:  {size: 0b00, ldOpc: 0b01, stOpc: 0b00, scaleLog2: 0, ldName: "ldrb", stName: "strb"},
	MemSB: {size: 0b00, ldOpc: 0b10, stOpc: 0b00, scaleLog2: 0, ldName: "ldrsb", stName: "strb"},
	MemH:  {size: 0b01, ldOpc: 0b01, stOpc: 0b00, scaleLog2: 1, ldName: "ldrh", stName: "strh"},
	MemSH: {size: 0b01, ldOpc: 0b10, stOpc: 0b00, scaleLog2: 1, ldName: "ldrsh", stName: "strh"},
	MemW:  {size: 0b10, ldOpc: 0b01, stOpc: 0b00, scaleLog2: 2, ldName: "ldr", stName: "str"},
	MemSW: {size: 0b10, ldOpc: 0b10, stOpc: 0b00, scaleLog2: 2, ldName: "ldrsw", stName: "str"},
	MemX:  {size: 0b11, ldOpc: 0b01, stOpc: 0b00, scaleLog2: 3, ldName: "ldr", stName: "str"},
	MemS:  {size: 0b10, v: 1, ldOpc: 0b01, stOpc: 0b00, scaleLog2: 2, ldName: "ldr", stName: "str", fpSize: 4},
	MemD:  {size: 0b11, v: 1, ldOpc: 0b01, stOpc: 0b00, scaleLog2: 3, ldName: "ldr", stName: "str", fpSize: 8},
	MemQ:  {size: 0b00, v: 1, ldOpc: 0b11, stOpc: 0b10, scaleLog2: 4, ldName: "ldr", stName: "str", fpSize: 16},
}

func (k MemKind) rtName(rt regalloc.RealReg, load bool) string {
	info := memKinds[k]
	if info.fpSize != 0 {
		return fpName(rt, info.fpSize)
	}
	switch k {
	case MemW:
		return fmt.Sprintf("w%d", rt-X0)
	case MemB, MemH:
		if rt == XZR {
			return "wzr"
		}
		return fmt.Sprintf("w%d", rt-X0)
	case MemSB, MemSH, MemSW:
		// Only the loads sign-extend into an x register; the stores
		// are plain sub-word stores of a w register.
		if !load {
			if rt == XZR {
				return "wzr"
			}
			return fmt.Sprintf("w%d", rt-X0)
		}
	}
	return RegName(rt)
}

// Load loads [rn + off] into rt. Offsets outside the immediate forms
// are materialized through scratch, which must differ from rn.
func (a *Assembler) Load(rt, rn regalloc.RealReg, off int64, k MemKind, scratch regalloc.RealReg) {
	a.mem(rt, rn, off, k, scratch, true)
}

// Store stores rt to [rn + off].
func (a *Assembler) Store(rt, rn regalloc.RealReg, off int64, k MemKind, scratch regalloc.RealReg) {
	a.mem(rt, rn, off, k, scratch, false)
}

func (a *Assembler) mem(rt, rn regalloc.RealReg, off int64, k MemKind, scratch regalloc.RealReg, load bool) {
	info := memKinds[k]
	opc, name := info.stOpc, info.stName
	if load {
		opc, name = info.ldOpc, info.ldName
	}
	scale := int64(1) << info.scaleLog2
	if off >= 0 && off%scale == 0 && off/scale < 1<<12 {
		a.emit(encodeLoadStoreImm12(info.size, info.v, opc, hw(rt), hw(rn), uint32(off/scale)),
			"%s %s, [%s, #%d]", name, k.rtName(rt, load), RegName(rn), off)
		return
	}
	if off >= -256 && off < 256 {
		uname := "ldur"
		if !load {
			uname = "stur"
		}
		switch k {
		case MemSB:
			uname = "ldursb"
		case MemSH:
			uname = "ldursh"
		case MemSW:
			uname = "ldursw"
		case MemB:
			if !load {
				uname = "sturb"
			} else {
				uname = "ldurb"
			}
		case MemH:
			if !load {
				uname = "sturh"
			} else {
				uname = "ldurh"
			}
		}
		a.emit(encodeLoadStoreImm9(info.size, info.v, opc, hw(rt), hw(rn), int32(off)),
			"%s %s, [%s, #%d]", uname, k.rtName(rt, load), RegName(rn), off)
		return
	}
	if scratch == rn || scratch == regalloc.RealRegInvalid {
		panic("BUG: memory offset needs a usable scratch register")
	}
	a.AddImmediate(scratch, rn, off, scratch)
	a.mem(rt, scratch, 0, k, regalloc.RealRegInvalid, load)
}

// LoadRegOffset loads [rn + (rm << shift)] into rt. shift must be zero
// or the access scale.
func (a *Assembler) LoadRegOffset(rt, rn, rm regalloc.RealReg, shifted bool, k MemKind) {
	a.memRegOffset(rt, rn, rm, shifted, k, true)
}

// StoreRegOffset stores rt to [rn + (rm << shift)].
func (a *Assembler) StoreRegOffset(rt, rn, rm regalloc.RealReg, shifted bool, k MemKind) {
	a.memRegOffset(rt, rn, rm, shifted, k, false)
}

func (a *Assembler) memRegOffset(rt, rn, rm regalloc.RealReg, shifted bool, k MemKind, load bool) {
	info := memKinds[k]
	opc, name := info.stOpc, info.stName
	if load {
		opc, name = info.ldOpc, info.ldName
	}
	var s uint32
	if shifted {
		s = 1
	}
	if shifted && info.scaleLog2 == 0 {
		panic("BUG: byte access cannot shift the index")
	}
	if shifted {
		a.emit(encodeLoadStoreRegOffset(info.size, info.v, opc, hw(rt), hw(rn), hw(rm), s),
			"%s %s, [%s, %s, lsl #%d]", name, k.rtName(rt, load), RegName(rn), RegName(rm), info.scaleLog2)
	} else {
		a.emit(encodeLoadStoreRegOffset(info.size, info.v, opc, hw(rt), hw(rn), hw(rm), s),
			"%s %s, [%s, %s]", name, k.rtName(rt, load), RegName(rn), RegName(rm))
	}
}

// Push stores rt at [sp, #-16]!. Stack slots are a full 16 bytes: the
// architectural stack pointer must stay 16-byte aligned at every
// SP-relative access, so single pushes pay the padding instead of
// leaving SP misaligned.
func (a *Assembler) Push(rt regalloc.RealReg) {
	k, v, size, opc := "str", uint32(0), uint32(0b11), uint32(0b00)
	name := RegName(rt)
	if IsFpu(rt) {
		v = 1
		name = fpName(rt, 8)
	}
	a.emit(encodeLoadStoreImm9(size, v, opc, hw(rt), 31, -16)|0b11<<10,
		"%s %s, [sp, #-16]!", k, name)
}

// Pop loads rt from [sp], #16, undoing one Push.
func (a *Assembler) Pop(rt regalloc.RealReg) {
	k, v, size, opc := "ldr", uint32(0), uint32(0b11), uint32(0b01)
	name := RegName(rt)
	if IsFpu(rt) {
		v = 1
		name = fpName(rt, 8)
	}
	a.emit(encodeLoadStoreImm9(size, v, opc, hw(rt), 31, 16)|0b01<<10,
		"%s %s, [sp], #16", k, name)
}
