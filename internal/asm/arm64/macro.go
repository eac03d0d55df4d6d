package arm64

import (
	"github.com/driftvm/drift/internal/backend/regalloc"
	"github.com/driftvm/drift/internal/rt"
)

// Composite sequences. Every helper that may need an extra register
// takes it as an explicit scratch parameter; nothing here clobbers a
// register it was not given.

// LoadImmediate materializes imm into rd.
func (a *Assembler) LoadImmediate(rd regalloc.RealReg, imm int64) {
	u := uint64(imm)
	if u == 0 {
		a.Movz(rd, 0, 0)
		return
	}
	if n, immr, imms, ok := bitmaskImmediate(u); ok {
		a.emit(encodeLogicalRRImm(0b01, n, immr, imms, hw(rd), 31), "mov %s, #%d", RegName(rd), imm)
		return
	}
	// movn covers long runs of ones in fewer instructions.
	if negChunks(u) > zeroChunks(u) {
		inv := ^u
		if inv == 0 {
			a.Movn(rd, 0, 0)
			return
		}
		first := true
		for i := uint32(0); i < 4; i++ {
			c := uint32(inv >> (16 * i) & 0xffff)
			if c == 0 {
				continue
			}
			if first {
				a.Movn(rd, c, i)
				first = false
			} else {
				a.Movk(rd, uint32(u>>(16*i)&0xffff), i)
			}
		}
		return
	}
	first := true
	for i := uint32(0); i < 4; i++ {
		c := uint32(u >> (16 * i) & 0xffff)
		if c == 0 {
			continue
		}
		if first {
			a.Movz(rd, c, i)
			first = false
		} else {
			a.Movk(rd, c, i)
		}
	}
}

func zeroChunks(u uint64) int {
	n := 0
	for i := 0; i < 4; i++ {
		if u>>(16*i)&0xffff == 0 {
			n++
		}
	}
	return n
}

func negChunks(u uint64) int {
	n := 0
	for i := 0; i < 4; i++ {
		if u>>(16*i)&0xffff == 0xffff {
			n++
		}
	}
	return n
}

// AddImmediate computes rd = rn + imm.
func (a *Assembler) AddImmediate(rd, rn regalloc.RealReg, imm int64, scratch regalloc.RealReg) {
	a.addSubImmediate(rd, rn, imm, scratch, false)
}

// AddsImmediate computes rd = rn + imm, setting flags.
func (a *Assembler) AddsImmediate(rd, rn regalloc.RealReg, imm int64, scratch regalloc.RealReg) {
	a.addSubImmediate(rd, rn, imm, scratch, true)
}

// SubsImmediate computes rd = rn - imm, setting flags.
func (a *Assembler) SubsImmediate(rd, rn regalloc.RealReg, imm int64, scratch regalloc.RealReg) {
	a.addSubImmediate(rd, rn, -imm, scratch, true)
}

// addSubImmediate emits rd = rn + imm, choosing between the add and
// sub encodings by the sign of imm.
func (a *Assembler) addSubImmediate(rd, rn regalloc.RealReg, imm int64, scratch regalloc.RealReg, flags bool) {
	var s uint32
	if flags {
		s = 1
	}
	mn := [2][2]string{{"add", "adds"}, {"sub", "subs"}}
	if imm12, shift, ok := fitsImm12(imm); ok {
		a.emit(encodeAluRRImm12(0, s, hw(rd), hw(rn), imm12, shift), "%s %s, %s, #%d", mn[0][s], RegName(rd), RegName(rn), imm)
		return
	}
	if imm12, shift, ok := fitsImm12(-imm); ok {
		a.emit(encodeAluRRImm12(1, s, hw(rd), hw(rn), imm12, shift), "%s %s, %s, #%d", mn[1][s], RegName(rd), RegName(rn), -imm)
		return
	}
	if scratch == regalloc.RealRegInvalid || scratch == rn {
		panic("BUG: immediate needs a usable scratch register")
	}
	a.LoadImmediate(scratch, imm)
	a.emit(encodeAluRRR(0, s, hw(rd), hw(rn), hw(scratch), 0, 0), "%s %s, %s, %s", mn[0][s], RegName(rd), RegName(rn), RegName(scratch))
}

// CompareImmediate compares rn with imm.
func (a *Assembler) CompareImmediate(rn regalloc.RealReg, imm int64, scratch regalloc.RealReg) {
	if imm12, shift, ok := fitsImm12(imm); ok {
		a.emit(encodeAluRRImm12(1, 1, 31, hw(rn), imm12, shift), "cmp %s, #%d", RegName(rn), imm)
		return
	}
	if imm12, shift, ok := fitsImm12(-imm); ok {
		a.emit(encodeAluRRImm12(0, 1, 31, hw(rn), imm12, shift), "cmn %s, #%d", RegName(rn), -imm)
		return
	}
	if scratch == regalloc.RealRegInvalid || scratch == rn {
		panic("BUG: immediate needs a usable scratch register")
	}
	a.LoadImmediate(scratch, imm)
	a.Cmp(rn, scratch)
}

// TestImmediate performs tst rn, #imm.
func (a *Assembler) TestImmediate(rn regalloc.RealReg, imm int64, scratch regalloc.RealReg) {
	if n, immr, imms, ok := bitmaskImmediate(uint64(imm)); ok {
		a.emit(encodeLogicalRRImm(0b11, n, immr, imms, 31, hw(rn)), "tst %s, #%d", RegName(rn), imm)
		return
	}
	if scratch == regalloc.RealRegInvalid || scratch == rn {
		panic("BUG: immediate needs a usable scratch register")
	}
	a.LoadImmediate(scratch, imm)
	a.Tst(rn, scratch)
}

func (a *Assembler) logicalImmediate(opc uint32, mn string, rd, rn regalloc.RealReg, imm int64, scratch regalloc.RealReg) {
	if n, immr, imms, ok := bitmaskImmediate(uint64(imm)); ok {
		a.emit(encodeLogicalRRImm(opc, n, immr, imms, hw(rd), hw(rn)), "%s %s, %s, #%d", mn, RegName(rd), RegName(rn), imm)
		return
	}
	if scratch == regalloc.RealRegInvalid || scratch == rn {
		panic("BUG: immediate needs a usable scratch register")
	}
	a.LoadImmediate(scratch, imm)
	a.emit(encodeLogicalRRR(opc, 0, hw(rd), hw(rn), hw(scratch), 0, 0), "%s %s, %s, %s", mn, RegName(rd), RegName(rn), RegName(scratch))
}

// AndImmediate computes rd = rn & imm.
func (a *Assembler) AndImmediate(rd, rn regalloc.RealReg, imm int64, scratch regalloc.RealReg) {
	a.logicalImmediate(0b00, "and", rd, rn, imm, scratch)
}

// OrrImmediate computes rd = rn | imm.
func (a *Assembler) OrrImmediate(rd, rn regalloc.RealReg, imm int64, scratch regalloc.RealReg) {
	a.logicalImmediate(0b01, "orr", rd, rn, imm, scratch)
}

// EorImmediate computes rd = rn ^ imm.
func (a *Assembler) EorImmediate(rd, rn regalloc.RealReg, imm int64, scratch regalloc.RealReg) {
	a.logicalImmediate(0b10, "eor", rd, rn, imm, scratch)
}

// Tagged value helpers.

// SmiTag shifts an untagged integer into its tagged form.
func (a *Assembler) SmiTag(rd, rn regalloc.RealReg) {
	a.LslImm(rd, rn, rt.SmiTagShift)
}

// SmiUntag recovers the integer from a tagged smi.
func (a *Assembler) SmiUntag(rd, rn regalloc.RealReg) {
	a.AsrImm(rd, rn, rt.SmiTagShift)
}

// BranchIfSmi branches when reg holds a smi.
func (a *Assembler) BranchIfSmi(reg regalloc.RealReg, l Label) {
	a.Tbz(reg, 0, l)
}

// BranchIfNotSmi branches when reg holds a heap pointer.
func (a *Assembler) BranchIfNotSmi(reg regalloc.RealReg, l Label) {
	a.Tbnz(reg, 0, l)
}

// LoadClassID extracts the class id from obj's header word. obj must
// hold a heap pointer.
func (a *Assembler) LoadClassID(rd, obj regalloc.RealReg) {
	a.Load(rd, obj, -rt.HeapObjectTag, MemX, regalloc.RealRegInvalid)
	a.Ubfx(rd, rd, rt.TagsClassIDShift, rt.TagsClassIDBits)
}

// CompareClassID compares obj's class id with cid, leaving the result
// in the flags. Predefined class ids always fit the compare immediate.
func (a *Assembler) CompareClassID(obj regalloc.RealReg, cid rt.ClassID, scratch regalloc.RealReg) {
	a.LoadClassID(scratch, obj)
	a.CompareImmediate(scratch, int64(cid), regalloc.RealRegInvalid)
}

// LoadValueCid loads value's class id, treating smis as ClassSmi.
func (a *Assembler) LoadValueCid(rd, value regalloc.RealReg) {
	done := a.AllocateLabel()
	a.LoadImmediate(rd, int64(rt.ClassSmi))
	a.BranchIfSmi(value, done)
	a.LoadClassID(rd, value)
	a.Bind(done)
}

// Thread state helpers.

// LoadNull loads the null singleton.
func (a *Assembler) LoadNull(rd regalloc.RealReg) {
	a.Load(rd, THR, rt.ThreadNullOffset.I64(), MemX, regalloc.RealRegInvalid)
}

// LoadBool loads a boolean singleton.
func (a *Assembler) LoadBool(rd regalloc.RealReg, v bool) {
	off := rt.ThreadFalseOffset
	if v {
		off = rt.ThreadTrueOffset
	}
	a.Load(rd, THR, off.I64(), MemX, regalloc.RealRegInvalid)
}

// Heap stores.

// StoreIntoObjectNoBarrier stores value into [object + fieldOffset]
// when the barrier is provably unnecessary.
func (a *Assembler) StoreIntoObjectNoBarrier(object, value regalloc.RealReg, fieldOffset int64, scratch regalloc.RealReg) {
	a.Store(value, object, fieldOffset-rt.HeapObjectTag, MemX, scratch)
}

// StoreIntoObject stores value into [object + fieldOffset] and runs the
// generational write barrier when a new-space pointer lands in an old,
// not yet remembered object. Clobbers both scratch registers.
func (a *Assembler) StoreIntoObject(object, value regalloc.RealReg, fieldOffset int64, scratch1, scratch2 regalloc.RealReg) {
	a.Store(value, object, fieldOffset-rt.HeapObjectTag, MemX, scratch1)
	a.writeBarrier(object, value, scratch1, scratch2)
}

// StoreIntoObjectAt is StoreIntoObject for a slot address computed into
// a register, as indexed stores produce. slot may alias scratch2; it is
// dead once the store itself is done.
func (a *Assembler) StoreIntoObjectAt(object, value, slot regalloc.RealReg, scratch1, scratch2 regalloc.RealReg) {
	a.Store(value, slot, 0, MemX, regalloc.RealRegInvalid)
	a.writeBarrier(object, value, scratch1, scratch2)
}

func (a *Assembler) writeBarrier(object, value, scratch1, scratch2 regalloc.RealReg) {
	done := a.AllocateLabel()
	a.BranchIfSmi(value, done)
	a.Load(scratch1, value, -rt.HeapObjectTag, MemX, regalloc.RealRegInvalid)
	a.Tbz(scratch1, 0, done) // value not in new space
	a.Load(scratch1, object, -rt.HeapObjectTag, MemX, regalloc.RealRegInvalid)
	a.Tbnz(scratch1, 0, done) // object itself in new space
	a.Tbnz(scratch1, 1, done) // already remembered
	// Barrier stub convention: object in TMP, everything else
	// preserved.
	a.MovReg(TMP, object)
	a.Load(scratch2, THR, rt.ThreadWriteBarrierEntryOffset.I64(), MemX, regalloc.RealRegInvalid)
	a.Blr(scratch2)
	a.Bind(done)
}

// TryAllocate bump-allocates size bytes for an instance of cid,
// leaving the tagged result in result. Branches to fail when the new
// space is exhausted. Clobbers both scratch registers.
func (a *Assembler) TryAllocate(cid rt.ClassID, size int64, fail Label, result, scratch1, scratch2 regalloc.RealReg) {
	a.Load(result, THR, rt.ThreadTopOffset.I64(), MemX, regalloc.RealRegInvalid)
	a.AddImmediate(scratch1, result, size, regalloc.RealRegInvalid)
	a.Load(scratch2, THR, rt.ThreadEndOffset.I64(), MemX, regalloc.RealRegInvalid)
	a.Cmp(scratch1, scratch2)
	a.BCond(HI, fail)
	a.Store(scratch1, THR, rt.ThreadTopOffset.I64(), MemX, regalloc.RealRegInvalid)
	a.AddImmediate(result, result, rt.HeapObjectTag, regalloc.RealRegInvalid)
	a.LoadImmediate(scratch2, int64(rt.MakeTags(cid, size)))
	a.Store(scratch2, result, -rt.HeapObjectTag, MemX, regalloc.RealRegInvalid)
}
