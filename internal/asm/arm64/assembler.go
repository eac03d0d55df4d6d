package arm64

import (
	"fmt"

	"github.com/driftvm/drift/internal/asm"
	"github.com/driftvm/drift/internal/backend/regalloc"
)

// Label names a position in the emitted code. Labels may be branched
// to before they are bound; ResolveLabels patches every pending use
// once the whole unit, slow paths and stubs included, is emitted.
type Label uint32

// LabelInvalid is the zero Label.
const LabelInvalid Label = 0

type fixupKind byte

const (
	fixupB26 fixupKind = iota
	fixupCond19
	fixupCBZ19
	fixupTBZ14
)

type fixup struct {
	off   uint32
	label Label
	kind  fixupKind
}

// Assembler emits arm64 machine code into an asm.Buffer. When listing
// recording is on, every instruction is mirrored as a textual line,
// which is what the emission tests assert against.
type Assembler struct {
	buf asm.Buffer

	// labelPos[l-1] is the bound offset of label l, or -1.
	labelPos []int32
	fixups   []fixup

	recordListing bool
	listing       []string
}

// NewAssembler returns an assembler over buf.
func NewAssembler(buf asm.Buffer) *Assembler {
	return &Assembler{buf: buf}
}

// SetRecordListing toggles listing capture.
func (a *Assembler) SetRecordListing(on bool) { a.recordListing = on }

// Listing returns the captured lines.
func (a *Assembler) Listing() []string { return a.listing }

// Buffer returns the underlying buffer.
func (a *Assembler) Buffer() asm.Buffer { return a.buf }

// Offset returns the current emission offset in bytes.
func (a *Assembler) Offset() uint32 { return uint32(a.buf.Len()) }

func (a *Assembler) emit(w uint32, format string, args ...interface{}) {
	a.buf.WriteUint32(w)
	if a.recordListing {
		a.listing = append(a.listing, fmt.Sprintf(format, args...))
	}
}

// AllocateLabel returns a fresh unbound label.
func (a *Assembler) AllocateLabel() Label {
	a.labelPos = append(a.labelPos, -1)
	return Label(len(a.labelPos))
}

// Bind binds l to the current offset.
func (a *Assembler) Bind(l Label) {
	if a.labelPos[l-1] >= 0 {
		panic(fmt.Sprintf("BUG: label L%d bound twice", l))
	}
	a.labelPos[l-1] = int32(a.Offset())
	if a.recordListing {
		a.listing = append(a.listing, fmt.Sprintf("L%d:", l))
	}
}

// LabelOffset returns the bound offset of l.
func (a *Assembler) LabelOffset(l Label) int32 {
	off := a.labelPos[l-1]
	if off < 0 {
		panic(fmt.Sprintf("BUG: label L%d not bound", l))
	}
	return off
}

func (a *Assembler) branchTo(l Label, kind fixupKind) int32 {
	if off := a.labelPos[l-1]; off >= 0 {
		return (off - int32(a.Offset())) / 4
	}
	a.fixups = append(a.fixups, fixup{off: a.Offset(), label: l, kind: kind})
	return 0
}

// ResolveLabels patches every pending branch. Must run after all code,
// slow paths and deopt stubs are emitted.
func (a *Assembler) ResolveLabels() {
	for _, f := range a.fixups {
		target := a.labelPos[f.label-1]
		if target < 0 {
			panic(fmt.Sprintf("BUG: unresolved label L%d", f.label))
		}
		delta := int64(target) - int64(f.off)
		word := a.buf.Uint32At(int(f.off))
		imm := int32(delta / 4)
		switch f.kind {
		case fixupB26:
			checkBranchRange(delta, 26, "b")
			word |= uint32(imm & 0x3ffffff)
		case fixupCond19:
			checkBranchRange(delta, 19, "b.cond")
			word |= uint32(imm&0x7ffff) << 5
		case fixupCBZ19:
			checkBranchRange(delta, 19, "cbz")
			word |= uint32(imm&0x7ffff) << 5
		case fixupTBZ14:
			checkBranchRange(delta, 14, "tbz")
			word |= uint32(imm&0x3fff) << 5
		}
		a.buf.PatchUint32(int(f.off), word)
	}
	a.fixups = a.fixups[:0]
}

// Register arithmetic.

func (a *Assembler) Add(rd, rn, rm regalloc.RealReg) {
	a.emit(encodeAluRRR(0, 0, hw(rd), hw(rn), hw(rm), 0, 0), "add %s, %s, %s", RegName(rd), RegName(rn), RegName(rm))
}

func (a *Assembler) Adds(rd, rn, rm regalloc.RealReg) {
	a.emit(encodeAluRRR(0, 1, hw(rd), hw(rn), hw(rm), 0, 0), "adds %s, %s, %s", RegName(rd), RegName(rn), RegName(rm))
}

func (a *Assembler) Sub(rd, rn, rm regalloc.RealReg) {
	a.emit(encodeAluRRR(1, 0, hw(rd), hw(rn), hw(rm), 0, 0), "sub %s, %s, %s", RegName(rd), RegName(rn), RegName(rm))
}

func (a *Assembler) Subs(rd, rn, rm regalloc.RealReg) {
	a.emit(encodeAluRRR(1, 1, hw(rd), hw(rn), hw(rm), 0, 0), "subs %s, %s, %s", RegName(rd), RegName(rn), RegName(rm))
}

// AddShifted computes rd = rn + (rm << amount).
func (a *Assembler) AddShifted(rd, rn, rm regalloc.RealReg, amount uint32) {
	a.emit(encodeAluRRR(0, 0, hw(rd), hw(rn), hw(rm), 0, amount), "add %s, %s, %s, lsl #%d", RegName(rd), RegName(rn), RegName(rm), amount)
}

// AddShiftedLSR computes rd = rn + (rm >>> amount), logical shift.
func (a *Assembler) AddShiftedLSR(rd, rn, rm regalloc.RealReg, amount uint32) {
	a.emit(encodeAluRRR(0, 0, hw(rd), hw(rn), hw(rm), 0b01, amount), "add %s, %s, %s, lsr #%d", RegName(rd), RegName(rn), RegName(rm), amount)
}

// SubShiftedASR computes rd = rn - (rm >> amount), arithmetic shift.
func (a *Assembler) SubShiftedASR(rd, rn, rm regalloc.RealReg, amount uint32) {
	a.emit(encodeAluRRR(1, 0, hw(rd), hw(rn), hw(rm), 0b10, amount), "sub %s, %s, %s, asr #%d", RegName(rd), RegName(rn), RegName(rm), amount)
}

// CmpShiftedASR compares rn with rm >> amount.
func (a *Assembler) CmpShiftedASR(rn, rm regalloc.RealReg, amount uint32) {
	a.emit(encodeAluRRR(1, 1, 31, hw(rn), hw(rm), 0b10, amount), "cmp %s, %s, asr #%d", RegName(rn), RegName(rm), amount)
}

func (a *Assembler) Cmp(rn, rm regalloc.RealReg) {
	a.emit(encodeAluRRR(1, 1, 31, hw(rn), hw(rm), 0, 0), "cmp %s, %s", RegName(rn), RegName(rm))
}

// CmpSP compares the stack pointer with rm, using the extended
// register form since register 31 means SP only there.
func (a *Assembler) CmpSP(rm regalloc.RealReg) {
	a.emit(1<<31|1<<30|1<<29|0b01011<<24|1<<21|hw(rm)<<16|0b011<<13|31<<5|31, "cmp sp, %s", RegName(rm))
}

// Neg computes rd = -rm.
func (a *Assembler) Neg(rd, rm regalloc.RealReg) {
	a.emit(encodeAluRRR(1, 0, hw(rd), 31, hw(rm), 0, 0), "neg %s, %s", RegName(rd), RegName(rm))
}

// Negs computes rd = -rm, setting flags.
func (a *Assembler) Negs(rd, rm regalloc.RealReg) {
	a.emit(encodeAluRRR(1, 1, hw(rd), 31, hw(rm), 0, 0), "negs %s, %s", RegName(rd), RegName(rm))
}

func (a *Assembler) And(rd, rn, rm regalloc.RealReg) {
	a.emit(encodeLogicalRRR(0b00, 0, hw(rd), hw(rn), hw(rm), 0, 0), "and %s, %s, %s", RegName(rd), RegName(rn), RegName(rm))
}

func (a *Assembler) Orr(rd, rn, rm regalloc.RealReg) {
	a.emit(encodeLogicalRRR(0b01, 0, hw(rd), hw(rn), hw(rm), 0, 0), "orr %s, %s, %s", RegName(rd), RegName(rn), RegName(rm))
}

func (a *Assembler) Eor(rd, rn, rm regalloc.RealReg) {
	a.emit(encodeLogicalRRR(0b10, 0, hw(rd), hw(rn), hw(rm), 0, 0), "eor %s, %s, %s", RegName(rd), RegName(rn), RegName(rm))
}

func (a *Assembler) Tst(rn, rm regalloc.RealReg) {
	a.emit(encodeLogicalRRR(0b11, 0, 31, hw(rn), hw(rm), 0, 0), "tst %s, %s", RegName(rn), RegName(rm))
}

// Mvn computes rd = ^rm.
func (a *Assembler) Mvn(rd, rm regalloc.RealReg) {
	a.emit(encodeLogicalRRR(0b01, 1, hw(rd), 31, hw(rm), 0, 0), "mvn %s, %s", RegName(rd), RegName(rm))
}

// MovReg copies rm to rd.
func (a *Assembler) MovReg(rd, rm regalloc.RealReg) {
	a.emit(encodeLogicalRRR(0b01, 0, hw(rd), 31, hw(rm), 0, 0), "mov %s, %s", RegName(rd), RegName(rm))
}

func (a *Assembler) Mul(rd, rn, rm regalloc.RealReg) {
	a.emit(encodeMAdd(hw(rd), hw(rn), hw(rm), 31), "mul %s, %s, %s", RegName(rd), RegName(rn), RegName(rm))
}

func (a *Assembler) SmulH(rd, rn, rm regalloc.RealReg) {
	a.emit(encodeSMulH(hw(rd), hw(rn), hw(rm)), "smulh %s, %s, %s", RegName(rd), RegName(rn), RegName(rm))
}

func (a *Assembler) Sdiv(rd, rn, rm regalloc.RealReg) {
	a.emit(encodeDataProc2(dp2SDIV, hw(rd), hw(rn), hw(rm)), "sdiv %s, %s, %s", RegName(rd), RegName(rn), RegName(rm))
}

// Msub computes rd = ra - rn*rm.
func (a *Assembler) Msub(rd, rn, rm, ra regalloc.RealReg) {
	a.emit(encodeMAdd(hw(rd), hw(rn), hw(rm), hw(ra))|1<<15, "msub %s, %s, %s, %s", RegName(rd), RegName(rn), RegName(rm), RegName(ra))
}

func (a *Assembler) Lslv(rd, rn, rm regalloc.RealReg) {
	a.emit(encodeDataProc2(dp2LSLV, hw(rd), hw(rn), hw(rm)), "lslv %s, %s, %s", RegName(rd), RegName(rn), RegName(rm))
}

func (a *Assembler) Lsrv(rd, rn, rm regalloc.RealReg) {
	a.emit(encodeDataProc2(dp2LSRV, hw(rd), hw(rn), hw(rm)), "lsrv %s, %s, %s", RegName(rd), RegName(rn), RegName(rm))
}

func (a *Assembler) Asrv(rd, rn, rm regalloc.RealReg) {
	a.emit(encodeDataProc2(dp2ASRV, hw(rd), hw(rn), hw(rm)), "asrv %s, %s, %s", RegName(rd), RegName(rn), RegName(rm))
}

// Immediate shifts, via the bitfield group.

func (a *Assembler) LslImm(rd, rn regalloc.RealReg, shift uint32) {
	if shift == 0 {
		a.MovReg(rd, rn)
		return
	}
	a.emit(encodeBitfield(0b10, hw(rd), hw(rn), (64-shift)%64, 63-shift), "lsl %s, %s, #%d", RegName(rd), RegName(rn), shift)
}

func (a *Assembler) LsrImm(rd, rn regalloc.RealReg, shift uint32) {
	a.emit(encodeBitfield(0b10, hw(rd), hw(rn), shift, 63), "lsr %s, %s, #%d", RegName(rd), RegName(rn), shift)
}

func (a *Assembler) AsrImm(rd, rn regalloc.RealReg, shift uint32) {
	a.emit(encodeBitfield(0b00, hw(rd), hw(rn), shift, 63), "asr %s, %s, #%d", RegName(rd), RegName(rn), shift)
}

// Ubfx extracts width bits starting at lsb, zero-extended.
func (a *Assembler) Ubfx(rd, rn regalloc.RealReg, lsb, width uint32) {
	a.emit(encodeBitfield(0b10, hw(rd), hw(rn), lsb, lsb+width-1), "ubfx %s, %s, #%d, #%d", RegName(rd), RegName(rn), lsb, width)
}

// Conditional select.

func (a *Assembler) Csel(rd, rn, rm regalloc.RealReg, c Cond) {
	a.emit(encodeCondSelect(0b00, hw(rd), hw(rn), hw(rm), c), "csel %s, %s, %s, %s", RegName(rd), RegName(rn), RegName(rm), c)
}

func (a *Assembler) Csinc(rd, rn, rm regalloc.RealReg, c Cond) {
	a.emit(encodeCondSelect(0b01, hw(rd), hw(rn), hw(rm), c), "csinc %s, %s, %s, %s", RegName(rd), RegName(rn), RegName(rm), c)
}

// Cset sets rd to 1 when c holds, else 0.
func (a *Assembler) Cset(rd regalloc.RealReg, c Cond) {
	a.emit(encodeCondSelect(0b01, hw(rd), 31, 31, c.Invert()), "cset %s, %s", RegName(rd), c)
}

// Move wide.

func (a *Assembler) Movz(rd regalloc.RealReg, imm16 uint32, shift16 uint32) {
	a.emit(encodeMoveWide(0b10, hw(rd), imm16, shift16), "movz %s, #%d, lsl #%d", RegName(rd), imm16, shift16*16)
}

func (a *Assembler) Movk(rd regalloc.RealReg, imm16 uint32, shift16 uint32) {
	a.emit(encodeMoveWide(0b11, hw(rd), imm16, shift16), "movk %s, #%d, lsl #%d", RegName(rd), imm16, shift16*16)
}

func (a *Assembler) Movn(rd regalloc.RealReg, imm16 uint32, shift16 uint32) {
	a.emit(encodeMoveWide(0b00, hw(rd), imm16, shift16), "movn %s, #%d, lsl #%d", RegName(rd), imm16, shift16*16)
}

// Branches.

func (a *Assembler) B(l Label) {
	imm := a.branchTo(l, fixupB26)
	a.emit(encodeBranch(0, imm), "b L%d", l)
}

func (a *Assembler) BCond(c Cond, l Label) {
	imm := a.branchTo(l, fixupCond19)
	a.emit(encodeCondBranch(c, imm), "b.%s L%d", c, l)
}

func (a *Assembler) Cbz(rt regalloc.RealReg, l Label) {
	imm := a.branchTo(l, fixupCBZ19)
	a.emit(encodeCBZ(0, hw(rt), imm), "cbz %s, L%d", RegName(rt), l)
}

func (a *Assembler) Cbnz(rt regalloc.RealReg, l Label) {
	imm := a.branchTo(l, fixupCBZ19)
	a.emit(encodeCBZ(1, hw(rt), imm), "cbnz %s, L%d", RegName(rt), l)
}

func (a *Assembler) Tbz(rt regalloc.RealReg, bit uint32, l Label) {
	imm := a.branchTo(l, fixupTBZ14)
	a.emit(encodeTBZ(0, hw(rt), bit, imm), "tbz %s, #%d, L%d", RegName(rt), bit, l)
}

func (a *Assembler) Tbnz(rt regalloc.RealReg, bit uint32, l Label) {
	imm := a.branchTo(l, fixupTBZ14)
	a.emit(encodeTBZ(1, hw(rt), bit, imm), "tbnz %s, #%d, L%d", RegName(rt), bit, l)
}

func (a *Assembler) Blr(rn regalloc.RealReg) {
	a.emit(encodeBranchReg(brOpBLR, hw(rn)), "blr %s", RegName(rn))
}

func (a *Assembler) Br(rn regalloc.RealReg) {
	a.emit(encodeBranchReg(brOpBR, hw(rn)), "br %s", RegName(rn))
}

func (a *Assembler) Ret() {
	a.emit(encodeBranchReg(brOpRET, 30), "ret")
}

func (a *Assembler) Brk(imm16 uint32) {
	a.emit(encodeBrk(imm16), "brk #%d", imm16)
}

func (a *Assembler) Nop() {
	a.emit(0xD503201F, "nop")
}

// Floating point, scalar double unless stated otherwise.

func (a *Assembler) Fadd(rd, rn, rm regalloc.RealReg) {
	a.emit(encodeFpuRRR(fpADD, hw(rd), hw(rn), hw(rm)), "fadd %s, %s, %s", RegName(rd), RegName(rn), RegName(rm))
}

func (a *Assembler) Fsub(rd, rn, rm regalloc.RealReg) {
	a.emit(encodeFpuRRR(fpSUB, hw(rd), hw(rn), hw(rm)), "fsub %s, %s, %s", RegName(rd), RegName(rn), RegName(rm))
}

func (a *Assembler) Fmul(rd, rn, rm regalloc.RealReg) {
	a.emit(encodeFpuRRR(fpMUL, hw(rd), hw(rn), hw(rm)), "fmul %s, %s, %s", RegName(rd), RegName(rn), RegName(rm))
}

func (a *Assembler) Fdiv(rd, rn, rm regalloc.RealReg) {
	a.emit(encodeFpuRRR(fpDIV, hw(rd), hw(rn), hw(rm)), "fdiv %s, %s, %s", RegName(rd), RegName(rn), RegName(rm))
}

func (a *Assembler) Fcmp(rn, rm regalloc.RealReg) {
	a.emit(encodeFpuCmp(hw(rn), hw(rm), 0), "fcmp %s, %s", RegName(rn), RegName(rm))
}

func (a *Assembler) FcmpZero(rn regalloc.RealReg) {
	a.emit(encodeFpuCmp(hw(rn), 0, 1), "fcmp %s, #0.0", RegName(rn))
}

func (a *Assembler) Fneg(rd, rn regalloc.RealReg) {
	a.emit(encodeFpuUnary(fpuNEG, hw(rd), hw(rn)), "fneg %s, %s", RegName(rd), RegName(rn))
}

func (a *Assembler) Fabs(rd, rn regalloc.RealReg) {
	a.emit(encodeFpuUnary(fpuABS, hw(rd), hw(rn)), "fabs %s, %s", RegName(rd), RegName(rn))
}

func (a *Assembler) Fsqrt(rd, rn regalloc.RealReg) {
	a.emit(encodeFpuUnary(fpuSQRT, hw(rd), hw(rn)), "fsqrt %s, %s", RegName(rd), RegName(rn))
}

func (a *Assembler) Fmovdd(rd, rn regalloc.RealReg) {
	a.emit(encodeFpuUnary(fpuMOV, hw(rd), hw(rn)), "fmov %s, %s", RegName(rd), RegName(rn))
}

// FmovFromGeneral moves an integer register's bits into a double
// register.
func (a *Assembler) FmovFromGeneral(rd, rn regalloc.RealReg) {
	a.emit(encodeFpuIntConv(0b00, convFMOVtoF, hw(rd), hw(rn)), "fmov %s, %s", RegName(rd), RegName(rn))
}

// FmovToGeneral moves a double register's bits into an integer
// register.
func (a *Assembler) FmovToGeneral(rd, rn regalloc.RealReg) {
	a.emit(encodeFpuIntConv(0b00, convFMOVtoG, hw(rd), hw(rn)), "fmov %s, %s", RegName(rd), RegName(rn))
}

// Scvtf converts a signed integer to double.
func (a *Assembler) Scvtf(rd, rn regalloc.RealReg) {
	a.emit(encodeFpuIntConv(0b00, convSCVTF, hw(rd), hw(rn)), "scvtf %s, %s", RegName(rd), RegName(rn))
}

// Fcvtzs converts a double to a signed integer, truncating toward
// zero.
func (a *Assembler) Fcvtzs(rd, rn regalloc.RealReg) {
	a.emit(encodeFpuIntConv(0b11, convFCVTZS, hw(rd), hw(rn)), "fcvtzs %s, %s", RegName(rd), RegName(rn))
}

// FcvtDtoS narrows double to single.
func (a *Assembler) FcvtDtoS(rd, rn regalloc.RealReg) {
	a.emit(0x1E624000|hw(rn)<<5|hw(rd), "fcvt %s, %s", fpName(rd, 4), fpName(rn, 8))
}

// FcvtStoD widens single to double.
func (a *Assembler) FcvtStoD(rd, rn regalloc.RealReg) {
	a.emit(0x1E22C000|hw(rn)<<5|hw(rd), "fcvt %s, %s", fpName(rd, 8), fpName(rn, 4))
}

// Floating point, lane-wise over the full quad register.

// VecArrangement selects the lane layout of a vector operation.
type VecArrangement byte

const (
	Vec4S VecArrangement = iota
	Vec2D
)

func vecName(r regalloc.RealReg, arr VecArrangement) string {
	if arr == Vec2D {
		return fmt.Sprintf("v%d.2d", r-V0)
	}
	return fmt.Sprintf("v%d.4s", r-V0)
}

// fvecRRR emits from the three-same vector floating point group. base
// is the 4S form; sz flips the lanes to 2D.
func (a *Assembler) fvecRRR(base uint32, rd, rn, rm regalloc.RealReg, arr VecArrangement, name string) {
	enc := base
	if arr == Vec2D {
		enc |= 1 << 22
	}
	a.emit(enc|hw(rm)<<16|hw(rn)<<5|hw(rd), "%s %s, %s, %s", name, vecName(rd, arr), vecName(rn, arr), vecName(rm, arr))
}

func (a *Assembler) FaddVec(rd, rn, rm regalloc.RealReg, arr VecArrangement) {
	a.fvecRRR(0x4E20D400, rd, rn, rm, arr, "fadd")
}

func (a *Assembler) FsubVec(rd, rn, rm regalloc.RealReg, arr VecArrangement) {
	a.fvecRRR(0x4EA0D400, rd, rn, rm, arr, "fsub")
}

func (a *Assembler) FmulVec(rd, rn, rm regalloc.RealReg, arr VecArrangement) {
	a.fvecRRR(0x6E20DC00, rd, rn, rm, arr, "fmul")
}

func (a *Assembler) FdivVec(rd, rn, rm regalloc.RealReg, arr VecArrangement) {
	a.fvecRRR(0x6E20FC00, rd, rn, rm, arr, "fdiv")
}
