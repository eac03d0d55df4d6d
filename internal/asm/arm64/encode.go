package arm64

import (
	"fmt"
	"math/bits"
)

// Raw 32-bit instruction words. Each encoder mirrors one format of the
// arm64 ISA; see the linked sections of the Arm Architecture Reference
// Manual supplement at https://developer.arm.com/documentation/ddi0596.

// encodeAluRRR encodes "ADD/ADDS/SUB/SUBS (shifted register)" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/ADD--shifted-register-
func encodeAluRRR(op, s, rd, rn, rm, shift, amount uint32) uint32 {
	return 1<<31 | op<<30 | s<<29 | 0b01011<<24 | shift<<22 | rm<<16 | amount<<10 | rn<<5 | rd
}

// encodeLogicalRRR encodes "AND/ORR/EOR/ANDS (shifted register)" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/AND--shifted-register-
func encodeLogicalRRR(opc, n, rd, rn, rm, shift, amount uint32) uint32 {
	return 1<<31 | opc<<29 | 0b01010<<24 | shift<<22 | n<<21 | rm<<16 | amount<<10 | rn<<5 | rd
}

// encodeAluRRImm12 encodes "ADD/SUB (immediate)" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/ADD--immediate-
func encodeAluRRImm12(op, s, rd, rn, imm12, shift uint32) uint32 {
	return 1<<31 | op<<30 | s<<29 | 0b10001<<24 | shift<<22 | (imm12&0xfff)<<10 | rn<<5 | rd
}

// encodeLogicalRRImm encodes "AND/ORR/EOR/ANDS (immediate)" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/AND--immediate-
func encodeLogicalRRImm(opc, n, immr, imms, rd, rn uint32) uint32 {
	return 1<<31 | opc<<29 | 0b100100<<23 | n<<22 | immr<<16 | imms<<10 | rn<<5 | rd
}

// encodeMoveWide encodes "MOVZ/MOVN/MOVK" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/MOVZ--Move-wide-with-zero-
func encodeMoveWide(opc, rd, imm16, hw uint32) uint32 {
	return 1<<31 | opc<<29 | 0b100101<<23 | hw<<21 | (imm16&0xffff)<<5 | rd
}

// encodeMAdd encodes "MADD" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/MADD--Multiply-Add-
func encodeMAdd(rd, rn, rm, ra uint32) uint32 {
	return 1<<31 | 0b0011011<<24 | rm<<16 | ra<<10 | rn<<5 | rd
}

// encodeSMulH encodes "SMULH" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/SMULH--Signed-Multiply-High-
func encodeSMulH(rd, rn, rm uint32) uint32 {
	return 0x9B400000 | rm<<16 | 0b11111<<10 | rn<<5 | rd
}

// encodeDataProc2 encodes the two-source group "SDIV/LSLV/LSRV/ASRV" as
// in https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/SDIV--Signed-Divide-
func encodeDataProc2(opcode, rd, rn, rm uint32) uint32 {
	return 0x9AC00000 | rm<<16 | opcode<<10 | rn<<5 | rd
}

const (
	dp2SDIV = 0b000011
	dp2LSLV = 0b001000
	dp2LSRV = 0b001001
	dp2ASRV = 0b001010
)

// encodeBitfield encodes "SBFM/BFM/UBFM" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/UBFM--Unsigned-Bitfield-Move-
func encodeBitfield(opc, rd, rn, immr, imms uint32) uint32 {
	return 1<<31 | opc<<29 | 0b100110<<23 | 1<<22 | immr<<16 | imms<<10 | rn<<5 | rd
}

// encodeCondSelect encodes "CSEL/CSINC" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/CSEL--Conditional-Select-
func encodeCondSelect(op2, rd, rn, rm uint32, c Cond) uint32 {
	return 0x9A800000 | rm<<16 | uint32(c)<<12 | op2<<10 | rn<<5 | rd
}

// encodeCondBranch encodes "B.cond" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/B-cond--Branch-conditionally-
func encodeCondBranch(c Cond, imm19 int32) uint32 {
	return 0x54000000 | uint32(imm19&0x7ffff)<<5 | uint32(c)
}

// encodeBranch encodes "B/BL" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/B--Branch-
func encodeBranch(link uint32, imm26 int32) uint32 {
	return link<<31 | 0b000101<<26 | uint32(imm26&0x3ffffff)
}

// encodeCBZ encodes "CBZ/CBNZ" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/CBZ--Compare-and-Branch-on-Zero-
func encodeCBZ(nonZero, rt uint32, imm19 int32) uint32 {
	return 1<<31 | 0b011010<<25 | nonZero<<24 | uint32(imm19&0x7ffff)<<5 | rt
}

// encodeTBZ encodes "TBZ/TBNZ" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/TBZ--Test-bit-and-Branch-if-Zero-
func encodeTBZ(nonZero, rt, bit uint32, imm14 int32) uint32 {
	return (bit>>5)<<31 | 0b011011<<25 | nonZero<<24 | (bit&0x1f)<<19 | uint32(imm14&0x3fff)<<5 | rt
}

// encodeBranchReg encodes "BR/BLR/RET" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/BLR--Branch-with-Link-to-Register-
func encodeBranchReg(opc, rn uint32) uint32 {
	return 0b1101011<<25 | opc<<21 | 0b11111<<16 | rn<<5
}

const (
	brOpBR  = 0b0000
	brOpBLR = 0b0001
	brOpRET = 0b0010
)

// encodeLoadStoreImm12 encodes "LDR/STR (immediate, unsigned offset)"
// as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/LDR--immediate-
func encodeLoadStoreImm12(size, v, opc, rt, rn, imm12 uint32) uint32 {
	return size<<30 | 0b111<<27 | v<<26 | 0b01<<24 | opc<<22 | imm12<<10 | rn<<5 | rt
}

// encodeLoadStoreImm9 encodes "LDUR/STUR (unscaled)" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/LDUR--Load-Register--unscaled--
func encodeLoadStoreImm9(size, v, opc, rt, rn uint32, imm9 int32) uint32 {
	return size<<30 | 0b111<<27 | v<<26 | opc<<22 | uint32(imm9&0x1ff)<<12 | rn<<5 | rt
}

// encodeLoadStoreRegOffset encodes "LDR/STR (register offset)" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/LDR--register-
func encodeLoadStoreRegOffset(size, v, opc, rt, rn, rm, s uint32) uint32 {
	// option 011 is LSL (UXTX).
	return size<<30 | 0b111<<27 | v<<26 | opc<<22 | 1<<21 | rm<<16 | 0b011<<13 | s<<12 | 0b10<<10 | rn<<5 | rt
}

// encodeFpuRRR encodes the scalar double-precision arithmetic group
// "FADD/FSUB/FMUL/FDIV/FMAX/FMIN (scalar)" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/SIMD-FP-Instructions/FADD--scalar--
func encodeFpuRRR(opcode, rd, rn, rm uint32) uint32 {
	return 0b00011110011<<21 | rm<<16 | opcode<<12 | 0b10<<10 | rn<<5 | rd
}

const (
	fpMUL = 0b0000
	fpDIV = 0b0001
	fpADD = 0b0010
	fpSUB = 0b0011
	fpMAX = 0b0100
	fpMIN = 0b0101
)

// encodeFpuCmp encodes "FCMP (scalar, double)" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/SIMD-FP-Instructions/FCMP--Floating-point-quiet-Compare--scalar--
func encodeFpuCmp(rn, rm, opc uint32) uint32 {
	return 0b00011110011<<21 | rm<<16 | 0b1000<<10 | rn<<5 | opc<<3
}

// encodeFpuUnary encodes the single-source group "FMOV/FNEG/FABS/FSQRT
// (scalar, double)" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/SIMD-FP-Instructions/FNEG--scalar--
func encodeFpuUnary(opcode, rd, rn uint32) uint32 {
	return 0b00011110011<<21 | opcode<<15 | 0b10000<<10 | rn<<5 | rd
}

const (
	fpuMOV  = 0b000000
	fpuABS  = 0b000001
	fpuNEG  = 0b000010
	fpuSQRT = 0b000011
	// fcvt d -> s
	fpuCVTS = 0b000100
)

// encodeFpuIntConv encodes the "FMOV/SCVTF/FCVTZS (between integer and
// double)" group as in
// https://developer.arm.com/documentation/ddi0596/2020-12/SIMD-FP-Instructions/FMOV--general--
func encodeFpuIntConv(rmode, opcode, rd, rn uint32) uint32 {
	return 1<<31 | 0b0011110011<<21 | rmode<<19 | opcode<<16 | rn<<5 | rd
}

const (
	convSCVTF   = 0b010 // rmode 00
	convFCVTZS  = 0b000 // rmode 11
	convFMOVtoG = 0b110
	convFMOVtoF = 0b111
)

// encodeBrk encodes "BRK" as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/BRK--Breakpoint-instruction-
func encodeBrk(imm16 uint32) uint32 {
	return 0xD4200000 | imm16<<5
}

// bitmaskImmediate encodes v as a logical (bitmask) immediate, the
// N:immr:imms form consumed by the logical-immediate instructions.
func bitmaskImmediate(v uint64) (n, immr, imms uint32, ok bool) {
	if v == 0 || v == ^uint64(0) {
		return 0, 0, 0, false
	}
	size := uint32(64)
	for size > 2 {
		half := size / 2
		mask := uint64(1)<<half - 1
		if v&mask != v>>half&mask {
			break
		}
		size = half
		v &= mask
	}
	mask := uint64(1)<<size - 1
	if size == 64 {
		mask = ^uint64(0)
	}
	elem := v & mask
	ones := uint32(bits.OnesCount64(elem))
	if ones == 0 || ones == size {
		return 0, 0, 0, false
	}
	low := uint64(1)<<ones - 1
	ror := func(x uint64, r uint32) uint64 {
		if r == 0 {
			return x
		}
		return (x>>r | x<<(size-r)) & mask
	}
	for r := uint32(0); r < size; r++ {
		if ror(low, r) == elem {
			immr = r
			if size == 64 {
				n = 1
				imms = ones - 1
			} else {
				imms = (^(size*2 - 1) & 0x3f) | (ones - 1)
			}
			return n, immr, imms, true
		}
	}
	return 0, 0, 0, false
}

// fitsImm12 reports whether v is encodable as an add/sub immediate,
// optionally shifted by 12.
func fitsImm12(v int64) (imm12, shift uint32, ok bool) {
	if v >= 0 && v < 1<<12 {
		return uint32(v), 0, true
	}
	if v >= 0 && v&0xfff == 0 && v < 1<<24 {
		return uint32(v >> 12), 1, true
	}
	return 0, 0, false
}

func checkBranchRange(delta int64, bitsWide int, what string) {
	limit := int64(1) << (bitsWide + 1) // delta is in bytes, imm counts words
	if delta >= limit || delta < -limit {
		panic(fmt.Sprintf("BUG: %s target out of range: %d bytes", what, delta))
	}
}
