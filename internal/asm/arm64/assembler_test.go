package arm64

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftvm/drift/internal/asm"
)

func newTestAssembler() *Assembler {
	return NewAssembler(asm.NewBuffer())
}

func words(a *Assembler) []uint32 {
	b := a.Buffer().Bytes()
	ws := make([]uint32, len(b)/4)
	for i := range ws {
		ws[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return ws
}

// The expected words below were checked against an independent
// disassembler.
func TestAssembler_encodings(t *testing.T) {
	tests := []struct {
		name string
		emit func(a *Assembler)
		want uint32
	}{
		{name: "add x0, x1, x2", emit: func(a *Assembler) { a.Add(X0, X1, X2) }, want: 0x8b020020},
		{name: "adds x0, x1, x2", emit: func(a *Assembler) { a.Adds(X0, X1, X2) }, want: 0xab020020},
		{name: "sub x3, x4, x5", emit: func(a *Assembler) { a.Sub(X3, X4, X5) }, want: 0xcb050083},
		{name: "subs x3, x4, x5", emit: func(a *Assembler) { a.Subs(X3, X4, X5) }, want: 0xeb050083},
		{name: "cmp x0, x1", emit: func(a *Assembler) { a.Cmp(X0, X1) }, want: 0xeb01001f},
		{name: "and x0, x1, x2", emit: func(a *Assembler) { a.And(X0, X1, X2) }, want: 0x8a020020},
		{name: "orr x0, x1, x2", emit: func(a *Assembler) { a.Orr(X0, X1, X2) }, want: 0xaa020020},
		{name: "eor x0, x1, x2", emit: func(a *Assembler) { a.Eor(X0, X1, X2) }, want: 0xca020020},
		{name: "tst x1, x2", emit: func(a *Assembler) { a.Tst(X1, X2) }, want: 0xea02003f},
		{name: "mov x3, x4", emit: func(a *Assembler) { a.MovReg(X3, X4) }, want: 0xaa0403e3},
		{name: "neg x0, x1", emit: func(a *Assembler) { a.Neg(X0, X1) }, want: 0xcb0103e0},
		{name: "mul x0, x1, x2", emit: func(a *Assembler) { a.Mul(X0, X1, X2) }, want: 0x9b027c20},
		{name: "smulh x0, x1, x2", emit: func(a *Assembler) { a.SmulH(X0, X1, X2) }, want: 0x9b427c20},
		{name: "sdiv x0, x1, x2", emit: func(a *Assembler) { a.Sdiv(X0, X1, X2) }, want: 0x9ac20c20},
		{name: "msub x0, x1, x2, x3", emit: func(a *Assembler) { a.Msub(X0, X1, X2, X3) }, want: 0x9b028c20},
		{name: "lslv x0, x1, x2", emit: func(a *Assembler) { a.Lslv(X0, X1, X2) }, want: 0x9ac22020},
		{name: "lsrv x0, x1, x2", emit: func(a *Assembler) { a.Lsrv(X0, X1, X2) }, want: 0x9ac22420},
		{name: "asrv x0, x1, x2", emit: func(a *Assembler) { a.Asrv(X0, X1, X2) }, want: 0x9ac22820},
		{name: "lsl x0, x1, #1", emit: func(a *Assembler) { a.LslImm(X0, X1, 1) }, want: 0xd37ff820},
		{name: "lsr x0, x1, #1", emit: func(a *Assembler) { a.LsrImm(X0, X1, 1) }, want: 0xd341fc20},
		{name: "asr x0, x1, #1", emit: func(a *Assembler) { a.AsrImm(X0, X1, 1) }, want: 0x9341fc20},
		{name: "ubfx x0, x1, #16, #16", emit: func(a *Assembler) { a.Ubfx(X0, X1, 16, 16) }, want: 0xd3507c20},
		{name: "csel x0, x1, x2, eq", emit: func(a *Assembler) { a.Csel(X0, X1, X2, EQ) }, want: 0x9a820020},
		{name: "csinc x0, x1, x2, ne", emit: func(a *Assembler) { a.Csinc(X0, X1, X2, NE) }, want: 0x9a821420},
		{name: "cset x0, lt", emit: func(a *Assembler) { a.Cset(X0, LT) }, want: 0x9a9fa7e0},
		{name: "movz x0, #1", emit: func(a *Assembler) { a.Movz(X0, 1, 0) }, want: 0xd2800020},
		{name: "movk x0, #1, lsl #16", emit: func(a *Assembler) { a.Movk(X0, 1, 1) }, want: 0xf2a00020},
		{name: "movn x0, #0", emit: func(a *Assembler) { a.Movn(X0, 0, 0) }, want: 0x92800000},
		{name: "blr x8", emit: func(a *Assembler) { a.Blr(X8) }, want: 0xd63f0100},
		{name: "br x8", emit: func(a *Assembler) { a.Br(X8) }, want: 0xd61f0100},
		{name: "ret", emit: func(a *Assembler) { a.Ret() }, want: 0xd65f03c0},
		{name: "brk #0", emit: func(a *Assembler) { a.Brk(0) }, want: 0xd4200000},
		{name: "nop", emit: func(a *Assembler) { a.Nop() }, want: 0xd503201f},
		{name: "ldr x0, [x1, #8]", emit: func(a *Assembler) { a.Load(X0, X1, 8, MemX, TMP) }, want: 0xf9400420},
		{name: "str x0, [x1]", emit: func(a *Assembler) { a.Store(X0, X1, 0, MemX, TMP) }, want: 0xf9000020},
		{name: "ldrb w2, [x3]", emit: func(a *Assembler) { a.Load(X2, X3, 0, MemB, TMP) }, want: 0x39400062},
		{name: "ldur x0, [x1, #-1]", emit: func(a *Assembler) { a.Load(X0, X1, -1, MemX, TMP) }, want: 0xf85ff020},
		{name: "ldr d0, [x1, #8]", emit: func(a *Assembler) { a.Load(V0, X1, 8, MemD, TMP) }, want: 0xfd400420},
		{name: "fadd d0, d1, d2", emit: func(a *Assembler) { a.Fadd(V0, V1, V2) }, want: 0x1e622820},
		{name: "fsub d0, d1, d2", emit: func(a *Assembler) { a.Fsub(V0, V1, V2) }, want: 0x1e623820},
		{name: "fmul d0, d1, d2", emit: func(a *Assembler) { a.Fmul(V0, V1, V2) }, want: 0x1e620820},
		{name: "fdiv d0, d1, d2", emit: func(a *Assembler) { a.Fdiv(V0, V1, V2) }, want: 0x1e621820},
		{name: "fcmp d0, d1", emit: func(a *Assembler) { a.Fcmp(V0, V1) }, want: 0x1e612000},
		{name: "fcmp d3, #0.0", emit: func(a *Assembler) { a.FcmpZero(V3) }, want: 0x1e602068},
		{name: "fneg d0, d1", emit: func(a *Assembler) { a.Fneg(V0, V1) }, want: 0x1e614020},
		{name: "fabs d0, d1", emit: func(a *Assembler) { a.Fabs(V0, V1) }, want: 0x1e60c020},
		{name: "fmov d0, x1", emit: func(a *Assembler) { a.FmovFromGeneral(V0, X1) }, want: 0x9e670020},
		{name: "fmov x0, d1", emit: func(a *Assembler) { a.FmovToGeneral(X0, V1) }, want: 0x9e660020},
		{name: "scvtf d0, x1", emit: func(a *Assembler) { a.Scvtf(V0, X1) }, want: 0x9e620020},
		{name: "fcvtzs x0, d1", emit: func(a *Assembler) { a.Fcvtzs(X0, V1) }, want: 0x9e780020},
		{name: "fcvt s0, d1", emit: func(a *Assembler) { a.FcvtDtoS(V0, V1) }, want: 0x1e624020},
		{name: "fcvt d0, s1", emit: func(a *Assembler) { a.FcvtStoD(V0, V1) }, want: 0x1e22c020},
		{name: "fsqrt d0, d1", emit: func(a *Assembler) { a.Fsqrt(V0, V1) }, want: 0x1e61c020},
		{name: "fadd v0.4s, v1.4s, v2.4s", emit: func(a *Assembler) { a.FaddVec(V0, V1, V2, Vec4S) }, want: 0x4e22d420},
		{name: "fadd v0.2d, v1.2d, v2.2d", emit: func(a *Assembler) { a.FaddVec(V0, V1, V2, Vec2D) }, want: 0x4e62d420},
		{name: "fsub v0.4s, v1.4s, v2.4s", emit: func(a *Assembler) { a.FsubVec(V0, V1, V2, Vec4S) }, want: 0x4ea2d420},
		{name: "fsub v0.2d, v1.2d, v2.2d", emit: func(a *Assembler) { a.FsubVec(V0, V1, V2, Vec2D) }, want: 0x4ee2d420},
		{name: "fmul v0.4s, v1.4s, v2.4s", emit: func(a *Assembler) { a.FmulVec(V0, V1, V2, Vec4S) }, want: 0x6e22dc20},
		{name: "fmul v0.2d, v1.2d, v2.2d", emit: func(a *Assembler) { a.FmulVec(V0, V1, V2, Vec2D) }, want: 0x6e62dc20},
		{name: "fdiv v0.4s, v1.4s, v2.4s", emit: func(a *Assembler) { a.FdivVec(V0, V1, V2, Vec4S) }, want: 0x6e22fc20},
		{name: "fdiv v0.2d, v1.2d, v2.2d", emit: func(a *Assembler) { a.FdivVec(V0, V1, V2, Vec2D) }, want: 0x6e62fc20},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := newTestAssembler()
			tc.emit(a)
			ws := words(a)
			require.Len(t, ws, 1)
			require.Equal(t, tc.want, ws[0], "got %#08x want %#08x", ws[0], tc.want)
		})
	}
}

func TestAssembler_backwardBranch(t *testing.T) {
	a := newTestAssembler()
	top := a.AllocateLabel()
	a.Bind(top)
	a.Nop()
	a.B(top) // offset -4, imm26 = -1
	a.ResolveLabels()

	ws := words(a)
	require.Equal(t, uint32(0x17ffffff), ws[1])
}

func TestAssembler_forwardBranches(t *testing.T) {
	a := newTestAssembler()
	done := a.AllocateLabel()
	a.B(done)
	a.BCond(EQ, done)
	a.Cbz(X0, done)
	a.Cbnz(X1, done)
	a.Tbz(X2, 0, done)
	a.Tbnz(X3, 63, done)
	a.Nop()
	a.Bind(done)
	a.Ret()
	a.ResolveLabels()

	ws := words(a)
	// Each branch targets offset 28, so the word deltas count down
	// from 7.
	require.Equal(t, uint32(0x14000007), ws[0]) // b
	require.Equal(t, uint32(0x540000c0), ws[1]) // b.eq, imm19=6
	require.Equal(t, uint32(0xb40000a0), ws[2]) // cbz x0, imm19=5
	require.Equal(t, uint32(0xb5000081), ws[3]) // cbnz x1, imm19=4
	require.Equal(t, uint32(0x36000062), ws[4]) // tbz x2, #0, imm14=3
	require.Equal(t, uint32(0xb7f80043), ws[5]) // tbnz x3, #63, imm14=2
	require.Equal(t, int32(28), a.LabelOffset(done))
}

func TestAssembler_labelMisuse(t *testing.T) {
	a := newTestAssembler()
	l := a.AllocateLabel()
	a.Bind(l)
	require.Panics(t, func() { a.Bind(l) })

	unbound := a.AllocateLabel()
	require.Panics(t, func() { a.LabelOffset(unbound) })

	a.B(unbound)
	require.Panics(t, func() { a.ResolveLabels() })
}

func TestAssembler_listing(t *testing.T) {
	a := newTestAssembler()
	a.SetRecordListing(true)
	l := a.AllocateLabel()
	a.Cbz(X0, l)
	a.Add(X0, X0, X1)
	a.Bind(l)
	a.Ret()
	a.ResolveLabels()

	require.Equal(t, []string{
		"cbz x0, L1",
		"add x0, x0, x1",
		"L1:",
		"ret",
	}, a.Listing())
}

func TestAssembler_pushPop(t *testing.T) {
	a := newTestAssembler()
	a.Push(X0)
	a.Pop(X1)

	ws := words(a)
	require.Equal(t, uint32(0xf81f0fe0), ws[0]) // str x0, [sp, #-16]!
	require.Equal(t, uint32(0xf84107e1), ws[1]) // ldr x1, [sp], #16
}
