package arm64

import (
	"encoding/binary"
	"testing"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	goarm64 "github.com/twitchyliquid64/golang-asm/obj/arm64"

	"github.com/stretchr/testify/require"

	"github.com/driftvm/drift/internal/backend/regalloc"
)

// assembleOne runs a single three-operand instruction through the
// golang-asm assembler and returns the emitted word.
func assembleOne(t *testing.T, as obj.As, src1, src2, dst int16) uint32 {
	b, err := goasm.NewBuilder("arm64", 64)
	require.NoError(t, err)
	// The arm64 backend treats the first prog as the TEXT header and
	// skips it, so feed it a placeholder.
	text := b.NewProg()
	text.As = obj.ANOP
	b.AddInstruction(text)
	p := b.NewProg()
	p.As = as
	p.From.Type = obj.TYPE_REG
	p.From.Reg = src1
	p.Reg = src2
	p.To.Type = obj.TYPE_REG
	p.To.Reg = dst
	b.AddInstruction(p)
	code := b.Assemble()
	// The arm64 backend pads functions to 16-byte alignment; only the
	// first word is the instruction.
	require.GreaterOrEqual(t, len(code), 4)
	return binary.LittleEndian.Uint32(code)
}

// Cross-checks the raw encoders against an independent assembler for
// the register-register arithmetic forms.
func TestEncodings_againstGolangAsm(t *testing.T) {
	goReg := func(r regalloc.RealReg) int16 {
		if IsFpu(r) {
			return goarm64.REG_F0 + int16(r-V0)
		}
		return goarm64.REG_R0 + int16(r-X0)
	}

	tests := []struct {
		name string
		as   obj.As
		emit func(a *Assembler, rd, rn, rm regalloc.RealReg)
		fpu  bool
	}{
		{name: "add", as: goarm64.AADD, emit: (*Assembler).Add},
		{name: "sub", as: goarm64.ASUB, emit: (*Assembler).Sub},
		{name: "and", as: goarm64.AAND, emit: (*Assembler).And},
		{name: "orr", as: goarm64.AORR, emit: (*Assembler).Orr},
		{name: "eor", as: goarm64.AEOR, emit: (*Assembler).Eor},
		{name: "sdiv", as: goarm64.ASDIV, emit: (*Assembler).Sdiv},
		{name: "mul", as: goarm64.AMUL, emit: (*Assembler).Mul},
		{name: "lslv", as: goarm64.ALSL, emit: (*Assembler).Lslv},
		{name: "lsrv", as: goarm64.ALSR, emit: (*Assembler).Lsrv},
		{name: "asrv", as: goarm64.AASR, emit: (*Assembler).Asrv},
		{name: "fadd", as: goarm64.AFADDD, emit: (*Assembler).Fadd, fpu: true},
		{name: "fsub", as: goarm64.AFSUBD, emit: (*Assembler).Fsub, fpu: true},
		{name: "fmul", as: goarm64.AFMULD, emit: (*Assembler).Fmul, fpu: true},
		{name: "fdiv", as: goarm64.AFDIVD, emit: (*Assembler).Fdiv, fpu: true},
	}

	regs := [][3]regalloc.RealReg{
		{X0, X1, X2},
		{X3, X10, X15},
		{X20, X27, X8},
	}
	fpuRegs := [][3]regalloc.RealReg{
		{V0, V1, V2},
		{V3, V10, V30},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			triples := regs
			if tc.fpu {
				triples = fpuRegs
			}
			for _, tr := range triples {
				rd, rn, rm := tr[0], tr[1], tr[2]
				a := newTestAssembler()
				tc.emit(a, rd, rn, rm)
				got := words(a)[0]

				// Go assembler operand order: From is Rm,
				// the middle Reg is Rn.
				want := assembleOne(t, tc.as, goReg(rm), goReg(rn), goReg(rd))
				require.Equal(t, want, got, "%s rd=%s rn=%s rm=%s: got %#08x want %#08x",
					tc.name, RegName(rd), RegName(rn), RegName(rm), got, want)
			}
		})
	}
}

func TestRet_againstGolangAsm(t *testing.T) {
	b, err := goasm.NewBuilder("arm64", 64)
	require.NoError(t, err)
	text := b.NewProg()
	text.As = obj.ANOP
	b.AddInstruction(text)
	p := b.NewProg()
	p.As = obj.ARET
	// Without the preprocess pass, RET needs its link-register operand
	// spelled out.
	p.To.Type = obj.TYPE_REG
	p.To.Reg = goarm64.REG_R30
	b.AddInstruction(p)
	code := b.Assemble()
	require.GreaterOrEqual(t, len(code), 4)

	a := newTestAssembler()
	a.Ret()
	require.Equal(t, binary.LittleEndian.Uint32(code), words(a)[0])
}
