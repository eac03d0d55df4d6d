package arm64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftvm/drift/internal/backend"
	"github.com/driftvm/drift/internal/ir"
	"github.com/driftvm/drift/internal/rt"
)

// binarySmi builds a one-block unit around a single binary smi op.
func binarySmi(op ir.Op, deopt bool) *ir.Function {
	fn := ir.NewFunction("smiop")
	b0 := fn.NewBlock()
	left := fn.NewValue(ir.RepTagged)
	right := fn.NewValue(ir.RepTagged)
	out := fn.NewValue(ir.RepTagged)
	id := ir.DeoptIDNone
	if deopt {
		id = fn.NextDeoptID()
	}
	fn.Append(b0, fn.AllocateInstr().AsBinarySmiOp(op, left, right, id, out))
	return fn
}

func TestSmiAddOverflowGuard(t *testing.T) {
	lst, meta := compileFn(t, binarySmi(ir.OpAdd, true), backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{
		"L1:",
		"adds x3, x1, x2",
		"b.vs L2",
		"L2:",
		"mov x16, #1",
		"ldr x17, [x26, #64]",
		"br x17",
	}, lst)
	require.Len(t, meta.DeoptStubs, 1)
	require.Equal(t, rt.DeoptBinarySmiOp, meta.DeoptStubs[0].Reason)
}

func TestSmiAddTruncating(t *testing.T) {
	lst, meta := compileFn(t, binarySmi(ir.OpAdd, false), backend.CompileConfig{})
	require.Equal(t, []string{
		"L1:",
		"add x3, x1, x2",
	}, lst)
	require.Empty(t, meta.DeoptStubs)
}

func TestSmiAddMarkedTruncatingSkipsGuard(t *testing.T) {
	fn := ir.NewFunction("smiop")
	b0 := fn.NewBlock()
	left := fn.NewValue(ir.RepTagged)
	right := fn.NewValue(ir.RepTagged)
	out := fn.NewValue(ir.RepTagged)
	add := fn.AllocateInstr().AsBinarySmiOp(ir.OpAdd, left, right, fn.NextDeoptID(), out)
	add.MarkTruncating()
	fn.Append(b0, add)

	// Only the low bits are observed downstream, so the wrap is fine
	// and the guard drops out even with a deopt id attached.
	lst, meta := compileFn(t, fn, backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{
		"L1:",
		"add x3, x1, x2",
	}, lst)
	require.Empty(t, meta.DeoptStubs)
}

func TestSmiSubOverflowGuard(t *testing.T) {
	lst, _ := compileFn(t, binarySmi(ir.OpSub, true), backend.CompileConfig{Optimizing: true})
	require.Equal(t, "subs x3, x1, x2", lst[1])
	require.Equal(t, "b.vs L2", lst[2])
}

func TestSmiAddConstant(t *testing.T) {
	fn := ir.NewFunction("addc")
	b0 := fn.NewBlock()
	left := fn.NewValue(ir.RepTagged)
	right := fn.SmiConstant(b0, 100)
	out := fn.NewValue(ir.RepTagged)
	fn.Append(b0, fn.AllocateInstr().AsBinarySmiOp(ir.OpAdd, left, right, fn.NextDeoptID(), out))

	lst, _ := compileFn(t, fn, backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{
		"L1:",
		"movz x1, #200, lsl #0",
		"adds x3, x2, #200",
		"b.vs L2",
		"L2:",
		"mov x16, #1",
		"ldr x17, [x26, #64]",
		"br x17",
	}, lst)
}

func TestSmiMulKeepsProductTagged(t *testing.T) {
	lst, _ := compileFn(t, binarySmi(ir.OpMul, true), backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{
		"L1:",
		"asr x16, x1, #1",
		"mul x17, x16, x2",
		"smulh x16, x16, x2",
		"cmp x16, x17, asr #63",
		"b.ne L2",
		"mov x3, x17",
		"L2:",
		"mov x16, #1",
		"ldr x17, [x26, #64]",
		"br x17",
	}, lst)
}

func TestSmiTruncDivGuardsZeroAndOverflow(t *testing.T) {
	lst, _ := compileFn(t, binarySmi(ir.OpTruncDiv, true), backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{
		"L1:",
		"cbz x2, L2",
		"asr x16, x1, #1",
		"asr x17, x2, #1",
		"sdiv x3, x16, x17",
		"mov x16, #4611686018427387904",
		"cmp x3, x16",
		"b.eq L2",
		"lsl x3, x3, #1",
		"L2:",
		"mov x16, #1",
		"ldr x17, [x26, #64]",
		"br x17",
	}, lst)
}

func TestSmiModMatchesDividendSign(t *testing.T) {
	lst, _ := compileFn(t, binarySmi(ir.OpMod, true), backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{
		"L1:",
		"cbz x2, L2",
		"asr x16, x1, #1",
		"asr x17, x2, #1",
		"sdiv x3, x16, x17",
		"msub x3, x3, x17, x16",
		"cmp x3, #0",
		"b.ge L3",
		"cmp x17, #0",
		"sub x16, x3, x17",
		"add x3, x3, x17",
		"csel x3, x16, x3, lt",
		"L3:",
		"lsl x3, x3, #1",
		"L2:",
		"mov x16, #1",
		"ldr x17, [x26, #64]",
		"br x17",
	}, lst)
}

func TestSmiShlByRegisterGuard(t *testing.T) {
	lst, _ := compileFn(t, binarySmi(ir.OpShl, true), backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{
		"L1:",
		"cmp x2, #126",
		"b.hi L2",
		"asr x16, x2, #1",
		"lslv x17, x1, x16",
		"asrv x16, x17, x16",
		"cmp x16, x1",
		"b.ne L2",
		"mov x3, x17",
		"L2:",
		"mov x16, #1",
		"ldr x17, [x26, #64]",
		"br x17",
	}, lst)
}

func TestSmiShrByRegisterSaturates(t *testing.T) {
	lst, meta := compileFn(t, binarySmi(ir.OpShr, false), backend.CompileConfig{})
	require.Equal(t, []string{
		"L1:",
		"asr x16, x2, #1",
		"mov x17, #63",
		"cmp x16, x17",
		"csel x16, x17, x16, gt",
		"asr x17, x1, #1",
		"asrv x17, x17, x16",
		"lsl x3, x17, #1",
	}, lst)
	require.Empty(t, meta.DeoptStubs)
}

func TestSmiShrByConstant(t *testing.T) {
	fn := ir.NewFunction("shrc")
	b0 := fn.NewBlock()
	left := fn.NewValue(ir.RepTagged)
	right := fn.SmiConstant(b0, 2)
	out := fn.NewValue(ir.RepTagged)
	fn.Append(b0, fn.AllocateInstr().AsBinarySmiOp(ir.OpShr, left, right, ir.DeoptIDNone, out))

	lst, _ := compileFn(t, fn, backend.CompileConfig{})
	// The tagged word shifts by count+1, untagging on the way.
	require.Equal(t, []string{
		"L1:",
		"mov x1, #4",
		"asr x16, x2, #3",
		"lsl x3, x16, #1",
	}, lst)
}

func TestSmiDivByPowerOfTwo(t *testing.T) {
	fn := ir.NewFunction("divc")
	b0 := fn.NewBlock()
	left := fn.NewValue(ir.RepTagged)
	right := fn.SmiConstant(b0, 4)
	out := fn.NewValue(ir.RepTagged)
	fn.Append(b0, fn.AllocateInstr().AsBinarySmiOp(ir.OpTruncDiv, left, right, ir.DeoptIDNone, out))

	lst, _ := compileFn(t, fn, backend.CompileConfig{})
	// Negative dividends are biased by divisor-1 so the arithmetic
	// shift rounds toward zero.
	require.Equal(t, []string{
		"L1:",
		"mov x1, #8",
		"asr x16, x2, #63",
		"add x16, x2, x16, lsr #61",
		"asr x3, x16, #3",
		"lsl x3, x3, #1",
	}, lst)
}

func TestSmiNegOverflowGuard(t *testing.T) {
	fn := ir.NewFunction("neg")
	b0 := fn.NewBlock()
	v := fn.NewValue(ir.RepTagged)
	out := fn.NewValue(ir.RepTagged)
	fn.Append(b0, fn.AllocateInstr().AsUnarySmiOp(ir.OpNeg, v, fn.NextDeoptID(), out))

	lst, meta := compileFn(t, fn, backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{
		"L1:",
		"negs x2, x1",
		"b.vs L2",
		"L2:",
		"mov x16, #2",
		"ldr x17, [x26, #64]",
		"br x17",
	}, lst)
	require.Equal(t, rt.DeoptUnarySmiOp, meta.DeoptStubs[0].Reason)
}

func TestSmiBitNotClearsTag(t *testing.T) {
	fn := ir.NewFunction("bnot")
	b0 := fn.NewBlock()
	v := fn.NewValue(ir.RepTagged)
	out := fn.NewValue(ir.RepTagged)
	fn.Append(b0, fn.AllocateInstr().AsUnarySmiOp(ir.OpBitNot, v, ir.DeoptIDNone, out))

	lst, _ := compileFn(t, fn, backend.CompileConfig{})
	require.Equal(t, []string{
		"L1:",
		"mvn x2, x1",
		"and x2, x2, #-2",
	}, lst)
}

func TestTruncDivModPairAndExtract(t *testing.T) {
	fn := ir.NewFunction("divmod")
	b0 := fn.NewBlock()
	left := fn.NewValue(ir.RepTagged)
	right := fn.NewValue(ir.RepTagged)
	outDiv := fn.NewValue(ir.RepTagged)
	outMod := fn.NewValue(ir.RepTagged)
	rem := fn.NewValue(ir.RepTagged)
	fn.Append(b0, fn.AllocateInstr().AsTruncDivMod(left, right, fn.NextDeoptID(), outDiv, outMod))
	fn.Append(b0, fn.AllocateInstr().AsExtractNthOutput(outDiv, 1, rem))

	lst, _ := compileFn(t, fn, backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{
		"L1:",
		"cbz x2, L2",
		"asr x16, x1, #1",
		"asr x17, x2, #1",
		"sdiv x3, x16, x17",
		"msub x6, x3, x17, x16",
		"mov x16, #4611686018427387904",
		"cmp x3, x16",
		"b.eq L2",
		"cmp x6, #0",
		"b.ge L3",
		"cmp x17, #0",
		"sub x16, x6, x17",
		"add x6, x6, x17",
		"csel x6, x16, x6, lt",
		"L3:",
		"lsl x3, x3, #1",
		"lsl x6, x6, #1",
		"mov x7, x6",
		"L2:",
		"mov x16, #1",
		"ldr x17, [x26, #64]",
		"br x17",
	}, lst)
}
