package arm64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftvm/drift/internal/backend"
	"github.com/driftvm/drift/internal/ir"
	"github.com/driftvm/drift/internal/rt"
)

func TestCheckClassChain(t *testing.T) {
	fn := ir.NewFunction("ccls")
	b0 := fn.NewBlock()
	v := fn.NewValue(ir.RepTagged)
	fn.Append(b0, fn.AllocateInstr().AsCheckClass(v, []rt.ClassID{rt.ClassDouble, rt.ClassArray}, fn.NextDeoptID()))

	lst, meta := compileFn(t, fn, backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{
		"L1:",
		"tbz x1, #0, L2",
		"ldur x16, [x1, #-1]",
		"ubfx x16, x16, #16, #16",
		"cmp x16, #5",
		"b.eq L3",
		"cmp x16, #10",
		"b.ne L2",
		"L3:",
		"L2:",
		"mov x16, #4",
		"ldr x17, [x26, #64]",
		"br x17",
	}, lst)
	require.Equal(t, rt.DeoptCheckClass, meta.DeoptStubs[0].Reason)
}

func TestHoistedCheckClassReportsHoistedReason(t *testing.T) {
	fn := ir.NewFunction("ccls")
	b0 := fn.NewBlock()
	v := fn.NewValue(ir.RepTagged)
	chk := fn.AllocateInstr().AsCheckClass(v, []rt.ClassID{rt.ClassDouble}, fn.NextDeoptID())
	chk.MarkHoisted()
	fn.Append(b0, chk)

	_, meta := compileFn(t, fn, backend.CompileConfig{Optimizing: true})
	require.Len(t, meta.DeoptStubs, 1)
	require.Equal(t, rt.DeoptHoistedCheckClass, meta.DeoptStubs[0].Reason)
}

func TestCheckEitherNonSmi(t *testing.T) {
	fn := ir.NewFunction("cnonsmi")
	b0 := fn.NewBlock()
	left := fn.NewValue(ir.RepTagged)
	right := fn.NewValue(ir.RepTagged)
	fn.Append(b0, fn.AllocateInstr().AsCheckEitherNonSmi(left, right, fn.NextDeoptID()))

	lst, meta := compileFn(t, fn, backend.CompileConfig{Optimizing: true})
	// Both tags clear means both were smis; the ORed word keeps the
	// tag bit iff at least one operand is a heap object.
	require.Equal(t, []string{
		"L1:",
		"orr x16, x1, x2",
		"tbz x16, #0, L2",
		"L2:",
		"mov x16, #7",
		"ldr x17, [x26, #64]",
		"br x17",
	}, lst)
	require.Equal(t, rt.DeoptBinaryDoubleOp, meta.DeoptStubs[0].Reason)
}

func TestCheckArrayBoundRegisters(t *testing.T) {
	fn := ir.NewFunction("cbound")
	b0 := fn.NewBlock()
	length := fn.NewValue(ir.RepTagged)
	index := fn.NewValue(ir.RepTagged)
	fn.Append(b0, fn.AllocateInstr().AsCheckArrayBound(length, index, fn.NextDeoptID()))

	lst, meta := compileFn(t, fn, backend.CompileConfig{Optimizing: true})
	// One unsigned compare rejects negative indexes too.
	require.Equal(t, []string{
		"L1:",
		"cmp x2, x1",
		"b.hs L2",
		"L2:",
		"movz x16, #9, lsl #0",
		"ldr x17, [x26, #64]",
		"br x17",
	}, lst)
	require.Equal(t, rt.DeoptCheckArrayBound, meta.DeoptStubs[0].Reason)
}

func TestCheckArrayBoundConstantIndex(t *testing.T) {
	fn := ir.NewFunction("cbound")
	b0 := fn.NewBlock()
	length := fn.NewValue(ir.RepTagged)
	index := fn.SmiConstant(b0, 3)
	fn.Append(b0, fn.AllocateInstr().AsCheckArrayBound(length, index, fn.NextDeoptID()))

	lst, _ := compileFn(t, fn, backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{
		"L1:",
		"mov x1, #6",
		"cmp x2, #6",
		"b.ls L2",
		"L2:",
		"movz x16, #9, lsl #0",
		"ldr x17, [x26, #64]",
		"br x17",
	}, lst)
}

func TestCheckArrayBoundConstantLength(t *testing.T) {
	fn := ir.NewFunction("cbound")
	b0 := fn.NewBlock()
	length := fn.SmiConstant(b0, 10)
	index := fn.NewValue(ir.RepTagged)
	fn.Append(b0, fn.AllocateInstr().AsCheckArrayBound(length, index, fn.NextDeoptID()))

	lst, _ := compileFn(t, fn, backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{
		"L1:",
		"movz x1, #20, lsl #0",
		"cmp x2, #20",
		"b.hs L2",
		"L2:",
		"movz x16, #9, lsl #0",
		"ldr x17, [x26, #64]",
		"br x17",
	}, lst)
}

func TestCheckArrayBoundFoldsConstantOperands(t *testing.T) {
	inRange := ir.NewFunction("cbound")
	b0 := inRange.NewBlock()
	inRange.Append(b0, inRange.AllocateInstr().AsCheckArrayBound(
		inRange.SmiConstant(b0, 10), inRange.SmiConstant(b0, 3), inRange.NextDeoptID()))
	lst, meta := compileFn(t, inRange, backend.CompileConfig{Optimizing: true})
	// A provably in-range access emits nothing, only the constants.
	require.Equal(t, []string{
		"L1:",
		"movz x1, #20, lsl #0",
		"mov x2, #6",
	}, lst)
	require.Empty(t, meta.DeoptStubs)

	outOfRange := ir.NewFunction("cbound")
	b1 := outOfRange.NewBlock()
	outOfRange.Append(b1, outOfRange.AllocateInstr().AsCheckArrayBound(
		outOfRange.SmiConstant(b1, 3), outOfRange.SmiConstant(b1, 7), outOfRange.NextDeoptID()))
	lst, meta = compileFn(t, outOfRange, backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{
		"L1:",
		"mov x1, #6",
		"mov x2, #14",
		"b L2",
		"L2:",
		"movz x16, #9, lsl #0",
		"ldr x17, [x26, #64]",
		"br x17",
	}, lst)
	require.Len(t, meta.DeoptStubs, 1)
}

func TestCheckStackOverflowSlowPath(t *testing.T) {
	fn := ir.NewFunction("poll")
	b0 := fn.NewBlock()
	fn.Append(b0, fn.AllocateInstr().AsCheckStackOverflow(1, fn.NextDeoptID(), ir.SourcePosNone))

	lst, meta := compileFn(t, fn, backend.CompileConfig{
		OSREnabled:       true,
		OSRThreshold:     1000,
		UsageCounterAddr: 0x4000,
	})
	// The promotion request is decided at run time: the usage counter
	// must reach the threshold before the entry is asked to replace
	// the frame.
	require.Equal(t, []string{
		"L1:",
		"ldr x16, [x26, #8]",
		"cmp sp, x16",
		"b.ls L2",
		"L3:",
		"L2:",
		"mov x16, #16384",
		"ldr x16, [x16, #0]",
		"cmp x16, #1000",
		"cset x0, ge",
		"ldr x16, [x26, #96]",
		"blr x16",
		"b L3",
	}, lst)

	require.Len(t, meta.Safepoints, 1)
	require.Len(t, meta.PCDescriptors, 2)
	require.Equal(t, backend.PCRuntimeCall, meta.PCDescriptors[0].Kind)
	require.Equal(t, backend.PCOsrEntry, meta.PCDescriptors[1].Kind)
	require.Equal(t, meta.PCDescriptors[0].Offset, meta.PCDescriptors[1].Offset)
}

func TestCheckStackOverflowScalesThresholdByBlockLoopDepth(t *testing.T) {
	fn := ir.NewFunction("poll")
	b0 := fn.NewBlock()
	b0.SetLoopDepth(2)
	fn.Append(b0, fn.AllocateInstr().AsCheckStackOverflow(0, fn.NextDeoptID(), ir.SourcePosNone))

	lst, _ := compileFn(t, fn, backend.CompileConfig{
		OSREnabled:       true,
		OSRThreshold:     1000,
		UsageCounterAddr: 0x4000,
	})
	// Inner polls run more often, so the bar rises with nesting.
	require.Contains(t, lst, "cmp x16, #2000")
}

func TestCheckStackOverflowOutsideLoopSkipsOsr(t *testing.T) {
	fn := ir.NewFunction("poll")
	b0 := fn.NewBlock()
	fn.Append(b0, fn.AllocateInstr().AsCheckStackOverflow(0, fn.NextDeoptID(), ir.SourcePosNone))

	lst, meta := compileFn(t, fn, backend.CompileConfig{
		OSREnabled:       true,
		OSRThreshold:     1000,
		UsageCounterAddr: 0x4000,
	})
	require.Equal(t, "movz x0, #0, lsl #0", lst[6])
	require.Len(t, meta.PCDescriptors, 1)
	require.Equal(t, backend.PCRuntimeCall, meta.PCDescriptors[0].Kind)
}

func TestCheckStackOverflowWithoutCounterSkipsOsr(t *testing.T) {
	fn := ir.NewFunction("poll")
	b0 := fn.NewBlock()
	fn.Append(b0, fn.AllocateInstr().AsCheckStackOverflow(1, fn.NextDeoptID(), ir.SourcePosNone))

	// No counter cell published for this unit: the poll still guards
	// the stack, but never requests promotion.
	lst, meta := compileFn(t, fn, backend.CompileConfig{OSREnabled: true})
	require.Equal(t, "movz x0, #0, lsl #0", lst[6])
	require.Len(t, meta.PCDescriptors, 1)
	require.Equal(t, backend.PCRuntimeCall, meta.PCDescriptors[0].Kind)
}

func TestOsrEntryBlockGetsDescriptor(t *testing.T) {
	fn := ir.NewFunction("poll")
	b0 := fn.NewBlock()
	b1 := fn.NewBlock()
	b1.MarkOSREntry()
	fn.Append(b0, fn.AllocateInstr().AsGoto(b1))
	fn.Append(b1, fn.AllocateInstr().AsCheckStackOverflow(1, fn.NextDeoptID(), ir.SourcePosNone))

	_, meta := compileFn(t, fn, backend.CompileConfig{
		OSREnabled:       true,
		OSRThreshold:     1000,
		UsageCounterAddr: 0x4000,
	})
	require.Equal(t, backend.PCOsrEntry, meta.PCDescriptors[0].Kind)
}

func TestCheckStackOverflowDisabled(t *testing.T) {
	fn := ir.NewFunction("poll")
	b0 := fn.NewBlock()
	fn.Append(b0, fn.AllocateInstr().AsCheckStackOverflow(0, fn.NextDeoptID(), ir.SourcePosNone))

	lst, meta := compileFn(t, fn, backend.CompileConfig{DisableStackCheck: true})
	require.Equal(t, []string{"L1:"}, lst)
	require.Empty(t, meta.Safepoints)
}
