package arm64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftvm/drift/internal/backend"
	"github.com/driftvm/drift/internal/ir"
	"github.com/driftvm/drift/internal/rt"
)

func guardUnit(f *rt.FieldDesc) *ir.Function {
	fn := ir.NewFunction("guard")
	b0 := fn.NewBlock()
	v := fn.NewValue(ir.RepTagged)
	fn.Append(b0, fn.AllocateInstr().AsGuardField(v, f, fn.NextDeoptID()))
	return fn
}

func TestGuardFieldOptimizedSmi(t *testing.T) {
	f := rt.NewFieldDesc("x", 16)
	f.GuardedClass = rt.ClassSmi
	f.GuardedListLength = rt.NoFixedLength

	lst, meta := compileFn(t, guardUnit(f), backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{
		"L1:",
		"tbnz x1, #0, L2",
		"L3:",
		"L2:",
		"mov x16, #8",
		"ldr x17, [x26, #64]",
		"br x17",
	}, lst)
	require.Equal(t, rt.DeoptGuardField, meta.DeoptStubs[0].Reason)
}

func TestGuardFieldOptimizedNullableWithLength(t *testing.T) {
	f := rt.NewFieldDesc("x", 16)
	f.GuardedClass = rt.ClassArray
	f.IsNullable = true
	f.GuardedListLength = 3

	lst, _ := compileFn(t, guardUnit(f), backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{
		"L1:",
		"ldr x16, [x26, #32]",
		"cmp x1, x16",
		"b.eq L3",
		"mov x16, #4",
		"tbz x1, #0, L4",
		"ldur x16, [x1, #-1]",
		"ubfx x16, x16, #16, #16",
		"L4:",
		"cmp x16, #10",
		"b.ne L2",
		"ldur x16, [x1, #7]",
		"cmp x16, #6",
		"b.ne L2",
		"L3:",
		"L2:",
		"mov x16, #8",
		"ldr x17, [x26, #64]",
		"br x17",
	}, lst)
}

func TestGuardFieldPristineAlwaysDeopts(t *testing.T) {
	f := rt.NewFieldDesc("x", 16)
	f.GuardedClass = rt.ClassNone

	lst, _ := compileFn(t, guardUnit(f), backend.CompileConfig{Optimizing: true})
	// No store was observed at compile time; any store invalidates.
	require.Equal(t, []string{
		"L1:",
		"b L2",
		"L2:",
		"mov x16, #8",
		"ldr x17, [x26, #64]",
		"br x17",
	}, lst)
}

func TestGuardFieldLearningFastPath(t *testing.T) {
	f := rt.NewFieldDesc("x", 16)
	f.GuardedClass = rt.ClassDouble
	f.GuardedListLength = rt.NoFixedLength
	f.DescAddr = 0x100

	lst, meta := compileFn(t, guardUnit(f), backend.CompileConfig{})
	// The fast path re-reads the descriptor's guard state, so updates
	// by other stores keep counting without recompilation.
	require.Equal(t, []string{
		"L1:",
		"mov x17, #256",
		"ldr x17, [x17, #8]",
		"mov x16, #4",
		"tbz x1, #0, L4",
		"ldur x16, [x1, #-1]",
		"ubfx x16, x16, #16, #16",
		"L4:",
		"cmp x16, x17",
		"b.ne L2",
		"L3:",
		"L2:",
		"mov x0, #256",
		"ldr x16, [x26, #104]",
		"blr x16",
		"b L3",
	}, lst)
	require.Len(t, meta.Safepoints, 1)
	require.Len(t, meta.PCDescriptors, 1)
	require.Equal(t, backend.PCRuntimeCall, meta.PCDescriptors[0].Kind)
	require.Empty(t, meta.DeoptStubs)
}

func TestGuardFieldLearningLengthGoesStraightToUpdater(t *testing.T) {
	f := rt.NewFieldDesc("x", 16)
	f.GuardedClass = rt.ClassArray
	f.GuardedListLength = 3
	f.DescAddr = 0x100

	lst, _ := compileFn(t, guardUnit(f), backend.CompileConfig{})
	require.Equal(t, []string{
		"L1:",
		"b L2",
		"L3:",
		"L2:",
		"mov x0, #256",
		"ldr x16, [x26, #104]",
		"blr x16",
		"b L3",
	}, lst)
}

func TestGuardFieldUnguardedEmitsNothing(t *testing.T) {
	f := rt.NewFieldDesc("x", 16)
	f.GuardedClass = rt.ClassDynamic

	lst, meta := compileFn(t, guardUnit(f), backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{"L1:"}, lst)
	require.Empty(t, meta.DeoptStubs)
}

func TestLoadFieldTagged(t *testing.T) {
	f := rt.NewFieldDesc("x", 16)
	f.GuardedClass = rt.ClassDynamic

	fn := ir.NewFunction("ldfield")
	b0 := fn.NewBlock()
	inst := fn.NewValue(ir.RepTagged)
	out := fn.NewValue(ir.RepTagged)
	fn.Append(b0, fn.AllocateInstr().AsLoadField(inst, f, out))

	lst, _ := compileFn(t, fn, backend.CompileConfig{})
	require.Equal(t, []string{
		"L1:",
		"ldur x2, [x1, #15]",
	}, lst)
}

func TestLoadFieldUnboxedPayload(t *testing.T) {
	f := rt.NewFieldDesc("x", 16)
	f.GuardedClass = rt.ClassDouble

	fn := ir.NewFunction("ldfield")
	b0 := fn.NewBlock()
	inst := fn.NewValue(ir.RepTagged)
	out := fn.NewValue(ir.RepUnboxedDouble)
	fn.Append(b0, fn.AllocateInstr().AsLoadField(inst, f, out))

	lst, _ := compileFn(t, fn, backend.CompileConfig{})
	// The slot holds the field's private box; optimized code reads the
	// payload straight through it.
	require.Equal(t, []string{
		"L1:",
		"ldur x16, [x1, #15]",
		"ldur d1, [x16, #7]",
	}, lst)
}

func TestLoadFieldReboxesForTaggedUse(t *testing.T) {
	f := rt.NewFieldDesc("x", 16)
	f.GuardedClass = rt.ClassDouble

	fn := ir.NewFunction("ldfield")
	b0 := fn.NewBlock()
	inst := fn.NewValue(ir.RepTagged)
	out := fn.NewValue(ir.RepTagged)
	fn.Append(b0, fn.AllocateInstr().AsLoadField(inst, f, out))

	// Optimized code compiled the settled guard state in, so the rebox
	// needs no dispatch.
	lst, _ := compileFn(t, fn, backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{
		"L1:",
		"ldr x2, [x26, #16]",
		"add x16, x2, #16",
		"ldr x17, [x26, #24]",
		"cmp x16, x17",
		"b.hi L2",
		"str x16, [x26, #16]",
		"add x2, x2, #1",
		"movz x17, #65, lsl #0",
		"movk x17, #5, lsl #16",
		"stur x17, [x2, #-1]",
		"L3:",
		"ldur x16, [x1, #15]",
		"ldur d31, [x16, #7]",
		"stur d31, [x2, #7]",
		"L2:",
		"movz x16, #4101, lsl #0",
		"blr x16",
		"mov x2, x0",
		"b L3",
	}, lst)
}

func TestLoadFieldLearningDispatchesOnGuardState(t *testing.T) {
	f := rt.NewFieldDesc("x", 16)
	f.GuardedClass = rt.ClassDouble
	f.DescAddr = 0x100

	fn := ir.NewFunction("ldfield")
	b0 := fn.NewBlock()
	inst := fn.NewValue(ir.RepTagged)
	out := fn.NewValue(ir.RepTagged)
	fn.Append(b0, fn.AllocateInstr().AsLoadField(inst, f, out))

	// Unoptimized code cannot bake the guard state in: other stores
	// keep updating the descriptor while this code runs. The load
	// re-reads nullability and class and picks the protocol per class,
	// falling back to a plain tagged slot read.
	lst, meta := compileFn(t, fn, backend.CompileConfig{})
	require.Equal(t, []string{
		"L1:",
		"mov x16, #256",
		"ldr x17, [x16, #16]",
		"cbnz x17, L2",
		"ldr x17, [x16, #8]",
		"cmp x17, #5",
		"b.ne L4",
		"ldr x3, [x26, #16]",
		"add x16, x3, #16",
		"ldr x17, [x26, #24]",
		"cmp x16, x17",
		"b.hi L5",
		"str x16, [x26, #16]",
		"add x3, x3, #1",
		"movz x17, #65, lsl #0",
		"movk x17, #5, lsl #16",
		"stur x17, [x3, #-1]",
		"L6:",
		"ldur x2, [x1, #15]",
		"ldur d31, [x2, #7]",
		"stur d31, [x3, #7]",
		"b L3",
		"L4:",
		"cmp x17, #13",
		"b.ne L7",
		"ldr x3, [x26, #16]",
		"add x16, x3, #24",
		"ldr x17, [x26, #24]",
		"cmp x16, x17",
		"b.hi L8",
		"str x16, [x26, #16]",
		"add x3, x3, #1",
		"movz x17, #97, lsl #0",
		"movk x17, #13, lsl #16",
		"stur x17, [x3, #-1]",
		"L9:",
		"ldur x2, [x1, #15]",
		"ldur q31, [x2, #7]",
		"stur q31, [x3, #7]",
		"b L3",
		"L7:",
		"cmp x17, #15",
		"b.ne L10",
		"ldr x3, [x26, #16]",
		"add x16, x3, #24",
		"ldr x17, [x26, #24]",
		"cmp x16, x17",
		"b.hi L11",
		"str x16, [x26, #16]",
		"add x3, x3, #1",
		"movz x17, #97, lsl #0",
		"movk x17, #15, lsl #16",
		"stur x17, [x3, #-1]",
		"L12:",
		"ldur x2, [x1, #15]",
		"ldur q31, [x2, #7]",
		"stur q31, [x3, #7]",
		"b L3",
		"L10:",
		"L2:",
		"ldur x3, [x1, #15]",
		"L3:",
		"L5:",
		"movz x16, #4101, lsl #0",
		"blr x16",
		"mov x3, x0",
		"b L6",
		"L8:",
		"movz x16, #4109, lsl #0",
		"blr x16",
		"mov x3, x0",
		"b L9",
		"L11:",
		"movz x16, #4111, lsl #0",
		"blr x16",
		"mov x3, x0",
		"b L12",
	}, lst)
	require.Len(t, meta.Relocations, 3)
}

func TestStoreFieldLearningDispatchesOnGuardState(t *testing.T) {
	f := rt.NewFieldDesc("x", 16)
	f.GuardedClass = rt.ClassDouble
	f.IsNullable = true
	f.DescAddr = 0x100

	fn := ir.NewFunction("stfield")
	b0 := fn.NewBlock()
	inst := fn.NewValue(ir.RepTagged)
	val := fn.NewValue(ir.RepTagged)
	fn.Append(b0, fn.AllocateInstr().AsStoreInstanceField(inst, val, f, true, false))

	// A nullable double field currently takes the tagged protocol, but
	// only the descriptor knows that at run time: the updater may clear
	// nullability later, migrating the field to in-place payloads, and
	// this same code must then stop overwriting the box pointer.
	lst, _ := compileFn(t, fn, backend.CompileConfig{})
	require.Equal(t, []string{
		"L1:",
		"mov x16, #256",
		"ldr x17, [x16, #16]",
		"cbnz x17, L2",
		"ldr x17, [x16, #8]",
		"cmp x17, #5",
		"b.ne L4",
		"ldur x3, [x1, #15]",
		"ldur d31, [x2, #7]",
		"stur d31, [x3, #7]",
		"b L3",
		"L4:",
		"cmp x17, #13",
		"b.ne L5",
		"ldur x3, [x1, #15]",
		"ldur q31, [x2, #7]",
		"stur q31, [x3, #7]",
		"b L3",
		"L5:",
		"cmp x17, #15",
		"b.ne L6",
		"ldur x3, [x1, #15]",
		"ldur q31, [x2, #7]",
		"stur q31, [x3, #7]",
		"b L3",
		"L6:",
		"L2:",
		"stur x2, [x1, #15]",
		"tbz x2, #0, L7",
		"ldur x16, [x2, #-1]",
		"tbz x16, #0, L7",
		"ldur x16, [x1, #-1]",
		"tbnz x16, #0, L7",
		"tbnz x16, #1, L7",
		"mov x16, x1",
		"ldr x17, [x26, #56]",
		"blr x17",
		"L7:",
		"L3:",
	}, lst)
}

func TestStoreFieldWithBarrier(t *testing.T) {
	f := rt.NewFieldDesc("x", 16)
	f.GuardedClass = rt.ClassDynamic

	fn := ir.NewFunction("stfield")
	b0 := fn.NewBlock()
	inst := fn.NewValue(ir.RepTagged)
	val := fn.NewValue(ir.RepTagged)
	fn.Append(b0, fn.AllocateInstr().AsStoreInstanceField(inst, val, f, true, false))

	lst, _ := compileFn(t, fn, backend.CompileConfig{})
	require.Equal(t, []string{
		"L1:",
		"stur x2, [x1, #15]",
		"tbz x2, #0, L2",
		"ldur x16, [x2, #-1]",
		"tbz x16, #0, L2",
		"ldur x16, [x1, #-1]",
		"tbnz x16, #0, L2",
		"tbnz x16, #1, L2",
		"mov x16, x1",
		"ldr x17, [x26, #56]",
		"blr x17",
		"L2:",
	}, lst)
}

func TestStoreFieldNullConstantSkipsBarrier(t *testing.T) {
	f := rt.NewFieldDesc("x", 16)
	f.GuardedClass = rt.ClassDynamic

	fn := ir.NewFunction("stfield")
	b0 := fn.NewBlock()
	inst := fn.NewValue(ir.RepTagged)
	null := fn.NullConstant(b0)
	fn.Append(b0, fn.AllocateInstr().AsStoreInstanceField(inst, null, f, false, false))

	lst, _ := compileFn(t, fn, backend.CompileConfig{})
	require.Equal(t, []string{
		"L1:",
		"ldr x1, [x26, #32]",
		"ldr x16, [x26, #32]",
		"stur x16, [x2, #15]",
	}, lst)
}

func TestStoreFieldUnboxedUpdatesInPlace(t *testing.T) {
	f := rt.NewFieldDesc("x", 16)
	f.GuardedClass = rt.ClassDouble

	fn := ir.NewFunction("stfield")
	b0 := fn.NewBlock()
	inst := fn.NewValue(ir.RepTagged)
	val := fn.NewValue(ir.RepUnboxedDouble)
	fn.Append(b0, fn.AllocateInstr().AsStoreInstanceField(inst, val, f, false, false))

	lst, _ := compileFn(t, fn, backend.CompileConfig{})
	// The box pointer stays put; only the payload changes.
	require.Equal(t, []string{
		"L1:",
		"ldur x16, [x1, #15]",
		"stur d1, [x16, #7]",
	}, lst)
}

func TestStoreFieldUnboxedTaggedValueCopiesPayload(t *testing.T) {
	f := rt.NewFieldDesc("x", 16)
	f.GuardedClass = rt.ClassDouble

	fn := ir.NewFunction("stfield")
	b0 := fn.NewBlock()
	inst := fn.NewValue(ir.RepTagged)
	val := fn.NewValue(ir.RepTagged)
	fn.Append(b0, fn.AllocateInstr().AsStoreInstanceField(inst, val, f, true, false))

	// The incoming value is itself a box; its payload moves into the
	// field's private box so cached pointers stay valid.
	lst, _ := compileFn(t, fn, backend.CompileConfig{Optimizing: true})
	require.Equal(t, []string{
		"L1:",
		"ldur x16, [x1, #15]",
		"ldur d31, [x2, #7]",
		"stur d31, [x16, #7]",
	}, lst)
}

func TestStaticFieldRoundTrip(t *testing.T) {
	f := rt.NewFieldDesc("counter", 0)
	f.IsStatic = true
	f.StaticAddr = 0x2000

	load := ir.NewFunction("ldstatic")
	b0 := load.NewBlock()
	out := load.NewValue(ir.RepTagged)
	load.Append(b0, load.AllocateInstr().AsLoadStaticField(f, out))
	lst, _ := compileFn(t, load, backend.CompileConfig{})
	require.Equal(t, []string{
		"L1:",
		"mov x16, #8192",
		"ldr x1, [x16, #0]",
	}, lst)

	store := ir.NewFunction("ststatic")
	b1 := store.NewBlock()
	v := store.NewValue(ir.RepTagged)
	store.Append(b1, store.AllocateInstr().AsStoreStaticField(v, f))
	lst, _ = compileFn(t, store, backend.CompileConfig{})
	require.Equal(t, []string{
		"L1:",
		"mov x16, #8192",
		"str x1, [x16, #0]",
	}, lst)
}
