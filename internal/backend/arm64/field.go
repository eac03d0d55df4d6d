package arm64

import (
	a64 "github.com/driftvm/drift/internal/asm/arm64"
	"github.com/driftvm/drift/internal/backend/regalloc"
	"github.com/driftvm/drift/internal/ir"
	"github.com/driftvm/drift/internal/rt"
)

// emitGuardField enforces a field's guard state against the value about
// to be stored. Optimized code treats the state as a specialization
// assumption and deoptimizes on any mismatch; unoptimized code treats
// it as something still being learned and calls the runtime updater
// instead.
func (m *Machine) emitGuardField(i *ir.Instruction) {
	f := i.Field()
	if !f.Guarded() {
		return
	}
	s := m.SummaryFor(i)
	value := s.In(0).Reg()

	if m.cfg.Optimizing {
		m.emitGuardFieldDeopt(i, f, value)
		return
	}

	sp := &guardFieldSlowPath{
		field:   f,
		value:   value,
		deoptID: i.DeoptID(),
		pos:     i.Pos(),
		live:    *s.LiveRegisters(),
		entry:   m.asm.AllocateLabel(),
		cont:    m.asm.AllocateLabel(),
	}
	m.slowPaths = append(m.slowPaths, sp)

	// Fast path: the value's class matches what the descriptor already
	// admits. Anything else, including a null or a tracked list length,
	// goes through the updater.
	if f.NeedsLengthGuard() {
		m.asm.B(sp.entry)
	} else {
		m.asm.LoadImmediate(a64.TMP2, int64(f.DescAddr))
		m.asm.Load(a64.TMP2, a64.TMP2, rt.FieldDescGuardedClassOffset.I64(), a64.MemX, regalloc.RealRegInvalid)
		m.asm.LoadValueCid(a64.TMP, value)
		m.asm.Cmp(a64.TMP, a64.TMP2)
		m.asm.BCond(a64.NE, sp.entry)
	}
	m.asm.Bind(sp.cont)
}

func (m *Machine) emitGuardFieldDeopt(i *ir.Instruction, f *rt.FieldDesc, value regalloc.RealReg) {
	deopt := m.deoptLabel(i.DeoptID(), rt.DeoptGuardField)
	cid := f.GuardedClass

	if cid == rt.ClassNone {
		// No store observed when this code was compiled; any store now
		// invalidates it.
		m.asm.B(deopt)
		return
	}

	ok := m.asm.AllocateLabel()
	if cid == rt.ClassSmi {
		m.asm.BranchIfNotSmi(value, deopt)
	} else {
		if f.IsNullable {
			m.asm.LoadNull(a64.TMP)
			m.asm.Cmp(value, a64.TMP)
			m.asm.BCond(a64.EQ, ok)
		}
		m.asm.LoadValueCid(a64.TMP, value)
		m.asm.CompareImmediate(a64.TMP, int64(cid), a64.TMP2)
		m.asm.BCond(a64.NE, deopt)
	}
	if f.NeedsLengthGuard() {
		m.asm.Load(a64.TMP, value, rt.LengthOffsetFor(cid).I64()-rt.HeapObjectTag, a64.MemX, regalloc.RealRegInvalid)
		m.asm.CompareImmediate(a64.TMP, rt.TagSmi(f.GuardedListLength), a64.TMP2)
		m.asm.BCond(a64.NE, deopt)
	}
	m.asm.Bind(ok)
}

// unboxedFieldClasses are the classes whose fields may migrate to the
// in-place payload protocol, in the order the runtime dispatch chains
// test them.
var unboxedFieldClasses = [...]rt.ClassID{rt.ClassDouble, rt.ClassFloat32x4, rt.ClassFloat64x2}

func (m *Machine) emitLoadField(i *ir.Instruction) error {
	f := i.Field()
	s := m.SummaryFor(i)
	instance := s.In(0).Reg()
	off := f.Offset.I64()

	if m.fn.RepOf(i.Def()).IsFloat() {
		// The instance slot holds the field's private box; the payload
		// is what the optimized graph works on.
		payloadOff, kind, err := boxPayloadOffset(f.GuardedClass)
		if err != nil {
			return err
		}
		m.asm.Load(a64.TMP, instance, off-rt.HeapObjectTag, a64.MemX, regalloc.RealRegInvalid)
		m.asm.Load(s.Out().FpuReg(), a64.TMP, payloadOff-rt.HeapObjectTag, kind, regalloc.RealRegInvalid)
		return nil
	}

	out := s.Out().Reg()
	if !m.cfg.Optimizing && f.IsPotentialUnboxed() {
		m.emitLoadFieldDispatch(i, f, instance, out)
		return nil
	}
	if m.cfg.Optimizing && f.IsUnboxed() {
		// The field settled on an unboxed class when this code was
		// compiled (a guard upstream enforces it), so a tagged use gets
		// a fresh box filled from the field's private one.
		cls := f.GuardedClass
		payloadOff, kind, err := boxPayloadOffset(cls)
		if err != nil {
			return err
		}
		sp := &boxAllocateSlowPath{
			cls:   cls,
			out:   out,
			live:  *s.LiveRegisters(),
			entry: m.asm.AllocateLabel(),
			cont:  m.asm.AllocateLabel(),
		}
		m.slowPaths = append(m.slowPaths, sp)
		m.asm.TryAllocate(cls, rt.BoxSizeFor(cls), sp.entry, out, a64.TMP, a64.TMP2)
		m.asm.Bind(sp.cont)
		m.asm.Load(a64.TMP, instance, off-rt.HeapObjectTag, a64.MemX, regalloc.RealRegInvalid)
		m.asm.Load(a64.VTMP, a64.TMP, payloadOff-rt.HeapObjectTag, kind, regalloc.RealRegInvalid)
		m.asm.Store(a64.VTMP, out, payloadOff-rt.HeapObjectTag, kind, regalloc.RealRegInvalid)
		return nil
	}
	m.asm.Load(out, instance, off-rt.HeapObjectTag, a64.MemX, a64.TMP)
	return nil
}

// emitLoadFieldDispatch reads the guard descriptor's current state and
// picks the load protocol at runtime. A field that settled on a
// non-nullable numeric class keeps its payload in a private box, so the
// tagged result is a fresh box filled from it; anything else is a plain
// tagged slot.
func (m *Machine) emitLoadFieldDispatch(i *ir.Instruction, f *rt.FieldDesc, instance, out regalloc.RealReg) {
	s := m.SummaryFor(i)
	box := s.Temp(0).Reg()
	off := f.Offset.I64()
	tagged := m.asm.AllocateLabel()
	done := m.asm.AllocateLabel()

	m.asm.LoadImmediate(a64.TMP, int64(f.DescAddr))
	m.asm.Load(a64.TMP2, a64.TMP, rt.FieldDescNullableOffset.I64(), a64.MemX, regalloc.RealRegInvalid)
	m.asm.Cbnz(a64.TMP2, tagged)
	m.asm.Load(a64.TMP2, a64.TMP, rt.FieldDescGuardedClassOffset.I64(), a64.MemX, regalloc.RealRegInvalid)

	for _, cls := range unboxedFieldClasses {
		next := m.asm.AllocateLabel()
		m.asm.CompareImmediate(a64.TMP2, int64(cls), a64.TMP)
		m.asm.BCond(a64.NE, next)

		payloadOff, kind, _ := boxPayloadOffset(cls)
		sp := &boxAllocateSlowPath{
			cls:   cls,
			out:   out,
			live:  *s.LiveRegisters(),
			entry: m.asm.AllocateLabel(),
			cont:  m.asm.AllocateLabel(),
		}
		m.slowPaths = append(m.slowPaths, sp)
		m.asm.TryAllocate(cls, rt.BoxSizeFor(cls), sp.entry, out, a64.TMP, a64.TMP2)
		m.asm.Bind(sp.cont)
		m.asm.Load(box, instance, off-rt.HeapObjectTag, a64.MemX, regalloc.RealRegInvalid)
		m.asm.Load(a64.VTMP, box, payloadOff-rt.HeapObjectTag, kind, regalloc.RealRegInvalid)
		m.asm.Store(a64.VTMP, out, payloadOff-rt.HeapObjectTag, kind, regalloc.RealRegInvalid)
		m.asm.B(done)
		m.asm.Bind(next)
	}

	m.asm.Bind(tagged)
	m.asm.Load(out, instance, off-rt.HeapObjectTag, a64.MemX, a64.TMP)
	m.asm.Bind(done)
}

func (m *Machine) emitStoreInstanceField(i *ir.Instruction) error {
	f := i.Field()
	s := m.SummaryFor(i)
	instance := s.In(0).Reg()
	off := f.Offset.I64()
	value := s.In(1)

	if m.fn.RepOf(i.Input(1)).IsFloat() {
		cls := f.GuardedClass
		payloadOff, kind, err := boxPayloadOffset(cls)
		if err != nil {
			return err
		}
		if i.IsInitialization() {
			// First store: allocate the field's box and plant it, then
			// fill in the payload.
			box := s.Temp(0).Reg()
			sp := &boxAllocateSlowPath{
				cls:   cls,
				out:   box,
				live:  *s.LiveRegisters(),
				entry: m.asm.AllocateLabel(),
				cont:  m.asm.AllocateLabel(),
			}
			m.slowPaths = append(m.slowPaths, sp)
			m.asm.TryAllocate(cls, rt.BoxSizeFor(cls), sp.entry, box, a64.TMP, a64.TMP2)
			m.asm.Bind(sp.cont)
			m.asm.StoreIntoObject(instance, box, off, a64.TMP, a64.TMP2)
			m.asm.Store(value.FpuReg(), box, payloadOff-rt.HeapObjectTag, kind, regalloc.RealRegInvalid)
			return nil
		}
		// The box is already there; update it in place so optimized
		// loads elsewhere keep their pointer valid.
		m.asm.Load(a64.TMP, instance, off-rt.HeapObjectTag, a64.MemX, regalloc.RealRegInvalid)
		m.asm.Store(value.FpuReg(), a64.TMP, payloadOff-rt.HeapObjectTag, kind, regalloc.RealRegInvalid)
		return nil
	}

	if !m.cfg.Optimizing && f.IsPotentialUnboxed() {
		m.emitStoreFieldDispatch(i, f)
		return nil
	}
	if m.cfg.Optimizing && f.IsUnboxed() {
		// Tagged store to a settled unboxed field: the incoming value
		// is itself a box, so its payload moves into the field's
		// private box and the slot keeps its pointer.
		payloadOff, kind, err := boxPayloadOffset(f.GuardedClass)
		if err != nil {
			return err
		}
		m.asm.Load(a64.TMP, instance, off-rt.HeapObjectTag, a64.MemX, regalloc.RealRegInvalid)
		m.asm.Load(a64.VTMP, value.Reg(), payloadOff-rt.HeapObjectTag, kind, regalloc.RealRegInvalid)
		m.asm.Store(a64.VTMP, a64.TMP, payloadOff-rt.HeapObjectTag, kind, regalloc.RealRegInvalid)
		return nil
	}

	if i.NeedsBarrier() {
		m.asm.StoreIntoObject(instance, value.Reg(), off, a64.TMP, a64.TMP2)
		return nil
	}
	if value.IsConstant() {
		m.materializeConstant(m.constantAt(value), a64.TMP)
		m.asm.StoreIntoObjectNoBarrier(instance, a64.TMP, off, a64.TMP2)
		return nil
	}
	m.asm.StoreIntoObjectNoBarrier(instance, value.Reg(), off, a64.TMP)
	return nil
}

// emitStoreFieldDispatch stores a tagged value through the guard
// descriptor's current protocol. While the field holds a non-nullable
// numeric class the incoming box's payload is copied into the field's
// private box, keeping pointers optimized code may have cached valid;
// otherwise the slot takes the reference itself, through the barrier.
func (m *Machine) emitStoreFieldDispatch(i *ir.Instruction, f *rt.FieldDesc) {
	s := m.SummaryFor(i)
	instance := s.In(0).Reg()
	value := s.In(1).Reg()
	box := s.Temp(0).Reg()
	off := f.Offset.I64()
	tagged := m.asm.AllocateLabel()
	done := m.asm.AllocateLabel()

	m.asm.LoadImmediate(a64.TMP, int64(f.DescAddr))
	m.asm.Load(a64.TMP2, a64.TMP, rt.FieldDescNullableOffset.I64(), a64.MemX, regalloc.RealRegInvalid)
	m.asm.Cbnz(a64.TMP2, tagged)
	m.asm.Load(a64.TMP2, a64.TMP, rt.FieldDescGuardedClassOffset.I64(), a64.MemX, regalloc.RealRegInvalid)

	for _, cls := range unboxedFieldClasses {
		next := m.asm.AllocateLabel()
		m.asm.CompareImmediate(a64.TMP2, int64(cls), a64.TMP)
		m.asm.BCond(a64.NE, next)

		payloadOff, kind, _ := boxPayloadOffset(cls)
		if i.IsInitialization() {
			sp := &boxAllocateSlowPath{
				cls:   cls,
				out:   box,
				live:  *s.LiveRegisters(),
				entry: m.asm.AllocateLabel(),
				cont:  m.asm.AllocateLabel(),
			}
			m.slowPaths = append(m.slowPaths, sp)
			m.asm.TryAllocate(cls, rt.BoxSizeFor(cls), sp.entry, box, a64.TMP, a64.TMP2)
			m.asm.Bind(sp.cont)
			m.asm.StoreIntoObject(instance, box, off, a64.TMP, a64.TMP2)
		} else {
			m.asm.Load(box, instance, off-rt.HeapObjectTag, a64.MemX, regalloc.RealRegInvalid)
		}
		m.asm.Load(a64.VTMP, value, payloadOff-rt.HeapObjectTag, kind, regalloc.RealRegInvalid)
		m.asm.Store(a64.VTMP, box, payloadOff-rt.HeapObjectTag, kind, regalloc.RealRegInvalid)
		m.asm.B(done)
		m.asm.Bind(next)
	}

	m.asm.Bind(tagged)
	m.asm.StoreIntoObject(instance, value, off, a64.TMP, a64.TMP2)
	m.asm.Bind(done)
}

// Static fields live in off-heap cells, addressed directly.

func (m *Machine) emitLoadStaticField(i *ir.Instruction) {
	s := m.SummaryFor(i)
	out := s.Out().Reg()
	m.asm.LoadImmediate(a64.TMP, int64(i.Field().StaticAddr))
	m.asm.Load(out, a64.TMP, 0, a64.MemX, regalloc.RealRegInvalid)
}

func (m *Machine) emitStoreStaticField(i *ir.Instruction) {
	s := m.SummaryFor(i)
	m.asm.LoadImmediate(a64.TMP, int64(i.Field().StaticAddr))
	m.asm.Store(s.In(0).Reg(), a64.TMP, 0, a64.MemX, regalloc.RealRegInvalid)
}
