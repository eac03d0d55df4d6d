package arm64

import (
	"fmt"

	a64 "github.com/driftvm/drift/internal/asm/arm64"
	"github.com/driftvm/drift/internal/backend"
	"github.com/driftvm/drift/internal/backend/regalloc"
	"github.com/driftvm/drift/internal/ir"
	"github.com/driftvm/drift/internal/rt"
)

// elementKind maps an indexable class to the access width of its
// elements. The second result reports whether the element kind is
// lowerable at all; 64-bit integer buffers are not, their values do not
// fit a smi.
func elementKind(cid rt.ClassID) (a64.MemKind, bool) {
	if cid.IsExternalBuffer() {
		cid -= rt.ClassExtInt8 - rt.ClassBufInt8
	}
	switch cid {
	case rt.ClassArray, rt.ClassImmutableArray:
		return a64.MemX, true
	case rt.ClassString, rt.ClassBufUint16:
		return a64.MemH, true
	case rt.ClassBufInt8:
		return a64.MemSB, true
	case rt.ClassBufUint8, rt.ClassBufUint8Clamped:
		return a64.MemB, true
	case rt.ClassBufInt16:
		return a64.MemSH, true
	case rt.ClassBufInt32:
		return a64.MemSW, true
	case rt.ClassBufUint32:
		return a64.MemW, true
	case rt.ClassBufFloat32:
		return a64.MemS, true
	case rt.ClassBufFloat64:
		return a64.MemD, true
	case rt.ClassBufFloat32x4, rt.ClassBufFloat64x2:
		return a64.MemQ, true
	}
	return 0, false
}

// emitElementAddress leaves the absolute address of the indexed element
// in TMP2. Internal containers address off the tagged array pointer;
// external buffers first load their raw data pointer. The tagged index
// already carries a factor of two, which the scaling below folds in.
func (m *Machine) emitElementAddress(cid rt.ClassID, array regalloc.RealReg, index backend.Location) {
	scale := cid.ElementSizeLog2()
	if cid.IsExternalBuffer() {
		m.asm.Load(a64.TMP2, array, rt.ExtBufDataAddrOffset.I64()-rt.HeapObjectTag, a64.MemX, regalloc.RealRegInvalid)
	} else {
		m.asm.AddImmediate(a64.TMP2, array, rt.DataOffsetFor(cid).I64()-rt.HeapObjectTag, regalloc.RealRegInvalid)
	}
	if index.IsConstant() {
		idx := m.constantAt(index).I64
		m.asm.AddImmediate(a64.TMP2, a64.TMP2, idx<<scale, a64.TMP)
		return
	}
	switch scale {
	case 0:
		m.asm.SmiUntag(a64.TMP, index.Reg())
		m.asm.Add(a64.TMP2, a64.TMP2, a64.TMP)
	case 1:
		m.asm.Add(a64.TMP2, a64.TMP2, index.Reg())
	default:
		m.asm.AddShifted(a64.TMP2, a64.TMP2, index.Reg(), uint32(scale-1))
	}
}

func (m *Machine) emitLoadIndexed(i *ir.Instruction) error {
	cid := i.Class()
	kind, ok := elementKind(cid)
	if !ok {
		return fmt.Errorf("load_indexed from %s is not lowerable", cid)
	}
	s := m.SummaryFor(i)
	array := s.In(0).Reg()
	out := s.Out()

	m.emitElementAddress(cid, array, s.In(1))

	switch kind {
	case a64.MemS:
		// Float32 elements widen on load; all double arithmetic runs in
		// 64-bit registers.
		m.asm.Load(out.FpuReg(), a64.TMP2, 0, kind, regalloc.RealRegInvalid)
		m.asm.FcvtStoD(out.FpuReg(), out.FpuReg())
	case a64.MemD, a64.MemQ:
		m.asm.Load(out.FpuReg(), a64.TMP2, 0, kind, regalloc.RealRegInvalid)
	case a64.MemX:
		m.asm.Load(out.Reg(), a64.TMP2, 0, kind, regalloc.RealRegInvalid)
	default:
		m.asm.Load(out.Reg(), a64.TMP2, 0, kind, regalloc.RealRegInvalid)
		m.asm.SmiTag(out.Reg(), out.Reg())
	}
	return nil
}

func (m *Machine) emitStoreIndexed(i *ir.Instruction) error {
	cid := i.Class()
	kind, ok := elementKind(cid)
	if !ok {
		return fmt.Errorf("store_indexed into %s is not lowerable", cid)
	}
	s := m.SummaryFor(i)
	array := s.In(0).Reg()
	index := s.In(1)
	value := s.In(2)

	if i.NeedsBarrier() {
		if kind != a64.MemX {
			panic("BUG: write barrier on a typed buffer store")
		}
		if index.IsConstant() {
			idx := m.constantAt(index).I64
			off := rt.DataOffsetFor(cid).I64() + idx*rt.WordSize
			m.asm.StoreIntoObject(array, value.Reg(), off, a64.TMP, a64.TMP2)
			return nil
		}
		m.emitElementAddress(cid, array, index)
		m.asm.StoreIntoObjectAt(array, value.Reg(), a64.TMP2, a64.TMP, a64.TMP2)
		return nil
	}

	m.emitElementAddress(cid, array, index)

	clamped := cid == rt.ClassBufUint8Clamped || cid == rt.ClassExtUint8Clamped
	switch {
	case kind == a64.MemS:
		m.asm.FcvtDtoS(a64.VTMP, value.FpuReg())
		m.asm.Store(a64.VTMP, a64.TMP2, 0, kind, regalloc.RealRegInvalid)
	case kind == a64.MemD || kind == a64.MemQ:
		m.asm.Store(value.FpuReg(), a64.TMP2, 0, kind, regalloc.RealRegInvalid)
	case kind == a64.MemX:
		// Tagged word store, barrier proven unnecessary.
		if value.IsConstant() {
			m.materializeConstant(m.constantAt(value), a64.TMP)
			m.asm.Store(a64.TMP, a64.TMP2, 0, kind, regalloc.RealRegInvalid)
			return nil
		}
		m.asm.Store(value.Reg(), a64.TMP2, 0, kind, regalloc.RealRegInvalid)
	case clamped:
		m.emitClampedByte(value, s.Temp(0).Reg())
		m.asm.Store(a64.TMP, a64.TMP2, 0, kind, regalloc.RealRegInvalid)
	default:
		if value.IsConstant() {
			m.asm.LoadImmediate(a64.TMP, m.constantAt(value).I64)
		} else {
			m.asm.SmiUntag(a64.TMP, value.Reg())
		}
		m.asm.Store(a64.TMP, a64.TMP2, 0, kind, regalloc.RealRegInvalid)
	}
	return nil
}

// emitClampedByte leaves the value clamped to [0, 255] in TMP, without
// branches.
func (m *Machine) emitClampedByte(value backend.Location, t regalloc.RealReg) {
	if value.IsConstant() {
		m.asm.LoadImmediate(a64.TMP, rt.ClampUint8(m.constantAt(value).I64))
		return
	}
	m.asm.SmiUntag(a64.TMP, value.Reg())
	m.asm.LoadImmediate(t, 0xff)
	m.asm.Cmp(a64.TMP, t)
	m.asm.Csel(a64.TMP, t, a64.TMP, a64.GT)
	m.asm.CompareImmediate(a64.TMP, 0, regalloc.RealRegInvalid)
	m.asm.Csel(a64.TMP, a64.XZR, a64.TMP, a64.LT)
}
