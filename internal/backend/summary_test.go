package backend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftvm/drift/internal/backend/regalloc"
)

const (
	r0 regalloc.RealReg = 1 + iota
	r1
	r2
)

func TestSummaryConstraintThenBinding(t *testing.T) {
	s := NewLocationSummary(2, 1, CallNone)
	s.SetIn(0, RequiresRegister())
	s.SetIn(1, Any())
	s.SetTemp(0, RequiresRegister())
	s.SetOut(RequiresRegister())

	// Unbound reads panic.
	require.Panics(t, func() { s.In(0) })
	require.Panics(t, func() { s.Out() })

	s.AssignIn(0, RegisterLocation(r0))
	s.AssignIn(1, StackSlot(3))
	s.AssignTemp(0, RegisterLocation(r1))
	s.AssignOut(RegisterLocation(r2))

	require.Equal(t, RegisterLocation(r0), s.In(0))
	require.Equal(t, StackSlot(3), s.In(1))
	require.Equal(t, RegisterLocation(r1), s.Temp(0))
	require.Equal(t, RegisterLocation(r2), s.Out())
}

func TestSummaryBindingIsWriteOnce(t *testing.T) {
	s := NewLocationSummary(1, 0, CallNone)
	s.SetIn(0, RequiresRegister())
	s.AssignIn(0, RegisterLocation(r0))
	require.Panics(t, func() { s.AssignIn(0, RegisterLocation(r1)) })
}

func TestSummaryBindingMustSatisfyConstraint(t *testing.T) {
	s := NewLocationSummary(1, 0, CallNone)
	s.SetIn(0, RequiresRegister())
	require.Panics(t, func() { s.AssignIn(0, StackSlot(0)) })

	s2 := NewLocationSummary(1, 0, CallNone)
	s2.SetIn(0, RequiresFpuRegister())
	require.Panics(t, func() { s2.AssignIn(0, RegisterLocation(r0)) })
	s2 = NewLocationSummary(1, 0, CallNone)
	s2.SetIn(0, RequiresFpuRegister())
	s2.AssignIn(0, FpuRegisterLocation(r0))
	require.Equal(t, FpuRegisterLocation(r0), s2.In(0))
}

func TestConcreteConstraintIsItsOwnBinding(t *testing.T) {
	s := NewLocationSummary(1, 0, CallFull)
	s.SetIn(0, RegisterLocation(r0))
	// Readable without an allocator pass, and not rebindable.
	require.Equal(t, RegisterLocation(r0), s.In(0))
	require.Panics(t, func() { s.AssignIn(0, RegisterLocation(r1)) })

	s.SetOut(ConstantLocation(7))
	require.Equal(t, ConstantLocation(7), s.Out())
}

func TestPairLocation(t *testing.T) {
	p := PairLocationOf(RegisterLocation(r0), RegisterLocation(r1))
	require.True(t, p.IsPair())
	require.True(t, p.IsConcrete())
	require.Equal(t, RegisterLocation(r0), p.Pair().Lo)
	require.Equal(t, RegisterLocation(r1), p.Pair().Hi)

	// A pair of constraints awaits the allocator like any other
	// unallocated slot.
	c := PairLocationOf(RequiresRegister(), RequiresRegister())
	require.False(t, c.IsConcrete())
	s := NewLocationSummary(0, 0, CallNone)
	s.SetOut(c)
	require.Panics(t, func() { s.Out() })
	require.Panics(t, func() { s.AssignOut(RegisterLocation(r0)) })
	s.AssignOut(PairLocationOf(RegisterLocation(r0), RegisterLocation(r1)))
	require.Equal(t, RegisterLocation(r1), s.Out().Pair().Hi)
}

func TestRegisterSet(t *testing.T) {
	var s RegisterSet
	require.True(t, s.IsEmpty())
	s.Add(r0)
	s.Add(r2)
	require.True(t, s.Has(r0))
	require.False(t, s.Has(r1))
	require.Equal(t, 2, s.Count())

	s.Remove(r0)
	require.False(t, s.Has(r0))
	require.Equal(t, 1, s.Count())

	var got []regalloc.RealReg
	s.Range(func(r regalloc.RealReg) { got = append(got, r) })
	require.Equal(t, []regalloc.RealReg{r2}, got)
}

func TestLocationAccessorsGuardKind(t *testing.T) {
	l := RegisterLocation(r0)
	require.Panics(t, func() { l.FpuReg() })
	require.Panics(t, func() { l.StackIndex() })
	require.Panics(t, func() { l.ConstIdx() })
	require.Panics(t, func() { Any().Reg() })
}
