package regalloc

// RegisterInfo describes the allocatable register file of a target to
// the external allocator.
type RegisterInfo struct {
	// AllocatableRegisters per register type. Reserved registers
	// (thread pointer, temporaries, fp, lr) never appear here.
	AllocatableRegisters [NumRegType][]RealReg
	CalleeSavedRegisters map[RealReg]struct{}
	CallerSavedRegisters map[RealReg]struct{}
	// RealRegName returns the target-level name used in listings.
	RealRegName func(r RealReg) string
}

// IsCalleeSaved reports whether r survives calls.
func (i *RegisterInfo) IsCalleeSaved(r RealReg) bool {
	_, ok := i.CalleeSavedRegisters[r]
	return ok
}

// IsCallerSaved reports whether r is clobbered by calls.
func (i *RegisterInfo) IsCallerSaved(r RealReg) bool {
	_, ok := i.CallerSavedRegisters[r]
	return ok
}
