// Package arm64 implements the arm64 assembler: mnemonic emission over
// an asm.Buffer, label fix-up, and the composite sequences the code
// generator leans on (immediates, tagged-value helpers, barriers).
package arm64

import (
	"fmt"

	"github.com/driftvm/drift/internal/backend/regalloc"
)

// General-purpose registers. RealReg 0 stays invalid.
const (
	X0 regalloc.RealReg = 1 + iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29
	X30
	XZR
	SP
)

// Vector registers.
const (
	V0 regalloc.RealReg = 34 + iota
	V1
	V2
	V3
	V4
	V5
	V6
	V7
	V8
	V9
	V10
	V11
	V12
	V13
	V14
	V15
	V16
	V17
	V18
	V19
	V20
	V21
	V22
	V23
	V24
	V25
	V26
	V27
	V28
	V29
	V30
	V31
)

// Fixed roles. TMP and TMP2 are the only registers composite sequences
// may clobber, and only when passed in explicitly.
const (
	TMP  = X16
	TMP2 = X17
	// THR holds the thread state block pointer.
	THR = X26
	FP  = X29
	LR  = X30
	// VTMP is the vector scratch register.
	VTMP = V31

	// Calling convention roles.
	ReturnReg = X0
	// ArgsDescReg carries the arguments descriptor into calls.
	ArgsDescReg = X4
	// ICDataReg carries the call-site cache into instance-call stubs.
	ICDataReg = X5
	// Array allocation stub inputs.
	ArrayTypeArgsReg = X1
	ArrayLengthReg   = X2
	// FpuReturnReg holds unboxed float results.
	FpuReturnReg = V0
)

// IsFpu reports whether r is a vector register.
func IsFpu(r regalloc.RealReg) bool { return r >= V0 && r <= V31 }

// hw returns the 5-bit hardware number of r. XZR and SP share 31; the
// encoders pick the right interpretation per instruction format.
func hw(r regalloc.RealReg) uint32 {
	switch {
	case r >= X0 && r <= X30:
		return uint32(r - X0)
	case r == XZR || r == SP:
		return 31
	case r >= V0 && r <= V31:
		return uint32(r - V0)
	}
	panic(fmt.Sprintf("BUG: invalid register %d", r))
}

// RegName returns the listing name of r.
func RegName(r regalloc.RealReg) string {
	switch {
	case r >= X0 && r <= X30:
		return fmt.Sprintf("x%d", r-X0)
	case r == XZR:
		return "xzr"
	case r == SP:
		return "sp"
	case r >= V0 && r <= V31:
		return fmt.Sprintf("d%d", r-V0)
	}
	return "r?"
}

func fpName(r regalloc.RealReg, size int) string {
	switch size {
	case 4:
		return fmt.Sprintf("s%d", r-V0)
	case 8:
		return fmt.Sprintf("d%d", r-V0)
	case 16:
		return fmt.Sprintf("q%d", r-V0)
	}
	panic("BUG: bad fp size")
}

// RegisterInfo describes the allocatable file to the external
// allocator. TMP, TMP2, VTMP, THR, FP, LR, X18 (platform) and SP never
// participate.
func RegisterInfo() *regalloc.RegisterInfo {
	info := &regalloc.RegisterInfo{
		CalleeSavedRegisters: map[regalloc.RealReg]struct{}{},
		CallerSavedRegisters: map[regalloc.RealReg]struct{}{},
		RealRegName:          RegName,
	}
	for r := X0; r <= X15; r++ {
		info.AllocatableRegisters[regalloc.RegTypeInt] = append(info.AllocatableRegisters[regalloc.RegTypeInt], r)
		info.CallerSavedRegisters[r] = struct{}{}
	}
	for r := X19; r <= X25; r++ {
		info.AllocatableRegisters[regalloc.RegTypeInt] = append(info.AllocatableRegisters[regalloc.RegTypeInt], r)
		info.CalleeSavedRegisters[r] = struct{}{}
	}
	info.AllocatableRegisters[regalloc.RegTypeInt] = append(info.AllocatableRegisters[regalloc.RegTypeInt], X27, X28)
	info.CalleeSavedRegisters[X27] = struct{}{}
	info.CalleeSavedRegisters[X28] = struct{}{}
	for r := V0; r <= V30; r++ {
		info.AllocatableRegisters[regalloc.RegTypeFloat] = append(info.AllocatableRegisters[regalloc.RegTypeFloat], r)
		if r >= V8 && r <= V15 {
			info.CalleeSavedRegisters[r] = struct{}{}
		} else {
			info.CallerSavedRegisters[r] = struct{}{}
		}
	}
	return info
}
