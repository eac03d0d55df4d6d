package arm64

import (
	a64 "github.com/driftvm/drift/internal/asm/arm64"
)

// Fixed-register aliases used by call summaries.
const (
	returnReg        = a64.ReturnReg
	fpuReturnReg     = a64.FpuReturnReg
	argsDescReg      = a64.ArgsDescReg
	icDataReg        = a64.ICDataReg
	arrayTypeArgsReg = a64.ArrayTypeArgsReg
	arrayLengthReg   = a64.ArrayLengthReg

	// First three native argument registers, used by runtime entries
	// that take register arguments.
	arg0Reg = a64.X0
	arg1Reg = a64.X1
	arg2Reg = a64.X2
)
