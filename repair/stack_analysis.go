package repair

import (
	"github.com/ethereum/go-ethereum/core/vm"
)

// stackInput returns the number of stack items an opcode consumes
func stackInput(op vm.OpCode) int {
	switch op {
	case vm.STOP, vm.JUMPDEST, vm.PC, vm.MSIZE, vm.GAS:
		return 0
	case vm.POP, vm.JUMP, vm.MLOAD, vm.SLOAD, vm.ISZERO, vm.NOT:
		return 1
	case vm.ADD, vm.MUL, vm.SUB, vm.DIV, vm.SDIV, vm.MOD, vm.SMOD, vm.EXP, vm.SIGNEXTEND,
		vm.LT, vm.GT, vm.SLT, vm.SGT, vm.EQ, vm.AND, vm.OR, vm.XOR, vm.BYTE,
		vm.SHL, vm.SHR, vm.SAR, vm.MSTORE, vm.MSTORE8, vm.SSTORE, vm.JUMPI, vm.RETURN, vm.REVERT:
		return 2
	case vm.ADDMOD, vm.MULMOD:
		return 3
	}
	return 0 // PUSH, DUP and SWAP consume nothing
}

// stackOutput returns the number of stack items an opcode produces
func stackOutput(op vm.OpCode) int {
	switch op {
	case vm.STOP, vm.JUMP, vm.JUMPI, vm.JUMPDEST, vm.POP, vm.MSTORE, vm.MSTORE8, vm.SSTORE, vm.RETURN, vm.REVERT:
		return 0
	case vm.ADD, vm.MUL, vm.SUB, vm.DIV, vm.SDIV, vm.MOD, vm.SMOD, vm.EXP, vm.SIGNEXTEND,
		vm.LT, vm.GT, vm.SLT, vm.SGT, vm.EQ, vm.ISZERO, vm.AND, vm.OR, vm.XOR, vm.NOT, vm.BYTE,
		vm.SHL, vm.SHR, vm.SAR, vm.PC, vm.MSIZE, vm.GAS, vm.MLOAD, vm.SLOAD,
		vm.ADDMOD, vm.MULMOD:
		return 1
	}
	if isPush(op) || (op >= vm.DUP1 && op <= vm.DUP16) {
		return 1
	}
	return 0 // SWAP doesn't change stack size
}

// stackRequired returns the depth an opcode needs before it runs. DUPn and
// SWAPn touch items they do not consume.
func stackRequired(op vm.OpCode) int {
	switch {
	case op >= vm.DUP1 && op <= vm.DUP16:
		return int(op-vm.DUP1) + 1
	case op >= vm.SWAP1 && op <= vm.SWAP16:
		return int(op-vm.SWAP1) + 2
	}
	return stackInput(op)
}

// StackRequirement performs static analysis of a straight-line sequence and
// returns the number of items that must already be on the stack and the
// highest depth reached above that base.
func StackRequirement(ops []vm.OpCode) (required, peak int) {
	depth := 0
	for _, op := range ops {
		if need := stackRequired(op) - depth; need > required {
			required = need
		}
		depth = depth - stackInput(op) + stackOutput(op)
		if depth > peak {
			peak = depth
		}
	}
	return required, peak
}
