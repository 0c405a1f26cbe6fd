// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package repair

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"
)

// List of repair errors. Every typed error below unwraps to one of these so
// callers can match with errors.Is.
var (
	ErrMalformedBlock         = errors.New("malformed block")
	ErrUnresolvedJumpOrigin   = errors.New("jump to dynamic location")
	ErrDuplicateOrigin        = errors.New("multiple origins for jump")
	ErrInstructionNotFound    = errors.New("instruction not in block")
	ErrSplitWithoutJump       = errors.New("split block without middle jump")
	ErrUnknownBlockType       = errors.New("unknown block type")
	ErrUnknownJumpTarget      = errors.New("jump target is not a block start")
	ErrTooManyFixupIterations = errors.New("jump fixup did not reach a fixed point")
	ErrRevisionExists         = errors.New("instruction already revised")
	ErrInvalidOrigin          = errors.New("jump origin must be a PUSH")
	ErrInvalidGraph           = errors.New("invalid control flow graph")
	ErrInvalidInstruction     = errors.New("invalid instruction")
	ErrUnsupportedGuardOpcode = errors.New("opcode not supported by guard simulator")
	ErrGuardStackUnderflow    = errors.New("stack underflow")
)

// MalformedBlockError is returned when a block whose type demands a trailing
// JUMP/JUMPI does not end with one.
type MalformedBlockError struct {
	Block uint64
	Type  BlockType
	Last  vm.OpCode
	Empty bool
}

func (e *MalformedBlockError) Error() string {
	if e.Empty {
		return fmt.Sprintf("malformed block at %d: no instructions", e.Block)
	}
	return fmt.Sprintf("malformed block at %d: %s block ends with %v", e.Block, e.Type, e.Last)
}

func (e *MalformedBlockError) Unwrap() error { return ErrMalformedBlock }

// UnresolvedJumpOriginError marks a jump whose target is not supplied by a
// known PUSH instruction.
type UnresolvedJumpOriginError struct {
	Block uint64
	Jump  InstrRef
}

func (e *UnresolvedJumpOriginError) Error() string {
	return fmt.Sprintf("jump to dynamic location in block %d (instruction %d)", e.Block, e.Jump)
}

func (e *UnresolvedJumpOriginError) Unwrap() error { return ErrUnresolvedJumpOrigin }

// DuplicateOriginError is returned when a second, different origin is
// assigned to a jump.
type DuplicateOriginError struct {
	Jump     InstrRef
	Existing InstrRef
	Proposed InstrRef
}

func (e *DuplicateOriginError) Error() string {
	return fmt.Sprintf("multiple origins for jump %d: have %d, got %d", e.Jump, e.Existing, e.Proposed)
}

func (e *DuplicateOriginError) Unwrap() error { return ErrDuplicateOrigin }

// InstructionNotFoundError is returned when an instruction identity cannot
// be located, even through its revision chain.
type InstructionNotFoundError struct {
	Instr InstrRef
	Block uint64
	// Detached is set when the instruction is not owned by any block.
	Detached bool
}

func (e *InstructionNotFoundError) Error() string {
	if e.Detached {
		return fmt.Sprintf("instruction %d is not owned by any block", e.Instr)
	}
	return fmt.Sprintf("instruction %d not in block %d", e.Instr, e.Block)
}

func (e *InstructionNotFoundError) Unwrap() error { return ErrInstructionNotFound }

// SplitWithoutJumpError is returned when a split is requested for a block
// without a jump before its last instruction.
type SplitWithoutJumpError struct {
	Block uint64
}

func (e *SplitWithoutJumpError) Error() string {
	return fmt.Sprintf("split block without middle jump (block %d)", e.Block)
}

func (e *SplitWithoutJumpError) Unwrap() error { return ErrSplitWithoutJump }

// UnknownBlockTypeError is returned when edge computation meets a block type
// outside the known set.
type UnknownBlockTypeError struct {
	Block uint64
	Type  BlockType
}

func (e *UnknownBlockTypeError) Error() string {
	return fmt.Sprintf("unknown block type '%d' (block %d)", uint8(e.Type), e.Block)
}

func (e *UnknownBlockTypeError) Unwrap() error { return ErrUnknownBlockType }

// UnknownJumpTargetError is returned when a jump target does not match the
// start address of any block.
type UnknownJumpTargetError struct {
	Block  uint64
	Target uint64
}

func (e *UnknownJumpTargetError) Error() string {
	return fmt.Sprintf("block %d jumps to %d, which is not a block start", e.Block, e.Target)
}

func (e *UnknownJumpTargetError) Unwrap() error { return ErrUnknownJumpTarget }

// TooManyFixupIterationsError is returned when jump fixup keeps changing
// PUSH widths past the configured number of passes.
type TooManyFixupIterationsError struct {
	Limit int
}

func (e *TooManyFixupIterationsError) Error() string {
	return fmt.Sprintf("jump fixup did not converge after %d passes", e.Limit)
}

func (e *TooManyFixupIterationsError) Unwrap() error { return ErrTooManyFixupIterations }

// ErrStackUnderflow wraps a guard simulation error when the items on the
// stack are less than the minimal requirement.
type ErrStackUnderflow struct {
	stackLen int
	required int
}

func (e ErrStackUnderflow) Error() string {
	return fmt.Sprintf("stack underflow (%d <=> %d)", e.stackLen, e.required)
}

func (e ErrStackUnderflow) Unwrap() error {
	return ErrGuardStackUnderflow
}
