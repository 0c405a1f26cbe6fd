package repair

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"
)

// BlockType classifies how control leaves a basic block.
type BlockType uint8

const (
	Terminal BlockType = iota
	Unconditional
	Conditional
	FallsTo
)

func (t BlockType) String() string {
	switch t {
	case Terminal:
		return "terminal"
	case Unconditional:
		return "unconditional"
	case Conditional:
		return "conditional"
	case FallsTo:
		return "falls_to"
	}
	return fmt.Sprintf("BlockType(%d)", uint8(t))
}

// ParseBlockType is the inverse of BlockType.String.
func ParseBlockType(s string) (BlockType, error) {
	switch s {
	case "terminal":
		return Terminal, nil
	case "unconditional":
		return Unconditional, nil
	case "conditional":
		return Conditional, nil
	case "falls_to":
		return FallsTo, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownBlockType, s)
}

// requiresJump reports whether the block must end with JUMP or JUMPI.
func (t BlockType) requiresJump() bool {
	return t == Unconditional || t == Conditional
}

// hasFallthrough reports whether execution may continue at the next block.
func (t BlockType) hasFallthrough() bool {
	return t == Conditional || t == FallsTo
}

// BasicBlock is a maximal straight-line run of instructions. Addresses are
// only valid for the generation of the graph that last laid the block out.
type BasicBlock struct {
	arena *Arena

	start      uint64
	end        uint64
	typ        BlockType
	fallsTo    uint64
	jumpTarget uint64

	instrs []InstrRef
}

// NewBasicBlock creates a block at start holding refs and takes ownership of
// them in the arena. The end and fall-through addresses are derived from the
// encoded length.
func NewBasicBlock(arena *Arena, start uint64, typ BlockType, refs []InstrRef, jumpTarget uint64) *BasicBlock {
	b := &BasicBlock{
		arena:      arena,
		start:      start,
		typ:        typ,
		jumpTarget: jumpTarget,
	}
	b.SetInstructions(refs)
	b.relocate(start)
	return b
}

func (b *BasicBlock) Start() uint64 { return b.start }

// End is the address of the last byte of the block.
func (b *BasicBlock) End() uint64 { return b.end }

func (b *BasicBlock) Type() BlockType { return b.typ }
func (b *BasicBlock) SetType(t BlockType) { b.typ = t }
func (b *BasicBlock) FallsTo() uint64 { return b.fallsTo }
func (b *BasicBlock) SetFallsTo(a uint64) { b.fallsTo = a }
func (b *BasicBlock) JumpTarget() uint64 { return b.jumpTarget }
func (b *BasicBlock) SetJumpTarget(a uint64) { b.jumpTarget = a }

// relocate places the block at start and recomputes end and fall-through.
func (b *BasicBlock) relocate(start uint64) {
	length := b.ByteLength()
	b.start = start
	b.end = start + length - 1
	if length == 0 {
		b.end = start
	}
	if b.typ.hasFallthrough() {
		b.fallsTo = start + length
	}
}

// Arena returns the revision arena the block's instructions live in.
func (b *BasicBlock) Arena() *Arena { return b.arena }

// Instructions returns the refs held by the block. The slice must not be
// modified by the caller.
func (b *BasicBlock) Instructions() []InstrRef { return b.instrs }

// Len returns the number of instructions.
func (b *BasicBlock) Len() int { return len(b.instrs) }

// Instruction returns the live instruction at idx.
func (b *BasicBlock) Instruction(idx int) Instruction {
	return b.arena.Get(b.arena.Live(b.instrs[idx]))
}

// SetInstructions replaces the instruction list and claims ownership of
// every ref.
func (b *BasicBlock) SetInstructions(refs []InstrRef) {
	b.instrs = append([]InstrRef(nil), refs...)
	for _, ref := range b.instrs {
		b.arena.setOwner(ref, b)
	}
}

// Splice removes n instructions at idx and inserts refs in their place.
// Removed instructions are detached unless they are reinserted.
func (b *BasicBlock) Splice(idx, n int, refs ...InstrRef) {
	for _, ref := range b.instrs[idx : idx+n] {
		if b.arena.Owner(ref) == b {
			b.arena.setOwner(ref, nil)
		}
	}
	out := make([]InstrRef, 0, len(b.instrs)-n+len(refs))
	out = append(out, b.instrs[:idx]...)
	out = append(out, refs...)
	out = append(out, b.instrs[idx+n:]...)
	b.instrs = out
	for _, ref := range refs {
		b.arena.setOwner(ref, b)
	}
}

// IndexOf returns the position of ref. An entry matches when it is ref or
// when ref is one of its earlier revisions.
func (b *BasicBlock) IndexOf(ref InstrRef) (int, error) {
	for i, have := range b.instrs {
		if b.arena.derivesFrom(b.arena.Live(have), ref) {
			return i, nil
		}
	}
	return -1, &InstructionNotFoundError{Instr: ref, Block: b.start}
}

// ByteLength is the encoded size of all live instructions.
func (b *BasicBlock) ByteLength() uint64 {
	var n uint64
	for _, ref := range b.instrs {
		n += b.arena.Get(b.arena.Live(ref)).Len()
	}
	return n
}

// Last returns the ref of the final instruction, or NoInstr for an empty
// block.
func (b *BasicBlock) Last() InstrRef {
	if len(b.instrs) == 0 {
		return NoInstr
	}
	return b.instrs[len(b.instrs)-1]
}

// trailingJump returns the final instruction if it is a JUMP/JUMPI that
// the block type demands.
func (b *BasicBlock) trailingJump() (InstrRef, error) {
	last := b.Last()
	if last == NoInstr {
		return NoInstr, &MalformedBlockError{Block: b.start, Type: b.typ, Empty: true}
	}
	op := b.arena.Get(b.arena.Live(last)).Op
	if op != vm.JUMP && op != vm.JUMPI {
		return NoInstr, &MalformedBlockError{Block: b.start, Type: b.typ, Last: op}
	}
	return last, nil
}

func (b *BasicBlock) String() string {
	return fmt.Sprintf("block[%d..%d %s]", b.start, b.end, b.typ)
}
