package repair

import (
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/core/vm"
)

// SplitBlock cuts b after its first JUMP or JUMPI that is not the last
// instruction. The tail becomes a new block laid out directly after b and
// inheriting b's type and jump target, while b turns into a jump block
// targeting the value its jump origin pushes. The graph is relaid out before
// returning the new block.
func (g *ControlFlowGraph) SplitBlock(b *BasicBlock) (*BasicBlock, error) {
	idx := -1
	for i := 0; i < len(b.instrs)-1; i++ {
		if b.Instruction(i).IsJump() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, &SplitWithoutJumpError{Block: b.start}
	}
	jump := b.instrs[idx]
	origin := g.arena.JumpOrigin(jump)
	if origin == NoInstr {
		return nil, &UnresolvedJumpOriginError{Block: b.start, Jump: jump}
	}
	target, ok := g.arena.Get(g.arena.Live(origin)).Uint64()
	if !ok {
		return nil, fmt.Errorf("%w: origin of jump %d pushes %v", ErrUnknownJumpTarget, jump, g.arena.Get(g.arena.Live(origin)))
	}

	key := g.provisionalAddress(b)
	nb := &BasicBlock{
		arena:      g.arena,
		start:      key,
		typ:        b.typ,
		jumpTarget: b.jumpTarget,
	}
	nb.SetInstructions(b.instrs[idx+1:])
	nb.relocate(key)
	b.instrs = slices.Clip(b.instrs[:idx+1])

	if b.Instruction(idx).Op == vm.JUMPI {
		b.typ = Conditional
	} else {
		b.typ = Unconditional
	}
	b.fallsTo = key
	b.jumpTarget = target

	g.edges[key] = g.edges[b.start]
	if b.typ == Conditional {
		succ := []uint64{target, key}
		slices.Sort(succ)
		g.edges[b.start] = succ
	} else {
		g.edges[b.start] = []uint64{target}
	}
	g.insertAfter(b, nb)

	g.log.Debug("Split basic block", "block", b.start, "tail", key, "type", nb.typ, "target", target)
	if err := g.FixJumps(); err != nil {
		return nil, err
	}
	return nb, nil
}
