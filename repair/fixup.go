package repair

import (
	"github.com/holiman/uint256"
)

// FixJumps lays every block out from address zero and rewrites each jump
// origin to the new start of its target block. Rewriting can change PUSH
// widths, which moves blocks again, so passes repeat until nothing changes
// width or the iteration limit is hit.
func (g *ControlFlowGraph) FixJumps() error {
	limit := g.opts.MaxFixupIterations
	for pass := 1; pass <= limit; pass++ {
		dirty, err := g.fixJumpsOnce()
		if err != nil {
			return err
		}
		if !dirty {
			g.log.Trace("Jump fixup converged", "passes", pass, "generation", g.generation, "size", g.ByteLength())
			return nil
		}
		g.log.Trace("Jump origin width changed, relaying", "pass", pass)
	}
	return &TooManyFixupIterationsError{Limit: limit}
}

// fixJumpsOnce runs one relocation pass and reports whether any origin
// changed its encoded width.
func (g *ControlFlowGraph) fixJumpsOnce() (bool, error) {
	// Jump targets are addresses of the previous generation.
	targets := make(map[*BasicBlock]uint64, len(g.layout))
	for _, b := range g.layout {
		if b.typ.requiresJump() {
			targets[b] = b.jumpTarget
		}
	}

	vertices := make(map[uint64]*BasicBlock, len(g.layout))
	var addr uint64
	for _, b := range g.layout {
		if len(b.instrs) == 0 {
			return false, &MalformedBlockError{Block: b.start, Type: b.typ, Empty: true}
		}
		b.relocate(addr)
		vertices[addr] = b
		addr += b.ByteLength()
	}

	dirty := false
	for _, b := range g.layout {
		if !b.typ.requiresJump() {
			continue
		}
		jump, err := b.trailingJump()
		if err != nil {
			return false, err
		}
		origin := g.arena.JumpOrigin(jump)
		if origin == NoInstr {
			return false, &UnresolvedJumpOriginError{Block: b.start, Jump: jump}
		}
		target, ok := g.vertices[targets[b]]
		if !ok {
			return false, &UnknownJumpTargetError{Block: b.start, Target: targets[b]}
		}
		b.jumpTarget = target.start

		live := g.arena.Live(origin)
		cur := g.arena.Get(live)
		enc := newPushWord(uint256.NewInt(target.start))
		if cur.Equal(enc) {
			continue
		}
		if cur.Len() != enc.Len() {
			dirty = true
		}
		g.arena.Revise(live, enc)
	}

	edges := make(map[uint64][]uint64, len(g.layout))
	for _, b := range g.layout {
		succ, err := successors(b)
		if err != nil {
			return false, err
		}
		edges[b.start] = succ
	}
	g.vertices = vertices
	g.edges = edges
	g.generation++
	return dirty, nil
}
