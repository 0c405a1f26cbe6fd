package repair

import (
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/log"
)

// DefaultMaxFixupIterations bounds the number of relocation passes FixJumps
// runs before giving up.
const DefaultMaxFixupIterations = 64

type RepairOpts struct {
	MaxFixupIterations int        // Passes allowed to reach a layout fixed point
	Logger             log.Logger // Destination of graph events, log.Root() when nil
}

func DefaultRepairOpts() *RepairOpts {
	return &RepairOpts{
		MaxFixupIterations: DefaultMaxFixupIterations,
	}
}

// ControlFlowGraph owns a set of basic blocks, their successor table and
// the order the blocks are laid out in. It is not safe for concurrent use.
type ControlFlowGraph struct {
	arena *Arena
	opts  RepairOpts
	log   log.Logger

	layout     []*BasicBlock
	vertices   map[uint64]*BasicBlock
	edges      map[uint64][]uint64
	generation uint64
}

// NewControlFlowGraph builds a graph from blocks keyed by start address.
// When edges is nil the successor table is derived from the block types.
func NewControlFlowGraph(arena *Arena, vertices map[uint64]*BasicBlock, edges map[uint64][]uint64, opts *RepairOpts) (*ControlFlowGraph, error) {
	if opts == nil {
		opts = DefaultRepairOpts()
	}
	g := &ControlFlowGraph{
		arena:    arena,
		opts:     *opts,
		log:      opts.Logger,
		vertices: make(map[uint64]*BasicBlock, len(vertices)),
		edges:    make(map[uint64][]uint64, len(vertices)),
	}
	if g.log == nil {
		g.log = log.Root()
	}
	if g.opts.MaxFixupIterations <= 0 {
		g.opts.MaxFixupIterations = DefaultMaxFixupIterations
	}
	for addr, b := range vertices {
		if b.start != addr {
			return nil, fmt.Errorf("%w: block keyed at %d starts at %d", ErrInvalidGraph, addr, b.start)
		}
		if b.arena != arena {
			return nil, fmt.Errorf("%w: block %d uses a foreign arena", ErrInvalidGraph, addr)
		}
		g.vertices[addr] = b
		g.layout = append(g.layout, b)
	}
	slices.SortFunc(g.layout, func(x, y *BasicBlock) int {
		switch {
		case x.start < y.start:
			return -1
		case x.start > y.start:
			return 1
		}
		return 0
	})
	if edges == nil {
		for _, b := range g.layout {
			succ, err := successors(b)
			if err != nil {
				return nil, err
			}
			g.edges[b.start] = succ
		}
	} else {
		for addr, succ := range edges {
			g.edges[addr] = slices.Clone(succ)
		}
	}
	return g, nil
}

// Arena returns the instruction arena shared by all blocks.
func (g *ControlFlowGraph) Arena() *Arena { return g.arena }

// Generation counts completed fixup passes. Addresses read in one generation
// are meaningless in the next.
func (g *ControlFlowGraph) Generation() uint64 { return g.generation }

func (g *ControlFlowGraph) Len() int { return len(g.layout) }

// Block returns the block starting at addr.
func (g *ControlFlowGraph) Block(addr uint64) (*BasicBlock, bool) {
	b, ok := g.vertices[addr]
	return b, ok
}

// Blocks returns the blocks in layout order.
func (g *ControlFlowGraph) Blocks() []*BasicBlock {
	return slices.Clone(g.layout)
}

// Successors returns the successor addresses of the block at addr.
func (g *ControlFlowGraph) Successors(addr uint64) []uint64 {
	return slices.Clone(g.edges[addr])
}

// Edges returns a copy of the whole successor table.
func (g *ControlFlowGraph) Edges() map[uint64][]uint64 {
	out := make(map[uint64][]uint64, len(g.edges))
	for addr, succ := range g.edges {
		out[addr] = slices.Clone(succ)
	}
	return out
}

// ByteLength returns the size of the laid out code.
func (g *ControlFlowGraph) ByteLength() uint64 {
	var n uint64
	for _, b := range g.layout {
		n += b.ByteLength()
	}
	return n
}

// lastBlock returns the block with the highest start address.
func (g *ControlFlowGraph) lastBlock() *BasicBlock {
	if len(g.layout) == 0 {
		return nil
	}
	return g.layout[len(g.layout)-1]
}

// appendBlock places b after every existing block. Its start must be free
// and past the last block.
func (g *ControlFlowGraph) appendBlock(b *BasicBlock) error {
	if last := g.lastBlock(); last != nil && b.start <= last.start {
		return fmt.Errorf("%w: block at %d does not follow block at %d", ErrInvalidGraph, b.start, last.start)
	}
	succ, err := successors(b)
	if err != nil {
		return err
	}
	g.layout = append(g.layout, b)
	g.vertices[b.start] = b
	g.edges[b.start] = succ
	return nil
}

// insertAfter lays nb out directly after prev. Its start key must be unused.
func (g *ControlFlowGraph) insertAfter(prev, nb *BasicBlock) {
	idx := slices.Index(g.layout, prev)
	g.layout = slices.Insert(g.layout, idx+1, nb)
	g.vertices[nb.start] = nb
}

// provisionalAddress returns the first unused key above b's start. The key
// only has to be distinct until the next fixup pass renumbers every block.
func (g *ControlFlowGraph) provisionalAddress(b *BasicBlock) uint64 {
	key := b.start + 1
	for {
		if _, used := g.vertices[key]; !used {
			return key
		}
		key++
	}
}

// successors derives the edge list of b from its type.
func successors(b *BasicBlock) ([]uint64, error) {
	switch b.typ {
	case Terminal:
		return []uint64{}, nil
	case Unconditional:
		return []uint64{b.jumpTarget}, nil
	case Conditional:
		succ := []uint64{b.fallsTo, b.jumpTarget}
		slices.Sort(succ)
		return succ, nil
	case FallsTo:
		return []uint64{b.fallsTo}, nil
	}
	return nil, &UnknownBlockTypeError{Block: b.start, Type: b.typ}
}

// Validate checks the layout invariants: blocks tile the code without gaps
// or overlaps, every block's end and fall-through agree with its length, and
// the successor table matches the block types.
func (g *ControlFlowGraph) Validate() error {
	if len(g.vertices) != len(g.layout) {
		return fmt.Errorf("%w: %d vertices, %d laid out", ErrInvalidGraph, len(g.vertices), len(g.layout))
	}
	var next uint64
	for i, b := range g.layout {
		if g.vertices[b.start] != b {
			return fmt.Errorf("%w: block at %d is not keyed by its start", ErrInvalidGraph, b.start)
		}
		length := b.ByteLength()
		if length == 0 {
			return &MalformedBlockError{Block: b.start, Type: b.typ, Empty: true}
		}
		if i > 0 && b.start != next {
			return fmt.Errorf("%w: block at %d, expected %d", ErrInvalidGraph, b.start, next)
		}
		if b.end != b.start+length-1 {
			return fmt.Errorf("%w: block at %d ends at %d, length %d", ErrInvalidGraph, b.start, b.end, length)
		}
		if b.typ.hasFallthrough() && b.fallsTo != b.start+length {
			return fmt.Errorf("%w: block at %d falls to %d, length %d", ErrInvalidGraph, b.start, b.fallsTo, length)
		}
		want, err := successors(b)
		if err != nil {
			return err
		}
		if !slices.Equal(want, g.edges[b.start]) {
			return fmt.Errorf("%w: block at %d has edges %v, expected %v", ErrInvalidGraph, b.start, g.edges[b.start], want)
		}
		next = b.start + length
	}
	return nil
}
