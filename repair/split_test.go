package repair

import (
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/ethereum/go-ethereum/core/vm"
)

func TestSplitBlockConditional(t *testing.T) {
	g := newTestGraph(t, nil,
		testBlock{typ: FallsTo, ops: []string{"PUSH1 0x01", "PUSH1 0x0a", "JUMPI", "PUSH1 0x02", "POP"}},
		testBlock{typ: Terminal, ops: []string{"JUMPDEST", "STOP"}},
		testBlock{typ: Terminal, ops: []string{"JUMPDEST", "STOP"}},
	)
	b := g.Blocks()[0]
	jumpi := b.Instructions()[2]
	if err := g.Arena().SetJumpOrigin(jumpi, b.Instructions()[1]); err != nil {
		t.Fatal(err)
	}
	before := graphOps(g)

	nb, err := g.SplitBlock(b)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}

	// Concatenating the halves gives back the original instructions.
	after := graphOps(g)
	want := append([][]string{before[0][:3], before[0][3:]}, before[1:]...)
	if !reflect.DeepEqual(after, want) {
		t.Fatalf("Expected blocks %v, got %v", want, after)
	}
	if b.Type() != Conditional || nb.Type() != FallsTo {
		t.Fatalf("Expected conditional/falls_to, got %v/%v", b.Type(), nb.Type())
	}
	if b.Start() != 0 || nb.Start() != 5 || b.FallsTo() != 5 || b.JumpTarget() != 10 {
		t.Fatalf("Unexpected layout: %v falls to %d jumps to %d, tail %v", b, b.FallsTo(), b.JumpTarget(), nb)
	}
	if got := g.Successors(0); !slices.Equal(got, []uint64{5, 10}) {
		t.Fatalf("Expected successors [5 10], got %v", got)
	}
	if got := g.Successors(5); !slices.Equal(got, []uint64{8}) {
		t.Fatalf("Expected tail successors [8], got %v", got)
	}
	for _, ref := range nb.Instructions() {
		if g.Arena().Owner(ref) != nb {
			t.Fatalf("Tail instruction %d not owned by new block", ref)
		}
	}
	checkJumps(t, g)
}

func TestSplitBlockUnconditionalInheritsTarget(t *testing.T) {
	g := newTestGraph(t, nil,
		testBlock{typ: Unconditional, ops: []string{"PUSH1 0x08", "JUMP", "JUMPDEST", "PUSH1 0x0a", "JUMP"}, target: 10},
		testBlock{typ: Terminal, ops: []string{"STOP"}},
		testBlock{typ: Terminal, ops: []string{"JUMPDEST", "STOP"}},
		testBlock{typ: Terminal, ops: []string{"JUMPDEST", "STOP"}},
	)
	b := g.Blocks()[0]
	if err := g.Arena().SetJumpOrigin(b.Instructions()[1], b.Instructions()[0]); err != nil {
		t.Fatal(err)
	}
	nb, err := g.SplitBlock(b)
	if err != nil {
		t.Fatal(err)
	}
	if b.Type() != Unconditional || b.JumpTarget() != 8 {
		t.Fatalf("Expected head to jump to 8, got %v to %d", b.Type(), b.JumpTarget())
	}
	if nb.Type() != Unconditional || nb.JumpTarget() != 10 || nb.Start() != 3 {
		t.Fatalf("Expected tail at 3 jumping to 10, got %v to %d", nb, nb.JumpTarget())
	}
	if got := g.Successors(0); !slices.Equal(got, []uint64{8}) {
		t.Fatalf("Expected successors [8], got %v", got)
	}
	if got := g.Successors(3); !slices.Equal(got, []uint64{10}) {
		t.Fatalf("Expected tail successors [10], got %v", got)
	}
	checkJumps(t, g)
}

func TestSplitBlockErrors(t *testing.T) {
	g := newTestGraph(t, nil,
		testBlock{typ: Unconditional, ops: []string{"PUSH1 0x03", "JUMP"}, target: 3},
		testBlock{typ: FallsTo, ops: []string{"JUMPDEST", "CALLVALUE", "JUMP", "STOP"}},
		testBlock{typ: Terminal, ops: []string{"STOP"}},
	)
	var sw *SplitWithoutJumpError
	if _, err := g.SplitBlock(g.Blocks()[0]); !errors.As(err, &sw) || !errors.Is(err, ErrSplitWithoutJump) {
		t.Fatalf("Expected SplitWithoutJumpError, got %v", err)
	}
	var ur *UnresolvedJumpOriginError
	if _, err := g.SplitBlock(g.Blocks()[1]); !errors.As(err, &ur) {
		t.Fatalf("Expected UnresolvedJumpOriginError, got %v", err)
	}
}

func TestProvisionalAddressSkipsUsedKeys(t *testing.T) {
	arena := NewArena()
	b0 := NewBasicBlock(arena, 0, Terminal, arena.AddAll(NewInstruction(vm.STOP)), 0)
	b1 := NewBasicBlock(arena, 1, Terminal, arena.AddAll(NewInstruction(vm.STOP)), 0)
	b2 := NewBasicBlock(arena, 2, Terminal, arena.AddAll(NewInstruction(vm.STOP)), 0)
	g, err := NewControlFlowGraph(arena, map[uint64]*BasicBlock{0: b0, 1: b1, 2: b2}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if key := g.provisionalAddress(b0); key != 3 {
		t.Fatalf("Expected key 3, got %d", key)
	}
}
