package repair

import (
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

// GuardTemplate replaces one arithmetic instruction with a sequence that
// leaves the arithmetic result below a flag word. The flag is non-zero
// exactly when the operation must revert.
type GuardTemplate struct {
	Kind ErrorKind
	Op   vm.OpCode
	Ops  []vm.OpCode

	pivot int // index of Op within Ops
}

func newGuardTemplate(kind ErrorKind, op vm.OpCode, ops ...vm.OpCode) *GuardTemplate {
	pivot := slices.Index(ops, op)
	if pivot < 0 {
		panic(fmt.Sprintf("guard template for %v does not contain it", op))
	}
	return &GuardTemplate{Kind: kind, Op: op, Ops: ops, pivot: pivot}
}

// Templates operate on a stack holding a on top of b.
var guardTemplates = []*GuardTemplate{
	newGuardTemplate(Overflow, vm.ADD,
		vm.DUP1, vm.SWAP2, vm.ADD, vm.SWAP1, vm.DUP2, vm.LT),
	newGuardTemplate(Underflow, vm.SUB,
		vm.DUP1, vm.SWAP2, vm.SWAP1, vm.SUB, vm.SWAP1, vm.DUP2, vm.GT),
	newGuardTemplate(Overflow, vm.MUL,
		vm.DUP2, vm.DUP2, vm.MUL, vm.SWAP2, vm.SWAP1, vm.DUP2, vm.DUP4, vm.DIV, vm.EQ,
		vm.SWAP1, vm.ISZERO, vm.OR, vm.ISZERO),
	newGuardTemplate(Division, vm.DIV,
		vm.DUP2, vm.SWAP1, vm.DIV, vm.SWAP1, vm.ISZERO),
}

// LookupGuard returns the template for an error kind on opcode op, or nil if
// the pair is not guarded.
func LookupGuard(kind ErrorKind, op vm.OpCode) *GuardTemplate {
	for _, t := range guardTemplates {
		if t.Kind == kind && t.Op == op {
			return t
		}
	}
	return nil
}

// GuardTemplates lists every supported (kind, opcode) pair.
func GuardTemplates() []*GuardTemplate {
	return slices.Clone(guardTemplates)
}

// instantiate stores the template in the arena. The slot of the guarded
// opcode is filled with arith so the original instruction stays in place.
func (t *GuardTemplate) instantiate(arena *Arena, arith InstrRef) []InstrRef {
	refs := make([]InstrRef, len(t.Ops))
	for i, op := range t.Ops {
		if i == t.pivot {
			refs[i] = arith
			continue
		}
		refs[i] = arena.Add(NewInstruction(op))
	}
	return refs
}

// ByteLength is the number of bytes the template adds over the original
// instruction, excluding the jump to the revert block.
func (t *GuardTemplate) ByteLength() uint64 {
	return uint64(len(t.Ops) - 1)
}

// StackRequirement returns the operands the template consumes and the extra
// depth it needs while running.
func (t *GuardTemplate) StackRequirement() (required, peak int) {
	return StackRequirement(t.Ops)
}

// Evaluate runs the template on operands a (top of stack) and b. It returns
// the value the guarded instruction produces and whether the guard trips.
func (t *GuardTemplate) Evaluate(a, b *uint256.Int) (*uint256.Int, bool, error) {
	st := newStack(b, a)
	if err := runGuard(st, t.Ops); err != nil {
		return nil, false, err
	}
	if st.Len() != 2 {
		return nil, false, fmt.Errorf("guard %v/%v left %d items, expected 2", t.Kind, t.Op, st.Len())
	}
	flag := st.pop()
	return st.pop(), !flag.IsZero(), nil
}

// Trips reports whether the guard would jump to the revert block.
func (t *GuardTemplate) Trips(a, b *uint256.Int) (bool, error) {
	_, trips, err := t.Evaluate(a, b)
	return trips, err
}

// runGuard interprets the small opcode subset guard sequences are built
// from.
func runGuard(st *Stack, ops []vm.OpCode) error {
	for _, op := range ops {
		if need := stackRequired(op); st.Len() < need {
			return ErrStackUnderflow{stackLen: st.Len(), required: need}
		}
		switch {
		case op >= vm.DUP1 && op <= vm.DUP16:
			st.dup(int(op-vm.DUP1) + 1)
			continue
		case op >= vm.SWAP1 && op <= vm.SWAP16:
			st.swap(int(op-vm.SWAP1) + 1)
			continue
		}
		switch op {
		case vm.ADD:
			x, y := st.pop(), st.peek()
			y.Add(x, y)
		case vm.SUB:
			x, y := st.pop(), st.peek()
			y.Sub(x, y)
		case vm.MUL:
			x, y := st.pop(), st.peek()
			y.Mul(x, y)
		case vm.DIV:
			x, y := st.pop(), st.peek()
			y.Div(x, y)
		case vm.LT:
			x, y := st.pop(), st.peek()
			setBool(y, x.Lt(y))
		case vm.GT:
			x, y := st.pop(), st.peek()
			setBool(y, x.Gt(y))
		case vm.EQ:
			x, y := st.pop(), st.peek()
			setBool(y, x.Eq(y))
		case vm.OR:
			x, y := st.pop(), st.peek()
			y.Or(x, y)
		case vm.ISZERO:
			x := st.peek()
			setBool(x, x.IsZero())
		default:
			return fmt.Errorf("%w: %v", ErrUnsupportedGuardOpcode, op)
		}
	}
	return nil
}

func setBool(z *uint256.Int, v bool) {
	if v {
		z.SetOne()
	} else {
		z.Clear()
	}
}
