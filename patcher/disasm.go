package patcher

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/QuarkChain/go-evmrepair/repair"
)

var (
	ErrTruncatedCode = errors.New("truncated instruction at end of code")
	ErrEmptyCode     = errors.New("empty code")
)

// Disassembly maps program counters of the original code to the instructions
// they decoded into.
type Disassembly struct {
	Graph *repair.ControlFlowGraph
	pcs   map[uint64]repair.InstrRef
}

// InstructionAt returns the instruction decoded at pc in the original code.
func (d *Disassembly) InstructionAt(pc uint64) (repair.InstrRef, bool) {
	ref, ok := d.pcs[pc]
	return ref, ok
}

type decoded struct {
	pc  uint64
	ref repair.InstrRef
	op  vm.OpCode
}

// endsBlock reports whether the instruction after op starts a new block.
func endsBlock(op vm.OpCode) bool {
	switch op {
	case vm.STOP, vm.RETURN, vm.REVERT, vm.INVALID, vm.SELFDESTRUCT, vm.JUMP, vm.JUMPI:
		return true
	}
	return false
}

// Disassemble decodes legacy bytecode into a control flow graph. Blocks start
// at PC 0, at every JUMPDEST and after every terminator or branch. A jump
// whose preceding instruction in the block is a PUSH gets that PUSH as its
// origin and its value as the jump target; other jumps are left unresolved.
func Disassemble(code []byte, opts *repair.RepairOpts) (*repair.ControlFlowGraph, *Disassembly, error) {
	if len(code) == 0 {
		return nil, nil, ErrEmptyCode
	}
	arena := repair.NewArena()
	d := &Disassembly{pcs: make(map[uint64]repair.InstrRef)}

	var (
		blocks  [][]decoded
		current []decoded
	)
	for pc := uint64(0); pc < uint64(len(code)); pc++ {
		op := vm.OpCode(code[pc])
		if op == vm.JUMPDEST && len(current) > 0 {
			blocks = append(blocks, current)
			current = nil
		}
		ins := repair.Instruction{Op: op}
		if op.IsPush() {
			size := uint64(op - vm.PUSH0)
			if pc+size >= uint64(len(code)) {
				return nil, nil, fmt.Errorf("%w: %v at pc %d needs %d bytes", ErrTruncatedCode, op, pc, size)
			}
			ins.Imm = append([]byte(nil), code[pc+1:pc+1+size]...)
		}
		ref := arena.Add(ins)
		d.pcs[pc] = ref
		current = append(current, decoded{pc: pc, ref: ref, op: op})
		if endsBlock(op) {
			blocks = append(blocks, current)
			current = nil
		}
		pc += uint64(len(ins.Imm))
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}

	vertices := make(map[uint64]*repair.BasicBlock, len(blocks))
	for i, instrs := range blocks {
		refs := make([]repair.InstrRef, len(instrs))
		for j, in := range instrs {
			refs[j] = in.ref
		}
		last := instrs[len(instrs)-1]

		var (
			typ    repair.BlockType
			target uint64
		)
		switch {
		case last.op == vm.JUMP || last.op == vm.JUMPI:
			typ = repair.Unconditional
			if last.op == vm.JUMPI {
				typ = repair.Conditional
			}
			if len(instrs) > 1 {
				prev := instrs[len(instrs)-2]
				if push := arena.Get(prev.ref); push.IsPush() {
					if err := arena.SetJumpOrigin(last.ref, prev.ref); err != nil {
						return nil, nil, err
					}
					target, _ = push.Uint64()
				}
			}
		case endsBlock(last.op) || i == len(blocks)-1:
			typ = repair.Terminal
		default:
			typ = repair.FallsTo
		}
		start := instrs[0].pc
		vertices[start] = repair.NewBasicBlock(arena, start, typ, refs, target)
	}

	g, err := repair.NewControlFlowGraph(arena, vertices, nil, opts)
	if err != nil {
		return nil, nil, err
	}
	d.Graph = g
	return g, d, nil
}

// Resolve maps findings onto the decoded instructions.
func (d *Disassembly) Resolve(findings []Finding) ([]repair.ArithmeticErrorFinding, error) {
	out := make([]repair.ArithmeticErrorFinding, 0, len(findings))
	for _, f := range findings {
		ref, ok := d.InstructionAt(f.PC)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrNoInstructionAtPC, f.PC)
		}
		kind, err := repair.ParseErrorKind(f.Kind)
		if err != nil {
			return nil, err
		}
		out = append(out, repair.ArithmeticErrorFinding{
			Validated:   f.IsValidated(),
			Kind:        kind,
			Instruction: ref,
		})
	}
	return out, nil
}
