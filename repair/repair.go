package repair

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/core/vm"
)

// ErrorKind is the class of arithmetic fault a finding reports.
type ErrorKind uint8

const (
	Overflow ErrorKind = iota
	Underflow
	Division
)

func (k ErrorKind) String() string {
	switch k {
	case Overflow:
		return "Overflow"
	case Underflow:
		return "Underflow"
	case Division:
		return "Division"
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// ParseErrorKind accepts the names produced by ErrorKind.String, in any
// case.
func ParseErrorKind(s string) (ErrorKind, error) {
	for _, k := range []ErrorKind{Overflow, Underflow, Division} {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown arithmetic error kind %q", s)
}

// ArithmeticErrorFinding marks an instruction an analyzer found unsafe.
// Instruction may be any revision of it.
type ArithmeticErrorFinding struct {
	Validated   bool
	Kind        ErrorKind
	Instruction InstrRef
}

// Report summarizes a Repair run.
type Report struct {
	Guarded     int // findings replaced by a guard
	Skipped     int // validated findings with no template, or on an already guarded instruction
	Unvalidated int
	RevertBlock *BasicBlock
}

// revertInstructions is the body of the shared revert block.
var revertInstructions = []Instruction{
	NewInstruction(vm.JUMPDEST),
	{Op: vm.PUSH1, Imm: []byte{0x00}},
	NewInstruction(vm.DUP1),
	NewInstruction(vm.REVERT),
}

// Repair appends a shared revert block to g and guards every validated
// finding with the template matching its kind and opcode. Guarded blocks are
// split after the inserted JUMPI and the graph is relaid out after each
// guard.
func Repair(g *ControlFlowGraph, findings []ArithmeticErrorFinding) (*Report, error) {
	var start uint64
	if last := g.lastBlock(); last != nil {
		tail, err := sealTail(g, last)
		if err != nil {
			return nil, err
		}
		start = tail.start + tail.ByteLength()
	}
	revert := NewBasicBlock(g.arena, start, Terminal, g.arena.AddAll(revertInstructions...), 0)
	if err := g.appendBlock(revert); err != nil {
		return nil, err
	}
	report := &Report{RevertBlock: revert}

	guarded := make(map[InstrRef]bool)
	for _, f := range findings {
		if !f.Validated {
			report.Unvalidated++
			continue
		}
		ok, err := guard(g, revert, guarded, f)
		if err != nil {
			return report, err
		}
		if ok {
			report.Guarded++
		} else {
			report.Skipped++
		}
	}
	g.log.Debug("Repaired arithmetic findings", "guarded", report.Guarded, "skipped", report.Skipped,
		"unvalidated", report.Unvalidated, "revert", revert.start, "size", g.ByteLength())
	return report, nil
}

func guard(g *ControlFlowGraph, revert *BasicBlock, guarded map[InstrRef]bool, f ArithmeticErrorFinding) (bool, error) {
	live := g.arena.Live(f.Instruction)
	block := g.arena.Owner(live)
	if block == nil {
		return false, &InstructionNotFoundError{Instr: f.Instruction, Detached: true}
	}
	if guarded[live] {
		g.log.Warn("Arithmetic finding already guarded", "kind", f.Kind, "block", block.start)
		return false, nil
	}
	idx, err := block.IndexOf(live)
	if err != nil {
		return false, err
	}
	op := g.arena.Get(live).Op
	tmpl := LookupGuard(f.Kind, op)
	if tmpl == nil {
		g.log.Warn("No guard for arithmetic finding", "kind", f.Kind, "op", op, "block", block.start)
		return false, nil
	}

	push := g.arena.Add(NewPush(revert.start))
	jumpi := g.arena.Add(NewInstruction(vm.JUMPI))
	if err := g.arena.SetJumpOrigin(jumpi, push); err != nil {
		return false, err
	}
	refs := append(tmpl.instantiate(g.arena, block.instrs[idx]), push, jumpi)
	block.Splice(idx, 1, refs...)
	guarded[live] = true

	g.log.Debug("Inserted arithmetic guard", "kind", f.Kind, "op", op, "block", block.start, "index", idx)
	if block.Last() == jumpi {
		switch block.typ {
		case FallsTo:
			// The guard already ends the block: fall through as before, or revert.
			block.typ = Conditional
			block.jumpTarget = revert.start
			return true, g.FixJumps()
		case Terminal:
			// Running off the end of the code halts; keep that as an explicit tail.
			block.Splice(len(block.instrs), 0, g.arena.Add(NewInstruction(vm.STOP)))
		}
	}
	if _, err := g.SplitBlock(block); err != nil {
		return false, fmt.Errorf("guarding %v at block %d: %w", op, block.start, err)
	}
	return true, nil
}

// sealTail makes sure no path runs off the end of the code, which now
// continues into the revert block, and returns the final block. A trailing
// fall-through gets an explicit STOP.
func sealTail(g *ControlFlowGraph, last *BasicBlock) (*BasicBlock, error) {
	switch last.typ {
	case Conditional:
		stop := NewBasicBlock(g.arena, last.start+last.ByteLength(), Terminal,
			[]InstrRef{g.arena.Add(NewInstruction(vm.STOP))}, 0)
		if err := g.appendBlock(stop); err != nil {
			return nil, err
		}
		return stop, nil
	case Terminal, FallsTo:
		if ref := last.Last(); ref != NoInstr && halts(g.arena.Get(g.arena.Live(ref)).Op) {
			return last, nil
		}
		last.Splice(len(last.instrs), 0, g.arena.Add(NewInstruction(vm.STOP)))
		last.typ = Terminal
		last.relocate(last.start)
		g.edges[last.start] = []uint64{}
	}
	return last, nil
}

func halts(op vm.OpCode) bool {
	switch op {
	case vm.STOP, vm.RETURN, vm.REVERT, vm.INVALID, vm.SELFDESTRUCT:
		return true
	}
	return false
}
