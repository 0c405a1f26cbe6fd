package patcher

import (
	"fmt"
	"strings"

	"github.com/QuarkChain/go-evmrepair/repair"
)

// maxInstrShown caps the instructions listed in a node label.
const maxInstrShown = 20

// ToDot returns a Graphviz DOT representation of the graph. Blocks that
// jump to revert are drawn with a dashed edge.
func ToDot(g *repair.ControlFlowGraph, revertPC uint64) string {
	var sb strings.Builder
	sb.WriteString("digraph CFG {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, fontname=\"Courier\"];\n")

	for _, b := range g.Blocks() {
		label := fmt.Sprintf("Block %d\\nPC: %d..%d\\n%s", b.Start(), b.Start(), b.End(), b.Type())
		for i := 0; i < b.Len(); i++ {
			if i >= maxInstrShown {
				label += "\\n..."
				break
			}
			label += "\\n" + strings.ReplaceAll(b.Instruction(i).String(), "\"", "\\\"")
		}
		attrs := ""
		if b.Start() == revertPC {
			attrs = ", style=filled, fillcolor=\"#f4cccc\""
		}
		fmt.Fprintf(&sb, "  %d [label=\"%s\"%s];\n", b.Start(), label, attrs)

		for _, succ := range g.Successors(b.Start()) {
			if succ == revertPC {
				fmt.Fprintf(&sb, "  %d -> %d [style=dashed];\n", b.Start(), succ)
			} else {
				fmt.Fprintf(&sb, "  %d -> %d;\n", b.Start(), succ)
			}
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
