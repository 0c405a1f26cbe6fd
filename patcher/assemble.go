package patcher

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/QuarkChain/go-evmrepair/repair"
)

// Assemble encodes the graph's blocks in address order.
func Assemble(g *repair.ControlFlowGraph) []byte {
	out := make([]byte, 0, g.ByteLength())
	for _, b := range g.Blocks() {
		for i := 0; i < b.Len(); i++ {
			out = append(out, b.Instruction(i).Bytes()...)
		}
	}
	return out
}

// AssembleHex returns the 0x-prefixed hex encoding of Assemble.
func AssembleHex(g *repair.ControlFlowGraph) string {
	return hexutil.Encode(Assemble(g))
}
