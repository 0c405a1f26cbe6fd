package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"

	"github.com/QuarkChain/go-evmrepair/patcher"
)

var maxWord = new(uint256.Int).SetAllOne()

func main() {
	fmt.Println("EVM Arithmetic Repair Demo")
	fmt.Print("==========================\n\n")

	fmt.Println("Demo 1: Addition Overflow (a + b)")
	demo(vm.ADD, "Overflow", [][2]*uint256.Int{
		{uint256.NewInt(5), uint256.NewInt(3)},
		{maxWord, uint256.NewInt(1)},
	})

	fmt.Print("\n" + strings.Repeat("-", 50) + "\n\n")

	fmt.Println("Demo 2: Subtraction Underflow (a - b)")
	demo(vm.SUB, "Underflow", [][2]*uint256.Int{
		{uint256.NewInt(10), uint256.NewInt(4)},
		{uint256.NewInt(4), uint256.NewInt(10)},
	})

	fmt.Print("\n" + strings.Repeat("-", 50) + "\n\n")

	fmt.Println("Demo 3: Multiplication Overflow (a * b)")
	demo(vm.MUL, "Overflow", [][2]*uint256.Int{
		{uint256.NewInt(6), uint256.NewInt(7)},
		{new(uint256.Int).Lsh(uint256.NewInt(1), 255), uint256.NewInt(2)},
	})

	fmt.Print("\n" + strings.Repeat("-", 50) + "\n\n")

	fmt.Println("Demo 4: Division by Zero (a / b)")
	demo(vm.DIV, "Division", [][2]*uint256.Int{
		{uint256.NewInt(42), uint256.NewInt(6)},
		{uint256.NewInt(42), uint256.NewInt(0)},
	})

	fmt.Println("\nAll demos completed.")
}

func program(op vm.OpCode) []byte {
	return []byte{
		0x60, 0x20, // PUSH1 0x20
		0x35,       // CALLDATALOAD (b)
		0x60, 0x00, // PUSH1 0x00
		0x35,       // CALLDATALOAD (a)
		byte(op),   // a <op> b
		0x60, 0x00, // PUSH1 0x00
		0x52,       // MSTORE
		0x60, 0x20, // PUSH1 0x20
		0x60, 0x00, // PUSH1 0x00
		0xf3,       // RETURN
	}
}

func demo(op vm.OpCode, kind string, inputs [][2]*uint256.Int) {
	code := program(op)
	fmt.Printf("Original: %x\n", code)

	p := patcher.New(nil)
	res, err := p.Patch(code, []patcher.Finding{{PC: 6, Kind: kind}})
	if err != nil {
		log.Printf("Patch failed: %v", err)
		return
	}
	fmt.Printf("Repaired: %x\n", res.Code)
	fmt.Printf("   %d guard(s), revert block at %d, %d -> %d bytes\n", res.Guarded, res.RevertPC, len(code), len(res.Code))

	meter := patcher.NewRuntimeGasMeter()
	for _, in := range inputs {
		a, b := in[0].Bytes32(), in[1].Bytes32()
		input := append(a[:], b[:]...)

		fmt.Printf("a=%s b=%s\n", in[0].Hex(), in[1].Hex())
		for _, run := range []struct {
			name string
			code []byte
		}{{"original", code}, {"repaired", res.Code}} {
			exec, err := meter.Run(run.code, input)
			if err != nil {
				log.Printf("   %s: execution failed: %v", run.name, err)
				continue
			}
			if exec.Reverted() {
				fmt.Printf("   %-8s reverted (gas %d)\n", run.name, exec.GasUsed)
				continue
			}
			fmt.Printf("   %-8s returned %s (gas %d)\n", run.name, new(uint256.Int).SetBytes(exec.Output).Hex(), exec.GasUsed)
		}
	}
}
