package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/QuarkChain/go-evmrepair/patcher"
	"github.com/QuarkChain/go-evmrepair/repair"
)

var (
	verbose       bool
	maxIterations int

	findingsPath string
	inputHex     string
	dotPath      string
	outPath      string
	evmPath      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "evmrepair",
		Short: "Guard unsafe arithmetic in EVM bytecode",
		Long: `evmrepair rewrites deployed EVM bytecode so that arithmetic an analyzer
flagged as unsafe reverts instead of wrapping.

Each finding names the program counter of an ADD, SUB, MUL or DIV and the
kind of fault (Overflow, Underflow, Division). The instruction is replaced
by a checked sequence that jumps to a shared revert block, and every jump
in the program is re-targeted to the new layout.

Examples:
  evmrepair disasm 0x6005600301600055
  evmrepair patch @token.hex --findings token.yaml -o token.patched.hex
  evmrepair patch @token.hex --findings token.yaml --input 0xa9059cbb...
  evmrepair bench bench.yaml`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(verbose)
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	rootCmd.PersistentFlags().IntVar(&maxIterations, "max-fixups", repair.DefaultMaxFixupIterations, "max relocation passes per fixup")

	patchCmd := &cobra.Command{
		Use:   "patch <code|@file>",
		Short: "Guard the findings in a contract and print the repaired code",
		Args:  cobra.ExactArgs(1),
		RunE:  runPatch,
	}
	patchCmd.Flags().StringVarP(&findingsPath, "findings", "f", "", "YAML file listing the findings")
	patchCmd.Flags().StringVar(&inputHex, "input", "", "calldata to compare gas with")
	patchCmd.Flags().StringVar(&dotPath, "dot", "", "write the repaired graph as Graphviz DOT")
	patchCmd.Flags().StringVarP(&outPath, "output", "o", "", "write the repaired code to a file")
	patchCmd.Flags().StringVar(&evmPath, "evm", "", "meter gas with this evm binary")
	patchCmd.MarkFlagRequired("findings")

	disasmCmd := &cobra.Command{
		Use:   "disasm <code|@file>",
		Short: "Print the basic blocks of a contract",
		Args:  cobra.ExactArgs(1),
		RunE:  runDisasm,
	}

	benchCmd := &cobra.Command{
		Use:   "bench <bench.yaml>",
		Short: "Compare gas of original and repaired contracts",
		Args:  cobra.ExactArgs(1),
		RunE:  runBench,
	}
	benchCmd.Flags().StringVar(&evmPath, "evm", "", "meter gas with this evm binary")

	rootCmd.AddCommand(patchCmd, disasmCmd, benchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	level := log.LevelInfo
	if verbose {
		level = log.LevelDebug
	}
	fd := os.Stderr.Fd()
	color := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, color)))
}

func repairOpts() *repair.RepairOpts {
	opts := repair.DefaultRepairOpts()
	opts.MaxFixupIterations = maxIterations
	return opts
}

func gasMeter() patcher.GasMeter {
	if evmPath != "" {
		return &patcher.CommandGasMeter{Path: evmPath}
	}
	return patcher.NewRuntimeGasMeter()
}

func runPatch(cmd *cobra.Command, args []string) error {
	code, err := patcher.ReadCode(args[0])
	if err != nil {
		return fmt.Errorf("reading code: %w", err)
	}
	findings, err := patcher.LoadFindings(findingsPath)
	if err != nil {
		return err
	}
	res, err := patcher.New(repairOpts()).Patch(code, findings)
	if err != nil {
		return err
	}
	log.Info("Repaired contract", "size", len(code), "patched", len(res.Code),
		"guards", res.Guarded, "skipped", res.Skipped, "unvalidated", res.Unvalidated, "revert", res.RevertPC)

	out := hexutil.Encode(res.Code)
	if outPath != "" {
		if err := os.WriteFile(outPath, []byte(out+"\n"), 0o644); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), out)
	}
	if dotPath != "" {
		if err := os.WriteFile(dotPath, []byte(patcher.ToDot(res.Graph, res.RevertPC)), 0o644); err != nil {
			return err
		}
		log.Info("Wrote graph", "path", dotPath, "blocks", res.Graph.Len())
	}
	if inputHex == "" {
		return nil
	}

	input, err := hexutil.Decode(inputHex)
	if err != nil {
		return fmt.Errorf("decoding input: %w", err)
	}
	meter := gasMeter()
	ctx := context.Background()
	original, err := meter.GasUsed(ctx, code, input)
	if err != nil {
		return fmt.Errorf("original: %w", err)
	}
	repaired, err := meter.GasUsed(ctx, res.Code, input)
	if err != nil {
		return fmt.Errorf("repaired: %w", err)
	}
	r := patcher.BenchResult{Original: original, Repaired: repaired}
	fmt.Fprintf(cmd.ErrOrStderr(), "gas: %d -> %d (%+.2f%%)\n", original, repaired, r.Increase())
	return nil
}

func runDisasm(cmd *cobra.Command, args []string) error {
	code, err := patcher.ReadCode(args[0])
	if err != nil {
		return fmt.Errorf("reading code: %w", err)
	}
	g, _, err := patcher.Disassemble(code, repairOpts())
	if err != nil {
		return err
	}
	printBlocks(cmd.OutOrStdout(), g)
	return nil
}

func printBlocks(w io.Writer, g *repair.ControlFlowGraph) {
	for _, b := range g.Blocks() {
		fmt.Fprintf(w, "%v -> %v\n", b, g.Successors(b.Start()))
		pc := b.Start()
		for i := 0; i < b.Len(); i++ {
			ins := b.Instruction(i)
			fmt.Fprintf(w, "  %05d  %v\n", pc, ins)
			pc += ins.Len()
		}
	}
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := patcher.LoadBenchConfig(args[0])
	if err != nil {
		return err
	}
	results, err := patcher.RunBench(cmd.Context(), patcher.New(repairOpts()), gasMeter(), cfg)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-20s %-12s %12s %12s %9s\n", "CONTRACT", "SELECTOR", "ORIGINAL", "REPAIRED", "INCREASE")
	for _, r := range results {
		fmt.Fprintf(w, "%-20s %-12s %12d %12d %8.2f%%\n", r.Contract, r.Selector, r.Original, r.Repaired, r.Increase())
	}
	return nil
}
