package patcher

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/core/vm/runtime"
	"github.com/ethereum/go-ethereum/params"
)

// DefaultGasLimit is the gas given to a metered call.
const DefaultGasLimit = 30_000_000

var (
	defaultContractAddress = common.HexToAddress("cccccccccccccccccccccccccccccccccccccccc")
	defaultOriginAddress   = common.HexToAddress("cccccccccccccccccccccccccccccccccccccccd")
	defaultRANDAO          = common.HexToHash("cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc")
)

var ErrNoGasReport = errors.New("no gas figure in evm output")

// GasMeter measures the gas a call to code with the given input consumes.
type GasMeter interface {
	GasUsed(ctx context.Context, code, input []byte) (uint64, error)
}

// Execution is the outcome of running code in a fresh state.
type Execution struct {
	Output  []byte
	GasUsed uint64
	Err     error // execution error such as vm.ErrExecutionReverted
}

// Reverted reports whether the call ended in REVERT.
func (e *Execution) Reverted() bool {
	return errors.Is(e.Err, vm.ErrExecutionReverted)
}

// RuntimeGasMeter runs code in-process on go-ethereum's runtime.
type RuntimeGasMeter struct {
	GasLimit    uint64
	ChainConfig *params.ChainConfig
}

// NewRuntimeGasMeter returns a meter with DefaultGasLimit on a chain with
// every fork enabled.
func NewRuntimeGasMeter() *RuntimeGasMeter {
	return &RuntimeGasMeter{
		GasLimit:    DefaultGasLimit,
		ChainConfig: params.AllDevChainProtocolChanges,
	}
}

// Run deploys code at a fixed address in a new state and calls it.
func (m *RuntimeGasMeter) Run(code, input []byte) (*Execution, error) {
	statedb, err := state.New(types.EmptyRootHash, state.NewDatabaseForTesting())
	if err != nil {
		return nil, err
	}
	statedb.SetCode(defaultContractAddress, code)
	statedb.Finalise(false)

	cfg := &runtime.Config{
		ChainConfig: m.ChainConfig,
		GasLimit:    m.GasLimit,
		Origin:      defaultOriginAddress,
		Random:      &defaultRANDAO,
		State:       statedb,
	}
	out, leftOver, err := runtime.Call(defaultContractAddress, input, cfg)
	return &Execution{Output: out, GasUsed: m.GasLimit - leftOver, Err: err}, nil
}

// GasUsed reports the gas of the call whether or not it reverted.
func (m *RuntimeGasMeter) GasUsed(ctx context.Context, code, input []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	res, err := m.Run(code, input)
	if err != nil {
		return 0, err
	}
	return res.GasUsed, nil
}

// CommandGasMeter runs go-ethereum's evm tool and reads the gas figure from
// its statistics dump.
type CommandGasMeter struct {
	Path string // evm binary, "evm" on PATH when empty
}

func (m *CommandGasMeter) GasUsed(ctx context.Context, code, input []byte) (uint64, error) {
	path := m.Path
	if path == "" {
		path = "evm"
	}
	cmd := exec.CommandContext(ctx, path, "run", "--statdump",
		"--code", hex.EncodeToString(code), "--input", hex.EncodeToString(input))
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("%s run: %w: %s", path, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return ParseGasReport(stderr.String())
}

var gasReport = regexp.MustCompile(`gas[^\d\n]*(\d+)`)

// ParseGasReport extracts the first "gas ... <digits>" figure from evm
// output.
func ParseGasReport(out string) (uint64, error) {
	m := gasReport.FindStringSubmatch(out)
	if m == nil {
		return 0, ErrNoGasReport
	}
	return strconv.ParseUint(m[1], 10, 64)
}
