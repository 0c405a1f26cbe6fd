package patcher

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"
)

// BenchConfig lists contracts to patch and the calls to meter on each.
type BenchConfig struct {
	Contracts []BenchContract `yaml:"contracts"`
}

type BenchContract struct {
	Name     string      `yaml:"name"`
	Code     string      `yaml:"code"` // hex, or @path to a file holding hex
	Findings []Finding   `yaml:"findings"`
	Calls    []BenchCall `yaml:"calls"`
}

// BenchCall is a function selector with arguments, each encoded as one
// 32-byte word.
type BenchCall struct {
	Selector string   `yaml:"selector"`
	Args     []string `yaml:"args"`
}

// BenchResult holds the gas of one call before and after patching.
type BenchResult struct {
	Contract string
	Selector string
	Original uint64
	Repaired uint64
}

// Increase returns the relative gas increase in percent.
func (r BenchResult) Increase() float64 {
	if r.Original == 0 {
		return 0
	}
	return (float64(r.Repaired) - float64(r.Original)) / float64(r.Original) * 100
}

// LoadBenchConfig reads a YAML benchmark description.
func LoadBenchConfig(path string) (*BenchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := new(BenchConfig)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ReadCode decodes hex code, reading it from a file when arg starts with @.
func ReadCode(arg string) ([]byte, error) {
	if strings.HasPrefix(arg, "@") {
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, err
		}
		arg = string(data)
	}
	arg = strings.TrimSpace(arg)
	if !strings.HasPrefix(arg, "0x") && !strings.HasPrefix(arg, "0X") {
		arg = "0x" + arg
	}
	return hexutil.Decode(arg)
}

// EncodeCalldata builds selector ++ word(arg)... Arguments are decimal or
// 0x-prefixed hex numbers.
func EncodeCalldata(selector string, args ...string) ([]byte, error) {
	sel, err := hexutil.Decode(selector)
	if err != nil {
		return nil, fmt.Errorf("selector %q: %w", selector, err)
	}
	if len(sel) != 4 {
		return nil, fmt.Errorf("selector %q must be 4 bytes", selector)
	}
	out := append(make([]byte, 0, 4+32*len(args)), sel...)
	for _, arg := range args {
		v, err := parseWord(arg)
		if err != nil {
			return nil, err
		}
		word := v.Bytes32()
		out = append(out, word[:]...)
	}
	return out, nil
}

func parseWord(s string) (*uint256.Int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := uint256.FromHex(s)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", s, err)
		}
		return v, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("argument %q: %w", s, err)
	}
	return v, nil
}

// RunBench patches every contract and meters each call on both versions.
func RunBench(ctx context.Context, p *Patcher, meter GasMeter, cfg *BenchConfig) ([]BenchResult, error) {
	var results []BenchResult
	for _, c := range cfg.Contracts {
		code, err := ReadCode(c.Code)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		res, err := p.Patch(code, c.Findings)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		for _, call := range c.Calls {
			input, err := EncodeCalldata(call.Selector, call.Args...)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", c.Name, err)
			}
			original, err := meter.GasUsed(ctx, code, input)
			if err != nil {
				return nil, fmt.Errorf("%s %s original: %w", c.Name, call.Selector, err)
			}
			repaired, err := meter.GasUsed(ctx, res.Code, input)
			if err != nil {
				return nil, fmt.Errorf("%s %s repaired: %w", c.Name, call.Selector, err)
			}
			results = append(results, BenchResult{
				Contract: c.Name,
				Selector: call.Selector,
				Original: original,
				Repaired: repaired,
			})
		}
	}
	return results, nil
}
