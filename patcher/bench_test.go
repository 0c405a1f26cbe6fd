package patcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm"
)

func TestEncodeCalldata(t *testing.T) {
	input, err := EncodeCalldata("0xa9059cbb", "1", "0xff")
	if err != nil {
		t.Fatalf("EncodeCalldata failed: %v", err)
	}
	if len(input) != 68 {
		t.Fatalf("Expected 68 bytes, got %d", len(input))
	}
	if got := hexutil.Encode(input[:4]); got != "0xa9059cbb" {
		t.Errorf("Expected selector 0xa9059cbb, got %s", got)
	}
	if input[35] != 1 || input[67] != 0xff {
		t.Errorf("Unexpected words %x", input[4:])
	}

	for _, bad := range [][]string{
		{"0xa9059c"},
		{"a9059cbb"},
		{"0xa9059cbb", "-1"},
		{"0xa9059cbb", "0xzz"},
	} {
		if _, err := EncodeCalldata(bad[0], bad[1:]...); err == nil {
			t.Errorf("Expected error for %v", bad)
		}
	}
}

func TestReadCode(t *testing.T) {
	for _, arg := range []string{"0x6001", "6001", " 0x6001\n"} {
		code, err := ReadCode(arg)
		if err != nil {
			t.Fatalf("ReadCode(%q) failed: %v", arg, err)
		}
		if hexutil.Encode(code) != "0x6001" {
			t.Errorf("ReadCode(%q): got %x", arg, code)
		}
	}
	path := filepath.Join(t.TempDir(), "code.hex")
	if err := os.WriteFile(path, []byte("6001\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, err := ReadCode("@" + path)
	if err != nil {
		t.Fatalf("ReadCode from file failed: %v", err)
	}
	if hexutil.Encode(code) != "0x6001" {
		t.Errorf("Unexpected code %x", code)
	}
}

func TestRunBench(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	doc := "contracts:\n" +
		"  - name: adder\n" +
		"    code: \"" + hexutil.Encode(arithContract(vm.ADD)) + "\"\n" +
		"    findings:\n" +
		"      - {pc: 6, kind: Overflow}\n" +
		"    calls:\n" +
		"      - {selector: \"0x771602f7\", args: [\"1\", \"2\"]}\n" +
		"      - {selector: \"0x771602f7\", args: [\"100\", \"0x10\"]}\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadBenchConfig(path)
	if err != nil {
		t.Fatalf("LoadBenchConfig failed: %v", err)
	}
	results, err := RunBench(context.Background(), New(nil), NewRuntimeGasMeter(), cfg)
	if err != nil {
		t.Fatalf("RunBench failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Contract != "adder" {
			t.Errorf("Unexpected contract %q", r.Contract)
		}
		if r.Repaired <= r.Original || r.Increase() <= 0 {
			t.Errorf("Expected gas increase, got %d -> %d", r.Original, r.Repaired)
		}
	}
	// Both calls take the same path, so they cost the same.
	if results[0].Original != results[1].Original || results[0].Repaired != results[1].Repaired {
		t.Errorf("Expected equal gas, got %+v", results)
	}
}

func TestBenchResultIncrease(t *testing.T) {
	if got := (BenchResult{Original: 200, Repaired: 250}).Increase(); got != 25 {
		t.Errorf("Expected 25%%, got %v", got)
	}
	if got := (BenchResult{}).Increase(); got != 0 {
		t.Errorf("Expected 0 for zero baseline, got %v", got)
	}
}
