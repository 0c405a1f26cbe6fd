package repair

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

func u(hex string) *uint256.Int {
	return uint256.MustFromHex(hex)
}

func TestGuardSemantics(t *testing.T) {
	var (
		half    = u("0x8000000000000000000000000000000000000000000000000000000000000000")
		maxWord = u("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
		big     = u("0x100000000000000000000000000000000")
	)
	tests := []struct {
		kind   ErrorKind
		op     vm.OpCode
		a, b   *uint256.Int
		trips  bool
		result *uint256.Int
	}{
		{Overflow, vm.ADD, half, half, true, u("0x0")},
		{Overflow, vm.ADD, u("0x1"), u("0x1"), false, u("0x2")},
		{Overflow, vm.ADD, maxWord, u("0x1"), true, u("0x0")},
		{Overflow, vm.ADD, maxWord, u("0x0"), false, maxWord},
		{Underflow, vm.SUB, u("0x3"), u("0x5"), true, u("0xfffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffe")},
		{Underflow, vm.SUB, u("0x5"), u("0x3"), false, u("0x2")},
		{Underflow, vm.SUB, u("0x5"), u("0x5"), false, u("0x0")},
		{Overflow, vm.MUL, big, big, true, u("0x0")},
		{Overflow, vm.MUL, u("0x6"), u("0x7"), false, u("0x2a")},
		{Overflow, vm.MUL, maxWord, u("0x0"), false, u("0x0")},
		{Overflow, vm.MUL, u("0x0"), maxWord, false, u("0x0")},
		{Overflow, vm.MUL, maxWord, u("0x2"), true, u("0xfffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffe")},
		{Division, vm.DIV, u("0x1"), u("0x0"), true, u("0x0")},
		{Division, vm.DIV, u("0x1"), u("0x1"), false, u("0x1")},
		{Division, vm.DIV, u("0x0"), u("0x0"), true, u("0x0")},
		{Division, vm.DIV, u("0x7"), u("0x2"), false, u("0x3")},
	}
	for _, tt := range tests {
		tmpl := LookupGuard(tt.kind, tt.op)
		if tmpl == nil {
			t.Fatalf("No guard for %v/%v", tt.kind, tt.op)
		}
		result, trips, err := tmpl.Evaluate(tt.a, tt.b)
		if err != nil {
			t.Fatalf("%v(%v, %v): %v", tt.op, tt.a, tt.b, err)
		}
		if trips != tt.trips {
			t.Errorf("%v(%v, %v): expected trips=%v, got %v", tt.op, tt.a, tt.b, tt.trips, trips)
		}
		if !result.Eq(tt.result) {
			t.Errorf("%v(%v, %v): expected result %v, got %v", tt.op, tt.a, tt.b, tt.result, result)
		}
	}
}

func TestLookupGuardUnsupported(t *testing.T) {
	unsupported := []struct {
		kind ErrorKind
		op   vm.OpCode
	}{
		{Underflow, vm.ADD},
		{Overflow, vm.SUB},
		{Division, vm.MOD},
		{Division, vm.SDIV},
		{Overflow, vm.EXP},
	}
	for _, tt := range unsupported {
		if LookupGuard(tt.kind, tt.op) != nil {
			t.Errorf("Unexpected guard for %v/%v", tt.kind, tt.op)
		}
	}
	if n := len(GuardTemplates()); n != 4 {
		t.Fatalf("Expected 4 templates, got %d", n)
	}
}

func TestGuardStackRequirement(t *testing.T) {
	tests := []struct {
		op         vm.OpCode
		kind       ErrorKind
		required   int
		peak       int
		byteLength uint64
	}{
		{vm.ADD, Overflow, 2, 1, 5},
		{vm.SUB, Underflow, 2, 1, 6},
		{vm.MUL, Overflow, 2, 3, 12},
		{vm.DIV, Division, 2, 1, 4},
	}
	for _, tt := range tests {
		tmpl := LookupGuard(tt.kind, tt.op)
		required, peak := tmpl.StackRequirement()
		if required != tt.required || peak != tt.peak {
			t.Errorf("%v: expected (%d, %d), got (%d, %d)", tt.op, tt.required, tt.peak, required, peak)
		}
		if tmpl.ByteLength() != tt.byteLength {
			t.Errorf("%v: expected %d extra bytes, got %d", tt.op, tt.byteLength, tmpl.ByteLength())
		}
	}
}

func TestRunGuardErrors(t *testing.T) {
	err := runGuard(newStack(u("0x1")), []vm.OpCode{vm.ADD})
	var under ErrStackUnderflow
	if !errors.As(err, &under) || !errors.Is(err, ErrGuardStackUnderflow) {
		t.Fatalf("Expected stack underflow, got %v", err)
	}
	err = runGuard(newStack(u("0x1"), u("0x2")), []vm.OpCode{vm.EXP})
	if !errors.Is(err, ErrUnsupportedGuardOpcode) {
		t.Fatalf("Expected ErrUnsupportedGuardOpcode, got %v", err)
	}
}

func TestStackDupSwap(t *testing.T) {
	st := newStack(u("0x1"), u("0x2"), u("0x3"))
	st.dup(3)
	if !st.peek().Eq(u("0x1")) || st.Len() != 4 {
		t.Fatalf("DUP3 gave %v", st.peek())
	}
	st.swap(3)
	if !st.peek().Eq(u("0x1")) || !st.Back(3).Eq(u("0x1")) {
		t.Fatalf("SWAP3 gave top %v, back %v", st.peek(), st.Back(3))
	}
	st.swap(1)
	if !st.peek().Eq(u("0x3")) || !st.Back(1).Eq(u("0x1")) {
		t.Fatalf("SWAP1 gave top %v", st.peek())
	}
}
