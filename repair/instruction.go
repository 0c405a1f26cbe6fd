package repair

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

// InstrRef is a stable handle to one instruction revision in an Arena.
type InstrRef int32

// NoInstr is the zero value for a missing revision, origin or owner link.
const NoInstr InstrRef = -1

// Instruction is a single EVM opcode with its immediate bytes. Only PUSHn
// carries an immediate, and its length is always n.
type Instruction struct {
	Op  vm.OpCode
	Imm []byte
}

// NewInstruction returns an instruction without immediate.
func NewInstruction(op vm.OpCode) Instruction {
	return Instruction{Op: op}
}

// NewPush returns the shortest PUSH encoding of value. Zero is encoded as
// PUSH1 0x00 rather than PUSH0 so that a jump origin always carries a byte.
func NewPush(value uint64) Instruction {
	return newPushWord(uint256.NewInt(value))
}

func newPushWord(v *uint256.Int) Instruction {
	imm := v.Bytes()
	if len(imm) == 0 {
		imm = []byte{0}
	}
	return Instruction{Op: vm.PUSH1 + vm.OpCode(len(imm)-1), Imm: imm}
}

// ParseInstruction parses the textual form "OPCODE" or "PUSHn 0x..".
func ParseInstruction(text string) (Instruction, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || len(fields) > 2 {
		return Instruction{}, fmt.Errorf("%w: %q", ErrInvalidInstruction, text)
	}
	op := vm.StringToOp(fields[0])
	if op == vm.STOP && fields[0] != "STOP" {
		return Instruction{}, fmt.Errorf("%w: unknown opcode %q", ErrInvalidInstruction, fields[0])
	}
	ins := Instruction{Op: op}
	if len(fields) == 2 {
		imm, err := hexutil.Decode(fields[1])
		if err != nil {
			return Instruction{}, fmt.Errorf("%w: %q: %v", ErrInvalidInstruction, text, err)
		}
		ins.Imm = imm
	}
	if len(ins.Imm) != immediateSize(op) {
		return Instruction{}, fmt.Errorf("%w: %v expects %d immediate bytes, got %d",
			ErrInvalidInstruction, op, immediateSize(op), len(ins.Imm))
	}
	return ins, nil
}

// MustParseInstructions parses a list of textual instructions and panics on
// the first malformed one.
func MustParseInstructions(texts ...string) []Instruction {
	out := make([]Instruction, len(texts))
	for i, text := range texts {
		ins, err := ParseInstruction(text)
		if err != nil {
			panic(err)
		}
		out[i] = ins
	}
	return out
}

// Len returns the encoded size of the instruction in bytes.
func (ins Instruction) Len() uint64 {
	return 1 + uint64(len(ins.Imm))
}

// IsPush reports whether the opcode is PUSH0..PUSH32.
func (ins Instruction) IsPush() bool {
	return isPush(ins.Op)
}

// IsJump reports whether the opcode is JUMP or JUMPI.
func (ins Instruction) IsJump() bool {
	return ins.Op == vm.JUMP || ins.Op == vm.JUMPI
}

// Value decodes the immediate as a big-endian word.
func (ins Instruction) Value() *uint256.Int {
	return new(uint256.Int).SetBytes(ins.Imm)
}

// Uint64 decodes the immediate, reporting false if it does not fit.
func (ins Instruction) Uint64() (uint64, bool) {
	v := ins.Value()
	if !v.IsUint64() {
		return 0, false
	}
	return v.Uint64(), true
}

// Equal reports whether both instructions have the same encoding.
func (ins Instruction) Equal(other Instruction) bool {
	return ins.Op == other.Op && bytes.Equal(ins.Imm, other.Imm)
}

// Bytes returns the encoded instruction.
func (ins Instruction) Bytes() []byte {
	out := make([]byte, 0, ins.Len())
	out = append(out, byte(ins.Op))
	return append(out, ins.Imm...)
}

func (ins Instruction) String() string {
	if len(ins.Imm) == 0 {
		return ins.Op.String()
	}
	return fmt.Sprintf("%v %#x", ins.Op, ins.Imm)
}

func isPush(op vm.OpCode) bool {
	return op >= vm.PUSH0 && op <= vm.PUSH32
}

func immediateSize(op vm.OpCode) int {
	if !isPush(op) {
		return 0
	}
	return int(op - vm.PUSH0)
}

type arenaEntry struct {
	ins    Instruction
	prev   InstrRef
	next   InstrRef
	origin InstrRef
	owner  *BasicBlock
}

// Arena is the append-only store of instruction revisions. Replacing an
// instruction appends a new entry and links the two, so a reference taken
// before a rewrite can always be resolved to the live instruction.
type Arena struct {
	entries []arenaEntry
}

// NewArena creates an empty instruction arena.
func NewArena() *Arena {
	return &Arena{}
}

// Add stores a fresh instruction with no revision links and returns its ref.
func (a *Arena) Add(ins Instruction) InstrRef {
	if !isPush(ins.Op) {
		ins.Imm = nil
	}
	a.entries = append(a.entries, arenaEntry{
		ins:    ins,
		prev:   NoInstr,
		next:   NoInstr,
		origin: NoInstr,
	})
	return InstrRef(len(a.entries) - 1)
}

// AddAll stores each instruction in order.
func (a *Arena) AddAll(instrs ...Instruction) []InstrRef {
	refs := make([]InstrRef, len(instrs))
	for i, ins := range instrs {
		refs[i] = a.Add(ins)
	}
	return refs
}

// Len returns the number of revisions stored.
func (a *Arena) Len() int {
	return len(a.entries)
}

// Get returns the instruction stored at ref.
func (a *Arena) Get(ref InstrRef) Instruction {
	return a.entries[ref].ins
}

// Replace records repl as the successor revision of old.
func (a *Arena) Replace(old, repl InstrRef) error {
	if a.entries[old].next != NoInstr {
		return fmt.Errorf("%w: %d already replaced by %d", ErrRevisionExists, old, a.entries[old].next)
	}
	if a.entries[repl].prev != NoInstr {
		return fmt.Errorf("%w: %d already replaces %d", ErrRevisionExists, repl, a.entries[repl].prev)
	}
	a.entries[old].next = repl
	a.entries[repl].prev = old
	return nil
}

// Revise appends ins as the successor revision of the live end of old's
// chain. The new revision inherits the owner and jump origin.
func (a *Arena) Revise(old InstrRef, ins Instruction) InstrRef {
	live := a.Live(old)
	ref := a.Add(ins)
	a.entries[live].next = ref
	a.entries[ref].prev = live
	a.entries[ref].owner = a.entries[live].owner
	a.entries[ref].origin = a.entries[live].origin
	return ref
}

// Live follows successor revisions from ref to the newest one.
func (a *Arena) Live(ref InstrRef) InstrRef {
	for a.entries[ref].next != NoInstr {
		ref = a.entries[ref].next
	}
	return ref
}

// Previous returns the predecessor revision, or NoInstr.
func (a *Arena) Previous(ref InstrRef) InstrRef {
	return a.entries[ref].prev
}

// Next returns the successor revision, or NoInstr.
func (a *Arena) Next(ref InstrRef) InstrRef {
	return a.entries[ref].next
}

// derivesFrom reports whether target is ref itself or one of its
// predecessor revisions.
func (a *Arena) derivesFrom(ref, target InstrRef) bool {
	for ref != NoInstr {
		if ref == target {
			return true
		}
		ref = a.entries[ref].prev
	}
	return false
}

// SetJumpOrigin records the PUSH instruction that supplies jump's target.
// It may be called again only with an origin resolving to the same live
// instruction.
func (a *Arena) SetJumpOrigin(jump, origin InstrRef) error {
	if !isPush(a.Get(a.Live(origin)).Op) {
		return fmt.Errorf("%w: %v", ErrInvalidOrigin, a.Get(origin))
	}
	jump = a.Live(jump)
	if existing := a.entries[jump].origin; existing != NoInstr {
		if a.Live(existing) != a.Live(origin) {
			return &DuplicateOriginError{Jump: jump, Existing: existing, Proposed: origin}
		}
		return nil
	}
	a.entries[jump].origin = origin
	return nil
}

// JumpOrigin returns the recorded origin of jump, or NoInstr.
func (a *Arena) JumpOrigin(jump InstrRef) InstrRef {
	return a.entries[a.Live(jump)].origin
}

// Owner returns the block currently holding the live revision of ref, or
// nil.
func (a *Arena) Owner(ref InstrRef) *BasicBlock {
	return a.entries[a.Live(ref)].owner
}

// setOwner assigns b to ref and every later revision of it.
func (a *Arena) setOwner(ref InstrRef, b *BasicBlock) {
	for ; ref != NoInstr; ref = a.entries[ref].next {
		a.entries[ref].owner = b
	}
}
