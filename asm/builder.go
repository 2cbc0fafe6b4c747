// Package asm is a minimal two-pass assembler standing in for the external
// compiler spec.md §4.3 puts out of scope. It exists so tests and the CLI
// can construct a core.Program without hand-packing bytes, the same job
// Rust's Builder (original_source pgs/src/codegen/builder.rs) does for the
// original, generalized with the label-resolution pass the teacher's
// CompileSourceFromBuffer uses (vm/compile.go).
package asm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ravel-lang/ravel/core"
)

// Builder accumulates instruction bytes and named labels, then resolves
// forward references to labels on Build.
type Builder struct {
	code    []byte
	labels  map[string]uint64
	fixups  []fixup
	fnTable map[uint64]string // uid -> label, resolved into offsets on Build
}

type fixup struct {
	pos   uint64 // byte offset of the 8-byte field to patch
	label string
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{
		labels:  make(map[string]uint64),
		fnTable: make(map[uint64]string),
	}
}

// Label records name as pointing at the current end of the code buffer,
// the target a later JumpToLabel fixup or Function entry resolves against.
func (b *Builder) Label(name string) *Builder {
	b.labels[name] = uint64(len(b.code))
	return b
}

// Offset reports the current write position, useful for building jump
// tables or function tables by hand.
func (b *Builder) Offset() uint64 {
	return uint64(len(b.code))
}

// Byte appends a single opcode or raw byte.
func (b *Builder) Byte(v byte) *Builder {
	b.code = append(b.code, v)
	return b
}

// Op appends an opcode byte.
func (b *Builder) Op(op core.Opcode) *Builder {
	return b.Byte(byte(op))
}

// Reg appends a register index byte.
func (b *Builder) Reg(idx uint8) *Builder {
	return b.Byte(idx)
}

// U64 appends a little-endian 8-byte immediate.
func (b *Builder) U64(v uint64) *Builder {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	b.code = append(b.code, buf[:]...)
	return b
}

// I64 appends a little-endian 8-byte signed immediate.
func (b *Builder) I64(v int64) *Builder {
	return b.U64(uint64(v))
}

// I16 appends a little-endian signed 16-bit offset, the width MOV's
// address-family opcodes use for src_off/dst_off operands.
func (b *Builder) I16(v int16) *Builder {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(v))
	b.code = append(b.code, buf[:]...)
	return b
}

// U32 appends a little-endian unsigned 32-bit immediate, the width MOVN_A
// uses for its byte-count operand.
func (b *Builder) U32(v uint32) *Builder {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	b.code = append(b.code, buf[:]...)
	return b
}

// F32 appends an 8-byte field holding a float32 immediate in its low 4
// bytes, matching the width core.fetchF32 expects.
func (b *Builder) F32(v float32) *Builder {
	return b.U64(uint64(math.Float32bits(v)))
}

// Bool appends a one-byte boolean immediate.
func (b *Builder) Bool(v bool) *Builder {
	if v {
		return b.Byte(1)
	}
	return b.Byte(0)
}

// Addr appends an 8-byte TaggedAddress operand.
func (b *Builder) Addr(a core.TaggedAddress) *Builder {
	return b.U64(uint64(a))
}

// JumpToLabel appends an 8-byte placeholder resolved to name's offset on
// Build, for JMP/JMPT/JMPF absolute targets. CALL takes a function uid
// instead; map a uid to a label with Function.
func (b *Builder) JumpToLabel(name string) *Builder {
	b.fixups = append(b.fixups, fixup{pos: uint64(len(b.code)), label: name})
	return b.U64(0)
}

// Data appends raw bytes (e.g. a constant pool entry) and returns the
// offset they start at, for use with core.NewTaggedAddress(off,
// core.AddressProgram) and LDx instructions.
func (b *Builder) Data(raw []byte) uint64 {
	off := uint64(len(b.code))
	b.code = append(b.code, raw...)
	return off
}

// Function records that uid should resolve to label's eventual offset in
// the program's function table, built alongside Build.
func (b *Builder) Function(uid uint64, label string) *Builder {
	b.fnTable[uid] = label
	return b
}

// Build resolves every label fixup and function-table entry and returns
// the finished program. An unresolved label is a programmer error in the
// caller, reported as an error rather than a panic so CLI tooling can
// surface it cleanly.
func (b *Builder) Build() (*core.Program, error) {
	code := make([]byte, len(b.code))
	copy(code, b.code)

	for _, fx := range b.fixups {
		target, ok := b.labels[fx.label]
		if !ok {
			return nil, fmt.Errorf("asm: undefined label %q", fx.label)
		}
		binary.LittleEndian.PutUint64(code[fx.pos:fx.pos+8], target)
	}

	functions := make(map[uint64]uint64, len(b.fnTable))
	for uid, label := range b.fnTable {
		off, ok := b.labels[label]
		if !ok {
			return nil, fmt.Errorf("asm: function uid %d refers to undefined label %q", uid, label)
		}
		functions[uid] = off
	}

	return &core.Program{Code: code, Functions: functions}, nil
}
