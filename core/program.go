package core

// Program is the immutable code and function table produced by an external
// assembler or compiler (out of scope for this package per spec.md §4.3) and
// installed into a Core with LoadProgram. The asm package is this repo's
// minimal stand-in for that external tool.
type Program struct {
	// Code is the flat, byte-addressable instruction stream. Jump and call
	// targets are plain offsets into this slice.
	Code []byte

	// Functions maps a foreign-style function UID to an entry offset in
	// Code, letting CALL address either a foreign function or ordinary
	// bytecode through the same UID space.
	Functions map[uint64]uint64
}

// Len reports the size of the code segment in bytes.
func (p *Program) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Code)
}
