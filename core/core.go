package core

// Tuning constants carried over from the Rust original (original_source
// pgs/pgs/src/vm/core.rs): the stack grows in 1KiB increments once fewer
// than stackGrowThreshold bytes remain, and the Swap space is a small fixed
// scratch area rather than a growable one.
const (
	stackGrowIncrement = 1024
	stackGrowThreshold = 64
	swapSpaceSize      = 64
)

// ForeignFunction is a host function callable from bytecode via CALL. It is
// handed the Core so it can read arguments and push a return value through
// the same register/stack surface bytecode uses, mirroring the Rust
// signature `FnMut(&mut Core) -> FunctionResult<()>`.
type ForeignFunction func(c *Core) error

// heapRange is kept only so the Heap address space has a concrete shape to
// grow into; no opcode in this package currently allocates from it (see
// spec.md §9 and DESIGN.md).
type heapRange struct {
	start, end uint64
}

// Core is the complete state of one virtual machine instance: its program,
// its three addressable memory spaces, its register file, and its call and
// foreign-function machinery. A Core must not be shared across goroutines
// (spec.md §5); callers that want concurrency run one Core per goroutine.
type Core struct {
	stack []byte
	swap  []byte
	heap  []byte

	heapPointers []heapRange

	program *Program

	foreignFunctions map[uint64]ForeignFunction

	// stackFrames and callStack are parallel deques: stackFrames records
	// the sp at each call site and callStack the return ip, so ret can pop
	// both symmetrically: RET restores ip from callStack and sp from
	// stackFrames.
	stackFrames []uint64
	callStack   []uint64

	registers [16]Register
	ip        Register
	sp        Register
}

// NewCore allocates a Core with an initial stack of stackSize bytes and a
// fixed-size Swap scratch area. The program must be installed separately
// with LoadProgram before Run can execute anything.
func NewCore(stackSize int) *Core {
	return &Core{
		stack:            make([]byte, stackSize),
		swap:             make([]byte, swapSpaceSize),
		foreignFunctions: make(map[uint64]ForeignFunction),
	}
}

// LoadProgram installs the code and function table a Core will execute.
func (c *Core) LoadProgram(p *Program) {
	c.program = p
}

// ProgramLen reports the size of the loaded program, or 0 if none is
// loaded.
func (c *Core) ProgramLen() int {
	return c.program.Len()
}

// StackSize reports the current capacity of the stack space, which grows
// on demand as PushStack needs more room.
func (c *Core) StackSize() int {
	return len(c.stack)
}

// reg resolves a register index (0-15 general purpose, RegSP, RegIP) to a
// pointer into the Core's register file. Any other index is
// ErrInvalidRegister, the same bound the teacher VM enforces when decoding
// register operands in vm/compile.go.
func (c *Core) reg(idx uint8) (*Register, error) {
	switch {
	case idx < uint8(len(c.registers)):
		return &c.registers[idx], nil
	case idx == RegSP:
		return &c.sp, nil
	case idx == RegIP:
		return &c.ip, nil
	default:
		return nil, ErrInvalidRegister
	}
}

// Reg exposes reg for callers outside the package (tests, the asm/console
// packages inspecting VM state after a run).
func (c *Core) Reg(idx uint8) (*Register, error) {
	return c.reg(idx)
}

func (c *Core) growStack(minLen uint64) {
	if uint64(len(c.stack)) >= minLen {
		return
	}
	grown := uint64(len(c.stack))
	for grown < minLen {
		grown += stackGrowIncrement
	}
	next := make([]byte, grown)
	copy(next, c.stack)
	c.stack = next
}
