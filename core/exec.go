package core

import (
	"encoding/binary"
	"math"
)

// fetchByte reads the byte at ip and advances ip by one.
func (c *Core) fetchByte() (byte, error) {
	off := RegisterGet[uint64](&c.ip)
	code := c.program.Code
	if off >= uint64(len(code)) {
		return 0, ErrInvalidStackPointer
	}
	c.ip.Inc(1)
	return code[off], nil
}

// fetchN reads n raw bytes starting at ip and advances ip by n.
func (c *Core) fetchN(n uint64) ([]byte, error) {
	off := RegisterGet[uint64](&c.ip)
	code := c.program.Code
	if off+n > uint64(len(code)) {
		return nil, ErrInvalidStackPointer
	}
	c.ip.Inc(n)
	return code[off : off+n], nil
}

func (c *Core) fetchReg() (uint8, error) {
	b, err := c.fetchByte()
	return b, err
}

func (c *Core) fetchU64() (uint64, error) {
	raw, err := c.fetchN(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(raw), nil
}

func (c *Core) fetchI64() (int64, error) {
	u, err := c.fetchU64()
	return int64(u), err
}

func (c *Core) fetchF32() (float32, error) {
	u, err := c.fetchU64()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(u)), nil
}

// fetchI16 reads a little-endian signed 16-bit offset operand, the width
// MOV's address-family opcodes use for the src_off/dst_off fields.
func (c *Core) fetchI16() (int16, error) {
	raw, err := c.fetchN(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(raw)), nil
}

// fetchU32 reads a little-endian unsigned 32-bit immediate, the width
// MOVN_A uses for its byte-count operand.
func (c *Core) fetchU32() (uint32, error) {
	raw, err := c.fetchN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw), nil
}

// addrFromReg reads the TaggedAddress held in register idx and shifts it by
// offset, the operation every MOV address-family opcode performs to turn a
// (register, offset) operand pair into the address it actually reads or
// writes.
func (c *Core) addrFromReg(idx uint8, offset int16) (TaggedAddress, error) {
	r, err := c.reg(idx)
	if err != nil {
		return 0, err
	}
	return TaggedAddress(RegisterGet[uint64](r)).WithOffset(offset), nil
}

// call pushes the current ip and sp onto their respective deques and jumps
// to target, the frame bookkeeping ret later unwinds.
func (c *Core) call(target uint64) {
	c.callStack = append(c.callStack, RegisterGet[uint64](&c.ip))
	c.stackFrames = append(c.stackFrames, RegisterGet[uint64](&c.sp))
	RegisterSet(&c.ip, target)
}

// ret pops the most recent call frame and resumes at the saved ip. An empty
// callStack means ret was reached outside of any CALL, which is
// ErrEmptyCallStack.
func (c *Core) ret() error {
	if len(c.callStack) == 0 {
		return ErrEmptyCallStack
	}
	n := len(c.callStack) - 1
	savedIP := c.callStack[n]
	c.callStack = c.callStack[:n]

	m := len(c.stackFrames) - 1
	savedSP := c.stackFrames[m]
	c.stackFrames = c.stackFrames[:m]

	RegisterSet(&c.ip, savedIP)
	RegisterSet(&c.sp, savedSP)
	return nil
}

// Run executes from the current ip until HALT, an unrecoverable error, or
// the program runs off the end of its code segment. It is the package's
// fetch-decode-execute loop, one opcode byte at a time, in the style of the
// teacher VM's execInstructions switch (vm/vm.go).
func (c *Core) Run() error {
	if c.program == nil {
		return ErrNoProgram
	}
	for {
		if RegisterGet[uint64](&c.ip) >= uint64(len(c.program.Code)) {
			return nil
		}
		if err := c.step(); err != nil {
			var halted *HaltedError
			if asHalted(err, &halted) {
				return nil
			}
			return err
		}
	}
}

// RunAt sets ip to start and then behaves like Run.
func (c *Core) RunAt(start uint64) error {
	RegisterSet(&c.ip, start)
	return c.Run()
}

// RunFn looks up uid in the program's function table and runs it as a call,
// returning once the matching RET unwinds past this call's frame.
func (c *Core) RunFn(uid uint64) error {
	if c.program == nil {
		return ErrNoProgram
	}
	target, ok := c.program.Functions[uid]
	if !ok {
		return ErrUnknownFunctionUID
	}
	depth := len(c.callStack)
	c.call(target)
	for len(c.callStack) > depth {
		if err := c.step(); err != nil {
			return err
		}
	}
	return nil
}

func asHalted(err error, out **HaltedError) bool {
	h, ok := err.(*HaltedError)
	if ok {
		*out = h
	}
	return ok
}

// step fetches, decodes, and executes exactly one instruction.
func (c *Core) step() error {
	opByte, err := c.fetchByte()
	if err != nil {
		return err
	}
	op := Opcode(opByte)

	switch op {
	case NOOP:
		return nil

	case HALT:
		code, err := c.fetchByte()
		if err != nil {
			return err
		}
		if code == 1 {
			return ErrNoReturnValue
		}
		return &HaltedError{Code: code}

	case MOVB, MOVF, MOVI, MOVA:
		return c.execMovImm(op)

	case MOVB_A, MOVF_A, MOVI_A, MOVA_A:
		return c.execStoreAddr(op)

	case MOVN_A:
		return c.execMoveN()

	case MOVB_AR, MOVF_AR, MOVI_AR, MOVA_AR:
		return c.execLoadAddr(op)

	case MOVB_RA, MOVF_RA, MOVI_RA, MOVA_RA:
		return c.execStoreIndirect(op)

	case LDB, LDF, LDI, LDA:
		return c.execLoadConst(op)

	case ADDI, SUBI, MULI, DIVI:
		return c.execArithI(op, false)
	case ADDI_I, SUBI_I, MULI_I, DIVI_I:
		return c.execArithI(op, true)

	case ADDU, SUBU, MULU, DIVU:
		return c.execArithU(op, false)
	case ADDU_I, SUBU_I, MULU_I, DIVU_I:
		return c.execArithU(op, true)

	case ADDF, SUBF, MULF, DIVF:
		return c.execArithF(op, false)
	case ADDF_I, SUBF_I, MULF_I, DIVF_I:
		return c.execArithF(op, true)

	case JMP:
		target, err := c.fetchU64()
		if err != nil {
			return err
		}
		RegisterSet(&c.ip, target)
		return nil

	case JMPT, JMPF:
		return c.execCondJump(op, false)
	case DJMP:
		delta, err := c.fetchI64()
		if err != nil {
			return err
		}
		ip := int64(RegisterGet[uint64](&c.ip))
		RegisterSet(&c.ip, uint64(ip+delta))
		return nil
	case DJMPT, DJMPF:
		return c.execCondJump(op, true)

	case NOT:
		rd, rs, err := c.fetchTwoRegs()
		if err != nil {
			return err
		}
		dst, err := c.reg(rd)
		if err != nil {
			return err
		}
		src, err := c.reg(rs)
		if err != nil {
			return err
		}
		RegisterSet(dst, !RegisterGet[bool](src))
		return nil

	case EQI, NEQI, LTI, GTI, LTEQI, GTEQI:
		return c.execCompareI(op)
	case EQF, NEQF, LTF, GTF, LTEQF, GTEQF:
		return c.execCompareF(op)

	case CALL:
		uid, err := c.fetchU64()
		if err != nil {
			return err
		}
		return c.execCall(uid)

	case RET:
		return c.ret()

	case PUSHB, PUSHF, PUSHI, PUSHA:
		return c.execPush(op)

	case POPB, POPF, POPI, POPA:
		return c.execPop(op)

	default:
		return &UnimplementedOpcodeError{Op: op}
	}
}

func (c *Core) fetchTwoRegs() (a, b uint8, err error) {
	if a, err = c.fetchReg(); err != nil {
		return
	}
	b, err = c.fetchReg()
	return
}

func (c *Core) fetchThreeRegs() (a, b, d uint8, err error) {
	if a, err = c.fetchReg(); err != nil {
		return
	}
	if b, err = c.fetchReg(); err != nil {
		return
	}
	d, err = c.fetchReg()
	return
}

func (c *Core) execMovImm(op Opcode) error {
	rd, err := c.fetchReg()
	if err != nil {
		return err
	}
	dst, err := c.reg(rd)
	if err != nil {
		return err
	}
	switch op {
	case MOVB:
		b, err := c.fetchByte()
		if err != nil {
			return err
		}
		RegisterSet(dst, b != 0)
	case MOVF:
		f, err := c.fetchF32()
		if err != nil {
			return err
		}
		RegisterSet(dst, f)
	case MOVI:
		i, err := c.fetchI64()
		if err != nil {
			return err
		}
		RegisterSet(dst, i)
	case MOVA:
		a, err := c.fetchU64()
		if err != nil {
			return err
		}
		RegisterSet(dst, a)
	}
	return nil
}

// execStoreAddr implements the _A family: MOV{B|F|I|A}_A src_reg, src_off,
// dst_reg, dst_off copies between two tagged addresses held in registers,
// each shifted by its own signed 16-bit offset — a memory-to-memory move,
// not a register store.
func (c *Core) execStoreAddr(op Opcode) error {
	srcReg, err := c.fetchReg()
	if err != nil {
		return err
	}
	srcOff, err := c.fetchI16()
	if err != nil {
		return err
	}
	dstReg, err := c.fetchReg()
	if err != nil {
		return err
	}
	dstOff, err := c.fetchI16()
	if err != nil {
		return err
	}
	src, err := c.addrFromReg(srcReg, srcOff)
	if err != nil {
		return err
	}
	dst, err := c.addrFromReg(dstReg, dstOff)
	if err != nil {
		return err
	}
	var n uint64
	switch op {
	case MOVB_A:
		n = 1
	default:
		n = 8
	}
	return MemMovN(c, dst, src, n)
}

// execMoveN implements MOVN_A src_reg, src_off, dst_reg, dst_off, n: an
// immediate-operand memory-to-memory copy of n bytes between two
// register-plus-offset addresses.
func (c *Core) execMoveN() error {
	srcReg, err := c.fetchReg()
	if err != nil {
		return err
	}
	srcOff, err := c.fetchI16()
	if err != nil {
		return err
	}
	dstReg, err := c.fetchReg()
	if err != nil {
		return err
	}
	dstOff, err := c.fetchI16()
	if err != nil {
		return err
	}
	n, err := c.fetchU32()
	if err != nil {
		return err
	}
	src, err := c.addrFromReg(srcReg, srcOff)
	if err != nil {
		return err
	}
	dst, err := c.addrFromReg(dstReg, dstOff)
	if err != nil {
		return err
	}
	return MemMovN(c, dst, src, uint64(n))
}

// execLoadAddr implements the _AR family: MOV{B|F|I|A}_AR src_reg, src_off,
// dst_reg reads the tagged address held in src_reg (shifted by src_off) and
// loads the value found there into dst_reg.
func (c *Core) execLoadAddr(op Opcode) error {
	srcReg, err := c.fetchReg()
	if err != nil {
		return err
	}
	srcOff, err := c.fetchI16()
	if err != nil {
		return err
	}
	rd, err := c.fetchReg()
	if err != nil {
		return err
	}
	addr, err := c.addrFromReg(srcReg, srcOff)
	if err != nil {
		return err
	}
	dst, err := c.reg(rd)
	if err != nil {
		return err
	}
	switch op {
	case MOVB_AR:
		v, err := MemGet[bool](c, addr)
		if err != nil {
			return err
		}
		RegisterSet(dst, v)
	case MOVF_AR:
		v, err := MemGet[float32](c, addr)
		if err != nil {
			return err
		}
		RegisterSet(dst, v)
	case MOVI_AR:
		v, err := MemGet[int64](c, addr)
		if err != nil {
			return err
		}
		RegisterSet(dst, v)
	case MOVA_AR:
		v, err := MemGet[uint64](c, addr)
		if err != nil {
			return err
		}
		RegisterSet(dst, v)
	}
	return nil
}

// execStoreIndirect implements the _RA family: MOV{B|F|I|A}_RA src_reg,
// dst_reg, dst_off writes src_reg's value to the tagged address held in
// dst_reg, shifted by dst_off, letting compiled code address memory
// computed at runtime.
func (c *Core) execStoreIndirect(op Opcode) error {
	rs, err := c.fetchReg()
	if err != nil {
		return err
	}
	dstReg, err := c.fetchReg()
	if err != nil {
		return err
	}
	dstOff, err := c.fetchI16()
	if err != nil {
		return err
	}
	src, err := c.reg(rs)
	if err != nil {
		return err
	}
	addr, err := c.addrFromReg(dstReg, dstOff)
	if err != nil {
		return err
	}
	switch op {
	case MOVB_RA:
		return MemSet(c, addr, RegisterGet[bool](src))
	case MOVF_RA:
		return MemSet(c, addr, RegisterGet[float32](src))
	case MOVI_RA:
		return MemSet(c, addr, RegisterGet[int64](src))
	case MOVA_RA:
		return MemSet(c, addr, RegisterGet[uint64](src))
	}
	return nil
}

// execLoadConst implements LDx: load a value out of the Program's data
// region (the constant pool an external compiler lays down alongside code)
// into a register.
func (c *Core) execLoadConst(op Opcode) error {
	rd, err := c.fetchReg()
	if err != nil {
		return err
	}
	off, err := c.fetchU64()
	if err != nil {
		return err
	}
	dst, err := c.reg(rd)
	if err != nil {
		return err
	}
	addr := NewTaggedAddress(off, AddressProgram)
	switch op {
	case LDB:
		v, err := MemGet[bool](c, addr)
		if err != nil {
			return err
		}
		RegisterSet(dst, v)
	case LDF:
		v, err := MemGet[float32](c, addr)
		if err != nil {
			return err
		}
		RegisterSet(dst, v)
	case LDI:
		v, err := MemGet[int64](c, addr)
		if err != nil {
			return err
		}
		RegisterSet(dst, v)
	case LDA:
		v, err := MemGet[uint64](c, addr)
		if err != nil {
			return err
		}
		RegisterSet(dst, v)
	}
	return nil
}

func (c *Core) execArithI(op Opcode, hasImm bool) error {
	rd, rs, err := c.fetchTwoRegs()
	if err != nil {
		return err
	}
	dst, err := c.reg(rd)
	if err != nil {
		return err
	}
	lhsReg, err := c.reg(rs)
	if err != nil {
		return err
	}
	lhs := RegisterGet[int64](lhsReg)

	var rhs int64
	if hasImm {
		rhs, err = c.fetchI64()
		if err != nil {
			return err
		}
	} else {
		rr, err := c.fetchReg()
		if err != nil {
			return err
		}
		rhsReg, err := c.reg(rr)
		if err != nil {
			return err
		}
		rhs = RegisterGet[int64](rhsReg)
	}

	var result int64
	switch op {
	case ADDI, ADDI_I:
		result = lhs + rhs
	case SUBI, SUBI_I:
		result = lhs - rhs
	case MULI, MULI_I:
		result = lhs * rhs
	case DIVI, DIVI_I:
		result = lhs / rhs
	}
	RegisterSet(dst, result)
	return nil
}

func (c *Core) execArithU(op Opcode, hasImm bool) error {
	rd, rs, err := c.fetchTwoRegs()
	if err != nil {
		return err
	}
	dst, err := c.reg(rd)
	if err != nil {
		return err
	}
	lhsReg, err := c.reg(rs)
	if err != nil {
		return err
	}
	lhs := RegisterGet[uint64](lhsReg)

	var rhs uint64
	if hasImm {
		rhs, err = c.fetchU64()
		if err != nil {
			return err
		}
	} else {
		rr, err := c.fetchReg()
		if err != nil {
			return err
		}
		rhsReg, err := c.reg(rr)
		if err != nil {
			return err
		}
		rhs = RegisterGet[uint64](rhsReg)
	}

	var result uint64
	switch op {
	case ADDU, ADDU_I:
		result = lhs + rhs
	case SUBU, SUBU_I:
		result = lhs - rhs
	case MULU, MULU_I:
		result = lhs * rhs
	case DIVU, DIVU_I:
		result = lhs / rhs
	}
	RegisterSet(dst, result)
	return nil
}

func (c *Core) execArithF(op Opcode, hasImm bool) error {
	rd, rs, err := c.fetchTwoRegs()
	if err != nil {
		return err
	}
	dst, err := c.reg(rd)
	if err != nil {
		return err
	}
	lhsReg, err := c.reg(rs)
	if err != nil {
		return err
	}
	lhs := RegisterGet[float32](lhsReg)

	var rhs float32
	if hasImm {
		rhs, err = c.fetchF32()
		if err != nil {
			return err
		}
	} else {
		rr, err := c.fetchReg()
		if err != nil {
			return err
		}
		rhsReg, err := c.reg(rr)
		if err != nil {
			return err
		}
		rhs = RegisterGet[float32](rhsReg)
	}

	var result float32
	switch op {
	case ADDF, ADDF_I:
		result = lhs + rhs
	case SUBF, SUBF_I:
		result = lhs - rhs
	case MULF, MULF_I:
		result = lhs * rhs
	case DIVF, DIVF_I:
		result = lhs / rhs
	}
	RegisterSet(dst, result)
	return nil
}

func (c *Core) execCondJump(op Opcode, relative bool) error {
	rc, err := c.fetchReg()
	if err != nil {
		return err
	}
	condReg, err := c.reg(rc)
	if err != nil {
		return err
	}
	cond := RegisterGet[bool](condReg)

	var target uint64
	var delta int64
	if relative {
		delta, err = c.fetchI64()
	} else {
		target, err = c.fetchU64()
	}
	if err != nil {
		return err
	}

	want := op == JMPT || op == DJMPT
	if cond != want {
		return nil
	}
	if relative {
		ip := int64(RegisterGet[uint64](&c.ip))
		RegisterSet(&c.ip, uint64(ip+delta))
	} else {
		RegisterSet(&c.ip, target)
	}
	return nil
}

func (c *Core) execCompareI(op Opcode) error {
	rd, ra, rb, err := c.fetchThreeRegs()
	if err != nil {
		return err
	}
	dst, err := c.reg(rd)
	if err != nil {
		return err
	}
	aReg, err := c.reg(ra)
	if err != nil {
		return err
	}
	bReg, err := c.reg(rb)
	if err != nil {
		return err
	}
	a, b := RegisterGet[int64](aReg), RegisterGet[int64](bReg)

	var result bool
	switch op {
	case EQI:
		result = a == b
	case NEQI:
		result = a != b
	case LTI:
		result = a < b
	case GTI:
		result = a > b
	case LTEQI:
		result = a <= b
	case GTEQI:
		result = a >= b
	}
	RegisterSet(dst, result)
	return nil
}

func (c *Core) execCompareF(op Opcode) error {
	rd, ra, rb, err := c.fetchThreeRegs()
	if err != nil {
		return err
	}
	dst, err := c.reg(rd)
	if err != nil {
		return err
	}
	aReg, err := c.reg(ra)
	if err != nil {
		return err
	}
	bReg, err := c.reg(rb)
	if err != nil {
		return err
	}
	a, b := RegisterGet[float32](aReg), RegisterGet[float32](bReg)

	var result bool
	switch op {
	case EQF:
		result = a == b
	case NEQF:
		result = a != b
	case LTF:
		result = a < b
	case GTF:
		result = a > b
	case LTEQF:
		result = a <= b
	case GTEQF:
		result = a >= b
	}
	RegisterSet(dst, result)
	return nil
}

// execPush implements PUSHx Rs: push the register's value, read as the type
// the opcode suffix names, onto the stack. Bytecode can pass
// arguments to CALL targets, foreign or otherwise, this way as well as
// through the register file, which callers and callees share.
func (c *Core) execPush(op Opcode) error {
	rs, err := c.fetchReg()
	if err != nil {
		return err
	}
	src, err := c.reg(rs)
	if err != nil {
		return err
	}
	switch op {
	case PUSHB:
		return PushStack(c, RegisterGet[bool](src))
	case PUSHF:
		return PushStack(c, RegisterGet[float32](src))
	case PUSHI:
		return PushStack(c, RegisterGet[int64](src))
	case PUSHA:
		return PushStack(c, RegisterGet[uint64](src))
	}
	return nil
}

// execPop implements POPx Rd: pop a value of the opcode's type off the
// stack into the register.
func (c *Core) execPop(op Opcode) error {
	rd, err := c.fetchReg()
	if err != nil {
		return err
	}
	dst, err := c.reg(rd)
	if err != nil {
		return err
	}
	switch op {
	case POPB:
		v, err := PopStack[bool](c)
		if err != nil {
			return err
		}
		RegisterSet(dst, v)
	case POPF:
		v, err := PopStack[float32](c)
		if err != nil {
			return err
		}
		RegisterSet(dst, v)
	case POPI:
		v, err := PopStack[int64](c)
		if err != nil {
			return err
		}
		RegisterSet(dst, v)
	case POPA:
		v, err := PopStack[uint64](c)
		if err != nil {
			return err
		}
		RegisterSet(dst, v)
	}
	return nil
}

// execCall dispatches a CALL uid: uid is looked up first in the foreign
// registry and only falls back to the program's function table (an
// ordinary bytecode function) when no foreign function is registered under
// that uid, unifying both kinds of callee behind one opcode as spec.md's
// overview describes.
func (c *Core) execCall(uid uint64) error {
	err := c.callForeign(uid)
	if err != ErrUnknownFunctionUID {
		return err
	}
	if c.program != nil {
		if target, ok := c.program.Functions[uid]; ok {
			c.call(target)
			return nil
		}
	}
	return ErrUnknownFunctionUID
}
