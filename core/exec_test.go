package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravel-lang/ravel/asm"
	"github.com/ravel-lang/ravel/core"
)

func mustBuild(t *testing.T, b *asm.Builder) *core.Program {
	t.Helper()
	prog, err := b.Build()
	require.NoError(t, err)
	return prog
}

// TestIdentityReturn covers spec.md §8's identity scenario: a program that
// loads a constant into a register and halts should leave that register
// holding exactly the constant.
func TestIdentityReturn(t *testing.T) {
	b := asm.New()
	b.Op(core.MOVI).Reg(0).I64(42)
	b.Op(core.HALT).Byte(0)

	vm := core.NewCore(256)
	vm.LoadProgram(mustBuild(t, b))
	require.NoError(t, vm.Run())

	r0, err := vm.Reg(0)
	require.NoError(t, err)
	require.Equal(t, int64(42), core.RegisterGet[int64](r0))
}

// TestSum covers the sum scenario: two constants added into a third
// register.
func TestSum(t *testing.T) {
	b := asm.New()
	b.Op(core.MOVI).Reg(0).I64(2)
	b.Op(core.MOVI).Reg(1).I64(40)
	b.Op(core.ADDI).Reg(2).Reg(0).Reg(1)
	b.Op(core.HALT).Byte(0)

	vm := core.NewCore(256)
	vm.LoadProgram(mustBuild(t, b))
	require.NoError(t, vm.Run())

	r2, err := vm.Reg(2)
	require.NoError(t, err)
	require.Equal(t, int64(42), core.RegisterGet[int64](r2))
}

// TestBranchTaken covers a conditional jump whose condition is true: the
// instructions between the jump and its target must not execute.
func TestBranchTaken(t *testing.T) {
	b := asm.New()
	b.Op(core.MOVB).Reg(0).Bool(true)
	b.Op(core.JMPT).Reg(0).JumpToLabel("taken")
	b.Op(core.MOVI).Reg(1).I64(0)
	b.Op(core.HALT).Byte(0)
	b.Label("taken")
	b.Op(core.MOVI).Reg(1).I64(1)
	b.Op(core.HALT).Byte(0)

	vm := core.NewCore(256)
	vm.LoadProgram(mustBuild(t, b))
	require.NoError(t, vm.Run())

	r1, err := vm.Reg(1)
	require.NoError(t, err)
	require.Equal(t, int64(1), core.RegisterGet[int64](r1))
}

// TestBranchNotTaken is the complement of TestBranchTaken: a false
// condition must fall through.
func TestBranchNotTaken(t *testing.T) {
	b := asm.New()
	b.Op(core.MOVB).Reg(0).Bool(false)
	b.Op(core.JMPT).Reg(0).JumpToLabel("taken")
	b.Op(core.MOVI).Reg(1).I64(0)
	b.Op(core.HALT).Byte(0)
	b.Label("taken")
	b.Op(core.MOVI).Reg(1).I64(1)
	b.Op(core.HALT).Byte(0)

	vm := core.NewCore(256)
	vm.LoadProgram(mustBuild(t, b))
	require.NoError(t, vm.Run())

	r1, err := vm.Reg(1)
	require.NoError(t, err)
	require.Equal(t, int64(0), core.RegisterGet[int64](r1))
}

// TestCallReturn covers call/return: a CALL into a function that sets a
// register and returns, then the caller halts.
func TestCallReturn(t *testing.T) {
	const fnUID = 1

	b := asm.New()
	b.Op(core.CALL).U64(fnUID)
	b.Op(core.HALT).Byte(0)
	b.Label("fn")
	b.Op(core.MOVI).Reg(0).I64(7)
	b.Op(core.RET)
	b.Function(fnUID, "fn")

	vm := core.NewCore(256)
	vm.LoadProgram(mustBuild(t, b))
	require.NoError(t, vm.Run())

	r0, err := vm.Reg(0)
	require.NoError(t, err)
	require.Equal(t, int64(7), core.RegisterGet[int64](r0))
}

// TestStackRoundTrip covers PushStack/PopStack directly, independent of any
// opcode: a value pushed must come back unchanged and sp must return to its
// starting point.
func TestStackRoundTrip(t *testing.T) {
	vm := core.NewCore(64)

	require.NoError(t, core.PushStack[int64](vm, 99))
	v, err := core.PopStack[int64](vm)
	require.NoError(t, err)
	require.Equal(t, int64(99), v)

	sp, err := vm.Reg(core.RegSP)
	require.NoError(t, err)
	require.Equal(t, uint64(0), core.RegisterGet[uint64](sp))
}

// TestPushPopOpcodes covers the PUSH/POP instruction family used to pass
// call and foreign-call arguments on the stack.
func TestPushPopOpcodes(t *testing.T) {
	b := asm.New()
	b.Op(core.MOVI).Reg(0).I64(123)
	b.Op(core.PUSHI).Reg(0)
	b.Op(core.POPI).Reg(1)
	b.Op(core.HALT).Byte(0)

	vm := core.NewCore(64)
	vm.LoadProgram(mustBuild(t, b))
	require.NoError(t, vm.Run())

	r1, err := vm.Reg(1)
	require.NoError(t, err)
	require.Equal(t, int64(123), core.RegisterGet[int64](r1))
}

// TestForeignCall covers invoking a registered foreign function by uid and
// observing that it ran (set a register) from inside the foreign function.
func TestForeignCall(t *testing.T) {
	const fnUID = 42
	called := false

	b := asm.New()
	b.Op(core.CALL).U64(fnUID)
	b.Op(core.HALT).Byte(0)

	vm := core.NewCore(64)
	vm.LoadProgram(mustBuild(t, b))
	vm.RegisterForeignFunction(fnUID, func(c *core.Core) error {
		called = true
		r0, err := c.Reg(0)
		if err != nil {
			return err
		}
		core.RegisterSet(r0, int64(1))
		return nil
	})

	require.NoError(t, vm.Run())
	require.True(t, called)

	r0, err := vm.Reg(0)
	require.NoError(t, err)
	require.Equal(t, int64(1), core.RegisterGet[int64](r0))
}

// TestForeignCallErrorWrapsUnknown covers a foreign callback returning an
// error: the enclosing CALL must fail with core.ErrUnknown, not the raw
// callback error.
func TestForeignCallErrorWrapsUnknown(t *testing.T) {
	const fnUID = 7

	b := asm.New()
	b.Op(core.CALL).U64(fnUID)
	b.Op(core.HALT).Byte(0)

	vm := core.NewCore(64)
	vm.LoadProgram(mustBuild(t, b))
	vm.RegisterForeignFunction(fnUID, func(c *core.Core) error {
		return errors.New("boom")
	})

	require.ErrorIs(t, vm.Run(), core.ErrUnknown)
}

// TestCallPrefersForeignOverProgramFunction covers a uid registered both as
// a foreign function and as a program function: CALL must dispatch to the
// foreign registry first.
func TestCallPrefersForeignOverProgramFunction(t *testing.T) {
	const uid = 55
	called := false

	b := asm.New()
	b.Op(core.CALL).U64(uid)
	b.Op(core.HALT).Byte(0)
	b.Label("fn")
	b.Op(core.MOVI).Reg(0).I64(999)
	b.Op(core.RET)
	b.Function(uid, "fn")

	vm := core.NewCore(64)
	vm.LoadProgram(mustBuild(t, b))
	vm.RegisterForeignFunction(uid, func(c *core.Core) error {
		called = true
		return nil
	})

	require.NoError(t, vm.Run())
	require.True(t, called)

	r0, err := vm.Reg(0)
	require.NoError(t, err)
	require.Equal(t, int64(0), core.RegisterGet[int64](r0))
}

// TestHaltWithoutReturnValue covers the HALT 1 / ErrNoReturnValue edge
// case: halting with code 1 while the stack is empty is an error rather
// than a clean stop.
func TestHaltWithoutReturnValue(t *testing.T) {
	b := asm.New()
	b.Op(core.HALT).Byte(1)

	vm := core.NewCore(64)
	vm.LoadProgram(mustBuild(t, b))
	require.ErrorIs(t, vm.Run(), core.ErrNoReturnValue)
}

// TestHaltWithNonEmptyStackStillErrors covers HALT 1 when the stack is not
// empty: code 1 must unconditionally mean ErrNoReturnValue, regardless of
// stack state.
func TestHaltWithNonEmptyStackStillErrors(t *testing.T) {
	b := asm.New()
	b.Op(core.MOVI).Reg(0).I64(5)
	b.Op(core.PUSHI).Reg(0)
	b.Op(core.HALT).Byte(1)

	vm := core.NewCore(64)
	vm.LoadProgram(mustBuild(t, b))
	require.ErrorIs(t, vm.Run(), core.ErrNoReturnValue)
}

// TestMovAddressFamilyRoundTrip covers the _RA, _A, and _AR address-family
// MOV opcodes together: store a value through a register-held address,
// memory-to-memory copy it elsewhere, then load it back into a register.
func TestMovAddressFamilyRoundTrip(t *testing.T) {
	addrA := uint64(core.NewTaggedAddress(0, core.AddressStack))
	addrB := uint64(core.NewTaggedAddress(8, core.AddressStack))

	b := asm.New()
	b.Op(core.MOVA).Reg(0).U64(addrA)
	b.Op(core.MOVA).Reg(1).U64(addrB)
	b.Op(core.MOVI).Reg(2).I64(777)
	b.Op(core.MOVI_RA).Reg(2).Reg(0).I16(0)
	b.Op(core.MOVI_A).Reg(0).I16(0).Reg(1).I16(0)
	b.Op(core.MOVI_AR).Reg(1).I16(0).Reg(3)
	b.Op(core.HALT).Byte(0)

	vm := core.NewCore(64)
	vm.LoadProgram(mustBuild(t, b))
	require.NoError(t, vm.Run())

	r3, err := vm.Reg(3)
	require.NoError(t, err)
	require.Equal(t, int64(777), core.RegisterGet[int64](r3))
}

// TestMoveNCopiesBytes covers MOVN_A's immediate-operand byte count, as
// opposed to the fixed width the scalar _A opcodes use (1 byte for MOVB_A,
// 8 for the others).
func TestMoveNCopiesBytes(t *testing.T) {
	addrA := uint64(core.NewTaggedAddress(0, core.AddressStack))
	addrB := uint64(core.NewTaggedAddress(16, core.AddressStack))

	b := asm.New()
	b.Op(core.MOVA).Reg(0).U64(addrA)
	b.Op(core.MOVA).Reg(1).U64(addrB)
	b.Op(core.MOVI).Reg(2).I64(99)
	b.Op(core.MOVI_RA).Reg(2).Reg(0).I16(0)
	b.Op(core.MOVN_A).Reg(0).I16(0).Reg(1).I16(0).U32(8)
	b.Op(core.MOVI_AR).Reg(1).I16(0).Reg(3)
	b.Op(core.HALT).Byte(0)

	vm := core.NewCore(64)
	vm.LoadProgram(mustBuild(t, b))
	require.NoError(t, vm.Run())

	r3, err := vm.Reg(3)
	require.NoError(t, err)
	require.Equal(t, int64(99), core.RegisterGet[int64](r3))
}

// TestReturnWithEmptyCallStack covers RET reached outside of any CALL.
func TestReturnWithEmptyCallStack(t *testing.T) {
	b := asm.New()
	b.Op(core.RET)

	vm := core.NewCore(64)
	vm.LoadProgram(mustBuild(t, b))
	require.ErrorIs(t, vm.Run(), core.ErrEmptyCallStack)
}

// TestUnknownForeignFunctionUID covers CALL to an unregistered uid with no
// matching program function either.
func TestUnknownForeignFunctionUID(t *testing.T) {
	b := asm.New()
	b.Op(core.CALL).U64(999)

	vm := core.NewCore(64)
	vm.LoadProgram(mustBuild(t, b))
	require.ErrorIs(t, vm.Run(), core.ErrUnknownFunctionUID)
}
