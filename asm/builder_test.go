package asm_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravel-lang/ravel/asm"
	"github.com/ravel-lang/ravel/core"
)

func TestBuilderResolvesForwardLabel(t *testing.T) {
	b := asm.New()
	b.Op(core.JMP).JumpToLabel("end")
	b.Op(core.MOVI).Reg(0).I64(1)
	b.Label("end")
	b.Op(core.HALT).Byte(0)

	prog, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, 1+8+1+1+8+2, prog.Len())
}

func TestBuilderUndefinedLabelErrors(t *testing.T) {
	b := asm.New()
	b.Op(core.JMP).JumpToLabel("nowhere")

	_, err := b.Build()
	require.Error(t, err)
}

func TestWriteReadProgramRoundTrip(t *testing.T) {
	b := asm.New()
	b.Op(core.CALL).U64(7)
	b.Op(core.HALT).Byte(0)
	b.Label("fn")
	b.Op(core.RET)
	b.Function(7, "fn")

	prog, err := b.Build()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, asm.WriteProgram(&buf, prog))

	got, err := asm.ReadProgram(&buf)
	require.NoError(t, err)
	require.Equal(t, prog.Code, got.Code)
	require.Equal(t, prog.Functions, got.Functions)
}
