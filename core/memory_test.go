package core_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravel-lang/ravel/core"
)

// writeDescriptor lays out a string descriptor at addr: a u64 length, a u64
// data address, then the raw bytes at dataAddr, per spec.md §4.4.
func writeDescriptor(t *testing.T, c *core.Core, addr, dataAddr core.TaggedAddress, raw []byte) {
	t.Helper()
	require.NoError(t, core.MemSetBytes(c, dataAddr, raw))
	require.NoError(t, core.MemSet(c, addr, uint64(len(raw))))
	require.NoError(t, core.MemSet(c, addr.WithOffset(8), uint64(dataAddr)))
}

func TestMemGetStringReadsLengthAddressDescriptor(t *testing.T) {
	c := core.NewCore(64)
	addr := core.NewTaggedAddress(0, core.AddressStack)
	data := core.NewTaggedAddress(32, core.AddressStack)
	writeDescriptor(t, c, addr, data, []byte("hello"))

	got, err := core.MemGetString(c, addr)
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestMemGetStringRejectsInvalidUTF8(t *testing.T) {
	c := core.NewCore(64)
	addr := core.NewTaggedAddress(0, core.AddressStack)
	data := core.NewTaggedAddress(32, core.AddressStack)
	writeDescriptor(t, c, addr, data, []byte{0xff, 0xfe, 0xfd})

	_, err := core.MemGetString(c, addr)
	require.ErrorIs(t, err, core.ErrOperatorDeserialize)
}
