package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ravel-lang/ravel/core"
)

func TestTaggedAddressRoundTrip(t *testing.T) {
	addr := core.NewTaggedAddress(1234, core.AddressSwap)
	real, typ := addr.Decode()
	assert.Equal(t, uint64(1234), real)
	assert.Equal(t, core.AddressSwap, typ)
}

func TestTaggedAddressWithOffsetPositive(t *testing.T) {
	addr := core.NewTaggedAddress(10, core.AddressStack)
	moved := addr.WithOffset(5)
	assert.Equal(t, uint64(15), moved.RealAddress())
	assert.Equal(t, core.AddressStack, moved.Type())
}

func TestTaggedAddressWithOffsetNegativeWraps(t *testing.T) {
	addr := core.NewTaggedAddress(0, core.AddressProgram)
	moved := addr.WithOffset(-1)
	// two's-complement wraparound within the 56-bit real-address field
	assert.Equal(t, uint64(1)<<56-1, moved.RealAddress())
}
