package core

import "strconv"

// AddressType tags which address space a TaggedAddress's real address is
// relative to.
type AddressType uint8

const (
	AddressStack AddressType = iota
	AddressProgram
	AddressSwap
	AddressHeap
	AddressForeign
)

func (t AddressType) String() string {
	switch t {
	case AddressStack:
		return "stack"
	case AddressProgram:
		return "program"
	case AddressSwap:
		return "swap"
	case AddressHeap:
		return "heap"
	case AddressForeign:
		return "foreign"
	default:
		return "unknown"
	}
}

const (
	// addressRealBits is the width of the real-address field packed into
	// the low bits of a TaggedAddress. The remaining high byte holds the
	// AddressType tag.
	addressRealBits = 56
	addressRealMask = (uint64(1) << addressRealBits) - 1
)

// TaggedAddress packs a real byte offset and an AddressType into a single
// 64-bit value, the same width as a Register, so it can be loaded into a
// register and passed around like any other scalar.
type TaggedAddress uint64

// NewTaggedAddress encodes a real address and its address space tag.
func NewTaggedAddress(real uint64, t AddressType) TaggedAddress {
	return TaggedAddress((real & addressRealMask) | (uint64(t) << addressRealBits))
}

// Decode splits a TaggedAddress back into its real address and tag.
func (a TaggedAddress) Decode() (real uint64, t AddressType) {
	return uint64(a) & addressRealMask, AddressType(uint64(a) >> addressRealBits)
}

// RealAddress returns just the offset component.
func (a TaggedAddress) RealAddress() uint64 {
	real, _ := a.Decode()
	return real
}

// Type returns just the address-space tag.
func (a TaggedAddress) Type() AddressType {
	_, t := a.Decode()
	return t
}

// WithOffset returns a new TaggedAddress whose real address has been shifted
// by a signed offset, wrapping two's-complement style within the real
// address field. The tag is preserved.
func (a TaggedAddress) WithOffset(offset int16) TaggedAddress {
	real, t := a.Decode()
	shifted := (real + uint64(int64(offset))) & addressRealMask
	return NewTaggedAddress(shifted, t)
}

func (a TaggedAddress) String() string {
	real, t := a.Decode()
	return t.String() + "+" + strconv.FormatUint(real, 10)
}
