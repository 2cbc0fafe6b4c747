package core

import (
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// scalarByteSize returns the encoded width of T, matching the widths used
// by RegisterGet/RegisterSet so values round-trip between registers and
// memory without truncation.
func scalarByteSize[T Scalar]() uint64 {
	var zero T
	switch any(zero).(type) {
	case bool:
		return 1
	case int64, uint64, float32:
		return 8
	default:
		panic("core: unreachable scalar type")
	}
}

// space resolves an address-space tag to the backing byte slice. Heap and
// Foreign are reserved spaces with no backing store in this implementation
// (spec.md §9); addressing into them is ErrUnknown.
func (c *Core) space(t AddressType) (*[]byte, error) {
	switch t {
	case AddressStack:
		return &c.stack, nil
	case AddressProgram:
		if c.program == nil {
			return nil, ErrNoProgram
		}
		return &c.program.Code, nil
	case AddressSwap:
		return &c.swap, nil
	default:
		return nil, ErrUnknown
	}
}

func decodeScalar[T Scalar](raw []byte) T {
	var zero T
	switch any(zero).(type) {
	case bool:
		return any(raw[0] != 0).(T)
	case int64:
		return any(int64(binary.LittleEndian.Uint64(raw))).(T)
	case uint64:
		return any(binary.LittleEndian.Uint64(raw)).(T)
	case float32:
		return any(math.Float32frombits(binary.LittleEndian.Uint32(raw))).(T)
	default:
		panic("core: unreachable scalar type")
	}
}

func encodeScalar[T Scalar](dst []byte, v T) {
	switch x := any(v).(type) {
	case bool:
		if x {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
	case int64:
		binary.LittleEndian.PutUint64(dst, uint64(x))
	case uint64:
		binary.LittleEndian.PutUint64(dst, x)
	case float32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(x))
	default:
		panic("core: unreachable scalar type")
	}
}

// MemGet reads a scalar of type T out of the address space a TaggedAddress
// points into.
func MemGet[T Scalar](c *Core, addr TaggedAddress) (T, error) {
	var zero T
	backing, err := c.space(addr.Type())
	if err != nil {
		return zero, err
	}
	off := addr.RealAddress()
	n := scalarByteSize[T]()
	if off+n > uint64(len(*backing)) {
		return zero, ErrInvalidStackPointer
	}
	return decodeScalar[T]((*backing)[off : off+n]), nil
}

// MemSet writes a scalar of type T into the address space a TaggedAddress
// points into. Writing into Swap this way is rejected: scalar writes into
// Swap go through SaveSwap (MemMovN and MemSetBytes do accept a Swap
// destination).
func MemSet[T Scalar](c *Core, addr TaggedAddress, v T) error {
	if addr.Type() == AddressSwap {
		return ErrUnknown
	}
	backing, err := c.space(addr.Type())
	if err != nil {
		return err
	}
	off := addr.RealAddress()
	n := scalarByteSize[T]()
	if off+n > uint64(len(*backing)) {
		return ErrInvalidStackPointer
	}
	encodeScalar((*backing)[off:off+n], v)
	return nil
}

// MemSetBytes writes raw directly into the address space addr points into,
// the byte-slice counterpart to MemSet's scalar writes (used by foreign
// functions like console.readline that hand back variable-length data).
func MemSetBytes(c *Core, addr TaggedAddress, raw []byte) error {
	backing, err := c.space(addr.Type())
	if err != nil {
		return err
	}
	off := addr.RealAddress()
	n := uint64(len(raw))
	if off+n > uint64(len(*backing)) {
		if addr.Type() == AddressStack {
			c.growStack(off + n)
			backing = &c.stack
		} else {
			return ErrInvalidStackPointer
		}
	}
	copy((*backing)[off:off+n], raw)
	return nil
}

// MemGetN copies n raw bytes starting at addr out of its address space.
func MemGetN(c *Core, addr TaggedAddress, n uint64) ([]byte, error) {
	backing, err := c.space(addr.Type())
	if err != nil {
		return nil, err
	}
	off := addr.RealAddress()
	if off+n > uint64(len(*backing)) {
		return nil, ErrInvalidStackPointer
	}
	out := make([]byte, n)
	copy(out, (*backing)[off:off+n])
	return out, nil
}

// MemMovN copies n bytes from src's address space to dst's, independent of
// whether the two addresses name the same space.
func MemMovN(c *Core, dst, src TaggedAddress, n uint64) error {
	srcBacking, err := c.space(src.Type())
	if err != nil {
		return err
	}
	dstBacking, err := c.space(dst.Type())
	if err != nil {
		return err
	}
	srcOff, dstOff := src.RealAddress(), dst.RealAddress()
	if srcOff+n > uint64(len(*srcBacking)) || dstOff+n > uint64(len(*dstBacking)) {
		return ErrInvalidStackPointer
	}
	copy((*dstBacking)[dstOff:dstOff+n], (*srcBacking)[srcOff:srcOff+n])
	return nil
}

// MemGetString reads a string descriptor at addr: a u64 byte length at addr,
// followed by a u64 data address at addr+8, then decodes the length bytes at
// that data address as UTF-8. This is the layout the Rust original's
// mem_get_string uses (core.rs) for any bytes handed to a foreign function
// expecting text; invalid UTF-8 in the decoded run is ErrOperatorDeserialize.
func MemGetString(c *Core, addr TaggedAddress) (string, error) {
	length, err := MemGet[uint64](c, addr)
	if err != nil {
		return "", err
	}
	dataAddr, err := MemGet[uint64](c, addr.WithOffset(8))
	if err != nil {
		return "", err
	}
	raw, err := MemGetN(c, TaggedAddress(dataAddr), length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", ErrOperatorDeserialize
	}
	return string(raw), nil
}

// PushStack writes v at the current stack pointer and advances sp by
// sizeof(T), growing the backing stack slice first if fewer than
// stackGrowThreshold bytes remain, matching the Rust original's grow-on-
// demand stack.
func PushStack[T Scalar](c *Core, v T) error {
	n := scalarByteSize[T]()
	sp := RegisterGet[uint64](&c.sp)
	if uint64(len(c.stack))-sp < stackGrowThreshold+n {
		c.growStack(sp + n + stackGrowThreshold)
	}
	encodeScalar(c.stack[sp:sp+n], v)
	c.sp.Inc(n)
	return nil
}

// PopStack retreats sp by sizeof(T) and reads the scalar that was there.
func PopStack[T Scalar](c *Core) (T, error) {
	var zero T
	n := scalarByteSize[T]()
	sp := RegisterGet[uint64](&c.sp)
	if sp < n {
		return zero, ErrInvalidStackPointer
	}
	sp -= n
	v := decodeScalar[T](c.stack[sp : sp+n])
	c.sp.Dec(n)
	return v, nil
}

// SaveSwap writes v into the Swap scratch space at the given offset, the
// scalar write path into Swap (MemSet rejects Swap addresses). Swap does not
// grow: a value that does not fit is ErrInvalidStackPointer.
func SaveSwap[T Scalar](c *Core, offset uint64, v T) error {
	n := scalarByteSize[T]()
	if offset+n > uint64(len(c.swap)) {
		return ErrInvalidStackPointer
	}
	encodeScalar(c.swap[offset:offset+n], v)
	return nil
}
