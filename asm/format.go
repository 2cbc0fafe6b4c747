package asm

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/ravel-lang/ravel/core"
)

var magic = [4]byte{'R', 'A', 'V', 'L'}

// WriteProgram serializes p to w in this repo's wire format: a 4-byte
// magic, the function table (count, then uid/offset pairs), the code
// length, then the raw code bytes. All integers are little-endian, per
// spec.md §6.
func WriteProgram(w io.Writer, p *core.Program) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(magic[:]); err != nil {
		return errors.Wrap(err, "asm: write magic")
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(p.Functions))); err != nil {
		return errors.Wrap(err, "asm: write function count")
	}
	for uid, off := range p.Functions {
		if err := binary.Write(bw, binary.LittleEndian, uid); err != nil {
			return errors.Wrap(err, "asm: write function uid")
		}
		if err := binary.Write(bw, binary.LittleEndian, off); err != nil {
			return errors.Wrap(err, "asm: write function offset")
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(p.Code))); err != nil {
		return errors.Wrap(err, "asm: write code length")
	}
	if _, err := bw.Write(p.Code); err != nil {
		return errors.Wrap(err, "asm: write code")
	}
	return bw.Flush()
}

// ReadProgram is the inverse of WriteProgram.
func ReadProgram(r io.Reader) (*core.Program, error) {
	br := bufio.NewReader(r)
	var got [4]byte
	if _, err := io.ReadFull(br, got[:]); err != nil {
		return nil, errors.Wrap(err, "asm: read magic")
	}
	if got != magic {
		return nil, errors.New("asm: bad magic, not a ravel program")
	}

	var fnCount uint32
	if err := binary.Read(br, binary.LittleEndian, &fnCount); err != nil {
		return nil, errors.Wrap(err, "asm: read function count")
	}
	functions := make(map[uint64]uint64, fnCount)
	for i := uint32(0); i < fnCount; i++ {
		var uid, off uint64
		if err := binary.Read(br, binary.LittleEndian, &uid); err != nil {
			return nil, errors.Wrap(err, "asm: read function uid")
		}
		if err := binary.Read(br, binary.LittleEndian, &off); err != nil {
			return nil, errors.Wrap(err, "asm: read function offset")
		}
		functions[uid] = off
	}

	var codeLen uint64
	if err := binary.Read(br, binary.LittleEndian, &codeLen); err != nil {
		return nil, errors.Wrap(err, "asm: read code length")
	}
	code := make([]byte, codeLen)
	if _, err := io.ReadFull(br, code); err != nil {
		return nil, errors.Wrap(err, "asm: read code")
	}

	return &core.Program{Code: code, Functions: functions}, nil
}
