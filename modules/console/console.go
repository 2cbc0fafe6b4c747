// Package console provides an example foreign module exposing print,
// println, and readline to bytecode. It is grounded on the teacher VM's
// consoleIO hardware device (vm/devices.go), stripped of that device's
// goroutine-and-channel async protocol: spec.md §5 requires a Core never be
// shared across threads, so every call here runs synchronously on the
// calling goroutine instead of round-tripping through a request channel.
package console

import (
	"bufio"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ravel-lang/ravel/core"
)

// Console holds the I/O streams print/println/readline operate on.
type Console struct {
	out *bufio.Writer
	in  *bufio.Reader

	// inFile is set when r is an *os.File, letting readline toggle raw
	// echo around the read (withRawEcho leaves non-terminals as they
	// are); nil for in-memory readers (tests).
	inFile *os.File

	log *logrus.Entry
}

// New wraps w/r for use as a foreign module. log may be nil, in which case
// a disabled logger is used so calls are silent by default.
func New(w io.Writer, r io.Reader, log *logrus.Entry) *Console {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	con := &Console{out: bufio.NewWriter(w), in: bufio.NewReader(r), log: log}
	if f, ok := r.(*os.File); ok {
		con.inFile = f
	}
	return con
}

// Module returns the foreign module tree to hand to
// (*core.Core).RegisterForeignModule.
func (con *Console) Module() *core.Module {
	return &core.Module{
		Name: "console",
		Functions: map[string]core.ForeignFunction{
			"print":    con.print,
			"println":  con.println,
			"readline": con.readline,
		},
	}
}

// print pops a string-typed stack value — a stack-top address pointing at
// a length-prefixed string descriptor — and writes it without a trailing
// newline.
func (con *Console) print(c *core.Core) error {
	s, err := con.popString(c)
	if err != nil {
		return err
	}
	_, err = con.out.WriteString(s)
	if err != nil {
		con.log.WithError(err).Error("console.print write failed")
		return err
	}
	return con.out.Flush()
}

// println is print plus a trailing newline.
func (con *Console) println(c *core.Core) error {
	s, err := con.popString(c)
	if err != nil {
		return err
	}
	if _, err := con.out.WriteString(s); err != nil {
		return err
	}
	if err := con.out.WriteByte('\n'); err != nil {
		return err
	}
	return con.out.Flush()
}

// readline reads one line from input and writes it as a string descriptor
// at the address given by register 0: a u64 byte length at dest, a u64 data
// address at dest+8, and the line's bytes themselves at dest+16 — the same
// layout core.MemGetString reads back.
func (con *Console) readline(c *core.Core) error {
	r0, err := c.Reg(0)
	if err != nil {
		return err
	}
	dest := core.TaggedAddress(core.RegisterGet[uint64](r0))

	var line string
	readLine := func() {
		line, err = con.in.ReadString('\n')
	}
	if con.inFile != nil {
		withRawEcho(con.inFile, readLine)
	} else {
		readLine()
	}
	if err != nil && err != io.EOF {
		con.log.WithError(err).Error("console.readline failed")
		return err
	}
	line = trimNewline(line)

	data := dest.WithOffset(16)
	if err := core.MemSetBytes(c, data, []byte(line)); err != nil {
		return err
	}
	if err := core.MemSet(c, dest, uint64(len(line))); err != nil {
		return err
	}
	return core.MemSet(c, dest.WithOffset(8), uint64(data))
}

// popString reads an address off the top of the stack and resolves it to a
// Go string via core.MemGetString.
func (con *Console) popString(c *core.Core) (string, error) {
	addrBits, err := core.PopStack[uint64](c)
	if err != nil {
		return "", err
	}
	return core.MemGetString(c, core.TaggedAddress(addrBits))
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
