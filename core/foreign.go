package core

import (
	"fmt"

	"github.com/google/uuid"
)

// Module groups related ForeignFunctions under a name, and may nest further
// Modules (e.g. "console.write" vs "console"), mirroring the Rust
// original's register_foreign_module, which walks a tree of named function
// groups rather than a flat map.
type Module struct {
	Name      string
	Functions map[string]ForeignFunction
	Submodules []*Module
}

// ForeignUID derives a stable uid for a dotted function path (e.g.
// "console.println"), so an assembler can compile a CALL against a known
// function name without first registering it, and RegisterForeignModule
// installs the same name under the same uid every time.
func ForeignUID(path string) uint64 {
	sum := uuid.NewSHA1(uuid.NameSpaceOID, []byte(path))
	b := sum[:]
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// RegisterForeignModule walks m and its submodules depth-first, assigning
// each function a uid derived from its dotted path (e.g. "console.print")
// and recording path -> uid in the returned table so callers can compile
// CALL instructions against known names.
func (c *Core) RegisterForeignModule(m *Module) map[string]uint64 {
	uids := make(map[string]uint64)
	c.registerModule(m, "", uids)
	return uids
}

func (c *Core) registerModule(m *Module, prefix string, uids map[string]uint64) {
	path := m.Name
	if prefix != "" {
		path = prefix + "." + m.Name
	}
	for name, fn := range m.Functions {
		full := path + "." + name
		uid := ForeignUID(full)
		c.foreignFunctions[uid] = fn
		uids[full] = uid
	}
	for _, sub := range m.Submodules {
		c.registerModule(sub, path, uids)
	}
}

// RegisterForeignFunction installs a single function under an explicit uid,
// for callers (tests, asm) that want to pick uids themselves instead of
// going through RegisterForeignModule.
func (c *Core) RegisterForeignFunction(uid uint64, fn ForeignFunction) {
	c.foreignFunctions[uid] = fn
}

// callForeign invokes the function registered under uid. It removes the
// entry before calling and reinserts it after, so a foreign function that
// re-enters the Core (e.g. by calling Run again from within itself) cannot
// recursively invoke itself through the same uid — the same discipline the
// Rust original's Core::call uses around its foreign_functions map. Any
// error the callback returns fails the enclosing CALL with ErrUnknown,
// matching Core::call's closure(self).map_err(|_| CoreError::Unknown).
func (c *Core) callForeign(uid uint64) error {
	fn, ok := c.foreignFunctions[uid]
	if !ok {
		return ErrUnknownFunctionUID
	}
	delete(c.foreignFunctions, uid)
	defer func() { c.foreignFunctions[uid] = fn }()
	if err := fn(c); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	return nil
}
