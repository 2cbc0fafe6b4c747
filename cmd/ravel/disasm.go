package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ravel-lang/ravel/asm"
	"github.com/ravel-lang/ravel/core"
)

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm PROGRAM",
		Short: "Print the opcode byte at every offset of a compiled program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "open program")
			}
			defer f.Close()

			prog, err := asm.ReadProgram(f)
			if err != nil {
				return errors.Wrap(err, "decode program")
			}

			for off, b := range prog.Code {
				fmt.Printf("%06d: 0x%02x %s\n", off, b, core.Opcode(b))
			}
			return nil
		},
	}
}
