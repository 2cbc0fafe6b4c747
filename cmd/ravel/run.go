package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ravel-lang/ravel/asm"
	"github.com/ravel-lang/ravel/core"
	"github.com/ravel-lang/ravel/modules/console"
)

func newRunCmd() *cobra.Command {
	var stackSize int

	cmd := &cobra.Command{
		Use:   "run PROGRAM",
		Short: "Load a compiled program and run it to completion",
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

			vm := core.NewCore(stackSize)
			vm.LoadProgram(prog)

			con := console.New(os.Stdout, os.Stdin, log.WithField("module", "console"))
			vm.RegisterForeignModule(con.Module())

			log.WithField("codeLen", prog.Len()).Debug("starting run")
			if err := vm.Run(); err != nil {
				return errors.Wrap(err, "run")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&stackSize, "stack-size", 4096, "initial stack size in bytes")
	return cmd
}
