package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"emjs/internal/ir"
	"emjs/internal/ir/irfile"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] module.mp",
	Short: "Summarize a serialized IR module",
	Args:  cobra.ExactArgs(1),
	RunE:  inspectExecution,
}

func init() {
	inspectCmd.Flags().Bool("roundtrip", false, "re-serialize the module and rewrite the file")
}

func inspectExecution(cmd *cobra.Command, args []string) error {
	roundtrip, err := cmd.Flags().GetBool("roundtrip")
	if err != nil {
		return err
	}

	mod, err := irfile.Load(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("triple:    %s\n", mod.TargetTriple)
	fmt.Printf("globals:   %d\n", len(mod.Globals))
	defined, declared := 0, 0
	blocks, instrs := 0, 0
	for _, f := range mod.Funcs {
		if f.IsDeclaration() {
			declared++
			continue
		}
		defined++
		blocks += len(f.Blocks)
		for _, b := range f.Blocks {
			instrs += len(b.Instrs)
		}
	}
	fmt.Printf("functions: %d defined, %d declared\n", defined, declared)
	fmt.Printf("blocks:    %d\n", blocks)
	fmt.Printf("instrs:    %d\n", instrs)
	if mod.TargetTriple != ir.ExpectedTriple {
		fmt.Fprintf(os.Stderr, "note: triple differs from %q\n", ir.ExpectedTriple)
	}

	if roundtrip {
		return irfile.Store(args[0], mod)
	}
	return nil
}
