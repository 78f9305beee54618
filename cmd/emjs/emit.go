package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"emjs/internal/backend/asmjs"
	"emjs/internal/config"
	"emjs/internal/diag"
	"emjs/internal/ir/irfile"
	"emjs/internal/observ"
	"emjs/internal/passes"
)

var emitCmd = &cobra.Command{
	Use:   "emit [flags] module.mp...",
	Short: "Lower IR modules to asm.js",
	Long: "Lower one or more serialized IR modules to asm.js text. Each input produces a .js file " +
		"next to it (or under --out). Options come from emjs.toml beside the input, overridden by flags.",
	Args: cobra.MinimumNArgs(1),
	RunE: emitExecution,
}

func init() {
	emitCmd.Flags().String("out", "", "output directory (default: next to each input)")
	emitCmd.Flags().Bool("precise-f32", false, "use Math_fround for exact float32 semantics")
	emitCmd.Flags().Bool("warn-on-unaligned", false, "warn about misaligned loads and stores")
	emitCmd.Flags().Int("reserved-function-pointers", 0, "reserved slots per function table")
	emitCmd.Flags().Int("assertions", 0, "emit stack-overflow checks")
	emitCmd.Flags().Bool("no-aliasing-function-pointers", false, "unique indices across all function tables")
	emitCmd.Flags().Int("global-base", 8, "absolute base of the global memory image")
	emitCmd.Flags().IntP("opt-level", "O", 0, "optimization level (0-3)")
}

func emitExecution(cmd *cobra.Command, args []string) error {
	outDir, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	showTimings, err := cmd.Flags().GetBool("timings")
	if err != nil {
		return err
	}

	// One emitter per module; the core itself is single-threaded, so
	// concurrency lives only at this fan-out.
	var g errgroup.Group
	for _, input := range args {
		input := input
		g.Go(func() error {
			opts, err := resolveOptions(cmd, input)
			if err != nil {
				return err
			}
			return emitOne(input, outDir, opts, showTimings)
		})
	}
	return g.Wait()
}

// resolveOptions layers flag overrides on top of the emjs.toml manifest
// beside the input.
func resolveOptions(cmd *cobra.Command, input string) (config.Options, error) {
	opts, err := config.Load(filepath.Join(filepath.Dir(input), config.ManifestName))
	if err != nil {
		return opts, err
	}
	flags := cmd.Flags()
	if flags.Changed("precise-f32") {
		opts.PreciseF32, _ = flags.GetBool("precise-f32")
	}
	if flags.Changed("warn-on-unaligned") {
		opts.WarnOnUnaligned, _ = flags.GetBool("warn-on-unaligned")
	}
	if flags.Changed("reserved-function-pointers") {
		opts.ReservedFunctionPointers, _ = flags.GetInt("reserved-function-pointers")
	}
	if flags.Changed("assertions") {
		opts.Assertions, _ = flags.GetInt("assertions")
	}
	if flags.Changed("no-aliasing-function-pointers") {
		opts.NoAliasingFunctionPointers, _ = flags.GetBool("no-aliasing-function-pointers")
	}
	if flags.Changed("global-base") {
		opts.GlobalBase, _ = flags.GetInt("global-base")
	}
	if flags.Changed("opt-level") {
		opts.OptLevel, _ = flags.GetInt("opt-level")
	}
	return opts, nil
}

func emitOne(input, outDir string, opts config.Options, showTimings bool) error {
	timer := observ.NewTimer()

	phase := timer.Begin("load")
	mod, err := irfile.Load(input)
	if err != nil {
		return fmt.Errorf("load %s: %w", input, err)
	}
	timer.End(phase, input)

	phase = timer.Begin("passes")
	if err := mod.Validate(); err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}
	// The heavy legalization ran upstream; the emit-time subset is
	// resolved through the registry (identity unless the driver plugged
	// implementations in).
	if err := passes.NewRegistry().Run(mod, passes.EmitPlan(opts.OptLevel)); err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}
	timer.End(phase, "")

	phase = timer.Begin("emit")
	text, err := asmjs.EmitModule(mod, opts, diag.NewReporter(os.Stderr))
	if err != nil {
		return fmt.Errorf("emit %s: %w", input, err)
	}
	timer.End(phase, "")

	out := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ".js"
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
		out = filepath.Join(outDir, out)
	} else {
		out = filepath.Join(filepath.Dir(input), out)
	}
	if err := os.WriteFile(out, []byte(text), 0o644); err != nil {
		return err
	}

	if showTimings {
		fmt.Fprint(os.Stderr, timer.Summary())
	}
	return nil
}
