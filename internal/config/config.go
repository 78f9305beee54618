// Package config holds the emitter options record. Options are resolved
// once at process start (manifest first, flags on top) and threaded into
// the emitter's constructor; nothing reads them through globals.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Options controls code emission.
type Options struct {
	// PreciseF32 enables Math_fround for exact float32 semantics.
	PreciseF32 bool `toml:"precise-f32"`
	// WarnOnUnaligned reports misaligned loads and stores.
	WarnOnUnaligned bool `toml:"warn-on-unaligned"`
	// ReservedFunctionPointers reserves slots at the front of every
	// function table for functions added at runtime.
	ReservedFunctionPointers int `toml:"reserved-function-pointers"`
	// Assertions > 0 emits stack-overflow checks after stack bumps.
	Assertions int `toml:"assertions"`
	// NoAliasingFunctionPointers gives every function a unique index
	// across all tables.
	NoAliasingFunctionPointers bool `toml:"no-aliasing-function-pointers"`
	// GlobalBase is the absolute byte address where the global memory
	// image starts.
	GlobalBase int `toml:"global-base"`
	// OptLevel is the codegen optimization level (0..3). At 0 the
	// emitter nativizes allocas itself.
	OptLevel int `toml:"opt-level"`
}

// Default returns the option defaults.
func Default() Options {
	return Options{GlobalBase: 8}
}

// ManifestName is the options manifest filename looked up next to inputs.
const ManifestName = "emjs.toml"

// Load reads options from a TOML manifest, applying defaults for absent
// keys. A missing file is not an error: defaults are returned.
func Load(path string) (Options, error) {
	opts := Default()
	meta, err := toml.DecodeFile(path, &opts)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return opts, nil
		}
		return opts, fmt.Errorf("read %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return opts, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	return opts, opts.check()
}

func (o Options) check() error {
	if o.GlobalBase < 0 || o.GlobalBase%8 != 0 {
		return fmt.Errorf("global-base must be a non-negative multiple of 8, got %d", o.GlobalBase)
	}
	if o.ReservedFunctionPointers < 0 {
		return fmt.Errorf("reserved-function-pointers must be non-negative, got %d", o.ReservedFunctionPointers)
	}
	return nil
}
